package main

import (
	"os"

	"github.com/serviciomed/serviciomed/pkg/logger"
)

func main() {
	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
