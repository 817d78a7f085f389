// Package migrations embeds the goose SQL migrations for the relational
// backends.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

// Dialects understood by Up, mapped to their migration directory.
var dialectDirs = map[string]string{
	"postgres": "postgres",
	"sqlite3":  "sqlite",
}

// goose keeps its FS and dialect in package state.
var mu sync.Mutex

// Up applies all pending migrations for dialect ("postgres" or "sqlite3").
func Up(ctx context.Context, db *sql.DB, dialect string) error {
	dir, ok := dialectDirs[dialect]
	if !ok {
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	sub, err := fs.Sub(Migrations, dir)
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	goose.SetBaseFS(sub)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

// SetLogger replaces goose's logger (tests silence it).
func SetLogger(l goose.Logger) {
	mu.Lock()
	defer mu.Unlock()
	goose.SetLogger(l)
}
