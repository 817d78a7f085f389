package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/serviciomed/serviciomed/internal/app"
	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/records"
	"github.com/serviciomed/serviciomed/internal/users"
)

// readPassword is swapped out in tests.
var readPassword = term.ReadPassword

func newRegisterCmd() *cobra.Command {
	var name, program string
	var passwordStdin bool
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a student and print the allocated record number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			password, err := promptPassword(cmd.InOrStdin(), out, passwordStdin)
			if err != nil {
				return err
			}

			cfg := configFrom(cmd)
			catalog, err := programs.NewCatalog(cfg.Programs)
			if err != nil {
				return err
			}
			if !catalog.Known(program) {
				color.New(color.FgYellow).Fprintf(out, "program %q is not in the catalog; prefix %s will be used\n", program, programs.FallbackPrefix)
			}

			s, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			u, err := users.NewService(s, records.NewAllocator(catalog)).Register(cmd.Context(), users.RegisterInput{
				Name:     name,
				Password: password,
				Program:  program,
			})
			if errors.Is(err, users.ErrAlreadyRegistered) {
				color.New(color.FgRed).Fprintf(out, "%s is already registered in %s\n", name, program)
				return err
			}
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(out, "registered %s: %s\n", u.Name, u.RecordNumber)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "student name")
	cmd.Flags().StringVar(&program, "program", "", "academic program, as listed by 'programs'")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of the terminal")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func promptPassword(in io.Reader, out io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(out, "Password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
