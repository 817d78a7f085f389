package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/serviciomed/serviciomed/internal/intake"
	"github.com/serviciomed/serviciomed/internal/render"
)

func newRenderCmd() *cobra.Command {
	var out, record, title string
	cmd := &cobra.Command{
		Use:   "render [name=value ...]",
		Short: "Render an exam PDF from name=value pairs, for checking the layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseFieldArgs(args)
			if err != nil {
				return err
			}
			if title == "" {
				title = configFrom(cmd).Intake.ExamTitle
			}
			if record != "" {
				fields = intake.ExamFields(fields, record, time.Now())
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := render.NewExamRenderer(title).Render(f, fields); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d fields)\n", out, len(fields))
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "examen.pdf", "output file")
	cmd.Flags().StringVar(&record, "record", "", "fill expediente and fecha as the server would")
	cmd.Flags().StringVar(&title, "title", "", "document title (default EXAM_TITLE)")
	return cmd
}

func parseFieldArgs(args []string) ([]render.Field, error) {
	fields := make([]render.Field, 0, len(args))
	for _, a := range args {
		name, value, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("expected name=value, got %q", a)
		}
		fields = append(fields, render.Field{Name: name, Value: value})
	}
	return fields, nil
}
