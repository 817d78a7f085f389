package main

import (
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/serviciomed/serviciomed/internal/app"
	"github.com/serviciomed/serviciomed/internal/programs"
	"github.com/serviciomed/serviciomed/internal/records"
)

func newProgramsCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "programs",
		Short: "List the program catalog with the latest record number per prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			catalog, err := programs.NewCatalog(cfg.Programs)
			if err != nil {
				return err
			}

			latest := func(prefix string) (string, error) { return "-", nil }
			if !offline {
				s, err := app.OpenStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer s.Close()
				latest = func(prefix string) (string, error) {
					n, err := records.LastSequence(cmd.Context(), s.Users(), prefix)
					if err != nil || n == 0 {
						return "-", err
					}
					return records.Format(prefix, n), nil
				}
			}

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Program", "Prefix", "Latest record"})
			for _, p := range catalog.Programs() {
				last, err := latest(p.Prefix)
				if err != nil {
					return err
				}
				table.Append([]string{p.Name, p.Prefix, last})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "do not query the database")
	return cmd
}
