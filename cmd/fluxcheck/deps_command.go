package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fluxcheck/internal/deps"
	"fluxcheck/internal/services"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check the helper binary and working directories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := deps.CheckSystem(cfg)

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, statuses); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(statuses))
				for _, s := range statuses {
					state := "ok"
					if !s.Available {
						state = "missing"
						if s.Optional {
							state = "missing (optional)"
						}
					}
					rows = append(rows, []string{s.Name, state, s.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(
					renderTable([]string{"Dependency", "Status", "Detail"}, rows, nil), "\n"))
			}

			if missing := deps.Missing(statuses); len(missing) > 0 {
				names := make([]string, len(missing))
				for i, s := range missing {
					names[i] = s.Name
				}
				return services.Wrap(services.ErrConfiguration, "deps", "check",
					"missing: "+strings.Join(names, ", "), nil)
			}
			return nil
		},
	}
}
