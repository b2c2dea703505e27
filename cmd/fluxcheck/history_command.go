package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fluxcheck/internal/logging"
	"fluxcheck/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var image string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded verifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg, store.ReadOnly())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer st.Close()

			var records []store.Record
			if image = strings.TrimSpace(image); image != "" {
				records, err = st.ByImage(cmd.Context(), image, limit)
			} else {
				records, err = st.List(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if ctx.jsonOutput() {
				if records == nil {
					records = []store.Record{}
				}
				return writeJSON(cmd, records)
			}
			w := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(w, "No verifications recorded")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				failed := "-"
				if rec.Failed != nil {
					failed = rec.Failed.String()
				}
				rows = append(rows, []string{
					rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					rec.Image,
					logging.TrackLabel(rec.Cylinder, rec.Head),
					verdictLabel(rec.Matched, false),
					fmt.Sprintf("%d/%d", rec.Checked, rec.Ranges),
					failed,
					rec.Capture,
				})
			}
			fmt.Fprint(w, renderTable(
				[]string{"When", "Image", "Track", "Result", "Ranges", "Mismatch", "Capture"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))
			fmt.Fprintln(w)
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "Only show verifications of this image path")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records to list (0 for all)")
	return cmd
}
