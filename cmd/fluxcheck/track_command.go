package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fluxcheck/internal/track"
)

type trackOutput struct {
	Image          string        `json:"image"`
	Cylinder       int           `json:"cylinder"`
	Head           int           `json:"head"`
	Bits           int           `json:"bits"`
	SpliceOffset   int           `json:"splice_offset"`
	Timing         bool          `json:"timing"`
	RotationPeriod float64       `json:"rotation_period"`
	Sectors        []track.Range `json:"sectors"`
	Weak           []track.Range `json:"weak"`
	Strong         []track.Range `json:"strong"`
	Clipped        []track.Range `json:"clipped,omitempty"`
}

func newTrackCommand(ctx *commandContext) *cobra.Command {
	var cylinder, head int
	cmd := &cobra.Command{
		Use:   "track IMAGE",
		Short: "Show an assembled track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			t, _, err := ctx.loadTrack(ctx.requestContext(cmd), args[0], cylinder, head)
			if err != nil {
				return err
			}
			out := trackOutput{
				Image:          args[0],
				Cylinder:       cylinder,
				Head:           head,
				Bits:           t.Len(),
				SpliceOffset:   t.SpliceOffset,
				Timing:         t.HasTiming(),
				RotationPeriod: t.RotationPeriod,
				Sectors:        t.Sectors,
				Weak:           t.Weak,
				Strong:         t.StrongRanges(cfg.Verify.WeakTolerance),
				Clipped:        t.Clipped,
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, strings.TrimRight(renderFields([][]string{
				{"Track", fmt.Sprintf("%d.%d", cylinder, head)},
				{"Bits", strconv.Itoa(out.Bits)},
				{"Splice offset", strconv.Itoa(out.SpliceOffset)},
				{"Timing", yesNo(out.Timing)},
				{"Rotation", fmt.Sprintf("%.1f ms", out.RotationPeriod*1000)},
			}), "\n"))
			fmt.Fprintln(w, strings.TrimRight(renderRanges(out), "\n"))
			return nil
		},
	}
	addTrackFlags(cmd, &cylinder, &head)
	return cmd
}

func renderRanges(out trackOutput) string {
	var rows [][]string
	add := func(kind string, ranges []track.Range) {
		for _, r := range ranges {
			rows = append(rows, []string{kind, strconv.Itoa(r.Start), strconv.Itoa(r.End()), strconv.Itoa(r.Length)})
		}
	}
	add("sector", out.Sectors)
	add("weak", out.Weak)
	add("strong", out.Strong)
	return renderTable([]string{"Kind", "Start", "End", "Length"}, rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight})
}
