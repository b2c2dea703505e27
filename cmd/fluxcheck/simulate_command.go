package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"fluxcheck/internal/flux"
	"fluxcheck/internal/logging"
	"fluxcheck/internal/services"
	"fluxcheck/internal/track"
)

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	var cylinder, head, revs, leadIn int
	var rpm float64
	var flips []string

	cmd := &cobra.Command{
		Use:   "simulate IMAGE OUTPUT",
		Short: "Write the flux capture a drive would read for a track",
		Long: "Synthesize a flux capture from an image track. --flip START:LEN inverts\n" +
			"splice-relative bitcells first, producing a capture that should fail verify.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath, outputPath := args[0], args[1]
			ranges := make([]track.Range, 0, len(flips))
			for _, value := range flips {
				r, err := parseFlip(value)
				if err != nil {
					return err
				}
				ranges = append(ranges, r)
			}

			reqCtx := services.WithTrack(services.WithImage(ctx.requestContext(cmd), imagePath), cylinder, head)
			t, _, err := ctx.loadTrack(reqCtx, imagePath, cylinder, head)
			if err != nil {
				return err
			}
			for _, r := range ranges {
				if r.End() > t.Len() {
					return services.Wrap(services.ErrValidation, "simulate", "flip",
						fmt.Sprintf("%s exceeds track length %d", r, t.Len()), nil)
				}
				t.Bits = t.Bits.Invert(r.Start, r.End())
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if revs <= 0 {
				revs = cfg.Verify.Revolutions
			}
			opts := []flux.SynthOption{
				flux.WithRevolutions(revs),
				flux.WithLeadIn(leadIn),
				flux.WithNominalCellTime(cfg.Track.NominalCellTime),
			}
			if rpm > 0 {
				opts = append(opts, flux.WithDriveRPM(rpm))
			}
			capture := flux.Synthesize(t, opts...)
			if err := flux.SaveFile(outputPath, capture); err != nil {
				return services.Wrap(services.ErrTransient, "simulate", "save", outputPath, err)
			}

			if logger, err := ctx.ensureLogger(); err == nil {
				logging.WithContext(reqCtx, logger).Info("capture written",
					logging.String("output", outputPath),
					logging.Int("revolutions", capture.Revolutions()),
					logging.Int("flips", len(ranges)),
				)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d revolutions (%.3fs) to %s\n",
				capture.Revolutions(), capture.Duration(), outputPath)
			return nil
		},
	}
	addTrackFlags(cmd, &cylinder, &head)
	cmd.Flags().Float64Var(&rpm, "rpm", 0, "Drive speed (default: the track's nominal speed)")
	cmd.Flags().IntVar(&revs, "revs", 0, "Revolutions to capture (default from config)")
	cmd.Flags().IntVar(&leadIn, "lead-in", 0, "Bitcells of flux before the first index pulse")
	cmd.Flags().StringArrayVar(&flips, "flip", nil, "Invert bitcells START:LEN before synthesis (repeatable)")
	return cmd
}

func parseFlip(value string) (track.Range, error) {
	startText, lengthText, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return track.Range{}, services.Wrap(services.ErrValidation, "simulate", "flip",
			fmt.Sprintf("expected START:LEN, got %q", value), nil)
	}
	start, err := strconv.Atoi(startText)
	if err != nil || start < 0 {
		return track.Range{}, services.Wrap(services.ErrValidation, "simulate", "flip",
			fmt.Sprintf("invalid start %q", startText), nil)
	}
	length, err := strconv.Atoi(lengthText)
	if err != nil || length <= 0 {
		return track.Range{}, services.Wrap(services.ErrValidation, "simulate", "flip",
			fmt.Sprintf("invalid length %q", lengthText), nil)
	}
	return track.Range{Start: start, Length: length}, nil
}
