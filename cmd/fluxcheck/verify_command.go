package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"fluxcheck/internal/config"
	"fluxcheck/internal/fileutil"
	"fluxcheck/internal/logging"
	"fluxcheck/internal/services"
	"fluxcheck/internal/store"
	"fluxcheck/internal/track"
)

type verifyOutput struct {
	Image    string `json:"image"`
	Capture  string `json:"capture"`
	Cylinder int    `json:"cylinder"`
	Head     int    `json:"head"`
	*track.Report
	Recorded bool `json:"recorded"`
}

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var cylinder, head, tolerance int
	var noRecord bool

	cmd := &cobra.Command{
		Use:   "verify IMAGE CAPTURE",
		Short: "Check a flux capture against the image's track",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			imagePath, capturePath := args[0], args[1]
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			reqCtx := services.WithTrack(services.WithImage(ctx.requestContext(cmd), imagePath), cylinder, head)

			t, _, err := ctx.loadTrack(reqCtx, imagePath, cylinder, head)
			if err != nil {
				return err
			}
			verifier, err := ctx.newVerifier(tolerance)
			if err != nil {
				return err
			}
			loader, err := ctx.newLoader()
			if err != nil {
				return err
			}
			report, err := loader.VerifyCapture(reqCtx, t, capturePath, verifier)
			if err != nil {
				return err
			}

			out := verifyOutput{
				Image:    imagePath,
				Capture:  capturePath,
				Cylinder: cylinder,
				Head:     head,
				Report:   report,
			}
			if !noRecord && cfg.Verify.RecordResults {
				out.Recorded = recordVerification(reqCtx, cfg, logging.WithContext(reqCtx, logger), out)
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "%s  track %s  %d/%d ranges\n",
					verdictLabel(report.Matched, shouldColorize(w)),
					logging.TrackLabel(cylinder, head), report.Checked, report.Ranges)
				if report.Failed != nil {
					fmt.Fprintf(w, "first mismatch: %s\n", report.Failed)
				}
			}
			if !report.Matched {
				return errMismatch
			}
			return nil
		},
	}
	addTrackFlags(cmd, &cylinder, &head)
	cmd.Flags().IntVar(&tolerance, "tolerance", -1, "Search window slack in bitcells (default from config)")
	cmd.Flags().BoolVar(&noRecord, "no-record", false, "Do not store the result in the history database")
	return cmd
}

// recordVerification stores the outcome. Failures are logged, never fatal.
func recordVerification(ctx context.Context, cfg *config.Config, logger *slog.Logger, out verifyOutput) bool {
	st, err := store.Open(cfg)
	if err != nil {
		hint := "check state_dir permissions"
		if errors.Is(err, store.ErrLocked) {
			hint = "another fluxcheck process is recording; retry when it finishes"
		}
		logging.WarnWithContext(logger, "verification not recorded", "history_record",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, hint),
			logging.String(logging.FieldImpact, "result missing from history"),
		)
		return false
	}
	defer st.Close()

	digest, err := fileutil.Digest(out.Image)
	if err != nil {
		logger.Debug("image digest unavailable", logging.Error(err))
	}
	rec := &store.Record{
		Image:       out.Image,
		ImageDigest: digest,
		Cylinder:    out.Cylinder,
		Head:        out.Head,
		Capture:     out.Capture,
		Matched:     out.Matched,
		Ranges:      out.Ranges,
		Checked:     out.Checked,
		Failed:      out.Failed,
	}
	if err := st.Add(ctx, rec); err != nil {
		logging.WarnWithContext(logger, "verification not recorded", "history_record",
			logging.Error(err),
			logging.String(logging.FieldImpact, "result missing from history"),
		)
		return false
	}
	logger.Debug("verification recorded", logging.String("record_id", rec.ID))
	return true
}
