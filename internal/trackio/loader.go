package trackio

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"fluxcheck/internal/flux"
	"fluxcheck/internal/logging"
	"fluxcheck/internal/services"
	"fluxcheck/internal/services/caps"
	"fluxcheck/internal/track"
)

// Opener loads images through the decoding helper.
type Opener interface {
	Open(ctx context.Context, path string) (*caps.Image, error)
}

// Loader fetches tracks from images and checks captures against them.
type Loader struct {
	opener   Opener
	logger   *slog.Logger
	assemble []track.AssembleOption
}

// NewLoader constructs a Loader. Assemble options apply to every track.
func NewLoader(opener Opener, logger *slog.Logger, opts ...track.AssembleOption) *Loader {
	return &Loader{
		opener:   opener,
		logger:   logging.NewComponentLogger(logger, "trackio"),
		assemble: opts,
	}
}

// Inspect opens an image only to read its metadata.
func (l *Loader) Inspect(ctx context.Context, imagePath string) (*caps.ImageInfo, error) {
	ctx = services.WithImage(ctx, imagePath)
	img, err := l.opener.Open(ctx, imagePath)
	if err != nil {
		return nil, err
	}
	defer img.Close(ctx)
	info := img.Info()
	return &info, nil
}

// LoadTrack opens the image, fetches one track and assembles it. The image is
// closed on every path. An unformatted or out-of-range track yields a nil
// Track without error.
func (l *Loader) LoadTrack(ctx context.Context, imagePath string, cylinder, head int) (*track.Track, *caps.ImageInfo, error) {
	ctx = services.WithTrack(services.WithImage(ctx, imagePath), cylinder, head)
	logger := logging.WithContext(ctx, l.logger)

	img, err := l.opener.Open(ctx, imagePath)
	if err != nil {
		return nil, nil, err
	}
	defer img.Close(ctx)
	info := img.Info()

	started := time.Now()
	raw, err := img.Track(ctx, cylinder, head)
	if err != nil {
		return nil, &info, err
	}
	if raw == nil {
		logger.Info("track empty", logging.Bool("in_range", info.HasTrack(cylinder, head)))
		return nil, &info, nil
	}

	t, err := track.Assemble(raw, l.assemble...)
	if err != nil {
		return nil, &info, services.Wrap(services.ErrValidation, "trackio", "assemble", logging.TrackLabel(cylinder, head), err)
	}
	if err := t.Validate(); err != nil {
		return nil, &info, services.Wrap(services.ErrValidation, "trackio", "validate", logging.TrackLabel(cylinder, head), err)
	}
	if len(t.Clipped) > 0 {
		clipped := make([]string, len(t.Clipped))
		for i, r := range t.Clipped {
			clipped[i] = r.String()
		}
		logging.WarnWithContext(logger, "ranges cut at track end", "track_ranges_clipped",
			logging.String("ranges", strings.Join(clipped, " ")),
			logging.String(logging.FieldErrorHint, "image reports ranges that cross the splice"),
			logging.String(logging.FieldImpact, "only the part before the track end is verified"),
		)
	}

	logger.Info("track assembled",
		logging.Int("bits", t.Len()),
		logging.Int("splice", t.SpliceOffset),
		logging.Int("sectors", len(t.Sectors)),
		logging.Int("weak", len(t.Weak)),
		logging.Bool("timing", t.HasTiming()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return t, &info, nil
}

// VerifyCapture loads a flux file and runs one verification pass against t.
// Retrying with a fresh capture is up to the caller.
func (l *Loader) VerifyCapture(ctx context.Context, t *track.Track, capturePath string, verifier *track.Verifier) (*track.Report, error) {
	if t == nil {
		return nil, services.Wrap(services.ErrValidation, "trackio", "verify", "no track to verify against", nil)
	}
	if verifier == nil {
		verifier = track.NewVerifier()
	}
	logger := logging.WithContext(ctx, l.logger)

	capture, err := flux.LoadFile(capturePath)
	if err != nil {
		if errors.Is(err, flux.ErrInvalidCapture) {
			return nil, services.Wrap(services.ErrValidation, "trackio", "load capture", capturePath, err)
		}
		return nil, services.Wrap(services.ErrNotFound, "trackio", "load capture", capturePath, err)
	}

	report, err := verifier.Check(t, capture)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "trackio", "verify", capturePath, err)
	}

	attrs := []logging.Attr{
		logging.String("capture", capturePath),
		logging.Int("ranges", report.Ranges),
		logging.Int("checked", report.Checked),
		logging.Int("capture_bits", report.CaptureBits),
	}
	if report.Matched {
		logger.Info("capture verified", logging.Args(attrs...)...)
	} else {
		attrs = append(attrs,
			logging.String("failed_range", report.Failed.String()),
			logging.Alert("verify_mismatch"),
		)
		logger.Info("capture mismatch", logging.Args(attrs...)...)
	}
	return report, nil
}
