package track

import (
	"errors"
	"fmt"

	"fluxcheck/internal/bitstream"
)

// DefaultTolerance is how many bitcells either side of a strong range's
// expected position the capture is searched.
const DefaultTolerance = 100

// Capture is a flux reading that can be aligned to the index pulse and
// decoded into bitcells around a nominal cell clock.
type Capture interface {
	// CueAtIndex discards data before the first index pulse.
	CueAtIndex()
	// DecodeBits rescales every revolution to last cellsPerRev cells of
	// clock seconds and returns the concatenated bitcells.
	DecodeBits(clock float64, cellsPerRev int) (bitstream.Bits, error)
}

// Report describes the outcome of a verification pass.
type Report struct {
	Matched bool `json:"matched"`
	// Ranges is the number of strong ranges derived from the track.
	Ranges int `json:"ranges"`
	// Checked counts ranges that were searched, including a failing one.
	Checked int `json:"checked"`
	// Failed is the first range that was not found, if any.
	Failed      *Range `json:"failed,omitempty"`
	CaptureBits int    `json:"capture_bits"`
	TrackBits   int    `json:"track_bits"`
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithTolerance sets the search window slack in bitcells.
func WithTolerance(bits int) VerifierOption {
	return func(v *Verifier) {
		if bits >= 0 {
			v.tolerance = bits
		}
	}
}

// WithWeakTolerance sets the settle margin appended to weak ranges.
func WithWeakTolerance(bits int) VerifierOption {
	return func(v *Verifier) {
		if bits >= 0 {
			v.weakTolerance = bits
		}
	}
}

// Verifier checks captures against assembled tracks. It holds no mutable
// state and may be used concurrently.
type Verifier struct {
	tolerance     int
	weakTolerance int
}

// NewVerifier returns a Verifier with the default tolerances.
func NewVerifier(opts ...VerifierOption) *Verifier {
	v := &Verifier{tolerance: DefaultTolerance, weakTolerance: DefaultWeakTolerance}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Tolerance returns the search window slack.
func (v *Verifier) Tolerance() int { return v.tolerance }

// WeakTolerance returns the weak range settle margin.
func (v *Verifier) WeakTolerance() int { return v.weakTolerance }

// Verify reports whether every strong range of t occurs in capture near its
// expected position. A false result is a mismatch, not an error; errors only
// come from decoding the capture.
func (v *Verifier) Verify(t *Track, capture Capture) (bool, error) {
	report, err := v.Check(t, capture)
	if err != nil {
		return false, err
	}
	return report.Matched, nil
}

// Check runs the same comparison as Verify and returns the details. The
// search stops at the first strong range that is not found.
func (v *Verifier) Check(t *Track, capture Capture) (*Report, error) {
	if t == nil || t.Len() == 0 {
		return nil, errors.New("verify: empty track")
	}
	if capture == nil {
		return nil, errors.New("verify: nil capture")
	}
	if t.RotationPeriod <= 0 {
		return nil, fmt.Errorf("verify: rotation period %v", t.RotationPeriod)
	}

	capture.CueAtIndex()
	clock := t.RotationPeriod / float64(t.Len())
	raw, err := capture.DecodeBits(clock, t.Len())
	if err != nil {
		return nil, fmt.Errorf("verify: decode capture: %w", err)
	}

	strong := t.StrongRanges(v.weakTolerance)
	report := &Report{
		Matched:     true,
		Ranges:      len(strong),
		CaptureBits: raw.Len(),
		TrackBits:   t.Len(),
	}
	for _, r := range strong {
		report.Checked++
		want := t.Bits.Slice(r.Start, r.End())
		lo := max(t.SpliceOffset+r.Start-v.tolerance, 0)
		hi := t.SpliceOffset + r.End() + v.tolerance
		if !raw.Slice(lo, hi).Contains(want) {
			failed := r
			report.Matched = false
			report.Failed = &failed
			return report, nil
		}
	}
	return report, nil
}
