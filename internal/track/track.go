package track

import (
	"fmt"

	"fluxcheck/internal/bitstream"
)

// Track is a decoded track normalized to the write splice: position 0 of Bits
// and Timing is the splice point, and every Sectors/Weak range is measured
// from it.
type Track struct {
	Bits bitstream.Bits
	// Timing holds one cell-time per bit, relative to the nominal cell time
	// given to Assemble (1000 by default), or nil when the decoder supplied no
	// timing data.
	Timing []uint32
	// RotationPeriod is the assumed time of one revolution in seconds.
	RotationPeriod float64
	// SpliceOffset is the index-relative overlap position the track was
	// rotated by. Captures are index-aligned, so verification adds it back.
	SpliceOffset int
	Sectors      []Range
	Weak         []Range
	// Clipped lists ranges, before cutting, that Assemble shortened because
	// they ran past the end of the track.
	Clipped []Range
}

// Len returns the track length in bitcells.
func (t *Track) Len() int { return t.Bits.Len() }

// HasTiming reports whether per-bit timing is available.
func (t *Track) HasTiming() bool { return t.Timing != nil }

// Validate checks the range invariants: every range lies inside the track
// and each list is ascending and disjoint.
func (t *Track) Validate() error {
	n := t.Len()
	if t.Timing != nil && len(t.Timing) != n {
		return fmt.Errorf("%w: timing has %d entries for %d bits", ErrInvalidRange, len(t.Timing), n)
	}
	if err := validateRanges("sectors", t.Sectors, n); err != nil {
		return err
	}
	return validateRanges("weak", t.Weak, n)
}

// StrongRanges returns the sector areas of t that must read back exactly.
func (t *Track) StrongRanges(weakTolerance int) []Range {
	return CollectStrongRanges(t.Sectors, t.Weak, weakTolerance)
}
