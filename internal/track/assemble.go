package track

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"fluxcheck/internal/bitstream"
)

const (
	// DefaultRPM is assumed when the true spindle speed is unknown.
	DefaultRPM = 300
	// NominalCellTime is the timing value of an unscaled bitcell.
	NominalCellTime = 1000
)

// RawTrack is the decoder's per-track output, copied out of service-owned
// memory. Ranges are relative to the index pulse.
type RawTrack struct {
	Cylinder int
	Head     int
	// Buffer is nil when the decoder reports an unformatted track.
	Buffer []byte
	BitLen int
	// Timing holds per-byte cell timing, or nil when absent.
	Timing  []uint32
	Overlap int
	Sectors []Range
	Weak    []Range
}

// AssembleOption customizes Assemble.
type AssembleOption func(*assembleConfig)

type assembleConfig struct {
	rpm         float64
	nominalCell uint32
}

// WithRPM overrides the rotation speed used to derive RotationPeriod.
func WithRPM(rpm float64) AssembleOption {
	return func(c *assembleConfig) {
		if rpm > 0 {
			c.rpm = rpm
		}
	}
}

// WithNominalCellTime overrides the value used to pad short timing data.
func WithNominalCellTime(v uint32) AssembleOption {
	return func(c *assembleConfig) {
		if v > 0 {
			c.nominalCell = v
		}
	}
}

// Assemble builds a splice-relative Track from raw decoder output. It returns
// nil, nil when raw carries no track buffer. raw is not modified.
func Assemble(raw *RawTrack, opts ...AssembleOption) (*Track, error) {
	if raw == nil || raw.Buffer == nil {
		return nil, nil
	}
	cfg := assembleConfig{rpm: DefaultRPM, nominalCell: NominalCellTime}
	for _, opt := range opts {
		opt(&cfg)
	}

	n := raw.BitLen
	if n <= 0 {
		return nil, fmt.Errorf("assemble track %d.%d: bit length %d", raw.Cylinder, raw.Head, n)
	}
	if raw.Overlap < 0 {
		return nil, errors.New("assemble track: negative overlap")
	}

	bits := bitstream.FromBytes(raw.Buffer, n)
	timing := expandTiming(raw.Timing, n, cfg.nominalCell)

	overlap := raw.Overlap % n
	if overlap != 0 {
		bits = bits.RotateLeft(overlap)
		if timing != nil {
			timing = rotateTiming(timing, overlap)
		}
	}

	t := &Track{
		Bits:           bits,
		Timing:         timing,
		RotationPeriod: 60 / cfg.rpm,
		SpliceOffset:   raw.Overlap,
	}
	t.Sectors, t.Clipped = toSpliceRelative(raw.Sectors, raw.Overlap, n, t.Clipped)
	t.Weak, t.Clipped = toSpliceRelative(raw.Weak, raw.Overlap, n, t.Clipped)
	return t, nil
}

// toSpliceRelative shifts range starts from the index pulse to the splice.
// Ranges reported before the splice move to the end of the track, so the
// result is re-sorted by start. A range that would run past the end of the
// track is cut there and its uncut form appended to clipped.
func toSpliceRelative(ranges []Range, overlap, n int, clipped []Range) ([]Range, []Range) {
	if len(ranges) == 0 {
		return nil, clipped
	}
	out := make([]Range, len(ranges))
	for i, r := range ranges {
		start := (r.Start - overlap) % n
		if start < 0 {
			start += n
		}
		out[i] = Range{Start: start, Length: r.Length}
		if out[i].End() > n {
			clipped = append(clipped, out[i])
			out[i].Length = n - start
		}
	}
	slices.SortStableFunc(out, func(a, b Range) int { return cmp.Compare(a.Start, b.Start) })
	return out, clipped
}

// expandTiming replicates each per-byte timing value across its 8 bits, pads
// with nominal cells and clips to n entries.
func expandTiming(perByte []uint32, n int, nominal uint32) []uint32 {
	if perByte == nil {
		return nil
	}
	out := make([]uint32, n)
	i := 0
	for _, v := range perByte {
		for j := 0; j < 8 && i < n; j++ {
			out[i] = v
			i++
		}
		if i == n {
			break
		}
	}
	for ; i < n; i++ {
		out[i] = nominal
	}
	return out
}

func rotateTiming(timing []uint32, k int) []uint32 {
	out := make([]uint32, 0, len(timing))
	out = append(out, timing[k:]...)
	return append(out, timing[:k]...)
}
