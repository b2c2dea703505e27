package track_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"fluxcheck/internal/bitstream"
	"fluxcheck/internal/track"
)

func TestAssembleReturnsNilForUnformattedTrack(t *testing.T) {
	tr, err := track.Assemble(&track.RawTrack{BitLen: 1000})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if tr != nil {
		t.Fatalf("expected nil track, got %+v", tr)
	}
	if tr, err := track.Assemble(nil); tr != nil || err != nil {
		t.Fatalf("expected nil, nil for nil input, got %v %v", tr, err)
	}
}

func TestAssembleRotatesToSplice(t *testing.T) {
	// b0..b31 = 0x12 0x34 0x56 0x78
	raw := &track.RawTrack{
		Buffer:  []byte{0x12, 0x34, 0x56, 0x78},
		BitLen:  32,
		Overlap: 8,
	}
	tr, err := track.Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	orig := bitstream.FromBytes(raw.Buffer, 32)
	want := orig.Slice(8, 32).Concat(orig.Slice(0, 8))
	if !tr.Bits.Equal(want) {
		t.Fatalf("unexpected bits:\n got %s\nwant %s", tr.Bits, want)
	}
	if back := tr.Bits.RotateLeft(24).RotateLeft(8); !back.Equal(tr.Bits) {
		t.Fatalf("full rotation should be the identity, got %s", back)
	}
	if back := tr.Bits.RotateRight(8); !back.Equal(orig) {
		t.Fatalf("rotating back by overlap should restore index order, got %s", back)
	}
	if tr.SpliceOffset != 8 {
		t.Fatalf("expected splice offset 8, got %d", tr.SpliceOffset)
	}
}

func TestAssembleClipsRangesCrossingTrackEnd(t *testing.T) {
	raw := &track.RawTrack{
		Buffer:  make([]byte, 125),
		BitLen:  1000,
		Overlap: 300,
		Sectors: []track.Range{{Start: 200, Length: 150}, {Start: 400, Length: 100}},
		Weak:    []track.Range{{Start: 250, Length: 90}},
	}
	tr, err := track.Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	wantSectors := []track.Range{{Start: 100, Length: 100}, {Start: 900, Length: 100}}
	if !slices.Equal(tr.Sectors, wantSectors) {
		t.Fatalf("unexpected sectors: got %v want %v", tr.Sectors, wantSectors)
	}
	if !slices.Equal(tr.Weak, []track.Range{{Start: 950, Length: 50}}) {
		t.Fatalf("unexpected weak ranges: %v", tr.Weak)
	}
	wantClipped := []track.Range{{Start: 900, Length: 150}, {Start: 950, Length: 90}}
	if !slices.Equal(tr.Clipped, wantClipped) {
		t.Fatalf("unexpected clipped ranges: got %v want %v", tr.Clipped, wantClipped)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
}

func TestAssembleTruncatesBuffer(t *testing.T) {
	tr, err := track.Assemble(&track.RawTrack{Buffer: []byte{0xFF, 0xFF}, BitLen: 10})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if tr.Len() != 10 || tr.Bits.String() != "1111111111" {
		t.Fatalf("unexpected bits %s", tr.Bits)
	}
}

func TestAssembleNormalizesRangesToSplice(t *testing.T) {
	raw := &track.RawTrack{
		Buffer:  make([]byte, 125),
		BitLen:  1000,
		Overlap: 300,
		Sectors: []track.Range{{Start: 100, Length: 50}, {Start: 400, Length: 200}, {Start: 700, Length: 100}},
		Weak:    []track.Range{{Start: 450, Length: 20}},
	}
	tr, err := track.Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	wantSectors := []track.Range{{Start: 100, Length: 200}, {Start: 400, Length: 100}, {Start: 800, Length: 50}}
	if !slices.Equal(tr.Sectors, wantSectors) {
		t.Fatalf("unexpected sectors: got %v want %v", tr.Sectors, wantSectors)
	}
	if !slices.Equal(tr.Weak, []track.Range{{Start: 150, Length: 20}}) {
		t.Fatalf("unexpected weak ranges: %v", tr.Weak)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if raw.Sectors[0].Start != 100 {
		t.Fatal("Assemble modified its input")
	}
	if tr.Clipped != nil {
		t.Fatalf("expected nothing clipped, got %v", tr.Clipped)
	}
}

func TestAssembleExpandsTiming(t *testing.T) {
	tests := []struct {
		name   string
		timing []uint32
		bitLen int
	}{
		{name: "short timing is padded", timing: []uint32{900, 1100}, bitLen: 40},
		{name: "long timing is clipped", timing: []uint32{900, 1100, 950, 1050}, bitLen: 20},
		{name: "exact length", timing: []uint32{1200, 800}, bitLen: 16},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, err := track.Assemble(&track.RawTrack{
				Buffer: make([]byte, (tc.bitLen+7)/8),
				BitLen: tc.bitLen,
				Timing: tc.timing,
			})
			if err != nil {
				t.Fatalf("Assemble returned error: %v", err)
			}
			if len(tr.Timing) != tc.bitLen {
				t.Fatalf("expected %d timing entries, got %d", tc.bitLen, len(tr.Timing))
			}
			for i, v := range tr.Timing {
				want := uint32(track.NominalCellTime)
				if i/8 < len(tc.timing) {
					want = tc.timing[i/8]
				}
				if v != want {
					t.Fatalf("timing[%d]=%d want %d", i, v, want)
				}
			}
		})
	}
}

func TestAssembleRotatesTimingWithBits(t *testing.T) {
	tr, err := track.Assemble(&track.RawTrack{
		Buffer:  []byte{0xFF, 0x00},
		BitLen:  16,
		Timing:  []uint32{500, 1500},
		Overlap: 8,
	})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if tr.Timing[0] != 1500 || tr.Timing[15] != 500 {
		t.Fatalf("timing not rotated with bits: %v", tr.Timing)
	}
	if tr.Bits.String() != "0000000011111111" {
		t.Fatalf("unexpected bits: %s", tr.Bits)
	}
}

func TestAssembleWithoutTimingLeavesNil(t *testing.T) {
	tr, err := track.Assemble(&track.RawTrack{Buffer: []byte{0}, BitLen: 8})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if tr.HasTiming() {
		t.Fatalf("expected no timing, got %v", tr.Timing)
	}
}

func TestAssembleRotationPeriod(t *testing.T) {
	tr, err := track.Assemble(&track.RawTrack{Buffer: []byte{0}, BitLen: 8})
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if math.Abs(tr.RotationPeriod-0.2) > 1e-12 {
		t.Fatalf("expected 0.2s at 300 RPM, got %v", tr.RotationPeriod)
	}
	tr, err = track.Assemble(&track.RawTrack{Buffer: []byte{0}, BitLen: 8}, track.WithRPM(360))
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if math.Abs(tr.RotationPeriod-60.0/360) > 1e-12 {
		t.Fatalf("unexpected period at 360 RPM: %v", tr.RotationPeriod)
	}
}

func TestAssembleRejectsBadLength(t *testing.T) {
	if _, err := track.Assemble(&track.RawTrack{Buffer: []byte{0}, BitLen: 0}); err == nil {
		t.Fatal("expected error for zero bit length")
	}
	if _, err := track.Assemble(&track.RawTrack{Buffer: []byte{0}, BitLen: 8, Overlap: -1}); err == nil {
		t.Fatal("expected error for negative overlap")
	}
}

func TestValidateRejectsBrokenRanges(t *testing.T) {
	base := track.Track{Bits: bitstream.FromBytes(make([]byte, 16), 128)}
	tests := []struct {
		name    string
		sectors []track.Range
		weak    []track.Range
	}{
		{name: "past end", sectors: []track.Range{{Start: 100, Length: 50}}},
		{name: "overlapping", sectors: []track.Range{{Start: 0, Length: 50}, {Start: 40, Length: 10}}},
		{name: "descending weak", weak: []track.Range{{Start: 60, Length: 5}, {Start: 10, Length: 5}}},
		{name: "negative", weak: []track.Range{{Start: -1, Length: 5}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := base
			tr.Sectors = tc.sectors
			tr.Weak = tc.weak
			if err := tr.Validate(); !errors.Is(err, track.ErrInvalidRange) {
				t.Fatalf("expected ErrInvalidRange, got %v", err)
			}
		})
	}
}
