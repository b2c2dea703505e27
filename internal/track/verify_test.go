package track_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"fluxcheck/internal/bitstream"
	"fluxcheck/internal/track"
)

type stubCapture struct {
	bits   bitstream.Bits
	err    error
	cued   bool
	clocks []float64
	cells  []int
}

func (s *stubCapture) CueAtIndex() { s.cued = true }

func (s *stubCapture) DecodeBits(clock float64, cellsPerRev int) (bitstream.Bits, error) {
	s.clocks = append(s.clocks, clock)
	s.cells = append(s.cells, cellsPerRev)
	return s.bits, s.err
}

func randomBits(seed uint64, n int) bitstream.Bits {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	cells := make([]byte, n)
	for i := range cells {
		cells[i] = byte(rng.IntN(2))
	}
	return bitstream.FromCells(cells)
}

func newTestTrack(t *testing.T) *track.Track {
	t.Helper()
	bits := randomBits(42, 4000)
	raw := &track.RawTrack{
		Buffer:  bits.Bytes(),
		BitLen:  bits.Len(),
		Overlap: 250,
		Sectors: []track.Range{{Start: 400, Length: 800}, {Start: 1400, Length: 800}, {Start: 2400, Length: 800}},
		Weak:    []track.Range{{Start: 1600, Length: 64}},
	}
	tr, err := track.Assemble(raw)
	if err != nil {
		t.Fatalf("Assemble returned error: %v", err)
	}
	if err := tr.Validate(); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	return tr
}

// indexAligned returns revs revolutions of the track in index-relative phase,
// as a capture cued at the index would decode.
func indexAligned(tr *track.Track, revs int) bitstream.Bits {
	rev := tr.Bits.RotateRight(tr.SpliceOffset)
	out := bitstream.Bits{}
	for i := 0; i < revs; i++ {
		out = out.Concat(rev)
	}
	return out
}

func TestVerifyAcceptsExactCapture(t *testing.T) {
	tr := newTestTrack(t)
	capture := &stubCapture{bits: indexAligned(tr, 2)}

	ok, err := track.NewVerifier().Verify(tr, capture)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected capture to verify")
	}
	if !capture.cued {
		t.Fatal("expected capture to be cued at the index")
	}
	wantClock := tr.RotationPeriod / float64(tr.Len())
	if len(capture.clocks) != 1 || math.Abs(capture.clocks[0]-wantClock) > 1e-15 {
		t.Fatalf("unexpected decode clock: %v want %v", capture.clocks, wantClock)
	}
	if capture.cells[0] != tr.Len() {
		t.Fatalf("expected %d cells per revolution, got %d", tr.Len(), capture.cells[0])
	}
}

func TestVerifyToleratesPhaseDrift(t *testing.T) {
	tr := newTestTrack(t)
	aligned := indexAligned(tr, 2)
	// Capture started 60 cells late: everything appears 60 cells earlier.
	capture := &stubCapture{bits: aligned.Slice(60, aligned.Len())}

	ok, err := track.NewVerifier().Verify(tr, capture)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected drift within tolerance to verify")
	}

	ok, err = track.NewVerifier(track.WithTolerance(10)).Verify(tr, &stubCapture{bits: aligned.Slice(60, aligned.Len())})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected drift beyond tolerance to fail")
	}
}

func TestVerifyRejectsDamagedSector(t *testing.T) {
	tr := newTestTrack(t)
	aligned := indexAligned(tr, 2)
	// Flip the second sector in both revolutions (index-relative 1400..2200).
	damaged := aligned.Invert(1500, 1550).Invert(tr.Len()+1500, tr.Len()+1550)

	report, err := track.NewVerifier().Check(tr, &stubCapture{bits: damaged})
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if report.Matched {
		t.Fatal("expected damaged capture to fail")
	}
	if report.Failed == nil {
		t.Fatal("expected failing range in report")
	}
	if report.Ranges != 4 || report.Checked != 2 {
		t.Fatalf("expected to stop at range 2 of 4, got %d of %d", report.Checked, report.Ranges)
	}
	if *report.Failed != (track.Range{Start: 1150, Length: 200}) {
		t.Fatalf("unexpected failing range %v", *report.Failed)
	}
}

func TestVerifyIgnoresWeakBits(t *testing.T) {
	tr := newTestTrack(t)
	aligned := indexAligned(tr, 2)
	// Index-relative weak area 1600..1664 plus settle margin.
	noisy := aligned.Invert(1600, 1680).Invert(tr.Len()+1600, tr.Len()+1680)

	ok, err := track.NewVerifier().Verify(tr, &stubCapture{bits: noisy})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected weak area differences to be ignored")
	}
}

func TestVerifyFailsOnShortCapture(t *testing.T) {
	tr := newTestTrack(t)
	aligned := indexAligned(tr, 1)
	ok, err := track.NewVerifier().Verify(tr, &stubCapture{bits: aligned.Slice(0, 1000)})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("expected truncated capture to fail")
	}
}

func TestVerifyPropagatesDecodeError(t *testing.T) {
	tr := newTestTrack(t)
	boom := errors.New("no index pulses")
	_, err := track.NewVerifier().Verify(tr, &stubCapture{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestVerifyWithoutSectorsPasses(t *testing.T) {
	tr := &track.Track{Bits: randomBits(1, 64), RotationPeriod: 0.2}
	ok, err := track.NewVerifier().Verify(tr, &stubCapture{})
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !ok {
		t.Fatal("a track without sectors has nothing to mismatch")
	}
}

func TestVerifyRejectsEmptyTrack(t *testing.T) {
	if _, err := track.NewVerifier().Verify(&track.Track{}, &stubCapture{}); err == nil {
		t.Fatal("expected error for empty track")
	}
}
