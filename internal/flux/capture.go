package flux

import (
	"errors"
	"fmt"
	"math"

	"fluxcheck/internal/bitstream"
)

// DefaultSampleFreq is the tick rate used when none is specified (72 MHz).
const DefaultSampleFreq = 72e6

// ErrNoIndex is returned when a capture holds no complete revolution.
var ErrNoIndex = errors.New("capture has no index pulses")

// Capture is a flux reading. Samples are the tick counts between successive
// transitions. Index holds tick counts between successive index pulses; the
// first entry is measured from the start of the capture.
type Capture struct {
	SampleFreq float64
	Samples    []uint32
	Index      []uint32
}

// Revolutions returns the number of index-to-index periods the capture spans
// once cued.
func (c *Capture) Revolutions() int {
	if len(c.Index) == 0 {
		return 0
	}
	return len(c.Index) - 1
}

// Duration returns the total sampled time in seconds.
func (c *Capture) Duration() float64 {
	var ticks uint64
	for _, s := range c.Samples {
		ticks += uint64(s)
	}
	return float64(ticks) / c.freq()
}

// MeanRevolution returns the average index-to-index time in seconds, ignoring
// the lead-in before the first pulse.
func (c *Capture) MeanRevolution() float64 {
	if len(c.Index) < 2 {
		return 0
	}
	var ticks uint64
	for _, v := range c.Index[1:] {
		ticks += uint64(v)
	}
	return float64(ticks) / float64(len(c.Index)-1) / c.freq()
}

// CueAtIndex drops the flux before the first index pulse, splitting the
// interval that straddles it, so the capture starts exactly at the index.
func (c *Capture) CueAtIndex() {
	if len(c.Index) == 0 {
		return
	}
	toIndex := int64(c.Index[0])
	i := 0
	for ; i < len(c.Samples); i++ {
		toIndex -= int64(c.Samples[i])
		if toIndex < 0 {
			break
		}
	}
	if toIndex < 0 {
		rest := make([]uint32, 0, len(c.Samples)-i)
		rest = append(rest, uint32(-toIndex))
		c.Samples = append(rest, c.Samples[i+1:]...)
	} else {
		c.Samples = nil
	}
	c.Index = append([]uint32(nil), c.Index[1:]...)
}

// PLL tuning for DecodeBits. The clock may drift at most pllMaxAdj from the
// nominal cell time.
const (
	pllPeriodAdj = 0.05
	pllPhaseAdj  = 0.60
	pllMaxAdj    = 0.10
)

// DecodeBits converts the capture into bitcells with a phase-locked clock.
// Each revolution is first rescaled so it lasts exactly cellsPerRev cells of
// clock seconds, which removes the speed difference between the capturing
// drive and the nominal track; the PLL then follows local changes in cell
// length, adjusting both its period and its phase at every transition. With
// cellsPerRev <= 0 the flux is decoded at clock without rescaling. A cell
// belongs to the revolution its centre falls in. Flux after the final index
// pulse and a revolution cut short by the end of the samples are discarded.
func (c *Capture) DecodeBits(clock float64, cellsPerRev int) (bitstream.Bits, error) {
	if clock <= 0 || math.IsNaN(clock) || math.IsInf(clock, 0) {
		return bitstream.Bits{}, fmt.Errorf("decode flux: invalid clock %v", clock)
	}
	if len(c.Index) == 0 {
		return bitstream.Bits{}, ErrNoIndex
	}

	timeline := c.newTimeline(clock, cellsPerRev)
	minPeriod, maxPeriod := clock*(1-pllMaxAdj), clock*(1+pllMaxAdj)
	period := clock

	// ticks is the time since the centre of the last emitted cell; the
	// capture starts half a cell after the centre of a virtual cell -1.
	ticks := period / 2
	toIndex := timeline.revs[0] + period/2
	rev := 0
	var out []byte
	complete := 0

	for i := range c.Samples {
		ticks += timeline.duration(i)
		if ticks < period/2 {
			continue
		}
		cells := int(math.Floor(ticks/period + 0.5))
		phase := ticks - float64(cells)*period
		step := (float64(cells)*period + phase*pllPhaseAdj) / float64(cells)
		for j := 0; j < cells; j++ {
			toIndex -= step
			for toIndex < 0 {
				rev++
				if rev >= len(timeline.revs) {
					return bitstream.FromCells(out), nil
				}
				complete = len(out)
				toIndex += timeline.revs[rev]
			}
			if j == cells-1 {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}

		if cells <= 4 {
			period += phase * pllPeriodAdj
		} else {
			period += (clock - period) * pllPeriodAdj
		}
		period = min(max(period, minPeriod), maxPeriod)
		ticks = phase * (1 - pllPhaseAdj)
	}
	return bitstream.FromCells(out[:complete]), nil
}

// timeline converts sample intervals to decoder time, applying each
// revolution's rescale factor to the part of an interval inside it.
type timeline struct {
	capture *Capture
	// revs holds every revolution's length in decoder time.
	revs  []float64
	scale []float64
	// rev and left locate the end of the previous sample: its revolution
	// and the ticks remaining before that revolution's index pulse.
	rev  int
	left float64
}

func (c *Capture) newTimeline(clock float64, cellsPerRev int) *timeline {
	tl := &timeline{
		capture: c,
		revs:    make([]float64, len(c.Index)),
		scale:   make([]float64, len(c.Index)),
	}
	freq := c.freq()
	for i, ticks := range c.Index {
		tl.scale[i] = 1 / freq
		if cellsPerRev > 0 && ticks > 0 {
			tl.scale[i] = float64(cellsPerRev) * clock / float64(ticks)
		}
		tl.revs[i] = float64(ticks) * tl.scale[i]
	}
	tl.left = float64(c.Index[0])
	return tl
}

// duration returns the rescaled length of sample i. Samples must be visited
// in order.
func (tl *timeline) duration(i int) float64 {
	ticks := float64(tl.capture.Samples[i])
	var d float64
	for ticks > tl.left && tl.rev < len(tl.revs)-1 {
		d += tl.left * tl.scale[tl.rev]
		ticks -= tl.left
		tl.rev++
		tl.left = float64(tl.capture.Index[tl.rev])
	}
	tl.left -= ticks
	return d + ticks*tl.scale[tl.rev]
}

func (c *Capture) freq() float64 {
	if c.SampleFreq > 0 {
		return c.SampleFreq
	}
	return DefaultSampleFreq
}

// Clone returns a deep copy so a shared capture can be cued independently.
func (c *Capture) Clone() *Capture {
	return &Capture{
		SampleFreq: c.SampleFreq,
		Samples:    append([]uint32(nil), c.Samples...),
		Index:      append([]uint32(nil), c.Index...),
	}
}
