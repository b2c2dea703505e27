package flux

import (
	"math"

	"fluxcheck/internal/track"
)

// SynthOption customizes Synthesize.
type SynthOption func(*synthConfig)

type synthConfig struct {
	revs       int
	rpm        float64
	sampleFreq float64
	leadIn     int
	nominal    uint32
}

// WithRevolutions sets how many full revolutions are captured.
func WithRevolutions(n int) SynthOption {
	return func(c *synthConfig) {
		if n > 0 {
			c.revs = n
		}
	}
}

// WithDriveRPM sets the speed of the simulated drive. It defaults to the
// track's nominal speed.
func WithDriveRPM(rpm float64) SynthOption {
	return func(c *synthConfig) {
		if rpm > 0 {
			c.rpm = rpm
		}
	}
}

// WithSampleFreq sets the tick rate of the simulated reader.
func WithSampleFreq(hz float64) SynthOption {
	return func(c *synthConfig) {
		if hz > 0 {
			c.sampleFreq = hz
		}
	}
}

// WithLeadIn starts the capture this many cells before the first index pulse.
func WithLeadIn(cells int) SynthOption {
	return func(c *synthConfig) {
		if cells >= 0 {
			c.leadIn = cells
		}
	}
}

// WithNominalCellTime sets the timing value of an unscaled cell. It must match
// the value the track was assembled with.
func WithNominalCellTime(v uint32) SynthOption {
	return func(c *synthConfig) {
		if v > 0 {
			c.nominal = v
		}
	}
}

// Synthesize renders t as the capture a drive would read starting at the
// index pulse: the splice-relative track is rotated back to index phase,
// every 1 bit becomes a transition in the middle of its cell, and per-bit
// timing (when present) stretches cells. Flux continues one revolution past
// the final index pulse, as a real reader's would.
func Synthesize(t *track.Track, opts ...SynthOption) *Capture {
	cfg := synthConfig{revs: 2, sampleFreq: DefaultSampleFreq, nominal: track.NominalCellTime}
	if t != nil && t.RotationPeriod > 0 {
		cfg.rpm = 60 / t.RotationPeriod
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if t == nil || t.Len() == 0 || cfg.rpm <= 0 {
		return &Capture{SampleFreq: cfg.sampleFreq}
	}

	n := t.Len()
	raw := t.Bits.RotateRight(t.SpliceOffset)
	var timing []uint32
	if t.Timing != nil {
		timing = rotateRight(t.Timing, t.SpliceOffset%n)
	}
	cell := 60 / cfg.rpm / float64(n)
	duration := func(j int) float64 {
		if timing == nil {
			return cell
		}
		return cell * float64(timing[j]) / float64(cfg.nominal)
	}

	capture := &Capture{SampleFreq: cfg.sampleFreq}
	toTicks := func(seconds float64) int64 {
		return int64(math.Round(seconds * cfg.sampleFreq))
	}

	now := 0.0
	lastTick := int64(0)
	lastIndexTick := int64(0)
	emit := func(j int) {
		d := duration(j)
		if raw.At(j) == 1 {
			tick := toTicks(now + d/2)
			if tick <= lastTick {
				tick = lastTick + 1
			}
			capture.Samples = append(capture.Samples, uint32(tick-lastTick))
			lastTick = tick
		}
		now += d
	}
	markIndex := func() {
		tick := toTicks(now)
		capture.Index = append(capture.Index, uint32(tick-lastIndexTick))
		lastIndexTick = tick
	}

	lead := cfg.leadIn % n
	for j := n - lead; j < n; j++ {
		emit(j)
	}
	markIndex()
	for r := 0; r < cfg.revs; r++ {
		for j := 0; j < n; j++ {
			emit(j)
		}
		markIndex()
	}
	for j := 0; j < n; j++ {
		emit(j)
	}
	return capture
}

func rotateRight(v []uint32, k int) []uint32 {
	n := len(v)
	if n == 0 {
		return nil
	}
	k = ((n-k)%n + n) % n
	out := make([]uint32, 0, n)
	out = append(out, v[k:]...)
	return append(out, v[:k]...)
}
