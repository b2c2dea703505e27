package testsupport

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"fluxcheck/internal/track"
)

// FakeHelper plays the track-decoding helper for tests. It answers the robot
// protocol from in-memory tracks and records every call.
type FakeHelper struct {
	// Image is the IMG payload returned by load.
	Image string
	// Tracks maps "cyl.head" to the raw track returned by lock. A track with a
	// nil Buffer is reported as unformatted.
	Tracks map[string]*track.RawTrack
	// Failures maps an operation to the ERR detail it reports.
	Failures map[string]string

	mu    sync.Mutex
	calls []string
}

// DefaultImage describes an 84 cylinder, two head Amiga image.
const DefaultImage = "1,1234,1,0,83,0,1,2005,6,1,10,20,30,1,0,0,0"

// NewFakeHelper returns a helper serving the given tracks.
func NewFakeHelper(tracks ...*track.RawTrack) *FakeHelper {
	h := &FakeHelper{Image: DefaultImage, Tracks: map[string]*track.RawTrack{}, Failures: map[string]string{}}
	for _, raw := range tracks {
		h.Tracks[fmt.Sprintf("%d.%d", raw.Cylinder, raw.Head)] = raw
	}
	return h
}

// Calls returns the operations invoked so far.
func (h *FakeHelper) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Run implements caps.Executor.
func (h *FakeHelper) Run(_ context.Context, _ string, args []string, onStdout func(string)) error {
	if len(args) < 2 {
		return fmt.Errorf("fake helper: missing operation")
	}
	op := args[1]
	h.mu.Lock()
	h.calls = append(h.calls, op)
	h.mu.Unlock()

	if detail, ok := h.Failures[op]; ok {
		onStdout(fmt.Sprintf("ERR:%s,-1,%s", op, detail))
		return fmt.Errorf("exit status 1")
	}

	switch op {
	case "load":
		onStdout("IMG:" + h.Image)
	case "lock":
		if len(args) < 4 {
			return fmt.Errorf("fake helper: lock needs a track reference")
		}
		raw, ok := h.Tracks[args[3]]
		if !ok {
			cyl, head, _ := strings.Cut(args[3], ".")
			onStdout(fmt.Sprintf("TRK:%s,%s,0,0,0,0,0", cyl, head))
			return nil
		}
		for _, line := range TrackLines(raw) {
			onStdout(line)
		}
	}
	return nil
}

// TrackLines renders raw as helper protocol records.
func TrackLines(raw *track.RawTrack) []string {
	lines := []string{fmt.Sprintf("TRK:%d,%d,%d,%d,%d,%d,%d",
		raw.Cylinder, raw.Head, raw.BitLen, raw.Overlap, len(raw.Sectors), len(raw.Weak), len(raw.Timing))}
	if raw.Buffer != nil {
		lines = append(lines, "BUF:"+hex.EncodeToString(raw.Buffer))
	}
	if len(raw.Timing) > 0 {
		values := make([]string, len(raw.Timing))
		for i, v := range raw.Timing {
			values[i] = strconv.FormatUint(uint64(v), 10)
		}
		lines = append(lines, "TIM:"+strings.Join(values, " "))
	}
	for i, r := range raw.Sectors {
		lines = append(lines, fmt.Sprintf("SEC:%d,%d,%d", i, r.Start, r.Length))
	}
	for i, r := range raw.Weak {
		lines = append(lines, fmt.Sprintf("WEAK:%d,%d,%d", i, r.Start, r.Length))
	}
	return lines
}
