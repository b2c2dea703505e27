package caps

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fluxcheck/internal/services"
	"fluxcheck/internal/track"
)

// CallError reports a failed helper operation.
type CallError struct {
	Op     string
	Code   int
	Detail string
	Err    error
}

func (e *CallError) Error() string {
	msg := fmt.Sprintf("caps %s failed (code %d)", e.Op, e.Code)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *CallError) Unwrap() error { return e.Err }

// Is lets errors.Is classify helper failures as external tool errors.
func (e *CallError) Is(target error) bool {
	return target == services.ErrExternalTool
}

// parseCallError decodes "op,code,detail". The detail may contain commas.
func parseCallError(fallbackOp, payload string) *CallError {
	parts := strings.SplitN(payload, ",", 3)
	ce := &CallError{Op: fallbackOp, Code: -1}
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		ce.Op = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		if code, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			ce.Code = code
		}
	}
	if len(parts) > 2 {
		ce.Detail = strings.TrimSpace(parts[2])
	}
	return ce
}

// ImageInfo describes a loaded image.
type ImageInfo struct {
	Type        int        `json:"type"`
	Release     int        `json:"release"`
	Revision    int        `json:"revision"`
	MinCylinder int        `json:"min_cylinder"`
	MaxCylinder int        `json:"max_cylinder"`
	MinHead     int        `json:"min_head"`
	MaxHead     int        `json:"max_head"`
	Created     time.Time  `json:"created"`
	Platforms   []Platform `json:"platforms"`
}

// HasTrack reports whether the cylinder/head pair lies inside the image.
func (i ImageInfo) HasTrack(cylinder, head int) bool {
	return cylinder >= i.MinCylinder && cylinder <= i.MaxCylinder &&
		head >= i.MinHead && head <= i.MaxHead
}

// SPSID formats the preservation release identifier.
func (i ImageInfo) SPSID() string {
	return fmt.Sprintf("%04d (rev %d)", i.Release, i.Revision)
}

func parseImageInfo(payload string) (*ImageInfo, error) {
	fields := strings.Split(payload, ",")
	if len(fields) != 17 {
		return nil, fmt.Errorf("IMG: expected 17 fields, got %d", len(fields))
	}
	vals, err := atoiAll(fields)
	if err != nil {
		return nil, fmt.Errorf("IMG: %w", err)
	}
	info := &ImageInfo{
		Type:        vals[0],
		Release:     vals[1],
		Revision:    vals[2],
		MinCylinder: vals[3],
		MaxCylinder: vals[4],
		MinHead:     vals[5],
		MaxHead:     vals[6],
	}
	if vals[7] > 0 {
		info.Created = time.Date(vals[7], time.Month(vals[8]), vals[9], vals[10], vals[11], vals[12], 0, time.UTC)
	}
	// A zero entry ends the list unless it is the first.
	for i, p := range vals[13:] {
		if p == 0 && i != 0 {
			break
		}
		info.Platforms = append(info.Platforms, Platform(p))
	}
	return info, nil
}

func parseTrack(lines []string) (*track.RawTrack, error) {
	var (
		raw       *track.RawTrack
		sectorCnt int
		weakCnt   int
		timeLen   int
	)
	for _, line := range lines {
		tag, payload, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch tag {
		case "BUF", "TIM", "SEC", "WEAK":
			if raw == nil {
				return nil, fmt.Errorf("%s before TRK", tag)
			}
		}
		switch tag {
		case "TRK":
			vals, err := atoiAll(strings.Split(payload, ","))
			if err != nil || len(vals) != 7 {
				return nil, fmt.Errorf("TRK: malformed header %q", payload)
			}
			raw = &track.RawTrack{Cylinder: vals[0], Head: vals[1], BitLen: vals[2], Overlap: vals[3]}
			sectorCnt, weakCnt, timeLen = vals[4], vals[5], vals[6]
		case "BUF":
			buf, err := hex.DecodeString(strings.TrimSpace(payload))
			if err != nil {
				return nil, fmt.Errorf("BUF: %w", err)
			}
			raw.Buffer = buf
		case "TIM":
			for _, field := range strings.Fields(payload) {
				v, err := strconv.ParseUint(field, 10, 32)
				if err != nil {
					return nil, fmt.Errorf("TIM: %w", err)
				}
				raw.Timing = append(raw.Timing, uint32(v))
			}
		case "SEC", "WEAK":
			r, err := parseRangeLine(payload)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", tag, err)
			}
			if tag == "SEC" {
				raw.Sectors = append(raw.Sectors, r)
			} else {
				raw.Weak = append(raw.Weak, r)
			}
		}
	}
	if raw == nil {
		return nil, errors.New("no TRK record in helper output")
	}
	if raw.Buffer != nil && len(raw.Buffer)*8 < raw.BitLen {
		return nil, fmt.Errorf("BUF holds %d bits, header says %d", len(raw.Buffer)*8, raw.BitLen)
	}
	if len(raw.Sectors) != sectorCnt {
		return nil, fmt.Errorf("expected %d SEC records, got %d", sectorCnt, len(raw.Sectors))
	}
	if len(raw.Weak) != weakCnt {
		return nil, fmt.Errorf("expected %d WEAK records, got %d", weakCnt, len(raw.Weak))
	}
	if len(raw.Timing) != timeLen {
		return nil, fmt.Errorf("expected %d TIM values, got %d", timeLen, len(raw.Timing))
	}
	return raw, nil
}

// parseRangeLine decodes "index,start,size". The index only orders records.
func parseRangeLine(payload string) (track.Range, error) {
	vals, err := atoiAll(strings.Split(payload, ","))
	if err != nil {
		return track.Range{}, err
	}
	if len(vals) != 3 {
		return track.Range{}, fmt.Errorf("expected index,start,size in %q", payload)
	}
	return track.Range{Start: vals[1], Length: vals[2]}, nil
}

func atoiAll(fields []string) ([]int, error) {
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
