package track

import (
	"errors"
	"fmt"
)

// ErrInvalidRange marks a range list that breaks the ordering or bounds
// guarantees Track relies on.
var ErrInvalidRange = errors.New("invalid bit range")

// Range is the half-open interval [Start, Start+Length) of bit offsets on a
// single revolution.
type Range struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the first offset past the range.
func (r Range) End() int { return r.Start + r.Length }

// Empty reports whether the range covers no bits.
func (r Range) Empty() bool { return r.Length <= 0 }

// Contains reports whether offset lies inside the range.
func (r Range) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End()
}

// Overlaps reports whether r and other share at least one bit.
func (r Range) Overlaps(other Range) bool {
	if r.Empty() || other.Empty() {
		return false
	}
	return r.Start < other.End() && other.Start < r.End()
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End())
}

// validateRanges checks that ranges are ascending, disjoint and inside
// [0, limit).
func validateRanges(name string, ranges []Range, limit int) error {
	prevEnd := 0
	for i, r := range ranges {
		if r.Start < 0 || r.Length < 0 {
			return fmt.Errorf("%w: %s[%d] %v is negative", ErrInvalidRange, name, i, r)
		}
		if r.End() > limit {
			return fmt.Errorf("%w: %s[%d] %v exceeds track length %d", ErrInvalidRange, name, i, r, limit)
		}
		if i > 0 && r.Start < prevEnd {
			return fmt.Errorf("%w: %s[%d] %v overlaps or precedes the previous range", ErrInvalidRange, name, i, r)
		}
		prevEnd = r.End()
	}
	return nil
}
