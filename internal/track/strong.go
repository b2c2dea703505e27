package track

import "iter"

// DefaultWeakTolerance is the number of bitcells skipped after every weak
// range while the read channel settles.
const DefaultWeakTolerance = 16

// weakSentinel lies beyond any real track so the merge walk never runs out of
// weak windows.
const weakSentinel = 1 << 30

// StrongRanges yields the parts of the sector ranges that do not intersect any
// weak range extended by weakTolerance bits. Both inputs must be ascending and
// disjoint. Output is ascending, disjoint and never contains empty ranges.
func StrongRanges(sectors, weak []Range, weakTolerance int) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		wi := 0
		nextWeak := func() (int, int) {
			if wi >= len(weak) {
				return weakSentinel, weakSentinel + 1 + weakTolerance
			}
			w := weak[wi]
			wi++
			return w.Start, w.End() + weakTolerance
		}

		ws, we := -1, -1
		for _, sector := range sectors {
			s, e := sector.Start, sector.End()
			for s < e {
				for we <= s {
					ws, we = nextWeak()
				}
				if ws < e {
					if s < ws {
						if !yield(Range{Start: s, Length: ws - s}) {
							return
						}
					}
					s = we
					continue
				}
				if !yield(Range{Start: s, Length: e - s}) {
					return
				}
				s = e
			}
		}
	}
}

// CollectStrongRanges materializes StrongRanges into a slice.
func CollectStrongRanges(sectors, weak []Range, weakTolerance int) []Range {
	var out []Range
	for r := range StrongRanges(sectors, weak, weakTolerance) {
		out = append(out, r)
	}
	return out
}
