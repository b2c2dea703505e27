// Package flux models raw flux captures: the tick intervals between magnetic
// transitions plus the index pulse positions, as sampled by a flux reader.
//
// Capture satisfies track.Capture so verification can cue a reading to the
// index and decode it at a track's cell rate. Synthesize goes the other way
// and renders a Track as the capture an ideal drive would produce, which is
// how round trips are exercised without hardware. Captures persist in a small
// little-endian file format (see Save and Load).
package flux
