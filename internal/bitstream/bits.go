// Package bitstream holds the bit sequences tracks and flux decodes are
// expressed in.
//
// A Bits value stores one byte per bitcell (0 or 1). Tracks are at most a few
// hundred thousand cells long, so the unpacked form keeps slicing, rotation
// and subsequence search simple without a measurable cost.
package bitstream

import (
	"bytes"
	"strings"
)

// Bits is an ordered sequence of bitcells. Values are treated as immutable:
// every operation that changes order or length returns a new Bits.
type Bits struct {
	cells []byte
}

// FromBytes unpacks buf as a big-endian bit sequence truncated to exactly n
// bits. Missing trailing bytes read as zero. The result never aliases buf.
func FromBytes(buf []byte, n int) Bits {
	if n <= 0 {
		return Bits{}
	}
	cells := make([]byte, n)
	for i := 0; i < n; i++ {
		byteIdx := i >> 3
		if byteIdx >= len(buf) {
			break
		}
		cells[i] = (buf[byteIdx] >> (7 - uint(i&7))) & 1
	}
	return Bits{cells: cells}
}

// FromCells copies a slice of 0/1 values. Any non-zero value counts as 1.
func FromCells(cells []byte) Bits {
	out := make([]byte, len(cells))
	for i, c := range cells {
		if c != 0 {
			out[i] = 1
		}
	}
	return Bits{cells: out}
}

// Parse builds Bits from a string of '0' and '1' characters; any other
// character is skipped so callers can group digits with spaces or underscores.
func Parse(s string) Bits {
	cells := make([]byte, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			cells = append(cells, 0)
		case '1':
			cells = append(cells, 1)
		}
	}
	return Bits{cells: cells}
}

// Len returns the number of bitcells.
func (b Bits) Len() int { return len(b.cells) }

// At returns the value of cell i.
func (b Bits) At(i int) byte { return b.cells[i] }

// Cells returns a copy of the underlying cells.
func (b Bits) Cells() []byte {
	out := make([]byte, len(b.cells))
	copy(out, b.cells)
	return out
}

// Slice returns cells [start, end), clamped to the sequence bounds. The
// result shares storage with b, which is safe because Bits is never mutated.
func (b Bits) Slice(start, end int) Bits {
	if start < 0 {
		start = 0
	}
	if end > len(b.cells) {
		end = len(b.cells)
	}
	if start >= end {
		return Bits{}
	}
	return Bits{cells: b.cells[start:end:end]}
}

// RotateLeft moves the first k cells to the end. k is taken modulo the length.
func (b Bits) RotateLeft(k int) Bits {
	n := len(b.cells)
	if n == 0 {
		return Bits{}
	}
	k %= n
	if k < 0 {
		k += n
	}
	out := make([]byte, 0, n)
	out = append(out, b.cells[k:]...)
	out = append(out, b.cells[:k]...)
	return Bits{cells: out}
}

// RotateRight is the inverse of RotateLeft.
func (b Bits) RotateRight(k int) Bits {
	return b.RotateLeft(-k)
}

// Concat returns b followed by other.
func (b Bits) Concat(other Bits) Bits {
	out := make([]byte, 0, len(b.cells)+len(other.cells))
	out = append(out, b.cells...)
	out = append(out, other.cells...)
	return Bits{cells: out}
}

// Invert returns a copy with cells [start, end) flipped.
func (b Bits) Invert(start, end int) Bits {
	out := b.Cells()
	if start < 0 {
		start = 0
	}
	if end > len(out) {
		end = len(out)
	}
	for i := start; i < end; i++ {
		out[i] ^= 1
	}
	return Bits{cells: out}
}

// Equal reports whether both sequences hold the same cells.
func (b Bits) Equal(other Bits) bool {
	return bytes.Equal(b.cells, other.cells)
}

// Index returns the offset of the first occurrence of sub in b, or -1.
// An empty sub matches at offset 0.
func (b Bits) Index(sub Bits) int {
	return bytes.Index(b.cells, sub.cells)
}

// Contains reports whether sub occurs anywhere in b.
func (b Bits) Contains(sub Bits) bool {
	return b.Index(sub) >= 0
}

// Bytes packs the sequence back into big-endian bytes, zero padding the
// final byte.
func (b Bits) Bytes() []byte {
	out := make([]byte, (len(b.cells)+7)/8)
	for i, c := range b.cells {
		if c != 0 {
			out[i>>3] |= 1 << (7 - uint(i&7))
		}
	}
	return out
}

// String renders the cells as '0'/'1' characters.
func (b Bits) String() string {
	var sb strings.Builder
	sb.Grow(len(b.cells))
	for _, c := range b.cells {
		sb.WriteByte('0' + c)
	}
	return sb.String()
}
