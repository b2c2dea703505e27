// Package track turns raw per-track decoder output into splice-relative Track
// values and checks fresh flux captures against them.
//
// Assemble normalizes the decoder's index-relative data: it unpacks the bit
// buffer, expands per-byte timing to per-bit timing, and rotates everything so
// position 0 sits at the write splice. StrongRanges walks the sector and weak
// range lists to find the parts of each sector that must read back exactly.
// Verifier resamples a capture to the track's cell rate and searches each
// strong range within a tolerance window.
//
// Every function here is a pure transform over in-memory data. A Track is
// never modified after Assemble returns and can be shared between goroutines.
package track
