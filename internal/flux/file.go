package flux

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"fluxcheck/internal/fileutil"
)

const (
	fileMagic   = "FLUX"
	fileVersion = 1
	// maxEntries bounds array lengths read from a file header.
	maxEntries = 1 << 26
	// readChunk is how many entries Load reads at a time.
	readChunk = 1 << 16
)

// ErrInvalidCapture marks a capture file that cannot be parsed.
var ErrInvalidCapture = errors.New("invalid flux capture")

type fileHeader struct {
	Magic      [4]byte
	Version    uint16
	_          uint16
	SampleFreq float64
	IndexCount uint32
	FluxCount  uint32
}

// Save writes c in the capture file format: a fixed little-endian header
// followed by the index and sample arrays as uint32 values.
func Save(w io.Writer, c *Capture) error {
	if c == nil {
		return errors.New("save capture: nil capture")
	}
	hdr := fileHeader{
		Version:    fileVersion,
		SampleFreq: c.freq(),
		IndexCount: uint32(len(c.Index)),
		FluxCount:  uint32(len(c.Samples)),
	}
	copy(hdr.Magic[:], fileMagic)

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("write capture header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, c.Index); err != nil {
		return fmt.Errorf("write index list: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, c.Samples); err != nil {
		return fmt.Errorf("write flux samples: %w", err)
	}
	return bw.Flush()
}

// Load reads a capture written by Save.
func Load(r io.Reader) (*Capture, error) {
	br := bufio.NewReader(r)
	var hdr fileHeader
	if err := binary.Read(br, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrInvalidCapture, err)
	}
	if string(hdr.Magic[:]) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrInvalidCapture, hdr.Magic[:])
	}
	if hdr.Version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidCapture, hdr.Version)
	}
	if hdr.SampleFreq <= 0 || math.IsNaN(hdr.SampleFreq) || math.IsInf(hdr.SampleFreq, 0) {
		return nil, fmt.Errorf("%w: sample frequency %v", ErrInvalidCapture, hdr.SampleFreq)
	}
	if hdr.IndexCount > maxEntries || hdr.FluxCount > maxEntries {
		return nil, fmt.Errorf("%w: implausible sizes (index=%d flux=%d)", ErrInvalidCapture, hdr.IndexCount, hdr.FluxCount)
	}

	index, err := readWords(br, hdr.IndexCount)
	if err != nil {
		return nil, fmt.Errorf("%w: read index list: %v", ErrInvalidCapture, err)
	}
	samples, err := readWords(br, hdr.FluxCount)
	if err != nil {
		return nil, fmt.Errorf("%w: read flux samples: %v", ErrInvalidCapture, err)
	}
	return &Capture{SampleFreq: hdr.SampleFreq, Index: index, Samples: samples}, nil
}

// readWords reads count uint32 values. Memory grows with the data actually
// read, so a header claiming more entries than the file holds costs at most
// one chunk.
func readWords(r io.Reader, count uint32) ([]uint32, error) {
	out := make([]uint32, 0, min(count, readChunk))
	chunk := make([]uint32, min(count, readChunk))
	for remaining := count; remaining > 0; {
		part := chunk[:min(remaining, readChunk)]
		if err := binary.Read(r, binary.LittleEndian, part); err != nil {
			return nil, err
		}
		out = append(out, part...)
		remaining -= uint32(len(part))
	}
	return out, nil
}

// LoadFile reads a capture from path.
func LoadFile(path string) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// SaveFile writes c to path atomically.
func SaveFile(path string, c *Capture) error {
	var buf bytes.Buffer
	if err := Save(&buf, c); err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}
