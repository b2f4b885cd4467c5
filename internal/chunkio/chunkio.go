// Package chunkio reads and writes the chunk container used for large files:
//
//	count:u32LE ++ (len:u32LE ++ bytes) * count
//
// Both the parallel compressor and the chunked cipher emit this framing.
package chunkio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrMalformed is returned when the framing is truncated or inconsistent.
var ErrMalformed = errors.New("malformed chunk container")

// MaxChunkLen bounds a single frame so a corrupt header cannot trigger a huge allocation.
const MaxChunkLen = 256 << 20

// Writer emits a container whose chunk count is known up front.
type Writer struct {
	w       io.Writer
	count   uint32
	written uint32
	n       int64
}

// NewWriter writes the chunk count header and returns a Writer that expects
// exactly count calls to WriteChunk.
func NewWriter(w io.Writer, count int) (*Writer, error) {
	if count < 0 || int64(count) > math.MaxUint32 {
		return nil, fmt.Errorf("chunk count out of range: %d", count)
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(count))
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("writing chunk count: %w", err)
	}
	return &Writer{w: w, count: uint32(count), n: 4}, nil
}

// WriteChunk appends one length-prefixed frame.
func (cw *Writer) WriteChunk(p []byte) error {
	if cw.written == cw.count {
		return fmt.Errorf("container already holds %d chunks", cw.count)
	}
	if len(p) > MaxChunkLen {
		return fmt.Errorf("chunk too large: %d bytes", len(p))
	}
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(p)))
	if _, err := cw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("writing chunk length: %w", err)
	}
	if _, err := cw.w.Write(p); err != nil {
		return fmt.Errorf("writing chunk: %w", err)
	}
	cw.written++
	cw.n += 4 + int64(len(p))
	return nil
}

// Close verifies every announced chunk was written.
func (cw *Writer) Close() error {
	if cw.written != cw.count {
		return fmt.Errorf("container announced %d chunks, wrote %d", cw.count, cw.written)
	}
	return nil
}

// BytesWritten reports the container size so far, header included.
func (cw *Writer) BytesWritten() int64 { return cw.n }

// Reader walks a container frame by frame.
type Reader struct {
	r     io.Reader
	count uint32
	read  uint32
}

// NewReader consumes the chunk count header.
func NewReader(r io.Reader) (*Reader, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: reading chunk count: %v", ErrMalformed, err)
	}
	return &Reader{r: r, count: binary.LittleEndian.Uint32(hdr[:])}, nil
}

// Count returns the number of chunks announced by the header.
func (cr *Reader) Count() int { return int(cr.count) }

// Next returns the next chunk, or io.EOF once all announced chunks are read.
func (cr *Reader) Next() ([]byte, error) {
	if cr.read == cr.count {
		return nil, io.EOF
	}
	var hdr [4]byte
	if _, err := io.ReadFull(cr.r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: chunk %d length: %v", ErrMalformed, cr.read, err)
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxChunkLen {
		return nil, fmt.Errorf("%w: chunk %d claims %d bytes", ErrMalformed, cr.read, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return nil, fmt.Errorf("%w: chunk %d body: %v", ErrMalformed, cr.read, err)
	}
	cr.read++
	return buf, nil
}

// ChunkCount returns how many chunkSize pieces cover size bytes.
func ChunkCount(size, chunkSize int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// Overhead is the framing cost of a container with count chunks.
func Overhead(count int) int64 {
	return 4 + 4*int64(count)
}
