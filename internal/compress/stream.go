package compress

import (
	"bufio"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"securevault/internal/vaulterr"
)

// StreamBufferSize bounds memory for the streaming variant.
const StreamBufferSize = 1 << 20

// countingWriter tracks how many bytes reached the destination.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// CompressStream copies src to dst through gzip with 1MB buffered reads and
// writes. When the policy rejects (size, ext) the bytes are copied unchanged
// and compressed is false.
func (e *Engine) CompressStream(dst io.Writer, src io.Reader, size int64, ext string) (res Result, compressed bool, err error) {
	cw := &countingWriter{w: dst}
	buf := make([]byte, StreamBufferSize)

	if !e.ShouldCompress(size, ext) {
		n, err := io.CopyBuffer(cw, src, buf)
		if err != nil {
			return Result{}, false, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "CompressStream", err)
		}
		return Result{OriginalSize: n, CompressedSize: n}, false, nil
	}

	bw := bufio.NewWriterSize(cw, StreamBufferSize)
	zw, err := gzip.NewWriterLevel(bw, e.level)
	if err != nil {
		return Result{}, false, vaulterr.Wrap(vaulterr.CodeCompressFailed, "CompressStream", err)
	}
	n, err := io.CopyBuffer(zw, bufio.NewReaderSize(src, StreamBufferSize), buf)
	if err != nil {
		zw.Close()
		return Result{}, false, vaulterr.Wrap(vaulterr.CodeCompressFailed, "CompressStream", err)
	}
	if err := zw.Close(); err != nil {
		return Result{}, false, vaulterr.Wrap(vaulterr.CodeCompressFailed, "CompressStream", err)
	}
	if err := bw.Flush(); err != nil {
		return Result{}, false, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CompressStream", err)
	}
	return Result{OriginalSize: n, CompressedSize: cw.n}, true, nil
}

// DecompressStream reverses CompressStream for a single gzip stream and
// returns the number of plaintext bytes written.
func (e *Engine) DecompressStream(dst io.Writer, src io.Reader) (int64, error) {
	zr, err := gzip.NewReader(bufio.NewReaderSize(src, StreamBufferSize))
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeInvalidCompressed, "DecompressStream", err)
	}
	defer zr.Close()

	n, err := io.CopyBuffer(dst, zr, make([]byte, StreamBufferSize))
	if err != nil {
		return n, vaulterr.Wrap(vaulterr.CodeDecompressFailed, "DecompressStream", fmt.Errorf("after %d bytes: %w", n, err))
	}
	return n, nil
}
