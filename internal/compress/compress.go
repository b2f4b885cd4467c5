// Package compress implements the gzip stage of the content pipeline.
//
// Three variants share one policy: single-shot Compress for in-memory
// content, CompressStream for bounded-memory streaming, and
// CompressParallel which writes independent gzip chunks into a
// chunk-count-prefixed container. The container is a different on-disk
// format from a single gzip stream and callers record which one they used.
package compress

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"securevault/internal/vaulterr"
)

// DefaultThreshold is the smallest size considered for compression.
const DefaultThreshold = 1024

// DefaultExcluded lists extensions of formats that are already compressed.
var DefaultExcluded = []string{
	"zip", "gz", "tgz", "bz2", "xz", "7z", "rar", "zst",
	"jpg", "jpeg", "png", "gif", "webp", "heic",
	"mp3", "aac", "ogg", "flac", "m4a",
	"mp4", "mkv", "avi", "mov", "webm",
	"pdf", "docx", "xlsx", "pptx",
}

// Options configures the compression policy.
type Options struct {
	Enabled   bool
	Level     int
	Threshold int64
	Excluded  []string
}

// DefaultOptions returns the policy used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Enabled:   true,
		Level:     gzip.DefaultCompression,
		Threshold: DefaultThreshold,
		Excluded:  DefaultExcluded,
	}
}

// Engine applies the policy and performs compression. It holds no mutable
// state and is safe for concurrent use.
type Engine struct {
	enabled   bool
	level     int
	threshold int64
	excluded  map[string]struct{}
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Level < gzip.HuffmanOnly || opts.Level > gzip.BestCompression {
		return nil, fmt.Errorf("invalid compression level: %d", opts.Level)
	}
	if opts.Threshold < 0 {
		return nil, fmt.Errorf("invalid compression threshold: %d", opts.Threshold)
	}
	excluded := make(map[string]struct{}, len(opts.Excluded))
	for _, ext := range opts.Excluded {
		excluded[normalizeExt(ext)] = struct{}{}
	}
	return &Engine{
		enabled:   opts.Enabled,
		level:     opts.Level,
		threshold: opts.Threshold,
		excluded:  excluded,
	}, nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// ShouldCompress is a pure function of its inputs: false when disabled,
// below the threshold, or for an excluded extension (case-insensitive).
func (e *Engine) ShouldCompress(size int64, ext string) bool {
	if !e.enabled {
		return false
	}
	if size < e.threshold {
		return false
	}
	if _, ok := e.excluded[normalizeExt(ext)]; ok {
		return false
	}
	return true
}

// Result describes one compression attempt.
type Result struct {
	OriginalSize   int64
	CompressedSize int64
}

// SpaceSaved is positive only when compression made the data smaller.
func (r Result) SpaceSaved() int64 {
	return r.OriginalSize - r.CompressedSize
}

// Beneficial reports whether the compressed form should be kept.
func (r Result) Beneficial() bool {
	return r.SpaceSaved() > 0
}

// Ratio is compressed/original, or 1 for empty input.
func (r Result) Ratio() float64 {
	if r.OriginalSize == 0 {
		return 1
	}
	return float64(r.CompressedSize) / float64(r.OriginalSize)
}

// Compress gzips data. The output is returned even when it is not smaller;
// callers inspect Result.Beneficial and keep the original otherwise.
func (e *Engine) Compress(data []byte) ([]byte, Result, error) {
	out, err := gzipBytes(data, e.level)
	if err != nil {
		return nil, Result{}, vaulterr.Wrap(vaulterr.CodeCompressFailed, "Compress", err)
	}
	return out, Result{OriginalSize: int64(len(data)), CompressedSize: int64(len(out))}, nil
}

// Decompress reverses Compress.
func (e *Engine) Decompress(data []byte) ([]byte, error) {
	return gunzipBytes(data)
}

func gzipBytes(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)
	zw, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, fmt.Errorf("compressing data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeInvalidCompressed, "Decompress", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeDecompressFailed, "Decompress", err)
	}
	return out, nil
}
