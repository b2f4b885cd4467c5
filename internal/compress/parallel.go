package compress

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/sync/errgroup"

	"securevault/internal/chunkio"
	"securevault/internal/vaulterr"
)

// DefaultParallelChunkSize is the chunk size of the parallel container.
const DefaultParallelChunkSize = 32 << 20

// Workers returns the pool size for count chunks: min(count, NumCPU), and
// never more than limit when limit is positive.
func Workers(count, limit int) int {
	n := min(count, runtime.NumCPU())
	if limit > 0 {
		n = min(n, limit)
	}
	return max(n, 1)
}

// CompressParallel splits size bytes of src into chunkSize pieces, gzips
// them independently and writes the container to dst in chunk order.
// Chunks are processed in batches of the worker count; ctx is checked
// between batches and a started chunk always runs to completion.
func (e *Engine) CompressParallel(ctx context.Context, dst io.Writer, src io.ReaderAt, size, chunkSize int64, maxWorkers int) (Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultParallelChunkSize
	}
	count := chunkio.ChunkCount(size, chunkSize)
	cw, err := chunkio.NewWriter(dst, count)
	if err != nil {
		return Result{}, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CompressParallel", err)
	}
	workers := Workers(count, maxWorkers)
	out := make([][]byte, workers)

	for start := 0; start < count; start += workers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := min(start+workers, count)

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				off := int64(i) * chunkSize
				buf := make([]byte, min(chunkSize, size-off))
				if n, err := src.ReadAt(buf, off); n < len(buf) {
					if err == nil {
						err = io.ErrUnexpectedEOF
					}
					return vaulterr.Wrap(vaulterr.CodeFileReadFailed, "CompressParallel", fmt.Errorf("chunk %d: %w", i, err))
				}
				z, err := gzipBytes(buf, e.level)
				if err != nil {
					return vaulterr.Wrap(vaulterr.CodeCompressFailed, "CompressParallel", fmt.Errorf("chunk %d: %w", i, err))
				}
				out[i-start] = z
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Result{}, err
		}

		for i := start; i < end; i++ {
			if err := cw.WriteChunk(out[i-start]); err != nil {
				return Result{}, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CompressParallel", err)
			}
			out[i-start] = nil
		}
	}
	if err := cw.Close(); err != nil {
		return Result{}, vaulterr.Wrap(vaulterr.CodeCompressFailed, "CompressParallel", err)
	}
	return Result{OriginalSize: size, CompressedSize: cw.BytesWritten()}, nil
}

// DecompressContainer reads a container written by CompressParallel and
// writes the plaintext to dst in chunk order.
func (e *Engine) DecompressContainer(ctx context.Context, dst io.Writer, src io.Reader, maxWorkers int) (int64, error) {
	cr, err := chunkio.NewReader(src)
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeInvalidCompressed, "DecompressContainer", err)
	}
	count := cr.Count()
	workers := Workers(count, maxWorkers)
	frames := make([][]byte, workers)
	var total int64

	for start := 0; start < count; start += workers {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(start+workers, count)
		for i := start; i < end; i++ {
			f, err := cr.Next()
			if err != nil {
				return total, vaulterr.Wrap(vaulterr.CodeInvalidCompressed, "DecompressContainer", err)
			}
			frames[i-start] = f
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				plain, err := gunzipBytes(frames[i-start])
				if err != nil {
					return fmt.Errorf("chunk %d: %w", i, err)
				}
				frames[i-start] = plain
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return total, err
		}

		for i := start; i < end; i++ {
			n, err := dst.Write(frames[i-start])
			total += int64(n)
			if err != nil {
				return total, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "DecompressContainer", err)
			}
			frames[i-start] = nil
		}
	}
	return total, nil
}
