package encryption

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"securevault/internal/chunkio"
	"securevault/internal/vaulterr"
)

// DefaultChunkSize is the plaintext size of one chunk in the chunked format.
const DefaultChunkSize = 32 << 20

// ChunkedSize returns the on-disk size of size plaintext bytes in the
// chunked format.
func ChunkedSize(size, chunkSize int64) int64 {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	n := chunkio.ChunkCount(size, chunkSize)
	return chunkio.Overhead(n) + int64(n)*Overhead + size
}

func poolSize(count, limit int) int {
	n := min(count, runtime.NumCPU())
	if limit > 0 {
		n = min(n, limit)
	}
	return max(n, 1)
}

// EncryptChunked reads size bytes from src and writes a chunk container to
// dst. Chunk i is sealed under DeriveChunkKey(master, fileID, i). Chunks are
// read sequentially and sealed in parallel batches; ctx is checked between
// batches. It returns the number of bytes written.
func EncryptChunked(ctx context.Context, dst io.Writer, src io.Reader, size int64, master *Key, fileID uuid.UUID, chunkSize int64, maxWorkers int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if master.Wiped() {
		return 0, vaulterr.New(vaulterr.CodeNoMasterKey, "EncryptChunked")
	}
	count := chunkio.ChunkCount(size, chunkSize)
	if count == 0 {
		return 0, vaulterr.New(vaulterr.CodeInvalidData, "EncryptChunked")
	}
	cw, err := chunkio.NewWriter(dst, count)
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "EncryptChunked", err)
	}

	workers := poolSize(count, maxWorkers)
	batch := make([][]byte, workers)
	for start := 0; start < count; start += workers {
		if err := ctx.Err(); err != nil {
			return cw.BytesWritten(), err
		}
		end := min(start+workers, count)
		for i := start; i < end; i++ {
			off := int64(i) * chunkSize
			buf := make([]byte, min(chunkSize, size-off))
			if _, err := io.ReadFull(src, buf); err != nil {
				return cw.BytesWritten(), vaulterr.Wrap(vaulterr.CodeFileReadFailed, "EncryptChunked", fmt.Errorf("chunk %d: %w", i, err))
			}
			batch[i-start] = buf
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				key, err := DeriveChunkKey(master, fileID, uint32(i))
				if err != nil {
					return err
				}
				defer key.Wipe()
				sealed, err := Encrypt(batch[i-start], key.Bytes())
				if err != nil {
					return fmt.Errorf("sealing chunk %d: %w", i, err)
				}
				clear(batch[i-start])
				batch[i-start] = sealed
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return cw.BytesWritten(), err
		}

		for i := start; i < end; i++ {
			if err := cw.WriteChunk(batch[i-start]); err != nil {
				return cw.BytesWritten(), vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "EncryptChunked", err)
			}
			batch[i-start] = nil
		}
	}
	if err := cw.Close(); err != nil {
		return cw.BytesWritten(), vaulterr.Wrap(vaulterr.CodeEncryptionFailed, "EncryptChunked", err)
	}
	return cw.BytesWritten(), nil
}

// DecryptChunked reverses EncryptChunked, writing plaintext to dst in order.
// A chunk that fails authentication aborts the whole read with
// DecryptionFailed; chunks already written to dst are not retracted, so
// callers stage output and discard it on error.
func DecryptChunked(ctx context.Context, dst io.Writer, src io.Reader, master *Key, fileID uuid.UUID, maxWorkers int) (int64, error) {
	if master.Wiped() {
		return 0, vaulterr.New(vaulterr.CodeNoMasterKey, "DecryptChunked")
	}
	cr, err := chunkio.NewReader(src)
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeInvalidData, "DecryptChunked", err)
	}
	count := cr.Count()
	workers := poolSize(count, maxWorkers)
	batch := make([][]byte, workers)
	var total int64

	for start := 0; start < count; start += workers {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(start+workers, count)
		for i := start; i < end; i++ {
			frame, err := cr.Next()
			if err != nil {
				return total, vaulterr.Wrap(vaulterr.CodeInvalidData, "DecryptChunked", err)
			}
			batch[i-start] = frame
		}

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				key, err := DeriveChunkKey(master, fileID, uint32(i))
				if err != nil {
					return err
				}
				defer key.Wipe()
				plain, err := Decrypt(batch[i-start], key.Bytes())
				if err != nil {
					return err
				}
				batch[i-start] = plain
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return total, err
		}

		for i := start; i < end; i++ {
			n, err := dst.Write(batch[i-start])
			total += int64(n)
			if err != nil {
				return total, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "DecryptChunked", err)
			}
			batch[i-start] = nil
		}
	}
	return total, nil
}
