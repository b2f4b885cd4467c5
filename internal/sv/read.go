package sv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"securevault/internal/checksum"
	"securevault/internal/encryption"
	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

// GetFileContent decrypts and decompresses a file into memory.
func (s *Service) GetFileContent(ctx context.Context, id string) ([]byte, *model.FileEntry, error) {
	var buf bytes.Buffer
	entry, err := s.read(ctx, "GetFileContent", id, &buf)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), entry, nil
}

// ExportFile writes a file's plaintext to destPath. The content is staged
// in a temporary file next to destPath and renamed into place only after
// the checksum has been verified, so a failed export leaves nothing
// behind. An existing destPath is never overwritten.
func (s *Service) ExportFile(ctx context.Context, id, destPath string) (*model.FileEntry, error) {
	if _, err := os.Stat(destPath); err == nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "ExportFile",
			fmt.Errorf("output file already exists: %s", destPath))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "ExportFile", err)
	}

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "ExportFile", fmt.Errorf("creating output directory: %w", err))
	}
	tmp, err := os.CreateTemp(dir, ".securevault-export-*")
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "ExportFile", fmt.Errorf("creating temp file: %w", err))
	}
	tmpPath := tmp.Name()

	entry, err := s.read(ctx, "ExportFile", id, tmp)
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "ExportFile", cerr)
	}
	if err == nil {
		err = os.Rename(tmpPath, destPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	s.logger.Info("file exported", "id", id, "dest", destPath)
	return entry, nil
}

// read streams the plaintext of a live file to dst and verifies its size
// and checksum. dst may have received data when an error is returned.
func (s *Service) read(ctx context.Context, op, id string, dst io.Writer) (*model.FileEntry, error) {
	entry, err := s.readVerified(ctx, op, id, dst)
	if err != nil {
		s.metrics.FileRead(readResult(err))
		return nil, err
	}
	s.metrics.FileRead("ok")

	now := s.clock.Now()
	if err := s.store.RecordAccess(entry.ID, now); err != nil {
		s.logger.Warn("recording file access failed", "id", entry.ID, "error", err)
	} else {
		entry.AccessCount++
		entry.LastAccessDate = &now
	}
	return entry, nil
}

func (s *Service) readVerified(ctx context.Context, op, id string, dst io.Writer) (*model.FileEntry, error) {
	entry, err := s.liveFile(op, id)
	if err != nil {
		return nil, err
	}
	if !s.keys.Unlocked() {
		return nil, vaulterr.New(vaulterr.CodeNoMasterKey, op)
	}
	fileID, err := uuid.Parse(entry.ID)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, op, err)
	}

	progress := progressFrom(ctx)
	progress.begin(entry.FileSize)
	hw, matches := checksum.Verifier(entry.ChecksumChunkSize > 0, entry.ChecksumChunkSize, entry.Checksum)
	out := &countingWriter{w: io.MultiWriter(dst, hw, progressWriter{progress})}

	if err := s.decode(ctx, op, entry, fileID, out); err != nil {
		return nil, err
	}
	if out.n != entry.FileSize {
		return nil, vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, op,
			fmt.Errorf("decoded %d bytes, expected %d", out.n, entry.FileSize))
	}
	if !matches() {
		return nil, vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, op, fmt.Errorf("checksum mismatch"))
	}
	return entry, nil
}

// decode reverses the pipeline for entry's recorded formats.
func (s *Service) decode(ctx context.Context, op string, entry *model.FileEntry, fileID uuid.UUID, dst io.Writer) error {
	switch entry.StorageFormat {
	case model.StorageGCM:
		return s.decodeSingle(op, entry, fileID, dst)
	case model.StorageGCMChunked:
		return s.decodeChunked(ctx, op, entry, fileID, dst)
	default:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, op, fmt.Errorf("unknown storage format %q", entry.StorageFormat))
	}
}

func (s *Service) decodeSingle(op string, entry *model.FileEntry, fileID uuid.UUID, dst io.Writer) error {
	var blob bytes.Buffer
	blob.Grow(int(entry.EncryptedSize))
	if err := s.blobs.GetContent(entry.EncryptedFileName, &blob); err != nil {
		return fmt.Errorf("reading blob: %w", err)
	}

	key, err := s.keys.FileKey(fileID)
	if err != nil {
		return err
	}
	defer key.Wipe()
	plain, err := encryption.Decrypt(blob.Bytes(), key.Bytes())
	if err != nil {
		return err
	}
	defer clear(plain)

	switch entry.CompressionFormat {
	case model.CompressionNone:
		if _, err := dst.Write(plain); err != nil {
			return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, op, err)
		}
		return nil
	case model.CompressionGzip:
		data, err := s.engine.Decompress(plain)
		if err != nil {
			return err
		}
		defer clear(data)
		if _, err := dst.Write(data); err != nil {
			return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, op, err)
		}
		return nil
	default:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, op,
			fmt.Errorf("compression %q with storage %q", entry.CompressionFormat, entry.StorageFormat))
	}
}

// decodeChunked decrypts the chunk container. Compressed payloads are
// piped from the decrypting goroutine into the decompressor.
func (s *Service) decodeChunked(ctx context.Context, op string, entry *model.FileEntry, fileID uuid.UUID, dst io.Writer) error {
	rc, err := s.blobs.OpenContent(entry.EncryptedFileName)
	if err != nil {
		return fmt.Errorf("opening blob: %w", err)
	}
	defer rc.Close()

	decrypt := func(w io.Writer) error {
		return s.keys.WithMaster(func(master *encryption.Key) error {
			_, err := encryption.DecryptChunked(ctx, w, rc, master, fileID, s.opts.MaxWorkers)
			return err
		})
	}

	var decompress func(io.Reader) error
	switch entry.CompressionFormat {
	case model.CompressionNone:
		return decrypt(dst)
	case model.CompressionGzipChunked:
		decompress = func(r io.Reader) error {
			_, err := s.engine.DecompressContainer(ctx, dst, r, s.opts.MaxWorkers)
			return err
		}
	case model.CompressionGzip:
		decompress = func(r io.Reader) error {
			_, err := s.engine.DecompressStream(dst, r)
			return err
		}
	default:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, op,
			fmt.Errorf("unknown compression format %q", entry.CompressionFormat))
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		err := decrypt(pw)
		pw.CloseWithError(err)
		done <- err
	}()

	err = decompress(pr)
	pr.CloseWithError(errDecodeStopped)
	if derr := <-done; derr != nil && !errors.Is(derr, errDecodeStopped) {
		return derr
	}
	return err
}

var errDecodeStopped = errors.New("decompressor stopped reading")

// readResult labels a failed read for metrics.
func readResult(err error) string {
	switch vaulterr.CodeOf(err) {
	case vaulterr.CodeFileNotFound:
		return "not_found"
	case vaulterr.CodeDecryptionFailed:
		return "decrypt_failed"
	case vaulterr.CodeCorruptedMetadata:
		return "corrupted"
	case vaulterr.CodeNoMasterKey:
		return "locked"
	default:
		return "error"
	}
}

type progressWriter struct{ p *Progress }

func (w progressWriter) Write(b []byte) (int, error) {
	w.p.add(len(b))
	return len(b), nil
}
