package sv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"securevault/internal/checksum"
	"securevault/internal/encryption"
	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

// encoded describes the blob written for one version of a file's content.
type encoded struct {
	blobName       string
	checksum       string
	checksumChunk  int64 // 0 for a single-pass checksum
	size           int64
	encryptedSize  int64
	compressedSize int64
	storage        model.StorageFormat
	compression    model.CompressionFormat
}

func (e *encoded) applyTo(f *model.FileEntry) {
	f.FileSize = e.size
	f.Checksum = e.checksum
	f.ChecksumChunkSize = e.checksumChunk
	f.EncryptedFileName = e.blobName
	f.EncryptedSize = e.encryptedSize
	f.IsCompressed = e.compression != model.CompressionNone
	f.StorageFormat = e.storage
	f.CompressionFormat = e.compression
	if f.IsCompressed {
		f.CompressedSize = e.compressedSize
		f.CompressionRatio = float64(e.compressedSize) / float64(e.size)
	} else {
		f.CompressedSize = e.encryptedSize
		f.CompressionRatio = 1
	}
}

func blobName(id string, version int64) string {
	if version <= 1 {
		return id + ".enc"
	}
	return fmt.Sprintf("%s.v%d.enc", id, version)
}

// checkSource applies the limits every ingested source must meet.
func (s *Service) checkSource(op string, src *io.SectionReader) error {
	size := src.Size()
	if size == 0 {
		return vaulterr.Wrap(vaulterr.CodeInvalidData, op, fmt.Errorf("empty file"))
	}
	if s.opts.MaxFileSize > 0 && size > s.opts.MaxFileSize {
		return vaulterr.Wrap(vaulterr.CodeSizeExceeded, op,
			fmt.Errorf("size %d exceeds limit %d", size, s.opts.MaxFileSize))
	}
	if !s.keys.Unlocked() {
		return vaulterr.New(vaulterr.CodeNoMasterKey, op)
	}
	return nil
}

// AddFile ingests src as a new file named name in folderID (nil = root).
// Content is compressed when the policy allows and it helps, encrypted
// under the file's derived key and written to the blob store before the
// metadata row is inserted. If the insert fails the blob is removed again.
func (s *Service) AddFile(ctx context.Context, src *io.SectionReader, name string, folderID *string) (*model.FileEntry, error) {
	start := s.clock.Now()
	if err := validateFileName("AddFile", name); err != nil {
		return nil, err
	}
	if err := s.checkSource("AddFile", src); err != nil {
		return nil, err
	}
	if err := s.requireFolder("AddFile", folderID); err != nil {
		return nil, err
	}

	id := s.ids.New()
	ext := extension(name)
	enc, err := s.encode(ctx, id, src, ext, blobName(id.String(), 1))
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entry := &model.FileEntry{
		ID:               id.String(),
		FileName:         name,
		OriginalFileName: name,
		FileExtension:    ext,
		MimeType:         mimeType(ext),
		CreatedDate:      now,
		ModifiedDate:     now,
		FolderID:         folderID,
		Tags:             []string{},
		Version:          1,
		CustomProperties: map[string]string{},
		SecurityLevel:    model.SecurityStandard,
	}
	enc.applyTo(entry)

	if err := s.store.InsertFile(entry); err != nil {
		s.deleteBlob(enc.blobName)
		s.metrics.IngestFailed("metadata")
		return nil, fmt.Errorf("recording file: %w", err)
	}

	s.observeIngest(entry, s.clock.Now().Sub(start))
	s.logger.Info("file added", "id", entry.ID, "size", entry.FileSize,
		"storage", entry.StorageFormat, "compression", entry.CompressionFormat)
	return entry, nil
}

// UpdateFileContent replaces the content of an existing file. The new
// version is written to a fresh blob; the old blob is removed only after
// the metadata update commits, and the new one is removed if it fails.
func (s *Service) UpdateFileContent(ctx context.Context, id string, src *io.SectionReader) (*model.FileEntry, error) {
	start := s.clock.Now()
	entry, err := s.liveFile("UpdateFileContent", id)
	if err != nil {
		return nil, err
	}
	if err := s.checkSource("UpdateFileContent", src); err != nil {
		return nil, err
	}
	fileID, err := uuid.Parse(entry.ID)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "UpdateFileContent", err)
	}

	enc, err := s.encode(ctx, fileID, src, entry.FileExtension, blobName(entry.ID, entry.Version+1))
	if err != nil {
		return nil, err
	}

	updated := *entry
	enc.applyTo(&updated)
	updated.Version++
	updated.ModifiedDate = s.clock.Now()

	if err := s.store.UpdateFile(&updated); err != nil {
		s.deleteBlob(enc.blobName)
		s.metrics.IngestFailed("metadata")
		return nil, fmt.Errorf("recording new version: %w", err)
	}
	s.deleteBlob(entry.EncryptedFileName)

	s.observeIngest(&updated, s.clock.Now().Sub(start))
	s.logger.Info("file content updated", "id", updated.ID, "version", updated.Version, "size", updated.FileSize)
	return &updated, nil
}

func (s *Service) observeIngest(f *model.FileEntry, elapsed time.Duration) {
	path := "sequential"
	if f.StorageFormat == model.StorageGCMChunked {
		path = "parallel"
	}
	s.metrics.FileIngested(path, f.FileSize, elapsed, f.CompressionRatio)
}

// encode runs the compress, checksum and encrypt stages and writes the
// blob. Nothing is left in the blob store when it fails.
func (s *Service) encode(ctx context.Context, fileID uuid.UUID, src *io.SectionReader, ext, name string) (*encoded, error) {
	var (
		enc *encoded
		err error
	)
	if s.large(src.Size()) {
		enc, err = s.encodeParallel(ctx, fileID, src, ext, name)
	} else {
		enc, err = s.encodeSequential(ctx, fileID, src, ext, name)
	}
	if err != nil {
		return nil, err
	}
	enc.blobName = name
	enc.size = src.Size()
	return enc, nil
}

// encodeSequential buffers the payload in memory and seals it as one GCM
// blob under the file key. The plaintext is hashed on the way through the
// compressor.
func (s *Service) encodeSequential(ctx context.Context, fileID uuid.UUID, src *io.SectionReader, ext, name string) (*encoded, error) {
	size := src.Size()
	progress := progressFrom(ctx)
	progress.begin(size)

	hw := checksum.NewWriter(false, 0)
	in := &progressReader{ctx: ctx, r: io.TeeReader(io.NewSectionReader(src, 0, size), hw), p: progress}

	var buf bytes.Buffer
	buf.Grow(int(size))
	res, compressed, err := s.engine.CompressStream(&buf, in, size, ext)
	if err != nil {
		s.metrics.IngestFailed("compress")
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if res.OriginalSize != size {
		s.metrics.IngestFailed("compress")
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "AddFile",
			fmt.Errorf("read %d bytes, expected %d", res.OriginalSize, size))
	}

	enc := &encoded{checksum: hw.Sum(), storage: model.StorageGCM, compression: model.CompressionNone}
	payload := buf.Bytes()
	if compressed && res.Beneficial() {
		enc.compression = model.CompressionGzip
		enc.compressedSize = res.CompressedSize
	} else if compressed {
		payload = make([]byte, size)
		if _, err := io.ReadFull(io.NewSectionReader(src, 0, size), payload); err != nil {
			s.metrics.IngestFailed("compress")
			return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "AddFile", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := s.keys.FileKey(fileID)
	if err != nil {
		s.metrics.IngestFailed("encrypt")
		return nil, err
	}
	defer key.Wipe()
	sealed, err := encryption.Encrypt(payload, key.Bytes())
	clear(payload)
	if err != nil {
		s.metrics.IngestFailed("encrypt")
		return nil, fmt.Errorf("encrypting: %w", err)
	}

	if err := s.blobs.PutContent(name, bytes.NewReader(sealed), int64(len(sealed))); err != nil {
		s.metrics.IngestFailed("blob")
		return nil, fmt.Errorf("writing blob: %w", err)
	}
	enc.encryptedSize = int64(len(sealed))
	return enc, nil
}

// encodeParallel handles large files without holding them in memory: the
// checksum is the chunked hash-of-hashes, compression goes through the
// parallel container into a spool file, and encryption streams per-chunk
// GCM blobs straight into the blob store.
func (s *Service) encodeParallel(ctx context.Context, fileID uuid.UUID, src *io.SectionReader, ext, name string) (*encoded, error) {
	size := src.Size()
	progress := progressFrom(ctx)
	progress.begin(size)

	hashChunk := s.opts.HashChunkSize
	if hashChunk <= 0 {
		hashChunk = checksum.DefaultChunkSize
	}
	sum, err := checksum.SumChunked(src, size, hashChunk)
	if err != nil {
		s.metrics.IngestFailed("checksum")
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "AddFile", err)
	}
	enc := &encoded{
		checksum:      sum,
		checksumChunk: hashChunk,
		storage:       model.StorageGCMChunked,
		compression:   model.CompressionNone,
	}

	// Progress follows the first full pass over the plaintext: compression
	// when it runs, encryption otherwise.
	var payload io.Reader = io.NewSectionReader(src, 0, size)
	payloadSize := size
	compressing := s.engine.ShouldCompress(size, ext)
	if compressing {
		spool, err := os.CreateTemp(s.opts.TempDir, "securevault-ingest-*")
		if err != nil {
			s.metrics.IngestFailed("compress")
			return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "AddFile", fmt.Errorf("creating spool file: %w", err))
		}
		defer func() {
			spool.Close()
			os.Remove(spool.Name())
		}()

		in := &progressReaderAt{ctx: ctx, r: src, p: progress}
		res, err := s.engine.CompressParallel(ctx, spool, in, size, s.opts.CompressChunkSize, s.opts.MaxWorkers)
		if err != nil {
			s.metrics.IngestFailed("compress")
			return nil, fmt.Errorf("compressing: %w", err)
		}
		if res.Beneficial() {
			enc.compression = model.CompressionGzipChunked
			enc.compressedSize = res.CompressedSize
			payload = io.NewSectionReader(spool, 0, res.CompressedSize)
			payloadSize = res.CompressedSize
		}
	}
	if !compressing {
		payload = &progressReader{ctx: ctx, r: payload, p: progress}
	}

	w, err := s.blobs.CreateContent(name)
	if err != nil {
		s.metrics.IngestFailed("blob")
		return nil, fmt.Errorf("creating blob: %w", err)
	}
	err = s.keys.WithMaster(func(master *encryption.Key) error {
		_, err := encryption.EncryptChunked(ctx, w, payload, payloadSize, master, fileID, s.opts.EncryptChunkSize, s.opts.MaxWorkers)
		return err
	})
	if err != nil {
		w.Abort()
		s.metrics.IngestFailed("encrypt")
		return nil, fmt.Errorf("encrypting: %w", err)
	}
	n, err := w.Commit()
	if err != nil {
		s.metrics.IngestFailed("blob")
		return nil, fmt.Errorf("writing blob: %w", err)
	}
	enc.encryptedSize = n
	return enc, nil
}
