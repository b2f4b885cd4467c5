package sv

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"securevault/internal/compress"
	"securevault/internal/encryption"
	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

// MaxNameLength bounds file and folder names, in bytes.
const MaxNameLength = 255

// Options tunes the ingestion pipeline and read path.
type Options struct {
	// ParallelThreshold selects the chunked parallel path for files of at
	// least this many bytes. Compression, encryption and checksum all use
	// the same classification.
	ParallelThreshold int64
	CompressChunkSize int64
	EncryptChunkSize  int64
	HashChunkSize     int64
	MaxWorkers        int // 0 = number of CPUs
	MaxFileSize       int64
	// TempDir holds spool files of the parallel compressor. Empty means
	// os.TempDir().
	TempDir string
}

// DefaultOptions returns the pipeline settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		ParallelThreshold: 100 << 20,
		CompressChunkSize: compress.DefaultParallelChunkSize,
		EncryptChunkSize:  encryption.DefaultChunkSize,
		HashChunkSize:     16 << 20,
		MaxFileSize:       10 << 30,
	}
}

// Service is the orchestration layer behind every file and folder command.
// It holds no locks of its own; callers serialize mutations.
type Service struct {
	store   MetadataStore
	blobs   BlobStore
	keys    *encryption.KeyRing
	engine  *compress.Engine
	fsmgr   FilesystemManager
	logger  Logger
	metrics Metrics
	clock   Clock
	ids     IDGenerator
	opts    Options
}

// NewService creates a Service with the provided dependencies.
func NewService(store MetadataStore, blobs BlobStore, keys *encryption.KeyRing, engine *compress.Engine, fsmgr FilesystemManager, logger Logger, metrics Metrics, clock Clock, ids IDGenerator, opts Options) *Service {
	return &Service{
		store:   store,
		blobs:   blobs,
		keys:    keys,
		engine:  engine,
		fsmgr:   fsmgr,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
		ids:     ids,
		opts:    opts,
	}
}

// Options returns the settings the service was created with.
func (s *Service) Options() Options {
	return s.opts
}

// large reports whether size takes the parallel chunked path.
func (s *Service) large(size int64) bool {
	return size >= s.opts.ParallelThreshold
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." || len(name) > MaxNameLength {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

func validateFileName(op, name string) error {
	if !validName(name) {
		return vaulterr.Wrap(vaulterr.CodeInvalidFileName, op, fmt.Errorf("invalid file name %q", name))
	}
	return nil
}

func validateFolderName(op, name string) error {
	if !validName(name) {
		return vaulterr.Wrap(vaulterr.CodeInvalidFolderName, op, fmt.Errorf("invalid folder name %q", name))
	}
	return nil
}

// extension returns the lower-case extension of name without the dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func mimeType(ext string) string {
	if ext != "" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

// requireFolder returns FolderNotFound unless folderID is nil (the root) or
// names an existing folder.
func (s *Service) requireFolder(op string, folderID *string) error {
	if folderID == nil {
		return nil
	}
	f, err := s.store.GetFolder(*folderID)
	if err != nil {
		return fmt.Errorf("looking up folder: %w", err)
	}
	if f == nil {
		return vaulterr.New(vaulterr.CodeFolderNotFound, op)
	}
	return nil
}

// liveFile returns the entry for id, or FileNotFound when it does not exist
// or is in the trash.
func (s *Service) liveFile(op, id string) (*model.FileEntry, error) {
	f, err := s.store.GetFile(id)
	if err != nil {
		return nil, fmt.Errorf("looking up file: %w", err)
	}
	if f == nil || f.IsDeleted {
		return nil, vaulterr.New(vaulterr.CodeFileNotFound, op)
	}
	return f, nil
}

// deleteBlob removes a blob, logging instead of failing.
func (s *Service) deleteBlob(name string) {
	if err := s.blobs.DeleteContent(name); err != nil {
		s.logger.Warn("blob cleanup failed", "blob", name, "error", err)
	}
}
