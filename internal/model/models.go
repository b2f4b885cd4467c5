package model

import "time"

// StorageFormat records how a blob's ciphertext is laid out on disk.
type StorageFormat string

const (
	// StorageGCM is a single IV||ciphertext||tag blob under the file key.
	StorageGCM StorageFormat = "gcm"
	// StorageGCMChunked is a chunk-count-prefixed container of GCM blobs,
	// each sealed under its own chunk key.
	StorageGCMChunked StorageFormat = "gcm-chunked"
)

// CompressionFormat records how the plaintext was compressed before encryption.
type CompressionFormat string

const (
	CompressionNone CompressionFormat = "none"
	// CompressionGzip is one gzip stream over the whole file.
	CompressionGzip CompressionFormat = "gzip"
	// CompressionGzipChunked is the parallel container of independent gzip streams.
	CompressionGzipChunked CompressionFormat = "gzip-chunked"
)

// FolderStatus is the lifecycle status of a folder.
type FolderStatus string

const (
	FolderActive   FolderStatus = "active"
	FolderDeleted  FolderStatus = "deleted"
	FolderHidden   FolderStatus = "hidden"
	FolderReadOnly FolderStatus = "read_only"
)

// SecurityLevel is an informational per-file classification.
type SecurityLevel string

const (
	SecurityStandard SecurityLevel = "standard"
	SecurityHigh     SecurityLevel = "high"
)

// FileEntry is the metadata record for one file stored in the vault.
// EncryptedSize always matches the bytes on disk under EncryptedFileName.
type FileEntry struct {
	ID                string // UUID
	FileName          string
	OriginalFileName  string
	FileSize          int64 // plaintext size
	FileExtension     string
	MimeType          string
	Checksum          string // hex, see checksum package for the large-file scheme
	ChecksumChunkSize int64  // hash-of-hashes chunk size; 0 = single-pass SHA-256
	CreatedDate       time.Time
	ModifiedDate      time.Time
	LastAccessDate    *time.Time
	FolderID          *string // nil = root
	EncryptedFileName string
	EncryptedSize     int64
	IsCompressed      bool
	CompressedSize    int64
	CompressionRatio  float64
	StorageFormat     StorageFormat
	CompressionFormat CompressionFormat
	Tags              []string
	Description       string
	Version           int64
	IsFavorite        bool
	IsDeleted         bool
	DeletedDate       *time.Time
	CustomProperties  map[string]string
	AccessCount       int64
	SecurityLevel     SecurityLevel
}

// InFolder reports whether the entry lives directly in folderID (nil = root).
func (f *FileEntry) InFolder(folderID *string) bool {
	if f.FolderID == nil || folderID == nil {
		return f.FolderID == nil && folderID == nil
	}
	return *f.FolderID == *folderID
}

// FolderEntry is a node of the folder tree. Path is a cache of the
// ancestor names joined by "/" and must follow every rename and move.
type FolderEntry struct {
	ID             string
	Name           string
	ParentID       *string // nil = root level
	Path           string
	CreatedAt      time.Time
	ModifiedAt     time.Time
	Status         FolderStatus
	SubfolderCount int64 // direct children only
	FileCount      int64 // recursive
	TotalSize      int64 // recursive, plaintext bytes
	ChildFolderIDs []string
	FileIDs        []string
}

// UploadSession is the ephemeral state of a chunked upload.
type UploadSession struct {
	ID        string
	FileName  string
	FileSize  int64
	FolderID  *string
	TempDir   string
	CreatedAt time.Time
}
