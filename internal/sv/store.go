package sv

import (
	"io"
	"time"

	"securevault/internal/model"
)

// MetadataStore is the durable record store for files, folders and vault
// configuration. Lookups return (nil, nil) when a record does not exist;
// mutations of a missing record return a not-found vaulterr.
type MetadataStore interface {
	// File operations

	// InsertFile stores a new file entry and refreshes the stats of its folder chain.
	InsertFile(f *model.FileEntry) error

	// UpdateFile replaces the mutable columns of an existing entry.
	UpdateFile(f *model.FileEntry) error

	// GetFile returns a file by ID, including soft-deleted files.
	GetFile(id string) (*model.FileEntry, error)

	// FilesByFolder lists the live files directly in folderID (nil = root).
	FilesByFolder(folderID *string) ([]*model.FileEntry, error)

	// DeletedFiles lists soft-deleted files.
	DeletedFiles() ([]*model.FileEntry, error)

	// SearchFiles matches live files by name, description or tag.
	SearchFiles(query string) ([]*model.FileEntry, error)

	// RecordAccess bumps access_count and last_access_date.
	RecordAccess(id string, at time.Time) error

	// RemoveFile deletes the row.
	RemoveFile(id string) error

	// Folder operations

	InsertFolder(f *model.FolderEntry) error
	GetFolder(id string) (*model.FolderEntry, error)

	// FolderByName finds a direct child of parentID by name.
	FolderByName(parentID *string, name string) (*model.FolderEntry, error)

	// FoldersByParent lists direct children of parentID (nil = root level).
	FoldersByParent(parentID *string) ([]*model.FolderEntry, error)

	// RenameFolder renames a folder and rewrites the path of every descendant.
	RenameFolder(id, name string, at time.Time) error

	// MoveFolder reparents a folder, rejecting moves into its own subtree.
	MoveFolder(id string, parentID *string, at time.Time) error

	// RemoveFolder deletes an empty folder.
	RemoveFolder(id string) error

	// RemoveFolderTree deletes a folder with all descendants and their
	// files, returning the removed file entries.
	RemoveFolderTree(id string) ([]*model.FileEntry, error)

	// CalculateFolderSize sums live file sizes in the folder and all descendants.
	CalculateFolderSize(id string) (int64, error)

	// CountFilesInFolder counts live files in the folder and all descendants.
	CountFilesInFolder(id string) (int64, error)

	// CountSubfolders counts direct children only.
	CountSubfolders(id string) (int64, error)

	// Vault configuration

	GetConfig(key string) ([]byte, error)
	PutConfig(key string, value []byte) error
	DeleteConfig(key string) error

	// BackupTo writes a consistent copy of the store to destPath.
	BackupTo(destPath string) error

	Close() error
}

// BlobStore holds encrypted blobs by name.
type BlobStore interface {
	// PutContent writes exactly size bytes from r under name. The write is
	// atomic: readers never observe a partial blob.
	PutContent(name string, r io.Reader, size int64) error

	// CreateContent opens an atomic writer for a blob whose size is not
	// known up front. Nothing is visible under name until Commit.
	CreateContent(name string) (BlobWriter, error)

	// GetContent streams the blob to w.
	GetContent(name string, w io.Writer) error

	// OpenContent opens the blob for streaming reads.
	OpenContent(name string) (io.ReadCloser, error)

	// ContentSize returns the stored size of a blob.
	ContentSize(name string) (int64, error)

	// DeleteContent removes a blob. Removing a missing blob is not an error.
	DeleteContent(name string) error

	// ValidateSetup verifies the store is usable.
	ValidateSetup() error
}

// BlobWriter is an in-flight blob. Exactly one of Commit or Abort must be
// called.
type BlobWriter interface {
	io.Writer

	// Commit publishes the blob under its name and returns its size.
	Commit() (int64, error)

	// Abort discards everything written so far.
	Abort()
}
