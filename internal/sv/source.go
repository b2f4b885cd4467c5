package sv

import (
	"io"
	"io/fs"
)

// Path is a validated source path with the stat info captured when it was
// resolved. Paths are created by FilesystemManager.Resolve.
type Path struct {
	absPath string
	isDir   bool
	info    fs.FileInfo
}

// NewPath creates a Path from its components.
// This is primarily for use by FilesystemManager implementations.
func NewPath(absPath string, isDir bool, info fs.FileInfo) *Path {
	return &Path{
		absPath: absPath,
		isDir:   isDir,
		info:    info,
	}
}

// String returns the absolute path as a string.
func (p *Path) String() string {
	return p.absPath
}

// IsDir returns true if this path points to a directory.
func (p *Path) IsDir() bool {
	return p.isDir
}

// Info returns the cached file info from when the path was resolved.
func (p *Path) Info() fs.FileInfo {
	return p.info
}

// SourceFile is an opened import source. The pipeline reads it
// sequentially for small files and at random offsets for large ones.
type SourceFile interface {
	io.Reader
	io.ReaderAt
	io.Closer
}

// FilesystemManager resolves and opens files outside the vault that are
// being imported.
type FilesystemManager interface {
	// Resolve makes rawPath absolute and rejects anything that is not a
	// regular file or directory.
	Resolve(rawPath string) (*Path, error)

	// Open opens a regular file for reading.
	Open(path *Path) (SourceFile, error)

	// Stat returns fresh file info for a path.
	Stat(path *Path) (fs.FileInfo, error)

	// FindFiles lists the regular files under a directory, recursively,
	// skipping anything matched by the directory's ignore rules.
	FindFiles(root *Path) ([]*Path, error)
}

// Unchanged reports whether a source still has the size and modification
// time it had when it was resolved.
func Unchanged(resolved, current fs.FileInfo) bool {
	return resolved.Size() == current.Size() && resolved.ModTime().Equal(current.ModTime())
}
