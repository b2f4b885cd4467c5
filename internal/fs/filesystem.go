// Package fs resolves and reads the files being imported into the vault.
package fs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// IgnoreFileName is the per-directory ignore file honored by FindFiles.
const IgnoreFileName = ".svignore"

// defaultIgnorePatterns are always applied when walking an import directory.
// The vault's own state directory is never imported into itself.
var defaultIgnorePatterns = []string{IgnoreFileName, ".securevault/"}

// OSFilesystemManager is the real filesystem implementation of sv.FilesystemManager.
type OSFilesystemManager struct {
	extra []string
}

// NewOSFilesystemManager creates a manager. extraIgnore patterns apply to
// every directory walk in addition to the defaults and .svignore files.
func NewOSFilesystemManager(extraIgnore ...string) *OSFilesystemManager {
	return &OSFilesystemManager{extra: extraIgnore}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*sv.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil, vaulterr.Wrap(vaulterr.CodeFileNotFound, "Resolve", err)
	}
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "Resolve", err)
	}

	mode := info.Mode()
	if !mode.IsRegular() && !mode.IsDir() {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "Resolve",
			fmt.Errorf("unsupported file type %v: %s", mode.Type(), absPath))
	}

	return sv.NewPath(absPath, info.IsDir(), info), nil
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path *sv.Path) (sv.SourceFile, error) {
	if path.IsDir() {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "Open",
			fmt.Errorf("cannot open directory as file: %s", path.String()))
	}
	f, err := os.Open(path.String())
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "Open", err)
	}
	return f, nil
}

// Stat returns fresh file info for a path.
func (m *OSFilesystemManager) Stat(path *sv.Path) (fs.FileInfo, error) {
	return os.Stat(path.String())
}

// FindFiles walks root and returns its regular files in lexical order.
// Ignore rules come from the defaults, the manager's extra patterns, and the
// .svignore file at root. Ignored directories are not descended into.
func (m *OSFilesystemManager) FindFiles(root *sv.Path) ([]*sv.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", root.String())
	}

	fromFile, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns := append(append(append([]string{}, defaultIgnorePatterns...), m.extra...), fromFile...)
	matcher := NewIgnoreMatcher(patterns)

	var paths []*sv.Path
	err = filepath.WalkDir(root.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root.String() {
			return nil
		}
		rel, err := filepath.Rel(root.String(), p)
		if err != nil {
			return err
		}
		if matcher.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		paths = append(paths, sv.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}
	return paths, nil
}

// Compile-time check that OSFilesystemManager implements sv.FilesystemManager.
var _ sv.FilesystemManager = (*OSFilesystemManager)(nil)
