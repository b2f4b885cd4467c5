package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// FileSystemVault stores encrypted blobs as flat files in one directory:
//
//	<dir>/
//	  <encrypted_file_name>   (ciphertext blob)
//	  .tmp-*                  (in-flight writes, never visible under a blob name)
type FileSystemVault struct {
	dir string
}

// Compile-time check that FileSystemVault implements sv.BlobStore.
var _ sv.BlobStore = (*FileSystemVault)(nil)

// NewFileSystemVault creates the blob directory if needed.
func NewFileSystemVault(dir string) (*FileSystemVault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemVault{dir: dir}, nil
}

// Dir returns the blob directory.
func (v *FileSystemVault) Dir() string { return v.dir }

// blobPath resolves name inside the blob directory. Names are generated
// by the pipeline, so anything that could escape the directory is an
// invalid name rather than a path to follow.
func (v *FileSystemVault) blobPath(op, name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".tmp-") {
		return "", vaulterr.New(vaulterr.CodeInvalidFileName, op)
	}
	return filepath.Join(v.dir, name), nil
}

// PutContent writes exactly size bytes from r under name, replacing any
// existing blob atomically.
func (v *FileSystemVault) PutContent(name string, r io.Reader, size int64) error {
	w, err := v.CreateContent(name)
	if err != nil {
		return err
	}
	return putContent(w, r, size)
}

// putContent copies r into w and commits only if exactly size bytes arrived.
func putContent(w sv.BlobWriter, r io.Reader, size int64) error {
	written, err := io.Copy(w, r)
	if err != nil {
		w.Abort()
		return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "PutContent", err)
	}
	if written != size {
		w.Abort()
		return vaulterr.Wrap(vaulterr.CodeSizeMismatch, "PutContent",
			fmt.Errorf("expected %d bytes, got %d", size, written))
	}
	_, err = w.Commit()
	return err
}

// GetContent streams the blob to w.
func (v *FileSystemVault) GetContent(name string, w io.Writer) error {
	srcPath, err := v.blobPath("GetContent", name)
	if err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if errors.Is(err, fs.ErrNotExist) {
		return vaulterr.New(vaulterr.CodeFileNotFound, "GetContent")
	}
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeFileReadFailed, "GetContent", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return vaulterr.Wrap(vaulterr.CodeFileReadFailed, "GetContent", err)
	}
	return nil
}

// OpenContent opens the blob for reading. The caller closes it.
func (v *FileSystemVault) OpenContent(name string) (io.ReadCloser, error) {
	srcPath, err := v.blobPath("OpenContent", name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(srcPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, vaulterr.New(vaulterr.CodeFileNotFound, "OpenContent")
	}
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "OpenContent", err)
	}
	return f, nil
}

// CreateContent starts an atomic write of name through a temp file.
func (v *FileSystemVault) CreateContent(name string) (sv.BlobWriter, error) {
	destPath, err := v.blobPath("CreateContent", name)
	if err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(v.dir, ".tmp-*")
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CreateContent", fmt.Errorf("creating temp file: %w", err))
	}
	return &fileBlobWriter{f: tmp, dest: destPath}, nil
}

type fileBlobWriter struct {
	f    *os.File
	dest string
	n    int64
	done bool
}

func (w *fileBlobWriter) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.n += int64(n)
	if err != nil {
		return n, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "WriteContent", err)
	}
	return n, nil
}

func (w *fileBlobWriter) Commit() (int64, error) {
	if w.done {
		return 0, fmt.Errorf("blob writer already finished")
	}
	w.done = true

	if err := w.f.Sync(); err != nil {
		w.discard()
		return 0, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CommitContent", err)
	}
	if err := w.f.Close(); err != nil {
		os.Remove(w.f.Name())
		return 0, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CommitContent", err)
	}
	if err := os.Rename(w.f.Name(), w.dest); err != nil {
		os.Remove(w.f.Name())
		return 0, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CommitContent", err)
	}
	return w.n, nil
}

func (w *fileBlobWriter) Abort() {
	if w.done {
		return
	}
	w.done = true
	w.discard()
}

func (w *fileBlobWriter) discard() {
	w.f.Close()
	os.Remove(w.f.Name())
}

// ContentSize returns the size of the blob on disk.
func (v *FileSystemVault) ContentSize(name string) (int64, error) {
	p, err := v.blobPath("ContentSize", name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, vaulterr.New(vaulterr.CodeFileNotFound, "ContentSize")
	}
	if err != nil {
		return 0, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "ContentSize", err)
	}
	return info.Size(), nil
}

// DeleteContent removes a blob. A missing blob is not an error.
func (v *FileSystemVault) DeleteContent(name string) error {
	p, err := v.blobPath("DeleteContent", name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "DeleteContent", err)
	}
	return nil
}

// ValidateSetup verifies that the blob directory exists and is writable.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.dir)
	if err != nil {
		return fmt.Errorf("blob directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob path is not a directory: %s", v.dir)
	}

	tmp, err := os.CreateTemp(v.dir, ".tmp-check-*")
	if err != nil {
		return fmt.Errorf("blob directory not writable: %w", err)
	}
	tmp.Close()
	os.Remove(tmp.Name())
	return nil
}
