package testutil

import (
	"bytes"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"securevault/internal/sv"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	Content     []byte
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing import paths.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
	}
}

// AddFile adds (or replaces) a file, bumping its modification time.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	modTime := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if prev, ok := m.files[path]; ok {
		modTime = prev.ModTime.Add(time.Second)
	}
	m.files[path] = &MockFile{Content: content, ModTime: modTime}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = &MockFile{IsDirectory: true}
}

func (m *MockFilesystemManager) lookup(path string) (*MockFile, fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	file, ok := m.files[path]
	if !ok {
		return nil, nil, fmt.Errorf("file not found: %s: %w", path, fs.ErrNotExist)
	}
	return file, &mockFileInfo{name: filepath.Base(path), file: file}, nil
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*sv.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, err
	}
	file, info, err := m.lookup(absPath)
	if err != nil {
		return nil, err
	}
	return sv.NewPath(absPath, file.IsDirectory, info), nil
}

func (m *MockFilesystemManager) Open(path *sv.Path) (sv.SourceFile, error) {
	file, _, err := m.lookup(path.String())
	if err != nil {
		return nil, err
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", path.String())
	}
	return nopCloser{bytes.NewReader(file.Content)}, nil
}

func (m *MockFilesystemManager) Stat(path *sv.Path) (fs.FileInfo, error) {
	_, info, err := m.lookup(path.String())
	return info, err
}

// FindFiles returns every non-directory entry below root in lexical order.
// Ignore rules are not modelled.
func (m *MockFilesystemManager) FindFiles(root *sv.Path) ([]*sv.Path, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := root.String() + string(filepath.Separator)
	var names []string
	for name, f := range m.files {
		if !f.IsDirectory && strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	paths := make([]*sv.Path, 0, len(names))
	for _, name := range names {
		info := &mockFileInfo{name: filepath.Base(name), file: m.files[name]}
		paths = append(paths, sv.NewPath(name, false, info))
	}
	return paths, nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// mockFileInfo implements fs.FileInfo
type mockFileInfo struct {
	name string
	file *MockFile
}

func (m *mockFileInfo) Name() string { return m.name }
func (m *mockFileInfo) Size() int64  { return int64(len(m.file.Content)) }
func (m *mockFileInfo) Mode() fs.FileMode {
	if m.file.IsDirectory {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (m *mockFileInfo) ModTime() time.Time { return m.file.ModTime }
func (m *mockFileInfo) IsDir() bool        { return m.file.IsDirectory }
func (m *mockFileInfo) Sys() any           { return nil }

// Compile-time check
var _ sv.FilesystemManager = (*MockFilesystemManager)(nil)
