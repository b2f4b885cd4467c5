package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// MemoryVault is an in-memory BlobStore for tests and ephemeral vaults.
// It is safe for concurrent use.
type MemoryVault struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// Compile-time check that MemoryVault implements sv.BlobStore.
var _ sv.BlobStore = (*MemoryVault)(nil)

// NewMemoryVault creates an empty in-memory blob store.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{blobs: make(map[string][]byte)}
}

// PutContent stores exactly size bytes from r under name.
func (m *MemoryVault) PutContent(name string, r io.Reader, size int64) error {
	w, err := m.CreateContent(name)
	if err != nil {
		return err
	}
	return putContent(w, r, size)
}

// CreateContent buffers writes until Commit.
func (m *MemoryVault) CreateContent(name string) (sv.BlobWriter, error) {
	if name == "" {
		return nil, vaulterr.New(vaulterr.CodeInvalidFileName, "CreateContent")
	}
	return &memoryBlobWriter{vault: m, name: name}, nil
}

type memoryBlobWriter struct {
	vault *MemoryVault
	name  string
	buf   bytes.Buffer
	done  bool
}

func (w *memoryBlobWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memoryBlobWriter) Commit() (int64, error) {
	if w.done {
		return 0, fmt.Errorf("blob writer already finished")
	}
	w.done = true

	w.vault.mu.Lock()
	defer w.vault.mu.Unlock()
	w.vault.blobs[w.name] = w.buf.Bytes()
	return int64(w.buf.Len()), nil
}

func (w *memoryBlobWriter) Abort() {
	w.done = true
	w.buf.Reset()
}

func (m *MemoryVault) get(op, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[name]
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeFileNotFound, op)
	}
	return data, nil
}

// GetContent streams the blob to w.
func (m *MemoryVault) GetContent(name string, w io.Writer) error {
	data, err := m.get("GetContent", name)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return vaulterr.Wrap(vaulterr.CodeFileReadFailed, "GetContent", err)
	}
	return nil
}

// OpenContent returns a reader over the stored blob.
func (m *MemoryVault) OpenContent(name string) (io.ReadCloser, error) {
	data, err := m.get("OpenContent", name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ContentSize returns the stored size of a blob.
func (m *MemoryVault) ContentSize(name string) (int64, error) {
	data, err := m.get("ContentSize", name)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// DeleteContent removes a blob. Removing a missing blob is not an error.
func (m *MemoryVault) DeleteContent(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, name)
	return nil
}

// Names returns the names of all stored blobs.
func (m *MemoryVault) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		names = append(names, name)
	}
	return names
}

// ValidateSetup always succeeds for the in-memory store.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}
