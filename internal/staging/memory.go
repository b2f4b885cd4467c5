package staging

import (
	"bytes"
	"io"
	"io/fs"
)

// memoryStore keeps chunks in memory. Useful for tests.
type memoryStore struct {
	sessions map[string]map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]map[string][]byte)}
}

func (s *memoryStore) Create(sessionID string) (string, error) {
	s.sessions[sessionID] = make(map[string][]byte)
	return "", nil
}

func (s *memoryStore) Put(sessionID, name string, data []byte) error {
	chunks, ok := s.sessions[sessionID]
	if !ok {
		return fs.ErrNotExist
	}
	chunks[name] = bytes.Clone(data)
	return nil
}

func (s *memoryStore) Open(sessionID, name string) (io.ReadCloser, error) {
	data, ok := s.sessions[sessionID][name]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStore) Remove(sessionID, name string) {
	delete(s.sessions[sessionID], name)
}

func (s *memoryStore) Assembly(string) (assembly, error) {
	return &memoryAssembly{}, nil
}

func (s *memoryStore) Destroy(sessionID string) error {
	delete(s.sessions, sessionID)
	return nil
}

// count returns the number of chunk files held for a session.
func (s *memoryStore) count(sessionID string) int {
	return len(s.sessions[sessionID])
}

type memoryAssembly struct {
	buf []byte
}

func (a *memoryAssembly) Write(p []byte) (int, error) {
	a.buf = append(a.buf, p...)
	return len(p), nil
}

func (a *memoryAssembly) ReadAt(p []byte, off int64) (int, error) {
	return bytes.NewReader(a.buf).ReadAt(p, off)
}

func (a *memoryAssembly) Close() error { return nil }

// Compile-time check that memoryStore implements chunkStore.
var _ chunkStore = (*memoryStore)(nil)
