package staging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// fileSystemStore keeps chunks on disk:
//
//	<temp_dir>/
//	  <session_id>/
//	    chunk_000000_gz    (gzip-compressed chunk)
//	    chunk_000001_raw   (chunk stored as received)
//	    assembled          (reassembled file, only during completion)
type fileSystemStore struct {
	root string
}

func newFileSystemStore(root string) (*fileSystemStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create upload temp directory: %w", err)
	}
	return &fileSystemStore{root: root}, nil
}

func (s *fileSystemStore) dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *fileSystemStore) Create(sessionID string) (string, error) {
	dir := s.dir(sessionID)
	if err := os.Mkdir(dir, 0700); err != nil {
		return "", fmt.Errorf("creating session directory: %w", err)
	}
	return dir, nil
}

func (s *fileSystemStore) Put(sessionID, name string, data []byte) error {
	path := filepath.Join(s.dir(sessionID), name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing chunk: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming chunk: %w", err)
	}
	return nil
}

func (s *fileSystemStore) Open(sessionID, name string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir(sessionID), name))
}

func (s *fileSystemStore) Remove(sessionID, name string) {
	os.Remove(filepath.Join(s.dir(sessionID), name))
}

func (s *fileSystemStore) Assembly(sessionID string) (assembly, error) {
	f, err := os.OpenFile(filepath.Join(s.dir(sessionID), "assembled"), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating assembly file: %w", err)
	}
	return f, nil
}

func (s *fileSystemStore) Destroy(sessionID string) error {
	if err := os.RemoveAll(s.dir(sessionID)); err != nil {
		return fmt.Errorf("removing session directory: %w", err)
	}
	return nil
}

// sweep removes session directories last modified before cutoff. A new
// process starts with an empty registry, so this is the only cleanup for
// sessions left behind by one that was killed. Entries that are not
// session directories are left alone.
func (s *fileSystemStore) sweep(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("reading upload temp directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(s.dir(e.Name())); err != nil {
			return removed, fmt.Errorf("removing stale session %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Compile-time check that fileSystemStore implements chunkStore.
var _ chunkStore = (*fileSystemStore)(nil)
