package staging

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"securevault/internal/compress"
	"securevault/internal/config"
	"securevault/internal/model"
	"securevault/internal/sv"
	"securevault/internal/testutil"
	"securevault/internal/vaulterr"
)

func newTestEngine(t *testing.T) *compress.Engine {
	t.Helper()
	e, err := compress.NewEngine(compress.DefaultOptions())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

// newTestRegistry returns a registry over an in-memory chunk store, the
// store itself for inspection, and the clock driving session expiry.
func newTestRegistry(t *testing.T, opts Options) (*Registry, *memoryStore, *testutil.StubClock) {
	t.Helper()
	store := newMemoryStore()
	clock := testutil.FixedClock()
	r := newRegistry(store, newTestEngine(t), opts, clock, testutil.NewStubIDGenerator(), sv.NewNopLogger())
	return r, store, clock
}

// collect completes a session and returns the reassembled bytes.
func collect(t *testing.T, r *Registry, id string) ([]byte, error) {
	t.Helper()
	var got []byte
	err := r.Complete(id, func(_ model.UploadSession, src *io.SectionReader) error {
		var err error
		got, err = io.ReadAll(src)
		return err
	})
	return got, err
}

func randomBytes(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func TestRegistry_Start(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		size     int64
		wantErr  error
	}{
		{"valid", "report.pdf", 100, nil},
		{"empty name", "", 100, vaulterr.ErrInvalidFileName},
		{"zero size", "empty.txt", 0, vaulterr.ErrInvalidData},
		{"over limit", "huge.bin", 1 << 20, vaulterr.ErrSizeExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.MaxFileSize = 1 << 10
			r, _, clock := newTestRegistry(t, opts)

			s, err := r.Start(tt.fileName, tt.size, nil)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Start() error = %v, want %v", err, tt.wantErr)
				}
				if r.Len() != 0 {
					t.Errorf("Len() = %d, want 0 after failed start", r.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("Start() error = %v", err)
			}
			if s.ID == "" || s.FileName != tt.fileName || s.FileSize != tt.size {
				t.Errorf("Start() = %+v", s)
			}
			if !s.CreatedAt.Equal(clock.Now()) {
				t.Errorf("CreatedAt = %v, want %v", s.CreatedAt, clock.Now())
			}
		})
	}
}

func TestRegistry_ThreeChunkUpload(t *testing.T) {
	chunks := [][]byte{
		bytes.Repeat([]byte("a"), 1_000_000),
		randomBytes(1_000_000, 1),
		bytes.Repeat([]byte("c"), 1_000_000),
	}
	want := bytes.Join(chunks, nil)

	r, store, _ := newTestRegistry(t, DefaultOptions())
	folder := "folder-1"
	s, err := r.Start("data.bin", int64(len(want)), &folder)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	for i, c := range chunks {
		if err := r.WriteChunk(s.ID, i, c); err != nil {
			t.Fatalf("WriteChunk(%d) error = %v", i, err)
		}
	}

	t.Run("compressible chunks are stored gzipped", func(t *testing.T) {
		if _, err := store.Open(s.ID, chunkName(0, true)); err != nil {
			t.Errorf("chunk 0 not stored gzipped: %v", err)
		}
		if _, err := store.Open(s.ID, chunkName(1, false)); err != nil {
			t.Errorf("random chunk 1 not stored raw: %v", err)
		}
		if _, err := store.Open(s.ID, chunkName(2, true)); err != nil {
			t.Errorf("chunk 2 not stored gzipped: %v", err)
		}
	})

	received, total, err := r.Progress(s.ID)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if received != 3_000_000 || total != 3_000_000 {
		t.Errorf("Progress() = (%d, %d), want (3000000, 3000000)", received, total)
	}

	var gotInfo model.UploadSession
	var got []byte
	err = r.Complete(s.ID, func(info model.UploadSession, src *io.SectionReader) error {
		gotInfo = info
		if src.Size() != 3_000_000 {
			t.Errorf("src.Size() = %d, want 3000000", src.Size())
		}
		got, err = io.ReadAll(src)
		return err
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("reassembled content does not match uploaded chunks")
	}
	if gotInfo.FolderID == nil || *gotInfo.FolderID != folder {
		t.Errorf("FolderID = %v, want %q", gotInfo.FolderID, folder)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after completion", r.Len())
	}
	if store.count(s.ID) != 0 {
		t.Errorf("%d chunk files remain after completion", store.count(s.ID))
	}
}

func TestRegistry_OutOfOrderChunks(t *testing.T) {
	r, _, _ := newTestRegistry(t, DefaultOptions())
	s, err := r.Start("notes.txt", 9, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range []struct {
		index int
		data  string
	}{{2, "ghi"}, {0, "abc"}, {1, "def"}} {
		if err := r.WriteChunk(s.ID, c.index, []byte(c.data)); err != nil {
			t.Fatalf("WriteChunk(%d) error = %v", c.index, err)
		}
	}

	got, err := collect(t, r, s.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if string(got) != "abcdefghi" {
		t.Errorf("got %q, want %q", got, "abcdefghi")
	}
}

func TestRegistry_RewriteChunk(t *testing.T) {
	opts := DefaultOptions()
	opts.CompressThreshold = 4
	r, store, _ := newTestRegistry(t, opts)

	compressible := bytes.Repeat([]byte("z"), 64)
	s, err := r.Start("f.txt", 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.WriteChunk(s.ID, 0, compressible); err != nil {
		t.Fatal(err)
	}
	// Same index again, now incompressible: the gz form must disappear.
	replacement := randomBytes(64, 7)
	if err := r.WriteChunk(s.ID, 0, replacement); err != nil {
		t.Fatal(err)
	}
	if store.count(s.ID) != 1 {
		t.Errorf("count = %d, want 1 chunk file after rewrite", store.count(s.ID))
	}

	got, err := collect(t, r, s.ID)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !bytes.Equal(got, replacement) {
		t.Error("rewritten chunk not used")
	}
}

func TestRegistry_WriteChunk_Errors(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		r, _, _ := newTestRegistry(t, DefaultOptions())
		err := r.WriteChunk("nope", 0, []byte("x"))
		if !errors.Is(err, vaulterr.ErrSessionNotFound) {
			t.Errorf("WriteChunk() error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("negative index", func(t *testing.T) {
		r, _, _ := newTestRegistry(t, DefaultOptions())
		s, _ := r.Start("f", 10, nil)
		if err := r.WriteChunk(s.ID, -1, []byte("x")); !errors.Is(err, vaulterr.ErrInvalidData) {
			t.Errorf("WriteChunk() error = %v, want ErrInvalidData", err)
		}
	})

	t.Run("more bytes than declared", func(t *testing.T) {
		r, _, _ := newTestRegistry(t, DefaultOptions())
		s, _ := r.Start("f", 5, nil)
		if err := r.WriteChunk(s.ID, 0, []byte("abc")); err != nil {
			t.Fatal(err)
		}
		if err := r.WriteChunk(s.ID, 1, []byte("def")); !errors.Is(err, vaulterr.ErrSizeExceeded) {
			t.Errorf("WriteChunk() error = %v, want ErrSizeExceeded", err)
		}
		received, _, _ := r.Progress(s.ID)
		if received != 3 {
			t.Errorf("received = %d, want 3 after rejected chunk", received)
		}
	})
}

func TestRegistry_Complete_Validation(t *testing.T) {
	t.Run("gap before a received chunk", func(t *testing.T) {
		r, store, _ := newTestRegistry(t, DefaultOptions())
		s, _ := r.Start("f", 6, nil)
		r.WriteChunk(s.ID, 0, []byte("abc"))
		r.WriteChunk(s.ID, 2, []byte("ghi"))

		called := false
		err := r.Complete(s.ID, func(model.UploadSession, *io.SectionReader) error {
			called = true
			return nil
		})
		if !errors.Is(err, vaulterr.ErrMissingChunk) {
			t.Errorf("Complete() error = %v, want ErrMissingChunk", err)
		}
		if called {
			t.Error("callback ran for an incomplete upload")
		}
		if r.Len() != 0 || store.count(s.ID) != 0 {
			t.Error("session not destroyed after failed completion")
		}
	})

	t.Run("fewer bytes than declared", func(t *testing.T) {
		r, _, _ := newTestRegistry(t, DefaultOptions())
		s, _ := r.Start("f", 10, nil)
		r.WriteChunk(s.ID, 0, []byte("abc"))

		if _, err := collect(t, r, s.ID); !errors.Is(err, vaulterr.ErrSizeMismatch) {
			t.Errorf("Complete() error = %v, want ErrSizeMismatch", err)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		r, _, _ := newTestRegistry(t, DefaultOptions())
		if _, err := collect(t, r, "nope"); !errors.Is(err, vaulterr.ErrSessionNotFound) {
			t.Errorf("Complete() error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("callback error destroys session", func(t *testing.T) {
		r, store, _ := newTestRegistry(t, DefaultOptions())
		s, _ := r.Start("f", 3, nil)
		r.WriteChunk(s.ID, 0, []byte("abc"))

		boom := errors.New("ingest failed")
		err := r.Complete(s.ID, func(model.UploadSession, *io.SectionReader) error { return boom })
		if !errors.Is(err, boom) {
			t.Errorf("Complete() error = %v, want %v", err, boom)
		}
		if r.Session(s.ID) != nil || store.count(s.ID) != 0 {
			t.Error("session not destroyed after callback error")
		}
	})
}

func TestRegistry_Cancel(t *testing.T) {
	r, store, _ := newTestRegistry(t, DefaultOptions())
	s, _ := r.Start("f", 6, nil)
	r.WriteChunk(s.ID, 0, []byte("abc"))

	if err := r.Cancel(s.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if r.Session(s.ID) != nil {
		t.Error("session still registered after Cancel")
	}
	if store.count(s.ID) != 0 {
		t.Error("chunks remain after Cancel")
	}
	if err := r.Cancel(s.ID); !errors.Is(err, vaulterr.ErrSessionNotFound) {
		t.Errorf("second Cancel() error = %v, want ErrSessionNotFound", err)
	}
	if err := r.WriteChunk(s.ID, 1, []byte("def")); !errors.Is(err, vaulterr.ErrSessionNotFound) {
		t.Errorf("WriteChunk() after Cancel error = %v, want ErrSessionNotFound", err)
	}
}

func TestRegistry_PurgeExpired(t *testing.T) {
	opts := DefaultOptions()
	opts.SessionTTL = time.Hour
	r, _, clock := newTestRegistry(t, opts)

	old, _ := r.Start("old", 3, nil)
	clock.Advance(45 * time.Minute)
	fresh, _ := r.Start("fresh", 3, nil)
	clock.Advance(30 * time.Minute)

	if n := r.PurgeExpired(); n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if r.Session(old.ID) != nil {
		t.Error("expired session still registered")
	}
	if r.Session(fresh.ID) == nil {
		t.Error("live session was purged")
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	engine := newTestEngine(t)
	clock := testutil.FixedClock()
	ids := testutil.NewStubIDGenerator()
	logger := sv.NewNopLogger()

	t.Run("filesystem store round trip", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "temp")
		cfg := config.UploadConfig{Type: "filesystem", TempDir: dir}
		r, err := NewRegistryFromConfig(cfg, 0, engine, clock, ids, logger)
		if err != nil {
			t.Fatalf("NewRegistryFromConfig() error = %v", err)
		}

		content := bytes.Repeat([]byte("filesystem chunk "), 200)
		s, err := r.Start("doc.txt", int64(len(content)), nil)
		if err != nil {
			t.Fatal(err)
		}
		if filepath.Dir(s.TempDir) != dir {
			t.Errorf("TempDir = %q, want a child of %q", s.TempDir, dir)
		}
		half := len(content) / 2
		r.WriteChunk(s.ID, 0, content[:half])
		r.WriteChunk(s.ID, 1, content[half:])

		got, err := collect(t, r, s.ID)
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if !bytes.Equal(got, content) {
			t.Error("filesystem reassembly mismatch")
		}
		if _, err := os.Stat(s.TempDir); !os.IsNotExist(err) {
			t.Errorf("session directory still exists: %v", err)
		}
	})

	t.Run("filesystem store removes stale sessions", func(t *testing.T) {
		dir := t.TempDir()
		mkdir := func(name string, mtime time.Time) string {
			path := filepath.Join(dir, name)
			if err := os.Mkdir(path, 0700); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(filepath.Join(path, chunkName(0, false)), []byte("left behind"), 0600); err != nil {
				t.Fatal(err)
			}
			if err := os.Chtimes(path, mtime, mtime); err != nil {
				t.Fatal(err)
			}
			return path
		}
		now := clock.Now()
		stale := mkdir("6f1c2b0e-6c1d-4c55-9d3a-0b8e51f2a001", now.Add(-48*time.Hour))
		fresh := mkdir("6f1c2b0e-6c1d-4c55-9d3a-0b8e51f2a002", now.Add(-time.Hour))
		unrelated := mkdir("keep-me", now.Add(-48*time.Hour))

		cfg := config.UploadConfig{Type: "filesystem", TempDir: dir, SessionTTLSeconds: 24 * 60 * 60}
		if _, err := NewRegistryFromConfig(cfg, 0, engine, clock, ids, logger); err != nil {
			t.Fatalf("NewRegistryFromConfig() error = %v", err)
		}

		if _, err := os.Stat(stale); !os.IsNotExist(err) {
			t.Errorf("stale session directory still exists: %v", err)
		}
		for _, path := range []string{fresh, unrelated} {
			if _, err := os.Stat(path); err != nil {
				t.Errorf("%s was removed: %v", filepath.Base(path), err)
			}
		}
	})

	t.Run("memory", func(t *testing.T) {
		if _, err := NewRegistryFromConfig(config.UploadConfig{Type: "memory"}, 0, engine, clock, ids, logger); err != nil {
			t.Errorf("NewRegistryFromConfig() error = %v", err)
		}
	})

	t.Run("filesystem without temp dir", func(t *testing.T) {
		if _, err := NewRegistryFromConfig(config.UploadConfig{Type: "filesystem"}, 0, engine, clock, ids, logger); err == nil {
			t.Error("expected error, got nil")
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewRegistryFromConfig(config.UploadConfig{Type: "s3"}, 0, engine, clock, ids, logger); err == nil {
			t.Error("expected error, got nil")
		}
	})
}
