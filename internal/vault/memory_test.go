package vault

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// testBlobStore runs the BlobStore contract against a fresh store from newStore.
func testBlobStore(t *testing.T, newStore func(t *testing.T) sv.BlobStore) {
	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutContent("blob-1", strings.NewReader("ciphertext"), 10); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}

		var buf bytes.Buffer
		if err := s.GetContent("blob-1", &buf); err != nil {
			t.Fatalf("GetContent() error = %v", err)
		}
		if buf.String() != "ciphertext" {
			t.Errorf("GetContent() = %q, want %q", buf.String(), "ciphertext")
		}

		size, err := s.ContentSize("blob-1")
		if err != nil || size != 10 {
			t.Errorf("ContentSize() = %d, %v; want 10", size, err)
		}
	})

	t.Run("size mismatch stores nothing", func(t *testing.T) {
		s := newStore(t)
		err := s.PutContent("blob-1", strings.NewReader("short"), 100)
		if !errors.Is(err, vaulterr.ErrSizeMismatch) {
			t.Errorf("PutContent() error = %v, want ErrSizeMismatch", err)
		}
		if _, err := s.ContentSize("blob-1"); !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("ContentSize() error = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("missing blob is not found", func(t *testing.T) {
		s := newStore(t)
		if err := s.GetContent("nope", io.Discard); !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("GetContent() error = %v, want ErrFileNotFound", err)
		}
		if _, err := s.OpenContent("nope"); !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("OpenContent() error = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("writer is invisible until commit", func(t *testing.T) {
		s := newStore(t)
		w, err := s.CreateContent("blob-2")
		if err != nil {
			t.Fatalf("CreateContent() error = %v", err)
		}
		if _, err := w.Write([]byte("partial")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if _, err := s.ContentSize("blob-2"); !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("blob visible before Commit(): %v", err)
		}

		n, err := w.Commit()
		if err != nil || n != 7 {
			t.Fatalf("Commit() = %d, %v; want 7", n, err)
		}

		r, err := s.OpenContent("blob-2")
		if err != nil {
			t.Fatalf("OpenContent() error = %v", err)
		}
		defer r.Close()
		got, _ := io.ReadAll(r)
		if string(got) != "partial" {
			t.Errorf("OpenContent() read %q, want %q", got, "partial")
		}
	})

	t.Run("abort discards", func(t *testing.T) {
		s := newStore(t)
		w, err := s.CreateContent("blob-3")
		if err != nil {
			t.Fatalf("CreateContent() error = %v", err)
		}
		w.Write([]byte("data"))
		w.Abort()

		if _, err := s.ContentSize("blob-3"); !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("aborted blob is visible: %v", err)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutContent("blob-4", strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutContent() error = %v", err)
		}
		for range 2 {
			if err := s.DeleteContent("blob-4"); err != nil {
				t.Errorf("DeleteContent() error = %v", err)
			}
		}
		if _, err := s.ContentSize("blob-4"); !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("deleted blob still present: %v", err)
		}
	})
}

func TestMemoryVault(t *testing.T) {
	testBlobStore(t, func(t *testing.T) sv.BlobStore {
		return NewMemoryVault()
	})
}

func TestMemoryVault_Names(t *testing.T) {
	m := NewMemoryVault()
	m.PutContent("a", strings.NewReader("1"), 1)
	m.PutContent("b", strings.NewReader("2"), 1)

	if got := len(m.Names()); got != 2 {
		t.Errorf("len(Names()) = %d, want 2", got)
	}
}
