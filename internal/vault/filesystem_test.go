package vault

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

func TestFileSystemVault(t *testing.T) {
	testBlobStore(t, func(t *testing.T) sv.BlobStore {
		v, err := NewFileSystemVault(t.TempDir())
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		return v
	})
}

func TestNewFileSystemVault(t *testing.T) {
	t.Run("creates directory structure", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), ".securevault", "data", "files")

		v, err := NewFileSystemVault(dir)
		if err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
		if _, err := os.Stat(dir); err != nil {
			t.Errorf("blob directory not created: %v", err)
		}
		if v.Dir() != dir {
			t.Errorf("Dir() = %q, want %q", v.Dir(), dir)
		}
	})

	t.Run("works with existing directory", func(t *testing.T) {
		if _, err := NewFileSystemVault(t.TempDir()); err != nil {
			t.Fatalf("NewFileSystemVault() error = %v", err)
		}
	})
}

func TestFileSystemVault_RejectsUnsafeNames(t *testing.T) {
	v, err := NewFileSystemVault(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"", ".", "..", "../escape", "a/b", `a\b`, ".tmp-123"} {
		t.Run(name, func(t *testing.T) {
			err := v.PutContent(name, strings.NewReader("x"), 1)
			if !errors.Is(err, vaulterr.ErrInvalidFileName) {
				t.Errorf("PutContent(%q) error = %v, want ErrInvalidFileName", name, err)
			}
		})
	}
}

func TestFileSystemVault_AtomicWrite(t *testing.T) {
	dir := t.TempDir()
	v, err := NewFileSystemVault(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := v.PutContent("blob", strings.NewReader("first"), 5); err != nil {
		t.Fatalf("PutContent() error = %v", err)
	}
	// A failed overwrite leaves the previous content in place.
	if err := v.PutContent("blob", strings.NewReader("second"), 99); err == nil {
		t.Fatal("PutContent() expected size mismatch error")
	}

	data, err := os.ReadFile(filepath.Join(dir, "blob"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "first" {
		t.Errorf("blob content = %q, want %q", data, "first")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileSystemVault_ValidateSetup(t *testing.T) {
	dir := t.TempDir()
	v, err := NewFileSystemVault(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}

	os.RemoveAll(dir)
	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error for removed directory")
	}
}
