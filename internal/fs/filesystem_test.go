package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestOSFilesystemManager_ResolveAndOpen(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "note.txt")
	writeFile(t, file, "hello")
	m := NewOSFilesystemManager()

	t.Run("regular file", func(t *testing.T) {
		p, err := m.Resolve(file)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if p.IsDir() || p.Info().Size() != 5 {
			t.Errorf("Resolve() = dir %v size %d", p.IsDir(), p.Info().Size())
		}

		f, err := m.Open(p)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		defer f.Close()
		got, _ := io.ReadAll(f)
		if string(got) != "hello" {
			t.Errorf("content = %q, want %q", got, "hello")
		}
		buf := make([]byte, 3)
		if _, err := f.ReadAt(buf, 2); err != nil || string(buf) != "llo" {
			t.Errorf("ReadAt() = %q, %v", buf, err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := m.Resolve(filepath.Join(dir, "missing.txt"))
		if !errors.Is(err, vaulterr.ErrFileNotFound) {
			t.Errorf("Resolve() error = %v, want ErrFileNotFound", err)
		}
	})

	t.Run("directory cannot be opened", func(t *testing.T) {
		p, err := m.Resolve(dir)
		if err != nil {
			t.Fatal(err)
		}
		if !p.IsDir() {
			t.Error("IsDir() = false for directory")
		}
		if _, err := m.Open(p); err == nil {
			t.Error("Open() on directory expected error")
		}
	})
}

func TestOSFilesystemManager_FindFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "debug.log"), "log")
	writeFile(t, filepath.Join(root, "keep.log"), "keep")
	writeFile(t, filepath.Join(root, "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(root, "cache", "c.txt"), "c")
	writeFile(t, filepath.Join(root, ".securevault", "metadata.db"), "db")
	writeFile(t, filepath.Join(root, IgnoreFileName), "*.log\n!keep.log\ncache/\n")

	m := NewOSFilesystemManager()
	p, err := m.Resolve(root)
	if err != nil {
		t.Fatal(err)
	}
	files, err := m.FindFiles(p)
	if err != nil {
		t.Fatalf("FindFiles() error = %v", err)
	}

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.String())
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"a.txt", "keep.log", "sub/b.txt"}
	if len(got) != len(want) {
		t.Fatalf("FindFiles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FindFiles()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	t.Run("extra patterns", func(t *testing.T) {
		files, err := NewOSFilesystemManager("sub/").FindFiles(p)
		if err != nil {
			t.Fatal(err)
		}
		if len(files) != 2 {
			t.Errorf("FindFiles() returned %d files, want 2", len(files))
		}
	})

	t.Run("file root", func(t *testing.T) {
		fp, _ := m.Resolve(filepath.Join(root, "a.txt"))
		if _, err := m.FindFiles(fp); err == nil {
			t.Error("FindFiles() on a file expected error")
		}
	})
}

func TestUnchanged(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f.txt")
	writeFile(t, file, "one")
	m := NewOSFilesystemManager()
	p, err := m.Resolve(file)
	if err != nil {
		t.Fatal(err)
	}

	info, _ := m.Stat(p)
	if !sv.Unchanged(p.Info(), info) {
		t.Error("Unchanged() = false for untouched file")
	}

	writeFile(t, file, "changed")
	later := time.Now().Add(time.Minute)
	os.Chtimes(file, later, later)
	info, _ = m.Stat(p)
	if sv.Unchanged(p.Info(), info) {
		t.Error("Unchanged() = true after modification")
	}
}
