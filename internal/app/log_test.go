package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestVaultHandler_Handle(t *testing.T) {
	ts := time.Date(2024, 6, 15, 14, 30, 45, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "file stored",
			want:    "2024-06-15T14:30:45Z\tINFO\top-123\tfile stored\n",
		},
		{
			name:    "debug level",
			opID:    "op-456",
			level:   slog.LevelDebug,
			message: "key cache miss",
			want:    "2024-06-15T14:30:45Z\tDEBUG\top-456\tkey cache miss\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-789",
			level:   slog.LevelInfo,
			message: "upload started",
			attrs:   []slog.Attr{slog.String("path", "/docs/file.txt"), slog.Int("size", 42)},
			want:    "2024-06-15T14:30:45Z\tINFO\top-789\tupload started\tpath=/docs/file.txt\tsize=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &vaultHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestVaultHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &vaultHandler{w: &buf, opID: "op-1"}

	// Add pre-set attrs
	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "auth")}).(*vaultHandler)

	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "session expired", 0)
	r.AddAttrs(slog.String("session", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=auth") {
		t.Errorf("expected pre-set attr component=auth, got: %q", got)
	}
	if !strings.Contains(got, "session=abc") {
		t.Errorf("expected record attr session=abc, got: %q", got)
	}
}

func TestVaultHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	var buf bytes.Buffer
	h := &vaultHandler{w: &buf, opID: "op-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*vaultHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestVaultHandler_Enabled(t *testing.T) {
	h := &vaultHandler{}
	// All levels should be enabled
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}
}

func TestNewLogger_writesLogFile(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "op-7")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	adapter := (&slogAdapter{l: logger}).With("component", "upload")
	adapter.Info("upload cancelled", "session", "s-1")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "securevault.log"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	got := string(data)
	for _, want := range []string{"\tINFO\top-7\tupload cancelled", "component=upload", "session=s-1"} {
		if !strings.Contains(got, want) {
			t.Errorf("log file missing %q, got: %q", want, got)
		}
	}
}

func TestVaultHandler_redactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&vaultHandler{w: &buf, opID: "op-1"})

	logger.With("master_key", "c2VjcmV0").Info("pin changed",
		"pin", "482916",
		"recovery-key", "AAAA",
		"Passphrase", "correct horse",
		"chunk", []byte{1, 2, 3, 4},
		"session", "s-9",
	)

	got := buf.String()
	for _, leaked := range []string{"c2VjcmV0", "482916", "AAAA", "correct horse", "[1 2 3 4]"} {
		if strings.Contains(got, leaked) {
			t.Errorf("log line contains %q: %q", leaked, got)
		}
	}
	for _, want := range []string{
		"master_key=[redacted]", "pin=[redacted]", "recovery-key=[redacted]",
		"Passphrase=[redacted]", "chunk=[4 bytes]", "session=s-9",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log line missing %q: %q", want, got)
		}
	}
}

func TestSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"pin", true},
		{"old_pin", true},
		{"auth.secret", true},
		{"path", false},
		{"skipping", false},
		{"mapping", false},
		{"session", false},
	}
	for _, tt := range tests {
		if got := sensitiveKey(tt.key); got != tt.want {
			t.Errorf("sensitiveKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestVaultHandler_consoleLevel(t *testing.T) {
	var file, console bytes.Buffer
	logger := slog.New(&vaultHandler{w: &file, console: &console, consoleLevel: slog.LevelWarn, opID: "op-2"})

	logger.Info("file stored", "id", "f-1")
	logger.Warn("rollback failed", "id", "f-2")

	if n := strings.Count(file.String(), "\n"); n != 2 {
		t.Errorf("log file has %d lines, want 2", n)
	}
	if strings.Contains(console.String(), "file stored") {
		t.Errorf("info record reached the console: %q", console.String())
	}
	if !strings.Contains(console.String(), "\tWARN\top-2\trollback failed\tid=f-2") {
		t.Errorf("warning missing from console: %q", console.String())
	}
}

func TestVaultHandler_WithGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&vaultHandler{w: &buf, opID: "op-3"})

	logger.WithGroup("upload").Info("chunk stored", "index", 2, slog.Group("auth", slog.String("pin", "1234")))

	got := buf.String()
	if !strings.Contains(got, "upload.index=2") {
		t.Errorf("grouped attr missing: %q", got)
	}
	if !strings.Contains(got, "upload.auth.pin=[redacted]") || strings.Contains(got, "1234") {
		t.Errorf("nested secret not redacted: %q", got)
	}
}
