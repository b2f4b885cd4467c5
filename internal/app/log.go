package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"securevault/internal/sv"
)

const redacted = "[redacted]"

// sensitiveWords mark attribute keys whose values are never written. A key
// matches when any of its _ . - separated words is in the set.
var sensitiveWords = map[string]bool{
	"pin":        true,
	"passphrase": true,
	"password":   true,
	"secret":     true,
	"key":        true,
	"master":     true,
	"plaintext":  true,
}

func sensitiveKey(key string) bool {
	for _, w := range strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == '_' || r == '.' || r == '-'
	}) {
		if sensitiveWords[w] {
			return true
		}
	}
	return false
}

// vaultHandler is a slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<opID>\t<message>\t<key=value ...>
//
// Every record goes to w. Records at consoleLevel or above are also
// copied to console, when set. Values under sensitive keys are replaced
// and byte slices are written as their length only.
type vaultHandler struct {
	w            io.Writer
	console      io.Writer
	consoleLevel slog.Level
	opID         string
	group        string
	attrs        []slog.Attr
	mu           *sync.Mutex
}

func (h *vaultHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *vaultHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.opID, r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	if h.mu != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
	}
	if _, err := h.w.Write(buf.Bytes()); err != nil {
		return err
	}
	if h.console != nil && r.Level >= h.consoleLevel {
		if _, err := h.console.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func writeAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Key == "" && a.Value.Kind() != slog.KindGroup {
		return
	}
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(buf, key, ga)
		}
		return
	}
	if sensitiveKey(key) {
		fmt.Fprintf(buf, "\t%s=%s", key, redacted)
		return
	}
	if b, ok := a.Value.Any().([]byte); ok && a.Value.Kind() == slog.KindAny {
		fmt.Fprintf(buf, "\t%s=[%d bytes]", key, len(b))
		return
	}
	fmt.Fprintf(buf, "\t%s=%v", key, a.Value)
}

func (h *vaultHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	h2.attrs = append(h2.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		h2.attrs = append(h2.attrs, a)
	}
	return &h2
}

func (h *vaultHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	if h.group != "" {
		name = h.group + "." + name
	}
	h2.group = name
	return &h2
}

// newLogger creates a structured logger that writes everything to
// logDir/securevault.log and warnings and errors to stderr. It returns the
// slog.Logger, the open log file (for cleanup), and any error.
func newLogger(logDir string, opID string) (*slog.Logger, *os.File, error) {
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, "securevault.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	handler := &vaultHandler{
		w:            f,
		console:      os.Stderr,
		consoleLevel: slog.LevelWarn,
		opID:         opID,
		mu:           &sync.Mutex{},
	}
	return slog.New(handler), f, nil
}

// slogAdapter wraps *slog.Logger to satisfy the sv.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }

func (a *slogAdapter) With(args ...any) sv.Logger { return &slogAdapter{l: a.l.With(args...)} }
