package chunkio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestWriterReader(t *testing.T) {
	chunks := [][]byte{[]byte("alpha"), {}, bytes.Repeat([]byte{7}, 1000)}

	var buf bytes.Buffer
	w, err := NewWriter(&buf, len(chunks))
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	for _, c := range chunks {
		if err := w.WriteChunk(c); err != nil {
			t.Fatalf("WriteChunk() error = %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	wantSize := Overhead(len(chunks)) + 5 + 0 + 1000
	if int64(buf.Len()) != wantSize || w.BytesWritten() != wantSize {
		t.Errorf("size = %d (tracked %d), want %d", buf.Len(), w.BytesWritten(), wantSize)
	}
	if got := binary.LittleEndian.Uint32(buf.Bytes()[:4]); got != 3 {
		t.Errorf("header count = %d, want 3", got)
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}
	for i, want := range chunks {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next() chunk %d error = %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("chunk %d mismatch", i)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next() after last = %v, want io.EOF", err)
	}
}

func TestWriter_CountEnforced(t *testing.T) {
	t.Run("too many chunks", func(t *testing.T) {
		w, _ := NewWriter(io.Discard, 1)
		if err := w.WriteChunk([]byte("a")); err != nil {
			t.Fatal(err)
		}
		if err := w.WriteChunk([]byte("b")); err == nil {
			t.Error("expected error for extra chunk")
		}
	})

	t.Run("too few chunks", func(t *testing.T) {
		w, _ := NewWriter(io.Discard, 2)
		_ = w.WriteChunk([]byte("a"))
		if err := w.Close(); err == nil {
			t.Error("expected error closing short container")
		}
	})
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, 1)
	_ = w.WriteChunk([]byte("hello world"))

	truncated := buf.Bytes()[:buf.Len()-3]
	r, err := NewReader(bytes.NewReader(truncated))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, ErrMalformed) {
		t.Errorf("Next() error = %v, want ErrMalformed", err)
	}

	if _, err := NewReader(bytes.NewReader([]byte{1, 0})); !errors.Is(err, ErrMalformed) {
		t.Errorf("NewReader() short header error = %v, want ErrMalformed", err)
	}
}

func TestChunkCount(t *testing.T) {
	tests := []struct {
		size, chunk int64
		want        int
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{150 << 20, 32 << 20, 5},
	}
	for _, tt := range tests {
		if got := ChunkCount(tt.size, tt.chunk); got != tt.want {
			t.Errorf("ChunkCount(%d, %d) = %d, want %d", tt.size, tt.chunk, got, tt.want)
		}
	}
}
