package sv

import (
	"context"
	"io"
	"sync/atomic"
)

// Progress reports how far a long-running ingest or read has got. It is
// updated by the pipeline and may be polled from any goroutine.
type Progress struct {
	processed atomic.Int64
	total     atomic.Int64
}

// Processed returns the bytes handled so far in the current pass.
func (p *Progress) Processed() int64 { return p.processed.Load() }

// Total returns the size of the current pass.
func (p *Progress) Total() int64 { return p.total.Load() }

// Fraction returns Processed/Total in [0, 1].
func (p *Progress) Fraction() float64 {
	total := p.Total()
	if total <= 0 {
		return 0
	}
	return min(float64(p.Processed())/float64(total), 1)
}

func (p *Progress) begin(total int64) {
	if p == nil {
		return
	}
	p.processed.Store(0)
	p.total.Store(total)
}

func (p *Progress) add(n int) {
	if p == nil {
		return
	}
	p.processed.Add(int64(n))
}

type progressKey struct{}

// WithProgress returns a context whose pipeline calls report into p.
func WithProgress(ctx context.Context, p *Progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

func progressFrom(ctx context.Context) *Progress {
	p, _ := ctx.Value(progressKey{}).(*Progress)
	return p
}

// progressReader counts bytes into a Progress and fails with the context
// error once ctx is done.
type progressReader struct {
	ctx context.Context
	r   io.Reader
	p   *Progress
}

func (r *progressReader) Read(b []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.r.Read(b)
	r.p.add(n)
	return n, err
}

// progressReaderAt is progressReader for random-access sources.
type progressReaderAt struct {
	ctx context.Context
	r   io.ReaderAt
	p   *Progress
}

func (r *progressReaderAt) ReadAt(b []byte, off int64) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := r.r.ReadAt(b, off)
	r.p.add(n)
	return n, err
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
