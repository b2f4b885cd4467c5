// Package staging holds chunked upload sessions: chunks arrive one at a
// time, are stored (optionally gzip-compressed) in a per-session area, and
// are reassembled in index order once the last chunk arrives.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"
	"time"

	"securevault/internal/compress"
	"securevault/internal/model"
	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// Options tunes a Registry.
type Options struct {
	MaxFileSize       int64
	SessionTTL        time.Duration
	CompressThreshold int     // chunks at or below this size are stored raw
	MinSaving         float64 // fraction a gzip chunk must save to be kept
}

// DefaultOptions returns the registry settings used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MaxFileSize:       10 << 30,
		SessionTTL:        24 * time.Hour,
		CompressThreshold: 1024,
		MinSaving:         0.05,
	}
}

// session is the registry's view of one upload.
type session struct {
	info     model.UploadSession
	chunks   map[int]int64 // index -> plaintext bytes
	received int64
}

// Registry owns every in-flight upload session. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	store    chunkStore
	sessions map[string]*session
	engine   *compress.Engine
	opts     Options
	clock    sv.Clock
	ids      sv.IDGenerator
	logger   sv.Logger
}

func newRegistry(store chunkStore, engine *compress.Engine, opts Options, clock sv.Clock, ids sv.IDGenerator, logger sv.Logger) *Registry {
	return &Registry{
		store:    store,
		sessions: make(map[string]*session),
		engine:   engine,
		opts:     opts,
		clock:    clock,
		ids:      ids,
		logger:   logger,
	}
}

// chunkName is the on-disk name of a chunk: chunk_{index:06}_{gz|raw}.
func chunkName(index int, gz bool) string {
	if gz {
		return fmt.Sprintf("chunk_%06d_gz", index)
	}
	return fmt.Sprintf("chunk_%06d_raw", index)
}

// Start opens a session for a file of the declared size.
func (r *Registry) Start(fileName string, fileSize int64, folderID *string) (*model.UploadSession, error) {
	if fileName == "" {
		return nil, vaulterr.New(vaulterr.CodeInvalidFileName, "StartUpload")
	}
	if fileSize <= 0 {
		return nil, vaulterr.Wrap(vaulterr.CodeInvalidData, "StartUpload", fmt.Errorf("declared size %d", fileSize))
	}
	if fileSize > r.opts.MaxFileSize {
		return nil, vaulterr.Wrap(vaulterr.CodeSizeExceeded, "StartUpload",
			fmt.Errorf("declared size %d exceeds limit %d", fileSize, r.opts.MaxFileSize))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.ids.New().String()
	dir, err := r.store.Create(id)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "StartUpload", err)
	}

	s := &session{
		info: model.UploadSession{
			ID:        id,
			FileName:  fileName,
			FileSize:  fileSize,
			FolderID:  folderID,
			TempDir:   dir,
			CreatedAt: r.clock.Now(),
		},
		chunks: make(map[int]int64),
	}
	r.sessions[id] = s
	r.logger.Info("upload started", "session", id, "size", fileSize)

	info := s.info
	return &info, nil
}

// WriteChunk stores one chunk. Chunks may arrive in any order; a repeated
// index replaces the earlier chunk.
func (r *Registry) WriteChunk(sessionID string, index int, data []byte) error {
	if index < 0 {
		return vaulterr.Wrap(vaulterr.CodeInvalidData, "UploadChunk", fmt.Errorf("chunk index %d", index))
	}

	stored, gz, err := r.encodeChunk(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return vaulterr.New(vaulterr.CodeSessionNotFound, "UploadChunk")
	}

	prev := s.chunks[index]
	if s.received-prev+int64(len(data)) > s.info.FileSize {
		return vaulterr.Wrap(vaulterr.CodeSizeExceeded, "UploadChunk",
			fmt.Errorf("chunk %d would exceed declared size %d", index, s.info.FileSize))
	}

	// Drop whichever form of a previous chunk with this index exists.
	r.store.Remove(sessionID, chunkName(index, !gz))
	if err := r.store.Put(sessionID, chunkName(index, gz), stored); err != nil {
		return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "UploadChunk", err)
	}

	s.received += int64(len(data)) - prev
	s.chunks[index] = int64(len(data))
	return nil
}

// encodeChunk gzips chunks above the threshold, keeping the compressed
// form only when it saves at least MinSaving.
func (r *Registry) encodeChunk(data []byte) ([]byte, bool, error) {
	if len(data) <= r.opts.CompressThreshold {
		return data, false, nil
	}
	out, res, err := r.engine.Compress(data)
	if err != nil {
		return nil, false, err
	}
	if float64(res.SpaceSaved()) < r.opts.MinSaving*float64(res.OriginalSize) {
		return data, false, nil
	}
	return out, true, nil
}

// CompleteFunc receives the reassembled file. src is only valid for the
// duration of the call.
type CompleteFunc func(info model.UploadSession, src *io.SectionReader) error

// Complete reassembles the session's chunks in index order and hands the
// result to fn. The session is destroyed afterwards whether or not fn
// succeeds; its chunks have been consumed.
//
// Reassembly walks indices from zero and stops at the first gap. Any chunk
// received beyond that gap fails with a missing-chunk error, and a total
// that differs from the declared size fails with a size mismatch, so a
// truncated upload is never ingested.
func (r *Registry) Complete(sessionID string, fn CompleteFunc) error {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()
	if !ok {
		return vaulterr.New(vaulterr.CodeSessionNotFound, "CompleteUpload")
	}

	// The session is no longer reachable through the map, so the store
	// calls below cannot race with WriteChunk for this ID.
	defer func() {
		r.mu.Lock()
		err := r.store.Destroy(sessionID)
		r.mu.Unlock()
		if err != nil {
			r.logger.Warn("upload cleanup failed", "session", sessionID, "error", err)
		}
	}()

	if missing := firstGap(s.chunks); missing >= 0 {
		return vaulterr.Wrap(vaulterr.CodeMissingChunk, "CompleteUpload", fmt.Errorf("chunk %d never arrived", missing))
	}

	r.mu.Lock()
	a, err := r.store.Assembly(sessionID)
	r.mu.Unlock()
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CompleteUpload", err)
	}
	defer a.Close()

	n, err := r.reassemble(sessionID, a)
	if err != nil {
		return err
	}
	if n != s.info.FileSize {
		return vaulterr.Wrap(vaulterr.CodeSizeMismatch, "CompleteUpload",
			fmt.Errorf("assembled %d bytes, declared %d", n, s.info.FileSize))
	}

	r.logger.Info("upload reassembled", "session", sessionID, "size", n, "chunks", len(s.chunks))
	return fn(s.info, io.NewSectionReader(a, 0, n))
}

// firstGap returns the lowest index missing below the highest received
// index, or -1 when indices are contiguous from zero.
func firstGap(chunks map[int]int64) int {
	indices := make([]int, 0, len(chunks))
	for i := range chunks {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for want, got := range indices {
		if got != want {
			return want
		}
	}
	return -1
}

// reassemble reads chunk_000000, chunk_000001, ... until neither form of
// the next index exists, decompressing gz chunks on the way. Each chunk is
// removed as soon as it has been copied.
func (r *Registry) reassemble(sessionID string, dst io.Writer) (int64, error) {
	var total int64
	for index := 0; ; index++ {
		rc, gz, err := r.openChunk(sessionID, index)
		if errors.Is(err, fs.ErrNotExist) {
			return total, nil
		}
		if err != nil {
			return total, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "CompleteUpload", err)
		}

		var n int64
		if gz {
			n, err = r.engine.DecompressStream(dst, rc)
		} else {
			n, err = io.Copy(dst, rc)
			if err != nil {
				err = vaulterr.Wrap(vaulterr.CodeFileWriteFailed, "CompleteUpload", err)
			}
		}
		rc.Close()
		if err != nil {
			return total, fmt.Errorf("chunk %d: %w", index, err)
		}
		total += n

		r.mu.Lock()
		r.store.Remove(sessionID, chunkName(index, gz))
		r.mu.Unlock()
	}
}

func (r *Registry) openChunk(sessionID string, index int) (io.ReadCloser, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rc, err := r.store.Open(sessionID, chunkName(index, true))
	if err == nil {
		return rc, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}
	rc, err = r.store.Open(sessionID, chunkName(index, false))
	return rc, false, err
}

// Cancel discards a session and all of its chunks.
func (r *Registry) Cancel(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; !ok {
		return vaulterr.New(vaulterr.CodeSessionNotFound, "CancelUpload")
	}
	delete(r.sessions, sessionID)
	if err := r.store.Destroy(sessionID); err != nil {
		r.logger.Warn("upload cleanup failed", "session", sessionID, "error", err)
	}
	r.logger.Info("upload cancelled", "session", sessionID)
	return nil
}

// Progress reports plaintext bytes received so far and the declared total.
func (r *Registry) Progress(sessionID string) (received, total int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return 0, 0, vaulterr.New(vaulterr.CodeSessionNotFound, "UploadProgress")
	}
	return s.received, s.info.FileSize, nil
}

// Session returns a copy of a live session, or nil.
func (r *Registry) Session(sessionID string) *model.UploadSession {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	info := s.info
	return &info
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PurgeExpired destroys sessions created more than SessionTTL ago and
// returns how many were removed.
func (r *Registry) PurgeExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	purged := 0
	for id, s := range r.sessions {
		if now.Sub(s.info.CreatedAt) <= r.opts.SessionTTL {
			continue
		}
		delete(r.sessions, id)
		if err := r.store.Destroy(id); err != nil {
			r.logger.Warn("upload cleanup failed", "session", id, "error", err)
		}
		purged++
	}
	if purged > 0 {
		r.logger.Info("expired uploads purged", "count", purged)
	}
	return purged
}
