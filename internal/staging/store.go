package staging

import "io"

// chunkStore abstracts where upload chunks live between arrival and
// reassembly. Concurrency is managed by the caller (Registry.mu), so
// stores do not need to be safe for concurrent use.
type chunkStore interface {
	// Create prepares storage for a session and returns its temp
	// directory ("" when not backed by disk).
	Create(sessionID string) (string, error)

	// Put stores one chunk file under name, replacing any previous one.
	Put(sessionID, name string, data []byte) error

	// Open returns a chunk for reading. A missing chunk returns an error
	// matching fs.ErrNotExist.
	Open(sessionID, name string) (io.ReadCloser, error)

	// Remove deletes a chunk file (best-effort).
	Remove(sessionID, name string)

	// Assembly creates the target the chunks are reassembled into.
	Assembly(sessionID string) (assembly, error)

	// Destroy removes everything stored for the session.
	Destroy(sessionID string) error
}

// assembly is the reassembled plaintext: written sequentially, then read
// back at random offsets by the ingestion pipeline.
type assembly interface {
	io.Writer
	io.ReaderAt
	io.Closer
}
