package app

import (
	"context"
	"fmt"
	"io"

	"securevault/internal/model"
)

// StartChunkedUpload opens an upload session for a file of the declared
// size and returns its ID. Sessions older than the configured TTL are
// purged first.
func (a *VaultApp) StartChunkedUpload(name string, size int64, folderID *string) (string, error) {
	if err := a.requireSession("StartChunkedUpload"); err != nil {
		return "", err
	}
	a.uploads.PurgeExpired()
	s, err := a.uploads.Start(name, size, folderID)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// UploadChunk stores one chunk of an upload. When isLast is set the chunks
// are reassembled, ingested and the stored entry is returned; otherwise
// the returned entry is nil. The session is gone after the last chunk
// whether or not ingestion succeeded, and after a chunk that arrives with
// ctx already cancelled.
func (a *VaultApp) UploadChunk(ctx context.Context, sessionID string, index int, data []byte, isLast bool) (*model.FileEntry, error) {
	if err := a.requireSession("UploadChunk"); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		if cerr := a.uploads.Cancel(sessionID); cerr != nil {
			a.logger.Warn("cancelling upload failed", "session", sessionID, "error", cerr)
		}
		return nil, a.op.Record(fmt.Errorf("uploading chunk %d: %w", index, err))
	}
	if err := a.uploads.WriteChunk(sessionID, index, data); err != nil {
		return nil, err
	}
	if !isLast {
		return nil, nil
	}

	var entry *model.FileEntry
	err := a.uploads.Complete(sessionID, func(info model.UploadSession, src *io.SectionReader) error {
		defer a.lockContent()()
		var err error
		entry, err = a.service.AddFile(ctx, src, info.FileName, info.FolderID)
		return err
	})
	a.op.Record(err)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UploadProgress reports the bytes received so far for a session.
func (a *VaultApp) UploadProgress(sessionID string) (received, total int64, err error) {
	return a.uploads.Progress(sessionID)
}

// CancelChunkedUpload discards a session and everything it stored.
func (a *VaultApp) CancelChunkedUpload(sessionID string) error {
	return a.uploads.Cancel(sessionID)
}
