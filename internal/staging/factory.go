package staging

import (
	"fmt"
	"time"

	"securevault/internal/compress"
	"securevault/internal/config"
	"securevault/internal/sv"
)

// NewRegistryFromConfig creates a Registry whose chunk storage is selected by cfg.Type.
func NewRegistryFromConfig(cfg config.UploadConfig, maxFileSize int64, engine *compress.Engine, clock sv.Clock, ids sv.IDGenerator, logger sv.Logger) (*Registry, error) {
	opts := DefaultOptions()
	if maxFileSize > 0 {
		opts.MaxFileSize = maxFileSize
	}
	if cfg.SessionTTLSeconds > 0 {
		opts.SessionTTL = time.Duration(cfg.SessionTTLSeconds) * time.Second
	}
	if cfg.ChunkThreshold > 0 {
		opts.CompressThreshold = cfg.ChunkThreshold
	}
	if cfg.MinSaving > 0 {
		opts.MinSaving = cfg.MinSaving
	}

	var store chunkStore
	switch cfg.Type {
	case "memory":
		store = newMemoryStore()
	case "filesystem":
		if cfg.TempDir == "" {
			return nil, fmt.Errorf("filesystem upload staging requires temp_dir to be set")
		}
		fsStore, err := newFileSystemStore(cfg.TempDir)
		if err != nil {
			return nil, err
		}
		swept, err := fsStore.sweep(clock.Now().Add(-opts.SessionTTL))
		if err != nil {
			logger.Warn("stale upload cleanup failed", "error", err)
		} else if swept > 0 {
			logger.Info("stale uploads removed", "count", swept)
		}
		store = fsStore
	default:
		return nil, fmt.Errorf("unknown upload staging type: %s", cfg.Type)
	}

	return newRegistry(store, engine, opts, clock, ids, logger), nil
}
