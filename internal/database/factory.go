package database

import (
	"fmt"
	"os"
	"path/filepath"

	"securevault/internal/config"
	"securevault/internal/sv"
)

// NewDatabaseFromConfig creates a MetadataStore based on the database config type.
func NewDatabaseFromConfig(cfg config.DatabaseConfig) (sv.MetadataStore, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite database")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return openStore(cfg.Path)
	case "memory":
		return openStore(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// openStore avoids returning a typed nil inside the interface.
func openStore(path string) (sv.MetadataStore, error) {
	db, err := NewSQLiteDatabase(path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
