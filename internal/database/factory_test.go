package database

import (
	"path/filepath"
	"testing"

	"securevault/internal/config"
)

func TestNewDatabaseFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		got.Close()
	})

	t.Run("sqlite database creates parent directory", func(t *testing.T) {
		cfg := config.DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(t.TempDir(), ".securevault", "metadata.db"),
		}
		got, err := NewDatabaseFromConfig(cfg)
		if err != nil {
			t.Fatalf("NewDatabaseFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.(*SQLiteDatabase).CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
	})

	t.Run("sqlite database without path", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for missing path, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		got, err := NewDatabaseFromConfig(config.DatabaseConfig{Type: "postgres"})
		if err == nil {
			t.Error("NewDatabaseFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewDatabaseFromConfig() should return nil on error")
		}
	})
}
