package database

import (
	"database/sql"
	"errors"
	"time"
)

// GetConfig returns the value stored under key, or nil if absent.
func (s *SQLiteDatabase) GetConfig(key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM vault_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("GetConfig", err)
	}
	return value, nil
}

// PutConfig inserts or replaces the value stored under key.
func (s *SQLiteDatabase) PutConfig(key string, value []byte) error {
	_, err := s.db.Exec(`
		INSERT INTO vault_config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	return dbErr("PutConfig", err)
}

// DeleteConfig removes key. Deleting a missing key is not an error.
func (s *SQLiteDatabase) DeleteConfig(key string) error {
	_, err := s.db.Exec("DELETE FROM vault_config WHERE key = ?", key)
	return dbErr("DeleteConfig", err)
}
