package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"securevault/internal/database/migrations"
	"securevault/internal/sv"
	"securevault/internal/vaulterr"
)

// SQLiteDatabase implements sv.MetadataStore using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// Compile-time check that SQLiteDatabase implements sv.MetadataStore.
var _ sv.MetadataStore = (*SQLiteDatabase)(nil)

// NewSQLiteDatabase opens the database at path and brings its schema to
// the latest version. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, vaulterr.Wrap(vaulterr.CodeDBMigration, "NewSQLiteDatabase", err)
	}

	return &SQLiteDatabase{db: db, path: path}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing, already migrated connection.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeDBConnection, "OpenConnection", err)
	}

	// Every pooled connection to ":memory:" would be a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, vaulterr.Wrap(vaulterr.CodeDBConnection, "OpenConnection", fmt.Errorf("enabling foreign keys: %w", err))
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, vaulterr.Wrap(vaulterr.CodeDBConnection, "OpenConnection", fmt.Errorf("setting busy timeout: %w", err))
	}

	return db, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a transaction, committing only if fn succeeds.
func (s *SQLiteDatabase) withTx(op string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx := context.Background()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeDBConnection, op, fmt.Errorf("starting transaction: %w", err))
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return vaulterr.Wrap(vaulterr.CodeDBQuery, op, fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// dbErr classifies a driver error. Constraint violations are integrity
// failures; everything else is a query failure.
func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *vaulterr.Error
	if errors.As(err, &ve) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return vaulterr.Wrap(vaulterr.CodeDBIntegrity, op, err)
	}
	return vaulterr.Wrap(vaulterr.CodeDBQuery, op, err)
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	if err := migrations.CheckDBMigrationStatus(s.db); err != nil {
		return vaulterr.Wrap(vaulterr.CodeDBMigration, "CheckMigrations", err)
	}
	return nil
}

// CheckIntegrity runs SQLite's integrity check.
func (s *SQLiteDatabase) CheckIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return dbErr("CheckIntegrity", err)
	}
	if result != "ok" {
		return vaulterr.Wrap(vaulterr.CodeDBIntegrity, "CheckIntegrity", errors.New(result))
	}
	return nil
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return dbErr("BackupTo", fmt.Errorf("backing up database: %w", err))
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
