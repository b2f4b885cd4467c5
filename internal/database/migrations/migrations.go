package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// Status describes where a database stands against the embedded migrations.
type Status struct {
	Version uint // 0 when the database has never been migrated
	Latest  uint
	Dirty   bool
}

// Current reports whether the schema is exactly the latest version.
func (s Status) Current() bool {
	return !s.Dirty && s.Version == s.Latest
}

// ReadStatus reads the schema version without changing anything.
func ReadStatus(db *sql.DB) (Status, error) {
	latest, err := LatestVersion()
	if err != nil {
		return Status{}, err
	}
	m, err := newMigrate(db)
	if err != nil {
		return Status{}, err
	}
	// Not closing m: that would close the caller's db.

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	return Status{Version: version, Latest: latest, Dirty: dirty}, nil
}

// CheckDBMigrationStatus returns nil when the schema is at the latest
// version and an error describing the mismatch otherwise.
func CheckDBMigrationStatus(db *sql.DB) error {
	st, err := ReadStatus(db)
	if err != nil {
		return err
	}
	switch {
	case st.Dirty:
		return fmt.Errorf("schema is dirty at version %d: a migration failed part way", st.Version)
	case st.Version == 0:
		return fmt.Errorf("schema has no version: database was never migrated")
	case st.Version < st.Latest:
		return fmt.Errorf("schema version %d is behind %d", st.Version, st.Latest)
	case st.Version > st.Latest:
		return fmt.Errorf("schema version %d is newer than this binary (%d)", st.Version, st.Latest)
	}
	return nil
}

// MigrateUp brings the database to the latest version. A legacy database
// created before versioning is adopted first (see adoptLegacy).
func MigrateUp(db *sql.DB) error {
	if err := adoptLegacy(db); err != nil {
		return fmt.Errorf("adopting legacy schema: %w", err)
	}

	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// LatestVersion returns the highest migration version embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("opening embedded migrations: %w", err)
	}
	defer src.Close()

	v, err := getLatestVersion(src)
	if err != nil {
		return 0, fmt.Errorf("finding latest migration: %w", err)
	}
	return v, nil
}

// newMigrate binds the embedded files to db. The sqlite3 driver keeps its
// own schema_migrations table.
func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating sqlite3 migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}

// getLatestVersion walks the source to its last version.
func getLatestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// Next fails once there are no more migrations.
			return v, nil
		}
		v = next
	}
}
