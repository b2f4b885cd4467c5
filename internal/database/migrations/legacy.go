package migrations

import (
	"database/sql"
	"fmt"
)

// column is a column that version 1 of the schema requires, with a
// definition usable in ALTER TABLE ... ADD COLUMN.
type column struct {
	name string
	def  string
}

var legacyColumns = map[string][]column{
	"files": {
		{"file_name", "TEXT NOT NULL DEFAULT ''"},
		{"original_file_name", "TEXT NOT NULL DEFAULT ''"},
		{"file_size", "INTEGER NOT NULL DEFAULT 0"},
		{"file_extension", "TEXT NOT NULL DEFAULT ''"},
		{"mime_type", "TEXT NOT NULL DEFAULT 'application/octet-stream'"},
		{"checksum", "TEXT NOT NULL DEFAULT ''"},
		{"created_date", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
		{"modified_date", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
		{"last_access_date", "DATETIME"},
		{"folder_id", "TEXT REFERENCES folders(id)"},
		{"encrypted_file_name", "TEXT NOT NULL DEFAULT ''"},
		{"encrypted_size", "INTEGER NOT NULL DEFAULT 0"},
		{"is_compressed", "INTEGER NOT NULL DEFAULT 0"},
		{"compressed_size", "INTEGER NOT NULL DEFAULT 0"},
		{"compression_ratio", "REAL NOT NULL DEFAULT 1.0"},
		{"tags", "TEXT NOT NULL DEFAULT '[]'"},
		{"description", "TEXT NOT NULL DEFAULT ''"},
		{"version", "INTEGER NOT NULL DEFAULT 1"},
		{"is_favorite", "INTEGER NOT NULL DEFAULT 0"},
		{"is_deleted", "INTEGER NOT NULL DEFAULT 0"},
		{"deleted_date", "DATETIME"},
		{"custom_properties", "TEXT NOT NULL DEFAULT '{}'"},
		{"access_count", "INTEGER NOT NULL DEFAULT 0"},
		{"security_level", "TEXT NOT NULL DEFAULT 'standard'"},
	},
	"folders": {
		{"name", "TEXT NOT NULL DEFAULT ''"},
		{"parent_id", "TEXT REFERENCES folders(id)"},
		{"path", "TEXT NOT NULL DEFAULT ''"},
		{"created_at", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
		{"modified_at", "DATETIME NOT NULL DEFAULT '1970-01-01 00:00:00'"},
		{"status", "TEXT NOT NULL DEFAULT 'active'"},
		{"subfolder_count", "INTEGER NOT NULL DEFAULT 0"},
		{"file_count", "INTEGER NOT NULL DEFAULT 0"},
		{"total_size", "INTEGER NOT NULL DEFAULT 0"},
		{"child_folder_ids", "TEXT NOT NULL DEFAULT '[]'"},
		{"file_ids", "TEXT NOT NULL DEFAULT '[]'"},
	},
}

// Columns introduced by later versions, used to decide which version a
// legacy database already matches.
var versionColumns = map[uint][]string{
	2: {"storage_format", "compression_format"},
	3: {"checksum_chunk_size"},
}

const legacyFoldersDDL = `CREATE TABLE IF NOT EXISTS folders (
    id TEXT PRIMARY KEY, name TEXT NOT NULL, parent_id TEXT REFERENCES folders(id), path TEXT NOT NULL,
    created_at DATETIME NOT NULL, modified_at DATETIME NOT NULL, status TEXT NOT NULL DEFAULT 'active',
    subfolder_count INTEGER NOT NULL DEFAULT 0, file_count INTEGER NOT NULL DEFAULT 0,
    total_size INTEGER NOT NULL DEFAULT 0, child_folder_ids TEXT NOT NULL DEFAULT '[]',
    file_ids TEXT NOT NULL DEFAULT '[]')`

const legacyConfigDDL = `CREATE TABLE IF NOT EXISTS vault_config (
    key TEXT PRIMARY KEY, value BLOB NOT NULL, updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP)`

// adoptLegacy brings an unversioned database (tables present, no
// schema_migrations) to a known version: missing columns are added with
// ALTER TABLE, and the version the result matches is stamped so that
// MigrateUp only applies what is left. Fresh and versioned databases are
// left untouched.
func adoptLegacy(db *sql.DB) error {
	versioned, err := tableExists(db, "schema_migrations")
	if err != nil {
		return err
	}
	legacy, err := tableExists(db, "files")
	if err != nil {
		return err
	}
	if versioned || !legacy {
		return nil
	}

	for _, ddl := range []string{legacyFoldersDDL, legacyConfigDDL} {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("creating missing table: %w", err)
		}
	}

	for _, table := range []string{"files", "folders"} {
		existing, err := tableColumns(db, table)
		if err != nil {
			return err
		}
		for _, c := range legacyColumns[table] {
			if existing[c.name] {
				continue
			}
			stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, c.name, c.def)
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("adding %s.%s: %w", table, c.name, err)
			}
		}
	}

	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_files_folder ON files (folder_id, is_deleted)"); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	version, err := legacyVersion(db)
	if err != nil {
		return err
	}

	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	if err := m.Force(int(version)); err != nil {
		return fmt.Errorf("stamping version %d: %w", version, err)
	}
	return nil
}

// legacyVersion returns the newest version whose columns are all present.
func legacyVersion(db *sql.DB) (uint, error) {
	existing, err := tableColumns(db, "files")
	if err != nil {
		return 0, err
	}
	version := uint(1)
	for v := uint(2); ; v++ {
		cols, ok := versionColumns[v]
		if !ok {
			break
		}
		for _, c := range cols {
			if !existing[c] {
				return version, nil
			}
		}
		version = v
	}
	return version, nil
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking table %s: %w", name, err)
	}
	return n > 0, nil
}

func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning columns of %s: %w", table, err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
