package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

const fileColumns = `id, file_name, original_file_name, file_size, file_extension, mime_type, checksum,
	checksum_chunk_size, created_date, modified_date, last_access_date, folder_id, encrypted_file_name, encrypted_size,
	is_compressed, compressed_size, compression_ratio, storage_format, compression_format, tags,
	description, version, is_favorite, is_deleted, deleted_date, custom_properties, access_count,
	security_level`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*model.FileEntry, error) {
	var (
		f            model.FileEntry
		lastAccess   sql.NullTime
		folderID     sql.NullString
		deletedDate  sql.NullTime
		tags, custom string
	)
	err := row.Scan(&f.ID, &f.FileName, &f.OriginalFileName, &f.FileSize, &f.FileExtension, &f.MimeType,
		&f.Checksum, &f.ChecksumChunkSize, &f.CreatedDate, &f.ModifiedDate, &lastAccess, &folderID, &f.EncryptedFileName,
		&f.EncryptedSize, &f.IsCompressed, &f.CompressedSize, &f.CompressionRatio, &f.StorageFormat,
		&f.CompressionFormat, &tags, &f.Description, &f.Version, &f.IsFavorite, &f.IsDeleted, &deletedDate,
		&custom, &f.AccessCount, &f.SecurityLevel)
	if err != nil {
		return nil, err
	}
	if lastAccess.Valid {
		f.LastAccessDate = &lastAccess.Time
	}
	if folderID.Valid {
		f.FolderID = &folderID.String
	}
	if deletedDate.Valid {
		f.DeletedDate = &deletedDate.Time
	}
	if err := json.Unmarshal([]byte(tags), &f.Tags); err != nil {
		return nil, fmt.Errorf("decoding tags of %s: %w", f.ID, err)
	}
	if err := json.Unmarshal([]byte(custom), &f.CustomProperties); err != nil {
		return nil, fmt.Errorf("decoding custom properties of %s: %w", f.ID, err)
	}
	return &f, nil
}

func scanFiles(rows *sql.Rows) ([]*model.FileEntry, error) {
	defer rows.Close()
	var files []*model.FileEntry
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func encodeJSON(v any, empty string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(b) == "null" {
		return empty, nil
	}
	return string(b), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// InsertFile stores a new file entry and refreshes its folder chain.
func (s *SQLiteDatabase) InsertFile(f *model.FileEntry) error {
	tags, err := encodeJSON(f.Tags, "[]")
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeInternal, "InsertFile", err)
	}
	custom, err := encodeJSON(f.CustomProperties, "{}")
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeInternal, "InsertFile", err)
	}

	return s.withTx("InsertFile", func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO files (`+fileColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.FileName, f.OriginalFileName, f.FileSize, f.FileExtension, f.MimeType, f.Checksum,
			f.ChecksumChunkSize, f.CreatedDate, f.ModifiedDate, nullTime(f.LastAccessDate), nullString(f.FolderID),
			f.EncryptedFileName, f.EncryptedSize, f.IsCompressed, f.CompressedSize, f.CompressionRatio,
			f.StorageFormat, f.CompressionFormat, tags, f.Description, f.Version, f.IsFavorite, f.IsDeleted,
			nullTime(f.DeletedDate), custom, f.AccessCount, f.SecurityLevel)
		if err != nil {
			return dbErr("InsertFile", err)
		}
		return refreshFolderChain(ctx, tx, f.FolderID)
	})
}

// UpdateFile replaces every mutable column of an existing entry.
func (s *SQLiteDatabase) UpdateFile(f *model.FileEntry) error {
	tags, err := encodeJSON(f.Tags, "[]")
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeInternal, "UpdateFile", err)
	}
	custom, err := encodeJSON(f.CustomProperties, "{}")
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeInternal, "UpdateFile", err)
	}

	return s.withTx("UpdateFile", func(ctx context.Context, tx *sql.Tx) error {
		var oldFolder sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT folder_id FROM files WHERE id = ?", f.ID).Scan(&oldFolder)
		if errors.Is(err, sql.ErrNoRows) {
			return vaulterr.New(vaulterr.CodeFileNotFound, "UpdateFile")
		}
		if err != nil {
			return dbErr("UpdateFile", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE files SET
			file_name = ?, original_file_name = ?, file_size = ?, file_extension = ?, mime_type = ?,
			checksum = ?, checksum_chunk_size = ?, modified_date = ?, last_access_date = ?, folder_id = ?, encrypted_file_name = ?,
			encrypted_size = ?, is_compressed = ?, compressed_size = ?, compression_ratio = ?,
			storage_format = ?, compression_format = ?, tags = ?, description = ?, version = ?,
			is_favorite = ?, is_deleted = ?, deleted_date = ?, custom_properties = ?, access_count = ?,
			security_level = ?
			WHERE id = ?`,
			f.FileName, f.OriginalFileName, f.FileSize, f.FileExtension, f.MimeType, f.Checksum,
			f.ChecksumChunkSize, f.ModifiedDate, nullTime(f.LastAccessDate), nullString(f.FolderID), f.EncryptedFileName,
			f.EncryptedSize, f.IsCompressed, f.CompressedSize, f.CompressionRatio, f.StorageFormat,
			f.CompressionFormat, tags, f.Description, f.Version, f.IsFavorite, f.IsDeleted,
			nullTime(f.DeletedDate), custom, f.AccessCount, f.SecurityLevel, f.ID)
		if err != nil {
			return dbErr("UpdateFile", err)
		}

		if err := refreshFolderChain(ctx, tx, f.FolderID); err != nil {
			return err
		}
		if oldFolder.Valid && (f.FolderID == nil || *f.FolderID != oldFolder.String) {
			return refreshFolderChain(ctx, tx, &oldFolder.String)
		}
		return nil
	})
}

// GetFile returns a file by ID, or nil if it does not exist.
func (s *SQLiteDatabase) GetFile(id string) (*model.FileEntry, error) {
	row := s.db.QueryRow("SELECT "+fileColumns+" FROM files WHERE id = ?", id)
	f, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("GetFile", err)
	}
	return f, nil
}

// FilesByFolder lists live files directly in folderID (nil = root).
func (s *SQLiteDatabase) FilesByFolder(folderID *string) ([]*model.FileEntry, error) {
	rows, err := s.db.Query("SELECT "+fileColumns+` FROM files
		WHERE folder_id IS ? AND is_deleted = 0 ORDER BY file_name, id`, nullString(folderID))
	if err != nil {
		return nil, dbErr("FilesByFolder", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, dbErr("FilesByFolder", err)
	}
	return files, nil
}

// DeletedFiles lists soft-deleted files, most recently deleted first.
func (s *SQLiteDatabase) DeletedFiles() ([]*model.FileEntry, error) {
	rows, err := s.db.Query("SELECT " + fileColumns + ` FROM files
		WHERE is_deleted = 1 ORDER BY deleted_date DESC, id`)
	if err != nil {
		return nil, dbErr("DeletedFiles", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, dbErr("DeletedFiles", err)
	}
	return files, nil
}

// escapeLike escapes LIKE wildcards so query is matched literally.
func escapeLike(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(query)
}

// SearchFiles matches live files whose name, description or tags contain
// query (case-insensitive for ASCII).
func (s *SQLiteDatabase) SearchFiles(query string) ([]*model.FileEntry, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.Query("SELECT "+fileColumns+` FROM files
		WHERE is_deleted = 0
		  AND (file_name LIKE ?1 ESCAPE '\' OR description LIKE ?1 ESCAPE '\' OR tags LIKE ?1 ESCAPE '\')
		ORDER BY file_name, id`, pattern)
	if err != nil {
		return nil, dbErr("SearchFiles", err)
	}
	files, err := scanFiles(rows)
	if err != nil {
		return nil, dbErr("SearchFiles", err)
	}
	return files, nil
}

// RecordAccess increments access_count and sets last_access_date.
func (s *SQLiteDatabase) RecordAccess(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE files SET access_count = access_count + 1, last_access_date = ?
		WHERE id = ?`, at, id)
	if err != nil {
		return dbErr("RecordAccess", err)
	}
	return requireAffected(res, vaulterr.CodeFileNotFound, "RecordAccess")
}

// RemoveFile deletes the row and refreshes its folder chain.
func (s *SQLiteDatabase) RemoveFile(id string) error {
	return s.withTx("RemoveFile", func(ctx context.Context, tx *sql.Tx) error {
		var folder sql.NullString
		err := tx.QueryRowContext(ctx, "SELECT folder_id FROM files WHERE id = ?", id).Scan(&folder)
		if errors.Is(err, sql.ErrNoRows) {
			return vaulterr.New(vaulterr.CodeFileNotFound, "RemoveFile")
		}
		if err != nil {
			return dbErr("RemoveFile", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id); err != nil {
			return dbErr("RemoveFile", err)
		}
		if folder.Valid {
			return refreshFolderChain(ctx, tx, &folder.String)
		}
		return nil
	})
}

func requireAffected(res sql.Result, code vaulterr.Code, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(op, err)
	}
	if n == 0 {
		return vaulterr.New(code, op)
	}
	return nil
}
