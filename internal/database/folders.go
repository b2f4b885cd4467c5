package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

const folderColumns = `id, name, parent_id, path, created_at, modified_at, status, subfolder_count,
	file_count, total_size, child_folder_ids, file_ids`

func scanFolder(row rowScanner) (*model.FolderEntry, error) {
	var (
		f                 model.FolderEntry
		parentID          sql.NullString
		childIDs, fileIDs string
	)
	err := row.Scan(&f.ID, &f.Name, &parentID, &f.Path, &f.CreatedAt, &f.ModifiedAt, &f.Status,
		&f.SubfolderCount, &f.FileCount, &f.TotalSize, &childIDs, &fileIDs)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		f.ParentID = &parentID.String
	}
	if err := json.Unmarshal([]byte(childIDs), &f.ChildFolderIDs); err != nil {
		return nil, fmt.Errorf("decoding child ids of %s: %w", f.ID, err)
	}
	if err := json.Unmarshal([]byte(fileIDs), &f.FileIDs); err != nil {
		return nil, fmt.Errorf("decoding file ids of %s: %w", f.ID, err)
	}
	return &f, nil
}

func getFolder(ctx context.Context, q querier, id string) (*model.FolderEntry, error) {
	f, err := scanFolder(q.QueryRowContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return f, err
}

// siblingExists reports whether parentID already has a child called name,
// other than the folder except.
func siblingExists(ctx context.Context, q querier, parentID *string, name, except string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM folders
		WHERE parent_id IS ? AND name = ? AND id != ?`, nullString(parentID), name, except).Scan(&n)
	return n > 0, err
}

// InsertFolder stores a new folder. Path is derived from the parent and
// written back to f.
func (s *SQLiteDatabase) InsertFolder(f *model.FolderEntry) error {
	if f.Status == "" {
		f.Status = model.FolderActive
	}
	return s.withTx("InsertFolder", func(ctx context.Context, tx *sql.Tx) error {
		var parentPath string
		if f.ParentID != nil {
			parent, err := getFolder(ctx, tx, *f.ParentID)
			if err != nil {
				return dbErr("InsertFolder", err)
			}
			if parent == nil {
				return vaulterr.New(vaulterr.CodeFolderNotFound, "InsertFolder")
			}
			parentPath = parent.Path
		}

		dup, err := siblingExists(ctx, tx, f.ParentID, f.Name, f.ID)
		if err != nil {
			return dbErr("InsertFolder", err)
		}
		if dup {
			return vaulterr.New(vaulterr.CodeDuplicateName, "InsertFolder")
		}

		f.Path = folderPath(parentPath, f.ParentID != nil, f.Name)
		_, err = tx.ExecContext(ctx, `INSERT INTO folders (id, name, parent_id, path, created_at, modified_at, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.ID, f.Name, nullString(f.ParentID), f.Path, f.CreatedAt, f.ModifiedAt, f.Status)
		if err != nil {
			return dbErr("InsertFolder", err)
		}
		return refreshFolderChain(ctx, tx, f.ParentID)
	})
}

// GetFolder returns a folder by ID, or nil if it does not exist.
func (s *SQLiteDatabase) GetFolder(id string) (*model.FolderEntry, error) {
	f, err := getFolder(context.Background(), s.db, id)
	if err != nil {
		return nil, dbErr("GetFolder", err)
	}
	return f, nil
}

// FolderByName finds the direct child of parentID called name.
func (s *SQLiteDatabase) FolderByName(parentID *string, name string) (*model.FolderEntry, error) {
	row := s.db.QueryRow("SELECT "+folderColumns+" FROM folders WHERE parent_id IS ? AND name = ?",
		nullString(parentID), name)
	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbErr("FolderByName", err)
	}
	return f, nil
}

// FoldersByParent lists the direct children of parentID (nil = root level).
func (s *SQLiteDatabase) FoldersByParent(parentID *string) ([]*model.FolderEntry, error) {
	rows, err := s.db.Query("SELECT "+folderColumns+" FROM folders WHERE parent_id IS ? ORDER BY name, id",
		nullString(parentID))
	if err != nil {
		return nil, dbErr("FoldersByParent", err)
	}
	defer rows.Close()

	var folders []*model.FolderEntry
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, dbErr("FoldersByParent", err)
		}
		folders = append(folders, f)
	}
	if err := rows.Err(); err != nil {
		return nil, dbErr("FoldersByParent", err)
	}
	return folders, nil
}

// RenameFolder renames a folder and rewrites the path of every descendant.
func (s *SQLiteDatabase) RenameFolder(id, name string, at time.Time) error {
	return s.withTx("RenameFolder", func(ctx context.Context, tx *sql.Tx) error {
		f, err := getFolder(ctx, tx, id)
		if err != nil {
			return dbErr("RenameFolder", err)
		}
		if f == nil {
			return vaulterr.New(vaulterr.CodeFolderNotFound, "RenameFolder")
		}
		dup, err := siblingExists(ctx, tx, f.ParentID, name, id)
		if err != nil {
			return dbErr("RenameFolder", err)
		}
		if dup {
			return vaulterr.New(vaulterr.CodeDuplicateName, "RenameFolder")
		}

		if _, err := tx.ExecContext(ctx, "UPDATE folders SET name = ?, modified_at = ? WHERE id = ?", name, at, id); err != nil {
			return dbErr("RenameFolder", err)
		}
		tree, err := loadFolderTree(ctx, tx)
		if err != nil {
			return dbErr("RenameFolder", err)
		}
		return dbErr("RenameFolder", rewritePaths(ctx, tx, tree, id))
	})
}

// MoveFolder reparents a folder. Moving a folder into itself or one of its
// descendants fails with a circular reference error.
func (s *SQLiteDatabase) MoveFolder(id string, parentID *string, at time.Time) error {
	return s.withTx("MoveFolder", func(ctx context.Context, tx *sql.Tx) error {
		f, err := getFolder(ctx, tx, id)
		if err != nil {
			return dbErr("MoveFolder", err)
		}
		if f == nil {
			return vaulterr.New(vaulterr.CodeFolderNotFound, "MoveFolder")
		}

		tree, err := loadFolderTree(ctx, tx)
		if err != nil {
			return dbErr("MoveFolder", err)
		}
		if parentID != nil {
			if _, ok := tree.nodes[*parentID]; !ok {
				return vaulterr.New(vaulterr.CodeFolderNotFound, "MoveFolder")
			}
			if tree.contains(id, *parentID) {
				return vaulterr.New(vaulterr.CodeCircularReference, "MoveFolder")
			}
		}

		dup, err := siblingExists(ctx, tx, parentID, f.Name, id)
		if err != nil {
			return dbErr("MoveFolder", err)
		}
		if dup {
			return vaulterr.New(vaulterr.CodeDuplicateName, "MoveFolder")
		}

		if _, err := tx.ExecContext(ctx, "UPDATE folders SET parent_id = ?, modified_at = ? WHERE id = ?",
			nullString(parentID), at, id); err != nil {
			return dbErr("MoveFolder", err)
		}

		// Patch the in-memory edge instead of reloading.
		node := tree.nodes[id]
		oldParent := node.parentID.String
		siblings := tree.children[oldParent]
		for i, c := range siblings {
			if c == id {
				tree.children[oldParent] = append(siblings[:i:i], siblings[i+1:]...)
				break
			}
		}
		node.parentID = nullString(parentID)
		tree.children[node.parentID.String] = append(tree.children[node.parentID.String], id)

		if err := rewritePaths(ctx, tx, tree, id); err != nil {
			return dbErr("MoveFolder", err)
		}
		if err := refreshFolderChain(ctx, tx, f.ParentID); err != nil {
			return err
		}
		return refreshFolderChain(ctx, tx, parentID)
	})
}

// RemoveFolder deletes an empty folder. Soft-deleted files still count as
// content.
func (s *SQLiteDatabase) RemoveFolder(id string) error {
	return s.withTx("RemoveFolder", func(ctx context.Context, tx *sql.Tx) error {
		f, err := getFolder(ctx, tx, id)
		if err != nil {
			return dbErr("RemoveFolder", err)
		}
		if f == nil {
			return vaulterr.New(vaulterr.CodeFolderNotFound, "RemoveFolder")
		}

		var children, files int64
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders WHERE parent_id = ?", id).Scan(&children); err != nil {
			return dbErr("RemoveFolder", err)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE folder_id = ?", id).Scan(&files); err != nil {
			return dbErr("RemoveFolder", err)
		}
		if children > 0 || files > 0 {
			return vaulterr.New(vaulterr.CodeFolderNotEmpty, "RemoveFolder")
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id); err != nil {
			return dbErr("RemoveFolder", err)
		}
		return refreshFolderChain(ctx, tx, f.ParentID)
	})
}

// RemoveFolderTree deletes a folder, its descendants and every file in
// them, live or soft-deleted. The removed file rows are returned so the
// caller can delete their blobs.
func (s *SQLiteDatabase) RemoveFolderTree(id string) ([]*model.FileEntry, error) {
	var removed []*model.FileEntry
	err := s.withTx("RemoveFolderTree", func(ctx context.Context, tx *sql.Tx) error {
		f, err := getFolder(ctx, tx, id)
		if err != nil {
			return dbErr("RemoveFolderTree", err)
		}
		if f == nil {
			return vaulterr.New(vaulterr.CodeFolderNotFound, "RemoveFolderTree")
		}

		tree, err := loadFolderTree(ctx, tx)
		if err != nil {
			return dbErr("RemoveFolderTree", err)
		}
		order := tree.subtree(id)

		for _, folderID := range order {
			rows, err := tx.QueryContext(ctx, "SELECT "+fileColumns+" FROM files WHERE folder_id = ?", folderID)
			if err != nil {
				return dbErr("RemoveFolderTree", err)
			}
			files, err := scanFiles(rows)
			if err != nil {
				return dbErr("RemoveFolderTree", err)
			}
			removed = append(removed, files...)
			if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE folder_id = ?", folderID); err != nil {
				return dbErr("RemoveFolderTree", err)
			}
		}

		// Children before parents so no row ever references a deleted folder.
		for i := len(order) - 1; i >= 0; i-- {
			if _, err := tx.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", order[i]); err != nil {
				return dbErr("RemoveFolderTree", err)
			}
		}
		return refreshFolderChain(ctx, tx, f.ParentID)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// subtreeTotals sums live file count and size over id and its descendants.
func (s *SQLiteDatabase) subtreeTotals(op, id string) (count, size int64, err error) {
	ctx := context.Background()
	tree, err := loadFolderTree(ctx, s.db)
	if err != nil {
		return 0, 0, dbErr(op, err)
	}
	if _, ok := tree.nodes[id]; !ok {
		return 0, 0, vaulterr.New(vaulterr.CodeFolderNotFound, op)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT folder_id, COUNT(*), COALESCE(SUM(file_size), 0) FROM files
		WHERE is_deleted = 0 AND folder_id IS NOT NULL GROUP BY folder_id`)
	if err != nil {
		return 0, 0, dbErr(op, err)
	}
	defer rows.Close()

	type totals struct{ count, size int64 }
	byFolder := make(map[string]totals)
	for rows.Next() {
		var (
			folderID string
			t        totals
		)
		if err := rows.Scan(&folderID, &t.count, &t.size); err != nil {
			return 0, 0, dbErr(op, err)
		}
		byFolder[folderID] = t
	}
	if err := rows.Err(); err != nil {
		return 0, 0, dbErr(op, err)
	}

	for _, folderID := range tree.subtree(id) {
		t := byFolder[folderID]
		count += t.count
		size += t.size
	}
	return count, size, nil
}

// CalculateFolderSize sums the plaintext size of live files in the folder
// and all its descendants.
func (s *SQLiteDatabase) CalculateFolderSize(id string) (int64, error) {
	_, size, err := s.subtreeTotals("CalculateFolderSize", id)
	return size, err
}

// CountFilesInFolder counts live files in the folder and all its descendants.
func (s *SQLiteDatabase) CountFilesInFolder(id string) (int64, error) {
	count, _, err := s.subtreeTotals("CountFilesInFolder", id)
	return count, err
}

// CountSubfolders counts direct children only.
func (s *SQLiteDatabase) CountSubfolders(id string) (int64, error) {
	var n int64
	if err := s.db.QueryRow("SELECT COUNT(*) FROM folders WHERE parent_id = ?", id).Scan(&n); err != nil {
		return 0, dbErr("CountSubfolders", err)
	}
	return n, nil
}
