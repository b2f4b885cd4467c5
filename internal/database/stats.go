package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// folderNode is one row of the folder adjacency list.
type folderNode struct {
	id       string
	parentID sql.NullString
	name     string
	path     string
}

// folderTree is the folder table indexed by parent, loaded once per
// operation so that walks never issue a query per level.
type folderTree struct {
	nodes    map[string]*folderNode
	children map[string][]string // "" = root level
}

func loadFolderTree(ctx context.Context, q querier) (*folderTree, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, parent_id, name, path FROM folders ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	t := &folderTree{
		nodes:    make(map[string]*folderNode),
		children: make(map[string][]string),
	}
	for rows.Next() {
		n := &folderNode{}
		if err := rows.Scan(&n.id, &n.parentID, &n.name, &n.path); err != nil {
			return nil, err
		}
		t.nodes[n.id] = n
		t.children[n.parentID.String] = append(t.children[n.parentID.String], n.id)
	}
	return t, rows.Err()
}

// subtree returns root and all of its descendants in breadth-first order.
// A parent always precedes its children.
func (t *folderTree) subtree(root string) []string {
	order := []string{root}
	seen := map[string]bool{root: true}
	for i := 0; i < len(order); i++ {
		for _, child := range t.children[order[i]] {
			if seen[child] {
				continue
			}
			seen[child] = true
			order = append(order, child)
		}
	}
	return order
}

// contains reports whether id is root or one of its descendants.
func (t *folderTree) contains(root, id string) bool {
	for _, n := range t.subtree(root) {
		if n == id {
			return true
		}
	}
	return false
}

func folderPath(parentPath string, hasParent bool, name string) string {
	if !hasParent {
		return "/" + name
	}
	return parentPath + "/" + name
}

// rewritePaths recomputes the path of root and every descendant from the
// parent_id edges in t and writes back the ones that changed.
func rewritePaths(ctx context.Context, tx *sql.Tx, t *folderTree, root string) error {
	for _, id := range t.subtree(root) {
		n := t.nodes[id]
		var parentPath string
		if n.parentID.Valid {
			parent, ok := t.nodes[n.parentID.String]
			if !ok {
				return fmt.Errorf("folder %s has missing parent %s", id, n.parentID.String)
			}
			parentPath = parent.path
		}
		want := folderPath(parentPath, n.parentID.Valid, n.name)
		if want == n.path {
			continue
		}
		if _, err := tx.ExecContext(ctx, "UPDATE folders SET path = ? WHERE id = ?", want, id); err != nil {
			return fmt.Errorf("updating path of %s: %w", id, err)
		}
		n.path = want
	}
	return nil
}

// refreshFolderChain recomputes the materialized stats of folderID and
// each of its ancestors, innermost first. Each level is derived from its
// own files plus the already-correct stats of its direct children, so a
// mutation costs one pass up the chain rather than a subtree scan.
func refreshFolderChain(ctx context.Context, tx *sql.Tx, folderID *string) error {
	if folderID == nil {
		return nil
	}
	seen := make(map[string]bool)
	id := *folderID
	for id != "" && !seen[id] {
		seen[id] = true

		parent, err := refreshFolderStats(ctx, tx, id)
		if err != nil {
			return dbErr("refreshFolderChain", err)
		}
		id = parent.String
	}
	return nil
}

// refreshFolderStats recomputes one folder's stats and returns its parent.
func refreshFolderStats(ctx context.Context, tx *sql.Tx, id string) (sql.NullString, error) {
	var parent sql.NullString
	err := tx.QueryRowContext(ctx, "SELECT parent_id FROM folders WHERE id = ?", id).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		// Already removed in this transaction; nothing to refresh.
		return sql.NullString{}, nil
	}
	if err != nil {
		return parent, err
	}

	fileIDs, err := queryIDs(ctx, tx, "SELECT id FROM files WHERE folder_id = ? AND is_deleted = 0 ORDER BY file_name, id", id)
	if err != nil {
		return parent, fmt.Errorf("listing files of %s: %w", id, err)
	}
	childIDs, err := queryIDs(ctx, tx, "SELECT id FROM folders WHERE parent_id = ? ORDER BY name, id", id)
	if err != nil {
		return parent, fmt.Errorf("listing subfolders of %s: %w", id, err)
	}

	var ownSize, childFiles, childSize int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(file_size), 0) FROM files
		WHERE folder_id = ? AND is_deleted = 0`, id).Scan(&ownSize); err != nil {
		return parent, fmt.Errorf("summing files of %s: %w", id, err)
	}
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(file_count), 0), COALESCE(SUM(total_size), 0)
		FROM folders WHERE parent_id = ?`, id).Scan(&childFiles, &childSize); err != nil {
		return parent, fmt.Errorf("summing subfolders of %s: %w", id, err)
	}

	childJSON, err := json.Marshal(childIDs)
	if err != nil {
		return parent, err
	}
	fileJSON, err := json.Marshal(fileIDs)
	if err != nil {
		return parent, err
	}

	_, err = tx.ExecContext(ctx, `UPDATE folders SET subfolder_count = ?, file_count = ?, total_size = ?,
		child_folder_ids = ?, file_ids = ? WHERE id = ?`,
		len(childIDs), int64(len(fileIDs))+childFiles, ownSize+childSize, string(childJSON), string(fileJSON), id)
	if err != nil {
		return parent, fmt.Errorf("writing stats of %s: %w", id, err)
	}
	return parent, nil
}

func queryIDs(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
