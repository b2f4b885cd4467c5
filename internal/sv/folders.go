package sv

import (
	"fmt"

	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

// CreateFolder creates a folder named name under parentID (nil = root).
// Sibling names are unique.
func (s *Service) CreateFolder(name string, parentID *string) (*model.FolderEntry, error) {
	if err := validateFolderName("CreateFolder", name); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	f := &model.FolderEntry{
		ID:         s.ids.New().String(),
		Name:       name,
		ParentID:   parentID,
		CreatedAt:  now,
		ModifiedAt: now,
		Status:     model.FolderActive,
	}
	if err := s.store.InsertFolder(f); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	s.logger.Info("folder created", "id", f.ID, "path", f.Path)
	return f, nil
}

// GetFolder returns a folder with its current stats.
func (s *Service) GetFolder(id string) (*model.FolderEntry, error) {
	f, err := s.store.GetFolder(id)
	if err != nil {
		return nil, fmt.Errorf("looking up folder: %w", err)
	}
	if f == nil {
		return nil, vaulterr.New(vaulterr.CodeFolderNotFound, "GetFolder")
	}
	return f, nil
}

// ListFolders returns the direct children of parentID (nil = root level).
func (s *Service) ListFolders(parentID *string) ([]*model.FolderEntry, error) {
	if err := s.requireFolder("ListFolders", parentID); err != nil {
		return nil, err
	}
	folders, err := s.store.FoldersByParent(parentID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

// RenameFolder renames a folder; descendant paths follow.
func (s *Service) RenameFolder(id, name string) error {
	if err := validateFolderName("RenameFolder", name); err != nil {
		return err
	}
	if err := s.store.RenameFolder(id, name, s.clock.Now()); err != nil {
		return fmt.Errorf("renaming folder: %w", err)
	}
	s.logger.Info("folder renamed", "id", id)
	return nil
}

// MoveFolder reparents a folder under parentID (nil = root). Moving a
// folder into itself or one of its descendants fails with
// CircularReference.
func (s *Service) MoveFolder(id string, parentID *string) error {
	if parentID != nil && *parentID == id {
		return vaulterr.New(vaulterr.CodeCircularReference, "MoveFolder")
	}
	if err := s.store.MoveFolder(id, parentID, s.clock.Now()); err != nil {
		return fmt.Errorf("moving folder: %w", err)
	}
	s.logger.Info("folder moved", "id", id)
	return nil
}

// DeleteFolder removes a folder. Without recursive the folder must be
// empty. With recursive every descendant folder and file goes too, and
// the removed files' blobs are deleted after the metadata commit.
func (s *Service) DeleteFolder(id string, recursive bool) (int, error) {
	if !recursive {
		if err := s.store.RemoveFolder(id); err != nil {
			return 0, fmt.Errorf("deleting folder: %w", err)
		}
		s.logger.Info("folder deleted", "id", id)
		return 0, nil
	}

	removed, err := s.store.RemoveFolderTree(id)
	if err != nil {
		return 0, fmt.Errorf("deleting folder tree: %w", err)
	}
	for _, f := range removed {
		s.deleteBlob(f.EncryptedFileName)
		s.forgetKey(f.ID)
	}
	s.logger.Info("folder tree deleted", "id", id, "files", len(removed))
	return len(removed), nil
}

// FolderStats reports recursive size and file count, and the number of
// direct subfolders.
type FolderStats struct {
	TotalSize  int64
	FileCount  int64
	Subfolders int64
}

// FolderStats computes a folder's stats from the file and folder rows.
func (s *Service) FolderStats(id string) (*FolderStats, error) {
	size, err := s.store.CalculateFolderSize(id)
	if err != nil {
		return nil, fmt.Errorf("calculating folder size: %w", err)
	}
	files, err := s.store.CountFilesInFolder(id)
	if err != nil {
		return nil, fmt.Errorf("counting files: %w", err)
	}
	subs, err := s.store.CountSubfolders(id)
	if err != nil {
		return nil, fmt.Errorf("counting subfolders: %w", err)
	}
	return &FolderStats{TotalSize: size, FileCount: files, Subfolders: subs}, nil
}

// ensureFolder returns the child of parentID called name, creating it if
// it does not exist.
func (s *Service) ensureFolder(name string, parentID *string) (*model.FolderEntry, error) {
	f, err := s.store.FolderByName(parentID, name)
	if err != nil {
		return nil, fmt.Errorf("looking up folder: %w", err)
	}
	if f != nil {
		return f, nil
	}
	return s.CreateFolder(name, parentID)
}
