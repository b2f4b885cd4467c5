package sv

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

// GetFile returns the metadata of a file, including trashed files.
func (s *Service) GetFile(id string) (*model.FileEntry, error) {
	f, err := s.store.GetFile(id)
	if err != nil {
		return nil, fmt.Errorf("looking up file: %w", err)
	}
	if f == nil {
		return nil, vaulterr.New(vaulterr.CodeFileNotFound, "GetFile")
	}
	return f, nil
}

// ListFiles returns the live files directly in folderID (nil = root).
func (s *Service) ListFiles(folderID *string) ([]*model.FileEntry, error) {
	if err := s.requireFolder("ListFiles", folderID); err != nil {
		return nil, err
	}
	files, err := s.store.FilesByFolder(folderID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// SearchFiles matches live files by name, description or tag. A blank
// query matches nothing.
func (s *Service) SearchFiles(query string) ([]*model.FileEntry, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	files, err := s.store.SearchFiles(query)
	if err != nil {
		return nil, fmt.Errorf("searching files: %w", err)
	}
	return files, nil
}

// ListTrash returns soft-deleted files.
func (s *Service) ListTrash() ([]*model.FileEntry, error) {
	files, err := s.store.DeletedFiles()
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	return files, nil
}

// RenameFile changes a file's display name. Extension and MIME type follow
// the new name; the stored content is untouched.
func (s *Service) RenameFile(id, name string) (*model.FileEntry, error) {
	if err := validateFileName("RenameFile", name); err != nil {
		return nil, err
	}
	f, err := s.liveFile("RenameFile", id)
	if err != nil {
		return nil, err
	}

	f.FileName = name
	f.FileExtension = extension(name)
	f.MimeType = mimeType(f.FileExtension)
	f.ModifiedDate = s.clock.Now()
	if err := s.store.UpdateFile(f); err != nil {
		return nil, fmt.Errorf("renaming file: %w", err)
	}
	s.logger.Info("file renamed", "id", id)
	return f, nil
}

// MoveFile moves a file into folderID (nil = root).
func (s *Service) MoveFile(id string, folderID *string) (*model.FileEntry, error) {
	f, err := s.liveFile("MoveFile", id)
	if err != nil {
		return nil, err
	}
	if err := s.requireFolder("MoveFile", folderID); err != nil {
		return nil, err
	}
	if f.InFolder(folderID) {
		return f, nil
	}

	f.FolderID = folderID
	f.ModifiedDate = s.clock.Now()
	if err := s.store.UpdateFile(f); err != nil {
		return nil, fmt.Errorf("moving file: %w", err)
	}
	s.logger.Info("file moved", "id", id)
	return f, nil
}

// TrashFile soft-deletes a file. Its blob is kept so it can be restored.
func (s *Service) TrashFile(id string) error {
	f, err := s.liveFile("TrashFile", id)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	f.IsDeleted = true
	f.DeletedDate = &now
	if err := s.store.UpdateFile(f); err != nil {
		return fmt.Errorf("trashing file: %w", err)
	}
	s.logger.Info("file trashed", "id", id)
	return nil
}

// RestoreFile takes a file out of the trash. If its folder has since been
// removed the file is restored to the root.
func (s *Service) RestoreFile(id string) (*model.FileEntry, error) {
	f, err := s.store.GetFile(id)
	if err != nil {
		return nil, fmt.Errorf("looking up file: %w", err)
	}
	if f == nil || !f.IsDeleted {
		return nil, vaulterr.New(vaulterr.CodeFileNotFound, "RestoreFile")
	}
	if f.FolderID != nil {
		folder, err := s.store.GetFolder(*f.FolderID)
		if err != nil {
			return nil, fmt.Errorf("looking up folder: %w", err)
		}
		if folder == nil {
			f.FolderID = nil
		}
	}

	f.IsDeleted = false
	f.DeletedDate = nil
	f.ModifiedDate = s.clock.Now()
	if err := s.store.UpdateFile(f); err != nil {
		return nil, fmt.Errorf("restoring file: %w", err)
	}
	s.logger.Info("file restored", "id", id)
	return f, nil
}

// RemoveFile permanently deletes a file, live or trashed. The row goes
// first so no metadata ever points at a missing blob; a blob that cannot
// be removed afterwards is only logged.
func (s *Service) RemoveFile(id string) error {
	f, err := s.store.GetFile(id)
	if err != nil {
		return fmt.Errorf("looking up file: %w", err)
	}
	if f == nil {
		return vaulterr.New(vaulterr.CodeFileNotFound, "RemoveFile")
	}
	if err := s.store.RemoveFile(id); err != nil {
		return fmt.Errorf("removing file: %w", err)
	}
	s.deleteBlob(f.EncryptedFileName)
	s.forgetKey(f.ID)
	s.logger.Info("file removed", "id", id)
	return nil
}

// EmptyTrash permanently deletes every trashed file and returns how many
// were removed.
func (s *Service) EmptyTrash() (int, error) {
	files, err := s.ListTrash()
	if err != nil {
		return 0, err
	}
	for i, f := range files {
		if err := s.RemoveFile(f.ID); err != nil {
			return i, err
		}
	}
	return len(files), nil
}

func (s *Service) forgetKey(id string) {
	if fileID, err := uuid.Parse(id); err == nil {
		s.keys.Forget(fileID)
	}
}
