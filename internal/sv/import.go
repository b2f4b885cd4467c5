package sv

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"securevault/internal/model"
	"securevault/internal/vaulterr"
)

// ImportPath adds a file, or a directory tree, from the local filesystem.
// A directory becomes a folder of the same name under folderID, with one
// subfolder per subdirectory that contains files. Existing folders are
// reused. Files are imported in lexical order and the first failure stops
// the import; files already added stay in the vault.
func (s *Service) ImportPath(ctx context.Context, rawPath string, folderID *string) ([]*model.FileEntry, error) {
	path, err := s.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, err
	}
	if err := s.requireFolder("ImportPath", folderID); err != nil {
		return nil, err
	}

	if !path.IsDir() {
		entry, err := s.importFile(ctx, path, "", folderID)
		if err != nil {
			return nil, err
		}
		return []*model.FileEntry{entry}, nil
	}

	files, err := s.fsmgr.FindFiles(path)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "ImportPath", fmt.Errorf("finding files: %w", err))
	}
	root, err := s.ensureFolder(filepath.Base(path.String()), folderID)
	if err != nil {
		return nil, err
	}

	folders := map[string]*string{".": &root.ID}
	var added []*model.FileEntry
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		if f.Info().Size() == 0 {
			s.logger.Warn("skipping empty file", "path", f.String())
			continue
		}
		rel, err := filepath.Rel(path.String(), filepath.Dir(f.String()))
		if err != nil {
			return added, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "ImportPath", err)
		}
		parent, err := s.folderFor(folders, filepath.ToSlash(rel))
		if err != nil {
			return added, err
		}
		entry, err := s.importFile(ctx, f, "", parent)
		if err != nil {
			return added, fmt.Errorf("importing %s: %w", f.String(), err)
		}
		added = append(added, entry)
	}

	s.logger.Info("directory imported", "path", path.String(), "files", len(added))
	return added, nil
}

// folderFor returns the folder ID for a slash-separated directory relative
// to the import root, creating missing folders along the way.
func (s *Service) folderFor(folders map[string]*string, rel string) (*string, error) {
	if id, ok := folders[rel]; ok {
		return id, nil
	}
	parentRel := "."
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		parentRel = rel[:i]
	}
	parent, err := s.folderFor(folders, parentRel)
	if err != nil {
		return nil, err
	}
	f, err := s.ensureFolder(rel[strings.LastIndex(rel, "/")+1:], parent)
	if err != nil {
		return nil, err
	}
	folders[rel] = &f.ID
	return &f.ID, nil
}

// AddFromPath stores a single local file under name (the file's base name
// when empty).
func (s *Service) AddFromPath(ctx context.Context, rawPath, name string, folderID *string) (*model.FileEntry, error) {
	path, err := s.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, err
	}
	if path.IsDir() {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "AddFile", fmt.Errorf("%s is a directory", path))
	}
	return s.importFile(ctx, path, name, folderID)
}

// UpdateFromPath replaces a file's content with a local file.
func (s *Service) UpdateFromPath(ctx context.Context, id, rawPath string) (*model.FileEntry, error) {
	path, err := s.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, err
	}
	if path.IsDir() {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "UpdateFileContent", fmt.Errorf("%s is a directory", path))
	}
	src, err := s.fsmgr.Open(path)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "UpdateFileContent", err)
	}
	defer src.Close()
	return s.UpdateFileContent(ctx, id, io.NewSectionReader(src, 0, path.Info().Size()))
}

// importFile ingests one source file. A source that changed while it was
// being read is rolled back and reported as a read failure.
func (s *Service) importFile(ctx context.Context, path *Path, name string, folderID *string) (*model.FileEntry, error) {
	src, err := s.fsmgr.Open(path)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "ImportPath", err)
	}
	defer src.Close()

	info := path.Info()
	if name == "" {
		name = info.Name()
	}
	entry, err := s.AddFile(ctx, io.NewSectionReader(src, 0, info.Size()), name, folderID)
	if err != nil {
		return nil, err
	}

	current, err := s.fsmgr.Stat(path)
	if err == nil && Unchanged(info, current) {
		return entry, nil
	}
	if rerr := s.RemoveFile(entry.ID); rerr != nil {
		s.logger.Warn("rollback of changed import failed", "id", entry.ID, "error", rerr)
	}
	if err == nil {
		err = fmt.Errorf("source changed during import")
	}
	return nil, vaulterr.Wrap(vaulterr.CodeFileReadFailed, "ImportPath", err)
}
