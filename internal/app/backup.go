package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"securevault/internal/encryption"
)

// BackupMetadata writes a passphrase-encrypted snapshot of the metadata
// database to destPath. Blob content is not included; the snapshot plus
// data/files is a complete copy of the vault. An existing destPath is
// never overwritten.
func (a *VaultApp) BackupMetadata(destPath, passphrase string) error {
	if err := a.requireSession("BackupMetadata"); err != nil {
		return err
	}
	if passphrase == "" {
		return fmt.Errorf("backup passphrase is required")
	}
	if err := refuseExisting(destPath); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp("", "securevault-backup-*")
	if err != nil {
		return fmt.Errorf("creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "metadata.db")
	a.dbMu.Lock()
	err = a.store.BackupTo(snapshot)
	a.dbMu.Unlock()
	if err != nil {
		return a.op.Record(fmt.Errorf("snapshotting database: %w", err))
	}

	enc := encryption.NewBackupEncryptor(a.cfg.Backup.WorkFactor)
	if err := sealFile(snapshot, destPath, func(in *os.File, out *os.File) error {
		return enc.Encrypt(in, out, passphrase)
	}); err != nil {
		return a.op.Record(err)
	}

	a.logger.Info("metadata backed up", "dest", destPath)
	return nil
}

// DecryptMetadataBackup opens a backup written by BackupMetadata and
// writes the plain SQLite database to destPath. A wrong passphrase fails
// before anything is written.
func DecryptMetadataBackup(srcPath, destPath, passphrase string) error {
	if err := refuseExisting(destPath); err != nil {
		return err
	}
	enc := encryption.NewBackupEncryptor(0)
	return sealFile(srcPath, destPath, func(in *os.File, out *os.File) error {
		return enc.Decrypt(in, out, passphrase)
	})
}

func refuseExisting(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("output file already exists: %s", path)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checking output file: %w", err)
	}
	return nil
}

// sealFile runs transform from srcPath into a temp file next to destPath
// and renames it into place on success.
func sealFile(srcPath, destPath string, transform func(in, out *os.File) error) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer in.Close()

	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.CreateTemp(dir, ".securevault-backup-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := out.Name()

	err = transform(in, out)
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmpPath, destPath)
	}
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
