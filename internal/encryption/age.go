package encryption

import (
	"fmt"
	"io"

	"filippo.io/age"
)

// BackupEncryptor seals metadata database snapshots with an age scrypt
// passphrase, independent of the vault master key, so a backup can be
// opened even if the vault's own key material is lost.
type BackupEncryptor struct {
	workFactor int
}

// NewBackupEncryptor returns a BackupEncryptor. A zero workFactor keeps
// age's default scrypt cost; tests pass a small value.
func NewBackupEncryptor(workFactor int) *BackupEncryptor {
	return &BackupEncryptor{workFactor: workFactor}
}

// Encrypt reads plaintext from r and writes age ciphertext to w.
func (e *BackupEncryptor) Encrypt(r io.Reader, w io.Writer, passphrase string) error {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}
	if e.workFactor > 0 {
		recipient.SetWorkFactor(e.workFactor)
	}

	encWriter, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(encWriter, r); err != nil {
		return fmt.Errorf("encrypting backup: %w", err)
	}
	if err := encWriter.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Decrypt reads age ciphertext from r and writes plaintext to w. A wrong
// passphrase fails before any plaintext is written.
func (e *BackupEncryptor) Decrypt(r io.Reader, w io.Writer, passphrase string) error {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(r, identity)
	if err != nil {
		return fmt.Errorf("unlocking backup: %w", err)
	}
	if _, err := io.Copy(w, decReader); err != nil {
		return fmt.Errorf("decrypting backup: %w", err)
	}
	return nil
}
