package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"securevault/internal/vaulterr"
)

const (
	// SaltSize is the salt length for secret-based derivation.
	SaltSize = 32

	MasterKeyIterations = 100_000
	FileKeyIterations   = 10_000
	ChunkKeyIterations  = 5_000
)

// DeriveMasterKey runs PBKDF2-HMAC-SHA256 over secret. The salt must be
// exactly SaltSize bytes and the secret non-empty. Zero iterations selects
// MasterKeyIterations.
func DeriveMasterKey(secret, salt []byte, iterations int) (*Key, error) {
	if len(salt) != SaltSize {
		return nil, vaulterr.New(vaulterr.CodeInvalidSalt, "DeriveMasterKey")
	}
	if len(secret) == 0 {
		return nil, vaulterr.New(vaulterr.CodeInvalidSecret, "DeriveMasterKey")
	}
	if iterations == 0 {
		iterations = MasterKeyIterations
	}
	if iterations < 0 {
		return nil, vaulterr.Wrap(vaulterr.CodeInvalidData, "DeriveMasterKey", fmt.Errorf("iterations %d", iterations))
	}
	return adoptKey(pbkdf2.Key(secret, salt, iterations, KeySize, sha256.New)), nil
}

// DeriveFileKey derives the per-file key. The salt is the 16 raw bytes of
// the file's UUID.
func DeriveFileKey(master *Key, fileID uuid.UUID) (*Key, error) {
	if master.Wiped() {
		return nil, vaulterr.New(vaulterr.CodeNoMasterKey, "DeriveFileKey")
	}
	return adoptKey(pbkdf2.Key(master.Bytes(), fileID[:], FileKeyIterations, KeySize, sha256.New)), nil
}

// DeriveChunkKey derives the key for one chunk of a large file. The salt is
// the file UUID bytes followed by the chunk index as u32 little-endian.
func DeriveChunkKey(master *Key, fileID uuid.UUID, index uint32) (*Key, error) {
	if master.Wiped() {
		return nil, vaulterr.New(vaulterr.CodeNoMasterKey, "DeriveChunkKey")
	}
	salt := make([]byte, 0, len(fileID)+4)
	salt = append(salt, fileID[:]...)
	salt = binary.LittleEndian.AppendUint32(salt, index)
	return adoptKey(pbkdf2.Key(master.Bytes(), salt, ChunkKeyIterations, KeySize, sha256.New)), nil
}

// NewSalt returns SaltSize random bytes.
func NewSalt() ([]byte, error) {
	return randomBytes(SaltSize)
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeInternal, "randomBytes", err)
	}
	return b, nil
}
