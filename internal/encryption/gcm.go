package encryption

import (
	"crypto/aes"
	"crypto/cipher"

	"securevault/internal/vaulterr"
)

// Wire format of a sealed blob: IV(12) || ciphertext || tag(16), no AAD.
const (
	NonceSize = 12
	TagSize   = 16
	Overhead  = NonceSize + TagSize
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, vaulterr.New(vaulterr.CodeInvalidKey, "newGCM")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeInvalidKey, "newGCM", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeEncryptionFailed, "newGCM", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under key with a fresh random IV.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(plaintext) == 0 {
		return nil, vaulterr.New(vaulterr.CodeInvalidData, "Encrypt")
	}
	nonce, err := randomBytes(NonceSize)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeEncryptionFailed, "Encrypt", err)
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. Any authentication failure is
// reported as an opaque DecryptionFailed and no plaintext is returned.
func Decrypt(blob, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(blob) < Overhead {
		return nil, vaulterr.New(vaulterr.CodeInvalidData, "Decrypt")
	}
	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, vaulterr.New(vaulterr.CodeDecryptionFailed, "Decrypt")
	}
	return plaintext, nil
}
