package encryption

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"securevault/internal/vaulterr"
)

// Algorithm names an authenticated cipher.
type Algorithm string

const AlgorithmAES256GCM Algorithm = "AES-256-GCM"

// NonceSize returns the nonce length required by the algorithm.
func (a Algorithm) NonceSize() int {
	if a == AlgorithmAES256GCM {
		return NonceSize
	}
	return 0
}

// TagSize returns the tag length produced by the algorithm.
func (a Algorithm) TagSize() int {
	if a == AlgorithmAES256GCM {
		return TagSize
	}
	return 0
}

// EncryptionMetadata describes how an EncryptedData was produced.
type EncryptionMetadata struct {
	Algorithm  Algorithm `json:"algorithm"`
	Nonce      []byte    `json:"nonce"`
	Tag        []byte    `json:"tag"`
	Salt       []byte    `json:"salt"`
	Iterations int       `json:"iterations"`
	DataHash   []byte    `json:"data_hash"`
}

// EncryptedData is a self-describing sealed payload whose key is derived
// from a secret. It is used to wrap the vault master key under a credential.
type EncryptedData struct {
	Ciphertext []byte             `json:"ciphertext"`
	Metadata   EncryptionMetadata `json:"metadata"`
}

// Validate checks the structural invariants. Data failing validation is
// corrupt and must never be decrypted.
func (d *EncryptedData) Validate() error {
	m := d.Metadata
	switch {
	case m.Algorithm.NonceSize() == 0:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "Validate", fmt.Errorf("unknown algorithm %q", m.Algorithm))
	case len(m.Nonce) != m.Algorithm.NonceSize():
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "Validate", fmt.Errorf("nonce length %d", len(m.Nonce)))
	case len(m.Tag) != m.Algorithm.TagSize():
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "Validate", fmt.Errorf("tag length %d", len(m.Tag)))
	case len(m.Salt) < 16:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "Validate", fmt.Errorf("salt length %d", len(m.Salt)))
	case m.Iterations < FileKeyIterations:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "Validate", fmt.Errorf("iterations %d", m.Iterations))
	case len(m.DataHash) != sha256.Size:
		return vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "Validate", fmt.Errorf("data hash length %d", len(m.DataHash)))
	}
	return nil
}

// Seal derives a key from secret with a fresh salt and encrypts plaintext.
func Seal(plaintext, secret []byte) (*EncryptedData, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	key, err := DeriveMasterKey(secret, salt, MasterKeyIterations)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	blob, err := Encrypt(plaintext, key.Bytes())
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(plaintext)
	return &EncryptedData{
		Ciphertext: blob[NonceSize : len(blob)-TagSize],
		Metadata: EncryptionMetadata{
			Algorithm:  AlgorithmAES256GCM,
			Nonce:      blob[:NonceSize],
			Tag:        blob[len(blob)-TagSize:],
			Salt:       salt,
			Iterations: MasterKeyIterations,
			DataHash:   hash[:],
		},
	}, nil
}

// Open validates d, re-derives its key from secret and decrypts. A wrong
// secret yields DecryptionFailed; a plaintext that does not match the
// recorded hash yields CorruptedMetadata.
func Open(d *EncryptedData, secret []byte) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	key, err := DeriveMasterKey(secret, d.Metadata.Salt, d.Metadata.Iterations)
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	blob := make([]byte, 0, Overhead+len(d.Ciphertext))
	blob = append(blob, d.Metadata.Nonce...)
	blob = append(blob, d.Ciphertext...)
	blob = append(blob, d.Metadata.Tag...)

	plaintext, err := Decrypt(blob, key.Bytes())
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(plaintext)
	if subtle.ConstantTimeCompare(hash[:], d.Metadata.DataHash) != 1 {
		clear(plaintext)
		return nil, vaulterr.New(vaulterr.CodeCorruptedMetadata, "Open")
	}
	return plaintext, nil
}

// Marshal encodes d for storage.
func (d *EncryptedData) Marshal() ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding encrypted data: %w", err)
	}
	return b, nil
}

// UnmarshalEncryptedData decodes a stored EncryptedData.
func UnmarshalEncryptedData(b []byte) (*EncryptedData, error) {
	var d EncryptedData
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "UnmarshalEncryptedData", err)
	}
	return &d, nil
}
