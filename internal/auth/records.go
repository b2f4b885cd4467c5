package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"securevault/internal/encryption"
	"securevault/internal/vaulterr"
)

// CredentialStore persists auth records as opaque values under string keys.
// A missing key reads as (nil, nil).
type CredentialStore interface {
	GetConfig(key string) ([]byte, error)
	PutConfig(key string, value []byte) error
	DeleteConfig(key string) error
}

const (
	keyPin            = "auth.pin"
	keyRecovery       = "auth.recovery"
	keyBruteForce     = "auth.brute_force"
	keyMasterPin      = "master_key.pin"
	keyMasterRecovery = "master_key.recovery"
)

type pinRecord struct {
	Hash       []byte     `json:"hash"`
	Salt       []byte     `json:"salt"`
	Complexity Complexity `json:"complexity"`
	CreatedAt  time.Time  `json:"created_at"`
}

type recoveryRecord struct {
	Hash      []byte    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	Used      bool      `json:"used"`
	IsActive  bool      `json:"is_active"`
}

// bruteForceState survives restarts so the attempt counter cannot be reset
// by relaunching the process. Lockouts counts consecutive lockouts since the
// last success and drives the escalation.
type bruteForceState struct {
	FailedAttempts  int        `json:"failed_attempts"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
	IsLocked        bool       `json:"is_locked"`
	LockoutUntil    *time.Time `json:"lockout_until,omitempty"`
	Lockouts        int        `json:"lockouts"`
}

func load[T any](store CredentialStore, key string) (*T, error) {
	b, err := store.GetConfig(key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if b == nil {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeCorruptedMetadata, "load", fmt.Errorf("decoding %s: %w", key, err))
	}
	return &v, nil
}

func save(store CredentialStore, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := store.PutConfig(key, b); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// wrapMaster seals the master key under secret and stores it at key.
func wrapMaster(store CredentialStore, key string, master *encryption.Key, secret []byte) error {
	sealed, err := encryption.Seal(master.Bytes(), secret)
	if err != nil {
		return fmt.Errorf("wrapping master key: %w", err)
	}
	b, err := sealed.Marshal()
	if err != nil {
		return err
	}
	if err := store.PutConfig(key, b); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// unwrapMaster opens the master key stored at key with secret.
func unwrapMaster(store CredentialStore, key string, secret []byte) (*encryption.Key, error) {
	b, err := store.GetConfig(key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if b == nil {
		return nil, vaulterr.New(vaulterr.CodeNoMasterKey, "unwrapMaster")
	}
	sealed, err := encryption.UnmarshalEncryptedData(b)
	if err != nil {
		return nil, err
	}
	raw, err := encryption.Open(sealed, secret)
	if err != nil {
		return nil, err
	}
	defer clear(raw)
	return encryption.NewKey(raw)
}
