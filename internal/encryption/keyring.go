package encryption

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"securevault/internal/vaulterr"
)

// DefaultKeyCacheSize bounds the number of derived file keys kept in memory.
const DefaultKeyCacheSize = 128

// KeyRing owns the master key for an authenticated session and caches
// derived per-file keys. Evicted and cleared keys are wiped.
type KeyRing struct {
	mu     sync.RWMutex
	master *Key

	cacheMu sync.Mutex
	files   *lru.Cache[uuid.UUID, *Key]
}

// NewKeyRing creates an empty (locked) key ring.
func NewKeyRing(cacheSize int) (*KeyRing, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultKeyCacheSize
	}
	files, err := lru.NewWithEvict(cacheSize, func(_ uuid.UUID, k *Key) { k.Wipe() })
	if err != nil {
		return nil, fmt.Errorf("creating key cache: %w", err)
	}
	return &KeyRing{files: files}, nil
}

// Install takes ownership of master, replacing and wiping any previous key.
func (r *KeyRing) Install(master *Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.master != nil {
		r.master.Wipe()
	}
	r.files.Purge()
	r.master = master
}

// Unlocked reports whether a master key is installed.
func (r *KeyRing) Unlocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.master.Wiped()
}

// WithMaster runs fn with the master key. The key stays valid for the
// duration of fn; Clear waits for fn to return.
func (r *KeyRing) WithMaster(fn func(master *Key) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.master.Wiped() {
		return vaulterr.New(vaulterr.CodeNoMasterKey, "WithMaster")
	}
	return fn(r.master)
}

// FileKey returns a copy of the derived key for fileID. The caller owns the
// copy and should Wipe it when done.
func (r *KeyRing) FileKey(fileID uuid.UUID) (*Key, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.master.Wiped() {
		return nil, vaulterr.New(vaulterr.CodeNoMasterKey, "FileKey")
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	if k, ok := r.files.Get(fileID); ok && !k.Wiped() {
		return k.Clone(), nil
	}
	k, err := DeriveFileKey(r.master, fileID)
	if err != nil {
		return nil, err
	}
	out := k.Clone()
	r.files.Add(fileID, k)
	return out, nil
}

// Forget drops the cached key for fileID.
func (r *KeyRing) Forget(fileID uuid.UUID) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	r.files.Remove(fileID)
}

// Clear wipes the master key and every cached key.
func (r *KeyRing) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.master != nil {
		r.master.Wipe()
		r.master = nil
	}
	r.files.Purge()
}
