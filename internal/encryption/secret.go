package encryption

import (
	"runtime"

	"github.com/awnumar/memguard"

	"securevault/internal/vaulterr"
)

// KeySize is the size of every key in the hierarchy.
const KeySize = 32

// Key holds secret key bytes. Wipe overwrites them; a Key that becomes
// unreachable without being wiped is overwritten by a runtime cleanup.
type Key struct {
	b []byte
}

// NewKey copies b into a new Key. b must be KeySize bytes; the caller
// keeps ownership of b and should wipe it.
func NewKey(b []byte) (*Key, error) {
	if len(b) != KeySize {
		return nil, vaulterr.New(vaulterr.CodeInvalidKey, "NewKey")
	}
	buf := make([]byte, KeySize)
	copy(buf, b)
	return adoptKey(buf), nil
}

// adoptKey takes ownership of buf without copying.
func adoptKey(buf []byte) *Key {
	k := &Key{b: buf}
	runtime.AddCleanup(k, func(b []byte) { memguard.WipeBytes(b) }, buf)
	return k
}

// RandomKey returns a fresh key from the system CSPRNG.
func RandomKey() (*Key, error) {
	buf, err := randomBytes(KeySize)
	if err != nil {
		return nil, err
	}
	return adoptKey(buf), nil
}

// Bytes exposes the key material. The slice is invalid after Wipe.
func (k *Key) Bytes() []byte { return k.b }

// Clone returns an independent copy.
func (k *Key) Clone() *Key {
	buf := make([]byte, len(k.b))
	copy(buf, k.b)
	return adoptKey(buf)
}

// Wipe zeroes the key. It is safe to call more than once.
func (k *Key) Wipe() {
	if k == nil || k.b == nil {
		return
	}
	memguard.WipeBytes(k.b)
	k.b = nil
}

// Wiped reports whether the key has been destroyed.
func (k *Key) Wiped() bool { return k == nil || k.b == nil }
