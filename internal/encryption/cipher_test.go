package encryption

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securevault/internal/vaulterr"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	k := make([]byte, KeySize)
	_, err := rand.Read(k)
	require.NoError(t, err)
	return k
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := testKey(t)
	for _, size := range []int{1, 15, 16, 17, 1000, 1 << 16} {
		data := make([]byte, size)
		_, _ = rand.Read(data)

		blob, err := Encrypt(data, key)
		require.NoError(t, err)
		assert.Len(t, blob, size+Overhead)

		got, err := Decrypt(blob, key)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestEncrypt_FreshIV(t *testing.T) {
	key := testKey(t)
	data := []byte("same plaintext")

	a, err := Encrypt(data, key)
	require.NoError(t, err)
	b, err := Encrypt(data, key)
	require.NoError(t, err)

	assert.NotEqual(t, a[:NonceSize], b[:NonceSize])
	assert.NotEqual(t, a, b)
}

func TestEncrypt_Errors(t *testing.T) {
	_, err := Encrypt([]byte("x"), make([]byte, 16))
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidKey))

	_, err = Encrypt(nil, testKey(t))
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidData))
}

func TestDecrypt_Errors(t *testing.T) {
	key := testKey(t)

	_, err := Decrypt(make([]byte, Overhead-1), key)
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidData))

	_, err = Decrypt(make([]byte, 40), key[:31])
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidKey))

	blob, err := Encrypt([]byte("payload"), key)
	require.NoError(t, err)
	_, err = Decrypt(blob, testKey(t))
	assert.True(t, errors.Is(err, vaulterr.ErrDecryptionFailed), "wrong key")
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key := testKey(t)
	blob, err := Encrypt([]byte("tamper evident content"), key)
	require.NoError(t, err)

	for i := 0; i < len(blob); i++ {
		for bit := 0; bit < 8; bit += 3 {
			tampered := bytes.Clone(blob)
			tampered[i] ^= 1 << bit
			got, err := Decrypt(tampered, key)
			if !errors.Is(err, vaulterr.ErrDecryptionFailed) {
				t.Fatalf("byte %d bit %d: err = %v, want DecryptionFailed", i, bit, err)
			}
			if got != nil {
				t.Fatalf("byte %d bit %d: plaintext returned on failure", i, bit)
			}
		}
	}
}

func TestDecryptionFailed_IsOpaque(t *testing.T) {
	key := testKey(t)
	blob, _ := Encrypt([]byte("abc"), key)
	blob[len(blob)-1] ^= 0xff

	_, err := Decrypt(blob, key)
	var ve *vaulterr.Error
	require.True(t, errors.As(err, &ve))
	assert.Nil(t, ve.Err, "library error text must not be carried")
}

func TestDeriveMasterKey(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, SaltSize)
	salt2 := bytes.Repeat([]byte{2}, SaltSize)

	a, err := DeriveMasterKey([]byte("1234"), salt, 1000)
	require.NoError(t, err)
	b, err := DeriveMasterKey([]byte("1234"), salt, 1000)
	require.NoError(t, err)
	c, err := DeriveMasterKey([]byte("1234"), salt2, 1000)
	require.NoError(t, err)

	assert.Len(t, a.Bytes(), KeySize)
	assert.Equal(t, a.Bytes(), b.Bytes(), "derivation must be deterministic")
	assert.NotEqual(t, a.Bytes(), c.Bytes(), "different salts must give different keys")

	_, err = DeriveMasterKey([]byte("1234"), salt[:16], 1000)
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidSalt))

	_, err = DeriveMasterKey(nil, salt, 1000)
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidSecret))
}

func TestDeriveMasterKey_IterationsMatter(t *testing.T) {
	salt := make([]byte, SaltSize)
	copy(salt, "salt")
	a, err := DeriveMasterKey([]byte("password"), salt, 1)
	require.NoError(t, err)
	b, err := DeriveMasterKey([]byte("password"), salt, 2)
	require.NoError(t, err)
	assert.NotEqual(t, a.Bytes(), b.Bytes(), "iteration count must be significant")
}

func TestDeriveSubKeys(t *testing.T) {
	master, err := NewKey(testKey(t))
	require.NoError(t, err)
	id := uuid.New()

	f1, err := DeriveFileKey(master, id)
	require.NoError(t, err)
	f2, err := DeriveFileKey(master, id)
	require.NoError(t, err)
	assert.Equal(t, f1.Bytes(), f2.Bytes())

	other, err := DeriveFileKey(master, uuid.New())
	require.NoError(t, err)
	assert.NotEqual(t, f1.Bytes(), other.Bytes())

	c0, err := DeriveChunkKey(master, id, 0)
	require.NoError(t, err)
	c1, err := DeriveChunkKey(master, id, 1)
	require.NoError(t, err)
	assert.NotEqual(t, c0.Bytes(), c1.Bytes())
	assert.NotEqual(t, f1.Bytes(), c0.Bytes())

	master.Wipe()
	_, err = DeriveFileKey(master, id)
	assert.True(t, errors.Is(err, vaulterr.ErrNoMasterKey))
}

func TestKey_Wipe(t *testing.T) {
	raw := testKey(t)
	k, err := NewKey(raw)
	require.NoError(t, err)
	view := k.Bytes()

	k.Wipe()
	assert.True(t, k.Wiped())
	assert.Equal(t, make([]byte, KeySize), view, "backing bytes must be zeroed")
	k.Wipe()

	_, err = NewKey(raw[:10])
	assert.True(t, errors.Is(err, vaulterr.ErrInvalidKey))
}

func TestEnvelope_SealOpen(t *testing.T) {
	plaintext := testKey(t)

	ed, err := Seal(plaintext, []byte("1234"))
	require.NoError(t, err)
	require.NoError(t, ed.Validate())

	got, err := Open(ed, []byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	_, err = Open(ed, []byte("9999"))
	assert.True(t, errors.Is(err, vaulterr.ErrDecryptionFailed))

	encoded, err := ed.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalEncryptedData(encoded)
	require.NoError(t, err)
	got, err = Open(decoded, []byte("1234"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEnvelope_Validate(t *testing.T) {
	ed, err := Seal([]byte("payload"), []byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(m *EncryptionMetadata)
	}{
		{"short nonce", func(m *EncryptionMetadata) { m.Nonce = m.Nonce[:8] }},
		{"short tag", func(m *EncryptionMetadata) { m.Tag = m.Tag[:12] }},
		{"short salt", func(m *EncryptionMetadata) { m.Salt = m.Salt[:8] }},
		{"low iterations", func(m *EncryptionMetadata) { m.Iterations = 500 }},
		{"short hash", func(m *EncryptionMetadata) { m.DataHash = m.DataHash[:16] }},
		{"unknown algorithm", func(m *EncryptionMetadata) { m.Algorithm = "ROT13" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := *ed
			tt.mutate(&bad.Metadata)
			_, err := Open(&bad, []byte("secret"))
			assert.True(t, errors.Is(err, vaulterr.ErrCorruptedMetadata), "err = %v", err)
		})
	}
}

func TestEnvelope_HashMismatch(t *testing.T) {
	ed, err := Seal([]byte("payload"), []byte("secret"))
	require.NoError(t, err)

	ed.Metadata.DataHash = bytes.Repeat([]byte{0xab}, 32)
	_, err = Open(ed, []byte("secret"))
	assert.True(t, errors.Is(err, vaulterr.ErrCorruptedMetadata))
}

func TestChunked_RoundTrip(t *testing.T) {
	master, err := NewKey(testKey(t))
	require.NoError(t, err)
	id := uuid.New()
	data := make([]byte, 10_000)
	_, _ = rand.Read(data)
	const chunk = 3000

	var sealed bytes.Buffer
	n, err := EncryptChunked(context.Background(), &sealed, bytes.NewReader(data), int64(len(data)), master, id, chunk, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(sealed.Len()), n)
	assert.Equal(t, ChunkedSize(int64(len(data)), chunk), n)
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(sealed.Bytes()[:4]))

	var out bytes.Buffer
	m, err := DecryptChunked(context.Background(), &out, bytes.NewReader(sealed.Bytes()), master, id, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), m)
	assert.Equal(t, data, out.Bytes())

	_, err = DecryptChunked(context.Background(), &bytes.Buffer{}, bytes.NewReader(sealed.Bytes()), master, uuid.New(), 0)
	assert.True(t, errors.Is(err, vaulterr.ErrDecryptionFailed), "wrong file id must not decrypt")
}

func TestChunked_ShortSource(t *testing.T) {
	master, _ := NewKey(testKey(t))
	_, err := EncryptChunked(context.Background(), &bytes.Buffer{}, bytes.NewReader(make([]byte, 10)), 100, master, uuid.New(), 16, 0)
	assert.True(t, errors.Is(err, vaulterr.ErrFileReadFailed))
}

func TestKeyRing(t *testing.T) {
	ring, err := NewKeyRing(2)
	require.NoError(t, err)
	assert.False(t, ring.Unlocked())

	_, err = ring.FileKey(uuid.New())
	assert.True(t, errors.Is(err, vaulterr.ErrNoMasterKey))

	master, _ := NewKey(testKey(t))
	ring.Install(master)
	assert.True(t, ring.Unlocked())

	id := uuid.New()
	k1, err := ring.FileKey(id)
	require.NoError(t, err)
	want, err := DeriveFileKey(master, id)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), k1.Bytes())

	// Fill past capacity to force an eviction, then re-derive.
	_, _ = ring.FileKey(uuid.New())
	_, _ = ring.FileKey(uuid.New())
	k2, err := ring.FileKey(id)
	require.NoError(t, err)
	assert.Equal(t, want.Bytes(), k2.Bytes())

	err = ring.WithMaster(func(m *Key) error {
		assert.Equal(t, master.Bytes(), m.Bytes())
		return nil
	})
	require.NoError(t, err)

	ring.Clear()
	assert.False(t, ring.Unlocked())
	assert.True(t, master.Wiped())
	assert.False(t, k1.Wiped(), "caller-owned copies are independent")
	err = ring.WithMaster(func(*Key) error { return nil })
	assert.True(t, errors.Is(err, vaulterr.ErrNoMasterKey))
}
