package keystore

import (
	"crypto/ed25519"
	"encoding/base64"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage is an in-memory Storage that counts writes.
type memStorage struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
}

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string]string)}
}

func (m *memStorage) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *memStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.sets++
	return nil
}

func TestEnsureEncryptionKeys(t *testing.T) {
	t.Run("generates once and is idempotent", func(t *testing.T) {
		store := newMemStorage()

		first, err := EnsureEncryptionKeys(store)
		require.NoError(t, err)
		require.NotNil(t, first.PublicKey)
		require.NotNil(t, first.SecretKey)
		assert.Equal(t, 2, store.sets, "one pair means exactly two storage writes")

		second, err := EnsureEncryptionKeys(store)
		require.NoError(t, err)
		assert.Equal(t, first.PublicKeyBase64, second.PublicKeyBase64)
		assert.Equal(t, *first.SecretKey, *second.SecretKey)
		assert.Equal(t, 2, store.sets, "second call must not write again")
	})

	t.Run("returns previously persisted pair", func(t *testing.T) {
		store := newMemStorage()
		first, err := EnsureEncryptionKeys(store)
		require.NoError(t, err)

		pubB64, err := store.Get(SlotEncryptionPublic)
		require.NoError(t, err)
		assert.Equal(t, first.PublicKeyBase64, pubB64)

		decoded, err := base64.StdEncoding.DecodeString(pubB64)
		require.NoError(t, err)
		assert.Len(t, decoded, 32)
	})

	t.Run("concurrent calls agree on one pair", func(t *testing.T) {
		store := newMemStorage()

		var wg sync.WaitGroup
		results := make([]string, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				keys, err := EnsureEncryptionKeys(store)
				require.NoError(t, err)
				results[i] = keys.PublicKeyBase64
			}(i)
		}
		wg.Wait()

		for _, r := range results {
			assert.Equal(t, results[0], r)
		}
		assert.Equal(t, 2, store.sets)
	})

	t.Run("rejects corrupt stored keys", func(t *testing.T) {
		store := newMemStorage()
		require.NoError(t, store.Set(SlotEncryptionPublic, "not-base64!!"))
		require.NoError(t, store.Set(SlotEncryptionSecret, "not-base64!!"))

		_, err := EnsureEncryptionKeys(store)
		assert.Error(t, err)
	})
}

func TestLoadSigningKeyPair(t *testing.T) {
	t.Run("fails when storage is empty", func(t *testing.T) {
		store := newMemStorage()
		_, err := LoadSigningKeyPair(store)
		require.ErrorIs(t, err, ErrMissingKeyMaterial)
	})

	t.Run("fails when only one half is present", func(t *testing.T) {
		store := newMemStorage()
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		require.NoError(t, store.Set(SlotSigningPublic, base64.StdEncoding.EncodeToString(pub)))

		_, err = LoadSigningKeyPair(store)
		require.ErrorIs(t, err, ErrMissingKeyMaterial)
	})

	t.Run("returns the exact stored values", func(t *testing.T) {
		store := newMemStorage()
		generated, err := GenerateSigningKeyPair(store)
		require.NoError(t, err)

		loaded, err := LoadSigningKeyPair(store)
		require.NoError(t, err)
		assert.Equal(t, generated.PrivateKeyBase64, loaded.PrivateKeyBase64)
		assert.Equal(t, generated.PublicKeyBase64, loaded.PublicKeyBase64)
		assert.Len(t, []byte(loaded.PrivateKey), ed25519.PrivateKeySize)
		assert.Len(t, []byte(loaded.PublicKey), ed25519.PublicKeySize)
	})

	t.Run("rejects a truncated private key", func(t *testing.T) {
		store := newMemStorage()
		require.NoError(t, store.Set(SlotSigningPrivate, base64.StdEncoding.EncodeToString(make([]byte, 32))))
		require.NoError(t, store.Set(SlotSigningPublic, base64.StdEncoding.EncodeToString(make([]byte, 32))))

		_, err := LoadSigningKeyPair(store)
		assert.Error(t, err)
	})
}

func TestGenerateSigningKeyPair(t *testing.T) {
	t.Run("refuses to overwrite an existing pair", func(t *testing.T) {
		store := newMemStorage()
		_, err := GenerateSigningKeyPair(store)
		require.NoError(t, err)

		_, err = GenerateSigningKeyPair(store)
		require.ErrorIs(t, err, ErrSigningKeyExists)
	})

	t.Run("generated key signs and verifies", func(t *testing.T) {
		store := newMemStorage()
		pair, err := GenerateSigningKeyPair(store)
		require.NoError(t, err)

		msg := []byte("registration probe")
		sig := ed25519.Sign(pair.PrivateKey, msg)
		assert.True(t, ed25519.Verify(pair.PublicKey, msg, sig))
	})
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "store.json")
	store := NewFileStorage(path)

	_, err := store.Get("missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set("a", "1"))
	require.NoError(t, store.Set("b", "2"))

	v, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	// A fresh instance reads the same file.
	reopened := NewFileStorage(path)
	v, err = reopened.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}
