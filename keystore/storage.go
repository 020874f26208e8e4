package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by Storage.Get when no value exists for a key.
var ErrNotFound = errors.New("keystore: value not found")

// Storage is a durable string key-value store for key material and tokens.
//
// Writes only ever move a slot from empty to populated (or overwrite a token
// slot with a fresh value); there is no delete in the normal lifecycle.
type Storage interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// FileStorage persists values as a JSON object in a single file with 0600
// permissions. It is safe for concurrent use within one process.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a FileStorage backed by the given path. The file is
// created lazily on first Set.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Get returns the value stored under key, or ErrNotFound.
func (f *FileStorage) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key, creating the backing file if needed.
func (f *FileStorage) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.read()
	if err != nil {
		return err
	}
	values[key] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal storage file: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	return nil
}

func (f *FileStorage) read() (map[string]string, error) {
	values := make(map[string]string)
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return values, nil
		}
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse storage file: %w", err)
	}
	return values, nil
}

// KeyringStorage persists values in the operating system keyring under a
// fixed service name.
type KeyringStorage struct {
	Service string
}

// NewKeyringStorage creates a KeyringStorage for the given service name.
func NewKeyringStorage(service string) *KeyringStorage {
	return &KeyringStorage{Service: service}
}

// Get returns the keyring value stored under key, or ErrNotFound.
func (k *KeyringStorage) Get(key string) (string, error) {
	v, err := keyring.Get(k.Service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to read keyring entry %q: %w", key, err)
	}
	return v, nil
}

// Set stores value under key in the keyring.
func (k *KeyringStorage) Set(key, value string) error {
	if err := keyring.Set(k.Service, key, value); err != nil {
		return fmt.Errorf("failed to write keyring entry %q: %w", key, err)
	}
	return nil
}
