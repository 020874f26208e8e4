// Package keystore manages the client's asymmetric key material.
//
// Two independent key pairs are kept, with distinct lifecycles:
//
//   - An X25519 encryption pair (nacl box), generated lazily the first time
//     a pairing flow needs it and immutable afterwards.
//   - An Ed25519 signing pair, created by an explicit registration step
//     (GenerateSigningKeyPair) and only ever loaded after that. Approval
//     signing fails hard if the pair is absent; it is never auto-generated.
//
// Both halves of each pair are persisted as base64 strings in a Storage
// backend (OS keyring or a 0600 JSON file).
//
// # Storage slots
//
//	x25519_pub / x25519_secret   encryption pair
//	@auth:ed:pub / @auth:ed:priv signing pair
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/nacl/box"
)

// Storage slot names. The names match the slots used by the mobile and web
// clients so key material survives a client swap on shared storage.
const (
	SlotEncryptionPublic = "x25519_pub"
	SlotEncryptionSecret = "x25519_secret"
	SlotSigningPrivate   = "@auth:ed:priv"
	SlotSigningPublic    = "@auth:ed:pub"
)

var (
	// ErrMissingKeyMaterial is returned when the Ed25519 signing pair is
	// required but absent from storage.
	ErrMissingKeyMaterial = errors.New("keystore: Ed25519 key pair not found in storage")

	// ErrSigningKeyExists is returned by GenerateSigningKeyPair when a pair
	// is already registered.
	ErrSigningKeyExists = errors.New("keystore: Ed25519 key pair already exists")
)

// ensureMu serializes encryption-key generation so two concurrent Ensure
// calls cannot both observe an empty store and generate distinct pairs.
var ensureMu sync.Mutex

// EncryptionKeys is the X25519 box pair used to receive encrypted payloads
// from the authorization server during pairing.
type EncryptionKeys struct {
	PublicKey       *[32]byte
	SecretKey       *[32]byte
	PublicKeyBase64 string
}

// SigningKeyPair is the Ed25519 pair used for device-approval signatures.
// PrivateKey is the 64-byte seed||public form.
type SigningKeyPair struct {
	PrivateKey       ed25519.PrivateKey
	PublicKey        ed25519.PublicKey
	PrivateKeyBase64 string
	PublicKeyBase64  string
}

// EnsureEncryptionKeys returns the persisted X25519 pair, generating and
// persisting a fresh one if no pair exists yet. The call is idempotent:
// once a pair is stored, every subsequent call returns the same keys.
func EnsureEncryptionKeys(s Storage) (*EncryptionKeys, error) {
	ensureMu.Lock()
	defer ensureMu.Unlock()

	pubB64, pubErr := s.Get(SlotEncryptionPublic)
	secB64, secErr := s.Get(SlotEncryptionSecret)
	if pubErr == nil && secErr == nil {
		return decodeEncryptionKeys(pubB64, secB64)
	}
	if pubErr != nil && !errors.Is(pubErr, ErrNotFound) {
		return nil, pubErr
	}
	if secErr != nil && !errors.Is(secErr, ErrNotFound) {
		return nil, secErr
	}

	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate X25519 key pair: %w", err)
	}
	pubB64 = base64.StdEncoding.EncodeToString(pub[:])
	secB64 = base64.StdEncoding.EncodeToString(sec[:])

	if err := s.Set(SlotEncryptionPublic, pubB64); err != nil {
		return nil, err
	}
	if err := s.Set(SlotEncryptionSecret, secB64); err != nil {
		return nil, err
	}

	return &EncryptionKeys{PublicKey: pub, SecretKey: sec, PublicKeyBase64: pubB64}, nil
}

// LoadSigningKeyPair loads the Ed25519 pair from storage. It returns
// ErrMissingKeyMaterial if either half is absent; it never generates keys.
func LoadSigningKeyPair(s Storage) (*SigningKeyPair, error) {
	privB64, err := s.Get(SlotSigningPrivate)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrMissingKeyMaterial
		}
		return nil, err
	}
	pubB64, err := s.Get(SlotSigningPublic)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrMissingKeyMaterial
		}
		return nil, err
	}
	return decodeSigningKeyPair(privB64, pubB64)
}

// GenerateSigningKeyPair creates and persists a fresh Ed25519 pair. This is
// the explicit registration step; it refuses to overwrite an existing pair.
func GenerateSigningKeyPair(s Storage) (*SigningKeyPair, error) {
	if _, err := s.Get(SlotSigningPrivate); err == nil {
		return nil, ErrSigningKeyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Ed25519 key pair: %w", err)
	}
	privB64 := base64.StdEncoding.EncodeToString(priv)
	pubB64 := base64.StdEncoding.EncodeToString(pub)

	if err := s.Set(SlotSigningPrivate, privB64); err != nil {
		return nil, err
	}
	if err := s.Set(SlotSigningPublic, pubB64); err != nil {
		return nil, err
	}

	return &SigningKeyPair{
		PrivateKey:       priv,
		PublicKey:        pub,
		PrivateKeyBase64: privB64,
		PublicKeyBase64:  pubB64,
	}, nil
}

func decodeEncryptionKeys(pubB64, secB64 string) (*EncryptionKeys, error) {
	pubBytes, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored X25519 public key: %w", err)
	}
	secBytes, err := base64.StdEncoding.DecodeString(secB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored X25519 secret key: %w", err)
	}
	if len(pubBytes) != 32 || len(secBytes) != 32 {
		return nil, fmt.Errorf("stored X25519 key pair has invalid length (%d/%d bytes)", len(pubBytes), len(secBytes))
	}
	var pub, sec [32]byte
	copy(pub[:], pubBytes)
	copy(sec[:], secBytes)
	return &EncryptionKeys{PublicKey: &pub, SecretKey: &sec, PublicKeyBase64: pubB64}, nil
}

func decodeSigningKeyPair(privB64, pubB64 string) (*SigningKeyPair, error) {
	privBytes, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored Ed25519 private key: %w", err)
	}
	pubBytes, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored Ed25519 public key: %w", err)
	}
	if len(privBytes) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("stored Ed25519 private key has invalid length %d, expected %d", len(privBytes), ed25519.PrivateKeySize)
	}
	if len(pubBytes) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("stored Ed25519 public key has invalid length %d, expected %d", len(pubBytes), ed25519.PublicKeySize)
	}
	return &SigningKeyPair{
		PrivateKey:       ed25519.PrivateKey(privBytes),
		PublicKey:        ed25519.PublicKey(pubBytes),
		PrivateKeyBase64: privB64,
		PublicKeyBase64:  pubB64,
	}, nil
}
