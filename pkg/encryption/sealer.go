// Package encryption seals snapshot payloads at rest with AES-256-GCM.
//
// Keys are derived from a passphrase with PBKDF2-HMAC-SHA256. Each Sealer
// draws one random salt and stores it in every payload it seals, so a
// different Sealer built from the same passphrase can open it.
//
// Payload format:
//
//	[4 bytes magic "RZS1"][16 bytes salt][12 bytes nonce][ciphertext+tag]
//
// Example Usage:
//
//	sealer, err := encryption.NewSealer(passphrase)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	sealed, err := sealer.Seal(payload, []byte(runID))
//	...
//	plain, err := sealer.Open(sealed, []byte(runID))
//	if errors.Is(err, encryption.ErrDecryptionFailed) {
//		// wrong passphrase or tampered data
//	}
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count used by NewSealer.
	DefaultIterations = 600_000

	keySize  = 32
	saltSize = 16
)

var magic = []byte("RZS1")

// Errors
var (
	ErrEmptyPassphrase  = errors.New("encryption: empty passphrase")
	ErrInvalidData      = errors.New("encryption: invalid sealed data")
	ErrDecryptionFailed = errors.New("encryption: decryption failed (authentication error)")
)

// Sealer encrypts and decrypts payloads with a passphrase-derived key.
// Safe for concurrent use.
type Sealer struct {
	passphrase []byte
	iterations int
	salt       []byte

	mu   sync.Mutex
	keys map[string][]byte // salt -> derived key
}

// Option configures a Sealer.
type Option func(*Sealer)

// WithIterations overrides the PBKDF2 iteration count. Values below 1 are
// ignored.
func WithIterations(n int) Option {
	return func(s *Sealer) {
		if n > 0 {
			s.iterations = n
		}
	}
}

// NewSealer derives the sealing key for passphrase under a fresh random salt.
func NewSealer(passphrase string, opts ...Option) (*Sealer, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	s := &Sealer{
		passphrase: []byte(passphrase),
		iterations: DefaultIterations,
		salt:       make([]byte, saltSize),
		keys:       make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := io.ReadFull(rand.Reader, s.salt); err != nil {
		return nil, fmt.Errorf("encryption: generate salt: %w", err)
	}
	s.key(s.salt)
	return s, nil
}

// DeriveKey derives a 32-byte AES-256 key from password and salt using
// PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key(password, salt, iterations, keySize, sha256.New)
}

func (s *Sealer) key(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.keys[string(salt)]; ok {
		return k
	}
	k := DeriveKey(s.passphrase, salt, s.iterations)
	s.keys[string(salt)] = k
	return k
}

// IsSealed reports whether data starts with the sealed payload header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, magic)
}

// Seal encrypts plaintext. aad is authenticated but not stored; Open must be
// given the same aad.
func (s *Sealer) Seal(plaintext, aad []byte) ([]byte, error) {
	gcm, err := newGCM(s.key(s.salt))
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("encryption: generate nonce: %w", err)
	}

	out := make([]byte, 0, len(magic)+saltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	out = append(out, magic...)
	out = append(out, s.salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts a payload produced by Seal.
//
// Returns ErrInvalidData for truncated or foreign payloads and
// ErrDecryptionFailed when the passphrase, aad or ciphertext do not match.
func (s *Sealer) Open(sealed, aad []byte) ([]byte, error) {
	if !IsSealed(sealed) || len(sealed) < len(magic)+saltSize {
		return nil, ErrInvalidData
	}
	rest := sealed[len(magic):]
	salt, rest := rest[:saltSize], rest[saltSize:]

	gcm, err := newGCM(s.key(salt))
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrInvalidData
	}
	nonce, ciphertext := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}
	return gcm, nil
}

// SecureWipe overwrites data with zeros.
func SecureWipe(data []byte) {
	clear(data)
}

// Wipe drops the cached keys and zeroes the passphrase. The Sealer is
// unusable afterwards.
func (s *Sealer) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for salt, k := range s.keys {
		SecureWipe(k)
		delete(s.keys, salt)
	}
	SecureWipe(s.passphrase)
}
