// Package credstore implements the Credential Resolver (C6): at-rest
// AES-256-GCM encryption for stored credential secrets, keyed off a
// passphrase stretched with PBKDF2, in the same shape the rest of the
// platform uses for encrypting sensitive fields.
package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength      = 32 // AES-256
	pbkdf2Iterations = 100000
)

// EncryptionConfig configures how a raw credential key is derived.
type EncryptionConfig struct {
	// Key is either a raw base64-encoded 32-byte key (KeyType "raw")
	// or a passphrase to stretch via PBKDF2 (KeyType "passphrase").
	Key        string
	KeyType    string
	Salt       string
	Iterations int
}

// DefaultEncryptionConfig returns a passphrase-derived config at the
// standard iteration count.
func DefaultEncryptionConfig(passphrase, salt string) EncryptionConfig {
	return EncryptionConfig{Key: passphrase, KeyType: "passphrase", Salt: salt, Iterations: pbkdf2Iterations}
}

// Encryptor performs AES-256-GCM encrypt/decrypt with a fixed key.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives or decodes a 32-byte key from cfg.
func NewEncryptor(cfg EncryptionConfig) (*Encryptor, error) {
	var key []byte
	switch cfg.KeyType {
	case "raw":
		decoded, err := base64.StdEncoding.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("credstore: decode raw key: %w", err)
		}
		key = decoded
	default:
		iterations := cfg.Iterations
		if iterations <= 0 {
			iterations = pbkdf2Iterations
		}
		key = pbkdf2.Key([]byte(cfg.Key), []byte(cfg.Salt), iterations, keyLength, sha256.New)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("credstore: key must be %d bytes, got %d", keyLength, len(key))
	}
	return &Encryptor{key: key}, nil
}

// Encrypt returns nonce||ciphertext for plaintext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, errors.New("credstore: ciphertext shorter than nonce")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptString encrypts s and returns a base64-encoded blob.
func (e *Encryptor) EncryptString(s string) (string, error) {
	ciphertext, err := e.Encrypt([]byte(s))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func (e *Encryptor) DecryptString(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credstore: decode ciphertext: %w", err)
	}
	plaintext, err := e.Decrypt(data)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// GenerateKey returns a fresh base64-encoded random 32-byte key,
// suitable for EncryptionConfig{KeyType: "raw"}.
func GenerateKey() (string, error) {
	key := make([]byte, keyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
