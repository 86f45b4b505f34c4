// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/vibecode/internal/util"
)

// =============================================================================
// SECRET ENCRYPTION (api.key at rest)
// =============================================================================

// EncryptedPrefix marks an encrypted setting value: ENC:<base64(nonce|ciphertext)>.
const EncryptedPrefix = "ENC:"

// MasterKeyFile is created next to the config file on first encryption.
const MasterKeyFile = "master.key"

const (
	saltSize  = 32
	secretLen = 32
	keySize   = 32
	nonceSize = 12
)

// pbkdf2Iterations is a var so tests can lower it.
var pbkdf2Iterations = 600000

var (
	// ErrMasterKeyMissing is returned when an encrypted value exists but its
	// master key file does not.
	ErrMasterKeyMissing = errors.New("master key not found")
	// ErrInvalidCiphertext is returned for a malformed ENC: value.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
	// ErrDecryptionFailed is returned when the GCM tag does not verify.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")
)

// aeadCache holds one cipher per master key file content; key derivation is slow.
var aeadCache sync.Map

// IsEncrypted reports whether value carries the ENC: prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

func masterKeyPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), MasterKeyFile)
}

// deriveKey stretches the master secret with PBKDF2-SHA-256.
func deriveKey(secret, salt []byte) []byte {
	return pbkdf2.Key(secret, salt, pbkdf2Iterations, keySize, sha256.New)
}

// loadCipher returns the AEAD for the master key at path. With create set, a
// missing key file is generated (salt followed by a random secret, 0600).
func loadCipher(path string, create bool) (cipher.AEAD, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrMasterKeyMissing, path)
		}
		data = make([]byte, saltSize+secretLen)
		if _, err := io.ReadFull(rand.Reader, data); err != nil {
			return nil, fmt.Errorf("failed to generate master key: %w", err)
		}
		if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
			return nil, fmt.Errorf("failed to store master key: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}
	if len(data) != saltSize+secretLen {
		return nil, fmt.Errorf("master key %s has invalid length %d", path, len(data))
	}

	cacheKey := path + "\x00" + string(data)
	if aead, ok := aeadCache.Load(cacheKey); ok {
		return aead.(cipher.AEAD), nil
	}

	key := deriveKey(data[saltSize:], data[:saltSize])
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	aeadCache.Store(cacheKey, gcm)
	return gcm, nil
}

func encryptString(aead cipher.AEAD, plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptString(aead cipher.AEAD, value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil || len(raw) < nonceSize {
		return "", ErrInvalidCiphertext
	}
	plain, err := aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// sealSecrets returns the copy of cfg that goes to disk: api.key encrypted
// when encryption is on. cfg itself is not modified.
func sealSecrets(cfg *Config, configPath string) (*Config, error) {
	out := cfg.Clone()
	if !cfg.API.EncryptKey || cfg.API.Key == "" || IsEncrypted(cfg.API.Key) {
		return out, nil
	}
	aead, err := loadCipher(masterKeyPath(configPath), true)
	if err != nil {
		return nil, err
	}
	enc, err := encryptString(aead, cfg.API.Key)
	if err != nil {
		return nil, err
	}
	out.API.Key = enc
	return out, nil
}

// openSecrets decrypts an ENC: api.key read from configPath in place.
func openSecrets(cfg *Config, configPath string) error {
	if !IsEncrypted(cfg.API.Key) {
		return nil
	}
	aead, err := loadCipher(masterKeyPath(configPath), false)
	if err != nil {
		return fmt.Errorf("cannot decrypt api.key: %w", err)
	}
	plain, err := decryptString(aead, cfg.API.Key)
	if err != nil {
		return fmt.Errorf("cannot decrypt api.key: %w", err)
	}
	cfg.API.Key = plain
	return nil
}
