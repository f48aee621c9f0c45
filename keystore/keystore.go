// Package keystore implements C1: obtaining and persisting the vault's
// 32-byte master key in OS-secured storage, with a permission-restricted
// file fallback on platforms without a credential store.
package keystore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/zalando/go-keyring"

	"github.com/ghost-auth/vaultcore/vaultcrypto"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

const (
	service = "ghost-auth"
	account = "encryption-key"

	keyLen = 32

	fallbackPerm = 0o600
)

// Keystore loads, stores, and deletes the vault master key. The zero value
// is not usable; construct with [New].
type Keystore struct {
	fallbackPath string
}

// New returns a Keystore whose file fallback lives alongside the vault file
// at dataDir ("master.key").
func New(dataDir string) *Keystore {
	return &Keystore{fallbackPath: filepath.Join(dataDir, "master.key")}
}

// Load implements the migration policy of §4.1:
//
//	(a) if the OS keystore returns a key, use it and erase any legacy file;
//	(b) otherwise, if a legacy key file exists, attempt to promote it into
//	    the keystore; return the key regardless of promotion success, and
//	    erase the file only on success;
//	(c) otherwise, generate a random key and attempt to store it in the
//	    keystore, falling back to the permission-restricted file.
func (k *Keystore) Load() ([]byte, error) {
	if key, err := k.loadFromOS(); err == nil {
		_ = k.eraseFallback()
		return key, nil
	}

	if key, err := k.loadFallback(); err == nil {
		if storeErr := k.storeToOS(key); storeErr == nil {
			_ = k.eraseFallback()
		}

		return key, nil
	}

	key, err := vaultcrypto.RandBytes(keyLen)
	if err != nil {
		return nil, fmt.Errorf("keystore: generate key: %w", err)
	}

	if err := k.storeToOS(key); err == nil {
		return key, nil
	}

	if err := k.storeFallback(key); err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.Resource, fmt.Errorf("%w: %v", vaulterrors.ErrKeystoreUnavailable, err))
	}

	return key, nil
}

// Store writes key to the OS keystore, falling back to the
// permission-restricted file if the keystore is unavailable.
func (k *Keystore) Store(key []byte) error {
	if len(key) != keyLen {
		return fmt.Errorf("keystore: key must be %d bytes, got %d", keyLen, len(key))
	}

	if err := k.storeToOS(key); err == nil {
		_ = k.eraseFallback()
		return nil
	}

	return k.storeFallback(key)
}

// Delete removes the master key from both the OS keystore and the fallback
// file.
func (k *Keystore) Delete() error {
	_ = keyring.Delete(service, account)
	return k.eraseFallback()
}

func (k *Keystore) loadFromOS() ([]byte, error) {
	s, err := keyring.Get(service, account)
	if err != nil {
		return nil, err
	}

	key := []byte(s)
	if len(key) != keyLen {
		return nil, fmt.Errorf("keystore: stored key has wrong length: %d", len(key))
	}

	return key, nil
}

func (k *Keystore) storeToOS(key []byte) error {
	return keyring.Set(service, account, string(key))
}

func (k *Keystore) loadFallback() ([]byte, error) {
	if err := k.checkFallbackOwnership(); err != nil {
		return nil, err
	}

	key, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		return nil, err
	}

	if len(key) != keyLen {
		return nil, fmt.Errorf("keystore: fallback file has wrong length: %d", len(key))
	}

	return key, nil
}

func (k *Keystore) storeFallback(key []byte) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("keystore: create data dir: %w", err)
	}

	tmp := k.fallbackPath + ".tmp"

	if err := os.WriteFile(tmp, key, fallbackPerm); err != nil {
		return fmt.Errorf("keystore: write fallback key: %w", err)
	}

	if err := os.Rename(tmp, k.fallbackPath); err != nil {
		return fmt.Errorf("keystore: rename fallback key: %w", err)
	}

	return nil
}

func (k *Keystore) eraseFallback() error {
	err := os.Remove(k.fallbackPath)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return err
}
