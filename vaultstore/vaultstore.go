// Package vaultstore implements C2: encrypting, persisting, and mutating
// the single-file account vault described in §3 and §4.2 of the data
// model.
package vaultstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/internal/corelog"
	"github.com/ghost-auth/vaultcore/vaultcrypto"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

const (
	currentVersion = 2

	nonceSize = 12

	// tombstoneRetention is how long a tombstone is kept after deletion
	// before being pruned on save, per §3.
	tombstoneRetention = 90 * 24 * time.Hour

	filePerm = 0o600
)

var log = corelog.New("vaultstore")

// payload is the plaintext JSON structure sealed inside the vault file.
type payload struct {
	Version    int                 `json:"version"`
	DeviceID   string              `json:"device_id"`
	Accounts   []account.Account   `json:"accounts"`
	Tombstones []account.Tombstone `json:"tombstones"`
}

// Store is the guarded, process-wide handle to an open vault. The zero
// value is not usable; construct with [Open].
type Store struct {
	mu sync.Mutex

	path     string
	key      []byte
	deviceID string

	accounts   []account.Account
	tombstones []account.Tombstone

	poisoned bool
}

// Open decrypts (or creates) the vault file at filepath.Join(dataDir,
// "accounts.enc") using key, a 32-byte master key sourced from [keystore].
//
// If the file is short or fails to decrypt, the store starts empty and the
// original file (if any) is preserved as "<path>.bak"; this is logged, not
// returned as an error, per §4.2 and §7.
func Open(dataDir string, key []byte) (*Store, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("vaultstore: key must be 32 bytes, got %d", len(key))
	}

	path := filepath.Join(dataDir, "accounts.enc")

	s := &Store{path: path, key: key}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.deviceID = uuid.NewString()
			return s, nil
		}

		return nil, fmt.Errorf("vaultstore: read vault file: %w", err)
	}

	p, ok := s.decrypt(raw)
	if !ok {
		log.Printf("decrypt failed for %q, quarantining and starting empty", path)

		if err := quarantine(path); err != nil {
			log.Printf("quarantine failed for %q: %v", path, err)
		}

		s.deviceID = uuid.NewString()

		return s, nil
	}

	s.deviceID = p.DeviceID
	s.accounts = p.Accounts
	s.tombstones = p.Tombstones

	if len(s.deviceID) == 0 {
		s.deviceID = uuid.NewString()
	}

	return s, nil
}

// decrypt attempts to open raw as a vault file. It returns ok=false for any
// failure: too short, AEAD failure, or malformed JSON. On success with a
// legacy payload (a bare JSON array of accounts, no version field) it
// synthesizes a device id and empty tombstones; the next mutating call
// (which saves) rewrites the file in the current format.
func (s *Store) decrypt(raw []byte) (payload, bool) {
	if len(raw) < nonceSize {
		return payload{}, false
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]

	aead, err := vaultcrypto.NewAESGCM(s.key)
	if err != nil {
		return payload{}, false
	}

	plain, err := aead.Open(nonce, ciphertext)
	if err != nil {
		return payload{}, false
	}

	var p payload
	if err := json.Unmarshal(plain, &p); err == nil && p.Version > 0 {
		return p, true
	}

	var legacy []account.Account
	if err := json.Unmarshal(plain, &legacy); err != nil {
		return payload{}, false
	}

	return payload{
		Version:    currentVersion,
		DeviceID:   uuid.NewString(),
		Accounts:   legacy,
		Tombstones: nil,
	}, true
}

func quarantine(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return os.Rename(path, path+".bak")
}

// DeviceID returns this vault's stable device identifier.
func (s *Store) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deviceID
}

// List returns a copy of every live (non-deleted) account, in stored order.
func (s *Store) List() ([]account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return nil, vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	return slices.Clone(s.accounts), nil
}

// Get returns the account with the given id.
func (s *Store) Get(id string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return account.Account{}, vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}

	return account.Account{}, vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrAccountNotFound)
}

// Tombstones returns a copy of every tombstone currently retained.
func (s *Store) Tombstones() ([]account.Tombstone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return nil, vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	return slices.Clone(s.tombstones), nil
}

// HasDuplicate reports whether an existing live account shares the same
// issuer, label, and secret as the given fields.
func (s *Store) HasDuplicate(issuer, label, secret string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return false, vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	for _, a := range s.accounts {
		if a.Issuer == issuer && a.Label == label && a.Secret == secret {
			return true, nil
		}
	}

	return false, nil
}

// Add validates, stamps LastModified to now, appends acc, and persists.
func (s *Store) Add(acc account.Account) error {
	return s.add(acc, true)
}

// AddPreservingMtime is identical to [Store.Add] but keeps acc's
// LastModified as provided, used by the merge engine to carry remote
// authorship forward.
func (s *Store) AddPreservingMtime(acc account.Account) error {
	return s.add(acc, false)
}

func (s *Store) add(acc account.Account, stamp bool) error {
	if stamp {
		acc.LastModified = time.Now().Unix()
	}

	if err := acc.Validate(); err != nil {
		return vaulterrors.Wrap(vaulterrors.InvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	s.accounts = append(s.accounts, acc)

	return s.save()
}

// Replace finds an account by id and overwrites it in place, preserving
// list order.
func (s *Store) Replace(acc account.Account) error {
	if err := acc.Validate(); err != nil {
		return vaulterrors.Wrap(vaulterrors.InvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	idx := slices.IndexFunc(s.accounts, func(a account.Account) bool { return a.ID == acc.ID })
	if idx < 0 {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrAccountNotFound)
	}

	s.accounts[idx] = acc

	return s.save()
}

// UpdateMetadata updates the issuer and label of the account with id,
// stamping LastModified to now.
func (s *Store) UpdateMetadata(id, issuer, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	idx := slices.IndexFunc(s.accounts, func(a account.Account) bool { return a.ID == id })
	if idx < 0 {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrAccountNotFound)
	}

	s.accounts[idx].Issuer = issuer
	s.accounts[idx].Label = label
	s.accounts[idx].LastModified = time.Now().Unix()

	if err := s.accounts[idx].Validate(); err != nil {
		return vaulterrors.Wrap(vaulterrors.InvalidInput, err)
	}

	return s.save()
}

// Delete removes the account with id and appends a tombstone (id, now()).
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	idx := slices.IndexFunc(s.accounts, func(a account.Account) bool { return a.ID == id })
	if idx < 0 {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrAccountNotFound)
	}

	s.accounts = slices.Delete(s.accounts, idx, idx+1)
	s.tombstones = append(s.tombstones, account.Tombstone{ID: id, DeletedAt: time.Now().Unix()})

	return s.save()
}

// Reorder reorders accounts matching ids first, in the given order, and
// appends any unmentioned accounts at the end, as a safety net against an
// incomplete list.
func (s *Store) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisoned {
		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrStorageUnavailable)
	}

	byID := make(map[string]account.Account, len(s.accounts))
	for _, a := range s.accounts {
		byID[a.ID] = a
	}

	reordered := make([]account.Account, 0, len(s.accounts))
	seen := make(map[string]bool, len(ids))

	for _, id := range ids {
		if a, ok := byID[id]; ok && !seen[id] {
			reordered = append(reordered, a)
			seen[id] = true
		}
	}

	for _, a := range s.accounts {
		if !seen[a.ID] {
			reordered = append(reordered, a)
		}
	}

	s.accounts = reordered

	return s.save()
}

// save serializes the current payload, encrypts it, and writes it
// atomically. It must be called with s.mu held. Any I/O failure poisons the
// store: per §5, subsequent operations then fail with "storage unavailable"
// rather than risk operating on an inconsistent in-memory state.
func (s *Store) save() (retErr error) {
	s.pruneTombstones()

	p := payload{
		Version:    currentVersion,
		DeviceID:   s.deviceID,
		Accounts:   s.accounts,
		Tombstones: s.tombstones,
	}

	plain, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("vaultstore: marshal payload: %w", err)
	}

	nonce, err := vaultcrypto.RandBytes(nonceSize)
	if err != nil {
		return s.failSave(err)
	}

	aead, err := vaultcrypto.NewAESGCM(s.key)
	if err != nil {
		return s.failSave(err)
	}

	ciphertext, err := aead.Seal(nonce, plain)
	if err != nil {
		return s.failSave(err)
	}

	if err := atomicWrite(s.path, append(nonce, ciphertext...)); err != nil {
		return s.failSave(err)
	}

	return nil
}

func (s *Store) failSave(err error) error {
	s.poisoned = true
	return fmt.Errorf("vlt: failed to save: %w", err)
}

func (s *Store) pruneTombstones() {
	cutoff := time.Now().Add(-tombstoneRetention).Unix()

	s.tombstones = slices.DeleteFunc(s.tombstones, func(t account.Tombstone) bool {
		return t.DeletedAt < cutoff
	})
}

// atomicWrite serializes data to <path>.tmp with owner-only permissions and
// renames it over path, so a crash never leaves a partially written live
// file.
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)

		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
