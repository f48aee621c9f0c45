// Package backupcodec implements C3: the portable, password-encrypted
// backup export/import envelope described in §3 and §4.3.
package backupcodec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/vaultcrypto"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

// magic identifies a ghost-auth backup file. It is the first 4 bytes of
// every version.
var magic = [4]byte{'G', 'H', 'S', 'T'}

const (
	version1 = 1

	saltSize  = 16
	nonceSize = 12
	keyLen    = 32

	minPasswordLen = 8

	// headerLen is MAGIC(4) + version(1) + salt(16) + nonce(12).
	headerLen = 4 + 1 + saltSize + nonceSize

	// minLen is the minimum total length of a valid backup file:
	// header + a 16-byte GCM tag with no plaintext.
	minLen = headerLen + 16
)

// exportParams are the Argon2id parameters fixed by §4.3: m=65536 KiB,
// t=3, p=1.
var exportParams = vaultcrypto.Argon2Params{
	Memory:      65536,
	Time:        3,
	Parallelism: 1,
}

type backupPayload struct {
	Version    int               `json:"version"`
	ExportedAt int64             `json:"exported_at"`
	Accounts   []account.Account `json:"accounts"`
}

// Export seals accounts under a key derived from password and returns the
// self-describing byte layout of §3. It rejects passwords shorter than 8
// characters.
func Export(accounts []account.Account, password string) ([]byte, error) {
	if len(password) < minPasswordLen {
		return nil, vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrPasswordTooShort)
	}

	salt, err := vaultcrypto.RandBytes(saltSize)
	if err != nil {
		return nil, fmt.Errorf("backupcodec: generate salt: %w", err)
	}

	nonce, err := vaultcrypto.RandBytes(nonceSize)
	if err != nil {
		return nil, fmt.Errorf("backupcodec: generate nonce: %w", err)
	}

	kdf := vaultcrypto.NewArgon2idKDF(
		vaultcrypto.WithSalt(salt),
		vaultcrypto.WithParams(exportParams),
		vaultcrypto.WithKeyLen(keyLen),
	)

	key := kdf.Derive([]byte(password))
	defer zero(key)

	p := backupPayload{
		Version:    version1,
		ExportedAt: time.Now().Unix(),
		Accounts:   accounts,
	}

	plain, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("backupcodec: marshal payload: %w", err)
	}

	aead, err := vaultcrypto.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("backupcodec: init cipher: %w", err)
	}

	ciphertext, err := aead.Seal(nonce, plain)
	if err != nil {
		return nil, fmt.Errorf("backupcodec: seal: %w", err)
	}

	out := make([]byte, 0, headerLen+len(ciphertext))
	out = append(out, magic[:]...)
	out = append(out, byte(version1))
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)

	return out, nil
}

// Import reverses [Export]. A buffer shorter than the minimum length
// returns [vaulterrors.ErrTruncated] and an unknown version returns
// [vaulterrors.ErrUnsupportedVersion]; every other failure — bad magic,
// wrong password, tampered ciphertext, or an unreadable payload — returns
// [vaulterrors.ErrWrongPassword] with no distinguishing detail, so an
// attacker cannot use the error to tell a wrong password from a corrupted
// file (§4.3, §8 "Backup oracle resistance").
func Import(data []byte, password string) ([]account.Account, error) {
	if len(data) < minLen {
		return nil, vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrTruncated)
	}

	if !bytes.Equal(data[:4], magic[:]) {
		return nil, vaulterrors.Wrap(vaulterrors.Auth, vaulterrors.ErrWrongPassword)
	}

	version := int(data[4])
	if version != version1 {
		return nil, vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrUnsupportedVersion)
	}

	salt := data[5 : 5+saltSize]
	nonce := data[5+saltSize : headerLen]
	ciphertext := data[headerLen:]

	kdf := vaultcrypto.NewArgon2idKDF(
		vaultcrypto.WithSalt(salt),
		vaultcrypto.WithParams(exportParams),
		vaultcrypto.WithKeyLen(keyLen),
	)

	key := kdf.Derive([]byte(password))
	defer zero(key)

	aead, err := vaultcrypto.NewAESGCM(key)
	if err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.Auth, vaulterrors.ErrWrongPassword)
	}

	plain, err := aead.Open(nonce, ciphertext)
	if err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.Auth, vaulterrors.ErrWrongPassword)
	}

	var p backupPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, vaulterrors.Wrap(vaulterrors.Auth, vaulterrors.ErrWrongPassword)
	}

	return p.Accounts, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
