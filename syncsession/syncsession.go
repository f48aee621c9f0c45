// Package syncsession implements C4: deriving a pairing code and its
// shared key, the session-envelope key, and building the sync payload
// defined in §3 that C5 carries across the wire.
package syncsession

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/randstring"
	"github.com/ghost-auth/vaultcore/vaultcrypto"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

const (
	// codeAlphabet excludes 0/O/1/I/L to avoid visual ambiguity, per §4.4.
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	groupCount  = 6
	groupLength = 4
	codeLength  = groupCount * groupLength

	// codeTTL is how long a generated [Code] remains valid.
	codeTTL = 60 * time.Second

	sharedKeyHMACKey = "ghost-auth-sync-key-v1"
	sessionKeyInfo   = "ghost-auth-session-v1"

	sessionKeyLen = 32

	accountNonceSize = 12
)

// Code is a pairing code and the shared key derived from it.
type Code struct {
	Text      string
	SharedKey []byte
	createdAt time.Time
}

// NewCode generates a fresh pairing code and its shared key.
func NewCode() (*Code, error) {
	raw, err := randstring.NewWithAlphabet(codeLength, codeAlphabet)
	if err != nil {
		return nil, fmt.Errorf("syncsession: generate code: %w", err)
	}

	return codeFrom(raw, time.Now()), nil
}

func codeFrom(raw string, now time.Time) *Code {
	return &Code{
		Text:      formatCode(raw),
		SharedKey: DeriveSharedKey(raw),
		createdAt: now,
	}
}

// Rotate regenerates both the code and its key.
func (c *Code) Rotate() error {
	fresh, err := NewCode()
	if err != nil {
		return err
	}

	*c = *fresh

	return nil
}

// Expired reports whether c is older than its 60-second validity window.
func (c *Code) Expired() bool {
	return time.Since(c.createdAt) > codeTTL
}

func formatCode(raw string) string {
	groups := make([]string, 0, groupCount)
	for i := 0; i < len(raw); i += groupLength {
		groups = append(groups, raw[i:i+groupLength])
	}

	return strings.Join(groups, "-")
}

// Canonicalize strips hyphens and whitespace and uppercases the input, then
// validates length and alphabet membership, per §4.4.
func Canonicalize(code string) (string, error) {
	var b strings.Builder

	for _, r := range code {
		switch r {
		case '-', ' ', '\t', '\n':
			continue
		default:
			b.WriteRune(r)
		}
	}

	canon := strings.ToUpper(b.String())

	if len(canon) != codeLength {
		return "", vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrInvalidSyncCode)
	}

	for _, r := range canon {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrInvalidSyncCode)
		}
	}

	return canon, nil
}

// DeriveSharedKey computes shared_key = HMAC-SHA256("ghost-auth-sync-key-v1",
// canonical_code). It does not validate canonicalCode; callers crossing a
// trust boundary should call [Canonicalize] first and handle its error.
func DeriveSharedKey(canonicalCode string) []byte {
	return vaultcrypto.HMACSHA256([]byte(sharedKeyHMACKey), []byte(canonicalCode))
}

// SharedKeyFromUserInput canonicalizes code and derives its shared key in
// one step, rejecting malformed codes per §8 "Code/key determinism".
func SharedKeyFromUserInput(code string) ([]byte, error) {
	canon, err := Canonicalize(code)
	if err != nil {
		return nil, err
	}

	return DeriveSharedKey(canon), nil
}

// SessionEnvelopeKey computes SEK = HKDF-SHA256(IKM=sharedKey, salt=nonce,
// info="ghost-auth-session-v1", L=32), distinct from sharedKey and from any
// handshake HMAC output.
func SessionEnvelopeKey(sharedKey, nonce []byte) ([]byte, error) {
	return vaultcrypto.HKDFSHA256(sharedKey, nonce, []byte(sessionKeyInfo), sessionKeyLen)
}

// EncryptedAccount is an account independently sealed under the shared key,
// per §3.
type EncryptedAccount struct {
	ID           string `json:"id"`
	LastModified int64  `json:"last_modified"`
	Nonce        []byte `json:"nonce"`
	Ciphertext   []byte `json:"ciphertext"`
}

// Payload is the sync-payload value defined in §3.
type Payload struct {
	DeviceID   string              `json:"device_id"`
	Timestamp  int64               `json:"timestamp"`
	Accounts   []EncryptedAccount  `json:"accounts"`
	Tombstones []account.Tombstone `json:"tombstones"`
}

// BuildPayload encrypts each account independently under sharedKey and
// assembles the sync-payload value for deviceID.
func BuildPayload(deviceID string, accounts []account.Account, tombstones []account.Tombstone, sharedKey []byte) (Payload, error) {
	aead, err := vaultcrypto.NewAESGCM(sharedKey)
	if err != nil {
		return Payload{}, fmt.Errorf("syncsession: init cipher: %w", err)
	}

	encrypted := make([]EncryptedAccount, 0, len(accounts))

	for _, a := range accounts {
		plain, err := json.Marshal(a)
		if err != nil {
			return Payload{}, fmt.Errorf("syncsession: marshal account %q: %w", a.ID, err)
		}

		nonce, err := vaultcrypto.RandBytes(accountNonceSize)
		if err != nil {
			return Payload{}, fmt.Errorf("syncsession: generate nonce: %w", err)
		}

		ciphertext, err := aead.Seal(nonce, plain)
		if err != nil {
			return Payload{}, fmt.Errorf("syncsession: seal account %q: %w", a.ID, err)
		}

		encrypted = append(encrypted, EncryptedAccount{
			ID:           a.ID,
			LastModified: a.LastModified,
			Nonce:        nonce,
			Ciphertext:   ciphertext,
		})
	}

	return Payload{
		DeviceID:   deviceID,
		Timestamp:  time.Now().Unix(),
		Accounts:   encrypted,
		Tombstones: tombstones,
	}, nil
}

// OpenPayload decrypts every account in p under sharedKey and returns the
// plaintext accounts alongside the tombstones carried in the envelope.
func OpenPayload(p Payload, sharedKey []byte) ([]account.Account, []account.Tombstone, error) {
	aead, err := vaultcrypto.NewAESGCM(sharedKey)
	if err != nil {
		return nil, nil, fmt.Errorf("syncsession: init cipher: %w", err)
	}

	accounts := make([]account.Account, 0, len(p.Accounts))

	for _, ea := range p.Accounts {
		plain, err := aead.Open(ea.Nonce, ea.Ciphertext)
		if err != nil {
			return nil, nil, vaulterrors.Wrap(vaulterrors.Integrity, vaulterrors.ErrSyncDecryption)
		}

		var a account.Account
		if err := json.Unmarshal(plain, &a); err != nil {
			return nil, nil, vaulterrors.Wrap(vaulterrors.Integrity, vaulterrors.ErrSyncDecryption)
		}

		accounts = append(accounts, a)
	}

	return accounts, p.Tombstones, nil
}

// uriScheme and uriHost identify the pairing URI this package builds for
// QR/deep-link display; the host decides how to render it (QR image,
// clickable link), this package only owns the text format.
const (
	uriScheme = "ghostauth"
	uriHost   = "pair"
)

// URI returns the deep-link form of a pairing code and listen address for
// QR-code rendering, e.g. "ghostauth://pair?addr=10.0.0.5%3A54231&code=ABCD-...".
func URI(code, addr string) string {
	v := url.Values{}
	v.Set("code", code)
	v.Set("addr", addr)

	u := url.URL{Scheme: uriScheme, Host: uriHost, RawQuery: v.Encode()}

	return u.String()
}

// ParseURI extracts the code and address from a pairing URI built by
// [URI], or from a bare code pasted without the surrounding link.
func ParseURI(raw string) (code, addr string, err error) {
	if !strings.Contains(raw, "://") {
		return raw, "", nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", "", vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrInvalidSyncCode)
	}

	if u.Scheme != uriScheme || u.Host != uriHost {
		return "", "", vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrInvalidSyncCode)
	}

	q := u.Query()

	code = q.Get("code")
	if len(code) == 0 {
		return "", "", vaulterrors.Wrap(vaulterrors.InvalidInput, vaulterrors.ErrInvalidSyncCode)
	}

	return code, q.Get("addr"), nil
}
