package syncsession_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/syncsession"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

func TestCode_Determinism(t *testing.T) {
	code, err := syncsession.NewCode()
	if err != nil {
		t.Fatalf("NewCode() = %v", err)
	}

	variants := []string{
		code.Text,
		"  " + code.Text + "  ",
		stripHyphens(code.Text),
		toLower(code.Text),
	}

	for _, v := range variants {
		key, err := syncsession.SharedKeyFromUserInput(v)
		if err != nil {
			t.Fatalf("SharedKeyFromUserInput(%q) = %v", v, err)
		}

		if !bytes.Equal(key, code.SharedKey) {
			t.Fatalf("SharedKeyFromUserInput(%q) = %x, want %x", v, key, code.SharedKey)
		}
	}
}

func TestCode_RejectsBadAlphabetOrLength(t *testing.T) {
	if _, err := syncsession.SharedKeyFromUserInput("ZZZZ-ZZZZ-ZZZZ-ZZZZ-ZZZZ-ZZZ1"); !errors.Is(err, vaulterrors.ErrInvalidSyncCode) {
		t.Fatalf("expected ErrInvalidSyncCode for '1' in code, got %v", err)
	}

	if _, err := syncsession.SharedKeyFromUserInput("ABCD-ABCD"); !errors.Is(err, vaulterrors.ErrInvalidSyncCode) {
		t.Fatalf("expected ErrInvalidSyncCode for short code, got %v", err)
	}
}

func TestSessionEnvelopeKey_Separation(t *testing.T) {
	code, err := syncsession.NewCode()
	if err != nil {
		t.Fatalf("NewCode() = %v", err)
	}

	nonce := bytes.Repeat([]byte{0x9}, 32)

	sek, err := syncsession.SessionEnvelopeKey(code.SharedKey, nonce)
	if err != nil {
		t.Fatalf("SessionEnvelopeKey() = %v", err)
	}

	if bytes.Equal(sek, code.SharedKey) {
		t.Fatalf("SEK equals shared key")
	}
}

func TestBuildPayload_OpenPayload_RoundTrip(t *testing.T) {
	code, err := syncsession.NewCode()
	if err != nil {
		t.Fatalf("NewCode() = %v", err)
	}

	accounts := []account.Account{
		{ID: "1", Issuer: "GitHub", Secret: "JBSWY3DPEHPK3PXP", Algorithm: account.SHA1, Digits: 6, Period: 30, LastModified: 111},
	}
	tombstones := []account.Tombstone{{ID: "2", DeletedAt: 222}}

	payload, err := syncsession.BuildPayload("device-a", accounts, tombstones, code.SharedKey)
	if err != nil {
		t.Fatalf("BuildPayload() = %v", err)
	}

	gotAccounts, gotTombstones, err := syncsession.OpenPayload(payload, code.SharedKey)
	if err != nil {
		t.Fatalf("OpenPayload() = %v", err)
	}

	if len(gotAccounts) != 1 || gotAccounts[0].ID != "1" || gotAccounts[0].Issuer != "GitHub" {
		t.Fatalf("OpenPayload() accounts = %+v", gotAccounts)
	}

	if len(gotTombstones) != 1 || gotTombstones[0].ID != "2" {
		t.Fatalf("OpenPayload() tombstones = %+v", gotTombstones)
	}
}

func TestOpenPayload_TamperedCiphertextFails(t *testing.T) {
	code, err := syncsession.NewCode()
	if err != nil {
		t.Fatalf("NewCode() = %v", err)
	}

	accounts := []account.Account{
		{ID: "1", Secret: "JBSWY3DPEHPK3PXP", Algorithm: account.SHA1, Digits: 6, Period: 30},
	}

	payload, err := syncsession.BuildPayload("device-a", accounts, nil, code.SharedKey)
	if err != nil {
		t.Fatalf("BuildPayload() = %v", err)
	}

	payload.Accounts[0].Ciphertext[0] ^= 0xFF

	if _, _, err := syncsession.OpenPayload(payload, code.SharedKey); err == nil {
		t.Fatalf("OpenPayload() succeeded on tampered ciphertext")
	}
}

func stripHyphens(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r != '-' {
			out = append(out, r)
		}
	}

	return string(out)
}

func toLower(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r = r - 'A' + 'a'
		}

		out = append(out, r)
	}

	return string(out)
}

func TestURI_RoundTrip(t *testing.T) {
	code, err := syncsession.NewCode()
	if err != nil {
		t.Fatalf("NewCode() = %v", err)
	}

	uri := syncsession.URI(code.Text, "192.168.1.14:54231")

	gotCode, gotAddr, err := syncsession.ParseURI(uri)
	if err != nil {
		t.Fatalf("ParseURI() = %v", err)
	}

	if gotCode != code.Text {
		t.Errorf("code = %q, want %q", gotCode, code.Text)
	}

	if gotAddr != "192.168.1.14:54231" {
		t.Errorf("addr = %q, want %q", gotAddr, "192.168.1.14:54231")
	}
}

func TestParseURI_BareCodePassesThrough(t *testing.T) {
	code, addr, err := syncsession.ParseURI("ABCD-EFGH-JKMN-PQRS-TUVW-XYZ2")
	if err != nil {
		t.Fatalf("ParseURI() = %v", err)
	}

	if code != "ABCD-EFGH-JKMN-PQRS-TUVW-XYZ2" {
		t.Errorf("code = %q", code)
	}

	if addr != "" {
		t.Errorf("addr = %q, want empty", addr)
	}
}

func TestParseURI_WrongSchemeRejected(t *testing.T) {
	if _, _, err := syncsession.ParseURI("other://pair?code=x"); !errors.Is(err, vaulterrors.ErrInvalidSyncCode) {
		t.Fatalf("ParseURI() = %v, want ErrInvalidSyncCode", err)
	}
}
