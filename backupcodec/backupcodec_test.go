package backupcodec_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/backupcodec"
	"github.com/ghost-auth/vaultcore/vaulterrors"
)

func sampleAccounts() []account.Account {
	return []account.Account{
		{ID: "1", Issuer: "GitHub", Label: "u@x", Secret: "JBSWY3DPEHPK3PXP", Algorithm: account.SHA1, Digits: 6, Period: 30},
		{ID: "2", Issuer: "Google", Label: "me@g", Secret: "GEZDGNBVGY3TQOJQ", Algorithm: account.SHA256, Digits: 8, Period: 30},
	}
}

func TestBackupCodec_RoundTrip(t *testing.T) {
	accounts := sampleAccounts()

	data, err := backupcodec.Export(accounts, "strongpassword123")
	if err != nil {
		t.Fatalf("Export() = %v", err)
	}

	got, err := backupcodec.Import(data, "strongpassword123")
	if err != nil {
		t.Fatalf("Import() = %v", err)
	}

	if diff := cmp.Diff(accounts, got); diff != "" {
		t.Fatalf("Import() mismatch (-want +got):\n%s", diff)
	}
}

func TestBackupCodec_TamperedByteFailsImport(t *testing.T) {
	data, err := backupcodec.Export(sampleAccounts(), "strongpassword123")
	if err != nil {
		t.Fatalf("Export() = %v", err)
	}

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := backupcodec.Import(tampered, "strongpassword123"); err == nil {
		t.Fatalf("Import() succeeded on tampered data")
	}
}

func TestBackupCodec_VersionGuard(t *testing.T) {
	data, err := backupcodec.Export(sampleAccounts(), "strongpassword123")
	if err != nil {
		t.Fatalf("Export() = %v", err)
	}

	data[4] = 2

	_, err = backupcodec.Import(data, "strongpassword123")
	if !errors.Is(err, vaulterrors.ErrUnsupportedVersion) {
		t.Fatalf("Import() = %v, want ErrUnsupportedVersion", err)
	}
}

func TestBackupCodec_OracleResistance(t *testing.T) {
	data, err := backupcodec.Export(sampleAccounts(), "strongpassword123")
	if err != nil {
		t.Fatalf("Export() = %v", err)
	}

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-1] ^= 0xFF

	_, wrongPwErr := backupcodec.Import(data, "incorrectpassword")
	_, tamperedErr := backupcodec.Import(tampered, "strongpassword123")

	if wrongPwErr == nil || tamperedErr == nil {
		t.Fatalf("expected both imports to fail")
	}

	if wrongPwErr.Error() != tamperedErr.Error() {
		t.Fatalf("error strings differ: wrong-password=%q tampered=%q", wrongPwErr, tamperedErr)
	}
}

func TestBackupCodec_ShortPasswordRejected(t *testing.T) {
	_, err := backupcodec.Export(sampleAccounts(), "short1")
	if err == nil || !strings.Contains(err.Error(), "at least 8") {
		t.Fatalf("Export() = %v, want error containing %q", err, "at least 8")
	}
}

func TestBackupCodec_TooShortBufferRejected(t *testing.T) {
	if _, err := backupcodec.Import([]byte("short"), "whatever1"); err == nil {
		t.Fatalf("Import() succeeded on a too-short buffer")
	}
}
