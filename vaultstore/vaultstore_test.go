package vaultstore_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/vaultstore"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x11}, 32)
}

func newAccount(id, issuer string) account.Account {
	return account.Account{
		ID:        id,
		Issuer:    issuer,
		Label:     "u@x",
		Secret:    "JBSWY3DPEHPK3PXP",
		Algorithm: account.SHA1,
		Digits:    6,
		Period:    30,
	}
}

func TestVaultStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := vaultstore.Open(dir, testKey())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	if err := s.Add(newAccount("1", "GitHub")); err != nil {
		t.Fatalf("Add() = %v", err)
	}

	if err := s.Add(newAccount("2", "Google")); err != nil {
		t.Fatalf("Add() = %v", err)
	}

	if err := s.Delete("1"); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	if err := s.UpdateMetadata("2", "Google Inc", "me@g"); err != nil {
		t.Fatalf("UpdateMetadata() = %v", err)
	}

	reopened, err := vaultstore.Open(dir, testKey())
	if err != nil {
		t.Fatalf("reopen Open() = %v", err)
	}

	got, err := reopened.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}

	want := []account.Account{newAccount("2", "Google Inc")}
	want[0].Label = "me@g"
	want[0].LastModified = got[0].LastModified // stamped by UpdateMetadata, not reproducible here

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("List() mismatch (-want +got):\n%s", diff)
	}

	tombstones, err := reopened.Tombstones()
	if err != nil {
		t.Fatalf("Tombstones() = %v", err)
	}

	if len(tombstones) != 1 || tombstones[0].ID != "1" {
		t.Fatalf("Tombstones() = %+v, want one tombstone for id 1", tombstones)
	}
}

func TestVaultStore_Reorder(t *testing.T) {
	dir := t.TempDir()

	s, err := vaultstore.Open(dir, testKey())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	for _, id := range []string{"1", "2", "3"} {
		if err := s.Add(newAccount(id, id)); err != nil {
			t.Fatalf("Add(%s) = %v", id, err)
		}
	}

	if err := s.Reorder([]string{"3", "1"}); err != nil {
		t.Fatalf("Reorder() = %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}

	var ids []string
	for _, a := range got {
		ids = append(ids, a.ID)
	}

	want := []string{"3", "1", "2"}
	if diff := cmp.Diff(want, ids); diff != "" {
		t.Fatalf("Reorder() order mismatch (-want +got):\n%s", diff)
	}
}

func TestVaultStore_RecoversFromBadKey(t *testing.T) {
	dir := t.TempDir()

	s, err := vaultstore.Open(dir, testKey())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	if err := s.Add(newAccount("1", "GitHub")); err != nil {
		t.Fatalf("Add() = %v", err)
	}

	wrongKey := bytes.Repeat([]byte{0x22}, 32)

	reopened, err := vaultstore.Open(dir, wrongKey)
	if err != nil {
		t.Fatalf("Open() with wrong key returned error instead of empty store: %v", err)
	}

	got, err := reopened.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("List() = %+v, want empty store after bad-key open", got)
	}

	if _, err := os.Stat(filepath.Join(dir, "accounts.enc.bak")); err != nil {
		t.Fatalf("expected quarantined .bak file: %v", err)
	}
}

func TestVaultStore_ShortFileTreatedAsEmpty(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "accounts.enc"), []byte("short"), 0o600); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	s, err := vaultstore.Open(dir, testKey())
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() = %v", err)
	}

	if len(got) != 0 {
		t.Fatalf("List() = %+v, want empty", got)
	}
}
