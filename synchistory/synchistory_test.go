package synchistory_test

import (
	"testing"

	"github.com/ghost-auth/vaultcore/synchistory"
)

func TestHistory_MissingFileIsEmpty(t *testing.T) {
	dir := t.TempDir()

	h, err := synchistory.Load(dir)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if got := h.LastSyncWith("device-a"); got != 0 {
		t.Fatalf("LastSyncWith() = %d, want 0", got)
	}
}

func TestHistory_RecordAndReload(t *testing.T) {
	dir := t.TempDir()

	h, err := synchistory.Load(dir)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if err := h.RecordSync("device-a", 1000); err != nil {
		t.Fatalf("RecordSync() = %v", err)
	}

	reloaded, err := synchistory.Load(dir)
	if err != nil {
		t.Fatalf("reload Load() = %v", err)
	}

	if got := reloaded.LastSyncWith("device-a"); got != 1000 {
		t.Fatalf("LastSyncWith() = %d, want 1000", got)
	}

	if got := reloaded.LastSyncWith("device-b"); got != 0 {
		t.Fatalf("LastSyncWith(unknown peer) = %d, want 0", got)
	}
}

func TestHistory_MultiplePeersIndependent(t *testing.T) {
	dir := t.TempDir()

	h, err := synchistory.Load(dir)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if err := h.RecordSync("device-a", 1000); err != nil {
		t.Fatalf("RecordSync(a) = %v", err)
	}

	if err := h.RecordSync("device-b", 2000); err != nil {
		t.Fatalf("RecordSync(b) = %v", err)
	}

	if got := h.LastSyncWith("device-a"); got != 1000 {
		t.Fatalf("LastSyncWith(a) = %d, want 1000", got)
	}

	if got := h.LastSyncWith("device-b"); got != 2000 {
		t.Fatalf("LastSyncWith(b) = %d, want 2000", got)
	}
}
