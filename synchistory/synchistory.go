// Package synchistory implements C7: a persistent per-peer last-sync
// watermark store, per §4.7. The file holds no secrets and is written in
// plain JSON.
package synchistory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/ghost-auth/vaultcore/internal/corelog"
)

var log = corelog.New("synchistory")

const (
	fileName = "sync_history.json"
	filePerm = 0o600
)

// History is the set of last-sync watermarks keyed by peer device id.
type History struct {
	mu   sync.Mutex
	dir  string
	data map[string]int64
}

// Load reads sync_history.json from dir, treating a missing file as an
// empty history.
func Load(dir string) (*History, error) {
	h := &History{dir: dir, data: make(map[string]int64)}

	raw, err := os.ReadFile(filepath.Join(dir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}

		return nil, err
	}

	if len(raw) == 0 {
		return h, nil
	}

	if err := json.Unmarshal(raw, &h.data); err != nil {
		log.Printf("discarding unreadable sync history at %s: %v", dir, err)

		return h, nil
	}

	return h, nil
}

// LastSyncWith returns the last recorded sync time with deviceID, or 0 if
// none is recorded — the caller's signal for "no watermark" per §4.6.
func (h *History) LastSyncWith(deviceID string) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.data[deviceID]
}

// RecordSync sets the watermark for deviceID to now and persists it. A
// write failure is returned to the caller, who per §5 may choose to log
// and ignore it — a missing watermark only degrades future conflict
// detection, it never corrupts the vault.
func (h *History) RecordSync(deviceID string, now int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.data[deviceID] = now

	return h.save()
}

// Entries returns a copy of every recorded peer/watermark pair.
func (h *History) Entries() map[string]int64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[string]int64, len(h.data))
	for k, v := range h.data {
		out[k] = v
	}

	return out
}

// Save persists the current watermarks without changing any of them.
func (h *History) Save() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.save()
}

func (h *History) save() error {
	raw, err := json.MarshalIndent(h.data, "", "  ")
	if err != nil {
		return err
	}

	return atomicWrite(filepath.Join(h.dir, fileName), raw)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".sync_history-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)

		return err
	}

	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)

		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)

		return err
	}

	return nil
}
