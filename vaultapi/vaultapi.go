// Package vaultapi implements C8: the glue that orchestrates
// preview/confirm flows between host commands and C2-C7, per §2's data
// flow and §5's concurrency model.
package vaultapi

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ghost-auth/vaultcore/account"
	"github.com/ghost-auth/vaultcore/backupcodec"
	"github.com/ghost-auth/vaultcore/internal/corelog"
	"github.com/ghost-auth/vaultcore/keystore"
	"github.com/ghost-auth/vaultcore/mergeengine"
	"github.com/ghost-auth/vaultcore/pairingtransport"
	"github.com/ghost-auth/vaultcore/synchistory"
	"github.com/ghost-auth/vaultcore/syncsession"
	"github.com/ghost-auth/vaultcore/vaulterrors"
	"github.com/ghost-auth/vaultcore/vaultstore"
)

var log = corelog.New("vaultapi")

// Phase is the lifecycle state of the one allowed active sync session,
// per §5: only the goroutine running the exchange (the background accept
// goroutine started by [API.StartPairing], or the caller of
// [API.JoinPairing]) moves a session into Exchanging or MergeReady; the UI
// polls [API.SyncPhase] rather than blocking on it.
type Phase int

const (
	Idle Phase = iota
	Listening
	Exchanging
	MergeReady
	Failed
)

func (p Phase) String() string {
	switch p {
	case Listening:
		return "listening"
	case Exchanging:
		return "exchanging"
	case MergeReady:
		return "merge_ready"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// API is the composition root tying C1-C7 together for a single host
// process.
type API struct {
	keystore *keystore.Keystore
	store    *vaultstore.Store
	history  *synchistory.History
	dataDir  string

	syncMu  sync.Mutex
	session *syncState
}

// syncState is the guarded slot described in §5: at most one may exist
// at a time.
type syncState struct {
	phase      Phase
	peerDevice string
	merge      mergeengine.Result
	remote     []account.Account
	err        error
	cancel     func()
}

// Open loads or creates the master key via C1 and opens the vault store
// and sync history at dataDir.
func Open(dataDir string) (*API, error) {
	ks := keystore.New(dataDir)

	key, err := ks.Load()
	if err != nil {
		return nil, err
	}

	store, err := vaultstore.Open(dataDir, key)
	if err != nil {
		return nil, err
	}

	hist, err := synchistory.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("vaultapi: load sync history: %w", err)
	}

	return &API{keystore: ks, store: store, history: hist, dataDir: dataDir}, nil
}

// List returns every account, with shared secrets stripped, per §3's
// "Ownership" rule that outward-facing representations never carry the
// secret across the component boundary.
func (a *API) List() ([]account.Account, error) {
	accounts, err := a.store.List()
	if err != nil {
		return nil, err
	}

	redacted := make([]account.Account, len(accounts))
	for i, acc := range accounts {
		redacted[i] = acc.Redacted()
	}

	return redacted, nil
}

// Add validates and adds a new account, rejecting an issuer/label/secret
// combination that already exists.
func (a *API) Add(acc account.Account) error {
	if dup, err := a.store.HasDuplicate(acc.Issuer, acc.Label, acc.Secret); err != nil {
		return err
	} else if dup {
		return vaulterrors.Wrap(vaulterrors.InvalidInput, fmt.Errorf("account already exists"))
	}

	return a.store.Add(acc)
}

// UpdateMetadata renames an existing account's issuer/label.
func (a *API) UpdateMetadata(id, issuer, label string) error {
	return a.store.UpdateMetadata(id, issuer, label)
}

// Delete removes an account, leaving a tombstone behind.
func (a *API) Delete(id string) error {
	return a.store.Delete(id)
}

// Reorder reorders the account list.
func (a *API) Reorder(ids []string) error {
	return a.store.Reorder(ids)
}

// ExportBackup produces a password-encrypted backup of every account,
// including secrets (the one place they leave the store un-redacted,
// since the backup's own password-derived key is the protection).
func (a *API) ExportBackup(password string) ([]byte, error) {
	accounts, err := a.store.List()
	if err != nil {
		return nil, err
	}

	return backupcodec.Export(accounts, password)
}

// ImportBackup decrypts a backup and adds every account not already
// present (by issuer/label/secret), skipping duplicates rather than
// failing the whole import.
func (a *API) ImportBackup(data []byte, password string) (imported, skipped int, err error) {
	accounts, err := backupcodec.Import(data, password)
	if err != nil {
		return 0, 0, err
	}

	for _, acc := range accounts {
		dup, err := a.store.HasDuplicate(acc.Issuer, acc.Label, acc.Secret)
		if err != nil {
			return imported, skipped, err
		}

		if dup {
			skipped++

			continue
		}

		if err := a.store.Add(acc); err != nil {
			return imported, skipped, err
		}

		imported++
	}

	return imported, skipped, nil
}

// StartPairing begins the Initiator (accept) side of a sync session:
// binds the pairing listener, generates a fresh code, and runs the
// handshake and payload exchange on a background goroutine. It fails
// with [vaulterrors.ErrSessionActive] if a session is already in
// progress.
func (a *API) StartPairing(onReady func(code string, addr string)) error {
	a.syncMu.Lock()
	if a.session != nil {
		a.syncMu.Unlock()

		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrSessionActive)
	}

	code, err := syncsession.NewCode()
	if err != nil {
		a.syncMu.Unlock()

		return err
	}

	cancelled := make(chan struct{})

	a.session = &syncState{phase: Listening, cancel: func() { close(cancelled) }}
	a.syncMu.Unlock()

	go a.runInitiatorSession(code, cancelled, onReady)

	return nil
}

func (a *API) runInitiatorSession(code *syncsession.Code, cancelled <-chan struct{}, onReady func(string, string)) {
	session, err := pairingtransport.Listen(code.SharedKey, func(addr string) {
		if onReady != nil {
			onReady(code.Text, addr)
		}
	})
	if err != nil {
		a.failSession(err)

		return
	}
	defer session.Close()

	select {
	case <-cancelled:
		return
	default:
	}

	a.setPhase(Exchanging)
	a.exchangeAndPreview(session)
}

// JoinPairing is the Joiner (connect) side: dials addr and runs the same
// exchange.
func (a *API) JoinPairing(addr, code string) error {
	a.syncMu.Lock()
	if a.session != nil {
		a.syncMu.Unlock()

		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrSessionActive)
	}

	sharedKey, err := syncsession.SharedKeyFromUserInput(code)
	if err != nil {
		a.syncMu.Unlock()

		return err
	}

	a.session = &syncState{phase: Exchanging, cancel: func() {}}
	a.syncMu.Unlock()

	session, err := pairingtransport.Dial(addr, sharedKey)
	if err != nil {
		a.failSession(err)

		return err
	}
	defer session.Close()

	a.exchangeAndPreview(session)

	return nil
}

// exchangeAndPreview sends the local snapshot, receives the peer's,
// merges it against the local watermark for that peer, and parks the
// result at MergeReady for the host to inspect via [API.Preview].
func (a *API) exchangeAndPreview(session *pairingtransport.Session) {
	deviceID := a.store.DeviceID()

	accounts, err := a.store.List()
	if err != nil {
		a.failSession(err)

		return
	}

	tombstones, err := a.store.Tombstones()
	if err != nil {
		a.failSession(err)

		return
	}

	// Turn order is enforced by pairingtransport's handshake roles; both
	// sides now just send then receive one frame each.
	sek := session.SEK()

	localPayload, err := syncsession.BuildPayload(deviceID, accounts, tombstones, sek)
	if err != nil {
		a.failSession(err)

		return
	}

	frame, err := marshalPayload(localPayload)
	if err != nil {
		a.failSession(err)

		return
	}

	if err := session.SendFrame(frame); err != nil {
		a.failSession(err)

		return
	}

	remoteFrame, err := session.RecvFrame()
	if err != nil {
		a.failSession(err)

		return
	}

	remotePayload, err := unmarshalPayload(remoteFrame)
	if err != nil {
		a.failSession(err)

		return
	}

	remoteAccounts, remoteTombstones, err := syncsession.OpenPayload(remotePayload, sek)
	if err != nil {
		a.failSession(err)

		return
	}

	watermark := a.history.LastSyncWith(remotePayload.DeviceID)

	result := mergeengine.Merge(accounts, tombstones, remoteAccounts, remoteTombstones, watermark)

	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.session == nil {
		return
	}

	a.session.phase = MergeReady
	a.session.peerDevice = remotePayload.DeviceID
	a.session.merge = result
	a.session.remote = remoteAccounts
}

func (a *API) failSession(err error) {
	log.Printf("sync session failed: %v", err)

	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.session != nil {
		a.session.phase = Failed
		a.session.err = err
	}
}

func (a *API) setPhase(p Phase) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.session != nil {
		a.session.phase = p
	}
}

// SyncPhase reports the current sync session's phase, for the UI to
// poll rather than block on.
func (a *API) SyncPhase() Phase {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.session == nil {
		return Idle
	}

	return a.session.phase
}

// Preview returns the pending merge result once the session has reached
// MergeReady.
func (a *API) Preview() (mergeengine.Result, error) {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.session == nil || a.session.phase != MergeReady {
		return mergeengine.Result{}, vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrNoPendingMerge)
	}

	return a.session.merge, nil
}

// Confirm applies the pending merge with the host's decisions for any
// conflicts/remote deletions, persists the vault, records the sync
// watermark for the peer, and clears the session slot. Per §5, vault
// changes are durable before the watermark update is attempted; a
// watermark write failure is logged and otherwise ignored.
func (a *API) Confirm(decisions mergeengine.Decisions) error {
	a.syncMu.Lock()

	if a.session == nil || a.session.phase != MergeReady {
		a.syncMu.Unlock()

		return vaulterrors.Wrap(vaulterrors.State, vaulterrors.ErrNoPendingMerge)
	}

	result := a.session.merge
	peerDevice := a.session.peerDevice
	a.syncMu.Unlock()

	upsert, remove := mergeengine.Apply(result, decisions)

	for _, acc := range upsert {
		if existing, err := a.store.Get(acc.ID); err == nil && existing.ID == acc.ID {
			if err := a.store.Replace(acc); err != nil {
				return err
			}

			continue
		}

		if err := a.store.AddPreservingMtime(acc); err != nil {
			return err
		}
	}

	for _, id := range remove {
		if err := a.store.Delete(id); err != nil {
			return err
		}
	}

	if err := a.history.RecordSync(peerDevice, time.Now().Unix()); err != nil {
		log.Printf("sync watermark write failed for peer %s: %v", peerDevice, err)
	}

	a.syncMu.Lock()
	a.session = nil
	a.syncMu.Unlock()

	return nil
}

func marshalPayload(p syncsession.Payload) ([]byte, error) {
	return json.Marshal(p)
}

func unmarshalPayload(raw []byte) (syncsession.Payload, error) {
	var p syncsession.Payload

	err := json.Unmarshal(raw, &p)

	return p, err
}

// CancelSync clears the session slot and lets the background accept
// thread exit at its next deadline check, per §5.
func (a *API) CancelSync() {
	a.syncMu.Lock()
	defer a.syncMu.Unlock()

	if a.session != nil && a.session.cancel != nil {
		a.session.cancel()
	}

	a.session = nil
}

// SyncHistory returns the last-sync watermark recorded for every peer
// device this vault has ever synced with.
func (a *API) SyncHistory() map[string]int64 {
	return a.history.Entries()
}
