// Package mergeengine implements C6: the three-way merge of a remote
// snapshot against the local vault, per §4.6.
package mergeengine

import (
	"github.com/ghost-auth/vaultcore/account"
)

// Decision is a host's resolution for one conflicting or
// remotely-deleted account id.
type Decision int

const (
	// KeepLocal discards the remote side; the default for an
	// unspecified conflict decision.
	KeepLocal Decision = iota
	// KeepRemote applies the remote side.
	KeepRemote
	// Delete applies a remote deletion.
	Delete
)

// Conflict pairs the local and remote versions of an account whose
// ownership over the change could not be determined automatically.
type Conflict struct {
	Local  account.Account
	Remote account.Account
}

// Result is the output of [Merge]: four disjoint lists keyed by id, plus
// a count of accounts left untouched.
type Result struct {
	ToAdd           []account.Account
	AutoUpdated     []account.Account
	Conflicts       []Conflict
	RemoteDeletions []account.Account
	Unchanged       int
}

// Merge computes the three-way merge of remote accounts/tombstones
// against local, using watermark (last sync time with this peer; zero
// means "no prior sync") to decide whether a local/remote divergence is
// a true conflict or a sequential update. Identity is by account id.
func Merge(local []account.Account, localTombstones []account.Tombstone, remote []account.Account, remoteTombstones []account.Tombstone, watermark int64) Result {
	localByID := indexAccounts(local)
	localTombByID := indexTombstones(localTombstones)

	var result Result

	for _, r := range remote {
		switch {
		case localTombDominates(localTombByID, r):
			result.Unchanged++
		default:
			l, ok := localByID[r.ID]
			switch {
			case !ok:
				result.ToAdd = append(result.ToAdd, r)
			case l.LastModified == r.LastModified:
				result.Unchanged++
			case watermark > 0 && l.LastModified > watermark && r.LastModified > watermark:
				result.Conflicts = append(result.Conflicts, Conflict{Local: l, Remote: r})
			case r.LastModified > l.LastModified:
				result.AutoUpdated = append(result.AutoUpdated, r)
			default:
				result.Unchanged++
			}
		}
	}

	for _, t := range remoteTombstones {
		if l, ok := localByID[t.ID]; ok && t.DeletedAt > l.LastModified {
			result.RemoteDeletions = append(result.RemoteDeletions, l)
		}
	}

	return result
}

func localTombDominates(localTombByID map[string]account.Tombstone, r account.Account) bool {
	t, ok := localTombByID[r.ID]

	return ok && t.DeletedAt >= r.LastModified
}

func indexAccounts(accounts []account.Account) map[string]account.Account {
	m := make(map[string]account.Account, len(accounts))
	for _, a := range accounts {
		m[a.ID] = a
	}

	return m
}

func indexTombstones(tombstones []account.Tombstone) map[string]account.Tombstone {
	m := make(map[string]account.Tombstone, len(tombstones))
	for _, t := range tombstones {
		m[t.ID] = t
	}

	return m
}

// Decisions maps an account id (drawn from a [Result]'s Conflicts or
// RemoteDeletions) to the host's resolution for it.
type Decisions map[string]Decision

// Apply resolves r against decisions and reports, for each account id,
// what the host should do to the vault store: accounts to add or
// replace (from ToAdd, AutoUpdated, and any conflict/remote-deletion
// resolved as KeepRemote), and ids to delete (any conflict or
// remote-deletion explicitly resolved as Delete). An unspecified
// conflict or remote deletion both default to KeepLocal, which is a
// no-op: the local account is simply left in place.
func Apply(r Result, decisions Decisions) (upsert []account.Account, remove []string) {
	upsert = append(upsert, r.ToAdd...)
	upsert = append(upsert, r.AutoUpdated...)

	for _, c := range r.Conflicts {
		switch decisions[c.Remote.ID] {
		case KeepRemote:
			upsert = append(upsert, c.Remote)
		case Delete:
			remove = append(remove, c.Remote.ID)
		default: // KeepLocal, or unspecified
		}
	}

	for _, d := range r.RemoteDeletions {
		if decisions[d.ID] == Delete {
			remove = append(remove, d.ID)
		}
		// KeepLocal (the default for an unspecified id) and KeepRemote both
		// leave the local account in place: there is nothing to re-add.
	}

	return upsert, remove
}
