package cluster

import (
	"sync"

	"github.com/rdnode/rdnode/internal/slot"
)

// Phase is a per-slot migration state. Modeled as an explicit three-value
// state machine rather than booleans, since MOVED vs ASK selection depends
// on exactly which phase a slot is in and who the migration peer is.
type Phase int

const (
	// Stable: this node either owns the slot outright or doesn't own it at
	// all; no migration is in flight for it.
	Stable Phase = iota
	// Migrating: this node owns the slot but is streaming it to Peer.
	Migrating
	// Importing: Peer owns the slot (as far as the rest of the cluster
	// knows) but is streaming it to this node.
	Importing
)

// slotEntry is the per-slot bookkeeping row.
type slotEntry struct {
	owner string // node id; empty if unassigned
	epoch uint64
	phase Phase
	peer  string // migration counterpart node id, meaningful iff phase != Stable
}

// Table owns the 16384-entry slot ownership map and the in-flight
// migration state per slot.
type Table struct {
	mu      sync.RWMutex
	entries [slot.Count]slotEntry
}

func NewTable() *Table {
	return &Table{}
}

// Owner returns the node id owning slot s, or "" if unassigned.
func (t *Table) Owner(s uint16) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entries[s].owner
}

// Assign sets the owner of slot s unconditionally with the given epoch,
// clearing any in-flight migration phase. Used for initial bootstrap and
// for applying a CLUSTER UPDATE whose epoch has already been checked by
// the caller.
func (t *Table) Assign(s uint16, owner string, epoch uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s] = slotEntry{owner: owner, epoch: epoch}
}

// AssignIfNewer applies owner/epoch only if epoch is greater than the
// slot's current epoch, or equal with owner lexicographically greater as
// the tie-break, resolving conflicting gossiped/UPDATE slot claims.
// Returns whether the assignment took.
func (t *Table) AssignIfNewer(s uint16, owner string, epoch uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.entries[s]
	if epoch < cur.epoch {
		return false
	}
	if epoch == cur.epoch && owner <= cur.owner {
		return false
	}
	t.entries[s] = slotEntry{owner: owner, epoch: epoch}
	return true
}

// BeginMigrating marks slot s as migrating away from its current owner to
// peer. Caller must already own the slot locally.
func (t *Table) BeginMigrating(s uint16, peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s].phase = Migrating
	t.entries[s].peer = peer
}

// BeginImporting marks slot s as being imported from peer, ahead of
// ownership actually transferring.
func (t *Table) BeginImporting(s uint16, peer string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s].phase = Importing
	t.entries[s].peer = peer
}

// Settle clears a slot's migration phase. The source calls it once the
// slot's keys have moved and ownership is flipped (before the CLUSTER
// UPDATE broadcast), and on rolling back a failed migration.
func (t *Table) Settle(s uint16) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[s].phase = Stable
	t.entries[s].peer = ""
}

// SlotPhase reports the current phase of slot s and, if not Stable, the
// migration counterpart node id.
func (t *Table) SlotPhase(s uint16) (Phase, string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e := t.entries[s]
	return e.phase, e.peer
}

// OwnedBy returns every slot currently owned by nodeID, in ascending
// order.
func (t *Table) OwnedBy(nodeID string) []uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []uint16
	for s, e := range t.entries {
		if e.owner == nodeID {
			out = append(out, uint16(s))
		}
	}
	return out
}

// CountByOwner tallies how many slots each known owner currently holds.
func (t *Table) CountByOwner() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range t.entries {
		if e.owner != "" {
			counts[e.owner]++
		}
	}
	return counts
}

// Ranges collapses the slot table into contiguous [start,end] runs per
// owner, in slot order, for CLUSTER NODES/SLOTS rendering.
type Range struct {
	Start, End uint16
	Owner      string
}

func (t *Table) Ranges() []Range {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Range
	for s := 0; s < slot.Count; s++ {
		owner := t.entries[s].owner
		if owner == "" {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Owner == owner && out[n-1].End == uint16(s-1) {
			out[n-1].End = uint16(s)
			continue
		}
		out = append(out, Range{Start: uint16(s), End: uint16(s), Owner: owner})
	}
	return out
}

// Assigned reports how many of the 16384 slots currently have an owner.
func (t *Table) Assigned() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e.owner != "" {
			n++
		}
	}
	return n
}
