package cluster

import (
	"github.com/rdnode/rdnode/internal/slot"
)

// Router decides, for a command's key set, whether this node should
// execute it locally or redirect the client.
type Router struct {
	self   string
	table  *Table
	member *Membership
	// hasKey reports whether key is present in this node's local
	// keyspace; used only to distinguish ASK from local-execution during
	// an in-flight migration.
	hasKey func(key string) bool
}

func NewRouter(self string, table *Table, member *Membership, hasKey func(key string) bool) *Router {
	return &Router{self: self, table: table, member: member, hasKey: hasKey}
}

// Route resolves the routing decision for a command touching keys. An
// empty keys slice (commands with no key argument) always routes local.
func (r *Router) Route(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	s, same := slot.SameSlot(keys)
	if !same {
		return ErrCrossSlot
	}

	owner := r.table.Owner(s)
	phase, peer := r.table.SlotPhase(s)

	if owner != r.self {
		if owner == "" {
			return ErrClusterDown
		}
		if d, ok := r.member.Get(owner); ok {
			return &Moved{Slot: s, Addr: d.ClientAddr()}
		}
		return ErrClusterDown
	}

	// We own the slot. If it's migrating away and the key has already
	// been transferred (no longer present locally), redirect this one
	// request to the destination.
	if phase == Migrating && !r.hasKey(string(keys[0])) {
		if d, ok := r.member.Get(peer); ok {
			return &Ask{Addr: d.ClientAddr()}
		}
	}
	return nil
}
