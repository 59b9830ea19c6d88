package cluster

import (
	"sort"
	"sync"
	"time"
)

// Membership is the full node table every node holds a complete copy of.
// Entries arrive via Meet and propagate by gossip merge; there is no
// central authority.
type Membership struct {
	mu    sync.RWMutex
	nodes map[string]Descriptor
	self  string
}

func NewMembership(self Descriptor) *Membership {
	m := &Membership{nodes: make(map[string]Descriptor), self: self.ID}
	m.nodes[self.ID] = self
	return m
}

// Self returns this node's own current descriptor.
func (m *Membership) Self() Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[m.self]
}

// SetSelfState updates this node's own state (e.g. Joining -> Live).
func (m *Membership) SetSelfState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.nodes[m.self]
	d.State = s
	d.LastSeen = time.Now()
	m.nodes[m.self] = d
}

// Get returns the descriptor for id, if known.
func (m *Membership) Get(id string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.nodes[id]
	return d, ok
}

// All returns every known descriptor, self included.
func (m *Membership) All() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, 0, len(m.nodes))
	for _, d := range m.nodes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LiveIDsSorted returns the ids of every node this table considers Live
// or Joining (i.e. not Dead/Leaving), sorted — the deterministic ordering
// every node's rebalance math depends on agreeing on.
func (m *Membership) LiveIDsSorted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, d := range m.nodes {
		if d.State == Live || d.State == Joining {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Merge applies an incoming descriptor learned via gossip or MEET. It
// never downgrades freshness: the existing entry is kept unless the
// incoming one is newer by the epoch/last-seen/id rule. Returns true if
// the merge changed anything (new node, or updated fields).
func (m *Membership) Merge(d Descriptor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == m.self {
		return false // never let gossip override our own entry
	}
	cur, ok := m.nodes[d.ID]
	if !ok || d.newerThan(cur) {
		m.nodes[d.ID] = d
		return true
	}
	return false
}

// Touch refreshes LastSeen for id without otherwise changing its
// descriptor, called whenever a PING/PONG is actually received from it.
func (m *Membership) Touch(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.nodes[id]; ok {
		d.LastSeen = time.Now()
		m.nodes[id] = d
	}
}

// SweepTimeouts marks nodes unseen for longer than nodeTimeout as Dead,
// and removes nodes that have been Dead for longer than cleanupTimeout.
// Returns the ids transitioned to Dead this pass, for logging.
func (m *Membership) SweepTimeouts(nodeTimeout, cleanupTimeout time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var newlyDead []string
	for id, d := range m.nodes {
		if id == m.self {
			continue
		}
		switch d.State {
		case Dead:
			if now.Sub(d.LastSeen) > cleanupTimeout {
				delete(m.nodes, id)
			}
		default:
			if now.Sub(d.LastSeen) > nodeTimeout {
				d.State = Dead
				d.LastSeen = now
				m.nodes[id] = d
				newlyDead = append(newlyDead, id)
			}
		}
	}
	return newlyDead
}

// Remove deletes id from the table outright, used by CLUSTER FORGET of a
// peer that is already Dead.
func (m *Membership) Remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, id)
}

// MarkState force-sets a known node's state; ids not in the table are
// ignored. (CLUSTER FORGET of self uses SetSelfState instead.)
func (m *Membership) MarkState(id string, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.nodes[id]; ok {
		d.State = s
		m.nodes[id] = d
	}
}
