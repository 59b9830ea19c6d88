package cluster

import (
	"testing"
	"time"

	"github.com/rdnode/rdnode/internal/slot"
)

func TestNewNodeIDIs40Hex(t *testing.T) {
	id := NewNodeID()
	if len(id) != 40 {
		t.Fatalf("len(id) = %d, want 40", len(id))
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9') && !(r >= 'a' && r <= 'f') {
			t.Fatalf("id contains non-hex rune %q", r)
		}
	}
}

func TestTargetsEvenSplit(t *testing.T) {
	targets := Targets([]string{"a", "b"})
	if targets["a"] != 8192 || targets["b"] != 8192 {
		t.Fatalf("targets = %+v, want 8192/8192", targets)
	}
}

func TestTargetsRemainderGoesToEarliestInOrder(t *testing.T) {
	// 16384 / 3 = 5461 remainder 1 -> first node gets 5462.
	targets := Targets([]string{"a", "b", "c"})
	if targets["a"] != 5462 {
		t.Fatalf("targets[a] = %d, want 5462", targets["a"])
	}
	if targets["b"] != 5461 || targets["c"] != 5461 {
		t.Fatalf("targets = %+v", targets)
	}
	sum := targets["a"] + targets["b"] + targets["c"]
	if sum != 16384 {
		t.Fatalf("sum = %d, want 16384", sum)
	}
}

func TestPlanRebalanceMovesFromSoleOwner(t *testing.T) {
	table := NewTable()
	for s := uint16(0); s < 16384; s++ {
		table.Assign(s, "a", 1)
	}

	steps := PlanRebalance(table, "b", []string{"a", "b"})
	if len(steps) != 8192 {
		t.Fatalf("len(steps) = %d, want 8192", len(steps))
	}
	for _, st := range steps {
		if st.Donor != "a" {
			t.Fatalf("unexpected donor %q", st.Donor)
		}
	}
}

func TestPlanRebalanceNoOpWhenAlreadyFair(t *testing.T) {
	table := NewTable()
	for s := uint16(0); s < 8192; s++ {
		table.Assign(s, "a", 1)
	}
	for s := uint16(8192); s < 16384; s++ {
		table.Assign(s, "b", 1)
	}
	if steps := PlanRebalance(table, "a", []string{"a", "b"}); len(steps) != 0 {
		t.Fatalf("expected no steps, got %d", len(steps))
	}
}

func TestTableRangesCollapsesContiguousRuns(t *testing.T) {
	table := NewTable()
	for s := uint16(0); s < 100; s++ {
		table.Assign(s, "a", 1)
	}
	for s := uint16(100); s < 200; s++ {
		table.Assign(s, "b", 1)
	}
	ranges := table.Ranges()
	if len(ranges) != 2 {
		t.Fatalf("len(ranges) = %d, want 2", len(ranges))
	}
	if ranges[0] != (Range{Start: 0, End: 99, Owner: "a"}) {
		t.Fatalf("ranges[0] = %+v", ranges[0])
	}
	if ranges[1] != (Range{Start: 100, End: 199, Owner: "b"}) {
		t.Fatalf("ranges[1] = %+v", ranges[1])
	}
}

func TestMembershipMergeRespectsEpoch(t *testing.T) {
	self := Descriptor{ID: "self0000000000000000000000000000000000", Host: "127.0.0.1", ClientPort: 7000, PeerPort: 17000}
	m := NewMembership(self)

	old := Descriptor{ID: "peer0000000000000000000000000000000001", Epoch: 1, LastSeen: time.Now()}
	if !m.Merge(old) {
		t.Fatal("expected first merge of a new node to apply")
	}

	stale := Descriptor{ID: old.ID, Epoch: 0, LastSeen: time.Now().Add(time.Hour)}
	if m.Merge(stale) {
		t.Fatal("lower epoch should not override a higher one regardless of LastSeen")
	}

	newer := Descriptor{ID: old.ID, Epoch: 2, LastSeen: time.Now()}
	if !m.Merge(newer) {
		t.Fatal("higher epoch should override")
	}
	got, _ := m.Get(old.ID)
	if got.Epoch != 2 {
		t.Fatalf("got.Epoch = %d, want 2", got.Epoch)
	}
}

func TestMembershipNeverOverridesSelf(t *testing.T) {
	self := Descriptor{ID: "self0000000000000000000000000000000000", Epoch: 5}
	m := NewMembership(self)

	impostor := Descriptor{ID: self.ID, Epoch: 99}
	if m.Merge(impostor) {
		t.Fatal("gossip must never override this node's own entry")
	}
	got := m.Self()
	if got.Epoch != 5 {
		t.Fatalf("self epoch mutated to %d", got.Epoch)
	}
}

func TestRouterLocalWhenSelfOwnsSlot(t *testing.T) {
	table := NewTable()
	self := Descriptor{ID: "self0000000000000000000000000000000000"}
	m := NewMembership(self)

	s := slotOf(t, "foo")
	table.Assign(s, self.ID, 1)

	r := NewRouter(self.ID, table, m, func(string) bool { return true })
	if err := r.Route([][]byte{[]byte("foo")}); err != nil {
		t.Fatalf("expected local route, got %v", err)
	}
}

func TestRouterMovedWhenPeerOwnsSlot(t *testing.T) {
	table := NewTable()
	self := Descriptor{ID: "self0000000000000000000000000000000000"}
	m := NewMembership(self)
	peer := Descriptor{ID: "peer0000000000000000000000000000000002", Host: "10.0.0.2", ClientPort: 7001}
	m.Merge(peer)

	s := slotOf(t, "foo")
	table.Assign(s, peer.ID, 1)

	r := NewRouter(self.ID, table, m, func(string) bool { return false })
	err := r.Route([][]byte{[]byte("foo")})
	moved, ok := err.(*Moved)
	if !ok {
		t.Fatalf("expected *Moved, got %v (%T)", err, err)
	}
	if moved.Addr != peer.ClientAddr() {
		t.Fatalf("moved.Addr = %q, want %q", moved.Addr, peer.ClientAddr())
	}
}

func TestRouterCrossSlot(t *testing.T) {
	table := NewTable()
	self := Descriptor{ID: "self0000000000000000000000000000000000"}
	m := NewMembership(self)
	r := NewRouter(self.ID, table, m, func(string) bool { return true })

	// "foo" and "bar" essentially never hash to the same slot without a
	// shared hashtag; if they ever do, the test fixture below forces the
	// issue moot since CROSSSLOT only needs at least two distinct slots.
	err := r.Route([][]byte{[]byte("foo"), []byte("bar")})
	if err != ErrCrossSlot {
		t.Fatalf("expected ErrCrossSlot, got %v", err)
	}
}

func TestRouterAskWhenMigratingAndKeyGone(t *testing.T) {
	table := NewTable()
	self := Descriptor{ID: "self0000000000000000000000000000000000"}
	m := NewMembership(self)
	dst := Descriptor{ID: "dst00000000000000000000000000000000001", Host: "10.0.0.3", ClientPort: 7002}
	m.Merge(dst)

	s := slotOf(t, "foo")
	table.Assign(s, self.ID, 1)
	table.BeginMigrating(s, dst.ID)

	r := NewRouter(self.ID, table, m, func(string) bool { return false }) // key already streamed out
	err := r.Route([][]byte{[]byte("foo")})
	ask, ok := err.(*Ask)
	if !ok {
		t.Fatalf("expected *Ask, got %v (%T)", err, err)
	}
	if ask.Addr != dst.ClientAddr() {
		t.Fatalf("ask.Addr = %q, want %q", ask.Addr, dst.ClientAddr())
	}
}

func TestSweepTimeoutsMarksThenRemoves(t *testing.T) {
	self := Descriptor{ID: "self0000000000000000000000000000000000"}
	m := NewMembership(self)
	peer := Descriptor{ID: "peer0000000000000000000000000000000003", LastSeen: time.Now().Add(-time.Hour)}
	m.Merge(peer)

	dead := m.SweepTimeouts(time.Minute, time.Hour*2)
	if len(dead) != 1 || dead[0] != peer.ID {
		t.Fatalf("dead = %v", dead)
	}
	got, ok := m.Get(peer.ID)
	if !ok || got.State != Dead {
		t.Fatalf("expected peer marked dead, got %+v ok=%v", got, ok)
	}

	// Not yet past cleanupTimeout: still present.
	m.SweepTimeouts(time.Minute, time.Hour*2)
	if _, ok := m.Get(peer.ID); !ok {
		t.Fatal("peer removed before cleanup timeout elapsed")
	}
}

func slotOf(t *testing.T, key string) uint16 {
	t.Helper()
	return slot.Of([]byte(key))
}
