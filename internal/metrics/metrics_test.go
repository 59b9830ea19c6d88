package metrics

import "testing"

func TestNewRegistersAllCollectors(t *testing.T) {
	m := New()
	m.KeyspaceSize.Set(3)
	m.CommandsTotal.WithLabelValues("GET").Inc()
	m.ExpiredKeys.Inc()
	m.ClusterSlots.Set(8192)
	m.PubsubSubs.Set(1)
	m.AOFWritesTotal.Inc()
	m.SnapshotTotal.Inc()

	mfs, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(mfs) != 7 {
		t.Fatalf("len(mfs) = %d, want 7", len(mfs))
	}
}
