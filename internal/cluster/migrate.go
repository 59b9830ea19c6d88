package cluster

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/slot"
	"github.com/rdnode/rdnode/internal/store"
)

// KeySource is the subset of store.Engine migration needs: enumerate
// live keys and delete ones that have been streamed to their new owner.
// Kept as an interface so cluster doesn't need the full storage API and
// so tests can fake it.
type KeySource interface {
	Snapshot() []store.SnapshotEntry
	Del(keys ...string) int
}

// MigrateSlot drives one slot's migration from this node (must currently
// own s) to dst: enter MIGRATING locally, stream every key in the slot to
// dst via CLUSTER RESTORE, then atomically flip ownership and broadcast
// CLUSTER UPDATE. Writes to the slot continue to be accepted locally for
// keys not yet streamed throughout; the router's ASK check against the
// live keyspace is what makes that safe.
func (c *Cluster) MigrateSlot(engine KeySource, s uint16, dst Descriptor) error {
	self := c.member.Self()
	c.table.BeginMigrating(s, dst.ID)

	if _, err := Call(dst.PeerAddr(), "CLUSTER", "SETSLOT", fmtSlot(s), "IMPORTING", self.ID); err != nil {
		c.table.Settle(s)
		return fmt.Errorf("cluster: announce importing to %s: %w", dst.ID, err)
	}

	for _, e := range engine.Snapshot() {
		if slot.Of([]byte(e.Key)) != s {
			continue
		}
		if err := c.restoreKey(dst, e); err != nil {
			c.table.Settle(s)
			return fmt.Errorf("cluster: restore key %q to %s: %w", e.Key, dst.ID, err)
		}
		engine.Del(e.Key)
	}

	epoch := self.Epoch + 1
	c.table.Assign(s, dst.ID, epoch)
	c.table.Settle(s)

	if err := c.broadcastUpdate(s, dst.ID, epoch); err != nil {
		c.log.Warn("slot update broadcast incomplete", zap.Uint16("slot", s), zap.Error(err))
	}
	c.log.Info("slot migrated", zap.Uint16("slot", s), zap.String("to", dst.ID))
	return nil
}

func (c *Cluster) restoreKey(dst Descriptor, e store.SnapshotEntry) error {
	ttlMs := "-1"
	if e.ExpiresAt != nil {
		ttlMs = fmt.Sprintf("%d", e.ExpiresAt.UnixMilli())
	}
	payload := string(resp.EncodeToBytes(encodeStoreValue(e.Value)))
	_, err := Call(dst.PeerAddr(), "CLUSTER", "RESTORE", e.Key, ttlMs, payload)
	return err
}

// broadcastUpdate tells every known peer, dst included (dst leaves
// IMPORTING only once it learns it owns s), about the new owner/epoch for
// slot s.
func (c *Cluster) broadcastUpdate(s uint16, owner string, epoch uint64) error {
	var firstErr error
	for _, d := range c.member.All() {
		if d.ID == c.member.Self().ID {
			continue
		}
		if _, err := Call(d.PeerAddr(), "CLUSTER", "UPDATE", fmtSlot(s), owner, fmtEpoch(epoch)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func fmtSlot(s uint16) string  { return fmt.Sprintf("%d", s) }
func fmtEpoch(e uint64) string { return fmt.Sprintf("%d", e) }

// encodeStoreValue serializes a store.Value for transit in CLUSTER
// RESTORE's value argument: [type_tag, payload...], type_tag matching the
// RDB format's tag numbering so both wire forms agree.
func encodeStoreValue(v store.Value) resp.Value {
	switch v.Kind {
	case store.KindString:
		return resp.NewArray([]resp.Value{resp.NewInteger(1), resp.NewBulkString(v.Str)})
	case store.KindList:
		elems := make([]resp.Value, len(v.List))
		for i, e := range v.List {
			elems[i] = resp.NewBulkString(e)
		}
		return resp.NewArray([]resp.Value{resp.NewInteger(2), resp.NewArray(elems)})
	case store.KindSet:
		elems := make([]resp.Value, 0, len(v.Set))
		for m := range v.Set {
			elems = append(elems, resp.NewBulkStringFromString(m))
		}
		return resp.NewArray([]resp.Value{resp.NewInteger(3), resp.NewArray(elems)})
	default:
		return resp.NewArray([]resp.Value{resp.NewInteger(0)})
	}
}

// DecodeStoreValue is the inverse of encodeStoreValue, used by the peer
// command dispatcher handling an inbound CLUSTER RESTORE.
func DecodeStoreValue(v resp.Value) (store.Value, error) {
	if v.Type != resp.Array || len(v.Elems) < 1 {
		return store.Value{}, fmt.Errorf("cluster: malformed restore value")
	}
	switch v.Elems[0].Int {
	case 1:
		if len(v.Elems) != 2 {
			return store.Value{}, fmt.Errorf("cluster: malformed string value")
		}
		return store.Value{Kind: store.KindString, Str: v.Elems[1].Bulk}, nil
	case 2:
		if len(v.Elems) != 2 || v.Elems[1].Type != resp.Array {
			return store.Value{}, fmt.Errorf("cluster: malformed list value")
		}
		list := make([][]byte, len(v.Elems[1].Elems))
		for i, e := range v.Elems[1].Elems {
			list[i] = e.Bulk
		}
		return store.Value{Kind: store.KindList, List: list}, nil
	case 3:
		if len(v.Elems) != 2 || v.Elems[1].Type != resp.Array {
			return store.Value{}, fmt.Errorf("cluster: malformed set value")
		}
		set := make(map[string]struct{}, len(v.Elems[1].Elems))
		for _, e := range v.Elems[1].Elems {
			set[string(e.Bulk)] = struct{}{}
		}
		return store.Value{Kind: store.KindSet, Set: set}, nil
	default:
		return store.Value{}, fmt.Errorf("cluster: unknown value type tag %d", v.Elems[0].Int)
	}
}
