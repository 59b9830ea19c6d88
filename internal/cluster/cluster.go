// Package cluster implements node membership, hash-slot ownership, gossip,
// and slot migration for a horizontally-partitioned cluster of peer nodes.
package cluster

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/slot"
)

// Cluster ties the membership table, slot table and gossip/migration
// logic together for one node.
type Cluster struct {
	log    *zap.Logger
	member *Membership
	table  *Table
	Router *Router

	nodeTimeout    time.Duration
	cleanupTimeout time.Duration

	stop chan struct{}
	done chan struct{}
}

// Config carries the timing knobs read from the node's config file.
type Config struct {
	NodeTimeout time.Duration
	// CleanupTimeout defaults to 10x NodeTimeout if zero.
	CleanupTimeout time.Duration
}

// New constructs a Cluster with self as the only known member and an empty
// slot table; BootstrapSingleNode assigns the slots for the first node of
// a new cluster.
func New(log *zap.Logger, self Descriptor, cfg Config, hasKey func(key string) bool) *Cluster {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.CleanupTimeout == 0 {
		cfg.CleanupTimeout = 10 * cfg.NodeTimeout
	}

	member := NewMembership(self)
	table := NewTable()

	c := &Cluster{
		log:            log.Named("cluster"),
		member:         member,
		table:          table,
		nodeTimeout:    cfg.NodeTimeout,
		cleanupTimeout: cfg.CleanupTimeout,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	c.Router = NewRouter(self.ID, table, member, hasKey)
	return c
}

// BootstrapSingleNode assigns every slot to self, used when starting the
// very first node of a new cluster (no MEET target given on the CLI).
func (c *Cluster) BootstrapSingleNode() {
	self := c.member.Self().ID
	for s := uint16(0); s < slot.Count; s++ {
		c.table.Assign(s, self, 1)
	}
	c.member.SetSelfState(Live)
}

// Start launches the background gossip/timeout-sweep loop.
func (c *Cluster) Start() {
	go func() {
		defer close(c.done)
		c.runGossip(c.stop)
	}()
}

// Stop halts the background loop.
func (c *Cluster) Stop() {
	close(c.stop)
	<-c.done
}

// Self returns this node's own descriptor.
func (c *Cluster) Self() Descriptor { return c.member.Self() }

// Member exposes the membership table for the peer command dispatcher
// (handling inbound MEET/PING) and for CLUSTER NODES/INFO rendering.
func (c *Cluster) Member() *Membership { return c.member }

// Table exposes the slot table for the peer command dispatcher handling
// inbound CLUSTER SETSLOT/UPDATE.
func (c *Cluster) Table() *Table { return c.table }

// Meet performs the initial handshake with a known peer: MEET carries our
// own descriptor so the peer can add us, and its reply carries its
// current digest so we immediately learn the rest of the cluster.
func (c *Cluster) Meet(addr string) error {
	self := c.member.Self()
	digest := EncodeDigestArg([]Descriptor{self})

	reply, err := Call(addr, "CLUSTER", "MEET", digest)
	if err != nil {
		return fmt.Errorf("cluster: meet %s: %w", addr, err)
	}
	c.member.SetSelfState(Joining)

	if reply.Type == resp.Array && len(reply.Elems) == 2 {
		if descs, err := DecodeDigestArg(string(reply.Elems[1].Bulk)); err == nil {
			c.mergeDigest(descs)
		}
	}
	c.member.SetSelfState(Live)
	return nil
}

// HandleMeet answers an inbound CLUSTER MEET: folds the sender's
// descriptor into our table and replies with our own digest, wrapped the
// same way HandlePing's PONG is, so the joiner's single round trip is
// enough to learn the whole cluster.
func (c *Cluster) HandleMeet(fromDigestArg string) resp.Value {
	if descs, err := DecodeDigestArg(fromDigestArg); err == nil {
		c.mergeDigest(descs)
		for _, d := range descs {
			c.log.Info("node joined via meet", zap.String("node_id", d.ID), zap.String("addr", d.PeerAddr()))
		}
	}
	reply := EncodeDigestArg(c.member.All())
	return resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("MEET"),
		resp.NewBulkStringFromString(reply),
	})
}

// RebalanceOnJoin computes this node's fair share of the slot space and
// drives migrations from the current biggest donors until it's reached.
// engine is the local keyspace migration streams keys out of.
func (c *Cluster) RebalanceOnJoin(engine KeySource) {
	self := c.member.Self().ID
	order := c.member.LiveIDsSorted()
	steps := PlanRebalance(c.table, self, order)
	if len(steps) == 0 {
		return
	}
	c.log.Info("rebalancing on join", zap.Int("slots_to_import", len(steps)))

	for _, step := range steps {
		donor, ok := c.member.Get(step.Donor)
		if !ok {
			continue
		}
		if _, err := Call(donor.PeerAddr(), "CLUSTER", "MIGRATE", fmtSlot(step.Slot), c.member.Self().ID); err != nil {
			c.log.Warn("failed to request migration", zap.String("donor", step.Donor), zap.Uint16("slot", step.Slot), zap.Error(err))
		}
	}
}

// Forget implements CLUSTER FORGET: forgetting self marks self Leaving and
// then migrates every owned slot away, round-robin onto the other live
// peers (caller supplies only the engine to stream keys from);
// forgetting any other node id is refused unless that node is already
// Dead, so a reachable peer can't be removed out from under live traffic.
func (c *Cluster) Forget(id string, engine KeySource) error {
	self := c.member.Self()
	if id == self.ID {
		c.drainSelf(engine)
		return nil
	}

	target, ok := c.member.Get(id)
	if !ok {
		return ErrUnknownNode
	}
	if target.State != Dead {
		return ErrNodeNotDead
	}
	c.member.Remove(id)
	return nil
}

func (c *Cluster) drainSelf(engine KeySource) {
	self := c.member.Self().ID
	c.member.SetSelfState(Leaving)

	remaining := c.member.LiveIDsSorted()
	var peers []string
	for _, id := range remaining {
		if id != self {
			peers = append(peers, id)
		}
	}
	if len(peers) == 0 {
		c.log.Warn("cannot drain slots away: no other live nodes")
		return
	}

	owned := c.table.OwnedBy(self)
	for i, s := range owned {
		dst, ok := c.member.Get(peers[i%len(peers)])
		if !ok {
			continue
		}
		if err := c.MigrateSlot(engine, s, dst); err != nil {
			c.log.Error("slot drain failed", zap.Uint16("slot", s), zap.Error(err))
		}
	}
}

// NodesText renders the classic CLUSTER NODES line-oriented format: one
// line per known node, "id host:port@peer_port flags state slots...".
func (c *Cluster) NodesText() string {
	byOwner := make(map[string][]Range)
	for _, r := range c.table.Ranges() {
		byOwner[r.Owner] = append(byOwner[r.Owner], r)
	}

	var b strings.Builder
	for _, d := range c.member.All() {
		flags := "peer"
		if d.ID == c.member.Self().ID {
			flags = "myself"
		}
		fmt.Fprintf(&b, "%s %s@%d %s %s", d.ID, d.ClientAddr(), d.PeerPort, flags, d.State)
		for _, r := range byOwner[d.ID] {
			if r.Start == r.End {
				fmt.Fprintf(&b, " %d", r.Start)
			} else {
				fmt.Fprintf(&b, " %d-%d", r.Start, r.End)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// SlotRanges returns the slot→owner ranges for CLUSTER SLOTS rendering;
// the caller (command layer) turns each Range plus the owning
// Descriptor into the RESP array shape CLUSTER SLOTS replies with.
func (c *Cluster) SlotRanges() []Range {
	return c.table.Ranges()
}

// Info returns the small set of CLUSTER INFO gauges.
type Info struct {
	KnownNodes    int
	SlotsAssigned int
	State         string // "ok" once all 16384 slots are assigned, else "fail"
}

func (c *Cluster) Info() Info {
	assigned := c.table.Assigned()
	state := "fail"
	if assigned == slot.Count {
		state = "ok"
	}
	return Info{
		KnownNodes:    len(c.member.All()),
		SlotsAssigned: assigned,
		State:         state,
	}
}
