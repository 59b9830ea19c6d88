package cluster

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/resp"
)

// gossipFanout is how many random peers each tick's PING is sent to,
// mirroring the "random subset" language in the membership contract
// rather than pinging every known peer every tick.
const gossipFanout = 3

// gossipInterval is how often this node initiates PINGs.
const gossipInterval = time.Second

// runGossip periodically PINGs a random subset of known peers, merging
// their reply digest into the membership table, and separately sweeps for
// node-timeout/cleanup-timeout transitions. It runs until stop is closed.
func (c *Cluster) runGossip(stop <-chan struct{}) {
	ticker := time.NewTicker(gossipInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.pingRandomPeers()
			if dead := c.member.SweepTimeouts(c.nodeTimeout, c.cleanupTimeout); len(dead) > 0 {
				for _, id := range dead {
					c.log.Warn("peer marked dead after node-timeout", zap.String("node_id", id))
				}
			}
		}
	}
}

func (c *Cluster) pingRandomPeers() {
	all := c.member.All()
	self := c.member.Self().ID

	var peers []Descriptor
	for _, d := range all {
		if d.ID != self && d.State != Dead {
			peers = append(peers, d)
		}
	}
	if len(peers) == 0 {
		return
	}

	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })
	if len(peers) > gossipFanout {
		peers = peers[:gossipFanout]
	}

	for _, p := range peers {
		go c.ping(p)
	}
}

func (c *Cluster) ping(peer Descriptor) {
	digest := EncodeDigestArg(c.member.All())
	reply, err := Call(peer.PeerAddr(), "CLUSTER", "PING", digest)
	if err != nil {
		c.log.Debug("gossip ping failed", zap.String("node_id", peer.ID), zap.Error(err))
		return
	}
	c.member.Touch(peer.ID)

	// A PONG reply is ["PONG", <encoded digest>].
	if reply.Type != resp.Array || len(reply.Elems) != 2 {
		return
	}
	descs, err := DecodeDigestArg(string(reply.Elems[1].Bulk))
	if err != nil {
		c.log.Debug("malformed pong digest", zap.String("node_id", peer.ID), zap.Error(err))
		return
	}
	c.mergeDigest(descs)
}

// mergeDigest folds a batch of learned descriptors into the membership
// table, per-entry, keeping freshness rules local to Membership.Merge.
func (c *Cluster) mergeDigest(descs []Descriptor) {
	for _, d := range descs {
		c.member.Merge(d)
	}
}

// HandlePing answers a peer's CLUSTER PING with our own digest, wrapped
// in a PONG envelope, and folds the pinger's digest into our table. The
// caller (the peer-port command dispatcher) supplies the raw digest
// argument it decoded off the wire and sends the returned Value back.
func (c *Cluster) HandlePing(fromDigestArg string) resp.Value {
	if descs, err := DecodeDigestArg(fromDigestArg); err == nil {
		c.mergeDigest(descs)
	}
	reply := EncodeDigestArg(c.member.All())
	return resp.NewArray([]resp.Value{
		resp.NewBulkStringFromString("PONG"),
		resp.NewBulkStringFromString(reply),
	})
}
