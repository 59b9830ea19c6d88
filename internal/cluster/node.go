package cluster

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// State is a node's membership lifecycle phase.
type State int

const (
	Joining State = iota
	Live
	Leaving
	Dead
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Live:
		return "live"
	case Leaving:
		return "leaving"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// NewNodeID generates a random, stable node identifier: 40 hex characters,
// matching the wire format redis-cluster-family tooling expects in CLUSTER
// NODES output. google/uuid's dashed 36-character form doesn't fit this
// wire-mandated shape, so this is plain crypto/rand, hex-encoded.
func NewNodeID() string {
	b := make([]byte, 20)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("cluster: failed to generate node id: %v", err))
	}
	return hex.EncodeToString(b)
}

// Descriptor is one row of the membership table: everything peers know
// about a node, ours or otherwise.
type Descriptor struct {
	ID         string
	Host       string
	ClientPort int
	PeerPort   int
	State      State
	Epoch      uint64
	LastSeen   time.Time
}

// PeerAddr is the host:port this node's peer-protocol listener is bound to.
func (d Descriptor) PeerAddr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.PeerPort)
}

// ClientAddr is the host:port clients should be redirected to.
func (d Descriptor) ClientAddr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.ClientPort)
}

// newerThan reports whether d should replace other in a membership merge:
// higher epoch wins; on equal epochs the later LastSeen wins, and only if
// LastSeen is also equal is the tie broken by the lexicographically
// greater node id.
func (d Descriptor) newerThan(other Descriptor) bool {
	if d.Epoch != other.Epoch {
		return d.Epoch > other.Epoch
	}
	if d.LastSeen.Equal(other.LastSeen) {
		return d.ID > other.ID
	}
	return d.LastSeen.After(other.LastSeen)
}
