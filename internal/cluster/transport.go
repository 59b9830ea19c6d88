package cluster

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rdnode/rdnode/internal/resp"
)

// dialTimeout bounds how long a peer RPC waits to establish the TCP
// connection before treating the peer as unreachable.
const dialTimeout = 2 * time.Second

// Call opens a short-lived connection to addr, sends one RESP command
// array, reads one reply, and closes. Gossip and migration traffic is
// low-volume enough that connection reuse isn't worth the complexity the
// single-writer AOF/metrics code already spends elsewhere; each peer RPC
// is independent.
func Call(addr string, args ...string) (resp.Value, error) {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return resp.Value{}, fmt.Errorf("%w: %v", ErrClusterDown, err)
	}
	defer conn.Close()

	elems := make([]resp.Value, len(args))
	for i, a := range args {
		elems[i] = resp.NewBulkStringFromString(a)
	}

	enc := resp.NewEncoder(conn)
	if err := enc.Encode(resp.NewArray(elems)); err != nil {
		return resp.Value{}, err
	}
	if err := enc.Flush(); err != nil {
		return resp.Value{}, err
	}

	dec := resp.NewDecoder(conn)
	return dec.Decode()
}

// EncodeDigest serializes every descriptor d knows about into a RESP
// array suitable as the payload of a PING or PONG, one element per node:
// [id, host, client_port, peer_port, state, epoch, last_seen_unix_ms].
func EncodeDigest(descs []Descriptor) resp.Value {
	rows := make([]resp.Value, len(descs))
	for i, d := range descs {
		rows[i] = resp.NewArray([]resp.Value{
			resp.NewBulkStringFromString(d.ID),
			resp.NewBulkStringFromString(d.Host),
			resp.NewInteger(int64(d.ClientPort)),
			resp.NewInteger(int64(d.PeerPort)),
			resp.NewInteger(int64(d.State)),
			resp.NewInteger(int64(d.Epoch)),
			resp.NewInteger(d.LastSeen.UnixMilli()),
		})
	}
	return resp.NewArray(rows)
}

// DecodeDigest parses a digest previously built by EncodeDigest.
func DecodeDigest(v resp.Value) ([]Descriptor, error) {
	if v.Type != resp.Array || v.ArrayNull {
		return nil, fmt.Errorf("cluster: malformed digest: not an array")
	}
	out := make([]Descriptor, 0, len(v.Elems))
	for _, row := range v.Elems {
		if row.Type != resp.Array || len(row.Elems) != 7 {
			return nil, fmt.Errorf("cluster: malformed digest row")
		}
		id := string(row.Elems[0].Bulk)
		host := string(row.Elems[1].Bulk)
		out = append(out, Descriptor{
			ID:         id,
			Host:       host,
			ClientPort: int(row.Elems[2].Int),
			PeerPort:   int(row.Elems[3].Int),
			State:      State(row.Elems[4].Int),
			Epoch:      uint64(row.Elems[5].Int),
			LastSeen:   time.UnixMilli(row.Elems[6].Int),
		})
	}
	return out, nil
}

// EncodeDigestArg serializes descs as a single opaque RESP sub-message
// suitable for embedding as one bulk-string argument of a CLUSTER PING /
// PONG command — command arguments are a flat array of bulk strings, so a
// nested digest travels as pre-encoded bytes rather than a nested array.
func EncodeDigestArg(descs []Descriptor) string {
	return string(resp.EncodeToBytes(EncodeDigest(descs)))
}

// DecodeDigestArg is the inverse of EncodeDigestArg.
func DecodeDigestArg(arg string) ([]Descriptor, error) {
	dec := resp.NewDecoder(strings.NewReader(arg))
	v, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("cluster: decode digest: %w", err)
	}
	return DecodeDigest(v)
}
