package server

import (
	"strings"

	"github.com/rdnode/rdnode/internal/resp"
)

// cmdClusterClient handles the client-facing CLUSTER subcommands:
// NODES, SLOTS, INFO, FORGET and MEET. Peer-facing subcommands (MEET's
// peer-port counterpart, PING, SETSLOT, RESTORE, UPDATE, MIGRATE, PUBLISH)
// are handled by handlePeer instead.
func (s *Server) cmdClusterClient(enc *resp.Encoder, args [][]byte) {
	if s.cluster == nil {
		writeErr(enc, errClusterDisabled)
		return
	}
	if len(args) == 0 {
		writeErr(enc, arityErr("CLUSTER"))
		return
	}
	sub := strings.ToUpper(string(args[0]))
	rest := args[1:]

	switch sub {
	case "NODES":
		writeVal(enc, resp.NewBulkStringFromString(s.cluster.NodesText()))
	case "SLOTS":
		writeVal(enc, s.clusterSlotsReply())
	case "INFO":
		writeVal(enc, s.clusterInfoReply())
	case "MEET":
		s.cmdClusterMeet(enc, rest)
	case "FORGET":
		s.cmdClusterForget(enc, rest)
	default:
		writeErr(enc, unknownCommand("CLUSTER "+sub))
	}
}

func (s *Server) clusterSlotsReply() resp.Value {
	ranges := s.cluster.SlotRanges()
	elems := make([]resp.Value, 0, len(ranges))
	for _, r := range ranges {
		d, ok := s.cluster.Member().Get(r.Owner)
		if !ok {
			continue
		}
		elems = append(elems, resp.NewArray([]resp.Value{
			resp.NewInteger(int64(r.Start)),
			resp.NewInteger(int64(r.End)),
			resp.NewArray([]resp.Value{
				resp.NewBulkStringFromString(d.Host),
				resp.NewInteger(int64(d.ClientPort)),
				resp.NewBulkStringFromString(d.ID),
			}),
		}))
	}
	return resp.NewArray(elems)
}

func (s *Server) clusterInfoReply() resp.Value {
	info := s.cluster.Info()
	var b strings.Builder
	b.WriteString("cluster_state:" + info.State + "\r\n")
	b.WriteString("cluster_known_nodes:" + itoa(info.KnownNodes) + "\r\n")
	b.WriteString("cluster_slots_assigned:" + itoa(info.SlotsAssigned) + "\r\n")
	return resp.NewBulkStringFromString(b.String())
}

func (s *Server) cmdClusterMeet(enc *resp.Encoder, args [][]byte) {
	if len(args) != 1 {
		writeErr(enc, arityErr("CLUSTER MEET"))
		return
	}
	if err := s.cluster.Meet(string(args[0])); err != nil {
		writeErr(enc, err)
		return
	}
	writeVal(enc, resp.NewSimpleString("OK"))
}

func (s *Server) cmdClusterForget(enc *resp.Encoder, args [][]byte) {
	if len(args) != 1 {
		writeErr(enc, arityErr("CLUSTER FORGET"))
		return
	}
	if err := s.cluster.Forget(string(args[0]), s.engine); err != nil {
		writeErr(enc, err)
		return
	}
	writeVal(enc, resp.NewSimpleString("OK"))
}
