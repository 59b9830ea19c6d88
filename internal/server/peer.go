package server

import (
	"bytes"
	"errors"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/cluster"
	"github.com/rdnode/rdnode/internal/resp"
)

var errClusterDisabled = errors.New("ERR this node is not running with clustering enabled")

// handlePeer drives one inbound peer-port connection: it only ever carries
// CLUSTER subcommands used for gossip, handshake and migration, never the
// §4.2 data commands.
func (s *Server) handlePeer(conn net.Conn) {
	log := s.log.With(zap.String("remote", conn.RemoteAddr().String()))
	dec := resp.NewDecoder(conn)
	enc := resp.NewEncoder(conn)

	for {
		v, err := dec.Decode()
		if err != nil {
			return
		}
		cmd, err := parseCommand(v)
		if err != nil {
			writeErr(enc, err)
			continue
		}
		if cmd.name != "CLUSTER" || len(cmd.args) == 0 {
			writeErr(enc, unknownCommand(cmd.name))
			continue
		}
		reply, err := s.dispatchPeerCluster(cmd.args, log)
		if err != nil {
			writeErr(enc, err)
			continue
		}
		writeVal(enc, reply)
	}
}

func (s *Server) dispatchPeerCluster(args [][]byte, log *zap.Logger) (resp.Value, error) {
	if s.cluster == nil {
		return resp.Value{}, errClusterDisabled
	}
	sub := string(upper(args[0]))
	rest := args[1:]

	switch sub {
	case "MEET":
		if len(rest) != 1 {
			return resp.Value{}, arityErr("CLUSTER MEET")
		}
		return s.cluster.HandleMeet(string(rest[0])), nil

	case "PING":
		if len(rest) != 1 {
			return resp.Value{}, arityErr("CLUSTER PING")
		}
		return s.cluster.HandlePing(string(rest[0])), nil

	case "SETSLOT":
		return s.handleSetSlot(rest)

	case "RESTORE":
		return s.handleRestore(rest)

	case "UPDATE":
		return s.handleUpdate(rest)

	case "MIGRATE":
		return s.handleMigrate(rest, log)

	case "PUBLISH":
		if len(rest) != 2 {
			return resp.Value{}, arityErr("CLUSTER PUBLISH")
		}
		n := s.broker.PublishLocal(string(rest[0]), rest[1])
		return resp.NewInteger(int64(n)), nil

	default:
		return resp.Value{}, unknownCommand("CLUSTER " + sub)
	}
}

func (s *Server) handleSetSlot(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("CLUSTER SETSLOT")
	}
	slotN, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	if string(upper(args[1])) != "IMPORTING" {
		return resp.Value{}, errors.New("ERR unsupported SETSLOT mode")
	}
	s.cluster.Table().BeginImporting(uint16(slotN), string(args[2]))
	return resp.NewSimpleString("OK"), nil
}

func (s *Server) handleRestore(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("CLUSTER RESTORE")
	}
	key := string(args[0])
	ttlMs, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return resp.Value{}, err
	}

	dec := resp.NewDecoder(bytes.NewReader(args[2]))
	v, err := dec.Decode()
	if err != nil {
		return resp.Value{}, err
	}
	val, err := cluster.DecodeStoreValue(v)
	if err != nil {
		return resp.Value{}, err
	}

	var expiresAt *time.Time
	if ttlMs >= 0 {
		t := time.UnixMilli(ttlMs)
		expiresAt = &t
	}
	s.engine.Restore(key, val, expiresAt)
	return resp.NewSimpleString("OK"), nil
}

func (s *Server) handleUpdate(args [][]byte) (resp.Value, error) {
	if len(args) != 3 {
		return resp.Value{}, arityErr("CLUSTER UPDATE")
	}
	slotN, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	owner := string(args[1])
	epoch, err := strconv.ParseUint(string(args[2]), 10, 64)
	if err != nil {
		return resp.Value{}, err
	}
	s.cluster.Table().AssignIfNewer(uint16(slotN), owner, epoch)
	return resp.NewSimpleString("OK"), nil
}

func (s *Server) handleMigrate(args [][]byte, log *zap.Logger) (resp.Value, error) {
	if len(args) != 2 {
		return resp.Value{}, arityErr("CLUSTER MIGRATE")
	}
	slotN, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return resp.Value{}, err
	}
	dst, ok := s.cluster.Member().Get(string(args[1]))
	if !ok {
		return resp.Value{}, cluster.ErrUnknownNode
	}

	go func() {
		if err := s.cluster.MigrateSlot(s.engine, uint16(slotN), dst); err != nil {
			log.Error("slot migration failed", zap.Int("slot", slotN), zap.String("to", dst.ID), zap.Error(err))
		}
		if s.metrics != nil {
			s.metrics.ClusterSlots.Set(float64(len(s.cluster.Table().OwnedBy(s.cluster.Self().ID))))
		}
	}()
	return resp.NewSimpleString("OK"), nil
}
