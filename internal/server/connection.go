package server

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/cluster"
	"github.com/rdnode/rdnode/internal/pubsub"
	"github.com/rdnode/rdnode/internal/resp"
)

// connState is the per-connection session state: normal command dispatch,
// or restricted to pub/sub commands once SUBSCRIBE has been issued.
type connState int

const (
	stateNormal connState = iota
	stateSubscribed
)

var errOnlyPubsubAllowed = errors.New("ERR only (P)SUBSCRIBE / (P)UNSUBSCRIBE / PING / QUIT allowed in this context")

// handleClient drives one client connection until it disconnects or issues
// QUIT: decode a command, dispatch it, reply, repeat.
func (s *Server) handleClient(conn net.Conn) {
	id := nextConnID()
	log := s.log.With(zap.String("conn_id", id), zap.String("remote", conn.RemoteAddr().String()))

	dec := resp.NewDecoder(conn)
	enc := resp.NewEncoder(conn)

	var sub *pubsub.Subscriber
	state := stateNormal

	dropped := make(chan struct{}, 1)
	sub = pubsub.NewSubscriber(id, s.cfg.ClientOutputBufferLimit, func() {
		select {
		case dropped <- struct{}{}:
		default:
		}
	})

	drainDone := make(chan struct{})
	go s.drainSubscriberMailbox(conn, sub, drainDone)
	defer func() {
		s.broker.UnsubscribeAll(sub)
		close(sub.Out)
		<-drainDone
	}()

	for {
		if err := applyIdleDeadline(conn, s.cfg.IdleTimeout); err != nil {
			return
		}

		select {
		case <-dropped:
			log.Warn("subscriber output buffer exceeded limit, disconnecting")
			return
		default:
		}

		v, err := dec.Decode()
		if err != nil {
			return
		}
		cmd, err := parseCommand(v)
		if err != nil {
			writeErr(enc, err)
			continue
		}

		if state == stateSubscribed && !pubsubAllowed(cmd.name) {
			writeErr(enc, errOnlyPubsubAllowed)
			continue
		}

		switch cmd.name {
		case "QUIT":
			_ = enc.Encode(resp.NewSimpleString("OK"))
			_ = enc.Flush()
			return
		case "PING":
			s.replyPing(enc, cmd.args)
			continue
		case "SUBSCRIBE":
			s.cmdSubscribe(enc, sub, cmd.args)
			state = stateSubscribed
			continue
		case "UNSUBSCRIBE":
			s.cmdUnsubscribe(enc, sub, cmd.args)
			if sub.Count() == 0 {
				state = stateNormal
			}
			continue
		case "PUBLISH":
			s.cmdPublish(enc, cmd.args)
			continue
		case "CLUSTER":
			s.cmdClusterClient(enc, cmd.args)
			continue
		}

		s.execAndReply(enc, cmd, log)
	}
}

func pubsubAllowed(name string) bool {
	switch name {
	case "SUBSCRIBE", "UNSUBSCRIBE", "PING", "QUIT":
		return true
	default:
		return false
	}
}

// execAndReply routes cmd via the cluster router, executes it locally if
// owned, appends it to the AOF and records the write if mutating, and
// writes the RESP reply.
func (s *Server) execAndReply(enc *resp.Encoder, cmd command, log *zap.Logger) {
	if s.metrics != nil {
		s.metrics.CommandsTotal.WithLabelValues(strings.ToLower(cmd.name)).Inc()
	}

	if s.cluster != nil {
		if err := s.cluster.Router.Route(keysOf(cmd)); err != nil {
			writeErr(enc, routingReplyErr(err))
			return
		}
	}

	reply, err := s.execData(cmd)
	if err != nil {
		writeErr(enc, err)
		return
	}

	if isMutating(cmd.name) {
		raw := make([]resp.Value, len(cmd.args)+1)
		raw[0] = resp.NewBulkStringFromString(cmd.name)
		for i, a := range cmd.args {
			raw[i+1] = resp.NewBulkString(a)
		}
		if s.aofw != nil {
			if err := s.aofw.Append(resp.NewArray(raw)); err != nil {
				log.Error("aof append failed, write cannot be acknowledged as durable", zap.Error(err))
				writeErr(enc, fmt.Errorf("ERR internal error persisting write"))
				s.triggerFatalShutdown(err)
				return
			}
		}
		if s.coord != nil {
			s.coord.RecordWrite()
		}
		if s.metrics != nil {
			s.metrics.AOFWritesTotal.Inc()
		}
	}

	writeVal(enc, reply)
}

// routingReplyErr renders a routing decision as the RESP error text §6
// mandates for each redirect kind.
func routingReplyErr(err error) error {
	var moved *cluster.Moved
	if errors.As(err, &moved) {
		return errors.New("MOVED " + itoa(int(moved.Slot)) + " " + moved.Addr)
	}
	var ask *cluster.Ask
	if errors.As(err, &ask) {
		return errors.New("ASK " + ask.Addr)
	}
	return err
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *Server) replyPing(enc *resp.Encoder, args [][]byte) {
	if len(args) == 0 {
		writeVal(enc, resp.NewSimpleString("PONG"))
		return
	}
	writeVal(enc, resp.NewBulkString(args[0]))
}

func (s *Server) drainSubscriberMailbox(conn net.Conn, sub *pubsub.Subscriber, done chan struct{}) {
	defer close(done)
	enc := resp.NewEncoder(conn)
	for msg := range sub.Out {
		if err := enc.Encode(msg); err != nil {
			return
		}
		if err := enc.Flush(); err != nil {
			return
		}
	}
}

func writeVal(enc *resp.Encoder, v resp.Value) {
	_ = enc.Encode(v)
	_ = enc.Flush()
}

func writeErr(enc *resp.Encoder, err error) {
	_ = enc.Encode(resp.NewError(err.Error()))
	_ = enc.Flush()
}
