// Package server implements the node's TCP listeners: a client-facing RESP
// port and a peer-facing gossip/migration port, plus the per-connection
// command dispatch that ties storage, cluster routing and pub/sub together.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rdnode/rdnode/internal/aof"
	"github.com/rdnode/rdnode/internal/cluster"
	"github.com/rdnode/rdnode/internal/metrics"
	"github.com/rdnode/rdnode/internal/persistence"
	"github.com/rdnode/rdnode/internal/pubsub"
	"github.com/rdnode/rdnode/internal/store"
)

// ErrPersistenceFatal wraps the underlying I/O error when a connection
// handler hits an unrecoverable persistence write failure. Serve returns
// an error satisfying errors.Is(err, ErrPersistenceFatal) in that case, so
// the caller can map it to its own fatal-persistence exit code.
var ErrPersistenceFatal = errors.New("server: persistence write failed")

// Config carries the listener/timeout knobs the caller (cmd/node) has
// already loaded from the node's config file.
type Config struct {
	ClientAddr              string
	PeerAddr                string
	IdleTimeout             time.Duration
	ClientOutputBufferLimit int
}

// Server owns both listeners and every live connection's lifecycle. Serve
// runs one errgroup over the two accept loops so either listener dying
// brings the whole server down, and a goroutine watching ctx/shutdown
// tears down every open connection alongside the listeners.
type Server struct {
	log     *zap.Logger
	cfg     Config
	engine  *store.Engine
	cluster *cluster.Cluster
	broker  *pubsub.Broker
	coord   *persistence.Coordinator
	aofw    *aof.Writer
	metrics *metrics.Metrics

	clientLn net.Listener
	peerLn   net.Listener

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	// shutdown is closed once, by triggerFatalShutdown, to force an
	// immediate teardown outside the normal ctx-cancellation path (a
	// single connection hit a fatal persistence error and the whole node
	// needs to stop serving).
	shutdownOnce sync.Once
	shutdown     chan struct{}
	fatalErr     error
	fatalMu      sync.Mutex
}

// Deps bundles every already-constructed collaborator a Server needs.
type Deps struct {
	Log     *zap.Logger
	Engine  *store.Engine
	Cluster *cluster.Cluster
	Broker  *pubsub.Broker
	Coord   *persistence.Coordinator
	AOF     *aof.Writer
	Metrics *metrics.Metrics
}

func New(cfg Config, deps Deps) *Server {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		log:      log.Named("server"),
		cfg:      cfg,
		engine:   deps.Engine,
		cluster:  deps.Cluster,
		broker:   deps.Broker,
		coord:    deps.Coord,
		aofw:     deps.AOF,
		metrics:  deps.Metrics,
		conns:    make(map[net.Conn]struct{}),
		shutdown: make(chan struct{}),
	}
}

// triggerFatalShutdown records err and forces Serve to return, wrapping
// ErrPersistenceFatal, once every listener and connection has been closed.
// Safe to call more than once or concurrently; only the first call's error
// is kept.
func (s *Server) triggerFatalShutdown(err error) {
	s.fatalMu.Lock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.fatalMu.Unlock()
	s.shutdownOnce.Do(func() { close(s.shutdown) })
}

// Listen binds both TCP ports. Bind failures are the caller's cue to exit
// with the port-bind-failure exit code.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ClientAddr)
	if err != nil {
		return fmt.Errorf("server: listen client port %s: %w", s.cfg.ClientAddr, err)
	}
	s.clientLn = ln

	peerLn, err := net.Listen("tcp", s.cfg.PeerAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("server: listen peer port %s: %w", s.cfg.PeerAddr, err)
	}
	s.peerLn = peerLn
	return nil
}

// Serve runs both accept loops until ctx is cancelled and returns once both
// loops have exited; connection handlers are closed but not waited for.
// If a connection handler calls
// triggerFatalShutdown (an unrecoverable persistence write failure), Serve
// tears down the same way and returns an error wrapping ErrPersistenceFatal
// instead of nil.
func (s *Server) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.acceptLoop(ctx, s.clientLn, s.handleClient) })
	g.Go(func() error { return s.acceptLoop(ctx, s.peerLn, s.handlePeer) })

	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdown:
		}
		s.clientLn.Close()
		s.peerLn.Close()
		s.connMu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.connMu.Unlock()
	}()

	err := g.Wait()

	s.fatalMu.Lock()
	fatal := s.fatalErr
	s.fatalMu.Unlock()
	if fatal != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFatal, fatal)
	}
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, handle func(net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.shutdown:
				return nil
			default:
				return fmt.Errorf("server: accept on %s: %w", ln.Addr(), err)
			}
		}

		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		go func() {
			defer func() {
				conn.Close()
				s.connMu.Lock()
				delete(s.conns, conn)
				s.connMu.Unlock()
			}()
			handle(conn)
		}()
	}
}

// nextConnID labels one connection's whole lifetime for correlation across
// its log lines.
func nextConnID() string {
	return uuid.New().String()
}
