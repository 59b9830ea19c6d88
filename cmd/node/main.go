// Command node runs one rdnode cluster member: it loads a config file,
// recovers persisted state, joins or bootstraps the cluster, and serves
// RESP traffic on the client and peer ports until terminated.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rdnode/rdnode/internal/aof"
	"github.com/rdnode/rdnode/internal/cluster"
	"github.com/rdnode/rdnode/internal/config"
	"github.com/rdnode/rdnode/internal/logging"
	"github.com/rdnode/rdnode/internal/metrics"
	"github.com/rdnode/rdnode/internal/persistence"
	"github.com/rdnode/rdnode/internal/pubsub"
	"github.com/rdnode/rdnode/internal/server"
	"github.com/rdnode/rdnode/internal/store"
	"github.com/rdnode/rdnode/pkg/fmtt"
)

const (
	exitOK             = 0
	exitConfigError    = 1
	exitCorruptPersist = 2
	exitPortBindFail   = 3
	exitPeerHandshake  = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: node <conf_file> [<ip>:<port>]")
		return exitConfigError
	}
	confPath := os.Args[1]
	var meetAddr string
	if len(os.Args) == 3 {
		meetAddr = os.Args[2]
	}

	log := logging.New()
	defer log.Sync()
	log = log.Named("main")

	cfg, err := config.Load(confPath)
	if err != nil {
		log.Error("config load failed", zap.Error(err))
		return exitConfigError
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		log.Error("data directory creation failed", zap.Error(err))
		return exitConfigError
	}

	nodeIDPath := filepath.Join(cfg.Dir, "nodeid")
	nodeID, err := loadOrCreateNodeID(nodeIDPath)
	if err != nil {
		log.Error("node id persistence failed", zap.Error(err))
		return exitConfigError
	}

	engine := store.NewEngine(log, cfg.MaxMemory)

	rdbPath := filepath.Join(cfg.Dir, cfg.DBFilename)
	aofPath := filepath.Join(cfg.Dir, cfg.AOFFilename)

	snapshotEntries, aofCmds, err := persistence.Recover(rdbPath, aofPath, log)
	if err != nil {
		log.Error("recovery from persisted state failed", zap.Error(err))
		if os.Getenv("RDNODE_ENV") == "dev" {
			fmtt.PrintErrChain(err)
		}
		return exitCorruptPersist
	}
	for _, e := range snapshotEntries {
		engine.Restore(e.Key, e.Value, e.ExpiresAt)
	}
	if err := server.ApplyReplayed(engine, aofCmds); err != nil {
		log.Error("aof replay failed", zap.Error(err))
		return exitCorruptPersist
	}

	policy, err := aof.ParsePolicy(cfg.AppendFsync)
	if err != nil {
		log.Error("invalid appendfsync policy", zap.Error(err))
		return exitConfigError
	}
	aofw, err := aof.Open(aofPath, policy, log)
	if err != nil {
		log.Error("aof open failed", zap.Error(err))
		return exitCorruptPersist
	}
	defer aofw.Close()

	points := make([]persistence.SavePoint, len(cfg.Save))
	for i, sp := range cfg.Save {
		points[i] = persistence.SavePoint{Seconds: sp.Seconds, Writes: int64(sp.Writes)}
	}
	coord := persistence.New(log, engine, aofw, rdbPath, points)
	coord.Start()
	defer coord.Close()

	self := cluster.Descriptor{
		ID:         nodeID,
		Host:       cfg.Bind,
		ClientPort: cfg.Port,
		PeerPort:   cfg.ClusterPort,
		State:      cluster.Joining,
		Epoch:      1,
		LastSeen:   time.Now(),
	}
	c := cluster.New(log, self, cluster.Config{
		NodeTimeout: time.Duration(cfg.NodeTimeoutMS) * time.Millisecond,
	}, engine.Has)

	if meetAddr == "" {
		c.BootstrapSingleNode()
	} else {
		if err := c.Meet(meetAddr); err != nil {
			log.Error("cluster meet failed", zap.String("addr", meetAddr), zap.Error(err))
			return exitPeerHandshake
		}
	}
	c.Start()
	defer c.Stop()
	if meetAddr != "" {
		go c.RebalanceOnJoin(engine)
	}

	broker := pubsub.New(log)
	m := metrics.New()

	stopSweeper := make(chan struct{})
	go runExpirySweep(engine, m, time.Second, stopSweeper)
	defer close(stopSweeper)

	srv := server.New(server.Config{
		ClientAddr:              fmt.Sprintf(":%d", cfg.Port),
		PeerAddr:                fmt.Sprintf(":%d", cfg.ClusterPort),
		IdleTimeout:             time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		ClientOutputBufferLimit: cfg.ClientOutputBufferLimit,
	}, server.Deps{
		Log:     log,
		Engine:  engine,
		Cluster: c,
		Broker:  broker,
		Coord:   coord,
		AOF:     aofw,
		Metrics: m,
	})

	if err := srv.Listen(); err != nil {
		log.Error("listen failed", zap.Error(err))
		return exitPortBindFail
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })

	if cfg.MetricsPort != 0 {
		metricsSrv := metrics.NewServer(fmt.Sprintf(":%d", cfg.MetricsPort), m, log)
		g.Go(func() error { return metricsSrv.Serve(gctx) })
	}

	go sampleGauges(gctx, engine, c, m)

	log.Info("node started",
		zap.String("node_id", nodeID),
		zap.Int("port", cfg.Port),
		zap.Int("cluster_port", cfg.ClusterPort),
	)

	if err := g.Wait(); err != nil {
		if errors.Is(err, server.ErrPersistenceFatal) {
			log.Error("node exited after fatal persistence write failure", zap.Error(err))
			return exitCorruptPersist
		}
		log.Error("node exited with error", zap.Error(err))
		return exitPortBindFail
	}
	return exitOK
}

// runExpirySweep drives the engine's periodic TTL sweep and folds the
// eviction count into the expired-keys counter; kept here instead of
// inside internal/store so the store package stays metrics-agnostic.
func runExpirySweep(engine *store.Engine, m *metrics.Metrics, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := engine.SweepExpired(); n > 0 {
				m.ExpiredKeys.Add(float64(n))
			}
		}
	}
}

// sampleGauges periodically pulls point-in-time state into the gauges
// Metrics exports; counters are incremented where the events actually
// happen instead.
func sampleGauges(ctx context.Context, engine *store.Engine, c *cluster.Cluster, m *metrics.Metrics) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.KeyspaceSize.Set(float64(engine.Len()))
			m.ClusterSlots.Set(float64(len(c.Table().OwnedBy(c.Self().ID))))
		}
	}
}

// loadOrCreateNodeID returns the node's stable id, generating and
// persisting a new one on first run.
func loadOrCreateNodeID(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err == nil && len(b) > 0 {
		return string(b), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	id := cluster.NewNodeID()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return id, nil
}
