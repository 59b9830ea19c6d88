// Package persistence coordinates the append-only log, point-in-time
// snapshots, and the multiple `save <seconds> <writes>` directives that
// decide when a snapshot is due, tying internal/aof, internal/rdb and
// internal/store together behind one Coordinator.
package persistence

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rdnode/rdnode/internal/aof"
	"github.com/rdnode/rdnode/internal/rdb"
	"github.com/rdnode/rdnode/internal/resp"
	"github.com/rdnode/rdnode/internal/store"
)

// retryBackoff is how long the scheduler waits before rechecking a
// savePoint whose time condition is already satisfied but whose write
// count isn't yet — busy-waiting on the heap would otherwise spin at the
// interval's granularity of zero.
const retryBackoff = time.Second

// SavePoint mirrors one parsed `save <seconds> <writes>` config directive.
type SavePoint struct {
	Seconds int
	Writes  int64
}

// Coordinator owns the AOF writer and drives snapshot scheduling. It does
// not itself decode or execute commands; the server package calls
// RecordWrite after a mutating command has been both applied to the
// engine and appended to the AOF.
type Coordinator struct {
	log    *zap.Logger
	engine *store.Engine
	aofw   *aof.Writer

	rdbPath string
	points  []SavePoint

	dirty        atomic.Int64
	lastSnapshot time.Time

	sched *scheduler
	sig   chan struct{}
	stop  chan struct{}
	done  chan struct{}

	sf singleflight.Group
}

// New constructs a Coordinator. The AOF writer must already be open;
// Start begins the scheduling loop.
func New(log *zap.Logger, engine *store.Engine, aofw *aof.Writer, rdbPath string, points []SavePoint) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		log:          log.Named("persistence"),
		engine:       engine,
		aofw:         aofw,
		rdbPath:      rdbPath,
		points:       points,
		lastSnapshot: time.Now(),
		sched:        newScheduler(),
		sig:          make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start arms the scheduler for every configured save point and begins the
// background loop. A Coordinator with no save points still runs the loop
// (harmlessly idle) so ManualSnapshot keeps working.
func (c *Coordinator) Start() {
	now := time.Now()
	for i, p := range c.points {
		c.sched.push(i, now.Add(time.Duration(p.Seconds)*time.Second))
	}
	go c.mainloop()
}

// RecordWrite notes that one mutating command has landed, and must be
// called after the command is durably appended to the AOF so the dirty
// counter never runs ahead of what the log actually contains.
func (c *Coordinator) RecordWrite() {
	c.dirty.Add(1)
	select {
	case c.sig <- struct{}{}:
	default:
	}
}

// ManualSnapshot triggers an immediate snapshot (SAVE/BGSAVE), coalesced
// with any snapshot the scheduler is concurrently about to take.
func (c *Coordinator) ManualSnapshot() error {
	_, err, _ := c.sf.Do("snapshot", func() (any, error) {
		return nil, c.doSnapshot()
	})
	return err
}

func (c *Coordinator) mainloop() {
	defer close(c.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for {
		point, due, ok := c.sched.next()
		if !ok {
			select {
			case <-c.stop:
				return
			case <-c.sig:
				continue
			}
		}

		delay := time.Until(due)
		if delay > 0 {
			arm(timer, delay)
			select {
			case <-c.stop:
				return
			case <-c.sig:
				continue
			case <-timer.C:
			}
		}

		c.sched.pop()
		sp := c.points[point]
		if c.dirty.Load() >= sp.Writes {
			if _, err, _ := c.sf.Do("snapshot", func() (any, error) {
				return nil, c.doSnapshot()
			}); err != nil {
				c.log.Error("scheduled snapshot failed", zap.Error(err))
			}
			// All save points are relative to the same lastSnapshot clock,
			// so rearm every one of them now rather than just this point.
			now := time.Now()
			for i, p := range c.points {
				c.sched.push(i, now.Add(time.Duration(p.Seconds)*time.Second))
			}
			continue
		}

		// Time elapsed but not enough writes yet: recheck shortly.
		c.sched.push(point, time.Now().Add(retryBackoff))
	}
}

func (c *Coordinator) doSnapshot() error {
	entries := c.engine.Snapshot()
	if err := rdb.Save(c.rdbPath, entries); err != nil {
		return fmt.Errorf("persistence: snapshot: %w", err)
	}
	if err := c.aofw.Rotate(); err != nil {
		return fmt.Errorf("persistence: rotate aof after snapshot: %w", err)
	}
	c.dirty.Store(0)
	c.lastSnapshot = time.Now()
	c.log.Info("snapshot written", zap.String("path", c.rdbPath), zap.Int("entries", len(entries)))
	return nil
}

// Close stops the scheduling loop. It does not close the AOF writer,
// which the caller owns.
func (c *Coordinator) Close() {
	close(c.stop)
	<-c.done
}

// Recover loads startup state: first the snapshot (if any), then the AOF
// commands recorded since that snapshot, in execution order. The caller
// is responsible for restoring the snapshot entries into a fresh engine
// and replaying the commands through its normal dispatcher, so that
// replay exercises exactly the same command semantics as live traffic.
func Recover(rdbPath, aofPath string, log *zap.Logger) ([]store.SnapshotEntry, []resp.Value, error) {
	entries, err := rdb.Load(rdbPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("persistence: load snapshot: %w", err)
	}
	cmds, err := aof.Replay(aofPath, log)
	if err != nil {
		return nil, nil, fmt.Errorf("persistence: replay aof: %w", err)
	}
	return entries, cmds, nil
}
