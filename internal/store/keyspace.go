// Package store implements the per-node in-memory keyspace: typed values,
// expiry, and the string/list/set command families.
//
// Command execution takes the engine's single mutex for the duration of one
// command (the "single-threaded command executor" discipline the design
// allows as an alternative to a multi-reader/single-writer lock): every
// command, including pure reads, may need to opportunistically evict an
// expired key, so a single exclusive section per command avoids a
// read-then-promote-to-write dance for what is, in practice, cheap
// in-memory work.
package store

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine owns the entire keyspace of one node. Handlers never hold entries
// directly; they call Engine methods and receive value copies.
type Engine struct {
	log *zap.Logger

	mu   sync.Mutex
	data map[string]*entry

	sizes     map[string]int64 // last-computed approximate size per key
	memUsed   int64            // sum of sizes, kept in sync incrementally
	maxMemory int64            // 0 means unlimited

	now func() time.Time // overridable in tests
}

// NewEngine constructs an empty keyspace. maxMemoryBytes caps the engine's
// approximate memory usage; 0 (or negative) disables the limit.
func NewEngine(log *zap.Logger, maxMemoryBytes int64) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if maxMemoryBytes < 0 {
		maxMemoryBytes = 0
	}
	return &Engine{
		log:       log.Named("store"),
		data:      make(map[string]*entry),
		sizes:     make(map[string]int64),
		maxMemory: maxMemoryBytes,
		now:       time.Now,
	}
}

// trackEntryLocked recomputes key's contribution to memUsed after a
// mutation, diffing against the size last recorded for it. Caller must
// hold mu and must call this after the mutation (or deletion) is applied.
func (e *Engine) trackEntryLocked(key string) {
	old := e.sizes[key]
	ent, ok := e.data[key]
	if !ok {
		if old != 0 {
			delete(e.sizes, key)
			e.memUsed -= old
		}
		return
	}
	cur := ent.value.size()
	e.sizes[key] = cur
	e.memUsed += cur - old
}

// trackEntriesLocked is trackEntryLocked for a batch of keys, used by
// commands that can touch more than one (DEL).
func (e *Engine) trackEntriesLocked(keys ...string) {
	for _, k := range keys {
		e.trackEntryLocked(k)
	}
}

// checkOOMLocked rejects a new mutation if the engine is already over its
// maxmemory budget. Caller must hold mu.
func (e *Engine) checkOOMLocked() error {
	if e.maxMemory > 0 && e.memUsed > e.maxMemory {
		return ErrOOM
	}
	return nil
}

// MemUsed returns the engine's current approximate memory usage in bytes.
func (e *Engine) MemUsed() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memUsed
}

// lockedLookup returns the live entry for key, deleting it first if its TTL
// has passed. Caller must hold mu.
func (e *Engine) lockedLookup(key string) (*entry, bool) {
	ent, ok := e.data[key]
	if !ok {
		return nil, false
	}
	if ent.expired(e.now()) {
		delete(e.data, key)
		e.trackEntryLocked(key)
		return nil, false
	}
	return ent, true
}

// Del removes the given keys and returns how many existed.
func (e *Engine) Del(keys ...string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, k := range keys {
		if _, ok := e.lockedLookup(k); ok {
			delete(e.data, k)
			n++
		}
	}
	e.trackEntriesLocked(keys...)
	return n
}

// Exists returns the total number of keys present, counting duplicates in
// the input.
func (e *Engine) Exists(keys ...string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, k := range keys {
		if _, ok := e.lockedLookup(k); ok {
			n++
		}
	}
	return n
}

// TypeOf returns the kind of key, or "none" if absent/expired.
func (e *Engine) TypeOf(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.lockedLookup(key)
	if !ok {
		return "none"
	}
	return ent.value.Kind.String()
}

// Has reports whether key is live, without the "count duplicates" semantics
// EXISTS carries. Used by the cluster router to decide ASK vs local
// execution mid-migration.
func (e *Engine) Has(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.lockedLookup(key)
	return ok
}

// SnapshotEntry is one row of a full-keyspace dump, used by the RDB writer
// and by slot migration's key-streaming phase.
type SnapshotEntry struct {
	Key       string
	Value     Value
	ExpiresAt *time.Time
}

// Snapshot returns a deep-copied, point-in-time view of every live key.
// Expired keys are excluded but not evicted (eviction happens lazily on
// next access, or via the sweeper).
func (e *Engine) Snapshot() []SnapshotEntry {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	out := make([]SnapshotEntry, 0, len(e.data))
	for k, ent := range e.data {
		if ent.expired(now) {
			continue
		}
		var exp *time.Time
		if ent.expiresAt != nil {
			t := *ent.expiresAt
			exp = &t
		}
		out = append(out, SnapshotEntry{Key: k, Value: ent.value.clone(), ExpiresAt: exp})
	}
	return out
}

// Restore installs a single entry directly, bypassing type-aware command
// validation. Used by snapshot load and CLUSTER RESTORE.
func (e *Engine) Restore(key string, value Value, expiresAt *time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.data[key] = &entry{value: value, expiresAt: expiresAt}
	e.trackEntryLocked(key)
}

// Len returns the number of entries currently stored, including any not
// yet lazily evicted past their TTL.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.data)
}

// sweepSampleSize is how many random keys the expiry sweeper inspects per
// pass, mirroring Redis' own probabilistic active-expiry cycle.
const sweepSampleSize = 20

// SweepExpired samples up to sweepSampleSize random entries and evicts any
// that are past their TTL. It returns the number evicted. Intended to be
// called periodically by a background goroutine (see RunExpirySweeper).
func (e *Engine) SweepExpired() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.data) == 0 {
		return 0
	}

	now := e.now()
	keys := make([]string, 0, len(e.data))
	for k, ent := range e.data {
		if ent.expiresAt != nil {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0
	}

	rand.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	if len(keys) > sweepSampleSize {
		keys = keys[:sweepSampleSize]
	}

	evicted := 0
	for _, k := range keys {
		if ent, ok := e.data[k]; ok && ent.expired(now) {
			delete(e.data, k)
			e.trackEntryLocked(k)
			evicted++
		}
	}
	return evicted
}

// RunExpirySweeper runs SweepExpired every interval until stop is closed.
// cmd/node runs its own sweep loop instead, so it can also count evictions
// in the expired-keys metric.
func (e *Engine) RunExpirySweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := e.SweepExpired(); n > 0 {
				e.log.Debug("expiry sweep evicted keys", zap.Int("count", n))
			}
		}
	}
}
