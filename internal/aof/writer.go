// Package aof implements the append-only persistence log: a single
// background writer goroutine batches and (depending on fsync policy)
// durably flushes RESP-encoded commands to appendonly.aof.
package aof

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/rdnode/rdnode/internal/resp"
)

// Header is the literal first line every AOF file begins with.
const Header = "#AOF1\r\n"

// FsyncPolicy controls how aggressively the writer calls fsync.
type FsyncPolicy int

const (
	// Always fsyncs after every batch drain (strongest durability, slowest).
	Always FsyncPolicy = iota
	// EverySec fsyncs on a 1-second ticker regardless of write volume
	// (the common default, trading at most ~1s of acknowledged writes on
	// a hard crash).
	EverySec
	// Never relies entirely on the OS page cache flush schedule.
	Never
)

// ParsePolicy parses the config grammar's "always|everysec|no" token.
func ParsePolicy(s string) (FsyncPolicy, error) {
	switch s {
	case "always":
		return Always, nil
	case "everysec":
		return EverySec, nil
	case "no":
		return Never, nil
	default:
		return 0, fmt.Errorf("aof: unknown fsync policy %q", s)
	}
}

// kind distinguishes the things that can pass through the writer's single
// request queue: a real command record, a bare barrier (a request that
// carries no data and only waits for the batch it lands in; nothing in this
// package submits one), and a rotate request (used after a successful
// snapshot).
type kind int

const (
	kindWrite kind = iota
	kindBarrier
	kindRotate
)

type writeRequest struct {
	kind kind
	data []byte
	done chan error
}

// Writer owns the AOF file and its single writer goroutine. Append is safe
// to call concurrently from many command-executing goroutines; all of them
// are serialized through one channel.
type Writer struct {
	log    *zap.Logger
	f      *os.File
	bw     *bufio.Writer
	policy FsyncPolicy

	reqs   chan writeRequest
	closed chan struct{}
	done   chan struct{}
}

// Open opens (creating if needed) the AOF file at path, writing the header
// if the file is new, and starts the writer goroutine.
func Open(path string, policy FsyncPolicy, log *zap.Logger) (*Writer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("aof")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("aof: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("aof: write header: %w", err)
		}
	}

	w := &Writer{
		log:    log,
		f:      f,
		bw:     bufio.NewWriter(f),
		policy: policy,
		reqs:   make(chan writeRequest, 4096),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	go w.run()
	if policy == EverySec {
		go w.tickFsync()
	}
	return w, nil
}

// Append encodes cmd as a RESP array and durably enqueues it, blocking
// until the batch it lands in has been written (and, under Always, synced)
// to disk. A non-nil error is fatal to the node per the persistence error
// policy: acknowledged writes must be durable.
func (w *Writer) Append(cmd resp.Value) error {
	return w.submit(writeRequest{kind: kindWrite, data: resp.EncodeToBytes(cmd)})
}

// Rotate truncates the log to zero length and rewrites the header. Callers
// must only invoke this after a snapshot has been durably renamed into
// place, so the truncated log can never be the sole record of pre-snapshot
// writes. It is processed in strict order with respect to Append calls, so
// nothing written before the Rotate call is lost and nothing after it
// lands before the truncation.
func (w *Writer) Rotate() error {
	return w.submit(writeRequest{kind: kindRotate})
}

func (w *Writer) submit(req writeRequest) error {
	req.done = make(chan error, 1)
	select {
	case w.reqs <- req:
	case <-w.closed:
		return fmt.Errorf("aof: writer closed")
	}
	return <-req.done
}

// run is the single writer goroutine. All file mutation — appends and
// rotation — happens here, so nothing ever races with it. The EverySec
// fsync is the one file operation issued from another goroutine
// (tickFsync).
func (w *Writer) run() {
	defer close(w.done)

	for {
		select {
		case <-w.closed:
			w.drainRemaining()
			return
		case first := <-w.reqs:
			w.handleBatch(first)
		}
	}
}

// handleBatch drains every request already queued behind first and applies
// them as one unit: all pending writes/barriers are flushed (and possibly
// fsynced) together, and a rotate request ends the batch early so it is
// never interleaved with writes queued after it.
func (w *Writer) handleBatch(first writeRequest) {
	batch := []writeRequest{first}
drain:
	for {
		if batch[len(batch)-1].kind == kindRotate {
			break
		}
		select {
		case next := <-w.reqs:
			batch = append(batch, next)
		default:
			break drain
		}
	}

	var writeErr error
	for _, r := range batch {
		if writeErr != nil || r.kind != kindWrite {
			continue
		}
		if _, err := w.bw.Write(r.data); err != nil {
			writeErr = fmt.Errorf("aof: write: %w", err)
		}
	}
	if writeErr == nil {
		if err := w.bw.Flush(); err != nil {
			writeErr = fmt.Errorf("aof: flush: %w", err)
		}
	}
	if writeErr == nil && w.policy == Always {
		if err := w.f.Sync(); err != nil {
			writeErr = fmt.Errorf("aof: fsync: %w", err)
		}
	}
	if writeErr != nil {
		w.log.Error("aof write failed", zap.Error(writeErr))
	}

	for _, r := range batch {
		err := writeErr
		if r.kind == kindRotate && err == nil {
			err = w.doRotate()
		}
		r.done <- err
		close(r.done)
	}
}

// doRotate performs the actual truncate-and-rewrite-header sequence. Only
// ever called from the writer goroutine.
func (w *Writer) doRotate() error {
	if err := w.f.Truncate(0); err != nil {
		return fmt.Errorf("aof: truncate: %w", err)
	}
	if _, err := w.f.Seek(0, 0); err != nil {
		return fmt.Errorf("aof: seek: %w", err)
	}
	w.bw.Reset(w.f)
	if _, err := w.f.WriteString(Header); err != nil {
		return fmt.Errorf("aof: rewrite header: %w", err)
	}
	return nil
}

func (w *Writer) drainRemaining() {
	for {
		select {
		case r := <-w.reqs:
			r.done <- fmt.Errorf("aof: writer closed")
			close(r.done)
		default:
			return
		}
	}
}

// tickFsync calls fsync on the file once a second under the EverySec
// policy, directly from its own goroutine rather than through the request
// queue.
func (w *Writer) tickFsync() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-w.closed:
			return
		case <-ticker.C:
			if err := w.f.Sync(); err != nil {
				w.log.Warn("periodic fsync failed", zap.Error(err))
			}
		}
	}
}

// Close stops the writer goroutine. A batch already being handled is
// finished; requests still waiting in the queue are not written and fail
// with "aof: writer closed".
func (w *Writer) Close() error {
	close(w.closed)
	<-w.done
	return w.f.Close()
}
