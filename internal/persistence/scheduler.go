package persistence

import (
	"container/heap"
	"time"
)

// savePoint is one `save <seconds> <writes>` directive: a snapshot is due
// once at least Seconds have elapsed since the last snapshot AND at least
// Writes mutating commands have landed since then.
type savePoint struct {
	seconds int
	writes  int64
}

// schedEntry is one heap-scheduled check for a savePoint. index supports
// heap.Fix/heap.Remove in O(log n); due is when the entry should next be
// examined — either the savePoint's own interval, or a short backoff if
// the time condition was met but the write-count condition wasn't yet.
type schedEntry struct {
	point int // index into Coordinator.points
	due   time.Time
	index int
}

// scheduler is a min-heap of pending savePoint checks, ordered by due
// time. It never itself decides whether a snapshot fires — the caller
// pops the soonest entry, evaluates the savePoint's condition, and
// reschedules.
type scheduler struct {
	h entryHeap
}

func newScheduler() *scheduler {
	h := entryHeap{}
	heap.Init(&h)
	return &scheduler{h: h}
}

func (s *scheduler) push(point int, due time.Time) {
	heap.Push(&s.h, &schedEntry{point: point, due: due})
}

// next returns the soonest entry without removing it.
func (s *scheduler) next() (point int, due time.Time, ok bool) {
	if len(s.h) == 0 {
		return 0, time.Time{}, false
	}
	e := s.h[0]
	return e.point, e.due, true
}

// pop removes the head entry unconditionally.
func (s *scheduler) pop() {
	if len(s.h) == 0 {
		return
	}
	heap.Pop(&s.h)
}

type entryHeap []*schedEntry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].due.Before(h[j].due) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *entryHeap) Push(x any) {
	e := x.(*schedEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	e.index = -1
	*h = old[:n-1]
	return e
}

// arm resets t to fire after d, draining any stale pending tick first.
func arm(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
