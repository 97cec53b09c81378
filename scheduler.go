package ftpd

import (
	"container/heap"
	"sync"
	"time"
)

// Scheduler is a monotonic-time priority queue of deferred and periodic
// callbacks, as specified in spec.md §4.2. It is safe for concurrent use:
// the one an Authorizer holds is shared by every session that Authorizer
// authenticates, and is ticked from timer goroutines (see
// Authorizer.ValidateAuthentication).
//
// Cancellation is lazy: Cancel just marks an entry dead, Tick skips dead
// entries when it pops them. This keeps Cancel O(log n) amortized (no heap
// search) and Tick O(log n) per fired entry, matching the spec's invariant.
type Scheduler struct {
	mu       sync.Mutex
	items    timerHeap
	seq      uint64
	now      func() time.Time
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{now: time.Now}
	heap.Init(&s.items)

	return s
}

// Handle references a scheduled call; Cancel is idempotent and safe to call
// from any goroutine.
type Handle struct {
	item *timerItem
}

// Cancel marks the call as cancelled. It never fires after this returns,
// and calling Cancel twice is a no-op (spec.md §8, invariant 6).
func (h *Handle) Cancel() {
	if h == nil || h.item == nil {
		return
	}

	h.item.mu.Lock()
	h.item.cancelled = true
	h.item.mu.Unlock()
}

type timerItem struct {
	mu        sync.Mutex
	deadline  time.Time
	interval  time.Duration // 0 for one-shot
	seq       uint64
	cancelled bool
	fn        func()
	index     int
}

func (t *timerItem) isCancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelled
}

type timerHeap []*timerItem

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}

	return h[i].deadline.Before(h[j].deadline)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	item := x.(*timerItem) //nolint:forcetypeassert
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]

	return item
}

// CallLater schedules fn to run once after delay has elapsed.
func (s *Scheduler) CallLater(delay time.Duration, fn func()) *Handle {
	return s.schedule(delay, 0, fn)
}

// CallEvery schedules fn to run every interval, starting after the first
// interval elapses. After each firing the entry is reinserted at
// now+interval.
func (s *Scheduler) CallEvery(interval time.Duration, fn func()) *Handle {
	return s.schedule(interval, interval, fn)
}

func (s *Scheduler) schedule(delay, interval time.Duration, fn func()) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	item := &timerItem{
		deadline: s.now().Add(delay),
		interval: interval,
		seq:      s.seq,
		fn:       fn,
	}
	heap.Push(&s.items, item)

	return &Handle{item: item}
}

// Reschedule cancels handle's current firing and reinserts it at
// now+newDelay, in O(log n).
func (s *Scheduler) Reschedule(handle *Handle, newDelay time.Duration) *Handle {
	if handle != nil {
		handle.Cancel()
	}

	var fn func()
	if handle != nil && handle.item != nil {
		fn = handle.item.fn
	}

	return s.CallLater(newDelay, fn)
}

// Tick fires every expired, non-cancelled entry in non-decreasing deadline
// order (ties broken by insertion order) and returns the duration until the
// next non-cancelled entry, or -1 if the scheduler is empty.
func (s *Scheduler) Tick() time.Duration {
	now := s.now()

	for {
		fn, ok := s.popDue(now)
		if !ok {
			break
		}

		if fn != nil {
			fn()
		}
	}

	return s.nextTimeout(now)
}

func (s *Scheduler) popDue(now time.Time) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.items.Len() > 0 {
		top := s.items[0]
		if top.isCancelled() {
			heap.Pop(&s.items)

			continue
		}

		if top.deadline.After(now) {
			return nil, false
		}

		heap.Pop(&s.items)

		if top.interval > 0 {
			s.seq++
			top.seq = s.seq
			top.deadline = now.Add(top.interval)
			heap.Push(&s.items, top)
		}

		return top.fn, true
	}

	return nil, false
}

func (s *Scheduler) nextTimeout(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.items.Len() > 0 {
		top := s.items[0]
		if top.isCancelled() {
			heap.Pop(&s.items)

			continue
		}

		d := top.deadline.Sub(now)
		if d < 0 {
			d = 0
		}

		return d
	}

	return -1
}

// Len reports the number of live (non-cancelled) and not-yet-fired entries.
// It is mainly useful in tests.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0

	for _, it := range s.items {
		if !it.isCancelled() {
			n++
		}
	}

	return n
}
