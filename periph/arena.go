package periph

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
)

func (s slotState) String() string {
	if s == slotOccupied {
		return "constructed"
	}
	return "destroyed"
}

// instance is the live peripheral object. It lives inside its slot and is
// zeroed in place when destroyed.
type instance[C comparable] struct {
	id  ID
	cfg C
}

// slot is the fixed storage for one identifier.
//
// mu orders construction against destruction. io is the instance I/O lock;
// it belongs to the slot so that it survives reconstruction. Lock order is
// always mu before io.
type slot[C comparable] struct {
	idx ID

	mu    sync.Mutex
	state slotState // guarded by mu
	gen   uint32    // guarded by mu; bumped on every construction
	inst  instance[C]

	live  atomic.Bool  // mirrors state for lock-free queries
	refs  atomic.Int32 // outstanding handle references
	ready atomic.Bool  // last Init succeeded and no Deinit since; written under io

	io *semaphore.Weighted
}

// lockIO takes the I/O lock for lifecycle work. With a background context
// Acquire only returns once the lock is held, so there is no error to check.
func (s *slot[C]) lockIO() { _ = s.io.Acquire(context.Background(), 1) }

// occupy constructs inst in place. Caller holds mu.
func (s *slot[C]) occupy(id ID, cfg C) uint32 {
	s.inst = instance[C]{id: id, cfg: cfg}
	s.state = slotOccupied
	s.gen++
	s.refs.Store(1)
	s.live.Store(true)
	return s.gen
}

// vacate destroys the instance in place. Caller holds mu.
func (s *slot[C]) vacate() {
	s.inst = instance[C]{}
	s.state = slotEmpty
	s.ready.Store(false)
	s.live.Store(false)
}

// tryRef adds a reference unless the count already reached zero. Only
// GetHandle, under mu, may take a count back up from zero.
func (s *slot[C]) tryRef() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// arena is the preallocated slot table. Its length never changes.
type arena[C comparable] struct {
	slots []slot[C]
}

func newArena[C comparable](n int) arena[C] {
	a := arena[C]{slots: make([]slot[C], n)}
	for i := range a.slots {
		a.slots[i].idx = ID(i)
		a.slots[i].io = semaphore.NewWeighted(1)
	}
	return a
}

// at returns the slot for id, or false when id is out of range.
func (a *arena[C]) at(id ID) (*slot[C], bool) {
	if int(id) >= len(a.slots) {
		return nil, false
	}
	return &a.slots[id], true
}

func (a *arena[C]) len() int { return len(a.slots) }
