package periph

import (
	"sync"
	"sync/atomic"
	"time"
)

type testConfig struct {
	Baud  int
	Flow  bool
	Label string
}

var (
	cfg9600  = testConfig{Baud: 9600}
	cfg57600 = testConfig{Baud: 57600}
)

// recDriver records every call and flags overlapping calls on one ID.
type recDriver struct {
	mu      sync.Mutex
	calls   []string
	inits   map[ID]int
	deinits map[ID]int
	sends   map[ID]int
	recvs   map[ID]int

	initErr error
	xferErr error
	delay   time.Duration

	active  [MaxSlots]atomic.Int32
	overlap atomic.Bool
}

func newRecDriver() *recDriver {
	return &recDriver{
		inits:   map[ID]int{},
		deinits: map[ID]int{},
		sends:   map[ID]int{},
		recvs:   map[ID]int{},
	}
}

func (d *recDriver) enter(id ID, name string, counts map[ID]int) {
	if d.active[id].Add(1) > 1 {
		d.overlap.Store(true)
	}
	d.mu.Lock()
	d.calls = append(d.calls, name+" "+id.String())
	counts[id]++
	d.mu.Unlock()
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
}

func (d *recDriver) leave(id ID) { d.active[id].Add(-1) }

func (d *recDriver) Init(id ID, _ testConfig) error {
	d.enter(id, "init", d.inits)
	defer d.leave(id)
	return d.initErr
}

func (d *recDriver) Deinit(id ID) error {
	d.enter(id, "deinit", d.deinits)
	defer d.leave(id)
	return nil
}

func (d *recDriver) Send(id ID, p []byte) error {
	d.enter(id, "send", d.sends)
	defer d.leave(id)
	return d.xferErr
}

func (d *recDriver) Receive(id ID, p []byte) error {
	d.enter(id, "receive", d.recvs)
	defer d.leave(id)
	for i := range p {
		p[i] = byte(16 + i)
	}
	return d.xferErr
}

func (d *recDriver) count(m map[ID]int, id ID) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return m[id]
}

func (d *recDriver) log() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}
