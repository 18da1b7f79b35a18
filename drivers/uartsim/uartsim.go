// Package uartsim is an in-memory UART driver for hosts without serial
// hardware. Each channel has a TX ring that captures transmitted bytes and an
// RX ring that tests (or loopback) feed:
//
//	d := uartsim.New(uartsim.Config{Channels: 2, Loopback: true})
//	reg := uart.New(d)
//
// Receive drains the RX ring first. When fewer bytes are waiting than asked
// for, the rest of the buffer is filled with an idle pattern counting up from
// 16, unless Config.StrictRead asks for a timeout instead.
package uartsim

import (
	"errors"
	"sync"
	"time"

	"periphcode-go/errcode"
	"periphcode-go/periph"
	"periphcode-go/types"
	"periphcode-go/x/shmring"
)

// Errors returned by the driver.
var (
	ErrDown        = errors.New("uartsim: channel not initialised")
	ErrUnknownChan = errors.New("uartsim: unknown channel")
	ErrShortRead   = &errcode.E{C: errcode.Timeout, Op: "uartsim", Msg: "not enough rx data"}
)

// Op names a driver entry point for fault injection.
type Op string

const (
	OpInit    Op = "init"
	OpDeinit  Op = "deinit"
	OpSend    Op = "send"
	OpReceive Op = "receive"
)

// idlePatternStart is the first byte of the idle fill pattern.
const idlePatternStart = 16

// Config controls the simulator. All fields are optional.
type Config struct {
	// Channels defaults to types.UARTCount.
	Channels int
	// RingSize is the per-direction buffer size, a power of two. Default 4096.
	RingSize int
	// Loopback copies every transmitted byte into the same channel's RX ring.
	Loopback bool
	// ByteDelay is slept per transferred byte to mimic line time.
	ByteDelay time.Duration
	// StrictRead makes a short RX ring fail Receive with ErrShortRead.
	StrictRead bool
}

// Stats counts calls per channel.
type Stats struct {
	Inits, Deinits, Sends, Receives int
	BytesOut, BytesIn               int
}

type channel struct {
	up    bool
	cfg   types.SerialConfig
	tx    *shmring.Ring
	rx    *shmring.Ring
	stats Stats
}

// Driver implements periph.Driver[types.SerialConfig].
type Driver struct {
	cfg Config

	mu   sync.Mutex
	chs  []channel
	fail map[Op]error
}

var _ periph.Driver[types.SerialConfig] = (*Driver)(nil)

// New creates a simulator with cfg applied over the defaults.
func New(cfg Config) *Driver {
	if cfg.Channels <= 0 {
		cfg.Channels = types.UARTCount
	}
	if cfg.RingSize <= 0 {
		cfg.RingSize = 4096
	}
	d := &Driver{cfg: cfg, chs: make([]channel, cfg.Channels), fail: map[Op]error{}}
	for i := range d.chs {
		d.chs[i].tx = shmring.New(cfg.RingSize)
		d.chs[i].rx = shmring.New(cfg.RingSize)
	}
	return d
}

// FailNext makes the next call to op return err.
func (d *Driver) FailNext(op Op, err error) {
	d.mu.Lock()
	d.fail[op] = err
	d.mu.Unlock()
}

// take returns the channel for id and any injected failure for op. Caller holds mu.
func (d *Driver) take(id periph.ID, op Op) (*channel, error) {
	if int(id) >= len(d.chs) {
		return nil, ErrUnknownChan
	}
	if err, ok := d.fail[op]; ok {
		delete(d.fail, op)
		return nil, err
	}
	return &d.chs[id], nil
}

func (d *Driver) Init(id periph.ID, cfg types.SerialConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, err := d.take(id, OpInit)
	if err != nil {
		return err
	}
	ch.stats.Inits++
	if err := cfg.Validate(); err != nil {
		return err
	}
	ch.cfg = cfg
	ch.up = true
	return nil
}

func (d *Driver) Deinit(id periph.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch, err := d.take(id, OpDeinit)
	if err != nil {
		return err
	}
	ch.stats.Deinits++
	ch.up = false
	ch.rx.Discard()
	return nil
}

func (d *Driver) Send(id periph.ID, p []byte) error {
	d.mu.Lock()
	ch, err := d.take(id, OpSend)
	if err == nil && !ch.up {
		err = ErrDown
	}
	if err != nil {
		d.mu.Unlock()
		return err
	}
	ch.stats.Sends++
	ch.stats.BytesOut += len(p)
	push(ch.tx, p)
	if d.cfg.Loopback {
		push(ch.rx, p)
	}
	d.mu.Unlock()

	d.lineTime(len(p))
	return nil
}

func (d *Driver) Receive(id periph.ID, p []byte) error {
	d.mu.Lock()
	ch, err := d.take(id, OpReceive)
	if err == nil && !ch.up {
		err = ErrDown
	}
	if err != nil {
		d.mu.Unlock()
		return err
	}
	if d.cfg.StrictRead && ch.rx.Available() < len(p) {
		d.mu.Unlock()
		return ErrShortRead
	}
	ch.stats.Receives++
	ch.stats.BytesIn += len(p)
	n := ch.rx.TryReadInto(p)
	for i := n; i < len(p); i++ {
		p[i] = byte(idlePatternStart + i - n)
	}
	d.mu.Unlock()

	d.lineTime(len(p))
	return nil
}

// push writes p into r, dropping the oldest buffered bytes to make room.
func push(r *shmring.Ring, p []byte) {
	if len(p) > r.Cap() {
		p = p[len(p)-r.Cap():]
	}
	if over := len(p) - r.Space(); over > 0 {
		var scratch [64]byte
		for over > 0 {
			over -= r.TryReadInto(scratch[:min(over, len(scratch))])
		}
	}
	r.TryWriteFrom(p)
}

func (d *Driver) lineTime(n int) {
	if d.cfg.ByteDelay > 0 {
		time.Sleep(time.Duration(n) * d.cfg.ByteDelay)
	}
}

// Inject queues p on the channel's RX ring as if it arrived on the wire.
func (d *Driver) Inject(id periph.ID, p []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) < len(d.chs) {
		push(d.chs[id].rx, p)
	}
}

// Sent drains and returns the bytes transmitted on a channel so far.
func (d *Driver) Sent(id periph.ID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.chs) {
		return nil
	}
	tx := d.chs[id].tx
	out := make([]byte, tx.Available())
	tx.TryReadInto(out)
	return out
}

// Stats returns the call counters for a channel.
func (d *Driver) Stats(id periph.ID) Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.chs) {
		return Stats{}
	}
	return d.chs[id].stats
}

// Up reports whether a channel is initialised, and with which configuration.
func (d *Driver) Up(id periph.ID) (types.SerialConfig, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(id) >= len(d.chs) {
		return types.SerialConfig{}, false
	}
	return d.chs[id].cfg, d.chs[id].up
}
