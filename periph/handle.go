package periph

import (
	"context"
	"fmt"
	"sync/atomic"

	"periphcode-go/errcode"
)

// Handle is one shared reference to a live instance. Handles are not copied
// by value; use Clone for another reference and Release when done. Methods
// are safe for concurrent use, but a handle must not be used concurrently
// with its own Release.
type Handle[C comparable] struct {
	reg *Registry[C]
	s   *slot[C]
	gen uint32

	id  ID
	cfg C

	released atomic.Bool
}

func (r *Registry[C]) newHandle(s *slot[C], gen uint32) *Handle[C] {
	r.m.handlesLive.Add(1)
	return &Handle[C]{reg: r, s: s, gen: gen, id: s.inst.id, cfg: s.inst.cfg}
}

// ID returns the peripheral identifier.
func (h *Handle[C]) ID() ID { return h.id }

// Config returns the configuration the instance was constructed with.
func (h *Handle[C]) Config() C { return h.cfg }

// Same reports whether h and o refer to the same instance.
func (h *Handle[C]) Same(o *Handle[C]) bool {
	return h != nil && o != nil && h.s == o.s && h.gen == o.gen
}

// Ready reports whether the hardware was brought up successfully and has
// not been taken down since.
func (h *Handle[C]) Ready() bool {
	return !h.released.Load() && h.s.ready.Load()
}

// Refs returns the instance's current reference count, for diagnostics.
func (h *Handle[C]) Refs() int {
	if h.released.Load() {
		return 0
	}
	return int(h.s.refs.Load())
}

// Released reports whether Release has been called on h.
func (h *Handle[C]) Released() bool { return h.released.Load() }

// Clone returns a new handle to the same instance.
func (h *Handle[C]) Clone() (*Handle[C], error) {
	if h.released.Load() || !h.s.tryRef() {
		return nil, &errcode.E{C: errcode.Released, Op: "clone"}
	}
	return h.reg.newHandle(h.s, h.gen), nil
}

// Release drops h's reference. The last release tears the instance down
// and frees its slot. Releasing a handle twice is a no-op.
func (h *Handle[C]) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.reg.m.handlesLive.Add(-1)
	h.reg.release(h.s, h.gen)
}

// pin holds an extra reference for the duration of an operation so the
// instance cannot be destroyed under it, even if h is released meanwhile.
func (h *Handle[C]) pin(op string) (func(), error) {
	if h.released.Load() || !h.s.tryRef() {
		return nil, &errcode.E{C: errcode.Released, Op: op}
	}
	return func() { h.reg.release(h.s, h.gen) }, nil
}

// Send transmits all of p.
func (h *Handle[C]) Send(p []byte) error { return h.SendContext(context.Background(), p) }

// Receive fills all of p.
func (h *Handle[C]) Receive(p []byte) error { return h.ReceiveContext(context.Background(), p) }

// SendContext is Send, giving up if ctx ends while waiting for the instance
// lock. A driver call already in progress is not interrupted.
func (h *Handle[C]) SendContext(ctx context.Context, p []byte) error {
	return h.transfer(ctx, opSend, p)
}

// ReceiveContext is Receive with the waiting rules of SendContext.
func (h *Handle[C]) ReceiveContext(ctx context.Context, p []byte) error {
	return h.transfer(ctx, opReceive, p)
}

func (h *Handle[C]) transfer(ctx context.Context, o op, p []byte) error {
	if err := h.reg.checkLen(o, p); err != nil {
		return err
	}
	return h.Transact(ctx, func(port Port) error {
		if o == opSend {
			return port.Send(p)
		}
		return port.Receive(p)
	})
}

// Port performs transfers while the instance lock is held. It is valid only
// inside the Transact callback that received it.
type Port interface {
	ID() ID
	Send(p []byte) error
	Receive(p []byte) error
}

type port[C comparable] struct {
	reg    *Registry[C]
	id     ID
	closed bool
}

func (p *port[C]) ID() ID { return p.id }

func (p *port[C]) Send(b []byte) error    { return p.do(opSend, b) }
func (p *port[C]) Receive(b []byte) error { return p.do(opReceive, b) }

func (p *port[C]) do(o op, b []byte) error {
	if p.closed {
		return &errcode.E{C: errcode.Released, Op: o.String(), Msg: "port used outside Transact"}
	}
	if err := p.reg.checkLen(o, b); err != nil {
		return err
	}
	return p.reg.call(o, p.id, b)
}

// Transact runs fn with the instance lock held, so the transfers fn makes
// through its Port are not interleaved with those of any other handle on
// the same instance. fn must not use other handles to the same instance.
func (h *Handle[C]) Transact(ctx context.Context, fn func(Port) error) error {
	unpin, err := h.pin("transact")
	if err != nil {
		return err
	}
	defer unpin()

	if err := h.s.io.Acquire(ctx, 1); err != nil {
		return &errcode.E{C: errcode.Timeout, Op: "lock", Msg: "id " + h.id.String(), Err: err}
	}
	defer h.s.io.Release(1)

	p := &port[C]{reg: h.reg, id: h.id}
	defer func() { p.closed = true }()
	return fn(p)
}

// Init runs the driver's bring-up again with the instance configuration.
func (h *Handle[C]) Init() error {
	return h.lifecycle(opInit)
}

// Deinit takes the hardware down without destroying the instance. The
// instance stays in its slot, not ready, until Init or the last Release.
func (h *Handle[C]) Deinit() error {
	return h.lifecycle(opDeinit)
}

func (h *Handle[C]) lifecycle(o op) error {
	unpin, err := h.pin(o.String())
	if err != nil {
		return err
	}
	defer unpin()

	h.s.lockIO()
	defer h.s.io.Release(1)

	if o == opInit {
		err = h.reg.drv.Init(h.id, h.cfg)
		h.s.ready.Store(err == nil)
		if err != nil {
			h.reg.m.initFailures.Add(1)
		}
	} else {
		err = h.reg.drv.Deinit(h.id)
		if err == nil {
			h.s.ready.Store(false)
		}
	}
	if err != nil {
		h.reg.m.hwFailures.Add(1)
		return &errcode.E{C: errcode.MapDriverErr(err), Op: o.String(), Msg: "id " + h.id.String(), Err: err}
	}
	return nil
}

// checkLen enforces the transfer size bounds before the driver is reached.
func (r *Registry[C]) checkLen(o op, p []byte) error {
	switch {
	case len(p) == 0:
		return &errcode.E{C: errcode.EmptyTransfer, Op: o.String()}
	case len(p) > MaxTransfer:
		r.m.oversized.Add(1)
		return &errcode.E{C: errcode.Oversized, Op: o.String(), Msg: fmt.Sprintf("%d bytes > %d", len(p), MaxTransfer)}
	}
	return nil
}

// call forwards one transfer to the driver. Caller holds the instance lock.
func (r *Registry[C]) call(o op, id ID, p []byte) error {
	var err error
	if o == opSend {
		err = r.drv.Send(id, p)
	} else {
		err = r.drv.Receive(id, p)
	}
	if err != nil {
		r.m.hwFailures.Add(1)
		r.log.Debug("transfer failed", "op", o, "id", id, "len", len(p), "err", err)
		return &errcode.E{C: errcode.MapDriverErr(err), Op: o.String(), Msg: "id " + id.String(), Err: err}
	}
	if o == opSend {
		r.m.bytesSent.Add(int64(len(p)))
	} else {
		r.m.bytesReceived.Add(int64(len(p)))
	}
	return nil
}

// IsReleased reports whether err came from using a released handle. A
// released code wrapped inside a driver failure does not count.
func IsReleased(err error) bool { return errcode.Of(err) == errcode.Released }
