package periph

import (
	"fmt"
	"log/slog"

	"periphcode-go/bus"
	"periphcode-go/errcode"
)

// Registry hands out shared handles to a fixed set of peripheral instances.
// C is the configuration type; two configurations are compatible only when
// they compare equal with ==.
type Registry[C comparable] struct {
	name   string
	drv    Driver[C]
	strict bool
	log    *slog.Logger
	conn   *bus.Connection

	a arena[C]
	m *regMetrics
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	name   string
	strict bool
	log    *slog.Logger
	conn   *bus.Connection
}

// WithName labels the registry in logs and event topics. Default "periph".
func WithName(name string) Option { return func(o *options) { o.name = name } }

// WithStrictInit makes a failed Driver.Init abort construction. By default a
// failed Init is logged and the instance is still constructed, not ready.
func WithStrictInit(strict bool) Option { return func(o *options) { o.strict = strict } }

// WithLogger sets the logger. By default the package logger is used.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.log = l } }

// WithBus publishes retained slot state events on conn.
func WithBus(conn *bus.Connection) Option { return func(o *options) { o.conn = conn } }

// New creates a registry with n slots, identified 0..n-1, backed by drv.
// It panics if n is outside [1, MaxSlots] or drv is nil.
func New[C comparable](n int, drv Driver[C], opts ...Option) *Registry[C] {
	if n < 1 || n > MaxSlots {
		panic(fmt.Sprintf("periph: slot count %d outside [1, %d]", n, MaxSlots))
	}
	if drv == nil {
		panic("periph: nil driver")
	}
	o := options{name: "periph"}
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry[C]{
		name:   o.name,
		drv:    drv,
		strict: o.strict,
		log:    taggedLogger(o.log, o.name),
		conn:   o.conn,
		a:      newArena[C](n),
		m:      newRegMetrics(),
	}
}

// Name returns the registry label.
func (r *Registry[C]) Name() string { return r.name }

// Len returns the number of slots.
func (r *Registry[C]) Len() int { return r.a.len() }

// GetHandle returns a handle to the instance for id, constructing it with
// cfg if the slot is empty. If the slot holds an instance with a different
// configuration it returns errcode.ConfigConflict and leaves that instance
// untouched. An out-of-range id returns errcode.InvalidID.
func (r *Registry[C]) GetHandle(id ID, cfg C) (*Handle[C], error) {
	s, ok := r.a.at(id)
	if !ok {
		r.m.invalidIDs.Add(1)
		return nil, &errcode.E{C: errcode.InvalidID, Op: "get_handle", Msg: fmt.Sprintf("id %s outside [0, %d)", id, r.a.len())}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == slotOccupied {
		if s.inst.cfg != cfg {
			r.m.conflicts.Add(1)
			r.log.Warn("configuration conflict", "id", id, "live", s.inst.cfg, "requested", cfg)
			return nil, &errcode.E{C: errcode.ConfigConflict, Op: "get_handle", Msg: fmt.Sprintf("id %s live with %v, requested %v", id, s.inst.cfg, cfg)}
		}
		s.refs.Add(1)
		r.m.reuses.Add(1)
		return r.newHandle(s, s.gen), nil
	}

	if err := r.bringUp(s, id, cfg); err != nil {
		return nil, err
	}
	gen := s.occupy(id, cfg)
	r.m.constructions.Add(1)
	r.log.Debug("constructed", "id", id, "config", cfg, "ready", s.ready.Load())
	r.publish(s)
	return r.newHandle(s, gen), nil
}

// bringUp runs Driver.Init for a construction. Caller holds s.mu.
func (r *Registry[C]) bringUp(s *slot[C], id ID, cfg C) error {
	s.lockIO()
	err := r.drv.Init(id, cfg)
	s.ready.Store(err == nil)
	s.io.Release(1)
	if err == nil {
		return nil
	}

	r.m.initFailures.Add(1)
	if r.strict {
		r.log.Warn("init failed, construction aborted", "id", id, "err", err)
		return &errcode.E{C: errcode.MapDriverErr(err), Op: "init", Msg: "id " + id.String(), Err: err}
	}
	r.log.Warn("init failed, instance not ready", "id", id, "err", err)
	return nil
}

// release drops one reference. The last reference destroys the instance of
// generation gen, unless the slot was revived or rebuilt in the meantime.
func (r *Registry[C]) release(s *slot[C], gen uint32) {
	if s.refs.Add(-1) > 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != slotOccupied || s.gen != gen || s.refs.Load() != 0 {
		return
	}

	id := s.inst.id
	s.lockIO()
	if s.ready.Load() {
		if err := r.drv.Deinit(id); err != nil {
			r.m.hwFailures.Add(1)
			r.log.Warn("deinit failed", "id", id, "err", err)
		}
	}
	s.vacate()
	s.io.Release(1)

	r.m.destructions.Add(1)
	r.log.Debug("destroyed", "id", id)
	r.publish(s)
}

// IsConstructed reports whether id currently has a live instance. The answer
// may be stale by the time the caller acts on it; GetHandle decides under
// the slot lock.
func (r *Registry[C]) IsConstructed(id ID) bool {
	s, ok := r.a.at(id)
	return ok && s.live.Load()
}

// IsConstructedAll returns IsConstructed for every slot, ordered by id.
func (r *Registry[C]) IsConstructedAll() []bool {
	out := make([]bool, r.a.len())
	for i := range r.a.slots {
		out[i] = r.a.slots[i].live.Load()
	}
	return out
}

// SlotInfo is a diagnostic view of one slot.
type SlotInfo[C comparable] struct {
	ID     ID
	Live   bool
	Ready  bool
	Refs   int
	Config C // zero when not live
}

// Snapshot returns a consistent view of each slot, ordered by id.
func (r *Registry[C]) Snapshot() []SlotInfo[C] {
	out := make([]SlotInfo[C], r.a.len())
	for i := range r.a.slots {
		s := &r.a.slots[i]
		s.mu.Lock()
		out[i] = SlotInfo[C]{ID: ID(i), Live: s.state == slotOccupied}
		if out[i].Live {
			out[i].Ready = s.ready.Load()
			out[i].Refs = int(s.refs.Load())
			out[i].Config = s.inst.cfg
		}
		s.mu.Unlock()
	}
	return out
}
