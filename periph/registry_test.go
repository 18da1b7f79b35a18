package periph

import (
	"bytes"
	"errors"
	"expvar"
	"log/slog"
	"strings"
	"testing"

	"github.com/creachadair/mds/mtest"
	"github.com/google/go-cmp/cmp"

	"periphcode-go/bus"
	"periphcode-go/errcode"
)

func mustGet[C comparable](t *testing.T, r *Registry[C], id ID, cfg C) *Handle[C] {
	t.Helper()
	h, err := r.GetHandle(id, cfg)
	if err != nil {
		t.Fatalf("GetHandle(%v, %v): %v", id, cfg, err)
	}
	return h
}

func counter(m *expvar.Map, name string) int64 {
	return m.Get(name).(*expvar.Int).Value()
}

func TestSameConfigAliases(t *testing.T) {
	drv := newRecDriver()
	reg := New[testConfig](2, drv)

	h1 := mustGet(t, reg, 0, cfg9600)
	h2 := mustGet(t, reg, 0, testConfig{Baud: 9600})
	defer h1.Release()
	defer h2.Release()

	if !h1.Same(h2) {
		t.Fatal("handles with equal config do not alias")
	}
	if h1.Config() != cfg9600 || h2.Config() != cfg9600 {
		t.Errorf("configs = %v, %v", h1.Config(), h2.Config())
	}
	if h1.ID() != 0 || h2.ID() != 0 {
		t.Errorf("ids = %v, %v", h1.ID(), h2.ID())
	}
	if got := drv.count(drv.inits, 0); got != 1 {
		t.Errorf("init called %d times, want 1", got)
	}
	if got := h1.Refs(); got != 2 {
		t.Errorf("refs = %d, want 2", got)
	}
}

func TestConfigConflictKeepsLiveInstance(t *testing.T) {
	drv := newRecDriver()
	reg := New[testConfig](2, drv)

	h := mustGet(t, reg, 0, cfg9600)
	defer h.Release()

	got, err := reg.GetHandle(0, cfg57600)
	if got != nil {
		t.Fatal("conflicting request returned a handle")
	}
	if !errors.Is(err, errcode.ConfigConflict) {
		t.Fatalf("err = %v, want config_conflict", err)
	}
	if !reg.IsConstructed(0) {
		t.Fatal("conflict tore down the live instance")
	}
	if err := h.Send([]byte{1}); err != nil {
		t.Errorf("first handle unusable after conflict: %v", err)
	}
	if drv.count(drv.deinits, 0) != 0 {
		t.Error("conflict triggered deinit")
	}
	if n := counter(reg.Metrics(), "conflicts"); n != 1 {
		t.Errorf("conflicts = %d, want 1", n)
	}
}

func TestInvalidID(t *testing.T) {
	drv := newRecDriver()
	reg := New[testConfig](2, drv)

	for _, id := range []ID{2, 3, 63, Invalid} {
		for _, cfg := range []testConfig{cfg9600, cfg57600, {}} {
			h, err := reg.GetHandle(id, cfg)
			if h != nil || errcode.Of(err) != errcode.InvalidID {
				t.Errorf("GetHandle(%v, %v) = %v, %v; want nil, invalid_id", id, cfg, h, err)
			}
		}
	}
	if reg.IsConstructed(Invalid) {
		t.Error("IsConstructed(Invalid) = true")
	}
	if log := drv.log(); len(log) != 0 {
		t.Errorf("driver called for invalid ids: %v", log)
	}
}

func TestReleaseFreesSlotForNewConfig(t *testing.T) {
	drv := newRecDriver()
	reg := New[testConfig](2, drv)

	h1 := mustGet(t, reg, 1, cfg9600)
	h2, err := h1.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	h1.Release()
	if !reg.IsConstructed(1) {
		t.Fatal("instance destroyed while a clone is outstanding")
	}
	h2.Release()
	if reg.IsConstructed(1) {
		t.Fatal("instance still live after last release")
	}

	h3 := mustGet(t, reg, 1, cfg57600)
	defer h3.Release()
	if h3.Config() != cfg57600 {
		t.Errorf("config = %v, want %v", h3.Config(), cfg57600)
	}
	if h3.Same(h1) {
		t.Error("rebuilt instance reports the identity of the destroyed one")
	}

	want := []string{"init 1", "deinit 1", "init 1"}
	if diff := cmp.Diff(want, drv.log()); diff != "" {
		t.Errorf("driver calls (-want +got):\n%s", diff)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	reg := New[testConfig](1, newRecDriver())
	h1 := mustGet(t, reg, 0, cfg9600)
	h2 := mustGet(t, reg, 0, cfg9600)

	h1.Release()
	h1.Release()
	if !reg.IsConstructed(0) {
		t.Fatal("double release dropped another handle's reference")
	}
	h2.Release()
	if reg.IsConstructed(0) {
		t.Fatal("instance live after all handles released")
	}
	var nilHandle *Handle[testConfig]
	nilHandle.Release() // no-op
}

func TestTwoPortScenario(t *testing.T) {
	const P0, P1 ID = 0, 1
	reg := New[testConfig](2, newRecDriver())

	a := mustGet(t, reg, P0, cfg9600)
	if _, err := reg.GetHandle(P0, cfg57600); errcode.Of(err) != errcode.ConfigConflict {
		t.Fatalf("P0@57600 err = %v, want conflict", err)
	}
	b := mustGet(t, reg, P1, cfg9600)
	defer b.Release()

	if diff := cmp.Diff([]bool{true, true}, reg.IsConstructedAll()); diff != "" {
		t.Errorf("IsConstructedAll (-want +got):\n%s", diff)
	}

	a.Release()
	if diff := cmp.Diff([]bool{false, true}, reg.IsConstructedAll()); diff != "" {
		t.Errorf("IsConstructedAll (-want +got):\n%s", diff)
	}

	c := mustGet(t, reg, P0, cfg57600)
	defer c.Release()
	if c.Config().Baud != 57600 {
		t.Errorf("baud = %d", c.Config().Baud)
	}
}

func TestInitFailureBestEffort(t *testing.T) {
	drv := newRecDriver()
	drv.initErr = errors.New("no clock")
	reg := New[testConfig](1, drv)

	h := mustGet(t, reg, 0, cfg9600)
	if h.Ready() {
		t.Error("Ready() = true after failed init")
	}
	if n := counter(reg.Metrics(), "init_failures"); n != 1 {
		t.Errorf("init_failures = %d", n)
	}

	drv.initErr = nil
	if err := h.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !h.Ready() {
		t.Error("Ready() = false after successful re-init")
	}
	h.Release()
	if drv.count(drv.deinits, 0) != 1 {
		t.Error("deinit skipped for a ready instance")
	}
}

func TestInitFailureSkipsDeinit(t *testing.T) {
	drv := newRecDriver()
	drv.initErr = errors.New("no clock")
	reg := New[testConfig](1, drv)

	mustGet(t, reg, 0, cfg9600).Release()
	if drv.count(drv.deinits, 0) != 0 {
		t.Error("deinit called although init never succeeded")
	}
}

func TestStrictInit(t *testing.T) {
	drv := newRecDriver()
	cause := errors.New("no clock")
	drv.initErr = cause
	reg := New[testConfig](1, drv, WithStrictInit(true))

	h, err := reg.GetHandle(0, cfg9600)
	if h != nil {
		t.Fatal("strict registry returned a handle after failed init")
	}
	if errcode.Of(err) != errcode.HardwareFailure || !errors.Is(err, cause) {
		t.Fatalf("err = %v, want hardware_failure wrapping cause", err)
	}
	if reg.IsConstructed(0) {
		t.Fatal("slot occupied after aborted construction")
	}

	drv.initErr = nil
	h = mustGet(t, reg, 0, cfg57600)
	defer h.Release()
	if !h.Ready() {
		t.Error("not ready after successful init")
	}
}

func TestLoggerTaggedOnce(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	drv := newRecDriver()
	drv.initErr = errors.New("no clock")
	reg := New[testConfig](1, drv, WithName("console"), WithLogger(log))

	h := mustGet(t, reg, 0, cfg9600)
	defer h.Release()
	drv.xferErr = errors.New("framing")
	_ = h.Send([]byte{1})

	out := buf.String()
	if !strings.Contains(out, "init failed") {
		t.Errorf("log missing init failure:\n%s", out)
	}
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if !strings.Contains(line, "component=periph registry=console") {
			t.Errorf("untagged log line: %s", line)
		}
	}
}

func TestSnapshot(t *testing.T) {
	reg := New[testConfig](3, newRecDriver())
	h := mustGet(t, reg, 2, cfg57600)
	defer h.Release()
	h2, _ := h.Clone()
	defer h2.Release()

	want := []SlotInfo[testConfig]{
		{ID: 0},
		{ID: 1},
		{ID: 2, Live: true, Ready: true, Refs: 2, Config: cfg57600},
	}
	if diff := cmp.Diff(want, reg.Snapshot()); diff != "" {
		t.Errorf("Snapshot (-want +got):\n%s", diff)
	}
}

func TestStateEvents(t *testing.T) {
	b := bus.NewBus(8)
	conn := b.NewConnection("test")
	sub := conn.Subscribe(StateTopic("uart", 1))
	defer conn.Disconnect()

	reg := New[testConfig](2, newRecDriver(), WithName("uart"), WithBus(conn))
	h := mustGet(t, reg, 1, cfg9600)
	h.Release()

	var got []SlotEvent
	for len(got) < 2 {
		m := <-sub.Channel()
		got = append(got, m.Payload.(SlotEvent))
	}
	want := []SlotEvent{
		{Registry: "uart", ID: 1, State: "constructed", Ready: true, Config: cfg9600},
		{Registry: "uart", ID: 1, State: "destroyed"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
	if m, ok := b.Retained(StateTopic("uart", 1)); !ok || m.Payload.(SlotEvent).State != "destroyed" {
		t.Errorf("retained state = %v, %v", m, ok)
	}
}

func TestMetricsCounts(t *testing.T) {
	reg := New[testConfig](2, newRecDriver())
	h := mustGet(t, reg, 0, cfg9600)
	h2 := mustGet(t, reg, 0, cfg9600)
	_, _ = reg.GetHandle(Invalid, cfg9600)
	if err := h.Send([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	h.Release()
	h2.Release()

	m := reg.Metrics()
	for name, want := range map[string]int64{
		"constructions": 1,
		"destructions":  1,
		"reuses":        1,
		"invalid_ids":   1,
		"bytes_sent":    3,
		"handles_live":  0,
	} {
		if got := counter(m, name); got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}
}

func TestNewPanics(t *testing.T) {
	mtest.MustPanic(t, func() { New[testConfig](0, newRecDriver()) })
	mtest.MustPanic(t, func() { New[testConfig](MaxSlots+1, newRecDriver()) })
	mtest.MustPanic(t, func() { New[testConfig](1, nil) })
}
