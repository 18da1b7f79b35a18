package periph

import "expvar"

// regMetrics record registry activity counters.
type regMetrics struct {
	constructions expvar.Int
	destructions  expvar.Int
	reuses        expvar.Int // handles served from a live instance
	conflicts     expvar.Int // requests refused for a configuration mismatch
	invalidIDs    expvar.Int
	initFailures  expvar.Int
	oversized     expvar.Int // transfers refused before reaching the driver
	hwFailures    expvar.Int
	bytesSent     expvar.Int
	bytesReceived expvar.Int
	handlesLive   expvar.Int

	emap *expvar.Map
}

func newRegMetrics() *regMetrics {
	m := &regMetrics{emap: new(expvar.Map)}
	m.emap.Set("constructions", &m.constructions)
	m.emap.Set("destructions", &m.destructions)
	m.emap.Set("reuses", &m.reuses)
	m.emap.Set("conflicts", &m.conflicts)
	m.emap.Set("invalid_ids", &m.invalidIDs)
	m.emap.Set("init_failures", &m.initFailures)
	m.emap.Set("oversized", &m.oversized)
	m.emap.Set("hw_failures", &m.hwFailures)
	m.emap.Set("bytes_sent", &m.bytesSent)
	m.emap.Set("bytes_received", &m.bytesReceived)
	m.emap.Set("handles_live", &m.handlesLive)
	return m
}

// Metrics returns the registry's counters. The map is live; callers may
// publish it with expvar.Publish under a name of their choosing.
func (r *Registry[C]) Metrics() *expvar.Map { return r.m.emap }
