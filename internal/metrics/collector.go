package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector holds hot-path atomic counters for presentation outcomes, both
// globally and per outcome label.
type Collector struct {
	global *counters
	labels sync.Map // string -> *counters
}

// counters holds atomic counters for one measurement scope (global or per-label).
type counters struct {
	decisions atomic.Int64
	failures  atomic.Int64

	// Latency histogram: fixed-bucket durations.
	// Each regular bucket[i] = count of decisions with latency in
	// [i*binWidth, (i+1)*binWidth). The last bucket is overflow (> overflowMs).
	latencyBuckets []atomic.Int64
	latencyBinMs   int
	latencyOverMs  int
}

// CountersSnapshot is a point-in-time snapshot of counters for reading.
type CountersSnapshot struct {
	Decisions      int64   `json:"decisions"`
	Failures       int64   `json:"failures"`
	LatencyBuckets []int64 `json:"latency_buckets"`
	LatencyBinMs   int     `json:"latency_bin_ms"`
	LatencyOverMs  int     `json:"latency_overflow_ms"`
}

// NewCollector creates a new Collector with the given latency histogram parameters.
func NewCollector(latencyBinMs, latencyOverflowMs int) *Collector {
	if latencyBinMs <= 0 {
		latencyBinMs = 25
	}
	if latencyOverflowMs <= 0 {
		latencyOverflowMs = 2000
	}
	return &Collector{
		global: newCounters(latencyBinMs, latencyOverflowMs),
	}
}

func newCounters(binMs, overMs int) *counters {
	regularBuckets := (overMs + binMs - 1) / binMs // ceil(over/bin)
	if regularBuckets <= 0 {
		regularBuckets = 1
	}
	return &counters{
		latencyBuckets: make([]atomic.Int64, regularBuckets+1), // +1 overflow bucket
		latencyBinMs:   binMs,
		latencyOverMs:  overMs,
	}
}

func (c *Collector) getOrCreateLabel(label string) *counters {
	if label == "" {
		return nil
	}
	if v, ok := c.labels.Load(label); ok {
		return v.(*counters)
	}
	nc := newCounters(c.global.latencyBinMs, c.global.latencyOverMs)
	actual, _ := c.labels.LoadOrStore(label, nc)
	return actual.(*counters)
}

// RecordOutcome records one finished decision under label. failed marks
// outcomes that ended in a presentation error.
func (c *Collector) RecordOutcome(label string, failed bool, elapsed time.Duration) {
	ms := elapsed.Milliseconds()
	c.record(c.global, failed, ms)
	if lc := c.getOrCreateLabel(label); lc != nil {
		c.record(lc, failed, ms)
	}
}

func (c *Collector) record(ct *counters, failed bool, ms int64) {
	ct.decisions.Add(1)
	if failed {
		ct.failures.Add(1)
	}
	recordLatency(ct, ms)
}

func recordLatency(ct *counters, ms int64) {
	overflowIdx := len(ct.latencyBuckets) - 1
	if overflowIdx <= 0 {
		return
	}

	if ms > int64(ct.latencyOverMs) {
		ct.latencyBuckets[overflowIdx].Add(1)
		return
	}

	idx := 0
	if ms > 0 {
		idx = int(ms / int64(ct.latencyBinMs))
	}
	// overflow_ms itself stays in the last regular bucket.
	if idx >= overflowIdx {
		idx = overflowIdx - 1
	}
	ct.latencyBuckets[idx].Add(1)
}

// Snapshot returns a point-in-time snapshot of the global counters.
func (c *Collector) Snapshot() CountersSnapshot {
	return snapshot(c.global)
}

// LabelSnapshot returns a snapshot for one outcome label.
func (c *Collector) LabelSnapshot(label string) (CountersSnapshot, bool) {
	v, ok := c.labels.Load(label)
	if !ok {
		return CountersSnapshot{}, false
	}
	return snapshot(v.(*counters)), true
}

// LabelSnapshots returns snapshots for all observed labels.
func (c *Collector) LabelSnapshots() map[string]CountersSnapshot {
	result := make(map[string]CountersSnapshot)
	c.labels.Range(func(key, value any) bool {
		result[key.(string)] = snapshot(value.(*counters))
		return true
	})
	return result
}

// Labels returns the observed labels in sorted order.
func (c *Collector) Labels() []string {
	var out []string
	c.labels.Range(func(key, _ any) bool {
		out = append(out, key.(string))
		return true
	})
	sort.Strings(out)
	return out
}

func snapshot(ct *counters) CountersSnapshot {
	s := CountersSnapshot{
		Decisions:      ct.decisions.Load(),
		Failures:       ct.failures.Load(),
		LatencyBuckets: make([]int64, len(ct.latencyBuckets)),
		LatencyBinMs:   ct.latencyBinMs,
		LatencyOverMs:  ct.latencyOverMs,
	}
	for i := range ct.latencyBuckets {
		s.LatencyBuckets[i] = ct.latencyBuckets[i].Load()
	}
	return s
}
