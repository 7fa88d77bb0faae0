package metrics

import (
	"sync"
	"time"

	"github.com/Resinat/Paygate/internal/presentation"
)

// InFlightProvider reports the number of outstanding paywall fetches.
type InFlightProvider interface {
	InFlightFetches() int
}

// InFlightFunc adapts a function to InFlightProvider.
type InFlightFunc func() int

func (f InFlightFunc) InFlightFetches() int { return f() }

// ManagerConfig configures the Manager.
type ManagerConfig struct {
	LatencyBinMs      int
	LatencyOverflowMs int
	RealtimeCapacity  int
	SampleInterval    time.Duration
	InFlight          InFlightProvider
	Now               func() time.Time
}

// Manager owns the Collector and a RealtimeRing. A background ticker turns
// cumulative counters into per-second rates.
type Manager struct {
	collector *Collector
	ring      *RealtimeRing
	inFlight  InFlightProvider
	interval  time.Duration
	now       func() time.Time

	// Previous cumulative counts for rate calculation. Owned by sampleLoop.
	prevDecisions int64
	prevFailures  int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Snapshot is the metrics view served by the API.
type Snapshot struct {
	Global   CountersSnapshot            `json:"global"`
	ByLabel  map[string]CountersSnapshot `json:"by_label"`
	Realtime *RealtimeSample             `json:"realtime,omitempty"`
}

var failedLabel = presentation.KindPresentationError.String()

// NewManager creates a Manager.
func NewManager(cfg ManagerConfig) *Manager {
	interval := cfg.SampleInterval
	if interval <= 0 {
		interval = time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		collector: NewCollector(cfg.LatencyBinMs, cfg.LatencyOverflowMs),
		ring:      NewRealtimeRing(cfg.RealtimeCapacity),
		inFlight:  cfg.InFlight,
		interval:  interval,
		now:       now,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the realtime sampling loop.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.sampleLoop()
}

// Stop stops the sampling loop and waits for it to exit.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// ObserveOutcome implements presentation.Observer.
func (m *Manager) ObserveOutcome(label string, elapsed time.Duration) {
	m.collector.RecordOutcome(label, label == failedLabel, elapsed)
}

func (m *Manager) sampleLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sample()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sample() {
	snap := m.collector.Snapshot()
	secs := m.interval.Seconds()
	s := RealtimeSample{
		Timestamp:       m.now(),
		DecisionsPerSec: float64(snap.Decisions-m.prevDecisions) / secs,
		FailuresPerSec:  float64(snap.Failures-m.prevFailures) / secs,
	}
	if m.inFlight != nil {
		s.InFlight = m.inFlight.InFlightFetches()
	}
	m.prevDecisions = snap.Decisions
	m.prevFailures = snap.Failures
	m.ring.Push(s)
}

// Collector returns the underlying collector for snapshot access.
func (m *Manager) Collector() *Collector { return m.collector }

// Ring returns the realtime ring buffer.
func (m *Manager) Ring() *RealtimeRing { return m.ring }

// Snapshot returns the combined metrics view.
func (m *Manager) Snapshot() Snapshot {
	out := Snapshot{
		Global:  m.collector.Snapshot(),
		ByLabel: m.collector.LabelSnapshots(),
	}
	if latest, ok := m.ring.Latest(); ok {
		out.Realtime = &latest
	}
	return out
}
