package metrics

import (
	"testing"
	"time"

	"github.com/Resinat/Paygate/internal/presentation"
)

var _ presentation.Observer = (*Manager)(nil)

func TestManager_ObserveOutcomeCountsFailures(t *testing.T) {
	m := NewManager(ManagerConfig{})
	m.ObserveOutcome(presentation.LabelReady, time.Millisecond)
	m.ObserveOutcome(presentation.Failed(nil).Label(), time.Millisecond)

	snap := m.Snapshot()
	if snap.Global.Decisions != 2 || snap.Global.Failures != 1 {
		t.Fatalf("global: got %+v", snap.Global)
	}
	if snap.ByLabel[presentation.LabelReady].Decisions != 1 {
		t.Fatalf("ready label: got %+v", snap.ByLabel)
	}
	if snap.Realtime != nil {
		t.Fatal("no sample expected before the loop runs")
	}
}

func TestManager_SampleComputesRates(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewManager(ManagerConfig{
		SampleInterval: 2 * time.Second,
		InFlight:       InFlightFunc(func() int { return 3 }),
		Now:            func() time.Time { return now },
	})
	for i := 0; i < 4; i++ {
		m.ObserveOutcome("presented", time.Millisecond)
	}
	m.ObserveOutcome("presentation_error", time.Millisecond)
	m.ObserveOutcome("presentation_error", time.Millisecond)

	m.sample()
	first, _ := m.Ring().Latest()
	if first.DecisionsPerSec != 3 || first.FailuresPerSec != 1 || first.InFlight != 3 {
		t.Fatalf("first sample: got %+v", first)
	}

	m.sample()
	second, _ := m.Ring().Latest()
	if second.DecisionsPerSec != 0 || second.FailuresPerSec != 0 {
		t.Fatalf("second sample: got %+v", second)
	}
	if snap := m.Snapshot(); snap.Realtime == nil || !snap.Realtime.Timestamp.Equal(now) {
		t.Fatalf("snapshot realtime: got %+v", snap.Realtime)
	}
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager(ManagerConfig{SampleInterval: 5 * time.Millisecond})
	m.Start()
	deadline := time.Now().Add(5 * time.Second)
	for m.Ring().Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sampling loop produced no samples")
		}
		time.Sleep(time.Millisecond)
	}
	m.Stop()
	m.Stop()
}
