package tracking

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Resinat/Paygate/internal/model"
)

// TrackedEvent is a processed event as delivered to sinks.
type TrackedEvent struct {
	ID        string
	Name      string
	Params    TrackingParameters
	CreatedAt time.Time
}

// Sink receives processed events. Sinks may fail; the coordinator logs and
// continues.
type Sink interface {
	Track(ctx context.Context, event TrackedEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event TrackedEvent) error

func (f SinkFunc) Track(ctx context.Context, event TrackedEvent) error { return f(ctx, event) }

// SessionRecorder records paywall response load transitions keyed by paywall id.
type SessionRecorder interface {
	RecordResponseLoad(ctx context.Context, paywallID string, state model.LoadState) error
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Sinks    []Sink
	Recorder SessionRecorder
	Delegate Delegate
	// SinkTimeout bounds each sink call. Zero means no extra bound.
	SinkTimeout time.Duration
	// Now is injectable for tests.
	Now func() time.Time
}

// Coordinator sequences tracked events. Each call returns only after every
// sink and the delegate have been invoked, so callers observe a fixed order
// between successive calls. Failures never propagate to the caller.
// A nil *Coordinator is valid and tracks nothing.
type Coordinator struct {
	sinks       []Sink
	recorder    SessionRecorder
	delegate    Delegate
	sinkTimeout time.Duration
	now         func() time.Time
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		sinks:       cfg.Sinks,
		recorder:    cfg.Recorder,
		delegate:    cfg.Delegate,
		sinkTimeout: cfg.SinkTimeout,
		now:         now,
	}
}

// Track processes t into tracking parameters and forwards it to every sink
// and to the host delegate.
func (c *Coordinator) Track(ctx context.Context, t Trackable) TrackedEvent {
	event := TrackedEvent{
		ID:        uuid.NewString(),
		Name:      t.Name(),
		Params:    ProcessParameters(t),
		CreatedAt: time.Now(),
	}
	if c == nil {
		return event
	}
	event.CreatedAt = c.now()

	for _, sink := range c.sinks {
		if err := c.callSink(ctx, sink, event); err != nil {
			log.Printf("[tracking] sink failed for event %q: %v", event.Name, err)
			c.delegate.handleLog("WARN", "analytics", "sink failed", map[string]any{"event": event.Name}, err)
		}
	}
	c.delegate.didTrackEvent(EventInfo{Name: event.Name, Params: event.Params.DelegateParams})
	return event
}

func (c *Coordinator) callSink(ctx context.Context, sink Sink, event TrackedEvent) error {
	if c.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.sinkTimeout)
		defer cancel()
	}
	return sink.Track(ctx, event)
}

// RecordResponseLoad forwards a load transition to the session recorder.
func (c *Coordinator) RecordResponseLoad(ctx context.Context, paywallID string, state model.LoadState) {
	if c == nil || c.recorder == nil {
		return
	}
	if err := c.recorder.RecordResponseLoad(ctx, paywallID, state); err != nil {
		log.Printf("[tracking] session recorder failed for paywall %q state=%s: %v", paywallID, state, err)
		c.delegate.handleLog("WARN", "analytics", "session recorder failed", map[string]any{"paywall_id": paywallID}, err)
	}
}
