// Package paywall resolves paywall definitions from the static store, the
// response cache or a deduplicated network fetch.
package paywall

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/tracking"
)

const tracerName = "github.com/Resinat/Paygate/internal/paywall"

// Source tells where a resolved definition came from.
type Source string

const (
	SourceStatic  Source = "static"
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Client Client
	// Static is consulted before any network activity. Optional.
	Static StaticSource
	// Tracker receives load lifecycle events. Optional.
	Tracker *tracking.Coordinator
	// CacheSize and CacheTTL bound the response cache. Either <= 0
	// disables it.
	CacheSize    int
	CacheTTL     time.Duration
	CancelPolicy CancelPolicy
	Tracer       trace.Tracer
	Now          func() time.Time
}

// LoaderStats is a snapshot of loader counters.
type LoaderStats struct {
	StaticHits     int64 `json:"static_hits"`
	CacheHits      int64 `json:"cache_hits"`
	NetworkFetches int64 `json:"network_fetches"`
	SharedWaits    int64 `json:"shared_waits"`
	Failures       int64 `json:"failures"`
	InFlight       int   `json:"in_flight"`
}

// Loader is the response cache/loader. It is safe for concurrent use.
type Loader struct {
	client   Client
	static   StaticSource
	tracker  *tracking.Coordinator
	cache    *responseCache
	inflight *inflightTable
	tracer   trace.Tracer
	now      func() time.Time

	staticHits     atomic.Int64
	cacheHits      atomic.Int64
	networkFetches atomic.Int64
	sharedWaits    atomic.Int64
	failures       atomic.Int64
}

// NewLoader creates a Loader.
func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.Client == nil {
		panic("paywall: NewLoader requires non-nil Client")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Loader{
		client:   cfg.Client,
		static:   cfg.Static,
		tracker:  cfg.Tracker,
		cache:    newResponseCache(cfg.CacheSize, cfg.CacheTTL),
		inflight: newInflightTable(cfg.CancelPolicy),
		tracer:   tracer,
		now:      now,
	}
}

// Resolve returns the definition for paywallID, stamped with experiment and
// with the time spent resolving it.
//
// Tracking order on success is session start, load start, load complete,
// session end. On failure it is session start, load start, session fail,
// then load fail or load not-found. Failures are returned as *LoadError,
// except when ctx ends first, in which case ctx.Err() is wrapped.
func (l *Loader) Resolve(
	ctx context.Context,
	paywallID string,
	event *model.EventData,
	experiment *model.Experiment,
) (model.Paywall, error) {
	ctx, span := l.tracer.Start(ctx, "paywall.Resolve",
		trace.WithAttributes(attribute.String("paywall.id", paywallID)))
	defer span.End()

	trackCtx := context.WithoutCancel(ctx)
	l.tracker.RecordResponseLoad(trackCtx, paywallID, model.LoadStart)
	l.tracker.Track(trackCtx, tracking.PaywallLoad{
		State:     tracking.PaywallLoadStart,
		PaywallID: paywallID,
		EventData: event,
	})

	p, source, err := l.load(ctx, paywallID, event)
	if err != nil {
		l.failures.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		state := tracking.PaywallLoadFail
		if IsNotFound(err) {
			state = tracking.PaywallLoadNotFound
		}
		l.tracker.RecordResponseLoad(trackCtx, paywallID, model.LoadFail)
		l.tracker.Track(trackCtx, tracking.PaywallLoad{
			State:     state,
			PaywallID: paywallID,
			EventData: event,
		})
		log.Printf("[paywall] resolve %q failed: %v", paywallID, err)
		return model.Paywall{}, err
	}
	span.SetAttributes(attribute.String("paywall.source", string(source)))

	if experiment != nil {
		exp := *experiment
		p.Experiment = &exp
	}

	l.tracker.Track(trackCtx, tracking.PaywallLoad{
		State:     tracking.PaywallLoadComplete,
		PaywallID: paywallID,
		Paywall:   &p,
		EventData: event,
	})
	l.tracker.RecordResponseLoad(trackCtx, paywallID, model.LoadEnd)
	return p, nil
}

func (l *Loader) load(ctx context.Context, paywallID string, event *model.EventData) (model.Paywall, Source, error) {
	start := l.now()
	if l.static != nil {
		if p, ok := l.static.GetStaticPaywall(paywallID); ok {
			l.staticHits.Add(1)
			p.ResponseLoadingInfo = model.ResponseLoadingInfo{StartAt: start, EndAt: l.now()}
			return p, SourceStatic, nil
		}
	}

	key := FetchKey(paywallID, event)
	if p, ok := l.cache.get(key); ok {
		l.cacheHits.Add(1)
		p.ResponseLoadingInfo = model.ResponseLoadingInfo{StartAt: start, EndAt: l.now()}
		return p, SourceCache, nil
	}

	res, shared, err := l.inflight.do(ctx, paywallID, func(fetchCtx context.Context) fetchResult {
		return l.fetch(fetchCtx, paywallID, event, key)
	})
	if shared {
		l.sharedWaits.Add(1)
	}
	if err != nil {
		return model.Paywall{}, SourceNetwork, fmt.Errorf("paywall %q: wait for fetch: %w", paywallID, err)
	}
	if res.err != nil {
		return model.Paywall{}, SourceNetwork, res.err
	}
	return res.paywall, SourceNetwork, nil
}

// fetch runs once per flight. The timing it stamps is shared by every
// waiter of the flight.
func (l *Loader) fetch(ctx context.Context, paywallID string, event *model.EventData, key Key) fetchResult {
	l.networkFetches.Add(1)
	ctx, span := l.tracer.Start(ctx, "paywall.Fetch",
		trace.WithAttributes(attribute.String("paywall.id", paywallID)))
	defer span.End()

	start := l.now()
	p, err := l.client.GetPaywall(ctx, paywallID, event)
	end := l.now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fetchResult{err: classifyFetchError(paywallID, err)}
	}
	p.Experiment = nil
	p.ResponseLoadingInfo = model.ResponseLoadingInfo{StartAt: start, EndAt: end}
	l.cache.set(key, p)
	return fetchResult{paywall: p}
}

// Stats returns a snapshot of the loader counters.
func (l *Loader) Stats() LoaderStats {
	return LoaderStats{
		StaticHits:     l.staticHits.Load(),
		CacheHits:      l.cacheHits.Load(),
		NetworkFetches: l.networkFetches.Load(),
		SharedWaits:    l.sharedWaits.Load(),
		Failures:       l.failures.Load(),
		InFlight:       l.inflight.len(),
	}
}

// Close releases the response cache.
func (l *Loader) Close() {
	l.cache.close()
}
