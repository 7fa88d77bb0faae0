package paywall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/tracking"
)

// blockingClient counts calls and blocks each one until release is closed.
type blockingClient struct {
	calls    atomic.Int32
	release  chan struct{}
	sawDone  atomic.Bool
	response model.Paywall
	err      error
}

func newBlockingClient() *blockingClient {
	return &blockingClient{
		release:  make(chan struct{}),
		response: model.Paywall{ID: "pw_net", Name: "Network"},
	}
}

func (c *blockingClient) GetPaywall(ctx context.Context, _ string, _ *model.EventData) (model.Paywall, error) {
	c.calls.Add(1)
	select {
	case <-c.release:
	case <-ctx.Done():
		c.sawDone.Store(true)
		return model.Paywall{}, ctx.Err()
	}
	if c.err != nil {
		return model.Paywall{}, c.err
	}
	return c.response, nil
}

// orderLog records tracking and session events in one sequence.
type orderLog struct {
	mu      sync.Mutex
	entries []string
}

func (o *orderLog) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, s)
}

func (o *orderLog) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.entries...)
}

func (o *orderLog) Track(_ context.Context, e tracking.TrackedEvent) error {
	o.add("track:" + e.Name)
	return nil
}

func (o *orderLog) RecordResponseLoad(_ context.Context, _ string, state model.LoadState) error {
	o.add("session:" + string(state))
	return nil
}

func newTrackedLoader(client Client, static StaticSource, cfg LoaderConfig) (*Loader, *orderLog) {
	log := &orderLog{}
	cfg.Client = client
	cfg.Static = static
	cfg.Tracker = tracking.NewCoordinator(tracking.CoordinatorConfig{
		Sinks:    []tracking.Sink{log},
		Recorder: log,
	})
	return NewLoader(cfg), log
}

func flightWaiters(t *inflightTable, id string) int {
	n := 0
	t.flights.Compute(id, func(current *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if loaded {
			n = current.waiters
		}
		return current, xsync.CancelOp
	})
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func assertOrder(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("event order: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event order: got %v, want %v", got, want)
		}
	}
}

func TestLoader_StaticPaywallSkipsNetwork(t *testing.T) {
	client := newBlockingClient()
	static := NewStaticStoreFromPaywalls([]model.Paywall{{ID: "pw_1", Name: "Static"}})
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loader, log := newTrackedLoader(client, static, LoaderConfig{Now: func() time.Time { return fixed }})

	exp := &model.Experiment{ID: "exp_1", Variant: model.Variant{ID: "v1", Type: model.VariantTreatment}}
	p, err := loader.Resolve(context.Background(), "pw_1", &model.EventData{RawName: "campaign_trigger"}, exp)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if client.calls.Load() != 0 {
		t.Fatalf("network calls: got %d, want 0", client.calls.Load())
	}
	if p.Name != "Static" {
		t.Fatalf("Name: got %q", p.Name)
	}
	if p.Experiment == nil || p.Experiment.ID != "exp_1" {
		t.Fatalf("Experiment: got %#v", p.Experiment)
	}
	if p.Experiment == exp {
		t.Fatal("stamped experiment must be a copy")
	}
	if !p.ResponseLoadingInfo.StartAt.Equal(fixed) || !p.ResponseLoadingInfo.EndAt.Equal(fixed) {
		t.Fatalf("timing: got %+v", p.ResponseLoadingInfo)
	}
	if s := loader.Stats(); s.StaticHits != 1 || s.NetworkFetches != 0 {
		t.Fatalf("stats: got %+v", s)
	}

	assertOrder(t, log.snapshot(), []string{
		"session:start",
		"track:" + tracking.EventPaywallResponseStart,
		"track:" + tracking.EventPaywallResponseComplete,
		"session:end",
	})
}

func TestLoader_StaticStoreIsNotMutated(t *testing.T) {
	static := NewStaticStoreFromPaywalls([]model.Paywall{{ID: "pw_1"}})
	loader, _ := newTrackedLoader(newBlockingClient(), static, LoaderConfig{})

	if _, err := loader.Resolve(context.Background(), "pw_1", nil, &model.Experiment{ID: "exp"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	stored, _ := static.GetStaticPaywall("pw_1")
	if stored.Experiment != nil || !stored.ResponseLoadingInfo.StartAt.IsZero() {
		t.Fatalf("static entry was stamped in place: %+v", stored)
	}
}

func TestLoader_ConcurrentResolvesShareOneFetch(t *testing.T) {
	const n = 16
	client := newBlockingClient()
	var tick atomic.Int64
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	loader, _ := newTrackedLoader(client, nil, LoaderConfig{
		Now: func() time.Time { return base.Add(time.Duration(tick.Add(1)) * time.Millisecond) },
	})

	results := make([]model.Paywall, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = loader.Resolve(context.Background(), "pw_1", nil, nil)
		}(i)
	}

	waitFor(t, "all callers to join the flight", func() bool {
		return flightWaiters(loader.inflight, "pw_1") == n
	})
	close(client.release)
	wg.Wait()

	if got := client.calls.Load(); got != 1 {
		t.Fatalf("network calls: got %d, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i].ResponseLoadingInfo != results[0].ResponseLoadingInfo {
			t.Fatalf("caller %d timing differs: %+v vs %+v", i, results[i].ResponseLoadingInfo, results[0].ResponseLoadingInfo)
		}
	}
	if results[0].ResponseLoadingInfo.Duration() <= 0 {
		t.Fatalf("expected positive load duration, got %v", results[0].ResponseLoadingInfo.Duration())
	}
	if s := loader.Stats(); s.NetworkFetches != 1 || s.SharedWaits != n-1 || s.InFlight != 0 {
		t.Fatalf("stats: got %+v", s)
	}
}

func TestLoader_ConcurrentFailureReachesEveryWaiter(t *testing.T) {
	const n = 8
	client := newBlockingClient()
	client.err = fmt.Errorf("upstream: %w", ErrNotFound)
	loader, _ := newTrackedLoader(client, nil, LoaderConfig{})

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = loader.Resolve(context.Background(), "pw_missing", nil, nil)
		}(i)
	}
	waitFor(t, "all callers to join the flight", func() bool {
		return flightWaiters(loader.inflight, "pw_missing") == n
	})
	close(client.release)
	wg.Wait()

	if got := client.calls.Load(); got != 1 {
		t.Fatalf("network calls: got %d, want 1", got)
	}
	for i, err := range errs {
		if !IsNotFound(err) {
			t.Fatalf("caller %d: got %v, want not-found LoadError", i, err)
		}
	}
}

func TestLoader_DifferentIDsFetchIndependently(t *testing.T) {
	var calls atomic.Int32
	client := ClientFunc(func(_ context.Context, id string, _ *model.EventData) (model.Paywall, error) {
		calls.Add(1)
		return model.Paywall{ID: id}, nil
	})
	loader := NewLoader(LoaderConfig{Client: client})

	for _, id := range []string{"a", "b", "c"} {
		p, err := loader.Resolve(context.Background(), id, nil, nil)
		if err != nil {
			t.Fatalf("Resolve(%s): %v", id, err)
		}
		if p.ID != id {
			t.Fatalf("ID: got %q, want %q", p.ID, id)
		}
	}
	if calls.Load() != 3 {
		t.Fatalf("calls: got %d, want 3", calls.Load())
	}
}

func TestLoader_FailureTrackingOrder(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantKind  LoadErrorKind
		wantEvent string
	}{
		{"not_found", ErrNotFound, LoadNotFound, tracking.EventPaywallResponseNotFound},
		{"network", errors.New("connection reset"), LoadNetwork, tracking.EventPaywallResponseFail},
		{"decoding", &DecodeError{Err: errors.New("bad json")}, LoadDecoding, tracking.EventPaywallResponseFail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := ClientFunc(func(context.Context, string, *model.EventData) (model.Paywall, error) {
				return model.Paywall{}, tt.err
			})
			loader, log := newTrackedLoader(client, nil, LoaderConfig{})

			_, err := loader.Resolve(context.Background(), "pw_1", nil, nil)
			var loadErr *LoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("expected *LoadError, got %T %v", err, err)
			}
			if loadErr.Kind != tt.wantKind || loadErr.PaywallID != "pw_1" {
				t.Fatalf("LoadError: got %+v", loadErr)
			}
			if !errors.Is(err, tt.err) {
				t.Fatal("LoadError must wrap the client error")
			}
			assertOrder(t, log.snapshot(), []string{
				"session:start",
				"track:" + tracking.EventPaywallResponseStart,
				"session:fail",
				"track:" + tt.wantEvent,
			})
			if loader.Stats().Failures != 1 {
				t.Fatalf("failures: got %d", loader.Stats().Failures)
			}
		})
	}
}

func TestLoader_ResponseCache(t *testing.T) {
	var calls atomic.Int32
	client := ClientFunc(func(_ context.Context, id string, _ *model.EventData) (model.Paywall, error) {
		calls.Add(1)
		return model.Paywall{ID: id}, nil
	})
	loader := NewLoader(LoaderConfig{Client: client, CacheSize: 16, CacheTTL: time.Minute})
	defer loader.Close()

	event := &model.EventData{RawName: "campaign_trigger", CustomParameters: map[string]any{"plan": "pro"}}
	for i := 0; i < 3; i++ {
		if _, err := loader.Resolve(context.Background(), "pw_1", event, nil); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("calls: got %d, want 1", calls.Load())
	}

	other := &model.EventData{RawName: "campaign_trigger", CustomParameters: map[string]any{"plan": "basic"}}
	if _, err := loader.Resolve(context.Background(), "pw_1", other, nil); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("a different event must miss the cache, calls=%d", calls.Load())
	}
	if s := loader.Stats(); s.CacheHits != 2 {
		t.Fatalf("cache hits: got %d, want 2", s.CacheHits)
	}
}

func TestLoader_FailuresAreNotCached(t *testing.T) {
	var calls atomic.Int32
	client := ClientFunc(func(context.Context, string, *model.EventData) (model.Paywall, error) {
		calls.Add(1)
		return model.Paywall{}, errors.New("boom")
	})
	loader := NewLoader(LoaderConfig{Client: client, CacheSize: 16, CacheTTL: time.Minute})
	defer loader.Close()

	for i := 0; i < 2; i++ {
		if _, err := loader.Resolve(context.Background(), "pw_1", nil, nil); err == nil {
			t.Fatal("expected error")
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("calls: got %d, want 2", calls.Load())
	}
}

func TestLoader_CallerCancelAbandonPolicy(t *testing.T) {
	client := newBlockingClient()
	loader, log := newTrackedLoader(client, nil, LoaderConfig{CancelPolicy: CancelAbandon})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := loader.Resolve(ctx, "pw_1", nil, nil)
		done <- err
	}()
	waitFor(t, "fetch to start", func() bool { return client.calls.Load() == 1 })
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		t.Fatal("caller cancellation is not a LoadError")
	}
	if client.sawDone.Load() {
		t.Fatal("abandon policy must not cancel the fetch")
	}
	if loader.Stats().InFlight != 1 {
		t.Fatal("abandoned fetch should still be in flight")
	}

	close(client.release)
	waitFor(t, "abandoned fetch to finish", func() bool { return loader.Stats().InFlight == 0 })

	entries := log.snapshot()
	if entries[len(entries)-1] != "track:"+tracking.EventPaywallResponseFail {
		t.Fatalf("cancellation should be tracked as load fail, got %v", entries)
	}
}

func TestLoader_CallerCancelUnreferencedPolicy(t *testing.T) {
	client := newBlockingClient()
	loader := NewLoader(LoaderConfig{Client: client, CancelPolicy: CancelUnreferenced})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := loader.Resolve(ctx, "pw_1", nil, nil)
		done <- err
	}()
	waitFor(t, "fetch to start", func() bool { return client.calls.Load() == 1 })
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	waitFor(t, "fetch context to be cancelled", client.sawDone.Load)
	if loader.Stats().InFlight != 0 {
		t.Fatal("cancelled flight must be removed from the table")
	}
}

func TestLoader_CancelUnreferencedKeepsSharedFetch(t *testing.T) {
	client := newBlockingClient()
	loader := NewLoader(LoaderConfig{Client: client, CancelPolicy: CancelUnreferenced})

	leaverCtx, leave := context.WithCancel(context.Background())
	leaverDone := make(chan error, 1)
	stayerDone := make(chan error, 1)
	go func() {
		_, err := loader.Resolve(leaverCtx, "pw_1", nil, nil)
		leaverDone <- err
	}()
	go func() {
		_, err := loader.Resolve(context.Background(), "pw_1", nil, nil)
		stayerDone <- err
	}()
	waitFor(t, "both callers to join", func() bool { return flightWaiters(loader.inflight, "pw_1") == 2 })

	leave()
	if err := <-leaverDone; !errors.Is(err, context.Canceled) {
		t.Fatalf("leaver: expected context.Canceled, got %v", err)
	}
	if client.sawDone.Load() {
		t.Fatal("fetch must survive while another waiter depends on it")
	}

	close(client.release)
	if err := <-stayerDone; err != nil {
		t.Fatalf("stayer: %v", err)
	}
	if client.calls.Load() != 1 {
		t.Fatalf("calls: got %d, want 1", client.calls.Load())
	}
}

func TestNewLoader_NilClientPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewLoader(LoaderConfig{})
}

func TestParseCancelPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    CancelPolicy
		wantErr bool
	}{
		{"", CancelAbandon, false},
		{"abandon", CancelAbandon, false},
		{" Cancel_Unreferenced ", CancelUnreferenced, false},
		{"never", CancelAbandon, true},
	}
	for _, tt := range tests {
		got, err := ParseCancelPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseCancelPolicy(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseCancelPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
