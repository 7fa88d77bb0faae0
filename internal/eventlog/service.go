package eventlog

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resinat/Paygate/internal/model"
	"github.com/Resinat/Paygate/internal/tracking"
)

var (
	// ErrClosed is returned when writing to a stopped Service.
	ErrClosed = errors.New("eventlog: service stopped")
	// ErrQueueFull is returned when an entry is dropped on overflow.
	ErrQueueFull = errors.New("eventlog: queue full")
)

// entry is either a tracked event or a load transition.
type entry struct {
	event *EventRow
	load  *LoadRow
}

// ServiceConfig configures the event log service.
type ServiceConfig struct {
	Repo          *Repo
	QueueSize     int
	FlushBatch    int
	FlushInterval time.Duration
	// Retention > 0 prunes rows older than Retention once per PruneInterval.
	Retention     time.Duration
	PruneInterval time.Duration
	Now           func() time.Time
}

// ServiceStats is a snapshot of service counters.
type ServiceStats struct {
	Queued  int   `json:"queued"`
	Dropped int64 `json:"dropped"`
	Flushed int64 `json:"flushed"`
}

// Service is an async event log writer. Track and RecordResponseLoad do a
// non-blocking channel send and drop on overflow; a background goroutine
// flushes batches to the Repo.
type Service struct {
	repo          *Repo
	queue         chan entry
	batchSize     int
	interval      time.Duration
	retention     time.Duration
	pruneInterval time.Duration
	now           func() time.Time

	// mu orders enqueue sends before Stop, so the final drain sees every
	// accepted entry.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	flushed atomic.Int64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewService creates a new event log service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Repo == nil {
		panic("eventlog: NewService requires non-nil Repo")
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 8192
	}
	batchSize := cfg.FlushBatch
	if batchSize <= 0 {
		batchSize = 1024
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	pruneInterval := cfg.PruneInterval
	if pruneInterval <= 0 {
		pruneInterval = time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          cfg.Repo,
		queue:         make(chan entry, queueSize),
		batchSize:     batchSize,
		interval:      interval,
		retention:     cfg.Retention,
		pruneInterval: pruneInterval,
		now:           now,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background flush goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop rejects new entries, drains the queue and waits for the final flush.
func (s *Service) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// Track implements tracking.Sink.
func (s *Service) Track(_ context.Context, event tracking.TrackedEvent) error {
	row := RowFromTracked(event)
	return s.enqueue(entry{event: &row})
}

// RecordResponseLoad implements tracking.SessionRecorder.
func (s *Service) RecordResponseLoad(_ context.Context, paywallID string, state model.LoadState) error {
	return s.enqueue(entry{load: &LoadRow{
		PaywallID: paywallID,
		State:     state,
		TsNs:      s.now().UnixNano(),
	}})
}

func (s *Service) enqueue(e entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- e:
		return nil
	default:
		// Queue full: drop to avoid blocking the pipeline.
		s.dropped.Add(1)
		return ErrQueueFull
	}
}

// flushLoop runs until stopCh is closed, flushing on batch-size or timer.
func (s *Service) flushLoop() {
	defer s.wg.Done()

	var batch []entry
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var pruneC <-chan time.Time
	if s.retention > 0 {
		pruneTicker := time.NewTicker(s.pruneInterval)
		defer pruneTicker.Stop()
		pruneC = pruneTicker.C
	}

	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}

		case <-pruneC:
			s.prune()

		case <-s.stopCh:
			s.drainAndFlush(batch)
			return
		}
	}
}

func (s *Service) drainAndFlush(batch []entry) {
	for {
		select {
		case e := <-s.queue:
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *Service) flush(batch []entry) {
	var events []EventRow
	var loads []LoadRow
	for _, e := range batch {
		switch {
		case e.event != nil:
			events = append(events, *e.event)
		case e.load != nil:
			loads = append(loads, *e.load)
		}
	}
	n, err := s.repo.InsertBatch(events, loads)
	if err != nil {
		log.Printf("[eventlog] flush %d entries failed: %v", len(batch), err)
		return
	}
	s.flushed.Add(int64(n))
}

func (s *Service) prune() {
	cutoff := s.now().Add(-s.retention)
	n, err := s.repo.Prune(cutoff)
	if err != nil {
		log.Printf("[eventlog] prune before %s failed: %v", cutoff.Format(time.RFC3339), err)
		return
	}
	if n > 0 {
		log.Printf("[eventlog] pruned %d rows older than %s", n, s.retention)
	}
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		Queued:  len(s.queue),
		Dropped: s.dropped.Load(),
		Flushed: s.flushed.Load(),
	}
}

// Repo returns the underlying repository for query access.
func (s *Service) Repo() *Repo {
	return s.repo
}
