package metrics

import (
	"sync"
	"time"
)

// DefaultRealtimeCapacity keeps ten minutes of one-second samples.
const DefaultRealtimeCapacity = 600

// RealtimeSample is one sampler tick.
type RealtimeSample struct {
	Timestamp       time.Time `json:"ts"`
	DecisionsPerSec float64   `json:"decisions_per_sec"`
	FailuresPerSec  float64   `json:"failures_per_sec"`
	// InFlight is the number of paywall fetches outstanding at sample time.
	InFlight int `json:"in_flight"`
}

// RealtimeRing keeps the most recent samples, evicting the oldest.
type RealtimeRing struct {
	mu   sync.RWMutex
	buf  []RealtimeSample
	next int
	full bool
}

// NewRealtimeRing creates a ring holding up to capacity samples.
func NewRealtimeRing(capacity int) *RealtimeRing {
	if capacity <= 0 {
		capacity = DefaultRealtimeCapacity
	}
	return &RealtimeRing{buf: make([]RealtimeSample, capacity)}
}

// Push appends s.
func (r *RealtimeRing) Push(s RealtimeSample) {
	r.mu.Lock()
	r.buf[r.next] = s
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
	r.mu.Unlock()
}

// newest returns the i-th most recent sample. Callers hold mu.
func (r *RealtimeRing) newest(i int) RealtimeSample {
	n := len(r.buf)
	return r.buf[(r.next-1-i+n)%n]
}

func (r *RealtimeRing) lenLocked() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

// Query returns samples with from <= ts <= to, newest first.
func (r *RealtimeRing) Query(from, to time.Time) []RealtimeSample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RealtimeSample
	for i, n := 0, r.lenLocked(); i < n; i++ {
		s := r.newest(i)
		if s.Timestamp.Before(from) {
			break
		}
		if s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Latest returns the most recent sample, if any.
func (r *RealtimeRing) Latest() (RealtimeSample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lenLocked() == 0 {
		return RealtimeSample{}, false
	}
	return r.newest(0), true
}

// Len returns the number of stored samples.
func (r *RealtimeRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lenLocked()
}
