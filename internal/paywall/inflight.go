package paywall

import (
	"context"
	"fmt"
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/Resinat/Paygate/internal/model"
)

// CancelPolicy decides what happens to an in-flight fetch once every caller
// waiting on it has gone away.
type CancelPolicy int

const (
	// CancelAbandon lets the fetch run to completion; its result is discarded
	// if nobody is waiting.
	CancelAbandon CancelPolicy = iota
	// CancelUnreferenced cancels the fetch when the last waiter detaches.
	CancelUnreferenced
)

func (p CancelPolicy) String() string {
	switch p {
	case CancelUnreferenced:
		return "cancel_unreferenced"
	default:
		return "abandon"
	}
}

// ParseCancelPolicy parses "abandon" or "cancel_unreferenced".
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abandon":
		return CancelAbandon, nil
	case "cancel_unreferenced":
		return CancelUnreferenced, nil
	default:
		return CancelAbandon, fmt.Errorf("unknown in-flight cancel policy %q", s)
	}
}

// fetchResult is what every waiter of one flight observes.
type fetchResult struct {
	paywall model.Paywall
	err     error
}

// flight is a single shared fetch. waiters is only touched inside
// Compute callbacks for the flight's key, which serializes it.
type flight struct {
	done    chan struct{}
	result  fetchResult
	waiters int
	cancel  context.CancelFunc
}

// inflightTable deduplicates concurrent fetches by paywall id.
type inflightTable struct {
	flights *xsync.Map[string, *flight]
	policy  CancelPolicy
}

func newInflightTable(policy CancelPolicy) *inflightTable {
	return &inflightTable{
		flights: xsync.NewMap[string, *flight](),
		policy:  policy,
	}
}

// do joins the in-flight fetch for id, starting fn if none exists. fn runs
// on its own goroutine with a context detached from any single caller.
// shared reports whether the caller joined an existing flight.
func (t *inflightTable) do(
	ctx context.Context,
	id string,
	fn func(ctx context.Context) fetchResult,
) (res fetchResult, shared bool, err error) {
	var f *flight
	var created bool
	var fetchCtx context.Context
	t.flights.Compute(id, func(current *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if loaded {
			current.waiters++
			f = current
			return current, xsync.CancelOp
		}
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), waiters: 1, cancel: cancel}
		created = true
		return f, xsync.UpdateOp
	})

	if created {
		go t.run(fetchCtx, id, f, fn)
	}

	select {
	case <-f.done:
		return f.result, !created, nil
	case <-ctx.Done():
		// A finished fetch wins over a cancellation that raced with it.
		select {
		case <-f.done:
			return f.result, !created, nil
		default:
		}
		t.detach(id, f)
		return fetchResult{}, !created, ctx.Err()
	}
}

func (t *inflightTable) run(ctx context.Context, id string, f *flight, fn func(ctx context.Context) fetchResult) {
	defer f.cancel()
	f.result = fn(ctx)
	// Remove before publishing so callers arriving later start a new fetch
	// instead of joining a finished one.
	t.removeIfSame(id, f)
	close(f.done)
}

// detach drops one waiter from f. Under CancelUnreferenced the last waiter
// leaving cancels the fetch and frees the slot for a new one.
func (t *inflightTable) detach(id string, f *flight) {
	t.flights.Compute(id, func(current *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if !loaded || current != f {
			return current, xsync.CancelOp
		}
		current.waiters--
		if current.waiters <= 0 && t.policy == CancelUnreferenced {
			current.cancel()
			return current, xsync.DeleteOp
		}
		return current, xsync.CancelOp
	})
}

func (t *inflightTable) removeIfSame(id string, f *flight) {
	t.flights.Compute(id, func(current *flight, loaded bool) (*flight, xsync.ComputeOp) {
		if loaded && current == f {
			return current, xsync.DeleteOp
		}
		return current, xsync.CancelOp
	})
}

// len returns the number of fetches currently in flight.
func (t *inflightTable) len() int {
	return t.flights.Size()
}
