// Package watch correlates chain events: it waits on a named event stream
// for the first event passing a filter, or times out. Timeouts are normal
// results, not errors, because "the event never happened" is frequently a
// valid branch for callers.
package watch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/frostbridge/devnet/pkg/chain"
)

// Filter decides whether a delivered event is the one being waited for.
type Filter func(chain.Event) bool

// Result is the outcome of a single-event wait. When Matched is false the
// wait timed out (or the subscription could not be opened) and Event is nil.
type Result struct {
	Matched bool
	Event   *chain.Event
}

// Options configures a single-event wait.
type Options struct {
	// Filter defaults to matching every event.
	Filter Filter
	// Timeout bounds the wait. The timer always fires regardless of event
	// arrival rate.
	Timeout time.Duration
}

// ForEvent subscribes to path on src and resolves with the first event the
// filter accepts, or with a no-match result when the timeout elapses first.
// A subscription-open failure resolves to no-match as well: callers
// uniformly want a boolean-ish outcome they can assert on. The subscription
// is released exactly once on every exit path.
func ForEvent(ctx context.Context, src chain.Source, path string, opts Options) Result {
	sub, err := src.Subscribe(ctx, path)
	if err != nil {
		return Result{}
	}
	defer sub.Unsubscribe()

	filter := opts.Filter
	if filter == nil {
		filter = func(chain.Event) bool { return true }
	}

	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Result{}
		case <-timer.C:
			return Result{}
		case <-sub.Err():
			return Result{}
		case ev, ok := <-sub.Events():
			if !ok {
				return Result{}
			}
			if filter(ev) {
				return Result{Matched: true, Event: &ev}
			}
		}
	}
}

// Spec names one path to watch in a multi-event wait.
type Spec struct {
	Source chain.Source
	Path   string
	Filter Filter
	// StopOnMatch stops collecting for this path after its first match;
	// otherwise the path keeps collecting until the shared timeout.
	StopOnMatch bool
}

// ForMultipleEvents watches every spec concurrently under one shared
// timeout and returns the events collected per path (possibly empty). All
// subscriptions are released when the timeout elapses, regardless of
// individual match state. Events within one path arrive in transport order;
// no ordering is guaranteed across paths.
func ForMultipleEvents(ctx context.Context, specs []Spec, timeout time.Duration) map[string][]chain.Event {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var mu sync.Mutex
	collected := make(map[string][]chain.Event, len(specs))
	for _, spec := range specs {
		collected[spec.Path] = nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			collectEvents(ctx, spec, func(ev chain.Event) {
				mu.Lock()
				collected[spec.Path] = append(collected[spec.Path], ev)
				mu.Unlock()
			})
			return nil
		})
	}
	_ = g.Wait()
	return collected
}

func collectEvents(ctx context.Context, spec Spec, record func(chain.Event)) {
	sub, err := spec.Source.Subscribe(ctx, spec.Path)
	if err != nil {
		return
	}
	defer sub.Unsubscribe()

	filter := spec.Filter
	if filter == nil {
		filter = func(chain.Event) bool { return true }
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Err():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !filter(ev) {
				continue
			}
			record(ev)
			if spec.StopOnMatch {
				return
			}
		}
	}
}
