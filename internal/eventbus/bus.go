// Package eventbus provides the event bus abstraction with two
// interchangeable backends: an in-process implementation and a
// Redis-brokered implementation, selected at runtime by Factory.
package eventbus

import (
	"context"

	"github.com/taskforge/maf/internal/event"
)

// Handler processes a single event. It must not block the dispatcher
// for longer than its own work requires; long-running I/O is expected
// and is isolated per invocation.
type Handler func(ctx context.Context, e event.Event)

// Filter inspects an event before it is queued for dispatch. Returning
// false drops the event silently, as if it had never been published.
type Filter func(e event.Event) bool

// Subscription identifies a single Subscribe call so it can later be
// removed with Unsubscribe. Go func values are not comparable, so the
// bus hands back an opaque token rather than asking callers to
// resupply the original handler.
type Subscription uint64

// Statistics mirrors the "get_statistics" contract of §4.2: aggregate
// counters plus a per-kind subscriber count.
type Statistics struct {
	TotalProcessed     int64
	QueueDepth         int
	SubscriberCount    int
	FilterCount        int
	Running            bool
	SubscribersPerKind map[event.Kind]int
}

// Bus is the common contract implemented by every event bus backend
// (§4.2, §4.3).
type Bus interface {
	// Start begins dispatching. It is safe to call multiple times;
	// subsequent calls are no-ops once running.
	Start(ctx context.Context) error

	// Stop drains in-flight dispatch and releases backend resources.
	// It blocks until the dispatcher goroutine (and, for the brokered
	// backend, every open consumer) has exited.
	Stop(ctx context.Context) error

	// Publish enqueues an event for dispatch. Publication is
	// non-blocking from the caller's perspective once the event has
	// passed the registered filters.
	Publish(ctx context.Context, e event.Event) error

	// PublishTaskEvent is a convenience wrapper that sets data["task_id"]
	// and the correlation id to taskID, merging in extra.
	PublishTaskEvent(ctx context.Context, kind event.Kind, taskID, source string, extra map[string]interface{}) error

	// Subscribe registers handler for kind and returns a token that can
	// later be passed to Unsubscribe.
	Subscribe(kind event.Kind, handler Handler) Subscription

	// Unsubscribe removes the handler registered under sub. It is a
	// no-op if sub is unknown or already removed.
	Unsubscribe(kind event.Kind, sub Subscription)

	// AddFilter registers a predicate run, in registration order, on
	// every published event before it is queued.
	AddFilter(filter Filter)

	// GetHistory returns the trailing ring-buffer of recent events,
	// optionally narrowed by kind, source, and a minimum timestamp.
	GetHistory(kind *event.Kind, source *string, since *float64) []event.Event

	// ReplayEvents re-publishes a list of events, e.g. for recovery.
	ReplayEvents(ctx context.Context, events []event.Event) error

	// GetStatistics reports current bus statistics.
	GetStatistics() Statistics
}
