package eventbus

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/observability"
)

const defaultHistorySize = 1000
const defaultWorkerPoolSize = 10
const defaultQueueSize = 4096
const handlerSendTimeout = 5 * time.Second

// InMemoryBus is the in-process event bus backend (§4.2): an unbounded
// dispatch queue (backed by a bounded buffered channel with a soft
// cap), a single dispatch goroutine, and a bounded worker pool that
// invokes subscriber handlers with panic isolation.
type subscription struct {
	id      Subscription
	handler Handler
}

type InMemoryBus struct {
	obs *observability.Observability

	mu          sync.RWMutex
	subscribers map[event.Kind][]subscription
	nextSub     Subscription
	filters     []Filter

	historyMu   sync.Mutex
	history     []event.Event
	historySize int

	queue      chan event.Event
	workers    chan struct{}
	running    bool
	runningMu  sync.Mutex
	processed  int64
	processedMu sync.Mutex

	dispatchDone chan struct{}
	stopOnce     sync.Once
}

// NewInMemoryBus constructs an in-process bus. obs may be nil, in
// which case dispatch proceeds without tracing or metrics.
func NewInMemoryBus(obs *observability.Observability) *InMemoryBus {
	return &InMemoryBus{
		obs:         obs,
		subscribers: make(map[event.Kind][]subscription),
		historySize: defaultHistorySize,
		queue:       make(chan event.Event, defaultQueueSize),
		workers:     make(chan struct{}, defaultWorkerPoolSize),
	}
}

// Start launches the dispatch goroutine. Safe to call multiple times.
func (b *InMemoryBus) Start(ctx context.Context) error {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	if b.running {
		return nil
	}
	b.running = true
	b.dispatchDone = make(chan struct{})
	go b.dispatchLoop(ctx)
	return nil
}

// Stop signals the dispatch loop to exit once the queue drains and
// waits for it to do so.
func (b *InMemoryBus) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	done := b.dispatchDone
	b.runningMu.Unlock()

	close(b.queue)
	b.stopOnce.Do(func() {})

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.queue = make(chan event.Event, defaultQueueSize)
	return nil
}

func (b *InMemoryBus) dispatchLoop(ctx context.Context) {
	defer close(b.dispatchDone)
	for e := range b.queue {
		b.storeHistory(e)

		b.mu.RLock()
		subs := append([]subscription(nil), b.subscribers[e.Type]...)
		b.mu.RUnlock()

		if len(subs) == 0 {
			continue
		}

		dispatchCtx := ctx
		if b.obs != nil {
			b.obs.MetricsManager.IncrementEventsProcessed(ctx, string(e.Type), e.Source, true)
			var span trace.Span
			dispatchCtx, span = b.obs.TraceManager.StartConsumeSpan(ctx, "inmemory", e.Source, string(e.Type))
			b.obs.TraceManager.SetSpanSuccess(span)
			span.End()
		}

		for _, s := range subs {
			b.workers <- struct{}{}
			go func(handler Handler, ev event.Event) {
				defer func() { <-b.workers }()
				b.safeInvoke(dispatchCtx, handler, ev)
			}(s.handler, e)
		}
	}
}

// safeInvoke calls handler, converting a panic into an AgentError
// event published back onto the bus, per §4.2's error isolation
// contract.
func (b *InMemoryBus) safeInvoke(ctx context.Context, handler Handler, e event.Event) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			if b.obs != nil {
				b.obs.Logger.Error("eventbus: recovered panic in handler",
					"event_id", e.ID, "event_type", string(e.Type), "panic", r)
				b.obs.MetricsManager.IncrementEventErrors(ctx, string(e.Type), e.Source, "panic")
			}
			errEvent := event.New(event.AgentError, "event_bus", map[string]interface{}{
				"original_event": e,
				"error":          formatPanic(r),
			}, e.CorrelationID)
			_ = b.Publish(ctx, errEvent)
		}
		if b.obs != nil {
			b.obs.MetricsManager.RecordEventProcessingDuration(ctx, string(e.Type), e.Source, time.Since(start))
		}
	}()
	handler(ctx, e)
}

func formatPanic(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return time.Now().Format(time.RFC3339) + ": " + toString(r)
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "panic"
}

func (b *InMemoryBus) storeHistory(e event.Event) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	b.history = append(b.history, e)
	if len(b.history) > b.historySize {
		b.history = b.history[len(b.history)-b.historySize:]
	}
	b.processedMu.Lock()
	b.processed++
	b.processedMu.Unlock()
}

// Publish applies registered filters, then enqueues the event. Per
// §5, overflow must never drop from the delivery queue; the queue is
// sized generously and a full queue blocks the caller rather than
// silently losing the event.
func (b *InMemoryBus) Publish(ctx context.Context, e event.Event) error {
	b.mu.RLock()
	filters := append([]Filter(nil), b.filters...)
	b.mu.RUnlock()

	for _, f := range filters {
		if !f(e) {
			return nil
		}
	}

	if b.obs != nil {
		var span trace.Span
		ctx, span = b.obs.TraceManager.StartPublishSpan(ctx, "inmemory", "inmemory", string(e.Type))
		defer span.End()
	}

	select {
	case b.queue <- e:
		if b.obs != nil {
			b.obs.MetricsManager.IncrementEventsPublished(ctx, string(e.Type), "inmemory")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishTaskEvent builds an envelope with task_id in data and the
// correlation id set to taskID, then publishes it.
func (b *InMemoryBus) PublishTaskEvent(ctx context.Context, kind event.Kind, taskID, source string, extra map[string]interface{}) error {
	data := map[string]interface{}{"task_id": taskID}
	for k, v := range extra {
		data[k] = v
	}
	return b.Publish(ctx, event.New(kind, source, data, taskID))
}

func (b *InMemoryBus) Subscribe(kind event.Kind, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSub++
	id := b.nextSub
	b.subscribers[kind] = append(b.subscribers[kind], subscription{id: id, handler: handler})
	return id
}

func (b *InMemoryBus) Unsubscribe(kind event.Kind, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if s.id == sub {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (b *InMemoryBus) AddFilter(filter Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, filter)
}

func (b *InMemoryBus) GetHistory(kind *event.Kind, source *string, since *float64) []event.Event {
	b.historyMu.Lock()
	snapshot := append([]event.Event(nil), b.history...)
	b.historyMu.Unlock()

	out := make([]event.Event, 0, len(snapshot))
	for _, e := range snapshot {
		if kind != nil && e.Type != *kind {
			continue
		}
		if source != nil && e.Source != *source {
			continue
		}
		if since != nil && e.Timestamp < *since {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (b *InMemoryBus) ReplayEvents(ctx context.Context, events []event.Event) error {
	for _, e := range events {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *InMemoryBus) GetStatistics() Statistics {
	b.mu.RLock()
	perKind := make(map[event.Kind]int, len(b.subscribers))
	total := 0
	for k, handlers := range b.subscribers {
		perKind[k] = len(handlers)
		total += len(handlers)
	}
	filterCount := len(b.filters)
	b.mu.RUnlock()

	b.runningMu.Lock()
	running := b.running
	b.runningMu.Unlock()

	b.processedMu.Lock()
	processed := b.processed
	b.processedMu.Unlock()

	return Statistics{
		TotalProcessed:     processed,
		QueueDepth:         len(b.queue),
		SubscriberCount:    total,
		FilterCount:        filterCount,
		Running:            running,
		SubscribersPerKind: perKind,
	}
}
