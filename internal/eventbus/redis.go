package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/observability"
)

// RedisBus is the brokered event bus backend (§4.3): one Redis Pub/Sub
// channel per event kind (named by Kind.Topic), a shared publisher,
// and a lazily created consumer per kind that is closed once its last
// handler unsubscribes. History and statistics reuse the same
// ring-buffer and worker-pool machinery as InMemoryBus.
type RedisBus struct {
	obs           *observability.Observability
	rdb           *redis.Client
	consumerGroup string

	mu          sync.RWMutex
	subscribers map[event.Kind][]subscription
	consumers   map[event.Kind]*redisConsumer
	nextSub     Subscription
	filters     []Filter

	historyMu   sync.Mutex
	history     []event.Event
	historySize int

	workers chan struct{}

	runningMu sync.Mutex
	running   bool

	processedMu sync.Mutex
	processed   int64
}

type redisConsumer struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// RedisOptions configures the brokered backend.
type RedisOptions struct {
	Addr          string
	Password      string
	DB            int
	ConsumerGroup string
}

// NewRedisBus constructs a brokered bus over a Redis client. obs may
// be nil, in which case dispatch proceeds without tracing or metrics.
func NewRedisBus(opts RedisOptions, obs *observability.Observability) *RedisBus {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &RedisBus{
		obs:           obs,
		rdb:           rdb,
		consumerGroup: opts.ConsumerGroup,
		subscribers:   make(map[event.Kind][]subscription),
		consumers:     make(map[event.Kind]*redisConsumer),
		historySize:   defaultHistorySize,
		workers:       make(chan struct{}, defaultWorkerPoolSize),
	}
}

// Start verifies connectivity to the broker. Per-kind consumers are
// created lazily on first Subscribe, matching §4.3's "lazily creates a
// consumer" contract.
func (b *RedisBus) Start(ctx context.Context) error {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	if b.running {
		return nil
	}
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		if b.obs != nil {
			b.obs.MetricsManager.IncrementBrokerConnectionErrors(ctx)
		}
		return fmt.Errorf("eventbus: connect to broker: %w", err)
	}
	b.running = true
	return nil
}

// Stop closes every open consumer and the shared client.
func (b *RedisBus) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	defer b.runningMu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false

	b.mu.Lock()
	for kind, c := range b.consumers {
		c.cancel()
		<-c.done
		delete(b.consumers, kind)
	}
	b.mu.Unlock()

	return b.rdb.Close()
}

// Publish marshals e and publishes it on its kind's topic.
func (b *RedisBus) Publish(ctx context.Context, e event.Event) error {
	b.mu.RLock()
	filters := append([]Filter(nil), b.filters...)
	b.mu.RUnlock()

	for _, f := range filters {
		if !f(e) {
			return nil
		}
	}

	payload, err := e.Encode()
	if err != nil {
		return err
	}

	var span trace.Span
	if b.obs != nil {
		ctx, span = b.obs.TraceManager.StartPublishSpan(ctx, "redis", e.Type.Topic(), string(e.Type))
		defer span.End()
	}

	start := time.Now()
	err = b.rdb.Publish(ctx, e.Type.Topic(), payload).Err()
	if b.obs != nil {
		b.obs.MetricsManager.RecordBrokerPublishDuration(ctx, e.Type.Topic(), time.Since(start))
	}
	if err != nil {
		if b.obs != nil {
			b.obs.MetricsManager.IncrementBrokerConnectionErrors(ctx)
			b.obs.TraceManager.RecordError(span, err)
		}
		return fmt.Errorf("eventbus: publish to %s: %w", e.Type.Topic(), err)
	}

	b.storeHistory(e)
	if b.obs != nil {
		b.obs.MetricsManager.IncrementEventsPublished(ctx, string(e.Type), e.Type.Topic())
		b.obs.TraceManager.SetSpanSuccess(span)
	}
	return nil
}

func (b *RedisBus) PublishTaskEvent(ctx context.Context, kind event.Kind, taskID, source string, extra map[string]interface{}) error {
	data := map[string]interface{}{"task_id": taskID}
	for k, v := range extra {
		data[k] = v
	}
	return b.Publish(ctx, event.New(kind, source, data, taskID))
}

// Subscribe registers handler for kind, creating a consumer for the
// topic on first subscription.
func (b *RedisBus) Subscribe(kind event.Kind, handler Handler) Subscription {
	b.mu.Lock()
	b.nextSub++
	id := b.nextSub
	b.subscribers[kind] = append(b.subscribers[kind], subscription{id: id, handler: handler})
	_, exists := b.consumers[kind]
	b.mu.Unlock()

	if !exists {
		b.startConsumer(kind)
	}
	return id
}

// Unsubscribe removes sub from kind's handler list, closing the
// consumer once the last handler for that kind is gone.
func (b *RedisBus) Unsubscribe(kind event.Kind, sub Subscription) {
	b.mu.Lock()
	subs := b.subscribers[kind]
	for i, s := range subs {
		if s.id == sub {
			b.subscribers[kind] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	empty := len(b.subscribers[kind]) == 0
	consumer, ok := b.consumers[kind]
	if empty && ok {
		delete(b.consumers, kind)
	}
	b.mu.Unlock()

	if empty && ok {
		consumer.cancel()
		<-consumer.done
	}
}

func (b *RedisBus) startConsumer(kind event.Kind) {
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.rdb.Subscribe(ctx, kind.Topic())
	done := make(chan struct{})

	b.mu.Lock()
	b.consumers[kind] = &redisConsumer{pubsub: pubsub, cancel: cancel, done: done}
	b.mu.Unlock()

	go func() {
		defer close(done)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				e, err := event.Decode([]byte(msg.Payload))
				if err != nil {
					if b.obs != nil {
						b.obs.Logger.Error("eventbus: dropping malformed broker message",
							"topic", kind.Topic(), "error", err)
					}
					continue
				}
				b.dispatch(ctx, e)
			}
		}
	}()
}

func (b *RedisBus) dispatch(ctx context.Context, e event.Event) {
	start := time.Now()
	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[e.Type]...)
	b.mu.RUnlock()

	dispatchCtx := ctx
	if b.obs != nil {
		var span trace.Span
		dispatchCtx, span = b.obs.TraceManager.StartConsumeSpan(ctx, "redis", e.Type.Topic(), string(e.Type))
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
	if b.obs != nil {
		b.obs.MetricsManager.RecordBrokerConsumeDuration(ctx, e.Type.Topic(), time.Since(start))
	}
}

func (b *RedisBus) safeInvoke(ctx context.Context, handler Handler, e event.Event) {
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
	}()
	handler(ctx, e)
}

func (b *RedisBus) AddFilter(filter Filter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters = append(b.filters, filter)
}

func (b *RedisBus) storeHistory(e event.Event) {
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

// GetHistory returns the in-memory trailing window observed by this
// process, per §4.3's conforming history semantics.
func (b *RedisBus) GetHistory(kind *event.Kind, source *string, since *float64) []event.Event {
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

func (b *RedisBus) ReplayEvents(ctx context.Context, events []event.Event) error {
	for _, e := range events {
		if err := b.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (b *RedisBus) GetStatistics() Statistics {
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
		SubscriberCount:    total,
		FilterCount:        filterCount,
		Running:            running,
		SubscribersPerKind: perKind,
	}
}
