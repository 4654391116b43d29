package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/taskforge/maf/internal/event"
)

func TestInMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ctx := context.Background()
	if err := bus.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer bus.Stop(ctx)

	var mu sync.Mutex
	var received []event.Event
	done := make(chan struct{}, 1)

	bus.Subscribe(event.TaskCreated, func(ctx context.Context, e event.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		done <- struct{}{}
	})

	e := event.New(event.TaskCreated, "test", map[string]interface{}{"task_id": "t-1"}, "t-1")
	if err := bus.Publish(ctx, e); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].ID != e.ID {
		t.Fatalf("expected handler to receive published event, got %+v", received)
	}
}

func TestInMemoryBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	var count int32
	var mu sync.Mutex
	sub := bus.Subscribe(event.AgentHeartbeat, func(ctx context.Context, e event.Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	bus.Unsubscribe(event.AgentHeartbeat, sub)

	bus.Publish(ctx, event.New(event.AgentHeartbeat, "agent", nil, ""))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Fatalf("expected 0 deliveries after unsubscribe, got %d", count)
	}
}

func TestInMemoryBusFilterBlocksEvent(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	bus.AddFilter(func(e event.Event) bool { return e.Source != "blocked" })

	delivered := make(chan struct{}, 1)
	bus.Subscribe(event.Custom, func(ctx context.Context, e event.Event) {
		delivered <- struct{}{}
	})

	bus.Publish(ctx, event.New(event.Custom, "blocked", nil, ""))

	select {
	case <-delivered:
		t.Fatal("expected filtered event to be dropped")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInMemoryBusPanicIsolation(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	errEvents := make(chan event.Event, 1)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) {
		panic("boom")
	})
	bus.Subscribe(event.AgentError, func(ctx context.Context, e event.Event) {
		errEvents <- e
	})

	bus.Publish(ctx, event.New(event.TaskAssigned, "test", nil, ""))

	select {
	case e := <-errEvents:
		if e.Type != event.AgentError {
			t.Fatalf("expected AgentError, got %s", e.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected an AgentError event after handler panic")
	}
}

func TestInMemoryBusHistoryFiltering(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	done := make(chan struct{}, 1)
	bus.Subscribe(event.TaskCreated, func(ctx context.Context, e event.Event) { done <- struct{}{} })

	bus.Publish(ctx, event.New(event.TaskCreated, "alpha", nil, ""))
	<-done
	time.Sleep(50 * time.Millisecond)

	kind := event.TaskCreated
	history := bus.GetHistory(&kind, nil, nil)
	if len(history) != 1 || history[0].Source != "alpha" {
		t.Fatalf("expected 1 history entry from alpha, got %+v", history)
	}

	source := "beta"
	empty := bus.GetHistory(nil, &source, nil)
	if len(empty) != 0 {
		t.Fatalf("expected no history for unseen source, got %+v", empty)
	}
}

func TestInMemoryBusStatistics(t *testing.T) {
	bus := NewInMemoryBus(nil)
	ctx := context.Background()
	bus.Start(ctx)
	defer bus.Stop(ctx)

	bus.Subscribe(event.TaskCreated, func(ctx context.Context, e event.Event) {})
	bus.AddFilter(func(e event.Event) bool { return true })

	stats := bus.GetStatistics()
	if stats.SubscriberCount != 1 {
		t.Fatalf("expected 1 subscriber, got %d", stats.SubscriberCount)
	}
	if stats.FilterCount != 1 {
		t.Fatalf("expected 1 filter, got %d", stats.FilterCount)
	}
	if !stats.Running {
		t.Fatal("expected Running to be true after Start")
	}
}
