package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
)

func newTestBus(t *testing.T) eventbus.Bus {
	t.Helper()
	bus := eventbus.NewInMemoryBus(nil)
	if err := bus.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return bus
}

func TestRuntimeDispatchesAssignedTask(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	completed := make(chan event.Event, 1)
	bus.Subscribe(event.TaskCompleted, func(ctx context.Context, e event.Event) {
		completed <- e
	})

	rt := New(Config{Name: "backend_agent"}, bus, nil, func(ctx context.Context, task TaskData) (Result, error) {
		return Result{Status: "success", Action: "created", Path: "api/handler.go"}, nil
	})
	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	bus.PublishTaskEvent(ctx, event.TaskAssigned, "task-1", "orchestrator", map[string]interface{}{
		"assigned_agent": "backend_agent",
		"description":    "build an endpoint",
	})

	select {
	case e := <-completed:
		if e.Data["action"] != "created" {
			t.Fatalf("expected action created, got %+v", e.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TaskCompleted")
	}
}

func TestRuntimeIgnoresTasksForOtherAgents(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	called := make(chan struct{}, 1)
	rt := New(Config{Name: "backend_agent"}, bus, nil, func(ctx context.Context, task TaskData) (Result, error) {
		called <- struct{}{}
		return Result{Status: "success"}, nil
	})
	rt.Start(ctx)

	bus.PublishTaskEvent(ctx, event.TaskAssigned, "task-2", "orchestrator", map[string]interface{}{
		"assigned_agent": "frontend_agent",
	})

	select {
	case <-called:
		t.Fatal("expected process_task not to be invoked for another agent's task")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRuntimePublishesTaskFailedOnError(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	failed := make(chan event.Event, 1)
	bus.Subscribe(event.TaskFailed, func(ctx context.Context, e event.Event) { failed <- e })

	rt := New(Config{Name: "qa_agent"}, bus, nil, func(ctx context.Context, task TaskData) (Result, error) {
		return Result{}, errors.New("provider unavailable")
	})
	rt.Start(ctx)

	bus.PublishTaskEvent(ctx, event.TaskAssigned, "task-3", "orchestrator", map[string]interface{}{
		"assigned_agent": "qa_agent",
	})

	select {
	case e := <-failed:
		if e.Data["error"] != "provider unavailable" {
			t.Fatalf("expected the error message embedded, got %+v", e.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for TaskFailed")
	}
}

func TestRuntimeHeartbeatReportsActiveTasks(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	release := make(chan struct{})
	rt := New(Config{Name: "devops_agent"}, bus, nil, func(ctx context.Context, task TaskData) (Result, error) {
		<-release
		return Result{Status: "success"}, nil
	})
	rt.Start(ctx)

	bus.PublishTaskEvent(ctx, event.TaskAssigned, "task-4", "orchestrator", map[string]interface{}{
		"assigned_agent": "devops_agent",
	})
	time.Sleep(100 * time.Millisecond)

	heartbeat := make(chan event.Event, 1)
	bus.Subscribe(event.AgentHeartbeat, func(ctx context.Context, e event.Event) { heartbeat <- e })
	bus.Publish(ctx, event.New(event.SystemHealthCheck, "orchestrator", nil, ""))

	select {
	case e := <-heartbeat:
		if e.Data["active_tasks"] != 1 {
			t.Fatalf("expected active_tasks 1, got %+v", e.Data["active_tasks"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for AgentHeartbeat")
	}

	close(release)
}

func TestRuntimeShutdownStopsNewDispatch(t *testing.T) {
	bus := newTestBus(t)
	ctx := context.Background()

	called := make(chan struct{}, 1)
	rt := New(Config{Name: "docs_agent"}, bus, nil, func(ctx context.Context, task TaskData) (Result, error) {
		called <- struct{}{}
		return Result{Status: "success"}, nil
	})
	rt.Start(ctx)

	bus.Publish(ctx, event.New(event.SystemShutdown, "orchestrator", nil, ""))
	time.Sleep(50 * time.Millisecond)

	bus.PublishTaskEvent(ctx, event.TaskAssigned, "task-5", "orchestrator", map[string]interface{}{
		"assigned_agent": "docs_agent",
	})

	select {
	case <-called:
		t.Fatal("expected no task dispatch after shutdown")
	case <-time.After(200 * time.Millisecond):
	}

	if rt.IsRunning() {
		t.Fatal("expected IsRunning() to be false after shutdown")
	}
}
