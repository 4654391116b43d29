package orchestrator

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/taskforge/maf/internal/decomposer"
	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/store"
)

// fakeDecomposer returns a fixed list of TaskSpecs (or an error) and
// counts invocations, standing in for an llm.Client-backed Decomposer.
type fakeDecomposer struct {
	specs []decomposer.TaskSpec
	err   error
	calls int32
}

func (f *fakeDecomposer) Decompose(ctx context.Context, description string) ([]decomposer.TaskSpec, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.specs, f.err
}

func newTestBus(t *testing.T) eventbus.Bus {
	t.Helper()
	bus := eventbus.NewInMemoryBus(nil)
	if err := bus.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { bus.Stop(context.Background()) })
	return bus
}

func newTestStore(t *testing.T) *store.Manager {
	t.Helper()
	return store.New(filepath.Join(t.TempDir(), "state.json"), 30*time.Minute, 3)
}

// testConfig uses hour-long cron intervals so background maintenance
// never fires during a test's lifetime.
func testConfig(maxRetries int) Config {
	return Config{
		MaxRetries:       maxRetries,
		StallTimeout:     30 * time.Minute,
		CleanupRetention: 7 * 24 * time.Hour,
		HealthInterval:   time.Hour,
		RecoveryInterval: time.Hour,
		CleanupInterval:  time.Hour,
	}
}

func startOrchestrator(t *testing.T, bus eventbus.Bus, st *store.Manager, dec decomposer.Decomposer, cfg Config) *Orchestrator {
	t.Helper()
	o := New(cfg, bus, st, dec, nil)
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(o.Stop)
	return o
}

// waitForTaskStatus polls the store until taskID reaches status,
// needed because the in-memory bus dispatches each event's handlers
// in their own goroutine without inter-event ordering guarantees.
func waitForTaskStatus(t *testing.T, st *store.Manager, taskID string, status store.TaskStatus) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		task, ok := st.GetTask(taskID)
		if ok && task.Status == status {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("task %s never reached status %s, last status %+v ok=%v", taskID, status, task, ok)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func waitFor(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event.Event{}
	}
}

func TestOrchestratorHappyPath(t *testing.T) {
	bus := newTestBus(t)
	st := newTestStore(t)
	dec := &fakeDecomposer{specs: []decomposer.TaskSpec{
		{Role: "frontend_agent", Description: "build the login form"},
		{Role: "backend_agent", Description: "build the login API"},
	}}
	startOrchestrator(t, bus, st, dec, testConfig(3))

	assigned := make(chan event.Event, 4)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) { assigned <- e })
	completedFeature := make(chan event.Event, 1)
	bus.Subscribe(event.FeatureCompleted, func(ctx context.Context, e event.Event) { completedFeature <- e })

	ctx := context.Background()
	bus.Publish(ctx, event.New(event.FeatureCreated, "client", map[string]interface{}{
		"feature_id":  "feature-1",
		"description": "add login",
	}, "feature-1"))

	first := waitFor(t, assigned)
	second := waitFor(t, assigned)

	for _, e := range []event.Event{first, second} {
		taskID, _ := e.Data["task_id"].(string)
		if taskID == "" {
			t.Fatalf("expected task_id in TaskAssigned data, got %+v", e.Data)
		}
		agentName := e.Data["assigned_agent"].(string)
		bus.PublishTaskEvent(ctx, event.TaskStarted, taskID, agentName, nil)
		waitForTaskStatus(t, st, taskID, store.TaskInProgress)
		bus.PublishTaskEvent(ctx, event.TaskCompleted, taskID, agentName, map[string]interface{}{
			"status": "success", "action": "created",
		})
	}

	fe := waitFor(t, completedFeature)
	if fe.CorrelationID != "feature-1" {
		t.Fatalf("expected FeatureCompleted correlation_id feature-1, got %s", fe.CorrelationID)
	}

	feature, ok := st.GetFeature("feature-1")
	if !ok || feature.Status != store.FeatureCompleted {
		t.Fatalf("expected feature-1 Completed, got %+v ok=%v", feature, ok)
	}
}

func TestOrchestratorRetryThenSuccess(t *testing.T) {
	bus := newTestBus(t)
	st := newTestStore(t)
	dec := &fakeDecomposer{specs: []decomposer.TaskSpec{
		{Role: "backend_agent", Description: "build the API"},
	}}
	startOrchestrator(t, bus, st, dec, testConfig(3))

	assigned := make(chan event.Event, 4)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) { assigned <- e })
	retried := make(chan event.Event, 1)
	bus.Subscribe(event.TaskRetry, func(ctx context.Context, e event.Event) { retried <- e })

	ctx := context.Background()
	bus.Publish(ctx, event.New(event.FeatureCreated, "client", map[string]interface{}{
		"feature_id": "feature-2", "description": "add a widget",
	}, "feature-2"))

	first := waitFor(t, assigned)
	taskID := first.Data["task_id"].(string)

	bus.PublishTaskEvent(ctx, event.TaskStarted, taskID, "backend_agent", nil)
	waitForTaskStatus(t, st, taskID, store.TaskInProgress)

	bus.PublishTaskEvent(ctx, event.TaskFailed, taskID, "backend_agent", map[string]interface{}{"error": "timeout"})
	retryEvt := waitFor(t, retried)
	if retryEvt.Data["retry_count"].(int) != 1 {
		t.Fatalf("expected retry_count 1, got %+v", retryEvt.Data)
	}

	// The orchestrator resets to Pending on retry so the next
	// TaskStarted/TaskCompleted pair transitions legally.
	waitForTaskStatus(t, st, taskID, store.TaskPending)

	bus.PublishTaskEvent(ctx, event.TaskStarted, taskID, "backend_agent", nil)
	waitForTaskStatus(t, st, taskID, store.TaskInProgress)
	bus.PublishTaskEvent(ctx, event.TaskCompleted, taskID, "backend_agent", map[string]interface{}{"status": "success"})

	waitForTaskStatus(t, st, taskID, store.TaskCompleted)
}

func TestOrchestratorPermanentFailureBlocksFeature(t *testing.T) {
	bus := newTestBus(t)
	st := newTestStore(t)
	dec := &fakeDecomposer{specs: []decomposer.TaskSpec{
		{Role: "backend_agent", Description: "build the API"},
	}}
	startOrchestrator(t, bus, st, dec, testConfig(2))

	assigned := make(chan event.Event, 4)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) { assigned <- e })
	blocked := make(chan event.Event, 1)
	bus.Subscribe(event.FeatureBlocked, func(ctx context.Context, e event.Event) { blocked <- e })

	ctx := context.Background()
	bus.Publish(ctx, event.New(event.FeatureCreated, "client", map[string]interface{}{
		"feature_id": "feature-3", "description": "add a report",
	}, "feature-3"))

	first := waitFor(t, assigned)
	taskID := first.Data["task_id"].(string)

	// MaxRetries is 2: first failure retries (publishing TaskRetry, which
	// a live role runtime would pick up and reprocess), second exhausts
	// retries and blocks the feature.
	retried := make(chan event.Event, 1)
	bus.Subscribe(event.TaskRetry, func(ctx context.Context, e event.Event) { retried <- e })

	bus.PublishTaskEvent(ctx, event.TaskStarted, taskID, "backend_agent", nil)
	waitForTaskStatus(t, st, taskID, store.TaskInProgress)
	bus.PublishTaskEvent(ctx, event.TaskFailed, taskID, "backend_agent", map[string]interface{}{"error": "boom"})
	waitFor(t, retried)
	waitForTaskStatus(t, st, taskID, store.TaskPending)

	bus.PublishTaskEvent(ctx, event.TaskStarted, taskID, "backend_agent", nil)
	waitForTaskStatus(t, st, taskID, store.TaskInProgress)
	bus.PublishTaskEvent(ctx, event.TaskFailed, taskID, "backend_agent", map[string]interface{}{"error": "boom again"})

	be := waitFor(t, blocked)
	if be.CorrelationID != "feature-3" {
		t.Fatalf("expected FeatureBlocked correlation_id feature-3, got %s", be.CorrelationID)
	}

	task, ok := st.GetTask(taskID)
	if !ok || task.Status != store.TaskPermanentlyFailed {
		t.Fatalf("expected task PermanentlyFailed, got %+v", task)
	}
}

func TestOrchestratorDuplicateAssignmentGuard(t *testing.T) {
	bus := newTestBus(t)
	st := newTestStore(t)
	dec := &fakeDecomposer{specs: []decomposer.TaskSpec{
		{Role: "backend_agent", Description: "build the API"},
	}}
	o := startOrchestrator(t, bus, st, dec, testConfig(3))

	assigned := make(chan event.Event, 4)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) { assigned <- e })

	ctx := context.Background()
	bus.Publish(ctx, event.New(event.FeatureCreated, "client", map[string]interface{}{
		"feature_id": "feature-4", "description": "add a thing",
	}, "feature-4"))

	first := waitFor(t, assigned)
	taskID := first.Data["task_id"].(string)

	// A second assignment attempt for the same task id must be dropped.
	o.assignTask(ctx, taskID, "feature-4", "add a thing", "backend_agent")

	select {
	case e := <-assigned:
		t.Fatalf("expected no duplicate TaskAssigned, got %+v", e.Data)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOrchestratorIgnoresDuplicateFeatureCreated(t *testing.T) {
	bus := newTestBus(t)
	st := newTestStore(t)
	dec := &fakeDecomposer{specs: []decomposer.TaskSpec{
		{Role: "backend_agent", Description: "build the API"},
	}}
	startOrchestrator(t, bus, st, dec, testConfig(3))

	assigned := make(chan event.Event, 4)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) { assigned <- e })

	ctx := context.Background()
	evt := event.New(event.FeatureCreated, "client", map[string]interface{}{
		"feature_id": "feature-5", "description": "add a thing",
	}, "feature-5")
	bus.Publish(ctx, evt)
	waitFor(t, assigned)

	bus.Publish(ctx, evt)

	select {
	case e := <-assigned:
		t.Fatalf("expected no second decomposition for duplicate FeatureCreated, got %+v", e.Data)
	case <-time.After(200 * time.Millisecond):
	}

	if atomic.LoadInt32(&dec.calls) != 1 {
		t.Fatalf("expected decomposer called once, got %d", dec.calls)
	}
}

func TestOrchestratorDropsUnrecognizedRole(t *testing.T) {
	bus := newTestBus(t)
	st := newTestStore(t)
	dec := &fakeDecomposer{specs: []decomposer.TaskSpec{
		{Role: "astrology_agent", Description: "read the stars"},
	}}
	startOrchestrator(t, bus, st, dec, testConfig(3))

	failedFeature := make(chan event.Event, 1)
	bus.Subscribe(event.FeatureBlocked, func(ctx context.Context, e event.Event) { failedFeature <- e })

	assigned := make(chan event.Event, 1)
	bus.Subscribe(event.TaskAssigned, func(ctx context.Context, e event.Event) { assigned <- e })

	ctx := context.Background()
	bus.Publish(ctx, event.New(event.FeatureCreated, "client", map[string]interface{}{
		"feature_id": "feature-6", "description": "something odd",
	}, "feature-6"))

	select {
	case e := <-assigned:
		t.Fatalf("expected unrecognized role to never be assigned, got %+v", e.Data)
	case <-time.After(200 * time.Millisecond):
	}

	deadline := time.After(2 * time.Second)
	for {
		feature, ok := st.GetFeature("feature-6")
		if ok && feature.Status == store.FeatureFailed {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected feature-6 to end Failed, got %+v ok=%v", feature, ok)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
