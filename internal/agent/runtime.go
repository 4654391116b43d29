// Package agent provides the uniform runtime base every specialized
// agent embeds: lifecycle, subscription hygiene, per-task dispatch,
// heartbeat reply, and graceful shutdown (§4.6). Role logic is
// delegated to a single overridable operation, ProcessTask.
package agent

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/observability"
)

// TaskData is the role-dependent payload carried by a TaskAssigned or
// TaskRetry event's data map, normalized for ProcessTask.
type TaskData struct {
	TaskID        string
	FeatureID     string
	Description   string
	AssignedAgent string
	CorrelationID string
}

// Result is the canonical shape a ProcessTask implementation returns,
// embedded verbatim as the TaskCompleted payload (§4.8).
type Result struct {
	Status  string `json:"status"`
	Path    string `json:"path,omitempty"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message,omitempty"`
}

// ProcessTask performs the role-specific work for one task. An error
// return causes the runtime to publish TaskFailed with the error's
// message, never the error's Go type.
type ProcessTask func(ctx context.Context, task TaskData) (Result, error)

// Config configures a Runtime.
type Config struct {
	// Name is this agent's identity, matched against data.assigned_agent
	// on incoming TaskAssigned/TaskRetry events.
	Name string
}

// Runtime is the base every specialized agent shell embeds (§4.6).
type Runtime struct {
	config      Config
	bus         eventbus.Bus
	obs         *observability.Observability
	processTask ProcessTask

	mu          sync.Mutex
	activeTasks map[string]struct{}
	running     bool

	subs []subRef
}

type subRef struct {
	kind event.Kind
	sub  eventbus.Subscription
}

// New builds a Runtime bound to bus, logging/tracing through obs (may
// be nil), and delegating task execution to processTask.
func New(config Config, bus eventbus.Bus, obs *observability.Observability, processTask ProcessTask) *Runtime {
	return &Runtime{
		config:      config,
		bus:         bus,
		obs:         obs,
		processTask: processTask,
		activeTasks: make(map[string]struct{}),
	}
}

// Start subscribes to the base kinds, marks the runtime running, and
// publishes AgentStarted. Further kinds are added with Subscribe.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	r.subscribe(event.SystemShutdown, r.handleShutdown)
	r.subscribe(event.TaskAssigned, r.handleTaskAssignment)
	r.subscribe(event.TaskRetry, r.handleTaskAssignment)
	r.subscribe(event.SystemHealthCheck, r.handleHealthCheck)

	return r.bus.PublishTaskEvent(ctx, event.AgentStarted, "", r.config.Name, map[string]interface{}{
		"agent": r.config.Name,
	})
}

// Subscribe lets an embedding role (the orchestrator) register a
// handler for a kind beyond the §4.6 base set.
func (r *Runtime) Subscribe(kind event.Kind, handler eventbus.Handler) {
	r.subscribe(kind, handler)
}

func (r *Runtime) subscribe(kind event.Kind, handler eventbus.Handler) {
	sub := r.bus.Subscribe(kind, handler)
	r.subs = append(r.subs, subRef{kind: kind, sub: sub})
}

// Stop releases this runtime's bus subscriptions. Call it only after
// the caller is certain no further events should reach this agent
// (e.g. process teardown); ordinary shutdown is the SystemShutdown
// event handled by handleShutdown.
func (r *Runtime) Stop() {
	for _, s := range r.subs {
		r.bus.Unsubscribe(s.kind, s.sub)
	}
	r.subs = nil
}

// IsRunning reports whether the runtime is accepting new task
// dispatches.
func (r *Runtime) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// ActiveTaskCount returns the current size of the active-task map.
func (r *Runtime) ActiveTaskCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.activeTasks)
}

func (r *Runtime) handleTaskAssignment(ctx context.Context, e event.Event) {
	if !r.IsRunning() {
		return
	}

	assignedAgent, _ := e.Data["assigned_agent"].(string)
	if assignedAgent != r.config.Name {
		return
	}

	taskID, _ := e.Data["task_id"].(string)
	if taskID == "" {
		return
	}

	r.mu.Lock()
	if _, dup := r.activeTasks[taskID]; dup {
		r.mu.Unlock()
		return
	}
	r.activeTasks[taskID] = struct{}{}
	r.mu.Unlock()

	task := TaskData{
		TaskID:        taskID,
		FeatureID:     stringField(e.Data, "feature_id"),
		Description:   stringField(e.Data, "description"),
		AssignedAgent: assignedAgent,
		CorrelationID: e.CorrelationID,
	}

	go r.runTask(ctx, task)
}

func (r *Runtime) runTask(ctx context.Context, task TaskData) {
	defer func() {
		r.mu.Lock()
		delete(r.activeTasks, task.TaskID)
		r.mu.Unlock()
	}()

	var span trace.Span
	if r.obs != nil {
		var taskCtx context.Context
		taskCtx, span = r.obs.TraceManager.StartSpan(ctx, fmt.Sprintf("agent.%s.process_task", r.config.Name))
		r.obs.TraceManager.AddTaskAttributes(span, task.TaskID, r.config.Name, nil)
		ctx = taskCtx
		defer span.End()
	}

	_ = r.bus.PublishTaskEvent(ctx, event.TaskStarted, task.TaskID, r.config.Name, nil)

	result, err := r.processTask(ctx, task)
	if err != nil {
		if r.obs != nil {
			r.obs.Logger.Error("agent: task failed", "agent", r.config.Name, "task_id", task.TaskID, "error", err)
			r.obs.TraceManager.RecordError(span, err)
			r.obs.TraceManager.AddTaskResult(span, "failed", nil, err.Error())
		}
		_ = r.bus.PublishTaskEvent(ctx, event.TaskFailed, task.TaskID, r.config.Name, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if r.obs != nil {
		r.obs.TraceManager.SetSpanSuccess(span)
		r.obs.TraceManager.AddTaskResult(span, result.Status, map[string]interface{}{
			"path":   result.Path,
			"action": result.Action,
		}, "")
	}

	_ = r.bus.PublishTaskEvent(ctx, event.TaskCompleted, task.TaskID, r.config.Name, map[string]interface{}{
		"status":  result.Status,
		"path":    result.Path,
		"action":  result.Action,
		"message": result.Message,
	})
}

func (r *Runtime) handleHealthCheck(ctx context.Context, e event.Event) {
	_ = r.bus.PublishTaskEvent(ctx, event.AgentHeartbeat, "", r.config.Name, map[string]interface{}{
		"agent":        r.config.Name,
		"active_tasks": r.ActiveTaskCount(),
		"status":       "healthy",
	})
}

func (r *Runtime) handleShutdown(ctx context.Context, e event.Event) {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	_ = r.bus.PublishTaskEvent(ctx, event.AgentStopped, "", r.config.Name, map[string]interface{}{
		"agent": r.config.Name,
	})
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
