// Package orchestrator is the control plane (§4.7): feature
// decomposition, assignment bookkeeping, retry policy, stalled-task
// recovery, and feature completion/blocking detection.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskforge/maf/internal/agent"
	"github.com/taskforge/maf/internal/cronsched"
	"github.com/taskforge/maf/internal/decomposer"
	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/observability"
	"github.com/taskforge/maf/internal/store"
)

// Name is the orchestrator's fixed agent identity.
const Name = "orchestrator"

// Config configures the orchestrator's policy knobs, all overridable
// via internal/config.AppConfig (§6.5).
type Config struct {
	MaxRetries        int
	StallTimeout      time.Duration
	CleanupRetention  time.Duration
	HealthInterval    time.Duration
	RecoveryInterval  time.Duration
	CleanupInterval   time.Duration
}

// Orchestrator embeds the uniform agent runtime for its own lifecycle
// (§4.6) and layers the control-plane subscriptions of §4.7 on top.
type Orchestrator struct {
	cfg        Config
	runtime    *agent.Runtime
	bus        eventbus.Bus
	store      *store.Manager
	decomposer decomposer.Decomposer
	obs        *observability.Observability
	sched      *cronsched.Scheduler

	mu       sync.Mutex
	assigned map[string]struct{}
}

// New builds an Orchestrator. obs may be nil.
func New(cfg Config, bus eventbus.Bus, st *store.Manager, dec decomposer.Decomposer, obs *observability.Observability) *Orchestrator {
	o := &Orchestrator{
		cfg:        cfg,
		bus:        bus,
		store:      st,
		decomposer: dec,
		obs:        obs,
		assigned:   make(map[string]struct{}),
	}
	o.runtime = agent.New(agent.Config{Name: Name}, bus, obs, o.processTask)
	return o
}

// Start subscribes to the base (§4.6) and control-plane (§4.7) event
// kinds, publishes AgentStarted, and launches the periodic maintenance
// driver.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.runtime.Start(ctx); err != nil {
		return err
	}

	o.runtime.Subscribe(event.FeatureCreated, o.handleFeatureCreated)
	o.runtime.Subscribe(event.TaskStarted, o.handleTaskStarted)
	o.runtime.Subscribe(event.TaskCompleted, o.handleTaskCompleted)
	o.runtime.Subscribe(event.TaskFailed, o.handleTaskFailed)
	o.runtime.Subscribe(event.AgentError, o.handleAgentError)
	o.runtime.Subscribe(event.Custom, o.handleCustom)

	o.sched = cronsched.New(o.logger())
	if err := o.sched.Every("health_check", o.cfg.HealthInterval, func() { o.runHealthCheck(context.Background()) }); err != nil {
		return err
	}
	if err := o.sched.Every("recovery_and_retry", o.cfg.RecoveryInterval, func() { o.runRecoveryAndRetry(context.Background()) }); err != nil {
		return err
	}
	if err := o.sched.Every("cleanup", o.cfg.CleanupInterval, func() { o.runCleanup(context.Background()) }); err != nil {
		return err
	}
	o.sched.Start()

	return nil
}

// Stop stops the maintenance driver and the embedded runtime's
// subscriptions.
func (o *Orchestrator) Stop() {
	if o.sched != nil {
		o.sched.Stop()
	}
	o.runtime.Stop()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.obs != nil {
		return o.obs.Logger
	}
	return slog.Default()
}

// processTask satisfies agent.ProcessTask for completeness; the
// orchestrator is driven by events, not direct task assignment, so
// this is reached only if a decomposer ever assigns the "orchestrator"
// role itself, which the allow-list (AvailableAgents) excludes.
func (o *Orchestrator) processTask(ctx context.Context, task agent.TaskData) (agent.Result, error) {
	return agent.Result{Status: "success", Message: fmt.Sprintf("orchestrator observed task %s", task.TaskID)}, nil
}

func (o *Orchestrator) handleFeatureCreated(ctx context.Context, e event.Event) {
	featureID := stringField(e.Data, "feature_id")
	if featureID == "" {
		featureID = e.CorrelationID
	}
	if featureID == "" {
		featureID = e.ID
	}
	description := stringField(e.Data, "description")
	o.decomposeAndAssign(ctx, featureID, description)
}

func (o *Orchestrator) handleCustom(ctx context.Context, e event.Event) {
	if e.EventName() != "new_feature_request" {
		return
	}
	description := stringField(e.Data, "description")
	if description == "" {
		return
	}
	featureID := stringField(e.Data, "feature_id")
	if featureID == "" {
		featureID = e.ID
	}
	o.decomposeAndAssign(ctx, featureID, description)
}

// decomposeAndAssign implements the feature decomposition flow of
// §4.7, including the duplicate-FeatureCreated guard of scenario 5:
// a feature id already present in the store is not decomposed again.
func (o *Orchestrator) decomposeAndAssign(ctx context.Context, featureID, description string) {
	if _, exists := o.store.GetFeature(featureID); exists {
		return
	}
	if err := o.store.AddFeatureWithID(featureID, description); err != nil {
		o.logger().Error("orchestrator: record feature", "feature_id", featureID, "error", err)
		return
	}
	if err := o.store.SetFeatureStatus(featureID, store.FeatureInProgress); err != nil {
		o.logger().Error("orchestrator: set feature in_progress", "feature_id", featureID, "error", err)
	}
	_ = o.bus.Publish(ctx, event.New(event.FeatureStarted, Name, map[string]interface{}{
		"feature_id": featureID, "description": description,
	}, featureID))

	specs, err := o.decomposer.Decompose(ctx, description)
	if err != nil {
		o.logger().Error("orchestrator: decompose feature failed", "feature_id", featureID, "error", err)
		o.failFeature(featureID)
		return
	}

	assignedAny := false
	for _, spec := range specs {
		role := NormalizeRole(spec.Role)
		if !isAvailableAgent(role) {
			o.logger().Warn("orchestrator: unrecognized agent role in decomposition", "role", spec.Role, "description", spec.Description)
			continue
		}

		taskID, err := o.store.AddTask(featureID, spec.Description, role)
		if err != nil {
			o.logger().Error("orchestrator: record task", "feature_id", featureID, "error", err)
			continue
		}
		o.assignTask(ctx, taskID, featureID, spec.Description, role)
		assignedAny = true
	}

	if !assignedAny {
		o.failFeature(featureID)
	}
}

func (o *Orchestrator) failFeature(featureID string) {
	if err := o.store.SetFeatureStatus(featureID, store.FeatureFailed); err != nil {
		o.logger().Error("orchestrator: set feature failed", "feature_id", featureID, "error", err)
	}
}

// assignTask publishes TaskAssigned for taskID unless it is already
// outstanding, enforcing the duplicate-assignment guard of §4.7.
func (o *Orchestrator) assignTask(ctx context.Context, taskID, featureID, description, role string) {
	o.mu.Lock()
	if _, dup := o.assigned[taskID]; dup {
		o.mu.Unlock()
		return
	}
	o.assigned[taskID] = struct{}{}
	o.mu.Unlock()

	_ = o.bus.PublishTaskEvent(ctx, event.TaskAssigned, taskID, Name, map[string]interface{}{
		"feature_id":     featureID,
		"description":    description,
		"assigned_agent": role,
	})
}

func (o *Orchestrator) clearAssigned(taskID string) {
	o.mu.Lock()
	delete(o.assigned, taskID)
	o.mu.Unlock()
}

func (o *Orchestrator) handleTaskStarted(ctx context.Context, e event.Event) {
	taskID := stringField(e.Data, "task_id")
	if taskID == "" {
		taskID = e.CorrelationID
	}
	if taskID == "" {
		return
	}
	// A task recovered as stalled may run twice (§5); the second
	// TaskStarted for an already-InProgress task is a legal no-op.
	if err := o.store.UpdateTaskStatus(taskID, store.TaskInProgress, "", ""); err != nil {
		o.logger().Info("orchestrator: task already in progress", "task_id", taskID)
		return
	}
	if o.obs != nil {
		o.obs.MetricsManager.AdjustTasksInProgress(ctx, 1)
	}
}

func (o *Orchestrator) handleTaskCompleted(ctx context.Context, e event.Event) {
	taskID := stringField(e.Data, "task_id")
	if taskID == "" {
		taskID = e.CorrelationID
	}
	task, ok := o.store.GetTask(taskID)
	if !ok {
		return
	}
	if task.Status == store.TaskCompleted || task.Status == store.TaskPermanentlyFailed {
		return
	}

	output := resultJSON(e.Data)
	if err := o.store.UpdateTaskStatus(taskID, store.TaskCompleted, output, ""); err != nil {
		o.logger().Error("orchestrator: mark task completed", "task_id", taskID, "error", err)
		return
	}
	o.clearAssigned(taskID)
	o.logger().Info("orchestrator: task completed", "task_id", taskID, "agent", e.Source)
	if o.obs != nil {
		o.obs.MetricsManager.AdjustTasksInProgress(ctx, -1)
		o.obs.MetricsManager.IncrementTasksCompleted(ctx, task.AssignedAgent)
	}

	o.checkFeatureCompletion(ctx, task.FeatureID)
}

func (o *Orchestrator) handleTaskFailed(ctx context.Context, e event.Event) {
	taskID := stringField(e.Data, "task_id")
	if taskID == "" {
		taskID = e.CorrelationID
	}
	task, ok := o.store.GetTask(taskID)
	if !ok {
		return
	}
	if task.Status == store.TaskCompleted || task.Status == store.TaskPermanentlyFailed {
		return
	}

	errMsg := stringField(e.Data, "error")
	if errMsg == "" {
		errMsg = "unknown error"
	}
	if err := o.store.UpdateTaskStatus(taskID, store.TaskFailed, "", errMsg); err != nil {
		o.logger().Error("orchestrator: mark task failed", "task_id", taskID, "error", err)
		return
	}
	if o.obs != nil {
		o.obs.MetricsManager.AdjustTasksInProgress(ctx, -1)
		o.obs.MetricsManager.IncrementTasksFailed(ctx, task.AssignedAgent)
	}

	refreshed, ok := o.store.GetTask(taskID)
	if !ok {
		return
	}

	if refreshed.RetryCount < o.cfg.MaxRetries {
		o.logger().Info("orchestrator: retrying task", "task_id", taskID, "retry_count", refreshed.RetryCount, "max_retries", o.cfg.MaxRetries)
		// Reset to Pending so the reprocessing triggered by TaskRetry
		// transitions to InProgress/Completed legally (§3.2's table has
		// no direct Failed->InProgress edge).
		if err := o.store.UpdateTaskStatus(taskID, store.TaskPending, "", ""); err != nil {
			o.logger().Error("orchestrator: reset task to pending for retry", "task_id", taskID, "error", err)
			return
		}
		if o.obs != nil {
			o.obs.MetricsManager.IncrementTasksRetried(ctx, refreshed.AssignedAgent)
		}
		_ = o.bus.PublishTaskEvent(ctx, event.TaskRetry, taskID, Name, map[string]interface{}{
			"feature_id":      refreshed.FeatureID,
			"description":     refreshed.Description,
			"assigned_agent":  refreshed.AssignedAgent,
			"retry_count":     refreshed.RetryCount,
			"previous_error":  errMsg,
		})
		return
	}

	o.logger().Error("orchestrator: task permanently failed", "task_id", taskID, "retries", refreshed.RetryCount)
	if err := o.store.UpdateTaskStatus(taskID, store.TaskPermanentlyFailed, "", ""); err != nil {
		o.logger().Error("orchestrator: mark task permanently failed", "task_id", taskID, "error", err)
		return
	}
	if o.obs != nil {
		o.obs.MetricsManager.IncrementTasksPermanentlyFailed(ctx, refreshed.AssignedAgent)
	}
	o.clearAssigned(taskID)
	o.checkFeatureCompletion(ctx, refreshed.FeatureID)
}

func (o *Orchestrator) handleAgentError(ctx context.Context, e event.Event) {
	o.logger().Warn("orchestrator: agent error", "agent", e.Source, "error", stringField(e.Data, "error"))
}

// checkFeatureCompletion implements §3.3/§4.7's completion and
// blocking detection: it is driven by store reads, not by the order
// events arrived in (§5).
func (o *Orchestrator) checkFeatureCompletion(ctx context.Context, featureID string) {
	if featureID == "" {
		return
	}
	tasks := o.store.GetFeatureTasks(featureID)
	if len(tasks) == 0 {
		return
	}

	allCompleted := true
	anyNonTerminal := false
	failedCount := 0
	for _, t := range tasks {
		switch t.Status {
		case store.TaskCompleted:
		case store.TaskPermanentlyFailed:
			allCompleted = false
			failedCount++
		default:
			allCompleted = false
			anyNonTerminal = true
		}
	}

	feature, ok := o.store.GetFeature(featureID)
	if !ok {
		return
	}

	switch {
	case allCompleted:
		if feature.Status == store.FeatureCompleted {
			return
		}
		if err := o.store.SetFeatureStatus(featureID, store.FeatureCompleted); err != nil {
			o.logger().Error("orchestrator: mark feature completed", "feature_id", featureID, "error", err)
			return
		}
		o.logger().Info("orchestrator: feature completed", "feature_id", featureID)
		if o.obs != nil {
			o.obs.MetricsManager.IncrementFeaturesCompleted(ctx)
		}
		_ = o.bus.Publish(ctx, event.New(event.FeatureCompleted, Name, map[string]interface{}{
			"feature_id": featureID, "task_count": len(tasks),
		}, featureID))

	case failedCount > 0 && !anyNonTerminal:
		if feature.Status == store.FeatureBlocked {
			return
		}
		if err := o.store.SetFeatureStatus(featureID, store.FeatureBlocked); err != nil {
			o.logger().Error("orchestrator: mark feature blocked", "feature_id", featureID, "error", err)
			return
		}
		o.logger().Error("orchestrator: feature blocked", "feature_id", featureID, "failed_tasks", failedCount)
		if o.obs != nil {
			o.obs.MetricsManager.IncrementFeaturesBlocked(ctx)
		}
		o.bus.Publish(ctx, event.New(event.FeatureBlocked, Name, map[string]interface{}{
			"feature_id": featureID, "failed_tasks": failedCount,
		}, featureID))
	}
}

// runHealthCheck is the 5-minute maintenance tick (§4.7): it reports
// the store's health and publishes SystemHealthCheck so agents reply
// with heartbeats.
func (o *Orchestrator) runHealthCheck(ctx context.Context) {
	report := o.store.TaskHealthCheck()
	if report.Healthy {
		o.logger().Info("orchestrator: health check", "total_tasks", report.TotalTasks, "status_counts", report.StatusCounts)
	} else {
		o.logger().Warn("orchestrator: health check found issues",
			"stalled", len(report.StalledTasks), "failed", len(report.FailedTasks),
			"long_running", len(report.LongRunningTasks), "issues", report.Issues)
	}
	_ = o.bus.Publish(ctx, event.New(event.SystemHealthCheck, Name, nil, ""))
}

// runRecoveryAndRetry is the 10-minute maintenance tick (§4.7): it
// resets stalled tasks to Pending and applies retry policy to Failed
// tasks, re-publishing TaskAssigned for everything returned to
// Pending.
func (o *Orchestrator) runRecoveryAndRetry(ctx context.Context) {
	recovered, err := o.store.RecoverStalledTasks(o.cfg.StallTimeout)
	if err != nil {
		o.logger().Error("orchestrator: recover stalled tasks", "error", err)
	}
	if o.obs != nil {
		o.obs.MetricsManager.IncrementTasksRecovered(ctx, int64(len(recovered)))
	}
	for _, taskID := range recovered {
		o.logger().Info("orchestrator: recovered stalled task", "task_id", taskID)
		o.clearAssigned(taskID)
		if o.obs != nil {
			o.obs.MetricsManager.AdjustTasksInProgress(ctx, -1)
		}
		o.reassign(ctx, taskID)
	}

	retried, err := o.store.RetryFailedTasks(o.cfg.MaxRetries)
	if err != nil {
		o.logger().Error("orchestrator: retry failed tasks", "error", err)
	}
	for _, taskID := range retried {
		o.logger().Info("orchestrator: retrying failed task", "task_id", taskID)
		o.clearAssigned(taskID)
		o.reassign(ctx, taskID)
	}
}

func (o *Orchestrator) reassign(ctx context.Context, taskID string) {
	task, ok := o.store.GetTask(taskID)
	if !ok {
		return
	}
	o.assignTask(ctx, taskID, task.FeatureID, task.Description, task.AssignedAgent)
}

// runCleanup is the 24-hour maintenance tick (§4.7).
func (o *Orchestrator) runCleanup(ctx context.Context) {
	removed, err := o.store.CleanupCompletedTasks(o.cfg.CleanupRetention)
	if err != nil {
		o.logger().Error("orchestrator: cleanup completed tasks", "error", err)
		return
	}
	if removed > 0 {
		o.logger().Info("orchestrator: cleaned up completed tasks", "removed", removed)
	}
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// resultJSON re-encodes an agent's canonical result payload (status,
// path, action, message) embedded in a TaskCompleted event's data as
// the task's persisted Output string.
func resultJSON(data map[string]interface{}) string {
	result := map[string]interface{}{}
	for _, k := range []string{"status", "path", "action", "message"} {
		if v, ok := data[k]; ok {
			result[k] = v
		}
	}
	if len(result) == 0 {
		return ""
	}
	b, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(b)
}
