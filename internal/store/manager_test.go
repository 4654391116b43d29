package store

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return New(path, 30*time.Minute, 3)
}

func TestAddFeatureAndTask(t *testing.T) {
	m := newTestManager(t)

	featureID, err := m.AddFeature("add login flow")
	if err != nil {
		t.Fatalf("AddFeature() error: %v", err)
	}

	taskID, err := m.AddTask(featureID, "build login API", "backend_agent")
	if err != nil {
		t.Fatalf("AddTask() error: %v", err)
	}

	task, ok := m.GetTask(taskID)
	if !ok {
		t.Fatal("expected task to exist")
	}
	if task.Status != TaskPending {
		t.Fatalf("expected new task to be Pending, got %s", task.Status)
	}
	if task.FeatureID != featureID {
		t.Fatalf("expected task.FeatureID %s, got %s", featureID, task.FeatureID)
	}

	features := m.GetFeatureTasks(featureID)
	if _, ok := features[taskID]; !ok {
		t.Fatal("expected GetFeatureTasks to include the new task")
	}
}

func TestUpdateTaskStatusSetsStartedAtOnce(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")

	if err := m.UpdateTaskStatus(taskID, TaskInProgress, "", ""); err != nil {
		t.Fatalf("UpdateTaskStatus() error: %v", err)
	}
	task, _ := m.GetTask(taskID)
	if task.StartedAt == nil {
		t.Fatal("expected StartedAt to be set")
	}
	firstStart := *task.StartedAt

	if err := m.UpdateTaskStatus(taskID, TaskFailed, "", "boom"); err != nil {
		t.Fatalf("UpdateTaskStatus() error: %v", err)
	}
	if err := m.UpdateTaskStatus(taskID, TaskPending, "", ""); err != nil {
		t.Fatalf("UpdateTaskStatus() error: %v", err)
	}
	if err := m.UpdateTaskStatus(taskID, TaskInProgress, "", ""); err != nil {
		t.Fatalf("UpdateTaskStatus() error: %v", err)
	}

	task, _ = m.GetTask(taskID)
	if !task.StartedAt.Equal(firstStart) {
		t.Fatalf("expected StartedAt to be preserved across retry, got %v want %v", task.StartedAt, firstStart)
	}
	if task.RetryCount != 1 {
		t.Fatalf("expected RetryCount 1 after one failure, got %d", task.RetryCount)
	}
}

func TestUpdateTaskStatusRejectsTerminalTransition(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")

	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")
	m.UpdateTaskStatus(taskID, TaskCompleted, "done", "")

	if err := m.UpdateTaskStatus(taskID, TaskPending, "", ""); err == nil {
		t.Fatal("expected error transitioning out of a terminal status")
	}
}

func TestRecoverStalledTasks(t *testing.T) {
	m := newTestManager(t)
	m.stallTimeout = time.Millisecond
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")
	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")

	time.Sleep(5 * time.Millisecond)

	recovered, err := m.RecoverStalledTasks(time.Millisecond)
	if err != nil {
		t.Fatalf("RecoverStalledTasks() error: %v", err)
	}
	if len(recovered) != 1 || recovered[0] != taskID {
		t.Fatalf("expected %s to be recovered, got %v", taskID, recovered)
	}

	task, _ := m.GetTask(taskID)
	if task.Status != TaskPending {
		t.Fatalf("expected recovered task to be Pending, got %s", task.Status)
	}
	if task.LastError != "stalled" {
		t.Fatalf("expected last_error 'stalled', got %q", task.LastError)
	}
}

func TestRetryFailedTasksRespectsMaxRetries(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")
	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")
	m.UpdateTaskStatus(taskID, TaskFailed, "", "err1")
	m.UpdateTaskStatus(taskID, TaskPending, "", "")
	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")
	m.UpdateTaskStatus(taskID, TaskFailed, "", "err2")
	m.UpdateTaskStatus(taskID, TaskPending, "", "")
	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")
	m.UpdateTaskStatus(taskID, TaskFailed, "", "err3")

	task, _ := m.GetTask(taskID)
	if task.RetryCount != 3 {
		t.Fatalf("expected retry_count 3, got %d", task.RetryCount)
	}

	retried, err := m.RetryFailedTasks(3)
	if err != nil {
		t.Fatalf("RetryFailedTasks() error: %v", err)
	}
	if len(retried) != 0 {
		t.Fatalf("expected no tasks retried at the limit, got %v", retried)
	}

	task, _ = m.GetTask(taskID)
	if task.Status != TaskPermanentlyFailed {
		t.Fatalf("expected PermanentlyFailed, got %s", task.Status)
	}
}

func TestTaskHealthCheckHealthyWhenEmpty(t *testing.T) {
	m := newTestManager(t)
	report := m.TaskHealthCheck()
	if !report.Healthy {
		t.Fatalf("expected empty store to be healthy, got %+v", report)
	}
}

func TestTaskHealthCheckDetectsFailedTasks(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")
	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")
	m.UpdateTaskStatus(taskID, TaskFailed, "", "boom")

	report := m.TaskHealthCheck()
	if report.Healthy {
		t.Fatal("expected unhealthy report with a failed task")
	}
	if len(report.FailedTasks) != 1 {
		t.Fatalf("expected 1 failed task, got %d", len(report.FailedTasks))
	}
}

func TestGetPendingTasksByAgentSortsByCreation(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")

	first, _ := m.AddTask(featureID, "first", "backend_agent")
	time.Sleep(2 * time.Millisecond)
	second, _ := m.AddTask(featureID, "second", "backend_agent")

	pending := m.GetPendingTasksByAgent("backend_agent")
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", len(pending))
	}
	if pending[0].TaskID != first || pending[1].TaskID != second {
		t.Fatalf("expected oldest-first order, got %+v", pending)
	}
}

func TestCleanupCompletedTasks(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")
	m.UpdateTaskStatus(taskID, TaskInProgress, "", "")
	m.UpdateTaskStatus(taskID, TaskCompleted, "done", "")

	removed, err := m.CleanupCompletedTasks(0)
	if err != nil {
		t.Fatalf("CleanupCompletedTasks() error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 task removed, got %d", removed)
	}
	if _, ok := m.GetTask(taskID); ok {
		t.Fatal("expected task to be removed from the table")
	}
}

func TestGetTaskStatistics(t *testing.T) {
	m := newTestManager(t)
	featureID, _ := m.AddFeature("f")
	a, _ := m.AddTask(featureID, "a", "backend_agent")
	b, _ := m.AddTask(featureID, "b", "backend_agent")

	m.UpdateTaskStatus(a, TaskInProgress, "", "")
	m.UpdateTaskStatus(a, TaskCompleted, "ok", "")
	m.UpdateTaskStatus(b, TaskInProgress, "", "")
	m.UpdateTaskStatus(b, TaskFailed, "", "oops")

	stats := m.GetTaskStatistics()
	if stats.TotalTasks != 2 {
		t.Fatalf("expected 2 total tasks, got %d", stats.TotalTasks)
	}
	if stats.CompletionRate != 0.5 {
		t.Fatalf("expected completion rate 0.5, got %f", stats.CompletionRate)
	}
	if stats.TasksWithErrors != 1 {
		t.Fatalf("expected 1 task with errors, got %d", stats.TasksWithErrors)
	}
}

func TestPersistenceSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := New(path, 30*time.Minute, 3)
	featureID, _ := m.AddFeature("f")
	taskID, _ := m.AddTask(featureID, "d", "backend_agent")

	reloaded := New(path, 30*time.Minute, 3)
	task, ok := reloaded.GetTask(taskID)
	if !ok {
		t.Fatal("expected task to survive reload from disk")
	}
	if task.Description != "d" {
		t.Fatalf("expected description 'd', got %q", task.Description)
	}
}
