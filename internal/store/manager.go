package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StatusCounts maps a status name to the number of tasks in that
// status, used by HealthReport and Statistics.
type StatusCounts map[string]int

// StalledTask describes one entry in a HealthReport's StalledTasks or
// LongRunningTasks list.
type StalledTask struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	StartedAt   string `json:"started_at"`
	Agent       string `json:"agent"`
}

// FailedTaskSummary describes one entry in a HealthReport's
// FailedTasks list.
type FailedTaskSummary struct {
	TaskID      string `json:"task_id"`
	Description string `json:"description"`
	Error       string `json:"error"`
	RetryCount  int    `json:"retry_count"`
}

// HealthReport is the return shape of TaskHealthCheck (§4.5).
type HealthReport struct {
	TotalTasks        int                 `json:"total_tasks"`
	StatusCounts      StatusCounts        `json:"status_counts"`
	StalledTasks      []StalledTask       `json:"stalled_tasks"`
	FailedTasks       []FailedTaskSummary `json:"failed_tasks"`
	LongRunningTasks  []StalledTask       `json:"long_running_tasks"`
	Issues            []string            `json:"issues"`
	Healthy           bool                `json:"healthy"`
}

// PendingTask is one entry returned by GetPendingTasksByAgent.
type PendingTask struct {
	TaskID      string `json:"task_id"`
	FeatureID   string `json:"feature_id"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	RetryCount  int    `json:"retry_count"`
}

// Statistics is the return shape of GetTaskStatistics (§4.5).
type Statistics struct {
	TotalTasks        int            `json:"total_tasks"`
	ByStatus          StatusCounts   `json:"by_status"`
	ByAgent           map[string]int `json:"by_agent"`
	CompletionRate    float64        `json:"completion_rate"`
	AverageRetryCount float64        `json:"average_retry_count"`
	TasksWithErrors   int            `json:"tasks_with_errors"`
}

const longRunningFactorDefault = 0.5

// Manager is the task/feature store: a lock-guarded in-memory table
// with atomic JSON persistence (§3.4, §4.5).
type Manager struct {
	mu   sync.Mutex
	path string
	doc  document

	stallTimeout      time.Duration
	longRunningFactor float64
	maxRetries        int
}

// New loads (or initializes) the document at path and returns a
// ready-to-use Manager.
func New(path string, stallTimeout time.Duration, maxRetries int) *Manager {
	return &Manager{
		path:              path,
		doc:               load(path),
		stallTimeout:      stallTimeout,
		longRunningFactor: longRunningFactorDefault,
		maxRetries:        maxRetries,
	}
}

func (m *Manager) persistLocked() error {
	return save(m.path, m.doc)
}

// AddFeature records a new feature in status New and returns its id.
func (m *Manager) AddFeature(description string) (string, error) {
	id := uuid.NewString()
	if err := m.AddFeatureWithID(id, description); err != nil {
		return "", err
	}
	return id, nil
}

// AddFeatureWithID records a new feature under a caller-supplied id
// (the id carried by an incoming FeatureCreated event, §3.1) in status
// New. It is a no-op returning nil if id is already known, supporting
// the duplicate-FeatureCreated guard (§4.7, scenario 5).
func (m *Manager) AddFeatureWithID(id, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.doc.Features[id]; exists {
		return nil
	}

	m.doc.Features[id] = Feature{
		ID:          id,
		Description: description,
		Status:      FeatureNew,
		CreatedAt:   time.Now(),
		TaskIDs:     []string{},
	}
	return m.persistLocked()
}

// GetFeature returns a deep copy of feature id, or false if unknown.
func (m *Manager) GetFeature(id string) (Feature, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.doc.Features[id]
	if !ok {
		return Feature{}, false
	}
	return f.clone(), true
}

// SetFeatureStatus transitions a feature to status, persisting the
// change. Used by the orchestrator for decomposition and completion
// bookkeeping (§4.7), which is not itself part of the store's closed
// task-status machine.
func (m *Manager) SetFeatureStatus(featureID string, status FeatureStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.doc.Features[featureID]
	if !ok {
		return fmt.Errorf("store: feature %s not found", featureID)
	}
	f.Status = status
	m.doc.Features[featureID] = f
	return m.persistLocked()
}

// AddTask records a new task belonging to featureID, in status
// Pending, and indexes it under its feature.
func (m *Manager) AddTask(featureID, description, assignedAgent string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.doc.Features[featureID]; !ok {
		return "", fmt.Errorf("store: feature %s not found", featureID)
	}

	id := uuid.NewString()
	now := time.Now()
	m.doc.Tasks[id] = Task{
		ID:            id,
		FeatureID:     featureID,
		Description:   description,
		AssignedAgent: assignedAgent,
		Status:        TaskPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		RetryCount:    0,
	}

	f := m.doc.Features[featureID]
	f.TaskIDs = append(f.TaskIDs, id)
	m.doc.Features[featureID] = f

	if err := m.persistLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateTaskStatus transitions task id to newStatus (§3.2's allowed
// transitions), optionally recording output or an error. A transition
// out of a terminal status, or one not in the allowed table, is
// rejected without mutating the table.
func (m *Manager) UpdateTaskStatus(id string, newStatus TaskStatus, output, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.doc.Tasks[id]
	if !ok {
		return fmt.Errorf("store: task %s not found", id)
	}

	if !task.Status.canTransitionTo(newStatus) {
		return fmt.Errorf("store: task %s: illegal transition %s -> %s", id, task.Status, newStatus)
	}

	now := time.Now()
	if newStatus == TaskInProgress && task.StartedAt == nil {
		task.StartedAt = &now
	}
	task.Status = newStatus
	task.UpdatedAt = now

	if output != "" {
		task.Output = output
	}
	if errMsg != "" {
		task.LastError = errMsg
		task.RetryCount++
	}

	m.doc.Tasks[id] = task
	return m.persistLocked()
}

// IncrementRetryCount bumps task id's retry counter directly,
// independent of a status transition, and returns the new count.
func (m *Manager) IncrementRetryCount(id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.doc.Tasks[id]
	if !ok {
		return 0, fmt.Errorf("store: task %s not found", id)
	}
	task.RetryCount++
	m.doc.Tasks[id] = task
	if err := m.persistLocked(); err != nil {
		return 0, err
	}
	return task.RetryCount, nil
}

// GetTask returns a deep copy of task id, or false if unknown.
func (m *Manager) GetTask(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.doc.Tasks[id]
	if !ok {
		return Task{}, false
	}
	return task.clone(), true
}

// GetFeatureTasks returns a deep copy of every task belonging to
// featureID.
func (m *Manager) GetFeatureTasks(featureID string) map[string]Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Task)
	for id, t := range m.doc.Tasks {
		if t.FeatureID == featureID {
			out[id] = t.clone()
		}
	}
	return out
}

// GetAllTasks returns a deep copy of the full task table.
func (m *Manager) GetAllTasks() map[string]Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Task, len(m.doc.Tasks))
	for id, t := range m.doc.Tasks {
		out[id] = t.clone()
	}
	return out
}

// GetAllFeatures returns a deep copy of the full feature table.
func (m *Manager) GetAllFeatures() map[string]Feature {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Feature, len(m.doc.Features))
	for id, f := range m.doc.Features {
		out[id] = f.clone()
	}
	return out
}

// RecoverStalledTasks transitions every InProgress task whose
// StartedAt predates timeout back to Pending with last_error
// "stalled", returning the recovered task ids. A task with a nil
// StartedAt while InProgress is treated as malformed and reset too.
func (m *Manager) RecoverStalledTasks(timeout time.Duration) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-timeout)
	var recovered []string

	for id, task := range m.doc.Tasks {
		if task.Status != TaskInProgress {
			continue
		}
		stalled := task.StartedAt == nil || task.StartedAt.Before(cutoff)
		if !stalled {
			continue
		}
		task.Status = TaskPending
		task.UpdatedAt = time.Now()
		task.LastError = "stalled"
		m.doc.Tasks[id] = task
		recovered = append(recovered, id)
	}

	if len(recovered) > 0 {
		if err := m.persistLocked(); err != nil {
			return nil, err
		}
	}
	return recovered, nil
}

// RetryFailedTasks transitions every Failed task with RetryCount <
// maxRetries back to Pending, and every Failed task at or above the
// limit to PermanentlyFailed. Returns the ids returned to Pending.
func (m *Manager) RetryFailedTasks(maxRetries int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var retried []string
	changed := false

	for id, task := range m.doc.Tasks {
		if task.Status != TaskFailed {
			continue
		}
		if task.RetryCount < maxRetries {
			task.Status = TaskPending
			task.UpdatedAt = time.Now()
			retried = append(retried, id)
		} else {
			task.Status = TaskPermanentlyFailed
			task.UpdatedAt = time.Now()
		}
		m.doc.Tasks[id] = task
		changed = true
	}

	if changed {
		if err := m.persistLocked(); err != nil {
			return nil, err
		}
	}
	return retried, nil
}

// TaskHealthCheck reports counts per status, stalled/failed/
// long-running task summaries, structural issues, and an overall
// healthy flag (§4.5).
func (m *Manager) TaskHealthCheck() HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := HealthReport{
		TotalTasks:   len(m.doc.Tasks),
		StatusCounts: StatusCounts{},
		Healthy:      true,
	}

	stallCutoff := time.Now().Add(-m.stallTimeout)
	longRunningCutoff := time.Now().Add(-time.Duration(float64(m.stallTimeout) * m.longRunningFactor))

	for id, task := range m.doc.Tasks {
		report.StatusCounts[string(task.Status)]++

		if task.Status == TaskInProgress {
			if task.StartedAt == nil {
				report.Issues = append(report.Issues, fmt.Sprintf("task %s has invalid timestamp", id))
				continue
			}
			switch {
			case task.StartedAt.Before(stallCutoff):
				report.StalledTasks = append(report.StalledTasks, StalledTask{
					TaskID: id, Description: truncate(task.Description, 100),
					StartedAt: task.StartedAt.Format(time.RFC3339), Agent: task.AssignedAgent,
				})
			case task.StartedAt.Before(longRunningCutoff):
				report.LongRunningTasks = append(report.LongRunningTasks, StalledTask{
					TaskID: id, Description: truncate(task.Description, 100),
					StartedAt: task.StartedAt.Format(time.RFC3339), Agent: task.AssignedAgent,
				})
			}
		}

		if task.Status == TaskFailed {
			report.FailedTasks = append(report.FailedTasks, FailedTaskSummary{
				TaskID: id, Description: truncate(task.Description, 100),
				Error: task.LastError, RetryCount: task.RetryCount,
			})
		}

		if task.FeatureID != "" {
			if _, ok := m.doc.Features[task.FeatureID]; !ok {
				report.Issues = append(report.Issues, fmt.Sprintf("task %s references orphaned feature %s", id, task.FeatureID))
			}
		}
	}

	if len(report.StalledTasks) > 0 || len(report.FailedTasks) > 0 || len(report.Issues) > 0 {
		report.Healthy = false
	}
	return report
}

// GetPendingTasksByAgent returns every Pending task assigned to
// agentName, sorted oldest-created first.
func (m *Manager) GetPendingTasksByAgent(agentName string) []PendingTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PendingTask
	created := make(map[string]time.Time)
	for id, task := range m.doc.Tasks {
		if task.Status == TaskPending && task.AssignedAgent == agentName {
			out = append(out, PendingTask{
				TaskID: id, FeatureID: task.FeatureID, Description: task.Description,
				CreatedAt: task.CreatedAt.Format(time.RFC3339), RetryCount: task.RetryCount,
			})
			created[id] = task.CreatedAt
		}
	}

	sort.Slice(out, func(i, j int) bool { return created[out[i].TaskID].Before(created[out[j].TaskID]) })
	return out
}

// CleanupCompletedTasks removes Completed and PermanentlyFailed tasks
// whose UpdatedAt is older than keep, returning the count removed.
func (m *Manager) CleanupCompletedTasks(keep time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-keep)
	var toRemove []string
	for id, task := range m.doc.Tasks {
		if task.Status != TaskCompleted && task.Status != TaskPermanentlyFailed {
			continue
		}
		if task.UpdatedAt.Before(cutoff) {
			toRemove = append(toRemove, id)
		}
	}

	for _, id := range toRemove {
		delete(m.doc.Tasks, id)
	}

	if len(toRemove) > 0 {
		if err := m.persistLocked(); err != nil {
			return 0, err
		}
	}
	return len(toRemove), nil
}

// GetTaskStatistics reports aggregate counts and rates across the
// full task table (§4.5).
func (m *Manager) GetTaskStatistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{
		TotalTasks: len(m.doc.Tasks),
		ByStatus:   StatusCounts{},
		ByAgent:    map[string]int{},
	}

	var totalRetries, completed int
	for _, task := range m.doc.Tasks {
		stats.ByStatus[string(task.Status)]++

		agent := task.AssignedAgent
		if agent == "" {
			agent = "unassigned"
		}
		stats.ByAgent[agent]++

		totalRetries += task.RetryCount
		if task.Status == TaskCompleted {
			completed++
		}
		if task.LastError != "" {
			stats.TasksWithErrors++
		}
	}

	if stats.TotalTasks > 0 {
		stats.CompletionRate = float64(completed) / float64(stats.TotalTasks)
		stats.AverageRetryCount = float64(totalRetries) / float64(stats.TotalTasks)
	}
	return stats
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
