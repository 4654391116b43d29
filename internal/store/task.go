// Package store provides the task/feature table: an in-memory index
// backed by a single JSON document persisted atomically on every
// mutation (§3.4, §4.5).
package store

import "time"

// TaskStatus is the closed set of states a Task moves through (§3.2).
type TaskStatus string

const (
	TaskPending            TaskStatus = "pending"
	TaskInProgress         TaskStatus = "in_progress"
	TaskCompleted          TaskStatus = "completed"
	TaskFailed             TaskStatus = "failed"
	TaskPermanentlyFailed  TaskStatus = "permanently_failed"
)

// taskTransitions is the allowed-transition table for Task.Status,
// grounded in §3.2's transition diagram.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending: {
		TaskInProgress: true,
	},
	TaskInProgress: {
		TaskCompleted: true,
		TaskFailed:    true,
		TaskPending:   true, // recovery of a stalled in-progress task
	},
	TaskFailed: {
		TaskPending:           true, // retry
		TaskPermanentlyFailed: true,
	},
	TaskCompleted:         {}, // terminal
	TaskPermanentlyFailed: {}, // terminal
}

func (s TaskStatus) canTransitionTo(next TaskStatus) bool {
	allowed, ok := taskTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// Task is one unit of work belonging to exactly one Feature (§3.2).
type Task struct {
	ID             string     `json:"id"`
	FeatureID      string     `json:"feature_id"`
	Description    string     `json:"description"`
	AssignedAgent  string     `json:"assigned_agent,omitempty"`
	Status         TaskStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	RetryCount     int        `json:"retry_count"`
	LastError      string     `json:"last_error,omitempty"`
	Output         string     `json:"output,omitempty"`
}

func (t Task) clone() Task {
	clone := t
	if t.StartedAt != nil {
		started := *t.StartedAt
		clone.StartedAt = &started
	}
	return clone
}

// FeatureStatus is the closed set of states a Feature moves through (§3.3).
type FeatureStatus string

const (
	FeatureNew        FeatureStatus = "new"
	FeatureInProgress FeatureStatus = "in_progress"
	FeatureCompleted  FeatureStatus = "completed"
	FeatureBlocked    FeatureStatus = "blocked"
	FeatureFailed     FeatureStatus = "failed"
)

// Feature groups an ordered set of task ids decomposed from one
// feature description (§3.3).
type Feature struct {
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      FeatureStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	TaskIDs     []string      `json:"task_ids"`
}

func (f Feature) clone() Feature {
	clone := f
	clone.TaskIDs = append([]string(nil), f.TaskIDs...)
	return clone
}
