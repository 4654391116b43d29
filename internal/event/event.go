// Package event defines the common event envelope and the closed set
// of event kinds exchanged over the event bus.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of event types recognized by the runtime.
type Kind string

const (
	TaskCreated   Kind = "task.created"
	TaskAssigned  Kind = "task.assigned"
	TaskStarted   Kind = "task.started"
	TaskCompleted Kind = "task.completed"
	TaskFailed    Kind = "task.failed"
	TaskRetry     Kind = "task.retry"

	FeatureCreated   Kind = "feature.created"
	FeatureStarted   Kind = "feature.started"
	FeatureCompleted Kind = "feature.completed"
	FeatureBlocked   Kind = "feature.blocked"

	AgentStarted   Kind = "agent.started"
	AgentStopped   Kind = "agent.stopped"
	AgentHeartbeat Kind = "agent.heartbeat"
	AgentError     Kind = "agent.error"

	SystemShutdown    Kind = "system.shutdown"
	SystemHealthCheck Kind = "system.health_check"

	Custom Kind = "custom"
)

// Kinds lists every recognized Kind, used to validate incoming events
// and to enumerate topics for the brokered backend.
var Kinds = []Kind{
	TaskCreated, TaskAssigned, TaskStarted, TaskCompleted, TaskFailed, TaskRetry,
	FeatureCreated, FeatureStarted, FeatureCompleted, FeatureBlocked,
	AgentStarted, AgentStopped, AgentHeartbeat, AgentError,
	SystemShutdown, SystemHealthCheck, Custom,
}

// Valid reports whether k is a member of the closed Kind set.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Topic returns the brokered-backend topic name for this kind.
func (k Kind) Topic() string {
	return "events." + string(k)
}

// Event is the common envelope carried by both event bus backends.
type Event struct {
	ID            string                 `json:"id"`
	Type          Kind                   `json:"type"`
	Source        string                 `json:"source"`
	Timestamp     float64                `json:"timestamp"`
	Data          map[string]interface{} `json:"data"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
}

// New builds an event with a fresh id and the current time as its
// timestamp (millisecond precision, as seconds since epoch).
func New(kind Kind, source string, data map[string]interface{}, correlationID string) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	return Event{
		ID:            uuid.NewString(),
		Type:          kind,
		Source:        source,
		Timestamp:     nowSeconds(),
		Data:          data,
		CorrelationID: correlationID,
	}
}

// NewCustom builds a Custom-kind event carrying the given event_name,
// per §4.1's extensibility mechanism.
func NewCustom(eventName, source string, data map[string]interface{}, correlationID string) Event {
	if data == nil {
		data = map[string]interface{}{}
	}
	data["event_name"] = eventName
	return New(Custom, source, data, correlationID)
}

// EventName returns the nested event_name of a Custom event, or "" if
// absent or the event is not Custom.
func (e Event) EventName() string {
	if e.Type != Custom {
		return ""
	}
	name, _ := e.Data["event_name"].(string)
	return name
}

// MarshalJSON and UnmarshalJSON are satisfied by the struct tags
// above; Encode/Decode are convenience wrappers used at process
// boundaries (the brokered backend's wire format, the CLI's output).

// Encode serializes the event to its UTF-8 JSON wire form.
func (e Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return b, nil
}

// Decode parses an event from its UTF-8 JSON wire form.
func Decode(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if !e.Type.Valid() {
		return Event{}, fmt.Errorf("decode event: unknown kind %q", e.Type)
	}
	return e, nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixMilli()) / 1000.0
}
