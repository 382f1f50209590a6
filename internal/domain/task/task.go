package task

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority represents task priority.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority normalizes a caller supplied priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityUrgent:
		return PriorityUrgent
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Status represents task status.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Stage is the routing stage of a task.
type Stage string

const (
	StageReceived   Stage = "received"
	StageClassified Stage = "classified"
	StageDispatched Stage = "dispatched"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

var ErrInvalidTransition = errors.New("invalid task stage transition")

var stageTransitions = map[Stage][]Stage{
	StageReceived:   {StageClassified, StageFailed},
	StageClassified: {StageDispatched, StageFailed},
	StageDispatched: {StageCompleted, StageFailed},
	StageCompleted:  {},
	StageFailed:     {},
}

// Status maps a stage to the coarse task status.
func (s Stage) Status() Status {
	switch s {
	case StageDispatched:
		return StatusRunning
	case StageCompleted:
		return StatusDone
	case StageFailed:
		return StatusFailed
	default:
		return StatusPending
	}
}

// Task is a routed unit of work.
type Task struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type,omitempty"`
	Intent    string          `json:"intent,omitempty"`
	Priority  Priority        `json:"priority"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SessionID string          `json:"sessionId"`
	UserID    string          `json:"userId,omitempty"`
	Language  string          `json:"language"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Stage     Stage           `json:"stage"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
}

// New creates a received task.
func New(message, sessionID, language string) *Task {
	t := &Task{
		Message:   message,
		SessionID: sessionID,
		Language:  language,
		Priority:  PriorityMedium,
	}
	t.Normalize()
	return t
}

// Normalize fills identity and defaults on tasks decoded from callers.
func (t *Task) Normalize() {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.Priority = ParsePriority(string(t.Priority))
	if t.SessionID == "" {
		t.SessionID = t.ID.String()
	}
	t.Stage = StageReceived
	t.Status = StatusPending
}

// CanTransitionTo validates a stage transition.
func (t *Task) CanTransitionTo(target Stage) bool {
	for _, s := range stageTransitions[t.Stage] {
		if s == target {
			return true
		}
	}
	return false
}

// Advance moves the task to the target stage.
func (t *Task) Advance(target Stage) error {
	if !t.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	t.Stage = target
	t.Status = target.Status()
	return nil
}

// Lang returns the task language, defaulting to English.
func (t *Task) Lang() string {
	l := strings.ToLower(strings.TrimSpace(t.Language))
	if l == "" {
		return "en"
	}
	return l
}

// MetaString returns a string metadata value.
func (t *Task) MetaString(key string) string {
	if t.Metadata == nil {
		return ""
	}
	if s, ok := t.Metadata[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// MetaStrings returns a string list metadata value. Values decoded from JSON
// arrive as []any.
func (t *Task) MetaStrings(key string) []string {
	if t.Metadata == nil {
		return nil
	}
	switch v := t.Metadata[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// PreferredAgent returns the caller supplied routing override.
func (t *Task) PreferredAgent() string {
	return t.MetaString("preferredAgent")
}

// Exchange is the record of one routed interaction kept in short-term memory.
type Exchange struct {
	TaskID    uuid.UUID `json:"taskId"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}
