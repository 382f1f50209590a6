package agent

import (
	"context"
	"errors"
	"time"

	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

// Kind is the declared invocation shape of a worker implementation.
type Kind string

const (
	KindAnalyzer  Kind = "analyzer"
	KindScheduler Kind = "scheduler"
	KindDocument  Kind = "document"
	KindIntake    Kind = "intake"
	KindHandler   Kind = "handler"
)

// Status represents worker registration status.
type Status string

const (
	StatusActive Status = "active"
	StatusFailed Status = "failed"
)

var (
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrWorkerExists       = errors.New("worker already registered")
	ErrCapabilityMismatch = errors.New("capability mismatch")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrInvalidPolicy      = errors.New("invalid scaling policy")
)

// Invoker is the uniform contract every worker is adapted to.
type Invoker interface {
	Invoke(ctx context.Context, t *task.Task) (*task.Response, error)
}

// Worker is a registered capability unit.
type Worker struct {
	Name         string              `json:"name"`
	Capabilities []string            `json:"capabilities,omitempty"`
	Kind         Kind                `json:"kind"`
	Group        string              `json:"group,omitempty"`
	Status       Status              `json:"status"`
	Error        string              `json:"error,omitempty"`
	RegisteredAt time.Time           `json:"registeredAt"`
	Invoker      Invoker             `json:"-"`
	Metrics      *PerformanceMetrics `json:"-"`
}

// Available reports whether the worker can accept dispatches.
func (w *Worker) Available() bool {
	return w != nil && w.Status == StatusActive && w.Invoker != nil
}

// HasCapability reports whether the worker declared the tag.
func (w *Worker) HasCapability(tag string) bool {
	for _, c := range w.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}
