package agent

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InstanceStatus represents instance lifecycle status.
type InstanceStatus string

const (
	InstanceActive   InstanceStatus = "active"
	InstanceInactive InstanceStatus = "inactive"
	InstanceFailed   InstanceStatus = "failed"
	InstanceScaling  InstanceStatus = "scaling"
)

var ErrInvalidInstanceTransition = errors.New("invalid instance status transition")

var instanceTransitions = map[InstanceStatus][]InstanceStatus{
	InstanceScaling:  {InstanceActive, InstanceFailed, InstanceInactive},
	InstanceActive:   {InstanceScaling, InstanceFailed, InstanceInactive},
	InstanceFailed:   {InstanceActive, InstanceInactive},
	InstanceInactive: {},
}

func (s InstanceStatus) CanTransitionTo(target InstanceStatus) bool {
	for _, allowed := range instanceTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Live reports whether the instance counts toward the scaling bounds.
func (s InstanceStatus) Live() bool {
	return s == InstanceActive || s == InstanceScaling || s == InstanceFailed
}

// Instance is one replica of a worker tracked by the monitor.
type Instance struct {
	ID           string         `json:"id"`
	Agent        string         `json:"agent"`
	Status       InstanceStatus `json:"status"`
	Weight       float64        `json:"weight"`
	CurrentLoad  float64        `json:"currentLoad"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	Health       HealthStatus   `json:"health"`
	LastSample   *Sample        `json:"lastSample,omitempty"`
}

func NewInstance(agentName string, status InstanceStatus, at time.Time) *Instance {
	return &Instance{
		ID:           fmt.Sprintf("%s-%s", agentName, uuid.NewString()[:8]),
		Agent:        agentName,
		Status:       status,
		Weight:       1.0,
		CreatedAt:    at,
		LastActivity: at,
		Health:       NewHealthStatus(at),
	}
}

// Transition moves the instance to target if the lifecycle allows it.
func (i *Instance) Transition(target InstanceStatus) error {
	if i.Status == target {
		return nil
	}
	if !i.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidInstanceTransition, i.Status, target)
	}
	i.Status = target
	return nil
}

// Serving reports whether the instance is active and healthy.
func (i *Instance) Serving() bool {
	return i.Status == InstanceActive && i.Health.IsHealthy
}

func (i *Instance) Clone() Instance {
	c := *i
	c.Health = i.Health.Clone()
	if i.LastSample != nil {
		s := *i.LastSample
		c.LastSample = &s
	}
	return c
}
