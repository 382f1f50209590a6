package agent

import "time"

const maxHealthIssues = 10

// HealthStatus is the probe-derived health of an instance.
type HealthStatus struct {
	IsHealthy           bool      `json:"isHealthy"`
	HealthScore         int       `json:"healthScore"`
	Issues              []string  `json:"issues"`
	ResponseTimeMs      int64     `json:"responseTime"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastCheck           time.Time `json:"lastCheck"`
}

func NewHealthStatus(at time.Time) HealthStatus {
	return HealthStatus{IsHealthy: true, HealthScore: 100, Issues: []string{}, LastCheck: at}
}

// RecordSuccess marks the instance healthy and clears prior issues.
func (h *HealthStatus) RecordSuccess(rt time.Duration, at time.Time) {
	h.IsHealthy = true
	h.HealthScore = 100
	h.Issues = []string{}
	h.ResponseTimeMs = rt.Milliseconds()
	h.ConsecutiveFailures = 0
	h.LastCheck = at
}

// RecordFailure marks the instance unhealthy. The score drops 20 points per
// consecutive failure, floored at zero.
func (h *HealthStatus) RecordFailure(issue string, rt time.Duration, at time.Time) {
	h.IsHealthy = false
	h.ConsecutiveFailures++
	h.HealthScore = 100 - 20*h.ConsecutiveFailures
	if h.HealthScore < 0 {
		h.HealthScore = 0
	}
	h.Issues = append(h.Issues, issue)
	if len(h.Issues) > maxHealthIssues {
		h.Issues = h.Issues[len(h.Issues)-maxHealthIssues:]
	}
	h.ResponseTimeMs = rt.Milliseconds()
	h.LastCheck = at
}

// Clone returns a copy that shares no slice storage.
func (h HealthStatus) Clone() HealthStatus {
	h.Issues = append([]string(nil), h.Issues...)
	if h.Issues == nil {
		h.Issues = []string{}
	}
	return h
}
