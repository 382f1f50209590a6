package monitor

import (
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

// SystemMetrics aggregates the monitor state over the recent sample window.
type SystemMetrics struct {
	TotalAgents         int     `json:"totalAgents"`
	ActiveInstances     int     `json:"activeInstances"`
	HealthyAgents       int     `json:"healthyAgents"`
	OpenBreakers        int     `json:"openBreakers"`
	OverallHealth       float64 `json:"overallHealth"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	TotalRequests       int64   `json:"totalRequests"`
	TotalErrors         int64   `json:"totalErrors"`
	ErrorRate           float64 `json:"errorRate"`
	CPUUsage            float64 `json:"cpuUsage"`
	MemoryUsage         float64 `json:"memoryUsage"`
}

func (s SystemMetrics) params() map[string]interface{} {
	return map[string]interface{}{
		"totalAgents":         float64(s.TotalAgents),
		"activeInstances":     float64(s.ActiveInstances),
		"healthyAgents":       float64(s.HealthyAgents),
		"openBreakers":        float64(s.OpenBreakers),
		"overallHealth":       s.OverallHealth,
		"averageResponseTime": s.AverageResponseTime,
		"totalRequests":       float64(s.TotalRequests),
		"totalErrors":         float64(s.TotalErrors),
		"errorRate":           s.ErrorRate,
		"cpuUsage":            s.CPUUsage,
		"memoryUsage":         s.MemoryUsage,
	}
}

// SystemMetrics returns totals across all tracked workers. Sample-derived
// figures cover only samples inside the system window.
func (m *Monitor) SystemMetrics() SystemMetrics {
	m.mu.Lock()
	since := m.now().Add(-m.cfg.SystemWindow)
	var out SystemMetrics
	var rings []*agent.SampleRing
	out.TotalAgents = len(m.agents)
	for _, t := range m.agents {
		healthy := false
		for _, inst := range t.instances {
			if inst.Status == agent.InstanceActive {
				out.ActiveInstances++
			}
			if inst.Serving() {
				healthy = true
			}
		}
		if healthy {
			out.HealthyAgents++
		}
		if t.breaker.IsOpen() {
			out.OpenBreakers++
		}
		rings = append(rings, t.samples)
	}
	m.mu.Unlock()

	if out.TotalAgents > 0 {
		out.OverallHealth = float64(out.HealthyAgents) / float64(out.TotalAgents) * 100
	}

	var n int
	var rt, cpu, mem float64
	for _, r := range rings {
		for _, s := range r.Since(since) {
			n++
			rt += s.AverageResponseTime
			cpu += s.CPUPercent
			mem += s.MemoryPercent
			out.TotalRequests += s.RequestCount
			out.TotalErrors += s.ErrorCount
		}
	}
	if n > 0 {
		out.AverageResponseTime = rt / float64(n)
		out.CPUUsage = cpu / float64(n)
		out.MemoryUsage = mem / float64(n)
	}
	if out.TotalRequests > 0 {
		out.ErrorRate = float64(out.TotalErrors) / float64(out.TotalRequests)
	}
	return out
}

// CheckAlerts evaluates every alert rule against the system metrics and
// publishes a performance-alert for each rule that holds.
func (m *Monitor) CheckAlerts() []string {
	sys := m.SystemMetrics()
	params := sys.params()

	var fired []string
	for _, a := range m.alerts {
		ok, err := evaluate(a.expr, params)
		if err != nil {
			m.logger.Warn().Err(err).Str("alert", a.rule.Name).Msg("alert evaluation failed")
			continue
		}
		if !ok {
			continue
		}
		data := map[string]any{
			"type":      a.rule.Name,
			"condition": a.rule.Condition,
		}
		if a.rule.Metric != "" {
			data["value"] = params[a.rule.Metric]
		}
		if a.rule.Severity != "" {
			data["severity"] = a.rule.Severity
		}
		m.publisher.Publish(event.New(event.TypePerformanceAlert, "", data))
		m.logger.Warn().Str("alert", a.rule.Name).Msg("performance alert")
		fired = append(fired, a.rule.Name)
	}
	return fired
}
