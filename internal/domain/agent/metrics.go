package agent

import (
	"sync"
	"time"
)

// PerformanceSnapshot is a point-in-time copy of a worker's dispatch counters.
// Response times are in milliseconds.
type PerformanceSnapshot struct {
	RequestCount        int64     `json:"requestCount"`
	SuccessCount        int64     `json:"successCount"`
	ErrorCount          int64     `json:"errorCount"`
	AverageResponseTime float64   `json:"averageResponseTime"`
	LastResponseTime    float64   `json:"lastResponseTime"`
	UpdatedAt           time.Time `json:"updatedAt,omitempty"`
}

// ErrorRate returns errors over requests, zero when idle.
func (s PerformanceSnapshot) ErrorRate() float64 {
	if s.RequestCount == 0 {
		return 0
	}
	return float64(s.ErrorCount) / float64(s.RequestCount)
}

// PerformanceMetrics aggregates dispatch outcomes for one worker.
// successCount + errorCount == requestCount holds after every Record.
type PerformanceMetrics struct {
	mu sync.Mutex
	s  PerformanceSnapshot
}

func NewPerformanceMetrics() *PerformanceMetrics {
	return &PerformanceMetrics{}
}

// Record applies one dispatch outcome and returns the updated snapshot.
func (m *PerformanceMetrics) Record(success bool, responseTime time.Duration) PerformanceSnapshot {
	ms := float64(responseTime) / float64(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.s.RequestCount++
	if success {
		m.s.SuccessCount++
	} else {
		m.s.ErrorCount++
	}
	n := float64(m.s.RequestCount)
	m.s.AverageResponseTime = (m.s.AverageResponseTime*(n-1) + ms) / n
	m.s.LastResponseTime = ms
	m.s.UpdatedAt = time.Now().UTC()
	return m.s
}

// Snapshot returns the current counters.
func (m *PerformanceMetrics) Snapshot() PerformanceSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}
