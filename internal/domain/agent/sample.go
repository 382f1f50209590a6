package agent

import (
	"math"
	"sync"
	"time"
)

// DefaultSampleCapacity is the number of samples retained per worker.
const DefaultSampleCapacity = 1000

// Sample is one metrics observation of an instance. CPU and memory are
// percentages in [0,100]; response time is in milliseconds.
type Sample struct {
	Agent               string    `json:"agent"`
	InstanceID          string    `json:"instanceId"`
	Timestamp           time.Time `json:"timestamp"`
	RequestCount        int64     `json:"requestCount"`
	SuccessCount        int64     `json:"successCount"`
	ErrorCount          int64     `json:"errorCount"`
	AverageResponseTime float64   `json:"averageResponseTime"`
	CPUPercent          float64   `json:"cpuUsage"`
	MemoryPercent       float64   `json:"memoryUsage"`
	ActiveConnections   int       `json:"activeConnections"`
	QueueDepth          int       `json:"queueSize"`
}

// Load weights for the composite load score.
const (
	cpuWeight          = 0.4
	memoryWeight       = 0.3
	responseTimeWeight = 0.2
	errorWeight        = 0.1

	responseTimeCeilingMs = 5000.0
)

// Load returns the composite load score in [0,1].
func (s Sample) Load() float64 {
	cpu := clamp01(s.CPUPercent / 100)
	mem := clamp01(s.MemoryPercent / 100)
	rt := math.Min(s.AverageResponseTime/responseTimeCeilingMs, 1)
	if rt < 0 {
		rt = 0
	}
	errs := clamp01(float64(s.ErrorCount) / math.Max(float64(s.RequestCount), 1))
	return cpuWeight*cpu + memoryWeight*mem + responseTimeWeight*rt + errorWeight*errs
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// SampleRing retains the most recent samples, discarding the oldest first.
type SampleRing struct {
	mu    sync.RWMutex
	buf   []Sample
	start int
	count int
}

func NewSampleRing(capacity int) *SampleRing {
	if capacity <= 0 {
		capacity = DefaultSampleCapacity
	}
	return &SampleRing{buf: make([]Sample, capacity)}
}

// Push appends a sample, evicting the oldest when full.
func (r *SampleRing) Push(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = s
		r.count++
		return
	}
	r.buf[r.start] = s
	r.start = (r.start + 1) % len(r.buf)
}

// Len returns the number of retained samples.
func (r *SampleRing) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Last returns up to n most recent samples, oldest first.
func (r *SampleRing) Last(n int) []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Sample, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

// All returns every retained sample, oldest first.
func (r *SampleRing) All() []Sample {
	return r.Last(0)
}

// Since returns retained samples taken at or after t.
func (r *SampleRing) Since(t time.Time) []Sample {
	all := r.All()
	out := all[:0]
	for _, s := range all {
		if !s.Timestamp.Before(t) {
			out = append(out, s)
		}
	}
	return out
}
