package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
)

// WorkerMetrics exposes the cumulative performance counters of a worker.
type WorkerMetrics interface {
	Metrics(name string) (agent.PerformanceSnapshot, error)
}

// InFlight reports dispatches currently running.
type InFlight interface {
	InFlight() int64
}

// Queue reports messages waiting for delivery.
type Queue interface {
	Pending() int
}

// HostStats returns host CPU and memory usage as percentages.
type HostStats func(ctx context.Context) (cpuPercent, memPercent float64, err error)

// GopsutilStats samples the host with gopsutil. CPU usage is measured since
// the previous call.
func GopsutilStats(ctx context.Context) (float64, float64, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, 0, fmt.Errorf("cpu percent: %w", err)
	}
	if len(cpuPercent) == 0 {
		return 0, 0, errors.New("cpu percent: no data")
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("virtual memory: %w", err)
	}
	return cpuPercent[0], vm.UsedPercent, nil
}

// Collector builds instance samples for in-process workers. Workers share the
// host, so every instance reports host CPU and memory. Request counters are
// reported as the change since the previous collection of the same worker.
type Collector struct {
	mu       sync.Mutex
	metrics  WorkerMetrics
	inFlight InFlight
	queue    Queue
	host     HostStats
	last     map[string]agent.PerformanceSnapshot
}

// NewCollector creates a collector. inFlight, queue and host may be nil.
func NewCollector(metrics WorkerMetrics, inFlight InFlight, queue Queue, host HostStats) *Collector {
	if host == nil {
		host = GopsutilStats
	}
	return &Collector{
		metrics:  metrics,
		inFlight: inFlight,
		queue:    queue,
		host:     host,
		last:     make(map[string]agent.PerformanceSnapshot),
	}
}

func (c *Collector) Collect(ctx context.Context, inst agent.Instance) (agent.Sample, error) {
	cpuPercent, memPercent, err := c.host(ctx)
	if err != nil {
		return agent.Sample{}, err
	}
	s := agent.Sample{
		Agent:         inst.Agent,
		InstanceID:    inst.ID,
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
	}
	if c.inFlight != nil {
		s.ActiveConnections = int(c.inFlight.InFlight())
	}
	if c.queue != nil {
		s.QueueDepth = c.queue.Pending()
	}
	if c.metrics == nil {
		return s, nil
	}

	snap, err := c.metrics.Metrics(inst.Agent)
	if err != nil {
		return agent.Sample{}, err
	}
	c.mu.Lock()
	prev := c.last[inst.Agent]
	c.last[inst.Agent] = snap
	c.mu.Unlock()

	s.RequestCount = snap.RequestCount - prev.RequestCount
	s.SuccessCount = snap.SuccessCount - prev.SuccessCount
	s.ErrorCount = snap.ErrorCount - prev.ErrorCount
	s.AverageResponseTime = snap.AverageResponseTime
	return s, nil
}

// Forget drops the counter baseline of a worker.
func (c *Collector) Forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, name)
}

func (c *Collector) WorkerRegistered(w *agent.Worker) {
	c.Forget(w.Name)
}

func (c *Collector) WorkerUnregistered(name string) {
	c.Forget(name)
}

// InFlightFunc adapts a function to InFlight.
type InFlightFunc func() int64

func (f InFlightFunc) InFlight() int64 { return f() }
