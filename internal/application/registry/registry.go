package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

var (
	ErrWorkerUnavailable = errors.New("worker unavailable")
	ErrInvalidSpec       = errors.New("invalid worker spec")
)

// WorkerSpec declares a worker to register.
type WorkerSpec struct {
	Name         string
	Capabilities []string
	Kind         agent.Kind
	Group        string
	Impl         any
	HealthCheck  func(ctx context.Context) error
}

// Listener is notified when a worker becomes available or is removed.
type Listener interface {
	WorkerRegistered(w *agent.Worker)
	WorkerUnregistered(name string)
}

// Summary reports the outcome of Initialize.
type Summary struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
}

// Registry holds registered workers keyed by name.
type Registry struct {
	mu        sync.RWMutex
	workers   map[string]*agent.Worker
	probes    map[string]func(ctx context.Context) error
	listeners []Listener
	publisher event.Publisher
	logger    zerolog.Logger
}

func NewRegistry(publisher event.Publisher, logger zerolog.Logger) *Registry {
	if publisher == nil {
		publisher = event.Discard
	}
	return &Registry{
		workers:   make(map[string]*agent.Worker),
		probes:    make(map[string]func(ctx context.Context) error),
		publisher: publisher,
		logger:    logger.With().Str("service", "registry").Logger(),
	}
}

// AddListener subscribes l to registration changes.
func (r *Registry) AddListener(l Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, l)
	r.mu.Unlock()
}

// Register adapts and stores a worker. On capability mismatch the worker is
// kept with failed status so routing to it degrades to a fallback.
func (r *Registry) Register(spec WorkerSpec) error {
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}

	w := &agent.Worker{
		Name:         name,
		Capabilities: append([]string(nil), spec.Capabilities...),
		Kind:         spec.Kind,
		Group:        spec.Group,
		Status:       agent.StatusActive,
		RegisteredAt: time.Now().UTC(),
		Metrics:      agent.NewPerformanceMetrics(),
	}
	adapter, bindErr := NewAdapter(name, spec.Kind, spec.Impl)
	if bindErr != nil {
		w.Status = agent.StatusFailed
		w.Error = bindErr.Error()
	} else {
		w.Invoker = adapter
	}

	r.mu.Lock()
	if existing, ok := r.workers[name]; ok && existing.Status == agent.StatusActive {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", agent.ErrWorkerExists, name)
	}
	r.workers[name] = w
	if bindErr == nil {
		r.probes[name] = spec.HealthCheck
	} else {
		delete(r.probes, name)
	}
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	if bindErr != nil {
		r.logger.Warn().Err(bindErr).Str("agent", name).Str("kind", string(spec.Kind)).Msg("worker registration failed")
		return bindErr
	}

	for _, l := range listeners {
		l.WorkerRegistered(w)
	}
	r.logger.Info().Str("agent", name).Str("kind", string(spec.Kind)).Msg("worker registered")
	return nil
}

// Unregister removes a worker and drops its per-worker state downstream.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	w, ok := r.workers[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	delete(r.workers, name)
	delete(r.probes, name)
	listeners := append([]Listener(nil), r.listeners...)
	r.mu.Unlock()

	if w.Status == agent.StatusActive {
		for _, l := range listeners {
			l.WorkerUnregistered(name)
		}
	}
	r.logger.Info().Str("agent", name).Msg("worker unregistered")
	return nil
}

// Initialize registers every spec and reports which succeeded.
func (r *Registry) Initialize(specs []WorkerSpec) Summary {
	sum := Summary{Succeeded: []string{}, Failed: map[string]string{}}
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			sum.Failed[spec.Name] = err.Error()
			continue
		}
		sum.Succeeded = append(sum.Succeeded, spec.Name)
	}

	r.publisher.Publish(event.New(event.TypeAgentsInitialized, "", map[string]any{
		"succeeded": len(sum.Succeeded),
		"failed":    len(sum.Failed),
		"agents":    sum.Succeeded,
	}))
	r.logger.Info().
		Int("succeeded", len(sum.Succeeded)).
		Int("failed", len(sum.Failed)).
		Msg("workers initialized")
	return sum
}

// Get returns the worker registered under name, failed ones included.
func (r *Registry) Get(name string) (*agent.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[name]
	return w, ok
}

// Metrics returns the performance counters of a worker.
func (r *Registry) Metrics(name string) (agent.PerformanceSnapshot, error) {
	w, ok := r.Get(name)
	if !ok || w.Metrics == nil {
		return agent.PerformanceSnapshot{}, fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	return w.Metrics.Snapshot(), nil
}

// Names returns the names of active workers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workers))
	for name, w := range r.workers {
		if w.Status == agent.StatusActive {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Workers returns every registered worker sorted by name.
func (r *Registry) Workers() []*agent.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*agent.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Failed returns workers whose binding failed, keyed by name.
func (r *Registry) Failed() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[string]string{}
	for name, w := range r.workers {
		if w.Status == agent.StatusFailed {
			out[name] = w.Error
		}
	}
	return out
}

// Probe runs the worker's liveness check. Workers without one are alive
// while registered and active.
func (r *Registry) Probe(ctx context.Context, name string) error {
	r.mu.RLock()
	w, ok := r.workers[name]
	probe := r.probes[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	if !w.Available() {
		return fmt.Errorf("%w: %s", ErrWorkerUnavailable, name)
	}
	if probe == nil {
		return ctx.Err()
	}
	return probe(ctx)
}
