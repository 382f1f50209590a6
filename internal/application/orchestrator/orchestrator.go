package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

const DefaultInvokeTimeout = 30 * time.Second

var ErrWorkerPanic = errors.New("worker panicked")

// Outcome labels the result of one routed task.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeError       Outcome = "error"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeCircuitOpen Outcome = "circuit_open"
)

// Registry resolves workers by name.
type Registry interface {
	Get(name string) (*agent.Worker, bool)
	Workers() []*agent.Worker
}

// Memory records exchanges in worker short-term memory.
type Memory interface {
	Remember(ctx context.Context, worker, key string, value any, persistent bool) error
}

// HealthGate is consulted before every dispatch and told about failures.
type HealthGate interface {
	Allow(worker string) bool
	ReportFailure(worker string, err error)
}

// DispatchObserver receives the outcome of every routed task.
type DispatchObserver interface {
	ObserveDispatch(worker string, outcome Outcome, elapsed time.Duration)
}

// Config controls routing and dispatch.
type Config struct {
	Parallel      bool
	MaxConcurrent int64
	InvokeTimeout time.Duration
	ContactPhone  string
	DefaultWorker string
	Rules         []IntentRule
	Routes        map[string]string
}

// Stats are router-level counters.
type Stats struct {
	Submitted     int64 `json:"submitted"`
	Dispatched    int64 `json:"dispatched"`
	Succeeded     int64 `json:"succeeded"`
	Failed        int64 `json:"failed"`
	Unavailable   int64 `json:"unavailable"`
	CircuitOpen   int64 `json:"circuitOpen"`
	InFlight      int64 `json:"inFlight"`
	Parallel      bool  `json:"parallel"`
	MaxConcurrent int64 `json:"maxConcurrent"`
}

// AgentStatus describes one registered worker.
type AgentStatus struct {
	Name         string                    `json:"name"`
	Kind         agent.Kind                `json:"kind"`
	Group        string                    `json:"group,omitempty"`
	Status       agent.Status              `json:"status"`
	Capabilities []string                  `json:"capabilities,omitempty"`
	Error        string                    `json:"error,omitempty"`
	Metrics      agent.PerformanceSnapshot `json:"metrics"`
}

// Orchestrator classifies tasks, selects a worker and dispatches to it under
// a concurrency bound and deadline. It never returns an error to the caller;
// every failure path yields a fallback response.
type Orchestrator struct {
	cfg        Config
	registry   Registry
	memory     Memory
	gate       HealthGate
	observer   DispatchObserver
	classifier *Classifier
	limiter    *limiter
	logger     zerolog.Logger

	submitted   atomic.Int64
	dispatched  atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	unavailable atomic.Int64
	circuitOpen atomic.Int64
}

// NewOrchestrator creates a new orchestrator. gate, memory and observer may be nil.
func NewOrchestrator(
	cfg Config,
	registry Registry,
	memory Memory,
	gate HealthGate,
	observer DispatchObserver,
	logger zerolog.Logger,
) *Orchestrator {
	if cfg.InvokeTimeout <= 0 {
		cfg.InvokeTimeout = DefaultInvokeTimeout
	}
	if cfg.ContactPhone == "" {
		cfg.ContactPhone = DefaultContactPhone
	}
	if cfg.DefaultWorker == "" {
		cfg.DefaultWorker = DefaultIntent
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = DefaultRules()
	}
	if cfg.Routes == nil {
		cfg.Routes = DefaultRoutes()
	}
	return &Orchestrator{
		cfg:        cfg,
		registry:   registry,
		memory:     memory,
		gate:       gate,
		observer:   observer,
		classifier: NewClassifier(cfg.Rules),
		limiter:    newLimiter(cfg.Parallel, cfg.MaxConcurrent),
		logger:     logger.With().Str("service", "orchestrator").Logger(),
	}
}

// Submit routes t to a worker and returns its response or a fallback.
func (o *Orchestrator) Submit(ctx context.Context, t *task.Task) *task.Response {
	if t == nil {
		t = task.New("", "", "")
	}
	t.Normalize()
	o.submitted.Add(1)

	if t.Intent == "" {
		t.Intent = o.classifier.Classify(t.Message)
	}
	_ = t.Advance(task.StageClassified)

	name := o.selectWorker(t)
	w, ok := o.registry.Get(name)
	if !ok || !w.Available() {
		o.unavailable.Add(1)
		o.failed.Add(1)
		_ = t.Advance(task.StageFailed)
		o.observe(name, OutcomeUnavailable, 0)
		o.logger.Warn().
			Str("task_id", t.ID.String()).
			Str("agent", name).
			Str("intent", t.Intent).
			Msg("no available worker; returning fallback")
		return o.fallback(t)
	}

	if o.gate != nil && !o.gate.Allow(name) {
		o.circuitOpen.Add(1)
		o.failed.Add(1)
		_ = t.Advance(task.StageFailed)
		o.observe(name, OutcomeCircuitOpen, 0)
		o.logger.Warn().
			Str("task_id", t.ID.String()).
			Str("agent", name).
			Err(agent.ErrCircuitOpen).
			Msg("dispatch blocked")
		return o.fallback(t)
	}

	_ = t.Advance(task.StageDispatched)
	o.dispatched.Add(1)

	resp, elapsed, err := o.dispatch(ctx, w, t)
	o.record(ctx, w, t, resp, err, elapsed)
	if err != nil {
		o.failed.Add(1)
		_ = t.Advance(task.StageFailed)
		if o.gate != nil {
			o.gate.ReportFailure(name, err)
		}
		o.logger.Warn().Err(err).
			Str("task_id", t.ID.String()).
			Str("agent", name).
			Dur("elapsed", elapsed).
			Msg("worker invocation failed")
		return o.fallback(t)
	}

	o.succeeded.Add(1)
	_ = t.Advance(task.StageCompleted)
	return resp
}

func (o *Orchestrator) selectWorker(t *task.Task) string {
	if preferred := t.PreferredAgent(); preferred != "" {
		return preferred
	}
	if name, ok := o.cfg.Routes[t.Intent]; ok && name != "" {
		return name
	}
	return o.cfg.DefaultWorker
}

type invokeResult struct {
	resp *task.Response
	err  error
}

// dispatch runs the worker under the concurrency bound and the invoke
// deadline. The slot is held until the worker returns, even if the caller
// gave up on it first.
func (o *Orchestrator) dispatch(ctx context.Context, w *agent.Worker, t *task.Task) (*task.Response, time.Duration, error) {
	start := time.Now()
	release, err := o.limiter.acquire(ctx)
	if err != nil {
		return nil, time.Since(start), fmt.Errorf("acquire dispatch slot: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.InvokeTimeout)
	defer cancel()

	start = time.Now()
	done := make(chan invokeResult, 1)
	go func() {
		defer release()
		resp, err := invoke(ctx, w, t)
		done <- invokeResult{resp: resp, err: err}
	}()

	select {
	case r := <-done:
		return r.resp, time.Since(start), r.err
	case <-ctx.Done():
		return nil, time.Since(start), fmt.Errorf("invoke %s: %w", w.Name, ctx.Err())
	}
}

func invoke(ctx context.Context, w *agent.Worker, t *task.Task) (resp *task.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("%w: %s: %v", ErrWorkerPanic, w.Name, r)
		}
	}()
	return w.Invoker.Invoke(ctx, t)
}

func (o *Orchestrator) record(ctx context.Context, w *agent.Worker, t *task.Task, resp *task.Response, err error, elapsed time.Duration) {
	success := err == nil
	if w.Metrics != nil {
		w.Metrics.Record(success, elapsed)
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeError
	}
	o.observe(w.Name, outcome, elapsed)

	if o.memory == nil {
		return
	}
	ex := task.Exchange{
		TaskID:    t.ID,
		Message:   t.Message,
		Success:   success,
		Timestamp: time.Now().UTC(),
	}
	if resp != nil {
		ex.Response = resp.Response
	}
	if err := o.memory.Remember(context.WithoutCancel(ctx), w.Name, t.SessionID, ex, false); err != nil {
		o.logger.Warn().Err(err).
			Str("agent", w.Name).
			Str("session_id", t.SessionID).
			Msg("failed to record exchange")
	}
}

func (o *Orchestrator) observe(name string, outcome Outcome, elapsed time.Duration) {
	if o.observer != nil {
		o.observer.ObserveDispatch(name, outcome, elapsed)
	}
}

// EnableParallel switches to bounded parallel dispatch with n slots. Lowering
// the bound waits for running dispatches to fit under it.
func (o *Orchestrator) EnableParallel(n int64) {
	o.limiter.enable(n)
	o.logger.Info().Int64("max_concurrent", n).Msg("parallel dispatch enabled")
}

// DisableParallel switches to direct dispatch without a bound.
func (o *Orchestrator) DisableParallel() {
	o.limiter.disable()
	o.logger.Info().Msg("parallel dispatch disabled")
}

// InFlight returns the number of dispatches currently holding a slot.
func (o *Orchestrator) InFlight() int64 {
	return o.limiter.inFlight.Load()
}

// Metrics returns the performance counters of one worker.
func (o *Orchestrator) Metrics(name string) (agent.PerformanceSnapshot, error) {
	w, ok := o.registry.Get(name)
	if !ok || w.Metrics == nil {
		return agent.PerformanceSnapshot{}, fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	return w.Metrics.Snapshot(), nil
}

// AllMetrics returns the performance counters of every registered worker.
func (o *Orchestrator) AllMetrics() map[string]agent.PerformanceSnapshot {
	out := map[string]agent.PerformanceSnapshot{}
	for _, w := range o.registry.Workers() {
		if w.Metrics != nil {
			out[w.Name] = w.Metrics.Snapshot()
		}
	}
	return out
}

func (o *Orchestrator) Stats() Stats {
	parallel, capacity := o.limiter.state()
	return Stats{
		Submitted:     o.submitted.Load(),
		Dispatched:    o.dispatched.Load(),
		Succeeded:     o.succeeded.Load(),
		Failed:        o.failed.Load(),
		Unavailable:   o.unavailable.Load(),
		CircuitOpen:   o.circuitOpen.Load(),
		InFlight:      o.limiter.inFlight.Load(),
		Parallel:      parallel,
		MaxConcurrent: capacity,
	}
}

// AgentStatus lists every registered worker with its counters.
func (o *Orchestrator) AgentStatus() []AgentStatus {
	workers := o.registry.Workers()
	out := make([]AgentStatus, 0, len(workers))
	for _, w := range workers {
		s := AgentStatus{
			Name:         w.Name,
			Kind:         w.Kind,
			Group:        w.Group,
			Status:       w.Status,
			Capabilities: w.Capabilities,
			Error:        w.Error,
		}
		if w.Metrics != nil {
			s.Metrics = w.Metrics.Snapshot()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TestAgent routes message directly to the named worker.
func (o *Orchestrator) TestAgent(ctx context.Context, name, message string) (*task.Response, error) {
	if _, ok := o.registry.Get(name); !ok {
		return nil, fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	t := task.New(message, "", "en")
	t.Metadata = map[string]any{"preferredAgent": name, "test": true}
	return o.Submit(ctx, t), nil
}
