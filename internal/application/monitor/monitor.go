package monitor

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_prober.go -package=mocks . Prober

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

// Prober checks whether a worker is alive.
type Prober interface {
	Probe(ctx context.Context, worker string) error
}

// Collector takes one metrics sample of an instance.
type Collector interface {
	Collect(ctx context.Context, inst agent.Instance) (agent.Sample, error)
}

// Config controls monitoring cadence, thresholds and scaling delays.
type Config struct {
	Interval            time.Duration
	HealthCheckInterval time.Duration
	ProbeTimeout        time.Duration
	BreakerThreshold    int
	MaxRetries          int
	RecoveryTimeout     time.Duration
	OverloadThreshold   float64
	ProvisionDelay      time.Duration
	DrainDelay          time.Duration
	SampleCapacity      int
	SystemWindow        time.Duration
	ProbeConcurrency    int
	Alerts              []AlertRule
	Policies            map[string]agent.ScalingPolicy
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		Interval:            30 * time.Second,
		HealthCheckInterval: 10 * time.Second,
		ProbeTimeout:        5 * time.Second,
		BreakerThreshold:    agent.DefaultBreakerThreshold,
		MaxRetries:          3,
		RecoveryTimeout:     60 * time.Second,
		OverloadThreshold:   0.8,
		ProvisionDelay:      5 * time.Second,
		DrainDelay:          10 * time.Second,
		SampleCapacity:      agent.DefaultSampleCapacity,
		SystemWindow:        5 * time.Minute,
		ProbeConcurrency:    8,
		Alerts:              DefaultAlertRules(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = d.HealthCheckInterval
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = d.BreakerThreshold
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = d.RecoveryTimeout
	}
	if c.OverloadThreshold <= 0 {
		c.OverloadThreshold = d.OverloadThreshold
	}
	if c.ProvisionDelay <= 0 {
		c.ProvisionDelay = d.ProvisionDelay
	}
	if c.DrainDelay <= 0 {
		c.DrainDelay = d.DrainDelay
	}
	if c.SampleCapacity <= 0 {
		c.SampleCapacity = d.SampleCapacity
	}
	if c.SystemWindow <= 0 {
		c.SystemWindow = d.SystemWindow
	}
	if c.ProbeConcurrency <= 0 {
		c.ProbeConcurrency = d.ProbeConcurrency
	}
	if c.Alerts == nil {
		c.Alerts = d.Alerts
	}
	return c
}

// tracked is the monitor state of one worker.
type tracked struct {
	name       string
	instances  []*agent.Instance
	breaker    *agent.CircuitBreaker
	samples    *agent.SampleRing
	policy     *agent.ScalingPolicy
	lastScale  time.Time
	recovering map[string]bool
}

func (t *tracked) instance(id string) *agent.Instance {
	for _, inst := range t.instances {
		if inst.ID == id {
			return inst
		}
	}
	return nil
}

func (t *tracked) count(pred func(*agent.Instance) bool) int {
	n := 0
	for _, inst := range t.instances {
		if pred(inst) {
			n++
		}
	}
	return n
}

func isActive(i *agent.Instance) bool { return i.Status == agent.InstanceActive }
func isLive(i *agent.Instance) bool   { return i.Status.Live() }

// Monitor tracks instance health, feeds circuit breakers, balances weights
// and makes scaling decisions for every registered worker.
type Monitor struct {
	mu        sync.Mutex
	agents    map[string]*tracked
	timers    map[*time.Timer]struct{}
	cfg       Config
	alerts    []compiledAlert
	prober    Prober
	collector Collector
	publisher event.Publisher
	now       func() time.Time
	logger    zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor creates a monitor. collector may be nil, in which case no
// samples are taken.
func NewMonitor(cfg Config, prober Prober, collector Collector, publisher event.Publisher, logger zerolog.Logger) (*Monitor, error) {
	cfg = cfg.withDefaults()
	alerts, err := compileAlerts(cfg.Alerts)
	if err != nil {
		return nil, err
	}
	for name, p := range cfg.Policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("scaling policy %s: %w", name, err)
		}
	}
	if publisher == nil {
		publisher = event.Discard
	}
	return &Monitor{
		agents:    make(map[string]*tracked),
		timers:    make(map[*time.Timer]struct{}),
		cfg:       cfg,
		alerts:    alerts,
		prober:    prober,
		collector: collector,
		publisher: publisher,
		now:       time.Now,
		logger:    logger.With().Str("service", "monitor").Logger(),
	}, nil
}

// WorkerRegistered starts tracking w.
func (m *Monitor) WorkerRegistered(w *agent.Worker) {
	m.Track(w.Name)
}

// WorkerUnregistered stops tracking the worker.
func (m *Monitor) WorkerUnregistered(name string) {
	m.StopTracking(name)
}

// Track starts monitoring a worker with one active instance. A configured
// scaling policy is applied immediately.
func (m *Monitor) Track(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[name]; ok {
		return
	}
	now := m.now()
	t := &tracked{
		name:       name,
		instances:  []*agent.Instance{agent.NewInstance(name, agent.InstanceActive, now)},
		breaker:    agent.NewCircuitBreaker(m.cfg.BreakerThreshold),
		samples:    agent.NewSampleRing(m.cfg.SampleCapacity),
		recovering: map[string]bool{},
	}
	m.agents[name] = t
	if p, ok := m.cfg.Policies[name]; ok {
		m.applyPolicyLocked(t, p, now)
	}
	m.logger.Info().Str("agent", name).Msg("monitoring agent")
}

// StopTracking drops all monitor state of a worker.
func (m *Monitor) StopTracking(name string) {
	m.mu.Lock()
	_, ok := m.agents[name]
	delete(m.agents, name)
	m.mu.Unlock()
	if ok {
		m.logger.Info().Str("agent", name).Msg("stopped monitoring agent")
	}
}

// ConfigureAutoScaling validates and installs a scaling policy, provisioning
// instances up to the policy minimum and draining those above the maximum.
func (m *Monitor) ConfigureAutoScaling(name string, p agent.ScalingPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	t, ok := m.agents[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	m.applyPolicyLocked(t, p, m.now())
	m.mu.Unlock()

	m.publisher.Publish(event.New(event.TypeAutoScalingConfigured, name, map[string]any{
		"minInstances":       p.MinInstances,
		"maxInstances":       p.MaxInstances,
		"scaleUpThreshold":   p.ScaleUpThreshold,
		"scaleDownThreshold": p.ScaleDownThreshold,
		"cooldownPeriod":     p.CooldownPeriod.String(),
	}))
	m.logger.Info().Str("agent", name).Int("min", p.MinInstances).Int("max", p.MaxInstances).Msg("auto-scaling configured")
	return nil
}

func (m *Monitor) applyPolicyLocked(t *tracked, p agent.ScalingPolicy, now time.Time) {
	policy := p
	t.policy = &policy
	m.trimLocked(t, p.MaxInstances)
	for t.count(isActive) < p.MinInstances && t.count(isLive) < p.MaxInstances {
		t.instances = append(t.instances, agent.NewInstance(t.name, agent.InstanceActive, now))
	}
}

// Policy returns the scaling policy of a worker.
func (m *Monitor) Policy(name string) (agent.ScalingPolicy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.agents[name]
	if !ok || t.policy == nil {
		return agent.ScalingPolicy{}, false
	}
	return *t.policy, true
}

// Allow reports whether the worker's breaker admits dispatches. Untracked
// workers are admitted.
func (m *Monitor) Allow(worker string) bool {
	m.mu.Lock()
	t, ok := m.agents[worker]
	m.mu.Unlock()
	if !ok {
		return true
	}
	return !t.breaker.IsOpen()
}

// ReportFailure feeds a dispatch failure into the worker's breaker.
func (m *Monitor) ReportFailure(worker string, err error) {
	m.mu.Lock()
	t, ok := m.agents[worker]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.logger.Warn().Err(err).Str("agent", worker).Msg("agent failure reported")
	if t.breaker.RecordFailure(m.now()) {
		m.breakerOpened(worker, t.breaker.State())
	}
}

func (m *Monitor) breakerOpened(worker string, s agent.BreakerState) {
	m.publisher.Publish(event.New(event.TypeBreakerOpened, worker, map[string]any{
		"failures": s.FailureCount,
	}))
	m.logger.Warn().Str("agent", worker).Int("failures", s.FailureCount).Msg("circuit breaker opened")
}

// Breaker returns the breaker state of a worker.
func (m *Monitor) Breaker(worker string) (agent.BreakerState, bool) {
	m.mu.Lock()
	t, ok := m.agents[worker]
	m.mu.Unlock()
	if !ok {
		return agent.BreakerState{}, false
	}
	return t.breaker.State(), true
}

// Instances returns copies of a worker's instances.
func (m *Monitor) Instances(worker string) []agent.Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.agents[worker]
	if !ok {
		return nil
	}
	out := make([]agent.Instance, 0, len(t.instances))
	for _, inst := range t.instances {
		out = append(out, inst.Clone())
	}
	return out
}

// Health returns the health of every instance keyed by instance id.
func (m *Monitor) Health(worker string) map[string]agent.HealthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.agents[worker]
	if !ok {
		return nil
	}
	out := make(map[string]agent.HealthStatus, len(t.instances))
	for _, inst := range t.instances {
		out[inst.ID] = inst.Health.Clone()
	}
	return out
}

// Samples returns up to n most recent samples of a worker.
func (m *Monitor) Samples(worker string, n int) []agent.Sample {
	m.mu.Lock()
	t, ok := m.agents[worker]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return t.samples.Last(n)
}

// Agents returns the tracked worker names.
func (m *Monitor) Agents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.agents))
	for name := range m.agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Start runs the full monitoring cycle and the health sub-cycle until Stop
// or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	m.loop(ctx, m.cfg.Interval, m.RunCycle)
	m.loop(ctx, m.cfg.HealthCheckInterval, m.RunHealthChecks)

	m.publisher.Publish(event.New(event.TypeMonitoringStarted, "", map[string]any{
		"interval":            m.cfg.Interval.String(),
		"healthCheckInterval": m.cfg.HealthCheckInterval.String(),
	}))
	m.logger.Info().
		Dur("interval", m.cfg.Interval).
		Dur("health_interval", m.cfg.HealthCheckInterval).
		Msg("monitoring started")
}

func (m *Monitor) loop(ctx context.Context, every time.Duration, fn func(context.Context)) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Stop cancels both loops and every pending provision, drain and recovery
// timer.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	for timer := range m.timers {
		timer.Stop()
	}
	m.timers = make(map[*time.Timer]struct{})
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	m.wg.Wait()
	m.publisher.Publish(event.New(event.TypeMonitoringStopped, "", nil))
	m.logger.Info().Msg("monitoring stopped")
}

// afterLocked schedules fn after d. The timer is cancelled by Stop.
func (m *Monitor) afterLocked(d time.Duration, fn func()) {
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		m.mu.Lock()
		_, pending := m.timers[timer]
		delete(m.timers, timer)
		m.mu.Unlock()
		if pending {
			fn()
		}
	})
	m.timers[timer] = struct{}{}
}

// RunCycle collects samples, checks health, scales, rebalances weights and
// evaluates performance alerts.
func (m *Monitor) RunCycle(ctx context.Context) {
	m.collect(ctx)
	m.RunHealthChecks(ctx)
	m.RunScaling()
	m.Rebalance()
	m.CheckAlerts()
}
