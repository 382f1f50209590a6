package monitor

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

type target struct {
	agent string
	inst  agent.Instance
}

// targets lists instances matching pred across all tracked workers.
func (m *Monitor) targets(pred func(*agent.Instance) bool) []target {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []target
	for name, t := range m.agents {
		for _, inst := range t.instances {
			if pred(inst) {
				out = append(out, target{agent: name, inst: inst.Clone()})
			}
		}
	}
	return out
}

// collect samples every active instance. Overloaded instances raise
// agent-overloaded and trigger a scale-up when a policy exists.
func (m *Monitor) collect(ctx context.Context) {
	if m.collector == nil {
		return
	}
	for _, tg := range m.targets(isActive) {
		s, err := m.collector.Collect(ctx, tg.inst)
		if err != nil {
			m.logger.Warn().Err(err).Str("agent", tg.agent).Str("instance_id", tg.inst.ID).Msg("failed to collect metrics")
			continue
		}
		s.Agent, s.InstanceID = tg.agent, tg.inst.ID
		if s.Timestamp.IsZero() {
			s.Timestamp = m.now()
		}
		m.RecordSample(s)
	}
}

// RecordSample stores a sample and updates the instance load.
func (m *Monitor) RecordSample(s agent.Sample) {
	load := s.Load()

	m.mu.Lock()
	t, ok := m.agents[s.Agent]
	if !ok {
		m.mu.Unlock()
		return
	}
	t.samples.Push(s)
	inst := t.instance(s.InstanceID)
	if inst != nil {
		sample := s
		inst.LastSample = &sample
		inst.CurrentLoad = load
		inst.LastActivity = s.Timestamp
	}
	overloaded := inst != nil && load > m.cfg.OverloadThreshold
	hasPolicy := t.policy != nil
	m.mu.Unlock()

	if !overloaded {
		return
	}
	m.publisher.Publish(event.New(event.TypeOverloaded, s.Agent, map[string]any{
		"load": load,
	}).WithInstance(s.InstanceID))
	m.logger.Warn().Str("agent", s.Agent).Str("instance_id", s.InstanceID).Float64("load", load).Msg("agent overloaded")
	if hasPolicy {
		m.scaleUp(s.Agent)
	}
}

type probeResult struct {
	target
	err     error
	elapsed time.Duration
}

// RunHealthChecks probes every active or failed instance and applies the
// results.
func (m *Monitor) RunHealthChecks(ctx context.Context) {
	if m.prober == nil {
		return
	}
	targets := m.targets(func(i *agent.Instance) bool {
		return i.Status == agent.InstanceActive || i.Status == agent.InstanceFailed
	})
	results := make([]probeResult, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.ProbeConcurrency)
	for i, tg := range targets {
		i, tg := i, tg
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, m.cfg.ProbeTimeout)
			defer cancel()
			start := time.Now()
			err := m.prober.Probe(pctx, tg.agent)
			results[i] = probeResult{target: tg, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	for _, r := range results {
		m.applyProbe(r)
	}
}

func (m *Monitor) applyProbe(r probeResult) {
	now := m.now()
	var events []*event.Event

	m.mu.Lock()
	t, ok := m.agents[r.agent]
	if !ok {
		m.mu.Unlock()
		return
	}
	inst := t.instance(r.inst.ID)
	if inst == nil || inst.Status == agent.InstanceInactive {
		m.mu.Unlock()
		return
	}

	if r.err == nil {
		wasHealthy := inst.Health.IsHealthy
		wasFailed := inst.Status == agent.InstanceFailed
		inst.Health.RecordSuccess(r.elapsed, now)
		if wasFailed && inst.Transition(agent.InstanceActive) == nil {
			delete(t.recovering, inst.ID)
			events = append(events, event.New(event.TypeRecovered, r.agent, nil).WithInstance(inst.ID))
		}
		if !wasHealthy {
			events = append(events, healthChanged(r.agent, inst))
		}
		if t.breaker.RecordSuccess() {
			events = append(events, event.New(event.TypeBreakerClosed, r.agent, nil))
		}
	} else {
		inst.Health.RecordFailure(r.err.Error(), r.elapsed, now)
		events = append(events, healthChanged(r.agent, inst))
		if t.breaker.RecordFailure(now) {
			events = append(events, event.New(event.TypeBreakerOpened, r.agent, map[string]any{
				"failures": t.breaker.State().FailureCount,
			}))
		}
		if inst.Health.ConsecutiveFailures >= m.cfg.MaxRetries && inst.Status == agent.InstanceActive {
			if inst.Transition(agent.InstanceFailed) == nil {
				events = append(events, event.New(event.TypeFailed, r.agent, map[string]any{
					"consecutiveFailures": inst.Health.ConsecutiveFailures,
					"issues":              append([]string(nil), inst.Health.Issues...),
				}).WithInstance(inst.ID))
			}
		}
		if !t.recovering[inst.ID] {
			t.recovering[inst.ID] = true
			agentName, id := r.agent, inst.ID
			m.afterLocked(m.cfg.RecoveryTimeout, func() { m.recover(agentName, id) })
		}
	}
	m.mu.Unlock()

	for _, e := range events {
		m.publisher.Publish(e)
	}
	if r.err != nil {
		m.logger.Warn().Err(r.err).Str("agent", r.agent).Str("instance_id", r.inst.ID).Msg("health check failed")
	}
}

func healthChanged(name string, inst *agent.Instance) *event.Event {
	return event.New(event.TypeHealthChanged, name, map[string]any{
		"isHealthy":           inst.Health.IsHealthy,
		"healthScore":         inst.Health.HealthScore,
		"consecutiveFailures": inst.Health.ConsecutiveFailures,
	}).WithInstance(inst.ID)
}

// recover resets an unhealthy instance and returns it to service.
func (m *Monitor) recover(name, instanceID string) {
	m.mu.Lock()
	t, ok := m.agents[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(t.recovering, instanceID)
	inst := t.instance(instanceID)
	if inst == nil || inst.Status == agent.InstanceInactive || inst.Serving() {
		m.mu.Unlock()
		return
	}
	inst.Health.IsHealthy = true
	inst.Health.HealthScore = 100
	inst.Health.ConsecutiveFailures = 0
	inst.Health.Issues = []string{}
	_ = inst.Transition(agent.InstanceActive)
	m.mu.Unlock()

	m.publisher.Publish(event.New(event.TypeRecovered, name, nil).WithInstance(instanceID))
	m.logger.Info().Str("agent", name).Str("instance_id", instanceID).Msg("agent recovered")
}
