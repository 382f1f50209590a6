package monitor

import (
	"math"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

const (
	cpuWindow = 10
	minWeight = 0.1
)

// RunScaling applies every configured policy once.
func (m *Monitor) RunScaling() {
	type decision struct {
		name string
		up   bool
	}
	var decisions []decision

	m.mu.Lock()
	now := m.now()
	for name, t := range m.agents {
		if t.policy == nil || t.count(isActive) == 0 {
			continue
		}
		if !t.lastScale.IsZero() && now.Sub(t.lastScale) < t.policy.CooldownPeriod {
			continue
		}
		recent := t.samples.Last(cpuWindow)
		if len(recent) == 0 {
			continue
		}
		var sum float64
		for _, s := range recent {
			sum += s.CPUPercent
		}
		avg := sum / float64(len(recent))

		switch {
		case avg > t.policy.ScaleUpThreshold && t.count(isLive) < t.policy.MaxInstances:
			decisions = append(decisions, decision{name: name, up: true})
		case avg < t.policy.ScaleDownThreshold && t.count(isActive) > t.policy.MinInstances:
			decisions = append(decisions, decision{name: name, up: false})
		}
	}
	m.mu.Unlock()

	for _, d := range decisions {
		if d.up {
			m.scaleUp(d.name)
		} else {
			m.scaleDown(d.name)
		}
	}
}

// scaleUp adds a provisioning instance that becomes active after the
// provision delay. It does nothing at the maximum or within the cooldown.
func (m *Monitor) scaleUp(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.agents[name]
	if !ok || t.policy == nil {
		return false
	}
	now := m.now()
	if !t.lastScale.IsZero() && now.Sub(t.lastScale) < t.policy.CooldownPeriod {
		return false
	}
	if t.count(isLive) >= t.policy.MaxInstances {
		return false
	}

	inst := agent.NewInstance(name, agent.InstanceScaling, now)
	t.instances = append(t.instances, inst)
	t.lastScale = now
	id := inst.ID
	m.logger.Info().Str("agent", name).Str("instance_id", id).Msg("scaling up")

	m.afterLocked(m.cfg.ProvisionDelay, func() {
		m.mu.Lock()
		t, ok := m.agents[name]
		var inst *agent.Instance
		if ok {
			inst = t.instance(id)
		}
		if inst == nil || inst.Status != agent.InstanceScaling || inst.Transition(agent.InstanceActive) != nil {
			m.mu.Unlock()
			return
		}
		total := t.count(isLive)
		m.mu.Unlock()

		m.publisher.Publish(event.New(event.TypeScaledUp, name, map[string]any{
			"instances": total,
		}).WithInstance(id))
	})
	return true
}

// scaleDown drains the lowest-load active instance and removes it after the
// drain delay. It never goes below the policy minimum.
func (m *Monitor) scaleDown(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.agents[name]
	if !ok || t.policy == nil {
		return false
	}
	now := m.now()
	if !t.lastScale.IsZero() && now.Sub(t.lastScale) < t.policy.CooldownPeriod {
		return false
	}
	if t.count(isActive) <= t.policy.MinInstances {
		return false
	}

	var victim *agent.Instance
	for _, inst := range t.instances {
		if inst.Status == agent.InstanceActive && (victim == nil || inst.CurrentLoad < victim.CurrentLoad) {
			victim = inst
		}
	}
	if victim == nil || !m.drainLocked(t, victim) {
		return false
	}
	t.lastScale = now
	return true
}

// drainLocked takes inst out of service and removes it after the drain delay.
func (m *Monitor) drainLocked(t *tracked, inst *agent.Instance) bool {
	if inst.Transition(agent.InstanceInactive) != nil {
		return false
	}
	name, id := t.name, inst.ID
	m.logger.Info().Str("agent", name).Str("instance_id", id).Msg("scaling down")

	m.afterLocked(m.cfg.DrainDelay, func() {
		m.mu.Lock()
		t, ok := m.agents[name]
		removed := false
		total := 0
		if ok {
			for i, inst := range t.instances {
				if inst.ID == id {
					t.instances = append(t.instances[:i], t.instances[i+1:]...)
					removed = true
					break
				}
			}
			total = t.count(isLive)
		}
		m.mu.Unlock()
		if removed {
			m.publisher.Publish(event.New(event.TypeScaledDown, name, map[string]any{
				"instances": total,
			}).WithInstance(id))
		}
	})
	return true
}

// trimLocked drains live instances above limit. Failed instances go first,
// then provisioning ones, then the least loaded active ones.
func (m *Monitor) trimLocked(t *tracked, limit int) {
	for t.count(isLive) > limit {
		var victim *agent.Instance
		for _, inst := range t.instances {
			if !isLive(inst) {
				continue
			}
			if victim == nil || drainRank(inst) < drainRank(victim) ||
				(drainRank(inst) == drainRank(victim) && inst.CurrentLoad < victim.CurrentLoad) {
				victim = inst
			}
		}
		if victim == nil || !m.drainLocked(t, victim) {
			return
		}
	}
}

func drainRank(inst *agent.Instance) int {
	switch inst.Status {
	case agent.InstanceFailed:
		return 0
	case agent.InstanceScaling:
		return 1
	default:
		return 2
	}
}

// Rebalance assigns weights inversely proportional to load across active
// healthy instances. Workers with fewer than two such instances, or no load,
// keep their weights.
func (m *Monitor) Rebalance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.agents {
		var serving []*agent.Instance
		var total float64
		for _, inst := range t.instances {
			if inst.Serving() {
				serving = append(serving, inst)
				total += inst.CurrentLoad
			}
		}
		if len(serving) < 2 || total <= 0 {
			continue
		}
		for _, inst := range serving {
			inst.Weight = math.Max(minWeight, 1-inst.CurrentLoad/total)
		}
	}
}
