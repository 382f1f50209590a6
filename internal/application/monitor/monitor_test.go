package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/execution-hub/agent-orchestrator/internal/application/monitor/mocks"
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
)

func testConfig() Config {
	c := DefaultConfig()
	c.ProvisionDelay = 5 * time.Millisecond
	c.DrainDelay = 5 * time.Millisecond
	c.RecoveryTimeout = time.Hour
	return c
}

func newTestMonitor(t *testing.T, cfg Config, prober Prober, collector Collector) (*Monitor, *event.Recorder) {
	t.Helper()
	rec := &event.Recorder{}
	m, err := NewMonitor(cfg, prober, collector, rec, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	return m, rec
}

func policy(min, max int) agent.ScalingPolicy {
	return agent.ScalingPolicy{
		MinInstances:       min,
		MaxInstances:       max,
		TargetCPU:          70,
		ScaleUpThreshold:   80,
		ScaleDownThreshold: 30,
	}
}

func firstInstance(t *testing.T, m *Monitor, name string) agent.Instance {
	t.Helper()
	insts := m.Instances(name)
	require.NotEmpty(t, insts)
	return insts[0]
}

func countStatus(insts []agent.Instance, statuses ...agent.InstanceStatus) int {
	n := 0
	for _, i := range insts {
		for _, s := range statuses {
			if i.Status == s {
				n++
			}
		}
	}
	return n
}

func TestMonitor_BreakerOpensOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), "criminal").Return(errors.New("timeout")).Times(6)
	prober.EXPECT().Probe(gomock.Any(), "criminal").Return(nil).Times(1)

	m, rec := newTestMonitor(t, testConfig(), prober, nil)
	m.Track("criminal")
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		m.RunHealthChecks(ctx)
	}
	assert.True(t, m.Allow("criminal"))
	assert.Equal(t, 0, rec.Count(event.TypeBreakerOpened))

	m.RunHealthChecks(ctx)
	assert.False(t, m.Allow("criminal"))
	assert.Equal(t, 1, rec.Count(event.TypeBreakerOpened))

	m.RunHealthChecks(ctx)
	assert.Equal(t, 1, rec.Count(event.TypeBreakerOpened), "no second open event")
	state, ok := m.Breaker("criminal")
	require.True(t, ok)
	assert.Equal(t, 6, state.FailureCount)

	inst := firstInstance(t, m, "criminal")
	assert.Equal(t, agent.InstanceFailed, inst.Status)
	assert.Equal(t, 0, inst.Health.HealthScore)
	assert.Equal(t, 1, rec.Count(event.TypeFailed))
	assert.Equal(t, 6, rec.Count(event.TypeHealthChanged))

	m.RunHealthChecks(ctx)
	assert.True(t, m.Allow("criminal"))
	assert.Equal(t, 1, rec.Count(event.TypeBreakerClosed))
	assert.Equal(t, 1, rec.Count(event.TypeRecovered))

	inst = firstInstance(t, m, "criminal")
	assert.Equal(t, agent.InstanceActive, inst.Status)
	assert.True(t, inst.Health.IsHealthy)
	assert.Zero(t, inst.Health.ConsecutiveFailures)
	assert.Empty(t, inst.Health.Issues)
}

func TestMonitor_RecoveryAfterTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), "document").Return(errors.New("refused")).Times(1)

	cfg := testConfig()
	cfg.RecoveryTimeout = 10 * time.Millisecond
	m, rec := newTestMonitor(t, cfg, prober, nil)
	m.Track("document")

	m.RunHealthChecks(context.Background())
	assert.False(t, firstInstance(t, m, "document").Health.IsHealthy)

	assert.Eventually(t, func() bool { return rec.Count(event.TypeRecovered) == 1 }, time.Second, 5*time.Millisecond)
	inst := firstInstance(t, m, "document")
	assert.True(t, inst.Health.IsHealthy)
	assert.Equal(t, agent.InstanceActive, inst.Status)
}

func TestMonitor_ScalingStaysWithinBounds(t *testing.T) {
	m, rec := newTestMonitor(t, testConfig(), nil, nil)
	m.Track("document")
	require.NoError(t, m.ConfigureAutoScaling("document", policy(1, 3)))
	assert.Equal(t, 1, rec.Count(event.TypeAutoScalingConfigured))

	id := firstInstance(t, m, "document").ID
	for i := 0; i < 10; i++ {
		m.RecordSample(agent.Sample{Agent: "document", InstanceID: id, CPUPercent: 95, Timestamp: time.Now()})
	}

	for i := 0; i < 10; i++ {
		m.RunScaling()
		insts := m.Instances("document")
		assert.LessOrEqual(t, countStatus(insts, agent.InstanceActive, agent.InstanceScaling, agent.InstanceFailed), 3)
	}
	assert.Eventually(t, func() bool {
		return countStatus(m.Instances("document"), agent.InstanceActive) == 3
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.Count(event.TypeScaledUp))

	for i := 0; i < 10; i++ {
		m.RecordSample(agent.Sample{Agent: "document", InstanceID: id, CPUPercent: 5, Timestamp: time.Now()})
	}
	for i := 0; i < 10; i++ {
		m.RunScaling()
		assert.GreaterOrEqual(t, countStatus(m.Instances("document"), agent.InstanceActive), 1)
	}
	assert.Eventually(t, func() bool { return len(m.Instances("document")) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rec.Count(event.TypeScaledDown))
}

func TestMonitor_Cooldown(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil, nil)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	m.Track("intake")
	p := policy(1, 5)
	p.CooldownPeriod = time.Minute
	require.NoError(t, m.ConfigureAutoScaling("intake", p))

	id := firstInstance(t, m, "intake").ID
	m.RecordSample(agent.Sample{Agent: "intake", InstanceID: id, CPUPercent: 99, Timestamp: clock})

	m.RunScaling()
	m.RunScaling()
	assert.Len(t, m.Instances("intake"), 2)

	clock = clock.Add(2 * time.Minute)
	m.RunScaling()
	assert.Len(t, m.Instances("intake"), 3)
}

func TestMonitor_OverloadTriggersScaleUp(t *testing.T) {
	m, rec := newTestMonitor(t, testConfig(), nil, nil)
	m.Track("consultation")
	require.NoError(t, m.ConfigureAutoScaling("consultation", policy(1, 2)))

	id := firstInstance(t, m, "consultation").ID
	m.RecordSample(agent.Sample{
		Agent: "consultation", InstanceID: id,
		CPUPercent: 100, MemoryPercent: 100, AverageResponseTime: 5000, Timestamp: time.Now(),
	})

	assert.Equal(t, 1, rec.Count(event.TypeOverloaded))
	assert.Len(t, m.Instances("consultation"), 2)
	assert.Eventually(t, func() bool { return rec.Count(event.TypeScaledUp) == 1 }, time.Second, 5*time.Millisecond)

	m.RecordSample(agent.Sample{
		Agent: "consultation", InstanceID: id,
		CPUPercent: 100, MemoryPercent: 100, AverageResponseTime: 5000, Timestamp: time.Now(),
	})
	assert.Len(t, m.Instances("consultation"), 2, "max instances respected")
}

func TestMonitor_Rebalance(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil, nil)
	m.Track("business")
	require.NoError(t, m.ConfigureAutoScaling("business", policy(2, 4)))

	insts := m.Instances("business")
	require.Len(t, insts, 2)
	m.RecordSample(agent.Sample{Agent: "business", InstanceID: insts[0].ID, CPUPercent: 75, Timestamp: time.Now()})
	m.RecordSample(agent.Sample{Agent: "business", InstanceID: insts[1].ID, CPUPercent: 25, Timestamp: time.Now()})

	m.Rebalance()
	insts = m.Instances("business")
	assert.InDelta(t, 0.25, insts[0].Weight, 1e-9)
	assert.InDelta(t, 0.75, insts[1].Weight, 1e-9)

	m.Track("solo")
	m.RecordSample(agent.Sample{Agent: "solo", InstanceID: firstInstance(t, m, "solo").ID, CPUPercent: 90, Timestamp: time.Now()})
	m.Rebalance()
	assert.Equal(t, 1.0, firstInstance(t, m, "solo").Weight)
}

func TestMonitor_ConfigureAutoScaling(t *testing.T) {
	m, _ := newTestMonitor(t, testConfig(), nil, nil)
	m.Track("appointment")

	assert.ErrorIs(t, m.ConfigureAutoScaling("appointment", policy(3, 2)), agent.ErrInvalidPolicy)
	assert.ErrorIs(t, m.ConfigureAutoScaling("ghost", policy(1, 2)), agent.ErrWorkerNotFound)

	require.NoError(t, m.ConfigureAutoScaling("appointment", policy(2, 3)))
	assert.Equal(t, 2, countStatus(m.Instances("appointment"), agent.InstanceActive))
	p, ok := m.Policy("appointment")
	require.True(t, ok)
	assert.Equal(t, 3, p.MaxInstances)
}

func TestMonitor_LoweringMaxDrainsExcess(t *testing.T) {
	m, rec := newTestMonitor(t, testConfig(), nil, nil)
	m.Track("criminal")
	require.NoError(t, m.ConfigureAutoScaling("criminal", policy(4, 5)))
	require.Equal(t, 4, countStatus(m.Instances("criminal"), agent.InstanceActive))

	require.NoError(t, m.ConfigureAutoScaling("criminal", policy(1, 2)))
	insts := m.Instances("criminal")
	assert.Equal(t, 2, countStatus(insts, agent.InstanceActive, agent.InstanceScaling, agent.InstanceFailed))
	assert.Equal(t, 2, countStatus(insts, agent.InstanceInactive))

	assert.Eventually(t, func() bool { return len(m.Instances("criminal")) == 2 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return rec.Count(event.TypeScaledDown) == 2 }, time.Second, 5*time.Millisecond)
}

func TestMonitor_ReportFailure(t *testing.T) {
	m, rec := newTestMonitor(t, testConfig(), nil, nil)
	m.Track("removal")

	for i := 0; i < 7; i++ {
		m.ReportFailure("removal", errors.New("invoke failed"))
	}
	assert.False(t, m.Allow("removal"))
	assert.Equal(t, 1, rec.Count(event.TypeBreakerOpened))

	m.ReportFailure("ghost", errors.New("ignored"))
	assert.True(t, m.Allow("ghost"))

	m.WorkerUnregistered("removal")
	assert.Nil(t, m.Instances("removal"))
	assert.True(t, m.Allow("removal"))
}

func TestMonitor_SystemMetricsAndAlerts(t *testing.T) {
	m, rec := newTestMonitor(t, testConfig(), nil, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	m.Track("aila")
	m.Track("intake")
	id := firstInstance(t, m, "aila").ID

	m.RecordSample(agent.Sample{Agent: "aila", InstanceID: id, RequestCount: 100, ErrorCount: 100, AverageResponseTime: 9000, Timestamp: now.Add(-10 * time.Minute)})
	m.RecordSample(agent.Sample{Agent: "aila", InstanceID: id, RequestCount: 10, ErrorCount: 5, AverageResponseTime: 6000, MemoryPercent: 40, Timestamp: now})

	sys := m.SystemMetrics()
	assert.Equal(t, 2, sys.TotalAgents)
	assert.Equal(t, 2, sys.ActiveInstances)
	assert.Equal(t, 100.0, sys.OverallHealth)
	assert.Equal(t, int64(10), sys.TotalRequests)
	assert.InDelta(t, 0.5, sys.ErrorRate, 1e-9)
	assert.InDelta(t, 6000, sys.AverageResponseTime, 1e-9)

	fired := m.CheckAlerts()
	assert.ElementsMatch(t, []string{"high-response-time", "high-error-rate"}, fired)
	assert.Equal(t, 2, rec.Count(event.TypePerformanceAlert))
}

func TestNewMonitor_InvalidAlert(t *testing.T) {
	cfg := testConfig()
	cfg.Alerts = []AlertRule{{Name: "broken", Condition: "errorRate >"}}
	_, err := NewMonitor(cfg, nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Policies = map[string]agent.ScalingPolicy{"x": policy(0, 1)}
	_, err = NewMonitor(cfg, nil, nil, nil, zerolog.Nop())
	assert.ErrorIs(t, err, agent.ErrInvalidPolicy)
}

type staticCollector struct{ sample agent.Sample }

func (c staticCollector) Collect(context.Context, agent.Instance) (agent.Sample, error) {
	return c.sample, nil
}

func TestMonitor_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := mocks.NewMockProber(ctrl)
	prober.EXPECT().Probe(gomock.Any(), "intake").Return(nil).AnyTimes()

	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	cfg.HealthCheckInterval = 5 * time.Millisecond
	cfg.ProvisionDelay = time.Hour
	m, rec := newTestMonitor(t, cfg, prober, staticCollector{sample: agent.Sample{CPUPercent: 10}})
	m.Track("intake")
	require.NoError(t, m.ConfigureAutoScaling("intake", policy(1, 2)))

	m.Start(context.Background())
	m.Start(context.Background())
	assert.Equal(t, 1, rec.Count(event.TypeMonitoringStarted))
	assert.Eventually(t, func() bool { return len(m.Samples("intake", 0)) >= 2 }, time.Second, 5*time.Millisecond)

	m.scaleUp("intake")
	m.Stop()
	assert.Equal(t, 1, rec.Count(event.TypeMonitoringStopped))
	m.mu.Lock()
	assert.Empty(t, m.timers)
	m.mu.Unlock()
}

func TestEvaluateCondition(t *testing.T) {
	ok, err := EvaluateCondition("", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = EvaluateCondition("FALSE", nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = EvaluateCondition("errorRate > 0.2 && totalRequests >= 10", map[string]interface{}{"errorRate": 0.5, "totalRequests": 10.0})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = EvaluateCondition("errorRate + 1", map[string]interface{}{"errorRate": 0.5})
	assert.Error(t, err)
}
