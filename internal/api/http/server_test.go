package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/execution-hub/agent-orchestrator/internal/application/memory"
	"github.com/execution-hub/agent-orchestrator/internal/application/monitor"
	"github.com/execution-hub/agent-orchestrator/internal/application/orchestrator"
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
	"github.com/execution-hub/agent-orchestrator/internal/infrastructure/sse"
)

const adminToken = "s3cret-token"

type fakeRouter struct {
	last *task.Task
}

func (f *fakeRouter) Submit(_ context.Context, t *task.Task) *task.Response {
	f.last = t
	t.Intent = "appointment"
	return &task.Response{Agent: "appointment", Response: "booked"}
}

func (f *fakeRouter) AgentStatus() []orchestrator.AgentStatus {
	return []orchestrator.AgentStatus{{Name: "appointment", Status: agent.StatusActive}}
}

func (f *fakeRouter) Metrics(name string) (agent.PerformanceSnapshot, error) {
	if name != "appointment" {
		return agent.PerformanceSnapshot{}, fmt.Errorf("%w: %s", agent.ErrWorkerNotFound, name)
	}
	return agent.PerformanceSnapshot{RequestCount: 4, ErrorCount: 1}, nil
}

func (f *fakeRouter) Stats() orchestrator.Stats { return orchestrator.Stats{Submitted: 7} }

func (f *fakeRouter) TestAgent(_ context.Context, name, message string) (*task.Response, error) {
	return &task.Response{Agent: name, Response: message}, nil
}

type fakeBus struct {
	sent []*task.Message
}

func (f *fakeBus) Send(msg *task.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeBus) Pending() int { return len(f.sent) }

type mockMonitor struct {
	mock.Mock
}

func (m *mockMonitor) Instances(name string) []agent.Instance {
	args := m.Called(name)
	out, _ := args.Get(0).([]agent.Instance)
	return out
}

func (m *mockMonitor) Health(name string) map[string]agent.HealthStatus {
	args := m.Called(name)
	out, _ := args.Get(0).(map[string]agent.HealthStatus)
	return out
}

func (m *mockMonitor) Breaker(name string) (agent.BreakerState, bool) {
	args := m.Called(name)
	return args.Get(0).(agent.BreakerState), args.Bool(1)
}

func (m *mockMonitor) Samples(name string, n int) []agent.Sample {
	args := m.Called(name, n)
	out, _ := args.Get(0).([]agent.Sample)
	return out
}

func (m *mockMonitor) Policy(name string) (agent.ScalingPolicy, bool) {
	args := m.Called(name)
	return args.Get(0).(agent.ScalingPolicy), args.Bool(1)
}

func (m *mockMonitor) ConfigureAutoScaling(name string, p agent.ScalingPolicy) error {
	return m.Called(name, p).Error(0)
}

func (m *mockMonitor) SystemMetrics() monitor.SystemMetrics {
	return m.Called().Get(0).(monitor.SystemMetrics)
}

type fakeRegistry struct{ removed []string }

func (f *fakeRegistry) Unregister(name string) error {
	if name != "appointment" {
		return agent.ErrWorkerNotFound
	}
	f.removed = append(f.removed, name)
	return nil
}

type fakeMemory struct{}

func (fakeMemory) Snapshot(worker string) (memory.Snapshot, error) {
	if worker != "appointment" {
		return memory.Snapshot{}, memory.ErrUnknownWorker
	}
	return memory.Snapshot{Worker: worker}, nil
}

type testEnv struct {
	srv      *httptest.Server
	router   *fakeRouter
	bus      *fakeBus
	monitor  *mockMonitor
	registry *fakeRegistry
	hub      *sse.Hub
}

func newTestEnv(t *testing.T, withToken bool) *testEnv {
	t.Helper()
	hash := ""
	if withToken {
		h, err := bcrypt.GenerateFromPassword([]byte(adminToken), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(h)
	}
	env := &testEnv{
		router:   &fakeRouter{},
		bus:      &fakeBus{},
		monitor:  &mockMonitor{},
		registry: &fakeRegistry{},
		hub:      sse.NewHub(),
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("orchestrator_events_total 1\n"))
	})
	s := NewServer(env.router, env.bus, env.monitor, env.registry, fakeMemory{}, env.hub, metrics, hash)
	env.srv = httptest.NewServer(s.Router())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSubmitTask(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, http.MethodPost, "/v1/tasks",
		`{"message":"I need an appointment","sessionId":"s1","language":"es","priority":"HIGH","metadata":{"preferredDate":"2026-10-19"}}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "appointment", body["agent"])
	assert.Equal(t, "booked", body["response"])
	assert.Equal(t, "appointment", body["intent"])
	assert.NotEmpty(t, body["taskId"])

	require.NotNil(t, env.router.last)
	assert.Equal(t, task.PriorityHigh, env.router.last.Priority)
	assert.Equal(t, "es", env.router.last.Language)
	assert.Equal(t, "2026-10-19", env.router.last.MetaString("preferredDate"))
}

func TestSubmitTask_Validation(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, http.MethodPost, "/v1/tasks", `{"message":"  "}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_PARAM", body["error"])

	resp, _ = env.do(t, http.MethodPost, "/v1/tasks", `{"message":"hi","unknown":1}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendMessage(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, http.MethodPost, "/v1/messages", `{"from":"intake","to":"appointment","kind":"request","payload":{"slot":"09:00"}}`, "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, float64(1), body["pending"])

	resp, _ = env.do(t, http.MethodPost, "/v1/messages", `{"from":"intake","kind":"request"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentReads(t *testing.T) {
	env := newTestEnv(t, false)
	env.monitor.On("Instances", "appointment").Return([]agent.Instance{{ID: "appointment-1", Agent: "appointment", Status: agent.InstanceActive}})
	env.monitor.On("Instances", "ghost").Return(nil)
	env.monitor.On("Breaker", "appointment").Return(agent.BreakerState{FailureCount: 2, Threshold: 5}, true)
	env.monitor.On("Health", "appointment").Return(map[string]agent.HealthStatus{})
	env.monitor.On("Samples", "appointment", 5).Return([]agent.Sample{{Agent: "appointment"}})

	resp, body := env.do(t, http.MethodGet, "/v1/agents", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["agents"], 1)

	resp, body = env.do(t, http.MethodGet, "/v1/agents/appointment/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0.25, body["errorRate"])

	resp, _ = env.do(t, http.MethodGet, "/v1/agents/ghost/metrics", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/agents/appointment/instances", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["instances"], 1)

	resp, _ = env.do(t, http.MethodGet, "/v1/agents/ghost/instances", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/v1/agents/appointment/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	breaker := body["breaker"].(map[string]any)
	assert.Equal(t, float64(2), breaker["failureCount"])

	resp, body = env.do(t, http.MethodGet, "/v1/agents/appointment/samples?limit=5", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["samples"], 1)

	env.monitor.AssertExpectations(t)
}

func TestSystemMetrics(t *testing.T) {
	env := newTestEnv(t, false)
	env.monitor.On("SystemMetrics").Return(monitor.SystemMetrics{TotalAgents: 3, OverallHealth: 100})

	resp, body := env.do(t, http.MethodGet, "/v1/system", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["system"].(map[string]any)["totalAgents"])
	assert.Equal(t, float64(7), body["router"].(map[string]any)["submitted"])
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t, true)

	resp, _ := env.do(t, http.MethodDelete, "/v1/agents/appointment", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/v1/agents/appointment", "", "wrong")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, env.registry.removed)

	resp, _ = env.do(t, http.MethodDelete, "/v1/agents/appointment", "", adminToken)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"appointment"}, env.registry.removed)

	resp, _ = env.do(t, http.MethodDelete, "/v1/agents/ghost", "", adminToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminRoutes_DisabledWithoutHash(t *testing.T) {
	env := newTestEnv(t, false)
	resp, body := env.do(t, http.MethodGet, "/v1/agents/appointment/memory", "", adminToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", body["error"])
}

func TestPutScaling(t *testing.T) {
	env := newTestEnv(t, true)
	want := agent.ScalingPolicy{MinInstances: 2, MaxInstances: 4, TargetCPU: 70, ScaleUpThreshold: 80, ScaleDownThreshold: 30, CooldownPeriod: time.Minute}
	env.monitor.On("ConfigureAutoScaling", "appointment", want).Return(nil)
	env.monitor.On("ConfigureAutoScaling", "appointment", mock.Anything).Return(agent.ErrInvalidPolicy)

	resp, body := env.do(t, http.MethodPut, "/v1/agents/appointment/scaling",
		`{"minInstances":2,"maxInstances":4,"targetCpuUtilization":70,"scaleUpThreshold":80,"scaleDownThreshold":30,"cooldownPeriod":"1m"}`, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1m0s", body["cooldownPeriod"])

	resp, _ = env.do(t, http.MethodPut, "/v1/agents/appointment/scaling",
		`{"minInstances":5,"maxInstances":1,"scaleUpThreshold":80}`, adminToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPut, "/v1/agents/appointment/scaling", `{"cooldownPeriod":"soon"}`, adminToken)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetScaling(t *testing.T) {
	env := newTestEnv(t, false)
	env.monitor.On("Policy", "appointment").Return(agent.DefaultScalingPolicy(), true)
	env.monitor.On("Policy", "ghost").Return(agent.ScalingPolicy{}, false)

	resp, body := env.do(t, http.MethodGet, "/v1/agents/appointment/scaling", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5), body["maxInstances"])

	resp, _ = env.do(t, http.MethodGet, "/v1/agents/ghost/scaling", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAgentMemoryAndTest(t *testing.T) {
	env := newTestEnv(t, true)

	resp, body := env.do(t, http.MethodGet, "/v1/agents/appointment/memory", "", adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "appointment", body["worker"])

	resp, _ = env.do(t, http.MethodGet, "/v1/agents/ghost/memory", "", adminToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/v1/agents/appointment/test", `{}`, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello, this is a test message.", body["response"])
}

func TestHealthzAndMetrics(t *testing.T) {
	env := newTestEnv(t, false)

	resp, body := env.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	r, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestStreamEvents(t *testing.T) {
	env := newTestEnv(t, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/v1/events?client_id=c1&agent=document", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	require.Eventually(t, func() bool { return env.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	env.hub.Publish(event.New(event.TypeFailed, "intake", nil))
	env.hub.Publish(event.New(event.TypeBreakerOpened, "document", nil))

	var eventLine string
	for !strings.HasPrefix(eventLine, "event:") {
		eventLine, err = reader.ReadString('\n')
		require.NoError(t, err)
	}
	assert.Equal(t, "event: circuit-breaker-opened\n", eventLine)
	data, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, data, `"agent":"document"`)
}
