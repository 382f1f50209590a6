package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/event"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

type mockListener struct {
	mock.Mock
}

func (m *mockListener) WorkerRegistered(w *agent.Worker) { m.Called(w.Name) }
func (m *mockListener) WorkerUnregistered(name string)   { m.Called(name) }

type fakeScheduler struct {
	slots   []Slot
	booking *Booking
	booked  int
}

func (f *fakeScheduler) AvailableDates(_ context.Context, from time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, from.AddDate(0, 0, i))
	}
	return out, nil
}

func (f *fakeScheduler) FindSlots(context.Context, SlotRequest) ([]Slot, error) {
	return f.slots, nil
}

func (f *fakeScheduler) Book(context.Context, string, Slot, SlotRequest) (*Booking, error) {
	f.booked++
	return f.booking, nil
}

type fakeAnalyzer struct {
	result *Analysis
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, AnalysisRequest) (*Analysis, error) {
	return f.result, f.err
}

type fakeDocs struct{ report *DocumentReport }

func (f *fakeDocs) AnalyzeDocument(context.Context, DocumentRequest) (*DocumentReport, error) {
	return f.report, nil
}

type fakeIntake struct{}

func (fakeIntake) ProcessIntake(_ context.Context, req IntakeRequest) (*IntakeResult, error) {
	return &IntakeResult{Summary: "recorded: " + req.ClientInput, PracticeArea: "family", Urgency: "low"}, nil
}

func newTestRegistry() (*Registry, *event.Recorder) {
	rec := &event.Recorder{}
	return NewRegistry(rec, zerolog.Nop()), rec
}

func TestRegistry_RegisterAndUnregister(t *testing.T) {
	r, _ := newTestRegistry()
	l := &mockListener{}
	l.On("WorkerRegistered", "consultation").Once()
	l.On("WorkerUnregistered", "consultation").Once()
	r.AddListener(l)

	require.NoError(t, r.Register(WorkerSpec{
		Name: "consultation", Kind: agent.KindAnalyzer, Impl: &fakeAnalyzer{},
		Capabilities: []string{"legal-analysis"},
	}))

	w, ok := r.Get("consultation")
	require.True(t, ok)
	assert.True(t, w.Available())
	assert.True(t, w.HasCapability("legal-analysis"))
	assert.NotNil(t, w.Metrics)

	err := r.Register(WorkerSpec{Name: "consultation", Kind: agent.KindAnalyzer, Impl: &fakeAnalyzer{}})
	assert.ErrorIs(t, err, agent.ErrWorkerExists)

	require.NoError(t, r.Unregister("consultation"))
	_, ok = r.Get("consultation")
	assert.False(t, ok)
	assert.ErrorIs(t, r.Unregister("consultation"), agent.ErrWorkerNotFound)

	l.AssertExpectations(t)
}

func TestRegistry_Initialize_CapabilityMismatch(t *testing.T) {
	r, rec := newTestRegistry()

	sum := r.Initialize([]WorkerSpec{
		{Name: "appointment", Kind: agent.KindScheduler, Impl: &fakeScheduler{}},
		{Name: "document", Kind: agent.KindDocument, Impl: &fakeScheduler{}},
		{Name: "intake", Kind: agent.KindIntake, Impl: fakeIntake{}},
	})

	assert.ElementsMatch(t, []string{"appointment", "intake"}, sum.Succeeded)
	require.Contains(t, sum.Failed, "document")
	assert.Equal(t, []string{"appointment", "intake"}, r.Names())

	w, ok := r.Get("document")
	require.True(t, ok)
	assert.Equal(t, agent.StatusFailed, w.Status)
	assert.False(t, w.Available())
	assert.Contains(t, r.Failed(), "document")
	assert.Equal(t, 1, rec.Count(event.TypeAgentsInitialized))

	err := r.Probe(context.Background(), "document")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestRegistry_Probe(t *testing.T) {
	r, _ := newTestRegistry()
	down := errors.New("down")
	require.NoError(t, r.Register(WorkerSpec{
		Name: "removal", Kind: agent.KindHandler,
		Impl:        HandlerFunc(func(context.Context, *task.Task) (*task.Response, error) { return &task.Response{}, nil }),
		HealthCheck: func(context.Context) error { return down },
	}))
	require.NoError(t, r.Register(WorkerSpec{Name: "intake", Kind: agent.KindIntake, Impl: fakeIntake{}}))

	assert.ErrorIs(t, r.Probe(context.Background(), "removal"), down)
	assert.NoError(t, r.Probe(context.Background(), "intake"))
	assert.ErrorIs(t, r.Probe(context.Background(), "ghost"), agent.ErrWorkerNotFound)
}

func TestRegistry_RegisterRequiresName(t *testing.T) {
	r, _ := newTestRegistry()
	assert.ErrorIs(t, r.Register(WorkerSpec{Kind: agent.KindHandler}), ErrInvalidSpec)
}

func TestRegistry_Metrics(t *testing.T) {
	r, _ := newTestRegistry()
	require.NoError(t, r.Register(WorkerSpec{Name: "intake", Kind: agent.KindIntake, Impl: fakeIntake{}}))

	w, _ := r.Get("intake")
	w.Metrics.Record(true, 40*time.Millisecond)
	w.Metrics.Record(false, 60*time.Millisecond)

	snap, err := r.Metrics("intake")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.RequestCount)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.InDelta(t, 50.0, snap.AverageResponseTime, 0.001)

	_, err = r.Metrics("ghost")
	assert.ErrorIs(t, err, agent.ErrWorkerNotFound)
}
