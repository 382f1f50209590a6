package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

func TestAdapter_Scheduler(t *testing.T) {
	t.Run("missing date shows calendar", func(t *testing.T) {
		s := &fakeScheduler{}
		a, err := NewAdapter("appointment", agent.KindScheduler, s)
		require.NoError(t, err)

		resp, err := a.Invoke(context.Background(), task.New("I want to schedule an appointment", "s1", "en"))
		require.NoError(t, err)
		assert.Equal(t, "appointment", resp.Agent)
		require.True(t, resp.HasAction(task.ActionShowCalendar))
		assert.Len(t, resp.Actions[0].Data["availableDates"], 5)
		assert.Zero(t, s.booked)
	})

	t.Run("slot found books", func(t *testing.T) {
		s := &fakeScheduler{
			slots:   []Slot{{Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), Duration: time.Hour}},
			booking: &Booking{Success: true, ConfirmationNumber: "VLF-1"},
		}
		a, err := NewAdapter("appointment", agent.KindScheduler, s)
		require.NoError(t, err)

		tk := task.New("book me", "s1", "es")
		tk.Metadata = map[string]any{"preferredDate": "2026-03-02"}
		resp, err := a.Invoke(context.Background(), tk)
		require.NoError(t, err)
		assert.True(t, resp.HasAction(task.ActionAppointmentBooked))
		assert.Contains(t, resp.Response, "VLF-1")
		assert.Contains(t, resp.Response, "confirmación")
		assert.Equal(t, 1, s.booked)
	})

	t.Run("no slots shows alternatives", func(t *testing.T) {
		a, err := NewAdapter("appointment", agent.KindScheduler, &fakeScheduler{})
		require.NoError(t, err)

		tk := task.New("book me", "s1", "en")
		tk.Metadata = map[string]any{"preferredDate": "2026-03-02"}
		resp, err := a.Invoke(context.Background(), tk)
		require.NoError(t, err)
		assert.True(t, resp.HasAction(task.ActionShowAlternatives))
	})
}

func TestAdapter_Analyzer(t *testing.T) {
	a, err := NewAdapter("consultation", agent.KindAnalyzer, &fakeAnalyzer{result: &Analysis{
		Recommendations: []string{"File an I-130.", "Gather records."},
		NextSteps:       []string{"Book an appointment with an attorney"},
		Complexity:      ComplexityModerate,
	}})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), task.New("help with my green card", "s1", "en"))
	require.NoError(t, err)
	assert.Equal(t, "File an I-130.\n\nGather records.", resp.Response)
	assert.Equal(t, "appointment", resp.Handoff)
	assert.True(t, resp.HasAction(task.ActionSuggestAppointment))
}

func TestAdapter_Document(t *testing.T) {
	a, err := NewAdapter("document", agent.KindDocument, &fakeDocs{report: &DocumentReport{
		Summary:          "Passport copy reviewed.",
		ComplianceIssues: []string{"expired passport"},
	}})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), task.New("review my documents", "s1", "en"))
	require.NoError(t, err)
	require.True(t, resp.HasAction(task.ActionRequestUpload))
	assert.Equal(t, "10MB", resp.Actions[0].Data["maxSize"])

	tk := task.New("review my documents", "s1", "en")
	tk.Metadata = map[string]any{"documents": []any{"passport.pdf"}}
	resp, err = a.Invoke(context.Background(), tk)
	require.NoError(t, err)
	assert.Equal(t, "Passport copy reviewed.", resp.Response)
	assert.True(t, resp.HasAction(task.ActionHighlightIssues))
}

func TestAdapter_Intake(t *testing.T) {
	a, err := NewAdapter("intake", agent.KindIntake, fakeIntake{})
	require.NoError(t, err)

	resp, err := a.Invoke(context.Background(), task.New("new client here", "s1", "en"))
	require.NoError(t, err)
	assert.True(t, resp.HasAction(task.ActionIntakeComplete))
	assert.Equal(t, "recorded: new client here", resp.Response)
}

func TestAdapter_WrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, err := NewAdapter("consultation", agent.KindAnalyzer, &fakeAnalyzer{err: boom})
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), task.New("hi", "s1", "en"))
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "consultation", ie.Agent)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Invoke(ctx, task.New("hi", "s1", "en"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewAdapter_Mismatch(t *testing.T) {
	_, err := NewAdapter("x", agent.KindAnalyzer, fakeIntake{})
	assert.ErrorIs(t, err, agent.ErrCapabilityMismatch)

	_, err = NewAdapter("x", agent.Kind("crew"), fakeIntake{})
	assert.ErrorIs(t, err, agent.ErrCapabilityMismatch)
}
