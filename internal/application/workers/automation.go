package workers

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

// LeadValidation scores a lead from the contact info attached to a task.
type LeadValidation struct{}

func (LeadValidation) Handle(ctx context.Context, t *task.Task) (*task.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	contact, _ := t.Metadata["contactInfo"].(map[string]any)
	email, _ := contact["email"].(string)
	phone, _ := contact["phone"].(string)

	var issues []string
	score := 0
	if _, err := mail.ParseAddress(email); err == nil {
		score += 50
	} else {
		issues = append(issues, "invalid email")
	}
	if digits(phone) >= 10 {
		score += 40
	} else {
		issues = append(issues, "invalid phone")
	}
	if strings.TrimSpace(t.Message) != "" {
		score += 10
	}

	valid := score >= 50
	resp := &task.Response{
		Agent:    "lead-validation",
		Response: pick(t.Lang(), "Lead reviewed.", "Prospecto revisado."),
		Actions: []task.Action{{
			Type: "lead-validated",
			Data: map[string]any{"valid": valid, "score": score, "issues": issues},
		}},
	}
	return resp, nil
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

var followUpOffsets = []time.Duration{24 * time.Hour, 72 * time.Hour, 7 * 24 * time.Hour}

// FollowUp plans follow-up touches for a lead.
type FollowUp struct {
	Now func() time.Time
}

func (f FollowUp) Handle(ctx context.Context, t *task.Task) (*task.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	base := now().UTC()
	offsets := followUpOffsets
	if t.Priority == task.PriorityUrgent || t.Priority == task.PriorityHigh {
		offsets = []time.Duration{2 * time.Hour, 24 * time.Hour}
	}
	schedule := make([]string, 0, len(offsets))
	for _, d := range offsets {
		schedule = append(schedule, base.Add(d).Format(time.RFC3339))
	}
	return &task.Response{
		Agent:    "follow-up",
		Response: pick(t.Lang(), "Follow-up sequence scheduled.", "Secuencia de seguimiento programada."),
		Actions: []task.Action{{
			Type: task.ActionAutomationScheduled,
			Data: map[string]any{"sessionId": t.SessionID, "schedule": schedule},
		}},
	}, nil
}
