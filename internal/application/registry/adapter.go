package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

const (
	calendarDays    = 5
	dateLayout      = "2006-01-02"
	maxUploadSize   = "10MB"
	handoffBooking  = "appointment"
	defaultCaseType = "general"
)

var uploadFormats = []string{"pdf", "jpg", "png", "doc", "docx"}

// InvocationError wraps a failure raised by a worker implementation.
type InvocationError struct {
	Agent string
	Kind  agent.Kind
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s (%s): %v", e.Agent, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Adapter binds one worker implementation to the uniform Invoker contract.
// The binding is chosen from the declared kind at registration time.
type Adapter struct {
	name   string
	kind   agent.Kind
	invoke func(ctx context.Context, t *task.Task) (*task.Response, error)
	now    func() time.Time
}

// NewAdapter binds impl according to kind, or returns ErrCapabilityMismatch
// when impl does not provide the capability the kind declares.
func NewAdapter(name string, kind agent.Kind, impl any) (*Adapter, error) {
	a := &Adapter{name: name, kind: kind, now: time.Now}
	mismatch := func(want string) error {
		return fmt.Errorf("%w: %s declared %s but %T does not implement %s", agent.ErrCapabilityMismatch, name, kind, impl, want)
	}

	switch kind {
	case agent.KindAnalyzer:
		w, ok := impl.(Analyzer)
		if !ok {
			return nil, mismatch("Analyzer")
		}
		a.invoke = func(ctx context.Context, t *task.Task) (*task.Response, error) { return a.analyze(ctx, w, t) }
	case agent.KindScheduler:
		w, ok := impl.(Scheduler)
		if !ok {
			return nil, mismatch("Scheduler")
		}
		a.invoke = func(ctx context.Context, t *task.Task) (*task.Response, error) { return a.schedule(ctx, w, t) }
	case agent.KindDocument:
		w, ok := impl.(DocumentAnalyzer)
		if !ok {
			return nil, mismatch("DocumentAnalyzer")
		}
		a.invoke = func(ctx context.Context, t *task.Task) (*task.Response, error) { return a.document(ctx, w, t) }
	case agent.KindIntake:
		w, ok := impl.(IntakeProcessor)
		if !ok {
			return nil, mismatch("IntakeProcessor")
		}
		a.invoke = func(ctx context.Context, t *task.Task) (*task.Response, error) { return a.intake(ctx, w, t) }
	case agent.KindHandler:
		w, ok := impl.(Handler)
		if !ok {
			return nil, mismatch("Handler")
		}
		a.invoke = func(ctx context.Context, t *task.Task) (*task.Response, error) { return a.handle(ctx, w, t) }
	default:
		return nil, fmt.Errorf("%w: %s declared unknown kind %q", agent.ErrCapabilityMismatch, name, kind)
	}
	return a, nil
}

// Invoke runs the bound implementation and normalizes its result.
func (a *Adapter) Invoke(ctx context.Context, t *task.Task) (*task.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, a.wrap(err)
	}
	resp, err := a.invoke(ctx, t)
	if err != nil {
		return nil, a.wrap(err)
	}
	if resp == nil {
		return nil, a.wrap(errors.New("empty response"))
	}
	if resp.Agent == "" {
		resp.Agent = a.name
	}
	return resp, nil
}

func (a *Adapter) wrap(err error) error {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return err
	}
	return &InvocationError{Agent: a.name, Kind: a.kind, Err: err}
}

func (a *Adapter) analyze(ctx context.Context, w Analyzer, t *task.Task) (*task.Response, error) {
	userID := t.UserID
	if userID == "" {
		userID = "anonymous"
	}
	res, err := w.Analyze(ctx, AnalysisRequest{
		UserID:      userID,
		Description: t.Message,
		CaseType:    defaultCaseType,
		Urgency:     t.Priority,
		Language:    t.Lang(),
		Location:    t.MetaString("location"),
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("analyzer returned no result")
	}

	body := strings.Join(res.Recommendations, "\n\n")
	if body == "" {
		body = text(t.Lang(), "emptyAnalysis")
	}
	resp := &task.Response{Agent: a.name, Response: body, Suggestions: res.NextSteps}

	if res.Complexity == ComplexityComplex || mentionsAppointment(res.NextSteps) {
		resp.Handoff = handoffBooking
		resp.Actions = []task.Action{{
			Type: task.ActionSuggestAppointment,
			Data: map[string]any{
				"complexity":    res.Complexity,
				"practiceAreas": res.PracticeAreas,
			},
		}}
	}
	return resp, nil
}

func mentionsAppointment(steps []string) bool {
	for _, s := range steps {
		s = strings.ToLower(s)
		if strings.Contains(s, "appointment") {
			return true
		}
		for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) }) {
			if w == "cita" {
				return true
			}
		}
	}
	return false
}

func (a *Adapter) schedule(ctx context.Context, w Scheduler, t *task.Task) (*task.Response, error) {
	lang := t.Lang()
	req := SlotRequest{
		PreferredTime: t.MetaString("preferredTime"),
		CaseType:      t.MetaString("caseType"),
		Language:      lang,
	}
	if req.CaseType == "" {
		req.CaseType = defaultCaseType
	}

	preferred, err := time.Parse(dateLayout, t.MetaString("preferredDate"))
	if err != nil {
		dates, err := a.calendar(ctx, w)
		if err != nil {
			return nil, err
		}
		return &task.Response{
			Agent:    a.name,
			Response: text(lang, "calendarPrompt"),
			Actions:  []task.Action{{Type: task.ActionShowCalendar, Data: map[string]any{"availableDates": dates}}},
		}, nil
	}
	req.PreferredDate = preferred

	slots, err := w.FindSlots(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		dates, err := a.calendar(ctx, w)
		if err != nil {
			return nil, err
		}
		return &task.Response{
			Agent:    a.name,
			Response: text(lang, "noSlots"),
			Actions: []task.Action{{
				Type: task.ActionShowAlternatives,
				Data: map[string]any{"slots": []Slot{}, "availableDates": dates},
			}},
		}, nil
	}

	userID := t.UserID
	if userID == "" {
		userID = "anonymous"
	}
	booking, err := w.Book(ctx, userID, slots[0], req)
	if err != nil {
		return nil, err
	}
	if booking == nil || !booking.Success {
		reason := text(lang, "bookingRetry")
		if booking != nil && booking.Error != "" {
			reason = booking.Error
		}
		return &task.Response{
			Agent:    a.name,
			Response: fmt.Sprintf(text(lang, "bookingFailed"), reason),
			Actions:  []task.Action{{Type: task.ActionShowAlternatives, Data: map[string]any{"slots": slots}}},
		}, nil
	}
	return &task.Response{
		Agent:    a.name,
		Response: fmt.Sprintf(text(lang, "booked"), booking.ConfirmationNumber),
		Actions: []task.Action{{
			Type: task.ActionAppointmentBooked,
			Data: map[string]any{"confirmationNumber": booking.ConfirmationNumber, "slot": slots[0]},
		}},
	}, nil
}

func (a *Adapter) calendar(ctx context.Context, w Scheduler) ([]string, error) {
	dates, err := w.AvailableDates(ctx, a.now(), calendarDays)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(dateLayout))
	}
	return out, nil
}

func (a *Adapter) document(ctx context.Context, w DocumentAnalyzer, t *task.Task) (*task.Response, error) {
	docs := t.MetaStrings("documents")
	if len(docs) == 0 {
		return &task.Response{
			Agent:    a.name,
			Response: text(t.Lang(), "uploadPrompt"),
			Actions: []task.Action{{
				Type: task.ActionRequestUpload,
				Data: map[string]any{"acceptedFormats": uploadFormats, "maxSize": maxUploadSize},
			}},
		}, nil
	}

	clientID := t.UserID
	if clientID == "" {
		clientID = "anonymous"
	}
	report, err := w.AnalyzeDocument(ctx, DocumentRequest{
		DocumentPath: docs[0],
		Language:     t.Lang(),
		Urgency:      t.Priority,
		ClientID:     clientID,
	})
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, errors.New("document analyzer returned no report")
	}

	resp := &task.Response{Agent: a.name, Response: report.Summary, Suggestions: report.Recommendations}
	if len(report.ComplianceIssues) > 0 {
		resp.Actions = []task.Action{{
			Type: task.ActionHighlightIssues,
			Data: map[string]any{
				"issues":           report.ComplianceIssues,
				"missingDocuments": report.MissingDocuments,
				"requiresReview":   report.RequiresReview,
			},
		}}
	}
	return resp, nil
}

func (a *Adapter) intake(ctx context.Context, w IntakeProcessor, t *task.Task) (*task.Response, error) {
	var contact map[string]any
	if c, ok := t.Metadata["contactInfo"].(map[string]any); ok {
		contact = c
	}
	res, err := w.ProcessIntake(ctx, IntakeRequest{
		ClientInput: t.Message,
		Language:    t.Lang(),
		Emergency:   t.Priority == task.PriorityUrgent,
		Contact:     contact,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("intake processor returned no result")
	}
	summary := res.Summary
	if summary == "" {
		summary = text(t.Lang(), "intakeDone")
	}
	return &task.Response{
		Agent:       a.name,
		Response:    summary,
		Suggestions: res.NextSteps,
		Actions: []task.Action{{
			Type: task.ActionIntakeComplete,
			Data: map[string]any{
				"practiceArea":          res.PracticeArea,
				"urgencyLevel":          res.Urgency,
				"requiredDocuments":     res.RequiredDocuments,
				"estimatedResponseTime": res.ResponseTime,
			},
		}},
	}, nil
}

func (a *Adapter) handle(ctx context.Context, w Handler, t *task.Task) (*task.Response, error) {
	return w.Handle(ctx, t)
}
