package registry

import (
	"context"
	"time"

	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

// Analyzer is the capability bound for agent.KindAnalyzer.
type Analyzer interface {
	Analyze(ctx context.Context, req AnalysisRequest) (*Analysis, error)
}

type AnalysisRequest struct {
	UserID      string
	Description string
	CaseType    string
	Urgency     task.Priority
	Language    string
	Location    string
}

// Complexity of an analyzed case.
const (
	ComplexitySimple   = "simple"
	ComplexityModerate = "moderate"
	ComplexityComplex  = "complex"
)

type Analysis struct {
	Recommendations []string
	NextSteps       []string
	Complexity      string
	PracticeAreas   []string
}

// Scheduler is the capability bound for agent.KindScheduler.
type Scheduler interface {
	AvailableDates(ctx context.Context, from time.Time, n int) ([]time.Time, error)
	FindSlots(ctx context.Context, req SlotRequest) ([]Slot, error)
	Book(ctx context.Context, userID string, slot Slot, req SlotRequest) (*Booking, error)
}

type SlotRequest struct {
	// PreferredDate is a calendar date; schedulers read its year, month and day.
	PreferredDate time.Time
	PreferredTime string
	CaseType      string
	Language      string
}

type Slot struct {
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Attorney string        `json:"attorney,omitempty"`
}

type Booking struct {
	Success            bool
	ConfirmationNumber string
	Error              string
}

// DocumentAnalyzer is the capability bound for agent.KindDocument.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, req DocumentRequest) (*DocumentReport, error)
}

type DocumentRequest struct {
	DocumentPath string
	Language     string
	Urgency      task.Priority
	ClientID     string
}

type DocumentReport struct {
	Summary          string
	Recommendations  []string
	ComplianceIssues []string
	MissingDocuments []string
	RequiresReview   bool
}

// IntakeProcessor is the capability bound for agent.KindIntake.
type IntakeProcessor interface {
	ProcessIntake(ctx context.Context, req IntakeRequest) (*IntakeResult, error)
}

type IntakeRequest struct {
	ClientInput string
	Language    string
	Emergency   bool
	Contact     map[string]any
}

type IntakeResult struct {
	Summary           string
	NextSteps         []string
	PracticeArea      string
	Urgency           string
	RequiredDocuments []string
	ResponseTime      string
}

// Handler is the capability bound for agent.KindHandler. It returns the
// normalized response shape directly.
type Handler interface {
	Handle(ctx context.Context, t *task.Task) (*task.Response, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, t *task.Task) (*task.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, t *task.Task) (*task.Response, error) {
	return f(ctx, t)
}
