package workers

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/execution-hub/agent-orchestrator/internal/application/registry"
	"github.com/execution-hub/agent-orchestrator/internal/domain/task"
)

// containsAny reports whether lowercase s contains any of the terms.
func containsAny(s string, terms ...string) bool {
	s = strings.ToLower(s)
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func pick(lang, en, es string) string {
	if lang == "es" {
		return es
	}
	return en
}

// Consultation triages a free-form case description.
type Consultation struct{}

func (Consultation) Analyze(ctx context.Context, req registry.AnalysisRequest) (*registry.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := req.Language
	a := &registry.Analysis{Complexity: registry.ComplexitySimple}

	switch {
	case containsAny(req.Description, "deport", "removal", "detained", "court", "felony", "asylum"):
		a.Complexity = registry.ComplexityComplex
	case len(strings.Fields(req.Description)) > 40 || containsAny(req.Description, "visa", "green card", "citizenship"):
		a.Complexity = registry.ComplexityModerate
	}

	if containsAny(req.Description, "visa", "green card", "citizenship", "asylum", "deport", "removal") {
		a.PracticeAreas = append(a.PracticeAreas, "immigration")
	}
	if containsAny(req.Description, "arrest", "charge", "dui", "felony") {
		a.PracticeAreas = append(a.PracticeAreas, "criminal-defense")
	}
	if containsAny(req.Description, "accident", "injury", "injured") {
		a.PracticeAreas = append(a.PracticeAreas, "personal-injury")
	}
	if len(a.PracticeAreas) == 0 {
		a.PracticeAreas = []string{"general"}
	}

	a.Recommendations = []string{
		pick(lang,
			"Thank you for sharing your situation. Keep copies of every notice and document related to your case.",
			"Gracias por compartir su situación. Guarde copias de todos los avisos y documentos relacionados con su caso."),
	}
	a.NextSteps = []string{pick(lang, "Gather your documents", "Reúna sus documentos")}
	if a.Complexity != registry.ComplexitySimple {
		a.Recommendations = append(a.Recommendations, pick(lang,
			"Cases like yours benefit from an attorney review before any deadline passes.",
			"Casos como el suyo se benefician de la revisión de un abogado antes de que venza cualquier plazo."))
		a.NextSteps = append(a.NextSteps, pick(lang, "Schedule an appointment with an attorney", "Programe una cita con un abogado"))
	}
	return a, nil
}

var acceptedExtensions = map[string]bool{".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".doc": true, ".docx": true}

// DocumentReview checks uploaded documents for format and obvious problems.
type DocumentReview struct{}

func (DocumentReview) AnalyzeDocument(ctx context.Context, req registry.DocumentRequest) (*registry.DocumentReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := filepath.Base(req.DocumentPath)
	r := &registry.DocumentReport{
		Summary: pick(req.Language, "Reviewed "+name+".", "Revisado "+name+"."),
	}
	if !acceptedExtensions[strings.ToLower(filepath.Ext(name))] {
		r.ComplianceIssues = append(r.ComplianceIssues, "unsupported file format")
	}
	if containsAny(name, "expired", "vencido") {
		r.ComplianceIssues = append(r.ComplianceIssues, "document appears to be expired")
		r.MissingDocuments = append(r.MissingDocuments, "current identification")
	}
	if len(r.ComplianceIssues) > 0 {
		r.RequiresReview = true
		r.Recommendations = []string{pick(req.Language, "Upload a corrected copy", "Suba una copia corregida")}
	} else {
		r.Recommendations = []string{pick(req.Language, "No issues found; an attorney will confirm", "No se encontraron problemas; un abogado lo confirmará")}
	}
	return r, nil
}

// Intake records a new client and assigns a practice area.
type Intake struct{}

func (Intake) ProcessIntake(ctx context.Context, req registry.IntakeRequest) (*registry.IntakeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res := &registry.IntakeResult{
		PracticeArea: "general",
		Urgency:      "standard",
		ResponseTime: "24 hours",
	}
	switch {
	case containsAny(req.ClientInput, "visa", "green card", "deport", "asylum", "citizenship"):
		res.PracticeArea = "immigration"
		res.RequiredDocuments = []string{"passport", "immigration notices"}
	case containsAny(req.ClientInput, "arrest", "charge", "dui"):
		res.PracticeArea = "criminal-defense"
		res.RequiredDocuments = []string{"charging documents", "bail paperwork"}
	case containsAny(req.ClientInput, "accident", "injury"):
		res.PracticeArea = "personal-injury"
		res.RequiredDocuments = []string{"police report", "medical records"}
	}
	if req.Emergency {
		res.Urgency = "urgent"
		res.ResponseTime = "2 hours"
	}
	res.Summary = pick(req.Language,
		"Thank you. Your intake for "+res.PracticeArea+" has been recorded; we will respond within "+res.ResponseTime+".",
		"Gracias. Su admisión para "+res.PracticeArea+" ha sido registrada; responderemos dentro de "+res.ResponseTime+".")
	res.NextSteps = []string{
		pick(req.Language, "Prepare the listed documents", "Prepare los documentos indicados"),
		pick(req.Language, "Schedule a consultation", "Programe una consulta"),
	}
	return res, nil
}

// PracticeArea answers questions for one practice area with fixed guidance.
type PracticeArea struct {
	Name        string
	Guidance    map[string]string
	Suggestions map[string][]string
}

func (p PracticeArea) Handle(ctx context.Context, t *task.Task) (*task.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := t.Lang()
	guidance, ok := p.Guidance[lang]
	if !ok {
		guidance = p.Guidance["en"]
	}
	suggestions, ok := p.Suggestions[lang]
	if !ok {
		suggestions = p.Suggestions["en"]
	}
	return &task.Response{Agent: p.Name, Response: guidance, Suggestions: suggestions}, nil
}
