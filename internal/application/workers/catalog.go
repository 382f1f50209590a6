package workers

import (
	"time"

	"github.com/execution-hub/agent-orchestrator/internal/application/registry"
	"github.com/execution-hub/agent-orchestrator/internal/domain/agent"
)

// Worker groups.
const (
	GroupPractice   = "crewai"
	GroupAutomation = "automation"
)

// Options configures the built-in worker catalog.
type Options struct {
	Location *time.Location
	Attorney string
}

// Catalog returns the specs of every built-in worker.
func Catalog(opts Options) []registry.WorkerSpec {
	attorney := opts.Attorney
	if attorney == "" {
		attorney = "William Vasquez"
	}
	return []registry.WorkerSpec{
		{Name: "consultation", Kind: agent.KindAnalyzer, Group: GroupPractice, Impl: Consultation{},
			Capabilities: []string{"legal-analysis", "case-triage"}},
		{Name: "appointment", Kind: agent.KindScheduler, Group: GroupPractice, Impl: NewScheduler(opts.Location, attorney),
			Capabilities: []string{"scheduling", "booking"}},
		{Name: "document", Kind: agent.KindDocument, Group: GroupPractice, Impl: DocumentReview{},
			Capabilities: []string{"document-analysis", "compliance"}},
		{Name: "intake", Kind: agent.KindIntake, Group: GroupPractice, Impl: Intake{},
			Capabilities: []string{"client-intake"}},
		{Name: "removal", Kind: agent.KindHandler, Group: GroupPractice, Impl: removalDefense,
			Capabilities: []string{"immigration", "removal-defense"}},
		{Name: "business", Kind: agent.KindHandler, Group: GroupPractice, Impl: businessImmigration,
			Capabilities: []string{"immigration", "employment-visas"}},
		{Name: "criminal", Kind: agent.KindHandler, Group: GroupPractice, Impl: criminalDefense,
			Capabilities: []string{"criminal-defense"}},
		{Name: "aila", Kind: agent.KindHandler, Group: GroupPractice, Impl: ailaResearch,
			Capabilities: []string{"immigration", "research"}},
		{Name: "lead-validation", Kind: agent.KindHandler, Group: GroupAutomation, Impl: LeadValidation{},
			Capabilities: []string{"lead-scoring"}},
		{Name: "follow-up", Kind: agent.KindHandler, Group: GroupAutomation, Impl: FollowUp{},
			Capabilities: []string{"follow-up", "automation"}},
	}
}

var removalDefense = PracticeArea{
	Name: "removal",
	Guidance: map[string]string{
		"en": "If you or a family member is in removal proceedings, do not miss any hearing. Bring every notice from immigration court to your consultation.",
		"es": "Si usted o un familiar está en proceso de deportación, no falte a ninguna audiencia. Traiga todos los avisos de la corte de inmigración a su consulta.",
	},
	Suggestions: map[string][]string{
		"en": {"Find my hearing date", "Schedule an urgent consultation"},
		"es": {"Buscar la fecha de mi audiencia", "Programar una consulta urgente"},
	},
}

var businessImmigration = PracticeArea{
	Name: "business",
	Guidance: map[string]string{
		"en": "Employment-based petitions depend on your employer's filing and strict timelines. Have your job offer and current status documents ready.",
		"es": "Las peticiones basadas en empleo dependen de la solicitud de su empleador y de plazos estrictos. Tenga lista su oferta de trabajo y documentos de estatus.",
	},
	Suggestions: map[string][]string{
		"en": {"H-1B requirements", "Employer sponsorship"},
		"es": {"Requisitos H-1B", "Patrocinio del empleador"},
	},
}

var criminalDefense = PracticeArea{
	Name: "criminal",
	Guidance: map[string]string{
		"en": "Do not discuss your case with anyone other than your attorney. Criminal charges can affect immigration status, so tell us about any prior arrests.",
		"es": "No hable de su caso con nadie excepto su abogado. Los cargos criminales pueden afectar su estatus migratorio, así que infórmenos sobre arrestos previos.",
	},
	Suggestions: map[string][]string{
		"en": {"Speak with a defense attorney", "Bail and release questions"},
		"es": {"Hablar con un abogado defensor", "Preguntas sobre fianza"},
	},
}

var ailaResearch = PracticeArea{
	Name: "aila",
	Guidance: map[string]string{
		"en": "An attorney will check current agency guidance that applies to your question and follow up with you.",
		"es": "Un abogado revisará la guía vigente de la agencia que aplica a su pregunta y se comunicará con usted.",
	},
	Suggestions: map[string][]string{
		"en": {"Processing times", "Recent policy changes"},
		"es": {"Tiempos de procesamiento", "Cambios recientes de política"},
	},
}
