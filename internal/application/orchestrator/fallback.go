package orchestrator

import "github.com/execution-hub/agent-orchestrator/internal/domain/task"

const (
	routerAgent         = "orchestrator"
	DefaultContactPhone = "(888) 979-8990"
)

var fallbackText = map[string]string{
	"en": "I apologize, but I encountered an error. Please try again or contact our office directly.",
	"es": "Lo siento, encontré un error. Por favor intente de nuevo o comuníquese directamente con nuestra oficina.",
}

// fallback builds the localized apology returned whenever a task cannot be
// served by a worker.
func (o *Orchestrator) fallback(t *task.Task) *task.Response {
	msg, ok := fallbackText[t.Lang()]
	if !ok {
		msg = fallbackText["en"]
	}
	return &task.Response{
		Agent:    routerAgent,
		Response: msg,
		Actions: []task.Action{{
			Type: task.ActionShowContact,
			Data: map[string]any{"phone": o.cfg.ContactPhone},
		}},
	}
}
