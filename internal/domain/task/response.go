package task

// Action types returned to the calling glue.
const (
	ActionShowContact         = "show-contact"
	ActionShowCalendar        = "show-calendar"
	ActionShowAlternatives    = "show-alternatives"
	ActionAppointmentBooked   = "appointment-confirmed"
	ActionSuggestAppointment  = "suggest-appointment"
	ActionRequestUpload       = "request-upload"
	ActionHighlightIssues     = "highlight-issues"
	ActionIntakeComplete      = "intake-complete"
	ActionAutomationScheduled = "automation-scheduled"
)

// Action is a side-channel instruction attached to a response.
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Response is the structured reply of a worker or of the router fallback.
type Response struct {
	Agent       string   `json:"agent"`
	Response    string   `json:"response"`
	Suggestions []string `json:"suggestions,omitempty"`
	Actions     []Action `json:"actions,omitempty"`
	Handoff     string   `json:"handoff,omitempty"`
}

// HasAction reports whether the response carries an action of the given type.
func (r *Response) HasAction(actionType string) bool {
	if r == nil {
		return false
	}
	for _, a := range r.Actions {
		if a.Type == actionType {
			return true
		}
	}
	return false
}
