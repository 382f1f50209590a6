package orchestrator

import (
	"strings"
	"unicode"
)

// DefaultIntent is assigned when no rule matches.
const DefaultIntent = "consultation"

// IntentRule maps keywords to an intent. Keywords may be phrases.
type IntentRule struct {
	Intent   string   `yaml:"intent" json:"intent"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// DefaultRules is the built-in keyword table, evaluated in order.
func DefaultRules() []IntentRule {
	return []IntentRule{
		{Intent: "appointment", Keywords: []string{"appointment", "schedule", "book", "cita", "agendar"}},
		{Intent: "document", Keywords: []string{"document", "documents", "form", "forms", "paper", "papers", "documento", "documentos", "formulario"}},
		{Intent: "removal", Keywords: []string{"removal", "deportation", "ice", "deportación", "deportacion"}},
		{Intent: "business", Keywords: []string{"business", "h1b", "h-1b", "employment", "negocio", "empleo"}},
		{Intent: "criminal", Keywords: []string{"criminal", "arrest", "arrested", "charge", "charges", "arresto"}},
		{Intent: "intake", Keywords: []string{"intake", "new client", "start", "nuevo cliente"}},
	}
}

// DefaultRoutes maps each intent to the worker of the same name.
func DefaultRoutes() map[string]string {
	routes := map[string]string{}
	for _, name := range []string{"consultation", "appointment", "document", "intake", "removal", "business", "criminal", "aila"} {
		routes[name] = name
	}
	return routes
}

// Classifier assigns an intent by whole-word keyword match. The first
// matching rule wins.
type Classifier struct {
	rules []compiledRule
}

type compiledRule struct {
	intent   string
	keywords []string
}

func NewClassifier(rules []IntentRule) *Classifier {
	c := &Classifier{}
	for _, r := range rules {
		cr := compiledRule{intent: r.Intent}
		for _, kw := range r.Keywords {
			if norm := normalize(kw); strings.TrimSpace(norm) != "" {
				cr.keywords = append(cr.keywords, norm)
			}
		}
		if r.Intent != "" && len(cr.keywords) > 0 {
			c.rules = append(c.rules, cr)
		}
	}
	return c
}

// Classify returns the intent for message, or DefaultIntent.
func (c *Classifier) Classify(message string) string {
	text := normalize(message)
	for _, r := range c.rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.intent
			}
		}
	}
	return DefaultIntent
}

// normalize lowercases s and joins its words with single spaces, padded on
// both sides so that a contained keyword is always a whole word or phrase.
// Hyphens are kept inside words.
func normalize(s string) string {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	out := words[:0]
	for _, w := range words {
		if w = strings.Trim(w, "-"); w != "" {
			out = append(out, w)
		}
	}
	return " " + strings.Join(out, " ") + " "
}
