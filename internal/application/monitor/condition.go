package monitor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
)

// AlertRule raises a performance-alert when Condition holds over the
// system metrics. Metric names the parameter reported as the alert value.
type AlertRule struct {
	Name      string `yaml:"name" json:"name"`
	Condition string `yaml:"condition" json:"condition"`
	Metric    string `yaml:"metric" json:"metric,omitempty"`
	Severity  string `yaml:"severity" json:"severity,omitempty"`
}

// DefaultAlertRules returns the built-in response time and error rate alerts.
func DefaultAlertRules() []AlertRule {
	return []AlertRule{
		{Name: "high-response-time", Condition: "averageResponseTime > 5000", Metric: "averageResponseTime", Severity: "warning"},
		{Name: "high-error-rate", Condition: "totalRequests > 0 && errorRate > 0.1", Metric: "errorRate", Severity: "critical"},
	}
}

type compiledAlert struct {
	rule AlertRule
	expr *govaluate.EvaluableExpression
}

func compileAlert(r AlertRule) (*govaluate.EvaluableExpression, error) {
	cond := strings.TrimSpace(r.Condition)
	if r.Name == "" || cond == "" {
		return nil, fmt.Errorf("alert rule %q: name and condition are required", r.Name)
	}
	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return nil, fmt.Errorf("alert rule %q: %w", r.Name, err)
	}
	return expr, nil
}

// ValidateAlert reports whether r has a name and a parseable condition.
func ValidateAlert(r AlertRule) error {
	_, err := compileAlert(r)
	return err
}

func compileAlerts(rules []AlertRule) ([]compiledAlert, error) {
	out := make([]compiledAlert, 0, len(rules))
	for _, r := range rules {
		expr, err := compileAlert(r)
		if err != nil {
			return nil, err
		}
		out = append(out, compiledAlert{rule: r, expr: expr})
	}
	return out, nil
}

// EvaluateCondition evaluates a condition expression against params.
// Empty condition returns true. Supports "true"/"false" literals.
func EvaluateCondition(condition string, params map[string]interface{}) (bool, error) {
	cond := strings.TrimSpace(condition)
	if cond == "" {
		return true, nil
	}
	switch strings.ToLower(cond) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	expr, err := govaluate.NewEvaluableExpression(cond)
	if err != nil {
		return false, err
	}
	return evaluate(expr, params)
}

func evaluate(expr *govaluate.EvaluableExpression, params map[string]interface{}) (bool, error) {
	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	default:
		return false, errors.New("condition did not evaluate to boolean")
	}
}
