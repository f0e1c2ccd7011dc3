package alerting

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

// EventFilter compiles and evaluates an expr-lang expression that
// decides whether an event counts toward windowed alerting.
type EventFilter struct {
	expression string
	program    *vm.Program
}

// NewEventFilter creates a filter for the given expression.
func NewEventFilter(expression string) (*EventFilter, error) {
	f := &EventFilter{expression: expression}
	if err := f.compile(); err != nil {
		return nil, err
	}
	return f, nil
}

// compile compiles the expression with the expected environment.
func (f *EventFilter) compile() error {
	// Sample environment for type checking.
	// expr-lang has built-in operators: contains, startsWith, endsWith.
	program, err := expr.Compile(f.expression,
		expr.Env(buildSampleEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("compile filter expression: %w", err)
	}

	f.program = program
	return nil
}

// Match evaluates the expression against an event.
func (f *EventFilter) Match(e *models.Event) (bool, error) {
	result, err := expr.Run(f.program, buildEnvFromEvent(e))
	if err != nil {
		return false, fmt.Errorf("evaluate filter expression: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression did not return bool: got %T", result)
	}
	return matched, nil
}

// Expression returns the original expression string.
func (f *EventFilter) Expression() string {
	return f.expression
}

// buildSampleEnv creates a sample environment for expression compilation.
func buildSampleEnv() map[string]any {
	return map[string]any{
		"severity":     "",
		"source":       "",
		"message":      "",
		"fingerprint":  "",
		"acknowledged": false,
		"context":      map[string]any{},
	}
}

// buildEnvFromEvent creates an evaluation environment from an event.
func buildEnvFromEvent(e *models.Event) map[string]any {
	env := map[string]any{
		"severity":     strings.ToLower(string(e.Severity)),
		"source":       e.Source,
		"message":      e.Message,
		"fingerprint":  e.Fingerprint,
		"acknowledged": e.Acknowledged,
		"context":      e.Context,
	}
	if env["context"] == nil {
		env["context"] = map[string]any{}
	}
	return env
}
