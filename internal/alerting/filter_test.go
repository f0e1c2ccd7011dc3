package alerting

import (
	"testing"

	"github.com/good-yellow-bee/repowatch/internal/models"
)

func TestEventFilterMatch(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		event      *models.Event
		want       bool
	}{
		{
			name:       "severity match",
			expression: `severity == "error"`,
			event:      &models.Event{Severity: models.SeverityError},
			want:       true,
		},
		{
			name:       "severity mismatch",
			expression: `severity == "error"`,
			event:      &models.Event{Severity: models.SeverityInfo},
			want:       false,
		},
		{
			name:       "message contains",
			expression: `message contains "timeout"`,
			event:      &models.Event{Message: "request timeout after 30s"},
			want:       true,
		},
		{
			name:       "source prefix",
			expression: `source startsWith "ci/"`,
			event:      &models.Event{Source: "ci/unit-tests"},
			want:       true,
		},
		{
			name:       "combined conditions",
			expression: `severity == "error" && source == "ci"`,
			event:      &models.Event{Severity: models.SeverityError, Source: "deploy"},
			want:       false,
		},
		{
			name:       "excludes acknowledged",
			expression: `!acknowledged`,
			event:      &models.Event{Acknowledged: true},
			want:       false,
		},
		{
			name:       "context lookup on nil context",
			expression: `context["branch"] == "main"`,
			event:      &models.Event{},
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewEventFilter(tt.expression)
			if err != nil {
				t.Fatalf("NewEventFilter(%q): %v", tt.expression, err)
			}
			got, err := f.Match(tt.event)
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEventFilterInvalidExpression(t *testing.T) {
	for _, expression := range []string{
		`severity ==`,
		`unknown_field == "x"`,
		`message + "x"`, // not a bool
	} {
		if _, err := NewEventFilter(expression); err == nil {
			t.Errorf("NewEventFilter(%q) should fail", expression)
		}
	}
}

func TestEventFilterExpression(t *testing.T) {
	f, err := NewEventFilter(`severity == "error"`)
	if err != nil {
		t.Fatalf("NewEventFilter: %v", err)
	}
	if f.Expression() != `severity == "error"` {
		t.Errorf("Expression() = %q", f.Expression())
	}
}
