// Package models contains the core data structures for repowatch.
package models

import (
	"encoding/json"
	"time"
)

// Severity represents the urgency of an observed event.
type Severity string

const (
	SeverityDebug    Severity = "debug"
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// severityRank orders severities by urgency. Unknown values rank below debug.
var severityRank = map[Severity]int{
	SeverityDebug:    1,
	SeverityInfo:     2,
	SeverityWarning:  3,
	SeverityError:    4,
	SeverityCritical: 5,
}

// Rank returns the urgency rank of the severity (higher is more urgent).
// Unknown severities rank zero.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at least as urgent as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// Valid reports whether the severity is one of the recognized values.
func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

// ParseSeverity converts a string to Severity. Unrecognized values
// default to warning.
func ParseSeverity(s string) Severity {
	switch s {
	case "debug", "DEBUG", "Debug":
		return SeverityDebug
	case "info", "INFO", "Info", "notice", "NOTICE":
		return SeverityInfo
	case "warning", "WARNING", "Warning", "warn", "WARN", "Warn":
		return SeverityWarning
	case "error", "ERROR", "Error", "err", "ERR":
		return SeverityError
	case "critical", "CRITICAL", "Critical", "crit", "CRIT", "fatal", "FATAL", "Fatal":
		return SeverityCritical
	default:
		return SeverityWarning
	}
}

// Event represents a single observed occurrence (an error, a failure,
// a noteworthy condition detected during polling).
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Severity is the urgency of the event.
	Severity Severity `json:"severity"`

	// Source identifies where the event came from (target name,
	// subsystem, collaborator).
	Source string `json:"source"`

	// Message is the main event description.
	Message string `json:"message"`

	// Context carries additional key-value detail about the event.
	Context map[string]interface{} `json:"context,omitempty"`

	// Fingerprint is the coarse deduplication key derived from
	// source, message prefix, and severity.
	Fingerprint string `json:"fingerprint"`

	// Acknowledged marks the event as seen by an operator.
	Acknowledged bool `json:"acknowledged"`

	// AcknowledgedAt is when the event was acknowledged, if it was.
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// NewEvent creates a new Event with an initialized context map.
func NewEvent(source, message string, severity Severity) *Event {
	return &Event{
		Severity: severity,
		Source:   source,
		Message:  message,
		Context:  make(map[string]interface{}),
	}
}

// SetContext sets a context value.
func (e *Event) SetContext(key string, value interface{}) {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
}

// GetContextString retrieves a context value as string.
func (e *Event) GetContextString(key string) string {
	if e.Context == nil {
		return ""
	}
	if s, ok := e.Context[key].(string); ok {
		return s
	}
	return ""
}

// JSON returns the event as JSON bytes.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// String returns a string representation of the event.
func (e *Event) String() string {
	return e.Timestamp.Format(time.RFC3339) + " [" + string(e.Severity) + "] " + e.Source + ": " + e.Message
}

// IsError returns true if the event severity is error or critical.
func (e *Event) IsError() bool {
	return e.Severity == SeverityError || e.Severity == SeverityCritical
}

// AlertRecord maps a fingerprint to the timestamp of its last fired alert.
// There is at most one record per fingerprint; firing again updates the
// existing record rather than appending a new one.
type AlertRecord struct {
	Fingerprint string    `json:"fingerprint"`
	LastFiredAt time.Time `json:"last_fired_at"`
}
