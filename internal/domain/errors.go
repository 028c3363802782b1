package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a session or card ID is unknown.
	ErrNotFound = errors.New("not found")
	// ErrSessionEnded is returned when a session is used after it ended.
	// It matches ErrNotFound under errors.Is.
	ErrSessionEnded = fmt.Errorf("session already ended: %w", ErrNotFound)
	// ErrSessionActive is returned when a session is created while another is active.
	ErrSessionActive = errors.New("a study session is already active")
	// ErrInvalidQuality is returned for ratings outside 0-4.
	ErrInvalidQuality = errors.New("quality must be between 0 and 4")
)

// IssueKind classifies a data integrity issue.
type IssueKind string

const (
	MissingField IssueKind = "missing_field"
	InvalidType  IssueKind = "invalid_type"
	InvalidValue IssueKind = "invalid_value"
	DuplicateID  IssueKind = "duplicate_id"
)

// Severity decides whether an issue blocks trusting the data.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single integrity finding against a persisted record.
type Issue struct {
	Kind     IssueKind `json:"type"`
	Severity Severity  `json:"severity"`
	Entity   string    `json:"entity"`
	RecordID string    `json:"recordId,omitempty"`
	Field    string    `json:"field,omitempty"`
	Message  string    `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(i.Entity)
	if i.RecordID != "" {
		fmt.Fprintf(&b, "[%s]", i.RecordID)
	}
	if i.Field != "" {
		fmt.Fprintf(&b, ".%s", i.Field)
	}
	fmt.Fprintf(&b, ": %s (%s)", i.Message, i.Kind)
	return b.String()
}

// ValidationError carries every issue found when a snapshot has at least one error.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	var errs int
	var first string
	for _, i := range e.Issues {
		if i.Severity == SeverityError {
			if errs == 0 {
				first = i.String()
			}
			errs++
		}
	}
	if errs == 1 {
		return "validation failed: " + first
	}
	return fmt.Sprintf("validation failed with %d errors, first: %s", errs, first)
}
