/*
errors.go - Centralized error types for the rostering engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Packages wrap these errors with additional context and callers classify
  them with errors.Is / errors.As (see the helpers at the bottom).

ERROR CATEGORIES:
  1. Validation errors - Malformed candidates, unknown enums, bad ranges
  2. Workflow errors - Duplicate submissions, illegal transitions,
     closed periods, CRITICAL conflicts at approval
  3. Collaborator errors - Crew roster lookups and alert delivery

USAGE:
    if errors.Is(err, generic.ErrPeriodClosed) {
        return writeError(w, http.StatusConflict, ...)
    }

    var ce *generic.ConflictError
    if errors.As(err, &ce) {
        // ce.Conflicts lists what blocked the approval
    }

SEE ALSO:
  - requests/service.go: Raises most of these
  - api/handlers.go: Maps them to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = fmt.Errorf("%w: end before start", ErrValidation)

	// ErrNotFound is returned when a referenced pilot, request or period
	// doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSubmission is returned when an identical pending request
	// already exists for the pilot.
	ErrDuplicateSubmission = errors.New("duplicate submission")

	// ErrInvalidTransition is returned for workflow moves that are not
	// allowed (deciding a decided request, moving a period backwards).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrPeriodClosed is returned when submitting into a period that is no
	// longer OPEN.
	ErrPeriodClosed = errors.New("roster period is not open for requests")

	// ErrConflictBlocked is returned when approval finds a CRITICAL conflict.
	ErrConflictBlocked = errors.New("blocked by critical conflict")

	// ErrAvailabilityDegraded marks an assessment made without crew data.
	ErrAvailabilityDegraded = errors.New("crew availability unavailable")

	// ErrAlertDelivery is returned when a notifier fails to deliver.
	ErrAlertDelivery = errors.New("alert delivery failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError lists the conflicts that blocked an operation.
type ConflictError struct {
	RequestID RequestID
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	msgs := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		if c.Severity == SeverityCritical {
			msgs = append(msgs, fmt.Sprintf("%s: %s", c.Type, c.Message))
		}
	}
	return fmt.Sprintf("request %s blocked by critical conflict: %s", e.RequestID, strings.Join(msgs, "; "))
}

func (e *ConflictError) Unwrap() error {
	return ErrConflictBlocked
}

// TransitionError describes a rejected status change.
type TransitionError struct {
	Subject string // "request" or "period"
	ID      string
	From    string
	To      string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot move from %s to %s", e.Subject, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NotFoundError wraps ErrNotFound with the kind and key that were missing.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrAlertDelivery) || errors.Is(err, ErrAvailabilityDegraded)
}

// IsClientError returns true if the error is due to invalid client input
// or a workflow rule the caller broke.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrPeriodClosed) ||
		errors.Is(err, ErrConflictBlocked)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
