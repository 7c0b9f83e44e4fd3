// Package apperrors defines the typed error taxonomy of the input funnel.
// Per-record errors are captured on the record itself and never abort
// processing of sibling records in the same batch.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateSerial is returned when an active record with the same
	// serial number already exists in staging. The staging store raises it
	// authoritatively; the validator raises it advisorily.
	ErrDuplicateSerial = errors.New("duplicate serial number")

	// ErrInvalidTransition signals an illegal state-machine step. This is a
	// programming or race defect, not an operator error.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrNotFound keeps store-level 404s consistent across the gorm and
	// in-memory implementations.
	ErrNotFound = errors.New("record not found")
)

// NormalizationError reports malformed or unparseable channel input.
// Local to one record.
type NormalizationError struct {
	Channel string
	Field   string
	Reason  string
}

func (e *NormalizationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalization failed (%s): field %q: %s", e.Channel, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalization failed (%s): %s", e.Channel, e.Reason)
}

// Validation check names. Reasons embed the failing check so rejection
// messages are reproducible across runs.
const (
	CheckStructural    = "structural"
	CheckFormat        = "format"
	CheckDuplicate     = "duplicate_serial"
	CheckUpstreamUsage = "already_used_upstream"
	CheckVerification  = "verification_unreachable"
)

// ValidationError reports the first failing validation check for a record
type ValidationError struct {
	Check  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed [%s]: %s", e.Check, e.Reason)
}

// Is lets callers match the duplicate check against ErrDuplicateSerial
func (e *ValidationError) Is(target error) bool {
	return target == ErrDuplicateSerial && e.Check == CheckDuplicate
}

// CommitError reports a failed external core write. Timeout distinguishes
// transient unreachability from a permanent rejection by the core.
type CommitError struct {
	SerialNumber string
	Reason       string
	Timeout      bool
}

func (e *CommitError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("commit failed for %s: core unreachable (timeout): %s", e.SerialNumber, e.Reason)
	}
	return fmt.Sprintf("commit failed for %s: %s", e.SerialNumber, e.Reason)
}

// TransitionError wraps ErrInvalidTransition with the attempted step
func TransitionError(serial, from, to string) error {
	return fmt.Errorf("%w: %s: %s -> %s", ErrInvalidTransition, serial, from, to)
}
