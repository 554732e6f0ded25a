// Package apperrors defines the error taxonomy surfaced by core components
// and translated by the operation façade into {success:false, message}.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is one of the taxonomy members from the error handling design.
type Kind string

const (
	KindNotFound        Kind = "NotFound"
	KindDuplicate       Kind = "Duplicate"
	KindValidationError Kind = "ValidationError"
	KindAuthFailed      Kind = "AuthFailed"
	KindRateLimited     Kind = "RateLimited"
	KindTransient       Kind = "Transient"
	KindPermanent       Kind = "Permanent"
	KindIntegrityError  Kind = "IntegrityError"

	// KindAlreadyRolledBack is specific to the rules engine's rollback
	// operation (spec §4.H); not part of the general facade taxonomy.
	KindAlreadyRolledBack Kind = "AlreadyRolledBack"
)

// Error wraps an underlying cause with a taxonomy Kind.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func NotFound(msg string) *Error     { return New(KindNotFound, msg) }
func Duplicate(msg string) *Error    { return New(KindDuplicate, msg) }
func AuthFailed(msg string) *Error   { return New(KindAuthFailed, msg) }
func RateLimited(msg string) *Error  { return New(KindRateLimited, msg) }
func Transient(msg string, cause error) *Error {
	return Wrap(KindTransient, msg, cause)
}
func Permanent(msg string, cause error) *Error {
	return Wrap(KindPermanent, msg, cause)
}
func IntegrityError(msg string) *Error { return New(KindIntegrityError, msg) }

// Is reports whether the first *Error found in err's chain has the given
// Kind; an *Error wrapped inside another *Error is not examined.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ValidationIssue is one structured validation failure, severity one of
// "error" (blocks the write) or "warning" (informational).
type ValidationIssue struct {
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Severity string `json:"severity"`
}

// ValidationError carries a list of structured issues so a driver can
// render them without parsing a free-text message.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d issue(s)", len(e.Issues))
}

func NewValidationError(issues ...ValidationIssue) *ValidationError {
	return &ValidationError{Issues: issues}
}

func Issue(code, field string) ValidationIssue {
	return ValidationIssue{Code: code, Field: field, Severity: "error"}
}
