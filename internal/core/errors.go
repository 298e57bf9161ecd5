package core

import (
	"errors"
	"fmt"
)

// Kind classifies a domain error so the boundary can map it to a response
// without string matching.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPermission
	KindNotFound
	KindConflict
	KindDependency
)

// Error is the domain error carried through the service layer. Conflict
// errors include the aggregate's current state so callers can resynchronize;
// dependency errors wrap the collaborator failure and are retryable.
type Error struct {
	Kind    Kind
	Message string
	State   string
	Err     error
}

func (e *Error) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s (current state: %s)", e.Message, e.State)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed input, rejected before any state change.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Permission reports a caller lacking the role required for an action.
// The message never discloses whether the target resource exists.
func Permission(msg string) error {
	return &Error{Kind: KindPermission, Message: msg}
}

// NotFound reports a missing or invalid resource reference.
func NotFound(msg string) error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// Conflict reports a state-machine violation. state carries the aggregate's
// current status.
func Conflict(msg, state string) error {
	return &Error{Kind: KindConflict, Message: msg, State: state}
}

// Dependency reports an unavailable or refusing external collaborator.
func Dependency(msg string, err error) error {
	return &Error{Kind: KindDependency, Message: msg, Err: err}
}

// KindOf returns the classification of err, or KindUnknown for errors that
// did not originate in the domain layer.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
