package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/capitalize-ai/meeting-assistant/internal/model"
)

// Kind classifies a workflow failure and selects its recovery.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindQuotaExceeded  Kind = "quota_exceeded"
	KindNetworkTimeout Kind = "network_timeout"
	KindValidation     Kind = "validation"
	KindUnknown        Kind = "unknown"
)

// Recoverable reports whether the workflow can carry on without the user.
func (k Kind) Recoverable() bool {
	return k == KindQuotaExceeded || k == KindNetworkTimeout
}

// Error is a failure tagged with its kind where it happened. Collaborators
// return it to tell the orchestrator how to recover.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	// Step, for validation errors, is the collection step that fixes them.
	Step model.Step
	// Problems lists every failed requirement of a validation error.
	Problems []string
	Err      error
}

// NewError creates a tagged error.
func NewError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so callers can test
// errors.Is(err, workflow.ErrQuotaExceeded).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// Kind sentinels for errors.Is.
var (
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrQuotaExceeded  = &Error{Kind: KindQuotaExceeded}
	ErrNetworkTimeout = &Error{Kind: KindNetworkTimeout}
	ErrValidation     = &Error{Kind: KindValidation}
)

// KindOf returns the kind of err. Untagged deadline errors are network
// timeouts; anything else untagged is unknown.
func KindOf(err error) Kind {
	var we *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &we):
		return we.Kind
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetworkTimeout
	default:
		return KindUnknown
	}
}

// tag makes sure err carries a kind, wrapping it when it does not.
func tag(op string, err error) *Error {
	var we *Error
	if errors.As(err, &we) {
		if we.Op == "" {
			c := *we
			c.Op = op
			return &c
		}
		return we
	}
	return &Error{Kind: KindOf(err), Op: op, Err: err}
}
