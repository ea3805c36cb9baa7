// Package taxonomy defines the tagged error kinds every orchestrator
// operation returns instead of raising exceptions.
package taxonomy

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one of the error categories every component surfaces.
type Kind string

const (
	// TransientNetwork covers timeouts, 5xx, connection resets, and
	// rate-limiting. Callers retry with bounded backoff.
	TransientNetwork Kind = "transient_network"
	// Permanent covers 4xx (except 429) and malformed responses.
	Permanent Kind = "permanent"
	// EmulationUnavailable is returned when binfmt_misc registration
	// could not be established for a target architecture.
	EmulationUnavailable Kind = "emulation_unavailable"
	// ResourceInfeasible marks a resource plan that does not fit the
	// host inventory. The process may proceed if strict validation is off.
	ResourceInfeasible Kind = "resource_infeasible"
	// ChildCrashed marks a supervised runner process that exited
	// unexpectedly.
	ChildCrashed Kind = "child_crashed"
	// Fatal is unrecoverable: out of disk, unwritable install root.
	Fatal Kind = "fatal"
)

// Error wraps a Kind and an optional retry delay around a cause.
type Error struct {
	Kind       Kind
	Op         string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs a tagged Error.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// NewRetryable constructs a TransientNetwork error carrying a
// server-suggested retry delay (e.g. from a 429 Retry-After header).
func NewRetryable(op string, cause error, after time.Duration) *Error {
	return &Error{Kind: TransientNetwork, Op: op, Cause: cause, RetryAfter: after}
}

// Is reports whether err is a taxonomy Error of the given Kind.
func Is(err error, kind Kind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, or "" if err is not a taxonomy Error.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
