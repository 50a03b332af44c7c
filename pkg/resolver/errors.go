package resolver

import (
	"errors"
	"fmt"
)

// ErrorKind classifies resolution failures for programmatic handling.
type ErrorKind string

const (
	// KindProviderNotFound indicates no provider supplies a suitable
	// component for a requested specification.
	KindProviderNotFound ErrorKind = "provider_not_found"

	// KindLibraryNotFound indicates a requested library could not be located.
	KindLibraryNotFound ErrorKind = "library_not_found"

	// KindProgramNotFound indicates a requested external program could not
	// be located.
	KindProgramNotFound ErrorKind = "program_not_found"

	// KindRequirementNotMet indicates a bare requirement check failed and no
	// combination of providers could satisfy it.
	KindRequirementNotMet ErrorKind = "requirement_not_met"

	// KindSessionActive indicates a second session was opened while one is
	// already in progress.
	KindSessionActive ErrorKind = "session_active"

	// KindSessionFinalized indicates an augment was added to a session that
	// has already been finalized.
	KindSessionFinalized ErrorKind = "session_finalized"
)

// ResolveError is a classified resolution error.
type ResolveError struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// Name is the specification name the failure refers to, if any.
	Name string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	msg := e.describe()
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ResolveError) describe() string {
	switch e.Kind {
	case KindProviderNotFound:
		return fmt.Sprintf("no provider found that supplies a suitable '%s'", e.Name)
	case KindLibraryNotFound:
		return fmt.Sprintf("library '%s' not found", e.Name)
	case KindProgramNotFound:
		return fmt.Sprintf("external program '%s' not found", e.Name)
	case KindRequirementNotMet:
		return fmt.Sprintf("requires '%s' support", e.Name)
	case KindSessionActive:
		return "a resolution session is already active"
	case KindSessionFinalized:
		return "resolution session has been finalized"
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *ResolveError) Is(target error) bool {
	t, ok := target.(*ResolveError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewResolveError creates a classified resolution error for the named
// specification.
func NewResolveError(kind ErrorKind, name string) *ResolveError {
	return &ResolveError{Kind: kind, Name: name}
}

// KindOf returns the classification of err, or an empty kind when err is not
// a ResolveError.
func KindOf(err error) ErrorKind {
	var e *ResolveError
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err is any of the not-found classifications.
func IsNotFound(err error) bool {
	switch KindOf(err) {
	case KindProviderNotFound, KindLibraryNotFound, KindProgramNotFound:
		return true
	}
	return false
}
