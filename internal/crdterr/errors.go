// Package crdterr defines the error taxonomy shared by the merge core.
//
// Errors fall into three classes:
//   - Contract violations: the caller broke a precondition (unknown id,
//     out-of-range split, end version absent from the graph). Never retried.
//   - Invariant violations: the content store is corrupted. Fatal for the
//     affected container.
//   - Boundary violations: a user-supplied value was rejected on ingestion.
package crdterr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code categorizes an Error.
type Code string

const (
	// CodeOutOfRange indicates a span split or slice outside the span's range.
	CodeOutOfRange Code = "OUT_OF_RANGE"

	// CodeUnknownID indicates a reference to an id that was never integrated.
	CodeUnknownID Code = "UNKNOWN_ID"

	// CodeDuplicateID indicates an id that is already integrated in the store.
	CodeDuplicateID Code = "DUPLICATE_ID"

	// CodeUnknownEndVersion indicates an end version vector naming an id
	// absent from the causal graph.
	CodeUnknownEndVersion Code = "UNKNOWN_END_VERSION"

	// CodeInvalidOp indicates a malformed operation record.
	CodeInvalidOp Code = "INVALID_OP"

	// CodeInvariantViolation indicates store corruption.
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	// CodeContainerPoisoned is returned by every call on a container after
	// an invariant violation.
	CodeContainerPoisoned Code = "CONTAINER_POISONED"

	// CodeDepthExceeded indicates a value nested deeper than the bound.
	CodeDepthExceeded Code = "DEPTH_EXCEEDED"

	// CodeWrongKind indicates a typed conversion on the wrong value variant.
	CodeWrongKind Code = "WRONG_KIND"
)

// Error is a structured failure from the merge core.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// ID is the identifier involved, if any, in counter@client form.
	ID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause (used by CONTAINER_POISONED).
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.ID != "" {
		fmt.Fprintf(&b, " (id=%s)", e.ID)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Details[k])
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithID sets the identifier and returns the receiver.
func (e *Error) WithID(id fmt.Stringer) *Error {
	e.ID = id.String()
	return e
}

// With adds a detail and returns the receiver.
func (e *Error) With(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Poisoned wraps the fatal error that disabled a container.
func Poisoned(container string, cause error) *Error {
	return &Error{
		Code:    CodeContainerPoisoned,
		Message: fmt.Sprintf("container %s is disabled after a fatal error", container),
		Err:     cause,
	}
}

// Is reports whether err (or anything it wraps) is an Error with the code.
func Is(err error, code Code) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsContractViolation returns true for caller precondition failures.
func IsContractViolation(err error) bool {
	return codeOf(err, CodeOutOfRange, CodeUnknownID, CodeDuplicateID, CodeUnknownEndVersion, CodeInvalidOp)
}

// IsInvariantViolation returns true if err reports store corruption,
// directly or as the cause of a poisoned container.
func IsInvariantViolation(err error) bool {
	return Is(err, CodeInvariantViolation)
}

// IsBoundaryViolation returns true for rejected user-supplied values.
func IsBoundaryViolation(err error) bool {
	return codeOf(err, CodeDepthExceeded, CodeWrongKind)
}

func codeOf(err error, codes ...Code) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	for _, c := range codes {
		if e.Code == c {
			return true
		}
	}
	return false
}
