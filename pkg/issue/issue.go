// Package issue defines the error taxonomy of fhirschema and its mapping to
// FHIR OperationOutcome issues.
package issue

import (
	"errors"
	"fmt"
)

// Severity represents the severity of an issue.
type Severity string

// Severity constants aligned with FHIR IssueSeverity.
const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// Code represents the type of issue (IssueType).
type Code string

// Code constants aligned with FHIR IssueType.
const (
	CodeInvalid      Code = "invalid"
	CodeStructure    Code = "structure"
	CodeRequired     Code = "required"
	CodeValue        Code = "value"
	CodeNotFound     Code = "not-found"
	CodeNotSupported Code = "not-supported"
	CodeDuplicate    Code = "duplicate"
	CodeProcessing   Code = "processing"
	CodeException    Code = "exception"
)

// Kind classifies an Error.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	// KindLoad: the bundle is unreadable or malformed. Fatal at startup.
	KindLoad
	// KindNotFound: the resource name is not in the snapshot.
	KindNotFound
	// KindInvalidPath: the element path is unknown or cannot be expanded.
	KindInvalidPath
	// KindInvalidArgument: a query argument is malformed.
	KindInvalidArgument
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load error"
	case KindNotFound:
		return "not found"
	case KindInvalidPath:
		return "invalid path"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown error"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrLoad            = &Error{Kind: KindLoad}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidPath     = &Error{Kind: KindInvalidPath}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
)

// Issue is a single OperationOutcome-style issue.
type Issue struct {
	Severity    Severity `json:"severity" yaml:"severity"`
	Code        Code     `json:"code" yaml:"code"`
	Diagnostics string   `json:"diagnostics" yaml:"diagnostics"`
	Expression  []string `json:"expression,omitempty" yaml:"expression,omitempty"`
	MessageID   string   `json:"messageId,omitempty" yaml:"messageId,omitempty"`
}

// Error is the error type returned by the loader and the index.
type Error struct {
	Kind        Kind
	ID          DiagnosticID
	Severity    Severity
	Code        Code
	Diagnostics string
	Expression  []string
	Err         error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Diagnostics == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Diagnostics
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind. A target with an
// ID must also match the ID.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.ID == "" || t.ID == e.ID
}

// Issue converts the error to an OperationOutcome-style issue.
func (e *Error) Issue() Issue {
	return Issue{
		Severity:    e.Severity,
		Code:        e.Code,
		Diagnostics: e.Diagnostics,
		Expression:  e.Expression,
		MessageID:   string(e.ID),
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FromError converts any error to an Issue. Errors outside the taxonomy
// become processing exceptions.
func FromError(err error) Issue {
	var e *Error
	if errors.As(err, &e) {
		return e.Issue()
	}
	return Issue{
		Severity:    SeverityError,
		Code:        CodeException,
		Diagnostics: fmt.Sprint(err),
	}
}
