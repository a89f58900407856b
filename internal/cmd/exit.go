// Package cmd provides the command implementations of the fhir-schema CLI.
package cmd

import (
	"errors"
	"fmt"

	"github.com/gofhir/fhirschema/pkg/issue"
)

// Exit codes.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitLoadError indicates the bundle could not be loaded.
	ExitLoadError = 2

	// ExitNotFound indicates the resource is unknown.
	ExitNotFound = 3

	// ExitInvalidArgument indicates a bad path, keyword or limit.
	ExitInvalidArgument = 4

	// ExitConfigError indicates the configuration is invalid.
	ExitConfigError = 5
)

// ExitCodeName returns the name of the exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitSuccess:
		return "Success"
	case ExitGeneralError:
		return "General Error"
	case ExitLoadError:
		return "Load Error"
	case ExitNotFound:
		return "Not Found"
	case ExitInvalidArgument:
		return "Invalid Argument"
	case ExitConfigError:
		return "Config Error"
	default:
		return "Unknown"
	}
}

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
	// Printed is set when the command already reported the error.
	Printed bool
}

// Error implements error.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeFromError maps an error to an exit code.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch issue.KindOf(err) {
	case issue.KindLoad:
		return ExitLoadError
	case issue.KindNotFound:
		return ExitNotFound
	case issue.KindInvalidPath, issue.KindInvalidArgument:
		return ExitInvalidArgument
	default:
		return ExitGeneralError
	}
}

func exitError(err error, printed bool) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: ExitCodeFromError(err), Err: err, Printed: printed}
}
