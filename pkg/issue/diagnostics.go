package issue

import (
	"fmt"
	"strings"
)

// DiagnosticID identifies a specific diagnostic message.
type DiagnosticID string

// Diagnostic IDs for bundle loading.
const (
	DiagLoadUnreadable        DiagnosticID = "LOAD_UNREADABLE"
	DiagLoadNotBundle         DiagnosticID = "LOAD_NOT_BUNDLE"
	DiagLoadEntryMalformed    DiagnosticID = "LOAD_ENTRY_MALFORMED"
	DiagLoadEntryNoName       DiagnosticID = "LOAD_ENTRY_NO_NAME"
	DiagLoadEntryNoElements   DiagnosticID = "LOAD_ENTRY_NO_ELEMENTS"
	DiagLoadInvalidElement    DiagnosticID = "LOAD_INVALID_ELEMENT"
	DiagLoadDuplicateResource DiagnosticID = "LOAD_DUPLICATE_RESOURCE"
	DiagLoadEmpty             DiagnosticID = "LOAD_EMPTY"
	DiagLoadInvalidFilter     DiagnosticID = "LOAD_INVALID_FILTER"
	DiagLoadCanceled          DiagnosticID = "LOAD_CANCELED"
)

// Diagnostic IDs for queries.
const (
	DiagResourceNotFound DiagnosticID = "RESOURCE_NOT_FOUND"
	DiagPathNotFound     DiagnosticID = "PATH_NOT_FOUND"
	DiagPathNotBackbone  DiagnosticID = "PATH_NOT_BACKBONE"
	DiagLimitInvalid     DiagnosticID = "LIMIT_INVALID"
	DiagArgumentMissing  DiagnosticID = "ARGUMENT_MISSING"
	DiagToolUnknown      DiagnosticID = "TOOL_UNKNOWN"
	DiagRequestMalformed DiagnosticID = "REQUEST_MALFORMED"
)

// DiagnosticTemplate defines the structure for a diagnostic message.
type DiagnosticTemplate struct {
	ID       DiagnosticID
	Kind     Kind
	Severity Severity
	Code     Code
	Template string
}

// diagnosticTemplates maps diagnostic IDs to their templates.
// Templates use {placeholder} syntax for variable substitution.
var diagnosticTemplates = map[DiagnosticID]DiagnosticTemplate{
	DiagLoadUnreadable: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeException,
		Template: "Cannot read bundle {source}: {error}",
	},
	DiagLoadNotBundle: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Bundle {source} is not a collection of entries: {error}",
	},
	DiagLoadEntryMalformed: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Entry {index} is not a valid StructureDefinition: {error}",
	},
	DiagLoadEntryNoName: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeRequired,
		Template: "Entry {index} has no name",
	},
	DiagLoadEntryNoElements: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeRequired,
		Template: "Resource '{resource}' has no snapshot elements",
	},
	DiagLoadInvalidElement: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeStructure,
		Template: "Invalid element '{path}' in {resource}: {reason}",
	},
	DiagLoadDuplicateResource: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeDuplicate,
		Template: "Duplicate resource '{resource}'",
	},
	DiagLoadEmpty: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeNotFound,
		Template: "Bundle {source} contains no resource definitions",
	},
	DiagLoadInvalidFilter: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeInvalid,
		Template: "Invalid entry filter '{expression}': {error}",
	},
	DiagLoadCanceled: {
		Kind:     KindLoad,
		Severity: SeverityFatal,
		Code:     CodeProcessing,
		Template: "Loading {source} canceled: {error}",
	},

	DiagResourceNotFound: {
		Kind:     KindNotFound,
		Severity: SeverityError,
		Code:     CodeNotFound,
		Template: "Unknown resource type '{resource}'",
	},
	DiagPathNotFound: {
		Kind:     KindInvalidPath,
		Severity: SeverityError,
		Code:     CodeNotFound,
		Template: "Path '{path}' not found in {resource}",
	},
	DiagPathNotBackbone: {
		Kind:     KindInvalidPath,
		Severity: SeverityError,
		Code:     CodeInvalid,
		Template: "Path '{path}' is not a BackboneElement",
	},
	DiagLimitInvalid: {
		Kind:     KindInvalidArgument,
		Severity: SeverityError,
		Code:     CodeValue,
		Template: "Search limit must be positive, got {limit}",
	},
	DiagArgumentMissing: {
		Kind:     KindInvalidArgument,
		Severity: SeverityError,
		Code:     CodeRequired,
		Template: "Missing argument '{name}'",
	},
	DiagToolUnknown: {
		Kind:     KindInvalidArgument,
		Severity: SeverityError,
		Code:     CodeNotSupported,
		Template: "Unknown tool '{tool}'",
	},
	DiagRequestMalformed: {
		Kind:     KindInvalidArgument,
		Severity: SeverityError,
		Code:     CodeStructure,
		Template: "Malformed request: {error}",
	},
}

// FormatDiagnostic formats a diagnostic message with the given parameters.
func FormatDiagnostic(id DiagnosticID, params map[string]any) string {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return string(id)
	}
	return formatTemplate(tmpl.Template, params)
}

// GetDiagnosticTemplate returns the template for a diagnostic ID.
func GetDiagnosticTemplate(id DiagnosticID) (DiagnosticTemplate, bool) {
	tmpl, ok := diagnosticTemplates[id]
	if ok {
		tmpl.ID = id
	}
	return tmpl, ok
}

// formatTemplate replaces {placeholder} with values from params.
func formatTemplate(template string, params map[string]any) string {
	result := template
	for key, value := range params {
		placeholder := "{" + key + "}"
		result = strings.ReplaceAll(result, placeholder, fmt.Sprint(value))
	}
	return result
}

// New builds an *Error from a diagnostic template.
func New(id DiagnosticID, params map[string]any, expression ...string) *Error {
	tmpl, ok := diagnosticTemplates[id]
	if !ok {
		return &Error{
			ID:          id,
			Severity:    SeverityError,
			Code:        CodeProcessing,
			Diagnostics: string(id),
			Expression:  expression,
		}
	}
	return &Error{
		Kind:        tmpl.Kind,
		ID:          id,
		Severity:    tmpl.Severity,
		Code:        tmpl.Code,
		Diagnostics: formatTemplate(tmpl.Template, params),
		Expression:  expression,
	}
}

// Wrap builds an *Error from a diagnostic template with err as its cause.
// err is available to the template as {error}.
func Wrap(id DiagnosticID, err error, params map[string]any, expression ...string) *Error {
	p := make(map[string]any, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	p["error"] = err
	e := New(id, p, expression...)
	e.Err = err
	return e
}
