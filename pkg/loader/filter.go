package loader

import (
	"fmt"

	"github.com/gofhir/fhirpath"
)

// entryFilter selects StructureDefinition entries with a compiled FHIRPath
// expression.
type entryFilter struct {
	source string
	expr   *fhirpath.Expression
}

// compileFilter compiles expression once for the whole load.
func compileFilter(expression string) (*entryFilter, error) {
	compiled, err := fhirpath.Compile(expression)
	if err != nil {
		return nil, err
	}
	return &entryFilter{source: expression, expr: compiled}, nil
}

// Match evaluates the filter against the raw JSON of one resource.
func (f *entryFilter) Match(resource []byte) (bool, error) {
	result, err := f.expr.Evaluate(resource)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", f.source, err)
	}
	return selected(result), nil
}

// selected converts a FHIRPath result collection to a boolean:
// an empty collection is false, a single boolean is its value and any other
// non-empty collection is true.
func selected(result fhirpath.Collection) bool {
	if result.Empty() {
		return false
	}
	b, err := result.ToBoolean()
	if err != nil {
		return true
	}
	return b
}
