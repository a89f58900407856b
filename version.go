package fhirschema

import "strings"

// Version is the fhirschema release.
const Version = "0.1.0"

// FHIRVersion represents a FHIR specification version.
type FHIRVersion string

// Supported FHIR versions.
const (
	// R4 is FHIR Release 4 (4.0.1)
	R4 FHIRVersion = "R4"
	// R4B is FHIR Release 4B (4.3.0)
	R4B FHIRVersion = "R4B"
	// R5 is FHIR Release 5 (5.0.0)
	R5 FHIRVersion = "R5"
)

// String returns the version string.
func (v FHIRVersion) String() string {
	return string(v)
}

// IsValid returns true if this is a supported FHIR version.
func (v FHIRVersion) IsValid() bool {
	switch v {
	case R4, R4B, R5:
		return true
	default:
		return false
	}
}

// ParseFHIRVersion maps a StructureDefinition.fhirVersion value such as
// "5.0.0" (or a release name such as "R5") to a FHIRVersion. Unknown values
// yield "".
func ParseFHIRVersion(s string) FHIRVersion {
	s = strings.TrimSpace(s)
	switch {
	case s == "R4", strings.HasPrefix(s, "4.0"):
		return R4
	case s == "R4B", strings.HasPrefix(s, "4.3"):
		return R4B
	case s == "R5", strings.HasPrefix(s, "5.0"):
		return R5
	default:
		return ""
	}
}
