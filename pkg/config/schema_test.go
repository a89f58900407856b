package config

import "testing"

func TestDefaultSchemaInfrastructure(t *testing.T) {
	s := DefaultSchema()

	tests := []struct {
		path string
		want bool
	}{
		{"Patient.id", true},
		{"Patient.meta", true},
		{"Patient.contact.extension", true},
		{"Patient.contact.modifierExtension", true},
		{"Patient.gender", false},
		{"Patient.identifier", false},
		{"Patient.contact", false},
		{"Patient.textual", false},
	}

	for _, tt := range tests {
		if got := s.IsInfrastructure(tt.path); got != tt.want {
			t.Errorf("IsInfrastructure(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWithInfrastructureNames(t *testing.T) {
	base := DefaultSchema()
	s := base.WithInfrastructureNames("gender")

	if !s.IsInfrastructure("Patient.gender") {
		t.Error("custom denylist should contain gender")
	}
	if s.IsInfrastructure("Patient.id") {
		t.Error("custom denylist should replace the default names")
	}
	if !base.IsInfrastructure("Patient.id") {
		t.Error("base schema must not change")
	}
}

func TestWithEntryFilter(t *testing.T) {
	base := DefaultSchema()
	s := base.WithEntryFilter("kind = 'complex-type'")

	if s.EntryFilter != "kind = 'complex-type'" {
		t.Errorf("EntryFilter = %q", s.EntryFilter)
	}
	if base.EntryFilter == s.EntryFilter {
		t.Error("base schema must not change")
	}
	if !s.IsInfrastructure("Patient.id") {
		t.Error("copy should keep the denylist")
	}
}

func TestIsBackboneType(t *testing.T) {
	s := DefaultSchema()
	for _, code := range []string{"BackboneElement", "Element"} {
		if !s.IsBackboneType(code) {
			t.Errorf("IsBackboneType(%q) = false", code)
		}
	}
	for _, code := range []string{"HumanName", "code", "Reference", ""} {
		if s.IsBackboneType(code) {
			t.Errorf("IsBackboneType(%q) = true", code)
		}
	}
}

func TestIsPolymorphic(t *testing.T) {
	s := DefaultSchema()
	if !s.IsPolymorphic("Patient.deceased[x]") {
		t.Error("deceased[x] should be polymorphic")
	}
	if s.IsPolymorphic("Patient.deceased") {
		t.Error("deceased should not be polymorphic")
	}
}

func TestTrimStructureURL(t *testing.T) {
	s := DefaultSchema()
	if got := s.TrimStructureURL("http://hl7.org/fhir/StructureDefinition/Organization"); got != "Organization" {
		t.Errorf("TrimStructureURL = %q", got)
	}
	other := "http://example.org/StructureDefinition/Custom"
	if got := s.TrimStructureURL(other); got != other {
		t.Errorf("TrimStructureURL(%q) = %q", other, got)
	}
}

func TestIsStrength(t *testing.T) {
	for _, v := range []string{"required", "extensible", "preferred", "example"} {
		if !IsStrength(v) {
			t.Errorf("IsStrength(%q) = false", v)
		}
	}
	for _, v := range []string{"", "Required", "strict"} {
		if IsStrength(v) {
			t.Errorf("IsStrength(%q) = true", v)
		}
	}
}

func TestPathHelpers(t *testing.T) {
	if got := LeafName("Patient.contact.name"); got != "name" {
		t.Errorf("LeafName = %q", got)
	}
	if got := LeafName("Patient"); got != "Patient" {
		t.Errorf("LeafName = %q", got)
	}

	tests := []struct {
		parent, child string
		want          bool
	}{
		{"Patient", "Patient.contact", true},
		{"Patient", "Patient.contact.name", false},
		{"Patient.contact", "Patient.contact.name", true},
		{"Patient.contact", "Patient.contactPoint", false},
		{"Patient.contact", "Patient.contact", false},
		{"Patient.contact", "Patient.contact.", false},
		{"Patient", "Observation.status", false},
	}
	for _, tt := range tests {
		if got := IsDirectChild(tt.parent, tt.child); got != tt.want {
			t.Errorf("IsDirectChild(%q, %q) = %v, want %v", tt.parent, tt.child, got, tt.want)
		}
	}
}
