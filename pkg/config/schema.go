// Package config holds the schema constants table and the application
// configuration for fhirschema.
package config

import "strings"

// Schema collects the names and markers used to read a StructureDefinition
// bundle. A Schema is built once at startup and treated as read-only.
type Schema struct {
	// ResourceTypeStructureDefinition is the resourceType an entry must carry
	// before the entry filter is evaluated.
	ResourceTypeStructureDefinition string

	// KindResource is the StructureDefinition.kind of selected entries.
	KindResource string

	// BackboneTypes are the type codes that mark an expandable nested group.
	BackboneTypes []string

	// ReferenceType is the type code whose targets are rendered inline.
	ReferenceType string

	// PolymorphicMarker is the path suffix of choice-typed elements.
	PolymorphicMarker string

	// StructureURLPrefix is stripped from reference target profiles.
	StructureURLPrefix string

	// InfrastructureNames are final path segments never shown to consumers.
	InfrastructureNames []string

	// EntryFilter is the FHIRPath expression that selects StructureDefinition
	// entries.
	EntryFilter string

	// DefaultSearchLimit is used when a caller does not choose a limit.
	DefaultSearchLimit int

	// MaxSearchLimit caps any requested limit.
	MaxSearchLimit int

	infrastructure map[string]struct{}
	backbone       map[string]struct{}
}

// Binding strength codes.
const (
	StrengthRequired   = "required"
	StrengthExtensible = "extensible"
	StrengthPreferred  = "preferred"
	StrengthExample    = "example"
)

// Unbounded is the max cardinality value meaning "no upper bound".
const Unbounded = "*"

// DefaultSchema returns the Schema for FHIR core resource bundles
// (profiles-resources.json).
func DefaultSchema() *Schema {
	s := &Schema{
		ResourceTypeStructureDefinition: "StructureDefinition",
		KindResource:                    "resource",
		BackboneTypes:                   []string{"BackboneElement", "Element"},
		ReferenceType:                   "Reference",
		PolymorphicMarker:               "[x]",
		StructureURLPrefix:              "http://hl7.org/fhir/StructureDefinition/",
		InfrastructureNames: []string{
			"id",
			"extension",
			"modifierExtension",
			"meta",
			"implicitRules",
			"language",
			"text",
			"contained",
		},
		EntryFilter:        "kind = 'resource' and derivation.where($this = 'constraint').empty() and snapshot.element.exists()",
		DefaultSearchLimit: 30,
		MaxSearchLimit:     200,
	}
	s.init()
	return s
}

func (s *Schema) init() {
	s.infrastructure = make(map[string]struct{}, len(s.InfrastructureNames))
	for _, name := range s.InfrastructureNames {
		s.infrastructure[name] = struct{}{}
	}
	s.backbone = make(map[string]struct{}, len(s.BackboneTypes))
	for _, code := range s.BackboneTypes {
		s.backbone[code] = struct{}{}
	}
}

// WithInfrastructureNames returns a copy of s using names as the
// infrastructure denylist.
func (s *Schema) WithInfrastructureNames(names ...string) *Schema {
	c := *s
	c.InfrastructureNames = append([]string(nil), names...)
	c.init()
	return &c
}

// WithEntryFilter returns a copy of s selecting entries with expr.
func (s *Schema) WithEntryFilter(expr string) *Schema {
	c := *s
	c.init()
	c.EntryFilter = expr
	return &c
}

// IsInfrastructure reports whether the final segment of path is on the
// infrastructure denylist.
func (s *Schema) IsInfrastructure(path string) bool {
	_, ok := s.infrastructure[LeafName(path)]
	return ok
}

// IsBackboneType reports whether code marks a nested group.
func (s *Schema) IsBackboneType(code string) bool {
	_, ok := s.backbone[code]
	return ok
}

// IsPolymorphic reports whether path names a choice-typed element.
func (s *Schema) IsPolymorphic(path string) bool {
	return strings.HasSuffix(path, s.PolymorphicMarker)
}

// TrimStructureURL strips the core StructureDefinition URL prefix from url.
func (s *Schema) TrimStructureURL(url string) string {
	return strings.TrimPrefix(url, s.StructureURLPrefix)
}

// IsStrength reports whether v is a known binding strength.
func IsStrength(v string) bool {
	switch v {
	case StrengthRequired, StrengthExtensible, StrengthPreferred, StrengthExample:
		return true
	}
	return false
}

// LeafName returns the final dot-segment of path.
func LeafName(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// IsDirectChild reports whether child is exactly one segment below parent.
func IsDirectChild(parent, child string) bool {
	if len(child) <= len(parent)+1 || !strings.HasPrefix(child, parent) || child[len(parent)] != '.' {
		return false
	}
	return strings.IndexByte(child[len(parent)+1:], '.') < 0
}
