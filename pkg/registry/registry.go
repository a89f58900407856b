// Package registry holds the raw StructureDefinition records of a loaded
// bundle in an immutable, name-indexed Registry.
package registry

import (
	"slices"
	"strings"

	"github.com/gofhir/fhirschema/pkg/config"
)

// StructureDefinition represents a minimal view of a FHIR StructureDefinition.
// We use a lightweight struct to avoid importing full FHIR types during loading.
type StructureDefinition struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id"`
	URL          string `json:"url"`
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Kind         string `json:"kind"` // resource, complex-type, primitive-type, logical
	Abstract     bool   `json:"abstract"`
	Type         string `json:"type"` // The type this SD defines
	Derivation   string `json:"derivation,omitempty"`
	Description  string `json:"description,omitempty"`
	FHIRVersion  string `json:"fhirVersion,omitempty"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Snapshot contains the complete set of ElementDefinitions.
type Snapshot struct {
	Element []ElementDefinition `json:"element"`
}

// ElementDefinition is one raw field record of a StructureDefinition snapshot.
type ElementDefinition struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	SliceName  string   `json:"sliceName,omitempty"`
	Short      string   `json:"short,omitempty"`
	Definition string   `json:"definition,omitempty"`
	Min        uint32   `json:"min"`
	Max        string   `json:"max"`
	Type       []Type   `json:"type,omitempty"`
	Binding    *Binding `json:"binding,omitempty"`
	IsModifier bool     `json:"isModifier,omitempty"`
	IsSummary  bool     `json:"isSummary,omitempty"`

	// ContentReference references another element's definition for recursive structures.
	// Format: "#ElementPath" (e.g., "#Questionnaire.item" for Questionnaire.item.item),
	// or "<canonical>#ElementPath" in R5 bundles.
	ContentReference string `json:"contentReference,omitempty"`
}

// InSlice reports whether the record is a slice entry or lies below one.
// Slice descendants keep the base path; only the id carries the ":name" part.
func (ed *ElementDefinition) InSlice() bool {
	return ed.SliceName != "" || strings.IndexByte(ed.ID, ':') >= 0
}

// Type represents an allowed type for an element.
type Type struct {
	Code          string   `json:"code"`
	Profile       []string `json:"profile,omitempty"`
	TargetProfile []string `json:"targetProfile,omitempty"`
}

// Binding represents a terminology binding.
type Binding struct {
	Strength string `json:"strength"` // required | extensible | preferred | example
	ValueSet string `json:"valueSet,omitempty"`
}

// ContentReferencePath returns the referenced element path, dropping the
// leading '#' (R4) or the canonical URL up to '#' (R5). It returns "" when
// the element has no content reference.
func (ed *ElementDefinition) ContentReferencePath() string {
	if i := strings.LastIndexByte(ed.ContentReference, '#'); i >= 0 {
		return ed.ContentReference[i+1:]
	}
	return ed.ContentReference
}

// Resource is one indexed resource: its raw definition plus the flat,
// declaration-ordered list of field records that queries walk.
type Resource struct {
	// Name is the resource name used as the registry key.
	Name string
	// Root is the path of the root element (StructureDefinition.type).
	Root string
	// Description is the human-readable description of the resource.
	Description string
	// Definition is the raw record as loaded.
	Definition *StructureDefinition

	elements []*ElementDefinition
	byPath   map[string]*ElementDefinition
}

// NewResource creates a Resource from its raw definition and the field
// records to index, in declaration order. The caller must not modify
// elements afterwards.
func NewResource(name, root, description string, def *StructureDefinition, elements []*ElementDefinition) *Resource {
	r := &Resource{
		Name:        name,
		Root:        root,
		Description: description,
		Definition:  def,
		elements:    elements,
		byPath:      make(map[string]*ElementDefinition, len(elements)),
	}
	for _, ed := range elements {
		r.byPath[ed.Path] = ed
	}
	return r
}

// Elements returns the flat field list in declaration order.
// The returned slice must not be modified.
func (r *Resource) Elements() []*ElementDefinition {
	return r.elements
}

// Element returns the field record with the given path.
func (r *Resource) Element(path string) (*ElementDefinition, bool) {
	ed, ok := r.byPath[path]
	return ed, ok
}

// Children returns the field records exactly one segment below parent,
// in declaration order.
func (r *Resource) Children(parent string) []*ElementDefinition {
	var out []*ElementDefinition
	for _, ed := range r.elements {
		if config.IsDirectChild(parent, ed.Path) {
			out = append(out, ed)
		}
	}
	return out
}

// Registry maps resource names to resources. It is immutable once built and
// safe for concurrent use without locking.
type Registry struct {
	byName      map[string]*Resource
	order       []*Resource
	fhirVersion string
}

// Builder accumulates resources for a Registry.
type Builder struct {
	reg *Registry
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{reg: &Registry{byName: make(map[string]*Resource)}}
}

// Add appends r in declaration order. It returns false, leaving the builder
// unchanged, when a resource with the same name was already added.
func (b *Builder) Add(r *Resource) bool {
	if _, exists := b.reg.byName[r.Name]; exists {
		return false
	}
	b.reg.byName[r.Name] = r
	b.reg.order = append(b.reg.order, r)
	return true
}

// SetFHIRVersion records the FHIR version the bundle was published for.
func (b *Builder) SetFHIRVersion(v string) {
	if b.reg.fhirVersion == "" {
		b.reg.fhirVersion = v
	}
}

// Len returns the number of resources added so far.
func (b *Builder) Len() int {
	return len(b.reg.order)
}

// Build returns the Registry. The builder must not be used afterwards.
func (b *Builder) Build() *Registry {
	reg := b.reg
	b.reg = nil
	return reg
}

// Get returns the resource with the given name (case-sensitive).
func (r *Registry) Get(name string) (*Resource, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// FHIRVersion returns the fhirVersion of the first definition that declared
// one, or "".
func (r *Registry) FHIRVersion() string {
	return r.fhirVersion
}

// Len returns the number of resources.
func (r *Registry) Len() int {
	return len(r.order)
}

// Resources returns the resources in bundle declaration order.
// The returned slice must not be modified.
func (r *Registry) Resources() []*Resource {
	return r.order
}

// Names returns the resource names in bundle declaration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	for i, res := range r.order {
		names[i] = res.Name
	}
	return names
}

// SortedNames returns the resource names in lexical order.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	slices.Sort(names)
	return names
}

// ElementCount returns the total number of indexed field records.
func (r *Registry) ElementCount() int {
	n := 0
	for _, res := range r.order {
		n += len(res.elements)
	}
	return n
}
