// Package element provides ElementInfo, the immutable per-query view of one
// field of a resource, and the mapping from raw field records to it.
package element

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/registry"
)

// Conversion errors. They describe why a raw field record is not a valid
// element and are wrapped with the offending value.
var (
	ErrNoPath           = errors.New("empty path")
	ErrNoType           = errors.New("no type")
	ErrCardinality      = errors.New("invalid cardinality")
	ErrBindingStrength  = errors.New("unknown binding strength")
	ErrContentReference = errors.New("unresolved content reference")
)

// Strength is the binding strength of a coded element.
type Strength string

// Binding strengths.
const (
	StrengthRequired   Strength = config.StrengthRequired
	StrengthExtensible Strength = config.StrengthExtensible
	StrengthPreferred  Strength = config.StrengthPreferred
	StrengthExample    Strength = config.StrengthExample
)

// Binding associates a coded element with a value set.
// The zero value means the element has no binding.
type Binding struct {
	Strength Strength
	ValueSet string
}

// IsZero reports whether b is the empty binding.
func (b Binding) IsZero() bool {
	return b.Strength == "" && b.ValueSet == ""
}

// Cardinality holds the occurrence bounds of an element.
// Max is meaningful only when Unbounded is false.
type Cardinality struct {
	Min       int
	Max       int
	Unbounded bool
}

// ParseCardinality builds a Cardinality from the raw min and max values.
// max is a non-negative decimal or "*".
func ParseCardinality(minVal uint32, maxVal string) (Cardinality, error) {
	c := Cardinality{Min: int(minVal)}
	if maxVal == config.Unbounded {
		c.Unbounded = true
		return c, nil
	}
	n, err := strconv.Atoi(maxVal)
	if err != nil || n < 0 {
		return Cardinality{}, fmt.Errorf("%w: max %q", ErrCardinality, maxVal)
	}
	if c.Min > n {
		return Cardinality{}, fmt.Errorf("%w: min %d > max %d", ErrCardinality, c.Min, n)
	}
	c.Max = n
	return c, nil
}

// MaxString returns the max bound as written in FHIR ("*" when unbounded).
func (c Cardinality) MaxString() string {
	if c.Unbounded {
		return config.Unbounded
	}
	return strconv.Itoa(c.Max)
}

// String returns the cardinality as "min..max".
func (c Cardinality) String() string {
	return strconv.Itoa(c.Min) + ".." + c.MaxString()
}

// TypeRef is one allowed type of an element.
type TypeRef struct {
	Code string
	// Targets are the allowed target types of a Reference or canonical,
	// with the core StructureDefinition URL prefix removed.
	Targets []string
}

// String renders the type, e.g. "Reference(Organization | Practitioner)".
func (t TypeRef) String() string {
	if len(t.Targets) == 0 {
		return t.Code
	}
	return t.Code + "(" + strings.Join(t.Targets, " | ") + ")"
}

// Info is the immutable view of one field. It is built on demand for every
// query and never cached.
type Info struct {
	Path             string
	Cardinality      Cardinality
	Types            []TypeRef
	Short            string
	Definition       string
	Binding          Binding
	Backbone         bool
	Polymorphic      bool
	ContentReference string
	Modifier         bool
	Summary          bool
}

// Name returns the final segment of the path.
func (i Info) Name() string {
	return config.LeafName(i.Path)
}

// TypeDisplay renders all allowed types separated by " | ".
func (i Info) TypeDisplay() string {
	parts := make([]string, len(i.Types))
	for n, t := range i.Types {
		parts[n] = t.String()
	}
	return strings.Join(parts, " | ")
}

// Expandable reports whether the element owns child elements that can be
// listed with a backbone query.
func (i Info) Expandable() bool {
	return i.Backbone
}

// Equal reports whether i and o describe the same element.
func (i Info) Equal(o Info) bool {
	return i.Path == o.Path &&
		i.Cardinality == o.Cardinality &&
		slices.EqualFunc(i.Types, o.Types, func(a, b TypeRef) bool {
			return a.Code == b.Code && slices.Equal(a.Targets, b.Targets)
		}) &&
		i.Short == o.Short &&
		i.Definition == o.Definition &&
		i.Binding == o.Binding &&
		i.Backbone == o.Backbone &&
		i.Polymorphic == o.Polymorphic &&
		i.ContentReference == o.ContentReference &&
		i.Modifier == o.Modifier &&
		i.Summary == o.Summary
}

// Lookup resolves an element path within the same resource.
type Lookup func(path string) (*registry.ElementDefinition, bool)

// Convert maps a raw field record to an Info. lookup resolves content
// references and may be nil for records without one. Convert has no side
// effects and may be called any number of times for the same record.
func Convert(s *config.Schema, ed *registry.ElementDefinition, lookup Lookup) (Info, error) {
	if ed.Path == "" {
		return Info{}, ErrNoPath
	}

	card, err := ParseCardinality(ed.Min, ed.Max)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Path:        ed.Path,
		Cardinality: card,
		Short:       ed.Short,
		Definition:  ed.Definition,
		Polymorphic: s.IsPolymorphic(ed.Path),
		Modifier:    ed.IsModifier,
		Summary:     ed.IsSummary,
	}

	typed := ed
	if len(ed.Type) == 0 && ed.ContentReference != "" {
		info.ContentReference = ed.ContentReferencePath()
		target, ok := resolve(lookup, info.ContentReference)
		if !ok {
			return Info{}, fmt.Errorf("%w: %s", ErrContentReference, ed.ContentReference)
		}
		typed = target
	}
	if len(typed.Type) == 0 {
		return Info{}, ErrNoType
	}
	info.Types = convertTypes(s, typed.Type)
	for _, t := range typed.Type {
		if s.IsBackboneType(t.Code) {
			info.Backbone = true
			break
		}
	}

	if ed.Binding != nil {
		if !config.IsStrength(ed.Binding.Strength) {
			return Info{}, fmt.Errorf("%w: %q", ErrBindingStrength, ed.Binding.Strength)
		}
		info.Binding = Binding{
			Strength: Strength(ed.Binding.Strength),
			ValueSet: ed.Binding.ValueSet,
		}
	}

	return info, nil
}

func resolve(lookup Lookup, path string) (*registry.ElementDefinition, bool) {
	if lookup == nil || path == "" {
		return nil, false
	}
	return lookup(path)
}

func convertTypes(s *config.Schema, types []registry.Type) []TypeRef {
	out := make([]TypeRef, len(types))
	for i, t := range types {
		ref := TypeRef{Code: t.Code}
		if len(t.TargetProfile) > 0 {
			ref.Targets = make([]string, len(t.TargetProfile))
			for j, url := range t.TargetProfile {
				ref.Targets[j] = s.TrimStructureURL(url)
			}
		}
		out[i] = ref
	}
	return out
}
