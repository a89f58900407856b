package render

import (
	"github.com/gofhir/fhirschema/pkg/element"
	"github.com/gofhir/fhirschema/pkg/index"
)

// ElementView is the serialized form of an element.
type ElementView struct {
	Path             string       `json:"path" yaml:"path"`
	Name             string       `json:"name" yaml:"name"`
	Min              int          `json:"min" yaml:"min"`
	Max              string       `json:"max" yaml:"max"`
	Type             string       `json:"type" yaml:"type"`
	Short            string       `json:"short,omitempty" yaml:"short,omitempty"`
	Definition       string       `json:"definition,omitempty" yaml:"definition,omitempty"`
	Binding          *BindingView `json:"binding,omitempty" yaml:"binding,omitempty"`
	Backbone         bool         `json:"backbone,omitempty" yaml:"backbone,omitempty"`
	Polymorphic      bool         `json:"polymorphic,omitempty" yaml:"polymorphic,omitempty"`
	ContentReference string       `json:"contentReference,omitempty" yaml:"contentReference,omitempty"`
	Modifier         bool         `json:"modifier,omitempty" yaml:"modifier,omitempty"`
	Summary          bool         `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// BindingView is the serialized form of a binding.
type BindingView struct {
	Strength string `json:"strength" yaml:"strength"`
	ValueSet string `json:"valueSet,omitempty" yaml:"valueSet,omitempty"`
}

// DefinitionView is the serialized form of a resource or backbone query.
type DefinitionView struct {
	Resource    string        `json:"resource" yaml:"resource"`
	Path        string        `json:"path,omitempty" yaml:"path,omitempty"`
	Description string        `json:"description" yaml:"description"`
	Elements    []ElementView `json:"elements" yaml:"elements"`
}

// MatchView is the serialized form of a search hit.
type MatchView struct {
	Resource string      `json:"resource" yaml:"resource"`
	Element  ElementView `json:"element" yaml:"element"`
}

// SearchView is the serialized form of a search.
type SearchView struct {
	Keyword   string      `json:"keyword" yaml:"keyword"`
	Limit     int         `json:"limit" yaml:"limit"`
	Truncated bool        `json:"truncated" yaml:"truncated"`
	Matches   []MatchView `json:"matches" yaml:"matches"`
}

// ResourcesView is the serialized form of the resource list.
type ResourcesView struct {
	Count     int      `json:"count" yaml:"count"`
	Resources []string `json:"resources" yaml:"resources"`
}

func elementView(info element.Info) ElementView {
	v := ElementView{
		Path:             info.Path,
		Name:             info.Name(),
		Min:              info.Cardinality.Min,
		Max:              info.Cardinality.MaxString(),
		Type:             info.TypeDisplay(),
		Short:            info.Short,
		Definition:       info.Definition,
		Backbone:         info.Backbone,
		Polymorphic:      info.Polymorphic,
		ContentReference: info.ContentReference,
		Modifier:         info.Modifier,
		Summary:          info.Summary,
	}
	if !info.Binding.IsZero() {
		v.Binding = &BindingView{
			Strength: string(info.Binding.Strength),
			ValueSet: info.Binding.ValueSet,
		}
	}
	return v
}

func elementViews(infos []element.Info) []ElementView {
	out := make([]ElementView, len(infos))
	for i, info := range infos {
		out[i] = elementView(info)
	}
	return out
}

func definitionView(resource string, def index.Definition, backbone bool) DefinitionView {
	v := DefinitionView{
		Resource:    resource,
		Description: def.Description,
		Elements:    elementViews(def.Elements),
	}
	if backbone {
		v.Path = def.Name
	}
	return v
}

func searchView(keyword string, matches []index.Match, limit int) SearchView {
	v := SearchView{
		Keyword:   keyword,
		Limit:     limit,
		Truncated: len(matches) >= limit,
		Matches:   make([]MatchView, len(matches)),
	}
	for i, m := range matches {
		v.Matches[i] = MatchView{Resource: m.Resource, Element: elementView(m.Element)}
	}
	return v
}
