// Package index answers read-only queries against a loaded registry.
//
// An Index never mutates its registry and builds every element.Info on
// demand, so it is safe for concurrent use without locking.
package index

import (
	"fmt"
	"strings"
	"time"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/element"
	"github.com/gofhir/fhirschema/pkg/issue"
	"github.com/gofhir/fhirschema/pkg/registry"
)

// Definition is the result of a resource or backbone query: the queried
// name, its description and its direct child elements in declaration order.
type Definition struct {
	Name        string
	Description string
	Elements    []element.Info
}

// Match is one search hit.
type Match struct {
	Resource string
	Element  element.Info
}

// Index answers queries against one registry.
type Index struct {
	reg  *registry.Registry
	opts *fs.Options
}

// New creates an Index over reg.
func New(reg *registry.Registry, opts ...fs.Option) *Index {
	return &Index{reg: reg, opts: fs.Apply(opts...)}
}

// Registry returns the underlying registry.
func (x *Index) Registry() *registry.Registry {
	return x.reg
}

// SearchLimit returns the limit used when a caller does not choose one.
func (x *Index) SearchLimit() int {
	return x.opts.SearchLimit
}

// MaxSearchLimit returns the cap applied to any requested limit.
func (x *Index) MaxSearchLimit() int {
	return x.opts.MaxSearchLimit
}

// GetResourceDefinition returns the top-level elements of the named
// resource. The name is matched exactly.
func (x *Index) GetResourceDefinition(name string) (Definition, error) {
	start := time.Now()
	def, err := x.resourceDefinition(name)
	x.record(fs.OpResourceDefinition, start, len(def.Elements), err)
	return def, err
}

func (x *Index) resourceDefinition(name string) (Definition, error) {
	res, err := x.resource(name)
	if err != nil {
		return Definition{}, err
	}
	elements, err := x.children(res, res.Root)
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Name:        res.Name,
		Description: res.Description,
		Elements:    elements,
	}, nil
}

// GetBackboneElement returns the direct children of the expandable element
// at path. An element with a content reference expands to the children of
// the referenced element.
func (x *Index) GetBackboneElement(resource, path string) (Definition, error) {
	start := time.Now()
	def, err := x.backboneElement(resource, path)
	x.record(fs.OpBackboneElement, start, len(def.Elements), err)
	return def, err
}

func (x *Index) backboneElement(resource, path string) (Definition, error) {
	res, err := x.resource(resource)
	if err != nil {
		return Definition{}, err
	}

	params := map[string]any{"resource": resource, "path": path}
	ed, ok := res.Element(path)
	if !ok {
		return Definition{}, issue.New(issue.DiagPathNotFound, params, path)
	}
	info, err := x.convert(res, ed)
	if err != nil {
		return Definition{}, err
	}
	if !info.Expandable() {
		return Definition{}, issue.New(issue.DiagPathNotBackbone, params, path)
	}

	parent := path
	if info.ContentReference != "" {
		parent = info.ContentReference
	}
	elements, err := x.children(res, parent)
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Name:        path,
		Description: info.Short,
		Elements:    elements,
	}, nil
}

// SearchElements returns up to limit elements whose name, short description
// or definition contains keyword, ignoring case. Resources are scanned in
// bundle order and elements in declaration order. An empty keyword matches
// every element.
//
// The result count is also bounded by the configured maximum
// (fs.WithMaxSearchLimit, 200 by default): a larger limit returns at most
// MaxSearchLimit matches. Only a limit <= 0 is an error.
func (x *Index) SearchElements(keyword string, limit int) ([]Match, error) {
	start := time.Now()
	matches, err := x.searchElements(keyword, limit)
	x.record(fs.OpSearchElements, start, len(matches), err)
	return matches, err
}

func (x *Index) searchElements(keyword string, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, issue.New(issue.DiagLimitInvalid, map[string]any{"limit": limit})
	}
	if limit > x.opts.MaxSearchLimit {
		limit = x.opts.MaxSearchLimit
	}

	kw := strings.ToLower(keyword)
	matches := make([]Match, 0, min(limit, 16))
	for _, res := range x.reg.Resources() {
		for _, ed := range res.Elements() {
			if x.opts.Schema.IsInfrastructure(ed.Path) || !matchesKeyword(ed, kw) {
				continue
			}
			info, err := x.convert(res, ed)
			if err != nil {
				return nil, err
			}
			matches = append(matches, Match{Resource: res.Name, Element: info})
			if len(matches) >= limit {
				return matches, nil
			}
		}
	}
	return matches, nil
}

func matchesKeyword(ed *registry.ElementDefinition, kw string) bool {
	return strings.Contains(strings.ToLower(config.LeafName(ed.Path)), kw) ||
		strings.Contains(strings.ToLower(ed.Short), kw) ||
		strings.Contains(strings.ToLower(ed.Definition), kw)
}

// ListResources returns the resource names in lexical order.
func (x *Index) ListResources() []string {
	start := time.Now()
	names := x.reg.SortedNames()
	x.record(fs.OpListResources, start, len(names), nil)
	return names
}

func (x *Index) resource(name string) (*registry.Resource, error) {
	res, ok := x.reg.Get(name)
	if !ok {
		return nil, issue.New(issue.DiagResourceNotFound, map[string]any{"resource": name})
	}
	return res, nil
}

// children converts the non-infrastructure direct children of parent.
func (x *Index) children(res *registry.Resource, parent string) ([]element.Info, error) {
	eds := res.Children(parent)
	out := make([]element.Info, 0, len(eds))
	for _, ed := range eds {
		if x.opts.Schema.IsInfrastructure(ed.Path) {
			continue
		}
		info, err := x.convert(res, ed)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// convert builds the element view of ed. Records were validated at load
// time, so an error here means the registry was built by other means.
func (x *Index) convert(res *registry.Resource, ed *registry.ElementDefinition) (element.Info, error) {
	info, err := element.Convert(x.opts.Schema, ed, res.Element)
	if err != nil {
		return element.Info{}, fmt.Errorf("element %s of %s: %w", ed.Path, res.Name, err)
	}
	return info, nil
}

func (x *Index) record(op string, start time.Time, results int, err error) {
	if x.opts.Metrics != nil {
		x.opts.Metrics.RecordQuery(op, time.Since(start), results, err)
	}
}
