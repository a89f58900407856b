//go:build property
// +build property

package index

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/registry"
)

var (
	fieldNames = []string{"status", "code", "subject", "value", "note", "period", "identifier", "category"}
	shortWords = []string{"Gender", "status", "Coded value", "reference to subject", "free text", "when"}
)

// randomRegistry builds a registry of up to five resources with nested
// backbone groups and infrastructure fields mixed in.
func randomRegistry(seed int64) *registry.Registry {
	rng := rand.New(rand.NewSource(seed))
	infra := config.DefaultSchema().InfrastructureNames
	b := registry.NewBuilder()

	for r := 0; r < 1+rng.Intn(5); r++ {
		name := fmt.Sprintf("Resource%d", r)
		var elements []*registry.ElementDefinition

		var addGroup func(parent string, depth int)
		addGroup = func(parent string, depth int) {
			elements = append(elements, &registry.ElementDefinition{
				Path: parent + "." + infra[rng.Intn(len(infra))],
				Max:  "1",
				Type: []registry.Type{{Code: "string"}},
			})
			for i, n := 0, 1+rng.Intn(4); i < n; i++ {
				path := fmt.Sprintf("%s.%s%d", parent, fieldNames[rng.Intn(len(fieldNames))], i)
				ed := &registry.ElementDefinition{
					Path:       path,
					Max:        "*",
					Short:      shortWords[rng.Intn(len(shortWords))],
					Definition: "Definition of " + path,
					Type:       []registry.Type{{Code: "CodeableConcept"}},
				}
				elements = append(elements, ed)
				if depth < 3 && rng.Intn(3) == 0 {
					ed.Type = []registry.Type{{Code: "BackboneElement"}}
					addGroup(path, depth+1)
				}
			}
		}
		addGroup(name, 1)

		b.Add(registry.NewResource(name, name, "", &registry.StructureDefinition{Name: name}, elements))
	}
	return b.Build()
}

func TestIndexProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)
	schema := config.DefaultSchema()

	properties.Property("resource definition returns direct children in order", prop.ForAll(
		func(seed int64) bool {
			reg := randomRegistry(seed)
			idx := New(reg, quiet())
			for _, res := range reg.Resources() {
				def, err := idx.GetResourceDefinition(res.Name)
				if err != nil {
					return false
				}
				var want []string
				for _, ed := range res.Elements() {
					if config.IsDirectChild(res.Name, ed.Path) && !schema.IsInfrastructure(ed.Path) {
						want = append(want, ed.Path)
					}
				}
				if !reflect.DeepEqual(want, nilIfEmpty(paths(def.Elements))) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.Property("backbone returns exactly one-segment children", prop.ForAll(
		func(seed int64) bool {
			reg := randomRegistry(seed)
			idx := New(reg, quiet())
			for _, res := range reg.Resources() {
				for _, ed := range res.Elements() {
					if len(ed.Type) == 0 || ed.Type[0].Code != "BackboneElement" {
						continue
					}
					def, err := idx.GetBackboneElement(res.Name, ed.Path)
					if err != nil {
						return false
					}
					for _, info := range def.Elements {
						if !config.IsDirectChild(ed.Path, info.Path) || schema.IsInfrastructure(info.Path) {
							return false
						}
					}
				}
			}
			return true
		},
		gen.Int64(),
	))

	properties.Property("search is bounded, case-insensitive and deterministic", prop.ForAll(
		func(seed int64, limit int, kw string) bool {
			idx := New(randomRegistry(seed), quiet())

			first, err := idx.SearchElements(kw, limit)
			if err != nil || len(first) > limit {
				return false
			}
			second, _ := idx.SearchElements(kw, limit)
			upper, _ := idx.SearchElements(strings.ToUpper(kw), limit)
			if !reflect.DeepEqual(first, second) || !reflect.DeepEqual(first, upper) {
				return false
			}
			for _, m := range first {
				if schema.IsInfrastructure(m.Element.Path) {
					return false
				}
			}
			return true
		},
		gen.Int64(),
		gen.IntRange(1, 40),
		gen.OneConstOf("status", "code", "gender", "value", "text", "id", "zzz"),
	))

	properties.TestingRun(t)
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
