package loader

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofhir/fhir/r4"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/issue"
	"github.com/gofhir/fhirschema/pkg/registry"
)

// FromR4 builds a registry from typed R4 StructureDefinitions.
func FromR4(ctx context.Context, sds []*r4.StructureDefinition, opts ...fs.Option) (*registry.Registry, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.FromR4(ctx, sds)
}

// FromR4 converts sds and loads them as if they were the entries of one
// bundle. nil values are skipped.
func (l *Loader) FromR4(ctx context.Context, sds []*r4.StructureDefinition) (*registry.Registry, error) {
	const source = "<r4>"
	start := time.Now()
	b := newBuild(l.opts.Schema)

	for i, typed := range sds {
		if err := ctx.Err(); err != nil {
			return nil, l.failed(canceled(err, source))
		}
		sd := convertR4(typed)
		if sd == nil {
			continue
		}

		// The entry filter runs on the converted record, so typed and
		// JSON sources select the same definitions.
		raw, err := json.Marshal(sd)
		if err != nil {
			return nil, l.failed(issue.Wrap(issue.DiagLoadEntryMalformed, err, map[string]any{"index": i}))
		}
		ok, err := l.filter.Match(raw)
		if err != nil {
			return nil, l.failed(issue.Wrap(issue.DiagLoadInvalidFilter, err, map[string]any{
				"expression": l.filter.source,
			}))
		}
		if !ok {
			continue
		}
		if err := b.add(i, sd); err != nil {
			return nil, l.failed(err)
		}
	}

	return l.finish(b, source, start)
}

// convertR4 maps an r4.StructureDefinition to the raw registry record.
func convertR4(sd *r4.StructureDefinition) *registry.StructureDefinition {
	if sd == nil {
		return nil
	}

	result := &registry.StructureDefinition{
		ResourceType: "StructureDefinition",
		ID:           derefString(sd.Id),
		URL:          derefString(sd.Url),
		Name:         derefString(sd.Name),
		Title:        derefString(sd.Title),
		Kind:         convertKind(sd.Kind),
		Abstract:     derefBool(sd.Abstract),
		Type:         derefString(sd.Type),
		Derivation:   convertDerivation(sd.Derivation),
		Description:  derefString(sd.Description),
		FHIRVersion:  convertFHIRVersion(sd.FhirVersion),
	}

	if sd.Snapshot != nil {
		result.Snapshot = &registry.Snapshot{
			Element: convertElementDefinitions(sd.Snapshot.Element),
		}
	}
	return result
}

func convertElementDefinitions(elements []r4.ElementDefinition) []registry.ElementDefinition {
	if len(elements) == 0 {
		return nil
	}

	result := make([]registry.ElementDefinition, 0, len(elements))
	for i := range elements {
		result = append(result, convertElementDefinition(&elements[i]))
	}
	return result
}

func convertElementDefinition(ed *r4.ElementDefinition) registry.ElementDefinition {
	return registry.ElementDefinition{
		ID:               derefString(ed.Id),
		Path:             derefString(ed.Path),
		SliceName:        derefString(ed.SliceName),
		Short:            derefString(ed.Short),
		Definition:       derefString(ed.Definition),
		Min:              derefUint32(ed.Min),
		Max:              derefString(ed.Max),
		Type:             convertTypes(ed.Type),
		Binding:          convertBinding(ed.Binding),
		IsModifier:       derefBool(ed.IsModifier),
		IsSummary:        derefBool(ed.IsSummary),
		ContentReference: derefString(ed.ContentReference),
	}
}

func convertTypes(types []r4.ElementDefinitionType) []registry.Type {
	if len(types) == 0 {
		return nil
	}

	result := make([]registry.Type, 0, len(types))
	for i := range types {
		t := &types[i]
		result = append(result, registry.Type{
			Code:          derefString(t.Code),
			Profile:       t.Profile,
			TargetProfile: t.TargetProfile,
		})
	}
	return result
}

func convertBinding(binding *r4.ElementDefinitionBinding) *registry.Binding {
	if binding == nil {
		return nil
	}
	b := &registry.Binding{ValueSet: derefString(binding.ValueSet)}
	if binding.Strength != nil {
		b.Strength = string(*binding.Strength)
	}
	return b
}

func convertKind(kind *r4.StructureDefinitionKind) string {
	if kind == nil {
		return ""
	}
	return string(*kind)
}

func convertDerivation(d *r4.TypeDerivationRule) string {
	if d == nil {
		return ""
	}
	return string(*d)
}

func convertFHIRVersion(version *r4.FHIRVersion) string {
	if version == nil {
		return ""
	}
	return string(*version)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefBool(b *bool) bool {
	if b == nil {
		return false
	}
	return *b
}

func derefUint32(v *uint32) uint32 {
	if v == nil {
		return 0
	}
	return *v
}
