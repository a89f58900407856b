package loader

import (
	"testing"

	"github.com/gofhir/fhirschema/pkg/config"
)

func TestEntryFilter(t *testing.T) {
	f, err := compileFilter(config.DefaultSchema().EntryFilter)
	if err != nil {
		t.Fatalf("compileFilter failed: %v", err)
	}

	tests := []struct {
		name     string
		resource string
		want     bool
	}{
		{"resource with snapshot", `{"resourceType":"StructureDefinition","kind":"resource","snapshot":{"element":[{"path":"A"}]}}`, true},
		{"resource without snapshot", `{"resourceType":"StructureDefinition","kind":"resource"}`, false},
		{"complex type", `{"resourceType":"StructureDefinition","kind":"complex-type","snapshot":{"element":[{"path":"A"}]}}`, false},
		{"specialization", `{"resourceType":"StructureDefinition","kind":"resource","derivation":"specialization","snapshot":{"element":[{"path":"A"}]}}`, true},
		{"constraint profile", `{"resourceType":"StructureDefinition","kind":"resource","derivation":"constraint","snapshot":{"element":[{"path":"A"}]}}`, false},
		{"no kind", `{"resourceType":"StructureDefinition","snapshot":{"element":[{"path":"A"}]}}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.Match([]byte(tt.resource))
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompileFilterInvalid(t *testing.T) {
	if _, err := compileFilter("where("); err == nil {
		t.Error("expected compile error")
	}
}
