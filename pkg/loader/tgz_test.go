package loader

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/issue"
)

type tgzFile struct {
	name string
	body string
}

func buildTgz(t *testing.T, files ...tgzFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, f := range files {
		hdr := &tar.Header{
			Name:     f.name,
			Mode:     0o644,
			Size:     int64(len(f.body)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(f.body)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestLoadPackageReader(t *testing.T) {
	data := buildTgz(t,
		tgzFile{"package/package.json", `{"name":"hl7.fhir.r4.core","version":"4.0.1","fhirVersions":["4.0.1"]}`},
		tgzFile{"package/StructureDefinition-Basic.json", sdOf("Basic", `{"path":"Basic.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]}`)},
		tgzFile{"package/StructureDefinition-HumanName.json", `{"resourceType":"StructureDefinition","name":"HumanName","kind":"complex-type","snapshot":{"element":[{"path":"HumanName","min":0,"max":"*"}]}}`},
		tgzFile{"package/ValueSet-x.json", `{"resourceType":"ValueSet","id":"x"}`},
		tgzFile{"package/other/StructureDefinition-Nested.json", sdOf("Nested")},
		tgzFile{"package/StructureDefinition-Account.json", sdOf("Account", `{"path":"Account.status","min":1,"max":"1","type":[{"code":"code"}]}`)},
	)

	l, err := New(quiet())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	reg, err := l.LoadPackageReader(context.Background(), bytes.NewReader(data), "test.tgz")
	if err != nil {
		t.Fatalf("LoadPackageReader failed: %v", err)
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "Basic" || names[1] != "Account" {
		t.Errorf("Names() = %v, want [Basic Account] in archive order", names)
	}
	if reg.FHIRVersion() != "4.0.1" {
		t.Errorf("FHIRVersion() = %q, want manifest version", reg.FHIRVersion())
	}
}

func TestLoadPackageSkipsConstraintProfiles(t *testing.T) {
	observation := `{"resourceType":"StructureDefinition","name":"Observation","kind":"resource","type":"Observation",
		"derivation":"specialization","snapshot":{"element":[
		{"id":"Observation","path":"Observation","min":0,"max":"*"},
		{"id":"Observation.status","path":"Observation.status","min":1,"max":"1","type":[{"code":"code"}]},
		{"id":"Observation.component","path":"Observation.component","min":0,"max":"*","type":[{"code":"BackboneElement"}]},
		{"id":"Observation.component.code","path":"Observation.component.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]}
	]}}`
	bp := `{"resourceType":"StructureDefinition","name":"observation-bp","kind":"resource","type":"Observation",
		"derivation":"constraint","snapshot":{"element":[
		{"id":"Observation","path":"Observation","min":0,"max":"*"},
		{"id":"Observation.status","path":"Observation.status","min":1,"max":"1","type":[{"code":"code"}]},
		{"id":"Observation.component","path":"Observation.component","min":2,"max":"*","type":[{"code":"BackboneElement"}]},
		{"id":"Observation.component.code","path":"Observation.component.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]},
		{"id":"Observation.component:SystolicBP","path":"Observation.component","sliceName":"SystolicBP","min":1,"max":"1","type":[{"code":"BackboneElement"}]},
		{"id":"Observation.component:SystolicBP.code","path":"Observation.component.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]}
	]}}`
	data := buildTgz(t,
		tgzFile{"package/StructureDefinition-Observation.json", observation},
		tgzFile{"package/StructureDefinition-bp.json", bp},
	)

	t.Run("default filter", func(t *testing.T) {
		l, err := New(quiet())
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		reg, err := l.LoadPackageReader(context.Background(), bytes.NewReader(data), "core.tgz")
		if err != nil {
			t.Fatalf("LoadPackageReader failed: %v", err)
		}
		if names := reg.Names(); len(names) != 1 || names[0] != "Observation" {
			t.Errorf("Names() = %v, want [Observation]", names)
		}
	})

	t.Run("profile selected explicitly", func(t *testing.T) {
		l, err := New(quiet(), fs.WithEntryFilter("derivation = 'constraint'"))
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		reg, err := l.LoadPackageReader(context.Background(), bytes.NewReader(data), "core.tgz")
		if err != nil {
			t.Fatalf("LoadPackageReader failed: %v", err)
		}
		res, ok := reg.Get("observation-bp")
		if !ok {
			t.Fatal("observation-bp not loaded")
		}
		if len(res.Elements()) != 3 {
			t.Errorf("Elements() = %d, want 3 (slices dropped)", len(res.Elements()))
		}
	})
}

func TestLoadPackageTgzFile(t *testing.T) {
	data := buildTgz(t,
		tgzFile{"package/StructureDefinition-Basic.json", sdOf("Basic", `{"path":"Basic.code","min":1,"max":"1","type":[{"code":"CodeableConcept"}]}`)},
	)
	path := filepath.Join(t.TempDir(), "pkg.tgz")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reg, err := LoadPackageTgz(context.Background(), path, quiet())
	if err != nil {
		t.Fatalf("LoadPackageTgz failed: %v", err)
	}
	if _, ok := reg.Get("Basic"); !ok {
		t.Error("Basic not loaded")
	}
}

func TestLoadPackageErrors(t *testing.T) {
	l, err := New(quiet())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want issue.DiagnosticID
	}{
		{"not gzip", []byte("plain text"), issue.DiagLoadUnreadable},
		{"no definitions", buildTgz(t, tgzFile{"package/package.json", `{"name":"empty","version":"1.0.0"}`}), issue.DiagLoadEmpty},
		{"bad manifest", buildTgz(t, tgzFile{"package/package.json", `[`}), issue.DiagLoadNotBundle},
		{"invalid element", buildTgz(t, tgzFile{"package/StructureDefinition-Basic.json", sdOf("Basic", `{"path":"Basic.code","min":0,"max":"1"}`)}), issue.DiagLoadInvalidElement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.LoadPackageReader(context.Background(), bytes.NewReader(tt.data), tt.name)
			if !errors.Is(err, loadErr(tt.want)) {
				t.Errorf("error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestLoadPackageTgzMissing(t *testing.T) {
	_, err := LoadPackageTgz(context.Background(), filepath.Join(t.TempDir(), "missing.tgz"), quiet())
	if !errors.Is(err, loadErr(issue.DiagLoadUnreadable)) {
		t.Errorf("error = %v, want %s", err, issue.DiagLoadUnreadable)
	}
}

func TestIsStructureDefinitionFile(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"StructureDefinition-Patient.json", true},
		{"StructureDefinition-Patient.xml", false},
		{"ValueSet-x.json", false},
		{"examples/StructureDefinition-Patient.json", false},
		{"package.json", false},
	}
	for _, tt := range tests {
		if got := isStructureDefinitionFile(tt.name); got != tt.want {
			t.Errorf("isStructureDefinitionFile(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
