package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	v, err := NewViper("")
	require.NoError(t, err)

	app, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "definitions/profiles-resources.json", app.Bundle)
	assert.Equal(t, "info", app.LogLevel)
	assert.Equal(t, OutputText, app.Output)
	assert.Equal(t, 30, app.SearchLimit)
	assert.False(t, app.Watch)
	assert.Equal(t, 500*time.Millisecond, app.Debounce)
	assert.Equal(t, "https://packages.fhir.org", app.RegistryURL)
	assert.Empty(t, app.PackageRef)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "conf.yaml")
	content := "bundle: /data/r5/profiles-resources.json\noutput: json\nsearch-limit: 10\nwatch: true\ndebounce: 2s\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	v, err := NewViper(file)
	require.NoError(t, err)

	app, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "/data/r5/profiles-resources.json", app.Bundle)
	assert.Equal(t, OutputJSON, app.Output)
	assert.Equal(t, 10, app.SearchLimit)
	assert.True(t, app.Watch)
	assert.Equal(t, 2*time.Second, app.Debounce)
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FHIRSCHEMA_OUTPUT", "yaml")
	t.Setenv("FHIRSCHEMA_SEARCH_LIMIT", "5")

	v, err := NewViper("")
	require.NoError(t, err)

	app, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, OutputYAML, app.Output)
	assert.Equal(t, 5, app.SearchLimit)
}

func TestNewViperMissingExplicitFile(t *testing.T) {
	_, err := NewViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAppValidate(t *testing.T) {
	valid := App{Bundle: "b.json", Output: OutputText, SearchLimit: 30}

	tests := []struct {
		name    string
		mutate  func(a *App)
		wantErr bool
	}{
		{"valid", func(a *App) {}, false},
		{"package only", func(a *App) { a.Bundle = ""; a.Package = "core.tgz" }, false},
		{"bad output", func(a *App) { a.Output = "xml" }, true},
		{"zero limit", func(a *App) { a.SearchLimit = 0 }, true},
		{"package ref only", func(a *App) { a.Bundle = ""; a.PackageRef = "hl7.fhir.r5.core@5.0.0" }, false},
		{"no source", func(a *App) { a.Bundle = "" }, true},
		{"watch package ref", func(a *App) { a.PackageRef = "hl7.fhir.r5.core"; a.Watch = true }, true},
		{"negative debounce", func(a *App) { a.Debounce = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid
			tt.mutate(&a)
			err := a.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAppSource(t *testing.T) {
	a := App{Bundle: "b.json"}
	assert.Equal(t, "b.json", a.Source())

	a.Package = "core.tgz"
	assert.Equal(t, "core.tgz", a.Source())
}

func TestAppSchemaEntryFilter(t *testing.T) {
	a := App{}
	assert.Equal(t, DefaultSchema().EntryFilter, a.Schema().EntryFilter)

	a.EntryFilter = "kind = 'logical'"
	assert.Equal(t, "kind = 'logical'", a.Schema().EntryFilter)
}
