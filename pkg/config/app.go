package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by the CLI.
const EnvPrefix = "FHIRSCHEMA"

// Configuration keys.
const (
	KeyBundle      = "bundle"
	KeyPackage     = "package"
	KeyLogLevel    = "log-level"
	KeyOutput      = "output"
	KeySearchLimit = "search-limit"
	KeyWatch       = "watch"
	KeyDebounce    = "debounce"
	KeyEntryFilter = "entry-filter"
	KeyPackageRef  = "package-ref"
	KeyRegistryURL = "registry-url"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// App is the process configuration of the fhir-schema CLI.
type App struct {
	Bundle      string        `mapstructure:"bundle"`
	Package     string        `mapstructure:"package"`
	LogLevel    string        `mapstructure:"log-level"`
	Output      string        `mapstructure:"output"`
	SearchLimit int           `mapstructure:"search-limit"`
	Watch       bool          `mapstructure:"watch"`
	Debounce    time.Duration `mapstructure:"debounce"`
	EntryFilter string        `mapstructure:"entry-filter"`
	PackageRef  string        `mapstructure:"package-ref"`
	RegistryURL string        `mapstructure:"registry-url"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyBundle, "definitions/profiles-resources.json")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyOutput, OutputText)
	v.SetDefault(KeySearchLimit, DefaultSchema().DefaultSearchLimit)
	v.SetDefault(KeyWatch, false)
	v.SetDefault(KeyDebounce, 500*time.Millisecond)
	v.SetDefault(KeyRegistryURL, "https://packages.fhir.org")
}

// NewViper returns a viper instance with defaults, env binding and, when
// file is set, the given config file. Without an explicit file it looks for
// .fhir-schema.yaml in the working directory.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(".fhir-schema")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// Load decodes the App configuration from v and validates it.
func Load(v *viper.Viper) (*App, error) {
	var app App
	if err := v.Unmarshal(&app); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}

// Validate checks field values.
func (a *App) Validate() error {
	switch a.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output format %q (text, json, yaml)", a.Output)
	}
	if a.SearchLimit <= 0 {
		return fmt.Errorf("search-limit must be positive, got %d", a.SearchLimit)
	}
	if a.Bundle == "" && a.Package == "" && a.PackageRef == "" {
		return errors.New("one of bundle, package or package-ref must be set")
	}
	if a.Watch && a.PackageRef != "" {
		return errors.New("watch needs a local bundle or package, not package-ref")
	}
	if a.Debounce < 0 {
		return fmt.Errorf("debounce must not be negative, got %s", a.Debounce)
	}
	return nil
}

// Source returns the path to load: the package when set, else the bundle.
func (a *App) Source() string {
	if a.Package != "" {
		return a.Package
	}
	return a.Bundle
}

// Schema returns the schema table for this configuration.
func (a *App) Schema() *Schema {
	s := DefaultSchema()
	if a.EntryFilter != "" {
		s = s.WithEntryFilter(a.EntryFilter)
	}
	return s
}
