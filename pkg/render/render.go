// Package render turns query results into text, JSON or YAML for the CLI
// and the stdio tool server.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/gofhir/fhirschema/pkg/index"
	"github.com/gofhir/fhirschema/pkg/issue"
)

// Format specifies the output format.
type Format string

const (
	// FormatText renders the human-readable layout.
	FormatText Format = "text"

	// FormatJSON renders indented JSON.
	FormatJSON Format = "json"

	// FormatYAML renders YAML.
	FormatYAML Format = "yaml"
)

// IsValid checks if the format is known.
func (f Format) IsValid() bool {
	switch f {
	case FormatText, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// ParseFormat parses a format name. It returns FormatText for unknown names.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON
	case "yaml", "yml":
		return FormatYAML
	default:
		return FormatText
	}
}

// Color palette.
var (
	ColorCyan    = lipgloss.Color("14")
	ColorMagenta = lipgloss.Color("13")
	ColorYellow  = lipgloss.Color("220")
	ColorRed     = lipgloss.Color("204")
)

// Semantic styles used by the text layout.
var (
	StyleTitle = lipgloss.NewStyle().Bold(true).Foreground(ColorCyan)
	StyleNoun  = lipgloss.NewStyle().Foreground(ColorCyan)
	StyleType  = lipgloss.NewStyle().Foreground(ColorMagenta)
	StyleHint  = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleDim   = lipgloss.NewStyle().Faint(true)
	StyleError = lipgloss.NewStyle().Bold(true).Foreground(ColorRed)
)

// Renderer renders query results in one format.
type Renderer struct {
	format Format
	styled bool
}

// New creates a Renderer. styled enables terminal colors in text output.
func New(format Format, styled bool) *Renderer {
	if !format.IsValid() {
		format = FormatText
	}
	return &Renderer{format: format, styled: styled && format == FormatText}
}

// Format returns the output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Styled reports whether text output carries terminal colors.
func (r *Renderer) Styled() bool {
	return r.styled
}

// paint applies style to a single-line fragment when styling is enabled.
func (r *Renderer) paint(style lipgloss.Style, s string) string {
	if !r.styled || s == "" {
		return s
	}
	return style.Render(s)
}

// Definition renders the result of a resource definition query.
func (r *Renderer) Definition(def index.Definition) (string, error) {
	if r.format == FormatText {
		return r.definitionText(def), nil
	}
	return r.encode(definitionView(def.Name, def, false))
}

// Backbone renders the result of a backbone query on resource.
func (r *Renderer) Backbone(resource string, def index.Definition) (string, error) {
	if r.format == FormatText {
		return r.backboneText(resource, def), nil
	}
	return r.encode(definitionView(resource, def, true))
}

// Search renders search results. limit is the limit the search ran with.
func (r *Renderer) Search(keyword string, matches []index.Match, limit int) (string, error) {
	if r.format == FormatText {
		return r.searchText(keyword, matches, limit), nil
	}
	return r.encode(searchView(keyword, matches, limit))
}

// Resources renders the resource list.
func (r *Renderer) Resources(names []string) (string, error) {
	if r.format == FormatText {
		return resourcesText(names), nil
	}
	return r.encode(ResourcesView{Count: len(names), Resources: names})
}

// Error renders a query failure. For an unknown resource the text layout
// also lists available, the names the index knows.
func (r *Renderer) Error(err error, available []string) (string, error) {
	iss := issue.FromError(err)
	if r.format != FormatText {
		return r.encode(iss)
	}

	msg := iss.Diagnostics
	if errors.Is(err, issue.ErrNotFound) && len(available) > 0 {
		return r.paint(StyleError, msg+".") + "\n" + resourcesText(available), nil
	}
	return r.paint(StyleError, msg), nil
}

func (r *Renderer) encode(v any) (string, error) {
	switch r.format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode JSON: %w", err)
		}
		return string(data), nil
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode YAML: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	default:
		return "", fmt.Errorf("unsupported format %q", r.format)
	}
}
