package render

import (
	"fmt"
	"strings"

	"github.com/gofhir/fhirschema/pkg/element"
	"github.com/gofhir/fhirschema/pkg/index"
)

const (
	backboneHint   = "  → use get_backbone_element to expand"
	truncationNote = "\n(Results capped at %d — refine your keyword for more specific results.)"
)

var (
	headerSep  = strings.Repeat("=", 60)
	sectionSep = strings.Repeat("-", 40)
)

func (r *Renderer) elementLine(info element.Info, label string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "  %s (%s) : %s",
		r.paint(StyleNoun, label), info.Cardinality, r.paint(StyleType, info.TypeDisplay()))
	if info.Short != "" {
		sb.WriteString("\n      " + info.Short)
	}
	if !info.Binding.IsZero() {
		sb.WriteString("\n      " + r.paint(StyleDim, "binding: "+string(info.Binding.Strength)))
		if info.Binding.ValueSet != "" {
			sb.WriteString(" (" + info.Binding.ValueSet + ")")
		}
	}
	if info.Expandable() {
		sb.WriteString("\n     " + r.paint(StyleHint, backboneHint))
	}
	return sb.String()
}

func (r *Renderer) summary(title, description, section string, elements []element.Info) string {
	lines := []string{
		r.paint(StyleDim, headerSep),
		"  " + r.paint(StyleTitle, title),
		r.paint(StyleDim, headerSep),
		"",
		description,
		"",
		r.paint(StyleDim, sectionSep),
		"  " + section,
		r.paint(StyleDim, sectionSep),
		"",
	}
	for _, info := range elements {
		lines = append(lines, r.elementLine(info, info.Name()), "")
	}
	return strings.Join(lines, "\n")
}

func (r *Renderer) definitionText(def index.Definition) string {
	return r.summary(def.Name, def.Description, "Elements", def.Elements)
}

func (r *Renderer) backboneText(resource string, def index.Definition) string {
	return r.summary(resource+"  —  "+def.Name, def.Description, "Child elements", def.Elements)
}

func (r *Renderer) searchText(keyword string, matches []index.Match, limit int) string {
	if len(matches) == 0 {
		return fmt.Sprintf("No elements matched '%s'.", keyword)
	}

	lines := []string{fmt.Sprintf("Search results for '%s' (%d matches):", keyword, len(matches)), ""}
	for _, m := range matches {
		line := fmt.Sprintf("  %s (%s) : %s",
			r.paint(StyleNoun, m.Element.Path), m.Element.Cardinality, r.paint(StyleType, m.Element.TypeDisplay()))
		if m.Element.Short != "" {
			line += "\n      " + m.Element.Short
		}
		lines = append(lines, line, "")
	}
	if len(matches) >= limit {
		lines = append(lines, fmt.Sprintf(truncationNote, limit))
	}
	return strings.Join(lines, "\n")
}

func resourcesText(names []string) string {
	return fmt.Sprintf("Available resources (%d):\n%s", len(names), strings.Join(names, ", "))
}
