package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gofhir/fhirschema/pkg/render"
)

func newResourceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resource <name>",
		Short: "Show the top-level elements of a resource",
		Long: `Show the top-level elements of a FHIR resource with their cardinality,
types, short description and binding. Backbone elements can be expanded with
the backbone command.`,
		Example: `  fhir-schema resource Patient
  fhir-schema resource Observation -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := g.loadIndex(cmd.Context())
			if err != nil {
				return exitError(err, false)
			}
			def, qerr := idx.GetResourceDefinition(args[0])
			return g.emit(cmd, idx, qerr, func(r *render.Renderer) (string, error) {
				return r.Definition(def)
			})
		},
	}
}

func newBackboneCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "backbone <resource> <path>",
		Short: "Show the child elements of a backbone element",
		Example: `  fhir-schema backbone Patient Patient.contact
  fhir-schema backbone Questionnaire Questionnaire.item.item`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := g.loadIndex(cmd.Context())
			if err != nil {
				return exitError(err, false)
			}
			def, qerr := idx.GetBackboneElement(args[0], args[1])
			return g.emit(cmd, idx, qerr, func(r *render.Renderer) (string, error) {
				return r.Backbone(args[0], def)
			})
		},
	}
}

func newSearchCmd(g *globals) *cobra.Command {
	var limit int

	c := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Search elements of all resources by keyword",
		Long: `Search element names, short descriptions and definitions of all resources
for a case-insensitive keyword. Results are ordered by resource then element
declaration order.`,
		Example: `  fhir-schema search birth
  fhir-schema search "marital status" --limit 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := g.loadIndex(cmd.Context())
			if err != nil {
				return exitError(err, false)
			}
			if !cmd.Flags().Changed("limit") {
				limit = idx.SearchLimit()
			}
			matches, qerr := idx.SearchElements(args[0], limit)
			return g.emit(cmd, idx, qerr, func(r *render.Renderer) (string, error) {
				return r.Search(args[0], matches, min(limit, idx.MaxSearchLimit()))
			})
		},
	}
	c.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum number of results (default from search-limit)")
	return c
}

func newListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the loaded resource names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			idx, err := g.loadIndex(cmd.Context())
			if err != nil {
				return exitError(err, false)
			}
			return g.emit(cmd, idx, nil, func(r *render.Renderer) (string, error) {
				return r.Resources(idx.ListResources())
			})
		},
	}
}
