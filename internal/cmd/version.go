package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	fs "github.com/gofhir/fhirschema"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show fhir-schema version information.

Displays:
  - fhir-schema version
  - Go version and platform`,
		Args: cobra.NoArgs,
		// version needs no configuration or bundle
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE:              runVersion,
	}
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "fhir-schema version %s\n", fs.Version)
	fmt.Fprintf(out, "  Go:        %s\n", runtime.Version())
	fmt.Fprintf(out, "  Platform:  %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
