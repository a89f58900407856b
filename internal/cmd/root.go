package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	fs "github.com/gofhir/fhirschema"
	"github.com/gofhir/fhirschema/pkg/config"
	"github.com/gofhir/fhirschema/pkg/index"
	"github.com/gofhir/fhirschema/pkg/issue"
	"github.com/gofhir/fhirschema/pkg/loader"
	"github.com/gofhir/fhirschema/pkg/logger"
	"github.com/gofhir/fhirschema/pkg/packages"
	"github.com/gofhir/fhirschema/pkg/registry"
	"github.com/gofhir/fhirschema/pkg/render"
)

// globals is the state shared by all subcommands of one root command.
type globals struct {
	// Global flags
	configFlag string
	noColor    bool

	// Resolved during PersistentPreRunE
	app     *config.App
	log     *logger.Logger
	metrics *fs.Metrics
}

// flagKeys are the configuration keys that may be overridden by a flag of
// the same name.
var flagKeys = []string{
	config.KeyBundle,
	config.KeyPackage,
	config.KeyLogLevel,
	config.KeyOutput,
	config.KeyEntryFilter,
	config.KeyPackageRef,
	config.KeyRegistryURL,
	config.KeyWatch,
	config.KeyDebounce,
}

// NewRootCmd creates the root command for the fhir-schema CLI.
func NewRootCmd() *cobra.Command {
	g := &globals{metrics: fs.NewMetrics()}

	rootCmd := &cobra.Command{
		Use:   "fhir-schema",
		Short: "Query FHIR resource definitions",
		Long: `fhir-schema loads a FHIR StructureDefinition bundle and answers questions
about resource structure: top-level elements, backbone children and keyword
search across all resources.

Configuration is read from flags, FHIRSCHEMA_* environment variables, a .env
file and .fhir-schema.yaml in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.initialize(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&g.configFlag, "config", "c", "", "Path to config file (env: FHIRSCHEMA_CONFIG)")
	rootCmd.PersistentFlags().String(config.KeyBundle, "", "Path to the StructureDefinition bundle (env: FHIRSCHEMA_BUNDLE)")
	rootCmd.PersistentFlags().String(config.KeyPackage, "", "Path to a FHIR package .tgz, used instead of the bundle (env: FHIRSCHEMA_PACKAGE)")
	rootCmd.PersistentFlags().String(config.KeyPackageRef, "", "Registry package to download, e.g. hl7.fhir.r5.core@5.0.0 (env: FHIRSCHEMA_PACKAGE_REF)")
	rootCmd.PersistentFlags().String(config.KeyRegistryURL, "", "FHIR package registry URL (default https://packages.fhir.org)")
	rootCmd.PersistentFlags().String(config.KeyLogLevel, "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().StringP(config.KeyOutput, "o", "", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().String(config.KeyEntryFilter, "", "FHIRPath expression selecting bundle entries")
	rootCmd.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored text output")

	rootCmd.AddCommand(newResourceCmd(g))
	rootCmd.AddCommand(newBackboneCmd(g))
	rootCmd.AddCommand(newSearchCmd(g))
	rootCmd.AddCommand(newListCmd(g))
	rootCmd.AddCommand(newServeCmd(g))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// initialize loads .env and the configuration, then sets up logging.
func (g *globals) initialize(cmd *cobra.Command) error {
	// A missing .env file is not an error
	_ = godotenv.Load()

	configFile := g.configFlag
	if configFile == "" {
		configFile = os.Getenv("FHIRSCHEMA_CONFIG")
	}

	v, err := config.NewViper(configFile)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	for _, key := range flagKeys {
		if f := cmd.Flags().Lookup(key); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return &ExitError{Code: ExitConfigError, Err: err}
			}
		}
	}

	app, err := config.Load(v)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	g.app = app

	level, err := logger.ParseLevel(app.LogLevel)
	if err != nil {
		return &ExitError{Code: ExitConfigError, Err: err}
	}
	g.log = logger.New(cmd.ErrOrStderr(), level)
	logger.SetDefault(g.log)

	g.log.Debug("fhir-schema %s started (config %q)", fs.Version, v.ConfigFileUsed())
	return nil
}

// options returns the loader and index options for the current config.
func (g *globals) options() []fs.Option {
	return []fs.Option{
		fs.WithSchema(g.app.Schema()),
		fs.WithSearchLimit(g.app.SearchLimit),
		fs.WithMetrics(g.metrics),
		fs.WithLogger(g.log),
	}
}

// loadIndex loads the configured bundle or package into a new Index.
func (g *globals) loadIndex(ctx context.Context) (*index.Index, error) {
	opts := g.options()

	var (
		reg *registry.Registry
		err error
	)
	switch {
	case g.app.PackageRef != "":
		reg, err = g.loadPackageRef(ctx, opts)
	case g.app.Package != "":
		reg, err = loader.LoadPackageTgz(ctx, g.app.Package, opts...)
	default:
		reg, err = loader.LoadFile(ctx, g.app.Bundle, opts...)
	}
	if err != nil {
		return nil, err
	}
	return index.New(reg, opts...), nil
}

// loadPackageRef streams a package from the registry into the loader.
func (g *globals) loadPackageRef(ctx context.Context, opts []fs.Option) (*registry.Registry, error) {
	ref, err := packages.ParseRef(g.app.PackageRef)
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Err: err}
	}
	if core, ok := packages.CoreRef(ref.Name); ok {
		// Release names such as "R5" select the core package
		ref = core
	}

	client := packages.NewClient(
		packages.WithRegistryURL(g.app.RegistryURL),
		packages.WithLogger(g.log))
	body, info, err := client.Open(ctx, ref)
	if err != nil {
		return nil, issue.Wrap(issue.DiagLoadUnreadable, err, map[string]any{"source": ref.String()})
	}
	defer body.Close()

	return loader.LoadPackage(ctx, body, info.Name+"@"+info.Version, opts...)
}

func (g *globals) renderer() *render.Renderer {
	return render.New(render.ParseFormat(g.app.Output), !g.noColor)
}

// logStats logs a summary of the queries served.
func (g *globals) logStats() {
	snap := g.metrics.Snapshot()
	g.log.Info("Served %d queries (%d failed), avg %s, max %s",
		snap.QueriesTotal, snap.QueriesFailed,
		time.Duration(snap.AvgQueryTimeNs), time.Duration(snap.MaxQueryTimeNs))
	for _, op := range snap.Operations {
		g.log.Debug("  %s: %d calls, %d failed, avg %s", op.Name, op.Invocations, op.Failures, op.AvgTime)
	}
}

// emit writes a query result, or the rendered query error to stderr.
func (g *globals) emit(cmd *cobra.Command, idx *index.Index, qerr error, fn func(*render.Renderer) (string, error)) error {
	r := g.renderer()

	if qerr != nil {
		var available []string
		if errors.Is(qerr, issue.ErrNotFound) {
			available = idx.ListResources()
		}
		out, err := r.Error(qerr, available)
		if err != nil {
			return exitError(qerr, false)
		}
		fmt.Fprintln(cmd.ErrOrStderr(), out)
		return exitError(qerr, true)
	}

	out, err := fn(r)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
