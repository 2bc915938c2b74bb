// Command editor runs the Swarm product metadata editor service and exposes
// the catalog and exporter for offline use.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/swarm-handbook/editor/internal/catalog"
	"github.com/swarm-handbook/editor/internal/config"
	"github.com/swarm-handbook/editor/internal/dashboard"
	"github.com/swarm-handbook/editor/internal/observability"
	"github.com/swarm-handbook/editor/internal/schema"
	"github.com/swarm-handbook/editor/model"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

const serviceName = "swarm-handbook-editor"

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	configPath string
	catalogDir string
	schemaPath string
	logLevel   string
}

func main() {
	root := newRootCmd()
	root.SilenceUsage = true
	root.SilenceErrors = true

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root Cobra command.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "editor",
		Short: "Swarm product metadata editor",
		Long: strings.TrimSpace(`
Edit, preview, and export the product records of the Swarm data handbook.

"serve" runs the editor service. The other commands work on the catalog
directory and on local product files without starting a server.`),
		Version: version,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the configuration file (default: built-in defaults)")
	cmd.PersistentFlags().StringVar(&flags.catalogDir, "catalog", "", "Catalog directory (overrides the configuration)")
	cmd.PersistentFlags().StringVar(&flags.schemaPath, "schema", "", "JSON Schema document used for hints (overrides the configuration)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newCatalogCmd(flags))
	cmd.AddCommand(newExportCmd(flags))
	cmd.AddCommand(newPreviewCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newVersionCmd prints version info.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "editor %s (%s)\n", version, commit)
		},
	}
}

// loadConfig reads the configuration file, or the defaults when none is
// given, then applies flag overrides.
func (f *rootFlags) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.configPath == "" {
		cfg, err = config.LoadDefaults()
	} else {
		cfg, err = config.Load(f.configPath)
	}
	if err != nil {
		return nil, err
	}

	if f.catalogDir != "" {
		cfg.Catalog.Directory = f.catalogDir
	}
	if f.schemaPath != "" {
		cfg.Schema.Path = f.schemaPath
	}
	if f.logLevel != "" {
		cfg.Observability.LogLevel = f.logLevel
	}
	return cfg, nil
}

// toolkit holds what the offline commands share. The catalog is read on
// first use.
type toolkit struct {
	cfg     *config.Config
	logger  *zap.Logger
	schema  *schema.Schema
	catalog *catalog.Catalog
}

// newToolkit loads the configuration and schema. Logs go to stderr at warn
// level unless --log-level is given, so they never mix with command output.
func (f *rootFlags) newToolkit() (*toolkit, error) {
	cfg, err := f.loadConfig()
	if err != nil {
		return nil, err
	}

	obs := cfg.Observability
	obs.LogOutput = "stderr"
	if f.logLevel == "" {
		obs.LogLevel = "warn"
	}
	logger, err := observability.NewLogger(obs)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	t := &toolkit{cfg: cfg, logger: logger}
	if cfg.Schema.Path != "" {
		if t.schema, err = schema.Load(cfg.Schema.Path); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *toolkit) loadCatalog() (*catalog.Catalog, error) {
	if t.catalog != nil {
		return t.catalog, nil
	}
	records, skipped, err := catalog.NewLoader(t.logger).LoadDir(t.cfg.Catalog.Directory)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("catalog loaded",
		zap.String("directory", t.cfg.Catalog.Directory),
		zap.Int("records", len(records)),
		zap.Int("skipped", skipped),
	)
	t.catalog = catalog.New(records)
	return t.catalog, nil
}

func (t *toolkit) options() dashboard.Options {
	opts := dashboard.Options{
		Enumerations:     t.cfg.Enums(),
		DefaultProductID: t.cfg.Catalog.DefaultProductID,
		Logger:           t.logger,
	}
	if t.catalog != nil {
		opts.Catalog = t.catalog
	}
	if t.schema != nil {
		opts.Schema = t.schema
	}
	return opts
}

// open returns a controller holding the product named by ref: a path to a
// product file, or else a catalog product id. Loading refreshes the product
// the same way the editor does.
func (t *toolkit) open(ctx context.Context, ref string) (*dashboard.Controller, error) {
	if info, err := os.Stat(ref); err == nil && !info.IsDir() {
		doc, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", ref, err)
		}
		c := dashboard.FromSnapshot(ctx, t.options(), dashboard.Snapshot{})
		if err := c.LoadFromUpload(ctx, doc); err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		return c, nil
	}

	if _, err := t.loadCatalog(); err != nil {
		return nil, err
	}
	c := dashboard.FromSnapshot(ctx, t.options(), dashboard.Snapshot{})
	if !c.LoadFromCatalog(ctx, ref) {
		return nil, model.NewNotFoundError(fmt.Sprintf("%q is neither a file nor a catalog product", ref))
	}
	return c, nil
}
