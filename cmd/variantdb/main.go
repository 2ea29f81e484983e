// Package main provides the variantdb command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hgvslab/variantdb/internal/config"
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

var verbose bool

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:     "variantdb",
		Short:   "Annotate patient variants and query annotated datasets",
		Version: fmt.Sprintf("%s (%s) built %s", version, commit, date),
		Long: `variantdb normalizes patient variants to HGVS descriptions via
VariantValidator, annotates them from a local ClinVar reference store and
keeps each cohort in its own queryable dataset.`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(cfgFile)
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.variantdb.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(
		newAnnotateCmd(),
		newRefreshCmd(),
		newSearchCmd(),
		newListCmd(),
		newExportCmd(),
		newImportCmd(),
		newDatasetsCmd(),
		newConfigCmd(),
	)

	return cmd
}

// newLogger builds the CLI logger: warnings and errors by default, debug
// detail with --verbose.
func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Encoding = "console"
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return cfg.Build()
}
