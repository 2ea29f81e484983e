package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/config"
	"github.com/hgvslab/variantdb/internal/dataset"
)

func newImportCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <store-file>",
		Short: "Import an existing dataset store file",
		Long: `Import a dataset store produced elsewhere. The store's tables are
validated against the expected schema before it becomes visible; a store
with missing or unexpected columns is rejected and nothing is imported.`,
		Example: `  variantdb import cohort2.db
  variantdb import --name renamed cohort2.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], name)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "dataset name (default: the file name)")

	return cmd
}

func runImport(cmd *cobra.Command, file, name string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading store file: %w", err)
	}

	manager, err := dataset.NewManager(cfg.DatasetsDir())
	if err != nil {
		return err
	}
	defer manager.Close()

	ds, err := manager.LoadExternal(cmd.Context(), name, data)
	if err != nil {
		return fmt.Errorf("importing %s: %w", file, err)
	}

	rows, err := ds.ListAll(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Imported dataset %q with %d row(s)\n", name, len(rows))
	return nil
}
