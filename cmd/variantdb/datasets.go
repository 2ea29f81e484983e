package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/config"
	"github.com/hgvslab/variantdb/internal/dataset"
)

func newDatasetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "datasets",
		Short:   "List the available datasets",
		Example: `  variantdb datasets`,
		Args:    cobra.NoArgs,
		RunE:    runDatasets,
	}
}

func runDatasets(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	manager, err := dataset.NewManager(cfg.DatasetsDir())
	if err != nil {
		return err
	}
	defer manager.Close()

	names, err := manager.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No datasets. Create one with 'variantdb annotate --dataset <name> <file>'.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "name\trows\tpatients")
	for _, name := range names {
		ds, err := manager.CreateOrOpen(cmd.Context(), name)
		if err != nil {
			return err
		}
		rows, err := ds.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		patients, err := ds.PatientCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\n", name, len(rows), patients)
	}
	return tw.Flush()
}
