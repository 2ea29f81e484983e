package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/query"
)

func newExportCmd() *cobra.Command {
	var (
		datasetName string
		outDir      string
		filters     []string
		sortCol     string
		descending  bool
	)

	cmd := &cobra.Command{
		Use:   "export --dataset <name>",
		Short: "Export a dataset to a CSV file",
		Long: `Write the dataset's annotated variants to <dataset>.csv in the output
directory. Existing exports are never overwritten; a numeric suffix is added
instead. Cell values that a spreadsheet would treat as formulas are escaped.`,
		Example: `  variantdb export --dataset cohort1
  variantdb export --dataset cohort1 --out /tmp --filter gene=TH`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, datasetName, outDir, filters, sortCol, descending)
		},
	}

	cmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "dataset to export (required)")
	cmd.Flags().StringVarP(&outDir, "out", "o", ".", "output directory")
	addRefineFlags(cmd.Flags(), &filters, &sortCol, &descending)
	cmd.MarkFlagRequired("dataset")

	return cmd
}

func runExport(cmd *cobra.Command, datasetName, outDir string, filters []string, sortCol string, descending bool) error {
	manager, ds, err := openExistingDataset(cmd.Context(), datasetName)
	if err != nil {
		return err
	}
	defer manager.Close()

	rows, err := ds.ListAll(cmd.Context())
	if err != nil {
		return err
	}
	rows, err = refine(rows, filters, sortCol, descending)
	if err != nil {
		return err
	}

	path, err := query.ExportFlat(rows, outDir, datasetName)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d row(s) to %s\n", len(rows), path)
	return nil
}
