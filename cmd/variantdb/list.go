package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/query"
)

func newListCmd() *cobra.Command {
	var (
		datasetName string
		filters     []string
		sortCol     string
		descending  bool
		showValues  string
	)

	cmd := &cobra.Command{
		Use:   "list --dataset <name>",
		Short: "List a dataset's annotated variants",
		Example: `  variantdb list --dataset cohort1
  variantdb list --dataset cohort1 --filter Classification=Pathogenic --sort Stars --desc
  variantdb list --dataset cohort1 --values gene`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd, datasetName, filters, sortCol, descending, showValues)
		},
	}

	cmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "dataset to list (required)")
	addRefineFlags(cmd.Flags(), &filters, &sortCol, &descending)
	cmd.Flags().StringVar(&showValues, "values", "", "print the distinct values of a column instead of rows")
	cmd.MarkFlagRequired("dataset")

	return cmd
}

func runList(cmd *cobra.Command, datasetName string, filters []string, sortCol string, descending bool, showValues string) error {
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

	if showValues != "" {
		values, err := query.AvailableValues(rows, showValues)
		if err != nil {
			return err
		}
		for _, v := range values {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	}

	return printRows(cmd.OutOrStdout(), rows)
}
