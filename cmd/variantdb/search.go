package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/query"
)

func newSearchCmd() *cobra.Command {
	var (
		datasetName string
		patient     string
		prefix      bool
		variant     string
		gene        string
		filters     []string
		sortCol     string
		descending  bool
	)

	cmd := &cobra.Command{
		Use:   "search --dataset <name> (--patient <id> | --variant <hgvs> | --gene <symbol>)",
		Short: "Search a dataset by patient, variant or gene",
		Long: `Search an annotated dataset with exactly one criterion. Variants match any
stored description form (genomic, transcript or protein) or the qualified
GENE:change form; gene searches resolve through the HGNC identifier so
renamed symbols stay grouped.`,
		Example: `  variantdb search --dataset cohort1 --patient P001
  variantdb search --dataset cohort1 --patient P0 --prefix
  variantdb search --dataset cohort1 --variant "NM_000360.4:c.1442G>A"
  variantdb search --dataset cohort1 --variant "TH:c.1442G>A"
  variantdb search --dataset cohort1 --gene GAA --sort Stars --desc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			criterion := query.Criterion{
				Patient:       patient,
				PatientPrefix: prefix,
				Variant:       variant,
				Gene:          gene,
			}
			return runSearch(cmd, datasetName, criterion, filters, sortCol, descending)
		},
	}

	cmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "dataset to search (required)")
	cmd.Flags().StringVarP(&patient, "patient", "p", "", "patient identifier")
	cmd.Flags().BoolVar(&prefix, "prefix", false, "match the patient identifier as a prefix")
	cmd.Flags().StringVar(&variant, "variant", "", "variant description")
	cmd.Flags().StringVarP(&gene, "gene", "g", "", "gene symbol")
	addRefineFlags(cmd.Flags(), &filters, &sortCol, &descending)
	cmd.MarkFlagRequired("dataset")

	return cmd
}

func runSearch(cmd *cobra.Command, datasetName string, c query.Criterion, filters []string, sortCol string, descending bool) error {
	manager, ds, err := openExistingDataset(cmd.Context(), datasetName)
	if err != nil {
		return err
	}
	defer manager.Close()

	rs, err := query.Search(cmd.Context(), ds, c)
	if err != nil {
		return err
	}

	rows, err := refine(rs.Rows, filters, sortCol, descending)
	if err != nil {
		return err
	}

	if err := printRows(cmd.OutOrStdout(), rows); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d row(s), %d patient(s)\n", len(rows), rs.PatientCount)
	return nil
}
