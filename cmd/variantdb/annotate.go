package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hgvslab/variantdb/internal/annotate"
	"github.com/hgvslab/variantdb/internal/clinvar"
	"github.com/hgvslab/variantdb/internal/config"
	"github.com/hgvslab/variantdb/internal/dataset"
	"github.com/hgvslab/variantdb/internal/normalize"
	"github.com/hgvslab/variantdb/internal/tabular"
	"github.com/hgvslab/variantdb/internal/vcf"
)

func newAnnotateCmd() *cobra.Command {
	var (
		datasetName string
		patientID   string
		inputFormat string
	)

	cmd := &cobra.Command{
		Use:   "annotate --dataset <name> <input-file>...",
		Short: "Annotate variant files into a dataset",
		Long: `Parse VCF or tabular variant files, normalize each variant to HGVS via
VariantValidator, annotate it from the local ClinVar store and append the
result to the dataset. Variants already in the dataset are reused without a
service call.`,
		Example: `  variantdb annotate --dataset cohort1 --patient P001 patient1.vcf
  variantdb annotate --dataset cohort1 variants.tsv
  variantdb annotate --dataset cohort1 p1.vcf.gz p2.vcf.gz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd, args, datasetName, patientID, inputFormat)
		},
	}

	cmd.Flags().StringVarP(&datasetName, "dataset", "d", "", "target dataset name (required)")
	cmd.Flags().StringVarP(&patientID, "patient", "p", "", "patient identifier for all records (default: file name stem)")
	cmd.Flags().StringVar(&inputFormat, "input-format", "", "input format: vcf, tabular (auto-detected if not specified)")
	cmd.MarkFlagRequired("dataset")

	return cmd
}

func runAnnotate(cmd *cobra.Command, files []string, datasetName, patientID, inputFormat string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	parser, err := openParsers(files, patientID, inputFormat)
	if err != nil {
		return err
	}
	defer parser.Close()

	store, err := clinvar.Open(cfg.ClinVarDBPath())
	if err != nil {
		return fmt.Errorf("opening ClinVar store: %w", err)
	}
	defer store.Close()
	store.SetLogger(logger)
	if store.Count() == 0 {
		return fmt.Errorf("ClinVar store is empty; run 'variantdb refresh' first")
	}

	manager, err := dataset.NewManager(cfg.DatasetsDir())
	if err != nil {
		return err
	}
	defer manager.Close()
	manager.SetLogger(logger)

	ds, err := manager.CreateOrOpen(cmd.Context(), datasetName)
	if err != nil {
		return err
	}

	client := normalize.NewClient(normalize.Options{
		BaseURL:        cfg.VariantValidatorURL,
		Timeout:        cfg.RequestTimeout,
		MaxRetries:     cfg.MaxRetries,
		RequestsPerSec: cfg.RateLimit,
	})
	client.SetLogger(logger)

	orch := annotate.NewOrchestrator(client, store)
	orch.SetLogger(logger)

	summary, err := orch.AnnotateBatch(cmd.Context(), parser, ds)
	printSummary(cmd, summary)
	if err != nil {
		return fmt.Errorf("annotation stopped: %w", err)
	}
	if summary.Aborted {
		return fmt.Errorf("normalization service unavailable; remaining records were not attempted")
	}
	return nil
}

// openParsers builds one logical parser over all input files. Each file is
// tagged with its own patient identifier: the --patient flag if given,
// otherwise the file name stem. A tabular patient column still overrides it
// per record.
func openParsers(files []string, patientID, format string) (vcf.VariantParser, error) {
	parsers := make([]vcf.VariantParser, 0, len(files))
	for _, f := range files {
		p, err := openParser(f, patientFor(f, patientID), format)
		if err != nil {
			for _, prev := range parsers {
				prev.Close()
			}
			return nil, err
		}
		parsers = append(parsers, p)
	}
	if len(parsers) == 1 {
		return parsers[0], nil
	}
	return vcf.NewMultiParser(parsers...), nil
}

func openParser(file, patientID, format string) (vcf.VariantParser, error) {
	if format == "" {
		format = detectFormat(file)
	}
	switch format {
	case "vcf":
		return vcf.NewParser(file, patientID)
	case "tabular":
		return tabular.NewParser(file, patientID)
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}
}

// patientFor resolves the patient identifier for records from file. Without
// an explicit override the file name stem is used, so each uploaded file maps
// to its own patient.
func patientFor(file, patientID string) string {
	if patientID != "" {
		return patientID
	}
	name := strings.TrimSuffix(filepath.Base(file), ".gz")
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func detectFormat(file string) string {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(file), ".gz"))
	if strings.HasSuffix(name, ".vcf") {
		return "vcf"
	}
	return "tabular"
}

func printSummary(cmd *cobra.Command, s *annotate.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored: %d  Reused: %d  Skipped: %d  Failed: %d\n",
		s.Stored, s.Reused, s.Skipped, s.Failed)
	for _, r := range s.Results {
		switch r.Outcome {
		case annotate.OutcomeSkipped:
			fmt.Fprintf(cmd.OutOrStdout(), "  skipped %s (%s): %s\n", r.RawKey, r.PatientID, r.Reason)
		case annotate.OutcomeFailed:
			fmt.Fprintf(cmd.ErrOrStderr(), "  failed %s (%s): %v\n", r.RawKey, r.PatientID, r.Err)
		}
	}
}
