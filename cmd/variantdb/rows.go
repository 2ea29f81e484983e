package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/hgvslab/variantdb/internal/config"
	"github.com/hgvslab/variantdb/internal/dataset"
	"github.com/hgvslab/variantdb/internal/query"
)

// openExistingDataset opens a dataset that must already exist. Query
// commands never create datasets as a side effect.
func openExistingDataset(ctx context.Context, name string) (*dataset.Manager, *dataset.Dataset, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	manager, err := dataset.NewManager(cfg.DatasetsDir())
	if err != nil {
		return nil, nil, err
	}

	names, err := manager.List()
	if err != nil {
		manager.Close()
		return nil, nil, err
	}
	found := false
	for _, n := range names {
		if n == name {
			found = true
			break
		}
	}
	if !found {
		manager.Close()
		return nil, nil, fmt.Errorf("no such dataset %q (datasets: %s)", name, strings.Join(names, ", "))
	}

	ds, err := manager.CreateOrOpen(ctx, name)
	if err != nil {
		manager.Close()
		return nil, nil, err
	}
	return manager, ds, nil
}

// refine applies --filter and --sort flags to a row set.
func refine(rows []dataset.AnnotatedVariant, filters []string, sortCol string, descending bool) ([]dataset.AnnotatedVariant, error) {
	for _, f := range filters {
		col, value, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("invalid filter %q, expected column=value", f)
		}
		var err error
		rows, err = query.Filter(rows, col, value)
		if err != nil {
			return nil, err
		}
	}
	if sortCol != "" {
		if err := query.Sort(rows, sortCol, !descending); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// printRows writes the rows as an aligned table with the display columns.
func printRows(w io.Writer, rows []dataset.AnnotatedVariant) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(query.Columns, "\t"))
	for i := range rows {
		r := &rows[i]
		fields := []string{
			r.PatientID, r.VariantNC, r.VariantNM, r.VariantNP, r.Gene,
			r.HGNCID, r.Classification, r.Conditions, strconv.Itoa(r.Stars),
			r.ReviewStatus,
		}
		fmt.Fprintln(tw, strings.Join(fields, "\t"))
	}

	return tw.Flush()
}

func addRefineFlags(flags *pflag.FlagSet, filters *[]string, sortCol *string, descending *bool) {
	flags.StringArrayVar(filters, "filter", nil, "restrict to rows where column=value (repeatable)")
	flags.StringVar(sortCol, "sort", "", "sort by column")
	flags.BoolVar(descending, "desc", false, "sort descending")
}
