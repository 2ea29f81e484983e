// Package query serves search, filter, sort and export over annotated
// datasets. Searches hit the store; filtering and sorting operate on the
// row set already in hand, so refinements never re-query.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hgvslab/variantdb/internal/dataset"
)

// ErrCriterion is returned when a search does not carry exactly one
// criterion.
var ErrCriterion = errors.New("search requires exactly one criterion")

// Criterion is a single-field search. Exactly one of Patient, Variant or
// Gene must be set.
type Criterion struct {
	Patient       string
	PatientPrefix bool // match Patient as a prefix instead of exactly
	Variant       string
	Gene          string
}

func (c Criterion) validate() error {
	set := 0
	for _, v := range []string{c.Patient, c.Variant, c.Gene} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return ErrCriterion
	}
	return nil
}

// ResultSet is a search result: the matching rows in insertion order, plus
// the number of distinct patients among them.
type ResultSet struct {
	Rows         []dataset.AnnotatedVariant
	PatientCount int
}

// Search runs a single-criterion search against a dataset. The criterion is
// validated before the store is touched.
func Search(ctx context.Context, ds *dataset.Dataset, c Criterion) (*ResultSet, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	var (
		rows []dataset.AnnotatedVariant
		err  error
	)
	switch {
	case c.Patient != "":
		rows, err = ds.SearchByPatient(ctx, c.Patient, c.PatientPrefix)
	case c.Variant != "":
		rows, err = searchVariant(ctx, ds, c.Variant)
	case c.Gene != "":
		rows, err = searchGene(ctx, ds, c.Gene)
	}
	if err != nil {
		return nil, err
	}

	return &ResultSet{Rows: rows, PatientCount: distinctPatients(rows)}, nil
}

// searchVariant matches a variant description against the stored genomic,
// transcript and protein forms. A "GENE:change" qualified form restricts a
// coding change to one gene's transcripts.
func searchVariant(ctx context.Context, ds *dataset.Dataset, variant string) ([]dataset.AnnotatedVariant, error) {
	gene, change, qualified := splitQualified(variant)
	if !qualified {
		return ds.SearchByVariant(ctx, variant)
	}

	rows, err := geneRows(ctx, ds, gene)
	if err != nil {
		return nil, err
	}
	suffix := ":" + change
	var matched []dataset.AnnotatedVariant
	for _, r := range rows {
		if strings.HasSuffix(r.VariantNM, suffix) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// splitQualified recognizes the "GENE:c.change" search form. Accessioned
// descriptions (NC_/NM_/NP_) are never treated as qualified.
func splitQualified(variant string) (gene, change string, ok bool) {
	for _, prefix := range []string{"NC_", "NM_", "NP_"} {
		if strings.HasPrefix(variant, prefix) {
			return "", "", false
		}
	}
	i := strings.IndexByte(variant, ':')
	if i <= 0 || i == len(variant)-1 {
		return "", "", false
	}
	return variant[:i], variant[i+1:], true
}

// searchGene resolves the symbol to its HGNC identifier first, so variants
// annotated under an older symbol for the same gene stay grouped.
func searchGene(ctx context.Context, ds *dataset.Dataset, gene string) ([]dataset.AnnotatedVariant, error) {
	return geneRows(ctx, ds, gene)
}

func geneRows(ctx context.Context, ds *dataset.Dataset, gene string) ([]dataset.AnnotatedVariant, error) {
	id, found, err := ds.HGNCIDForGene(ctx, gene)
	if err != nil {
		return nil, err
	}
	if found && id != "" {
		return ds.SearchByGeneID(ctx, id)
	}
	return ds.SearchByGene(ctx, gene)
}

func distinctPatients(rows []dataset.AnnotatedVariant) int {
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		seen[r.PatientID] = struct{}{}
	}
	return len(seen)
}

// Columns are the displayable columns, in display order.
var Columns = []string{
	"patient_ID", "variant_NC", "variant_NM", "variant_NP", "gene",
	"HGNC_ID", "Classification", "Conditions", "Stars", "Review_status",
}

func fieldValue(r *dataset.AnnotatedVariant, column string) (string, error) {
	switch column {
	case "patient_ID":
		return r.PatientID, nil
	case "variant_NC":
		return r.VariantNC, nil
	case "variant_NM":
		return r.VariantNM, nil
	case "variant_NP":
		return r.VariantNP, nil
	case "gene":
		return r.Gene, nil
	case "HGNC_ID":
		return r.HGNCID, nil
	case "Classification":
		return r.Classification, nil
	case "Conditions":
		return r.Conditions, nil
	case "Stars":
		return strconv.Itoa(r.Stars), nil
	case "Review_status":
		return r.ReviewStatus, nil
	default:
		return "", fmt.Errorf("unknown column %q", column)
	}
}

// Filter returns the rows whose column equals value, preserving order.
func Filter(rows []dataset.AnnotatedVariant, column, value string) ([]dataset.AnnotatedVariant, error) {
	var out []dataset.AnnotatedVariant
	for i := range rows {
		v, err := fieldValue(&rows[i], column)
		if err != nil {
			return nil, err
		}
		if v == value {
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// AvailableValues returns the distinct values of a column across the rows,
// sorted. A blank value counts as a value of its own, so rows with e.g. no
// protein consequence can still be filtered out. No column chosen means no
// values to offer.
func AvailableValues(rows []dataset.AnnotatedVariant, column string) ([]string, error) {
	if column == "" {
		return nil, nil
	}
	seen := make(map[string]struct{})
	for i := range rows {
		v, err := fieldValue(&rows[i], column)
		if err != nil {
			return nil, err
		}
		seen[v] = struct{}{}
	}
	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// numericColumns compare by value rather than lexicographically.
var numericColumns = map[string]bool{"Stars": true, "HGNC_ID": true}

// Sort orders the rows by a column, stable so equal keys keep their current
// relative order. Refining an already sorted or filtered set therefore
// preserves earlier work.
func Sort(rows []dataset.AnnotatedVariant, column string, ascending bool) error {
	if _, err := fieldValue(&dataset.AnnotatedVariant{}, column); err != nil {
		return err
	}

	numeric := numericColumns[column]
	less := func(a, b *dataset.AnnotatedVariant) bool {
		av, _ := fieldValue(a, column)
		bv, _ := fieldValue(b, column)
		if numeric {
			ai, aerr := strconv.Atoi(av)
			bi, berr := strconv.Atoi(bv)
			if aerr == nil && berr == nil {
				return ai < bi
			}
		}
		return av < bv
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if ascending {
			return less(&rows[i], &rows[j])
		}
		return less(&rows[j], &rows[i])
	})
	return nil
}
