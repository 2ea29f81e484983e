package annotate

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgvslab/variantdb/internal/clinvar"
	"github.com/hgvslab/variantdb/internal/dataset"
	"github.com/hgvslab/variantdb/internal/normalize"
	"github.com/hgvslab/variantdb/internal/vcf"
)

// fakeNormalizer serves canned normalizations keyed by raw variant key and
// counts every call, so tests can assert the dedup paths stay off the wire.
type fakeNormalizer struct {
	results map[string]*normalize.NormalizedVariant
	errs    map[string]error
	calls   int
}

func (f *fakeNormalizer) Normalize(ctx context.Context, v *vcf.RawVariant) (*normalize.NormalizedVariant, error) {
	f.calls++
	if err, ok := f.errs[v.Key()]; ok {
		return nil, err
	}
	if n, ok := f.results[v.Key()]; ok {
		return n, nil
	}
	return nil, &normalize.NotFoundError{Variant: v.Key(), Reason: "unknown variant"}
}

type fakeRef map[string]*clinvar.ReferenceAnnotation

func (f fakeRef) Lookup(nm string) (*clinvar.ReferenceAnnotation, bool) {
	a, ok := f[nm]
	return a, ok
}

// sliceParser feeds a fixed set of records.
type sliceParser struct {
	variants []*vcf.RawVariant
	err      error
	pos      int
}

func (p *sliceParser) Next() (*vcf.RawVariant, error) {
	if p.pos >= len(p.variants) {
		if p.err != nil {
			return nil, p.err
		}
		return nil, nil
	}
	v := p.variants[p.pos]
	p.pos++
	return v, nil
}

func (p *sliceParser) Close() error    { return nil }
func (p *sliceParser) LineNumber() int { return p.pos }

func rawVariant(patient, chrom string, pos int64, ref, alt string) *vcf.RawVariant {
	return &vcf.RawVariant{PatientID: patient, Chrom: chrom, Pos: pos, Ref: ref, Alt: alt}
}

func thNormalized() *normalize.NormalizedVariant {
	return &normalize.NormalizedVariant{
		GenomicHGVS: "NC_000011.10:g.2165787C>T",
		Transcripts: []normalize.Transcript{
			{HGVS: "NM_000360.4:c.1442G>A", ProteinHGVS: "NP_000351.2:p.(Gly481Asp)"},
		},
		GeneSymbol: "TH",
		HGNCID:     "11782",
	}
}

func thReference() *clinvar.ReferenceAnnotation {
	return &clinvar.ReferenceAnnotation{
		NCAccession:    "NC_000011.10",
		NMHGVS:         "NM_000360.4:c.1442G>A",
		Classification: "Pathogenic",
		Conditions:     []string{"Segawa syndrome, autosomal recessive"},
		Stars:          2,
		ReviewStatus:   "criteria provided, multiple submitters, no conflicts",
	}
}

func newTestDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	m, err := dataset.NewManager(filepath.Join(t.TempDir(), "datasets"))
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	d, err := m.CreateOrOpen(context.Background(), "cohort")
	require.NoError(t, err)
	return d
}

func TestAnnotateBatchStores(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	norm := &fakeNormalizer{results: map[string]*normalize.NormalizedVariant{
		"11-2165787-C-T": thNormalized(),
	}}
	ref := fakeRef{"NM_000360.4:c.1442G>A": thReference()}

	o := NewOrchestrator(norm, ref)
	summary, err := o.AnnotateBatch(ctx, &sliceParser{variants: []*vcf.RawVariant{
		rawVariant("P001", "11", 2165787, "C", "T"),
	}}, ds)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, norm.calls)

	rows, err := ds.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "P001", rows[0].PatientID)
	assert.Equal(t, "NM_000360.4:c.1442G>A", rows[0].VariantNM)
	assert.Equal(t, "NC_000011.10:g.2165787C>T", rows[0].VariantNC)
	assert.Equal(t, "Pathogenic", rows[0].Classification)
	assert.Equal(t, 2, rows[0].Stars)
}

func TestAnnotateBatchIdempotent(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	norm := &fakeNormalizer{results: map[string]*normalize.NormalizedVariant{
		"11-2165787-C-T": thNormalized(),
	}}
	ref := fakeRef{"NM_000360.4:c.1442G>A": thReference()}
	o := NewOrchestrator(norm, ref)

	variants := func() *sliceParser {
		return &sliceParser{variants: []*vcf.RawVariant{
			rawVariant("P001", "11", 2165787, "C", "T"),
		}}
	}

	summary, err := o.AnnotateBatch(ctx, variants(), ds)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stored)

	// Second run of the same file: duplicate, and no service call.
	summary, err = o.AnnotateBatch(ctx, variants(), ds)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Stored)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, ReasonDuplicate, summary.Results[0].Reason)
	assert.Equal(t, 1, norm.calls)

	rows, err := ds.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAnnotateBatchReusesAcrossPatients(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	norm := &fakeNormalizer{results: map[string]*normalize.NormalizedVariant{
		"11-2165787-C-T": thNormalized(),
	}}
	ref := fakeRef{"NM_000360.4:c.1442G>A": thReference()}
	o := NewOrchestrator(norm, ref)

	summary, err := o.AnnotateBatch(ctx, &sliceParser{variants: []*vcf.RawVariant{
		rawVariant("P001", "11", 2165787, "C", "T"),
		rawVariant("P002", "11", 2165787, "C", "T"),
	}}, ds)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, summary.Reused)
	// The second patient's copy came from the dataset, not the service.
	assert.Equal(t, 1, norm.calls)

	rows, err := ds.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, rows[0].VariantNM, rows[1].VariantNM)
	assert.Equal(t, rows[0].Classification, rows[1].Classification)
}

func TestAnnotateBatchSkipReasons(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	// One variant normalizes but has no reference entry; one does not
	// normalize at all.
	norm := &fakeNormalizer{results: map[string]*normalize.NormalizedVariant{
		"11-2165787-C-T": thNormalized(),
	}}
	o := NewOrchestrator(norm, fakeRef{})

	summary, err := o.AnnotateBatch(ctx, &sliceParser{variants: []*vcf.RawVariant{
		rawVariant("P001", "11", 2165787, "C", "T"),
		rawVariant("P001", "1", 12345, "A", "G"),
	}}, ds)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, ReasonNoAnnotation, summary.Results[0].Reason)
	assert.Equal(t, ReasonNotNormalizable, summary.Results[1].Reason)

	// No orphan rows: nothing was persisted for either record.
	rows, err := ds.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAnnotateBatchTransientFailureContinues(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	norm := &fakeNormalizer{
		results: map[string]*normalize.NormalizedVariant{
			"11-2165787-C-T": thNormalized(),
		},
		errs: map[string]error{
			"1-12345-A-G": &normalize.ServiceError{Variant: "1-12345-A-G", Err: errors.New("http 500")},
		},
	}
	ref := fakeRef{"NM_000360.4:c.1442G>A": thReference()}
	o := NewOrchestrator(norm, ref)

	summary, err := o.AnnotateBatch(ctx, &sliceParser{variants: []*vcf.RawVariant{
		rawVariant("P001", "1", 12345, "A", "G"),
		rawVariant("P001", "11", 2165787, "C", "T"),
	}}, ds)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Stored)
	assert.False(t, summary.Aborted)
}

func TestAnnotateBatchAbortsWhenServiceUnavailable(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	norm := &fakeNormalizer{
		results: map[string]*normalize.NormalizedVariant{
			"11-2165787-C-T": thNormalized(),
		},
		errs: map[string]error{
			"1-12345-A-G": &normalize.ServiceError{
				Variant:     "1-12345-A-G",
				Unavailable: true,
				Err:         errors.New("circuit open"),
			},
		},
	}
	ref := fakeRef{"NM_000360.4:c.1442G>A": thReference()}
	o := NewOrchestrator(norm, ref)

	summary, err := o.AnnotateBatch(ctx, &sliceParser{variants: []*vcf.RawVariant{
		rawVariant("P001", "11", 2165787, "C", "T"),
		rawVariant("P001", "1", 12345, "A", "G"),
		rawVariant("P002", "11", 2165787, "C", "T"),
	}}, ds)
	require.NoError(t, err)

	assert.True(t, summary.Aborted)
	assert.Equal(t, 1, summary.Stored)
	assert.Equal(t, 1, summary.Failed)
	// The third record was never attempted, but the first stays persisted.
	assert.Len(t, summary.Results, 2)
	rows, err := ds.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAnnotateBatchStopsOnParseError(t *testing.T) {
	ctx := context.Background()
	ds := newTestDataset(t)

	parseErr := &vcf.MalformedInputError{File: "bad.vcf", Line: 3, Field: "POS", Message: "not a number"}
	norm := &fakeNormalizer{results: map[string]*normalize.NormalizedVariant{
		"11-2165787-C-T": thNormalized(),
	}}
	ref := fakeRef{"NM_000360.4:c.1442G>A": thReference()}
	o := NewOrchestrator(norm, ref)

	summary, err := o.AnnotateBatch(ctx, &sliceParser{
		variants: []*vcf.RawVariant{rawVariant("P001", "11", 2165787, "C", "T")},
		err:      parseErr,
	}, ds)

	var malformed *vcf.MalformedInputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, 3, malformed.Line)
	// Records before the malformed line stay persisted.
	assert.Equal(t, 1, summary.Stored)
}
