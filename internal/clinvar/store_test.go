package clinvar

import (
	"bytes"
	"compress/gzip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryHeader = "#AlleleID\tType\tName\tGeneID\tGeneSymbol\tClinicalSignificance\tChromosomeAccession\tPhenotypeList\tReviewStatus\tAssembly\n"

func summaryRow(name, significance, accession, phenotypes, review, assembly string) string {
	return strings.Join([]string{
		"12345", "single nucleotide variant", name, "7054", "TH",
		significance, accession, phenotypes, review, assembly,
	}, "\t") + "\n"
}

func testSummary() string {
	var b strings.Builder
	b.WriteString(summaryHeader)
	b.WriteString(summaryRow(
		"NM_000360.4(TH):c.1442G>A (p.Gly481Asp)",
		"Pathogenic", "NC_000011.10",
		"Segawa syndrome, autosomal recessive|not provided",
		"criteria provided, multiple submitters, no conflicts", "GRCh38"))
	b.WriteString(summaryRow(
		"NM_000360.4(TH):c.1442G>A (p.Gly481Asp)",
		"Pathogenic", "NC_000011.9",
		"Segawa syndrome, autosomal recessive",
		"criteria provided, multiple submitters, no conflicts", "GRCh37"))
	b.WriteString(summaryRow(
		"NM_000152.5(GAA):c.-32-13T>G",
		"Pathogenic", "NC_000017.11",
		"Glycogen storage disease, type II",
		"reviewed by expert panel", "GRCh38"))
	b.WriteString(summaryRow(
		"NC_000011.10:g.2165787C>T",
		"Uncertain significance", "NC_000011.10",
		"not provided",
		"criteria provided, single submitter", "GRCh38"))
	return b.String()
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "clinvar.duckdb"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBulkLoad(t *testing.T) {
	s := openTestStore(t)

	loadedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n, err := s.BulkLoad(strings.NewReader(testSummary()), loadedAt)
	require.NoError(t, err)

	// GRCh37 duplicate and the genomic-only name are filtered out.
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Count())
	assert.Equal(t, loadedAt, s.LastUpdated())

	a, ok := s.Lookup("NM_000360.4:c.1442G>A")
	require.True(t, ok)
	assert.Equal(t, "NC_000011.10", a.NCAccession)
	assert.Equal(t, "Pathogenic", a.Classification)
	assert.Equal(t, []string{"Segawa syndrome, autosomal recessive"}, a.Conditions)
	assert.Equal(t, 2, a.Stars)
	assert.Equal(t, "criteria provided, multiple submitters, no conflicts", a.ReviewStatus)

	a, ok = s.Lookup("NM_000152.5:c.-32-13T>G")
	require.True(t, ok)
	assert.Equal(t, 3, a.Stars)

	_, ok = s.Lookup("NC_000011.10:g.2165787C>T")
	assert.False(t, ok)
	_, ok = s.Lookup("NM_999999.1:c.1A>G")
	assert.False(t, ok)
}

func TestBulkLoadGzip(t *testing.T) {
	s := openTestStore(t)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(testSummary()))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	n, err := s.BulkLoad(&buf, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBulkLoadReplacesPreviousGeneration(t *testing.T) {
	s := openTestStore(t)

	_, err := s.BulkLoad(strings.NewReader(testSummary()), time.Now())
	require.NoError(t, err)

	second := summaryHeader + summaryRow(
		"NM_001110792.2(MECP2):c.538C>T (p.Arg180Ter)",
		"Pathogenic", "NC_000023.11",
		"Rett syndrome",
		"practice guideline", "GRCh38")
	n, err := s.BulkLoad(strings.NewReader(second), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.Count())

	_, ok := s.Lookup("NM_000360.4:c.1442G>A")
	assert.False(t, ok)
	a, ok := s.Lookup("NM_001110792.2:c.538C>T")
	require.True(t, ok)
	assert.Equal(t, 4, a.Stars)
}

func TestSnapshotRestoredOnReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinvar.duckdb")
	loadedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.BulkLoad(strings.NewReader(testSummary()), loadedAt)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, loadedAt, s.LastUpdated())
	a, ok := s.Lookup("NM_000360.4:c.1442G>A")
	require.True(t, ok)
	assert.Equal(t, []string{"Segawa syndrome, autosomal recessive"}, a.Conditions)
}

func TestBulkLoadMissingColumn(t *testing.T) {
	s := openTestStore(t)

	header := "#AlleleID\tName\tClinicalSignificance\n"
	_, err := s.BulkLoad(strings.NewReader(header), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Assembly")
}

func TestBulkLoadEmptyFile(t *testing.T) {
	s := openTestStore(t)

	_, err := s.BulkLoad(strings.NewReader(""), time.Now())
	require.Error(t, err)
}
