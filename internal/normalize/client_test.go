package normalize

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hgvslab/variantdb/internal/vcf"
)

const thResponse = `{
	"flag": "gene_variant",
	"NM_000360.4:c.1442G>A": {
		"gene_symbol": "TH",
		"gene_ids": {"hgnc_id": "HGNC:11782"},
		"hgvs_predicted_protein_consequence": {"tlr": "NP_000351.2:p.(Gly481Asp)"},
		"primary_assembly_loci": {"grch38": {"hgvs_genomic_description": "NC_000011.10:g.2165787C>T"}}
	},
	"NM_199292.3:c.1355G>A": {
		"gene_symbol": "TH",
		"gene_ids": {"hgnc_id": "HGNC:11782"},
		"hgvs_predicted_protein_consequence": {"tlr": "NP_954986.2:p.(Gly452Asp)"},
		"primary_assembly_loci": {"grch38": {"hgvs_genomic_description": "NC_000011.10:g.2165787C>T"}}
	},
	"metadata": {"variantvalidator_version": "2.2.0"}
}`

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Options{
		BaseURL:        srv.URL,
		MaxRetries:     1,
		RequestsPerSec: 1000,
	})
	return c, &requests
}

func thVariant() *vcf.RawVariant {
	return &vcf.RawVariant{PatientID: "P001", Chrom: "11", Pos: 2165787, Ref: "C", Alt: "T"}
}

func TestNormalizeSuccess(t *testing.T) {
	c, requests := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/VariantValidator/variantvalidator/GRCh38/11-2165787-C-T/mane")
		fmt.Fprint(w, thResponse)
	})

	nv, err := c.Normalize(context.Background(), thVariant())
	require.NoError(t, err)

	assert.Equal(t, "NC_000011.10:g.2165787C>T", nv.GenomicHGVS)
	assert.Equal(t, "TH", nv.GeneSymbol)
	assert.Equal(t, "11782", nv.HGNCID)
	require.Len(t, nv.Transcripts, 2)
	// Transcript order follows the response document, not map ordering.
	assert.Equal(t, "NM_000360.4:c.1442G>A", nv.Transcripts[0].HGVS)
	assert.Equal(t, "NP_000351.2:p.(Gly481Asp)", nv.Transcripts[0].ProteinHGVS)
	assert.Equal(t, "NM_199292.3:c.1355G>A", nv.Transcripts[1].HGVS)
	assert.Equal(t, int32(1), *requests)
}

func TestNormalizeEmptyResult(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"flag": "empty_result"}`)
	})

	_, err := c.Normalize(context.Background(), thVariant())
	assert.True(t, IsNotFound(err), "expected not-found, got %v", err)
}

func TestNormalizeInvalidChromosomeSkipsService(t *testing.T) {
	c, requests := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, thResponse)
	})

	v := thVariant()
	v.Chrom = "ZZ"
	_, err := c.Normalize(context.Background(), v)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(0), *requests)
}

func TestNormalizeRejectionNotRetried(t *testing.T) {
	c, requests := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad variant description", http.StatusNotFound)
	})

	_, err := c.Normalize(context.Background(), thVariant())
	assert.True(t, IsNotFound(err))
	assert.Equal(t, int32(1), *requests)
}

func TestNormalizeRetriesAfterRateLimit(t *testing.T) {
	var seen int32
	c, requests := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&seen, 1) == 1 {
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, thResponse)
	})

	nv, err := c.Normalize(context.Background(), thVariant())
	require.NoError(t, err)
	assert.Equal(t, "NC_000011.10:g.2165787C>T", nv.GenomicHGVS)
	assert.Equal(t, int32(2), *requests)
}

func TestNormalizeExhaustsRetries(t *testing.T) {
	c, requests := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	_, err := c.Normalize(context.Background(), thVariant())
	var svcErr *ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.False(t, svcErr.Unavailable)
	assert.Equal(t, int32(2), *requests)
}

func TestNormalizeBreakerOpens(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	})

	// Each call burns two attempts; after five consecutive failures the
	// breaker opens and subsequent calls report unavailability.
	ctx := context.Background()
	var err error
	for i := 0; i < 4; i++ {
		_, err = c.Normalize(ctx, thVariant())
		require.Error(t, err)
		if IsUnavailable(err) {
			return
		}
	}
	t.Fatalf("breaker never opened, last error: %v", err)
}

func TestNormalizeIrregularOptionalFields(t *testing.T) {
	response := `{
		"NM_000360.4:c.1442G>A": {
			"gene_symbol": "MUCHTOOLONGSYMBOL",
			"gene_ids": {"hgnc_id": "HGNC:not-a-number"},
			"hgvs_predicted_protein_consequence": {"tlr": "garbage"},
			"primary_assembly_loci": {"grch38": {"hgvs_genomic_description": "NC_000011.10:g.2165787C>T"}}
		}
	}`
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, response)
	})

	nv, err := c.Normalize(context.Background(), thVariant())
	require.NoError(t, err)

	// Degraded optional fields get the placeholder; the descriptions that
	// anchor the annotation never do.
	assert.Equal(t, irregularResponse, nv.GeneSymbol)
	assert.Equal(t, irregularResponse, nv.HGNCID)
	assert.Equal(t, irregularResponse, nv.Transcripts[0].ProteinHGVS)
	assert.Equal(t, "NC_000011.10:g.2165787C>T", nv.GenomicHGVS)
}

func TestNormalizeBadGenomicDescription(t *testing.T) {
	response := `{
		"NM_000360.4:c.1442G>A": {
			"gene_symbol": "TH",
			"gene_ids": {"hgnc_id": "HGNC:11782"},
			"hgvs_predicted_protein_consequence": {"tlr": "NP_000351.2:p.(Gly481Asp)"},
			"primary_assembly_loci": {"grch38": {"hgvs_genomic_description": "chrom 11 somewhere"}}
		}
	}`
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, response)
	})

	_, err := c.Normalize(context.Background(), thVariant())
	assert.True(t, IsNotFound(err), "expected not-found, got %v", err)
}

func TestNormalizeSkipsNonTranscriptKeys(t *testing.T) {
	response := `{
		"flag": "gene_variant",
		"NM_bogus": {"gene_symbol": "TH"},
		"metadata": {}
	}`
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, response)
	})

	_, err := c.Normalize(context.Background(), thVariant())
	assert.True(t, IsNotFound(err), "expected not-found, got %v", err)
}
