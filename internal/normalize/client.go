// Package normalize provides the client for the external variant-nomenclature
// validation service. A raw chromosome/position/ref/alt record goes in; the
// canonical HGVS descriptions, gene symbol and HGNC id come back.
package normalize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hgvslab/variantdb/internal/vcf"
)

// DefaultBaseURL is the public VariantValidator endpoint.
const DefaultBaseURL = "https://rest.variantvalidator.org"

// Placeholder stored when the service returns a malformed optional field.
// The transcript and genomic descriptions are never degraded this way; a bad
// NC_ or NM_ makes the whole variant unannotatable instead.
const irregularResponse = "Irregular response from VariantValidator"

// Normalizer is the capability the orchestrator depends on, so retry and
// timeout policy stays testable with a fake implementation.
type Normalizer interface {
	Normalize(ctx context.Context, v *vcf.RawVariant) (*NormalizedVariant, error)
}

// Options configures a Client.
type Options struct {
	BaseURL        string
	Timeout        time.Duration // per-call timeout
	MaxRetries     int           // retries on transient failures only
	RequestsPerSec float64       // client-side rate limit toward the service
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 4
	}
	if o.RequestsPerSec <= 0 {
		o.RequestsPerSec = 2
	}
	return o
}

// Client calls the VariantValidator REST API with a bounded timeout, a bounded
// retry budget with exponential backoff, a rate limiter, and a circuit breaker.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	maxRetries int
	logger     *zap.Logger
}

// NewClient creates a normalization client.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "variantvalidator",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1),
		breaker:    breaker,
		maxRetries: opts.MaxRetries,
		logger:     zap.NewNop(),
	}
}

// SetLogger sets the logger for warning and debug messages.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Normalize resolves a raw variant to its canonical HGVS descriptions.
// Returns *NotFoundError when the service rejects the variant itself and
// *ServiceError when the service cannot be reached within the retry budget.
func (c *Client) Normalize(ctx context.Context, v *vcf.RawVariant) (*NormalizedVariant, error) {
	chrom := v.NormalizeChrom()
	if !ValidChrom(chrom) {
		return nil, &NotFoundError{
			Variant: v.Key(),
			Reason:  fmt.Sprintf("chromosome %q is not in the GRCh38 reference set", v.Chrom),
		}
	}

	key := v.Key()
	url := fmt.Sprintf("%s/VariantValidator/variantvalidator/GRCh38/%s/mane?content-type=application%%2Fjson",
		c.baseURL, key)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			c.logger.Warn("retrying normalization request",
				zap.String("variant", key),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &ServiceError{Variant: key, Err: ctx.Err()}
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &ServiceError{Variant: key, Err: err}
		}

		body, err := c.get(ctx, url)
		switch {
		case err == nil:
			return c.parseResponse(key, body)
		case err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests:
			return nil, &ServiceError{Variant: key, Unavailable: true, Err: err}
		default:
			var semantic *NotFoundError
			if asNotFound(err, &semantic) {
				semantic.Variant = key
				return nil, semantic
			}
			lastErr = err
		}
	}

	return nil, &ServiceError{Variant: key, Err: fmt.Errorf("after %d attempts: %w", c.maxRetries+1, lastErr)}
}

func asNotFound(err error, target **NotFoundError) bool {
	nf, ok := err.(*NotFoundError)
	if ok {
		*target = nf
	}
	return ok
}

// get issues one request through the circuit breaker. Network errors, 5xx and
// 429 come back as plain errors (retryable, breaker-counted); 400 and 404 come
// back as *NotFoundError (semantic rejection, not retried).
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			return body, nil
		case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
			// Semantic rejection is a success from the breaker's point of
			// view: the service is up, it just dislikes the variant. Return
			// it as a value so the breaker does not count a failure.
			return &NotFoundError{Reason: fmt.Sprintf("service rejected request (HTTP %d)", resp.StatusCode)}, nil
		default:
			return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
		}
	})
	if err != nil {
		return nil, err
	}
	if nf, ok := result.(*NotFoundError); ok {
		return nil, nf
	}
	return result.([]byte), nil
}

// parseResponse extracts the HGVS descriptions from a validator response.
// The top-level object is keyed by transcript HGVS; key order is the
// service's canonical-transcript preference and must be preserved.
func (c *Client) parseResponse(variant string, body []byte) (*NormalizedVariant, error) {
	keys, err := orderedKeys(body)
	if err != nil {
		return nil, &ServiceError{Variant: variant, Err: fmt.Errorf("decode response: %w", err)}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ServiceError{Variant: variant, Err: fmt.Errorf("decode response: %w", err)}
	}

	if flagRaw, ok := raw["flag"]; ok {
		var flag string
		if err := json.Unmarshal(flagRaw, &flag); err == nil && flag == "empty_result" {
			return nil, &NotFoundError{Variant: variant, Reason: "service returned an empty result"}
		}
	}

	nv := &NormalizedVariant{}
	for _, key := range keys {
		if !strings.HasPrefix(key, "NM_") {
			continue
		}
		if !nmPattern.MatchString(key) {
			c.logger.Warn("transcript description is not valid HGVS, skipping",
				zap.String("variant", variant),
				zap.String("transcript", key))
			continue
		}

		var entry transcriptEntry
		if err := json.Unmarshal(raw[key], &entry); err != nil {
			return nil, &ServiceError{Variant: variant, Err: fmt.Errorf("decode transcript %s: %w", key, err)}
		}

		protein := entry.ProteinConsequence.TLR
		if protein != "" && !npPattern.MatchString(protein) {
			c.logger.Warn("irregular protein consequence from service",
				zap.String("variant", variant),
				zap.String("protein", protein))
			protein = irregularResponse
		}

		nv.Transcripts = append(nv.Transcripts, Transcript{HGVS: key, ProteinHGVS: protein})

		if nv.GenomicHGVS == "" {
			nc := entry.PrimaryAssemblyLoci.GRCh38.HGVSGenomicDescription
			if !ncPattern.MatchString(nc) {
				return nil, &NotFoundError{
					Variant: variant,
					Reason:  fmt.Sprintf("genomic description %q is not valid HGVS", nc),
				}
			}
			nv.GenomicHGVS = nc

			symbol := entry.GeneSymbol
			if len(symbol) < 1 || len(symbol) > 9 {
				c.logger.Warn("irregular gene symbol from service",
					zap.String("variant", variant),
					zap.String("gene_symbol", symbol))
				symbol = irregularResponse
			}
			nv.GeneSymbol = symbol

			hgnc := entry.GeneIDs.HGNCID
			if i := strings.IndexByte(hgnc, ':'); i >= 0 {
				hgnc = hgnc[i+1:]
			}
			if !hgncIDRe.MatchString(hgnc) {
				c.logger.Warn("irregular HGNC id from service",
					zap.String("variant", variant),
					zap.String("hgnc_id", entry.GeneIDs.HGNCID))
				hgnc = irregularResponse
			}
			nv.HGNCID = hgnc
		}
	}

	if len(nv.Transcripts) == 0 {
		return nil, &NotFoundError{Variant: variant, Reason: "no transcript-level description returned"}
	}

	return nv, nil
}

// transcriptEntry is the per-transcript block of a validator response.
type transcriptEntry struct {
	PrimaryAssemblyLoci struct {
		GRCh38 struct {
			HGVSGenomicDescription string `json:"hgvs_genomic_description"`
		} `json:"grch38"`
	} `json:"primary_assembly_loci"`
	ProteinConsequence struct {
		TLR string `json:"tlr"`
	} `json:"hgvs_predicted_protein_consequence"`
	GeneSymbol string `json:"gene_symbol"`
	GeneIDs    struct {
		HGNCID string `json:"hgnc_id"`
	} `json:"gene_ids"`
}

// orderedKeys returns the top-level object keys in document order.
// encoding/json maps drop ordering, so the keys are scanned token by token.
func orderedKeys(body []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}

	return keys, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
