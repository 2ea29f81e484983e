// Package annotate drives the annotation pipeline: parsed variants are
// normalized, matched against the reference store and persisted into a
// dataset, one record at a time.
package annotate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/hgvslab/variantdb/internal/clinvar"
	"github.com/hgvslab/variantdb/internal/dataset"
	"github.com/hgvslab/variantdb/internal/normalize"
	"github.com/hgvslab/variantdb/internal/vcf"
)

// ReferenceLookup is the reference store surface the pipeline needs.
type ReferenceLookup interface {
	Lookup(nmHGVS string) (*clinvar.ReferenceAnnotation, bool)
}

// Outcome classifies what happened to one input record.
type Outcome string

const (
	// OutcomeStored means a new annotation row was written.
	OutcomeStored Outcome = "stored"
	// OutcomeReused means an annotation already in the dataset was copied
	// for a new patient without calling the normalization service.
	OutcomeReused Outcome = "reused"
	// OutcomeSkipped means the record was dropped for a reported reason.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means a transient error stopped this record only.
	OutcomeFailed Outcome = "failed"
)

// Skip reasons surfaced to the user per record.
const (
	ReasonNotNormalizable = "not normalizable"
	ReasonNoAnnotation    = "no ClinVar entry"
	ReasonDuplicate       = "duplicate"
)

// Result is the per-record report entry.
type Result struct {
	PatientID string
	RawKey    string
	VariantNM string
	Outcome   Outcome
	Reason    string
	Err       error
}

// Summary is the batch report: counts plus the per-record results in input
// order. Aborted is set when the normalization service became unavailable
// and the remaining records were not attempted; everything persisted before
// the abort stays persisted.
type Summary struct {
	Stored  int
	Reused  int
	Skipped int
	Failed  int
	Aborted bool
	Results []Result
}

func (s *Summary) record(r Result) {
	switch r.Outcome {
	case OutcomeStored:
		s.Stored++
	case OutcomeReused:
		s.Reused++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
	}
	s.Results = append(s.Results, r)
}

// Orchestrator runs annotation batches.
type Orchestrator struct {
	norm   normalize.Normalizer
	ref    ReferenceLookup
	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator over a normalizer and a reference
// store.
func NewOrchestrator(norm normalize.Normalizer, ref ReferenceLookup) *Orchestrator {
	return &Orchestrator{norm: norm, ref: ref, logger: zap.NewNop()}
}

// SetLogger sets the logger for per-record progress messages.
func (o *Orchestrator) SetLogger(l *zap.Logger) {
	o.logger = l
}

// AnnotateBatch reads records from the parser until EOF and processes them
// sequentially against the dataset. A malformed input record stops the
// operation and returns the parse error alongside the partial summary; rows
// already persisted remain.
func (o *Orchestrator) AnnotateBatch(ctx context.Context, parser vcf.VariantParser, ds *dataset.Dataset) (*Summary, error) {
	summary := &Summary{}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		v, err := parser.Next()
		if err != nil {
			return summary, err
		}
		if v == nil {
			break
		}

		res := o.process(ctx, v, ds)
		summary.record(res)

		switch res.Outcome {
		case OutcomeFailed:
			if normalize.IsUnavailable(res.Err) {
				o.logger.Warn("normalization service unavailable, aborting batch",
					zap.String("variant", res.RawKey),
					zap.Error(res.Err))
				summary.Aborted = true
				return summary, nil
			}
			o.logger.Warn("record failed",
				zap.String("variant", res.RawKey),
				zap.Error(res.Err))
		case OutcomeSkipped:
			o.logger.Debug("record skipped",
				zap.String("variant", res.RawKey),
				zap.String("reason", res.Reason))
		}
	}

	o.logger.Info("batch finished",
		zap.String("dataset", ds.Name()),
		zap.Int("stored", summary.Stored),
		zap.Int("reused", summary.Reused),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))

	return summary, nil
}

// process handles one record. Dedup checks and the appends that depend on
// them run under the dataset lock; the lock is never held across a service
// call.
func (o *Orchestrator) process(ctx context.Context, v *vcf.RawVariant, ds *dataset.Dataset) Result {
	res := Result{PatientID: v.PatientID, RawKey: v.Key()}

	// Fast path: the raw variant was normalized before, so the dataset can
	// answer without a service call.
	done, fastRes := o.tryReuse(ctx, v, ds)
	if done {
		return fastRes
	}

	norm, err := o.norm.Normalize(ctx, v)
	if err != nil {
		if normalize.IsNotFound(err) {
			res.Outcome = OutcomeSkipped
			res.Reason = ReasonNotNormalizable
			return res
		}
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	// First transcript with a reference entry wins, in the order the
	// service reported them.
	var (
		matched *clinvar.ReferenceAnnotation
		winner  normalize.Transcript
	)
	for _, tr := range norm.Transcripts {
		if ref, ok := o.ref.Lookup(tr.HGVS); ok {
			matched = ref
			winner = tr
			break
		}
	}
	if matched == nil {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonNoAnnotation
		return res
	}
	res.VariantNM = winner.HGVS

	ann := &dataset.VariantAnnotation{
		VariantNC:      norm.GenomicHGVS,
		VariantNM:      winner.HGVS,
		VariantNP:      winner.ProteinHGVS,
		Gene:           norm.GeneSymbol,
		HGNCID:         norm.HGNCID,
		Classification: matched.Classification,
		Conditions:     strings.Join(matched.Conditions, "|"),
		Stars:          matched.Stars,
		ReviewStatus:   matched.ReviewStatus,
	}

	ds.Lock()
	defer ds.Unlock()

	// Re-check under the lock: another batch may have stored the same
	// patient-variant pair while the service call was in flight.
	exists, err := ds.Exists(ctx, v.PatientID, winner.HGVS)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	if exists {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonDuplicate
		return res
	}

	if _, err := ds.Append(ctx, v.PatientID, ann); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	if err := ds.CacheRaw(ctx, res.RawKey, winner.HGVS, norm.GenomicHGVS); err != nil {
		o.logger.Warn("normalization cache write failed",
			zap.String("variant", res.RawKey),
			zap.Error(err))
	}

	res.Outcome = OutcomeStored
	return res
}

// tryReuse resolves a record from the dataset alone when its raw key was
// normalized before. Returns false when the record needs the full path.
func (o *Orchestrator) tryReuse(ctx context.Context, v *vcf.RawVariant, ds *dataset.Dataset) (bool, Result) {
	res := Result{PatientID: v.PatientID, RawKey: v.Key()}

	ds.Lock()
	defer ds.Unlock()

	nm, found, err := ds.LookupRaw(ctx, res.RawKey)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return true, res
	}
	if !found {
		return false, res
	}
	res.VariantNM = nm

	exists, err := ds.Exists(ctx, v.PatientID, nm)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return true, res
	}
	if exists {
		res.Outcome = OutcomeSkipped
		res.Reason = ReasonDuplicate
		return true, res
	}

	stored, err := ds.FindByTranscript(ctx, nm)
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return true, res
	}
	if stored == nil {
		// Cached normalization without a stored annotation: the record
		// needs the full path again.
		return false, res
	}

	if _, err := ds.Append(ctx, v.PatientID, stored); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return true, res
	}

	res.Outcome = OutcomeReused
	return true, res
}
