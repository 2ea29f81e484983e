package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/uptrace/bun"
)

// Dataset is one open dataset store. The mutex serializes the
// check-then-append critical section during annotation so concurrent
// annotation runs against the same dataset cannot interleave a duplicate
// check with another run's append.
type Dataset struct {
	name string
	path string
	db   *bun.DB
	mu   sync.Mutex
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.name }

// Path returns the store file path.
func (d *Dataset) Path() string { return d.path }

// Lock acquires the dataset writer lock. Hold it across a duplicate check
// and the append that depends on it.
func (d *Dataset) Lock() { d.mu.Lock() }

// Unlock releases the dataset writer lock.
func (d *Dataset) Unlock() { d.mu.Unlock() }

// Close closes the underlying store.
func (d *Dataset) Close() error { return d.db.Close() }

func (d *Dataset) ensureSchema(ctx context.Context) error {
	for _, model := range []any{(*PatientVariant)(nil), (*VariantAnnotation)(nil), (*variantLookup)(nil)} {
		if _, err := d.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}

// nextNo returns the next value of the shared sequence. Callers must hold
// the dataset lock or be inside the append transaction.
func nextNo(ctx context.Context, tx bun.Tx) (int64, error) {
	var max sql.NullInt64
	err := tx.NewSelect().
		Model((*PatientVariant)(nil)).
		ColumnExpr(`MAX("No")`).
		Scan(ctx, &max)
	if err != nil {
		return 0, err
	}
	return max.Int64 + 1, nil
}

// Append inserts a patient link and its annotation under the same sequence
// number in one transaction and returns that number. A sequence collision
// surfaces as DuplicateKeyError.
func (d *Dataset) Append(ctx context.Context, patientID string, ann *VariantAnnotation) (int64, error) {
	var no int64
	err := d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		no, err = nextNo(ctx, tx)
		if err != nil {
			return fmt.Errorf("next sequence number: %w", err)
		}

		link := &PatientVariant{No: no, PatientID: patientID, Variant: ann.VariantNM}
		if _, err := tx.NewInsert().Model(link).Exec(ctx); err != nil {
			return wrapInsertErr(no, err)
		}

		row := *ann
		row.No = no
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return wrapInsertErr(no, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return no, nil
}

func wrapInsertErr(no int64, err error) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return &DuplicateKeyError{No: no}
	}
	return err
}

// Exists reports whether the patient already has the given transcript
// description stored.
func (d *Dataset) Exists(ctx context.Context, patientID, nmHGVS string) (bool, error) {
	return d.db.NewSelect().
		Model((*PatientVariant)(nil)).
		Where(`pv."patient_ID" = ?`, patientID).
		Where(`pv."variant" = ?`, nmHGVS).
		Exists(ctx)
}

// FindByTranscript returns a stored annotation for the transcript
// description, if any patient in the dataset already carries it. Used to
// reuse annotations across patients without a service round trip.
func (d *Dataset) FindByTranscript(ctx context.Context, nmHGVS string) (*VariantAnnotation, error) {
	ann := new(VariantAnnotation)
	err := d.db.NewSelect().
		Model(ann).
		Where(`va."variant_NM" = ?`, nmHGVS).
		OrderExpr(`va."No"`).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ann, nil
}

// LookupRaw returns the cached transcript description for a raw
// chrom-pos-ref-alt key. Imported stores may not carry the cache table; that
// is reported as a miss, not an error.
func (d *Dataset) LookupRaw(ctx context.Context, rawKey string) (string, bool, error) {
	var entry variantLookup
	err := d.db.NewSelect().
		Model(&entry).
		Where("vl.raw_key = ?", rawKey).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.VariantNM, true, nil
}

// CacheRaw records the normalization result for a raw key, creating the
// cache table if the store predates it.
func (d *Dataset) CacheRaw(ctx context.Context, rawKey, nmHGVS, ncHGVS string) error {
	if _, err := d.db.NewCreateTable().Model((*variantLookup)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create lookup table: %w", err)
	}
	entry := &variantLookup{RawKey: rawKey, VariantNM: nmHGVS, VariantNC: ncHGVS}
	_, err := d.db.NewInsert().
		Model(entry).
		On("CONFLICT (raw_key) DO UPDATE").
		Set("variant_nm = EXCLUDED.variant_nm").
		Set("variant_nc = EXCLUDED.variant_nc").
		Exec(ctx)
	return err
}

const joinedColumns = `pv."No", pv."patient_ID", va."variant_NC", va."variant_NM", va."variant_NP", ` +
	`va."gene", va."HGNC_ID", va."Classification", va."Conditions", va."Stars", va."Review_status"`

func (d *Dataset) selectJoined() *bun.SelectQuery {
	return d.db.NewSelect().
		TableExpr("patient_variant AS pv").
		Join(`JOIN variant_annotations AS va ON va."No" = pv."No"`).
		ColumnExpr(joinedColumns).
		OrderExpr(`pv."No"`)
}

// ListAll returns every annotated variant in insertion order.
func (d *Dataset) ListAll(ctx context.Context) ([]AnnotatedVariant, error) {
	var rows []AnnotatedVariant
	if err := d.selectJoined().Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchByPatient returns the rows for a patient identifier, exact or by
// prefix.
func (d *Dataset) SearchByPatient(ctx context.Context, patientID string, prefix bool) ([]AnnotatedVariant, error) {
	q := d.selectJoined()
	if prefix {
		q = q.Where(`pv."patient_ID" LIKE ? ESCAPE '\'`, escapeLike(patientID)+"%")
	} else {
		q = q.Where(`pv."patient_ID" = ?`, patientID)
	}
	var rows []AnnotatedVariant
	if err := q.Scan(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchByVariant returns rows whose genomic, transcript or protein
// description matches exactly.
func (d *Dataset) SearchByVariant(ctx context.Context, variant string) ([]AnnotatedVariant, error) {
	var rows []AnnotatedVariant
	err := d.selectJoined().
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where(`va."variant_NC" = ?`, variant).
				WhereOr(`va."variant_NM" = ?`, variant).
				WhereOr(`va."variant_NP" = ?`, variant)
		}).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchByGene returns rows for an exact gene symbol.
func (d *Dataset) SearchByGene(ctx context.Context, gene string) ([]AnnotatedVariant, error) {
	var rows []AnnotatedVariant
	err := d.selectJoined().Where(`va."gene" = ?`, gene).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SearchByGeneID returns rows for an HGNC identifier.
func (d *Dataset) SearchByGeneID(ctx context.Context, hgncID string) ([]AnnotatedVariant, error) {
	var rows []AnnotatedVariant
	err := d.selectJoined().Where(`va."HGNC_ID" = ?`, hgncID).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// HGNCIDForGene resolves a gene symbol to the HGNC identifier stored with
// it. Searching by the identifier keeps variants grouped when a symbol was
// renamed between annotation runs.
func (d *Dataset) HGNCIDForGene(ctx context.Context, gene string) (string, bool, error) {
	var id string
	err := d.db.NewSelect().
		Model((*VariantAnnotation)(nil)).
		ColumnExpr(`va."HGNC_ID"`).
		Where(`va."gene" = ?`, gene).
		Limit(1).
		Scan(ctx, &id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// PatientCount returns the number of distinct patients in the dataset.
func (d *Dataset) PatientCount(ctx context.Context) (int, error) {
	var n int
	err := d.db.NewSelect().
		Model((*PatientVariant)(nil)).
		ColumnExpr(`COUNT(DISTINCT pv."patient_ID")`).
		Scan(ctx, &n)
	return n, err
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return r.Replace(s)
}
