// Package dataset manages per-dataset SQLite stores: one file per dataset,
// each holding patient-to-variant links and the annotation rows they share.
package dataset

import "github.com/uptrace/bun"

// PatientVariant links a patient to an annotated variant. The No sequence is
// shared with the annotation row written in the same transaction, so the two
// tables join on it.
type PatientVariant struct {
	bun.BaseModel `bun:"table:patient_variant,alias:pv"`

	No        int64  `bun:"No,pk"`
	PatientID string `bun:"patient_ID,notnull"`
	Variant   string `bun:"variant,notnull"`
}

// VariantAnnotation is the stored annotation for one patient-variant link.
type VariantAnnotation struct {
	bun.BaseModel `bun:"table:variant_annotations,alias:va"`

	No             int64  `bun:"No,pk"`
	VariantNC      string `bun:"variant_NC,notnull"`
	VariantNM      string `bun:"variant_NM,notnull"`
	VariantNP      string `bun:"variant_NP"`
	Gene           string `bun:"gene"`
	HGNCID         string `bun:"HGNC_ID"`
	Classification string `bun:"Classification"`
	Conditions     string `bun:"Conditions"`
	Stars          int    `bun:"Stars"`
	ReviewStatus   string `bun:"Review_status"`
}

// variantLookup caches the normalization of a raw chrom-pos-ref-alt key, so
// re-annotating a known variant never goes back to the normalization service.
// The table is auxiliary: imported stores are valid without it and it is
// created on first write.
type variantLookup struct {
	bun.BaseModel `bun:"table:variant_lookup,alias:vl"`

	RawKey    string `bun:"raw_key,pk"`
	VariantNM string `bun:"variant_nm,notnull"`
	VariantNC string `bun:"variant_nc"`
}

// AnnotatedVariant is one joined row: a patient link plus its annotation.
// This is the shape query, display and export operate on.
type AnnotatedVariant struct {
	No             int64  `bun:"No"`
	PatientID      string `bun:"patient_ID"`
	VariantNC      string `bun:"variant_NC"`
	VariantNM      string `bun:"variant_NM"`
	VariantNP      string `bun:"variant_NP"`
	Gene           string `bun:"gene"`
	HGNCID         string `bun:"HGNC_ID"`
	Classification string `bun:"Classification"`
	Conditions     string `bun:"Conditions"`
	Stars          int    `bun:"Stars"`
	ReviewStatus   string `bun:"Review_status"`
}

// expected column sets for imported store validation.
var (
	patientVariantColumns = []string{"No", "patient_ID", "variant"}

	variantAnnotationColumns = []string{
		"No", "variant_NC", "variant_NM", "variant_NP", "gene",
		"HGNC_ID", "Classification", "Conditions", "Stars", "Review_status",
	}
)
