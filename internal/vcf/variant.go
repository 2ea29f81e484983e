// Package vcf provides variant record parsing for uploaded files.
package vcf

import (
	"fmt"
	"strings"
)

// RawVariant represents a single called variant from an uploaded file.
type RawVariant struct {
	Chrom     string // Chromosome name (e.g., "12", "chr12")
	Pos       int64  // 1-based genomic position
	ID        string // Record identifier (e.g., rs ID), optional
	Ref       string // Reference allele
	Alt       string // Alternate allele (single allele after splitting)
	PatientID string // Patient or sample identifier, attached per row
}

// NormalizeChrom returns the chromosome name without a "chr" prefix.
func (v *RawVariant) NormalizeChrom() string {
	return strings.TrimPrefix(v.Chrom, "chr")
}

// Key returns the variant in {chrom}-{pos}-{ref}-{alt} form, the shape the
// normalization service accepts and the dedup cache is keyed on.
func (v *RawVariant) Key() string {
	return fmt.Sprintf("%s-%d-%s-%s", v.NormalizeChrom(), v.Pos, v.Ref, v.Alt)
}

// IsSNV returns true if the variant is a single nucleotide variant.
func (v *RawVariant) IsSNV() bool {
	return len(v.Ref) == 1 && len(v.Alt) == 1
}

// IsIndel returns true if the variant is an insertion or deletion.
func (v *RawVariant) IsIndel() bool {
	return len(v.Ref) != len(v.Alt)
}

// SplitMultiAllelic splits a multi-allelic variant into separate variants.
func SplitMultiAllelic(v *RawVariant) []*RawVariant {
	alts := strings.Split(v.Alt, ",")
	if len(alts) == 1 {
		return []*RawVariant{v}
	}

	variants := make([]*RawVariant, len(alts))
	for i, alt := range alts {
		variants[i] = &RawVariant{
			Chrom:     v.Chrom,
			Pos:       v.Pos,
			ID:        v.ID,
			Ref:       v.Ref,
			Alt:       alt,
			PatientID: v.PatientID,
		}
	}

	return variants
}
