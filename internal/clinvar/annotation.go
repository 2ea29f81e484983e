// Package clinvar provides the shared reference annotation store: a
// read-mostly cache of curated clinical annotations keyed by transcript-level
// HGVS, bulk-loaded from the ClinVar variant summary and persisted in DuckDB.
package clinvar

import "strings"

// SummaryURL is the upstream ClinVar variant summary download.
const SummaryURL = "https://ftp.ncbi.nlm.nih.gov/pub/clinvar/tab_delimited/variant_summary.txt.gz"

// ReferenceAnnotation is one curated entry, keyed by transcript HGVS.
type ReferenceAnnotation struct {
	NCAccession    string   // genomic accession, e.g. "NC_000019.10"
	NMHGVS         string   // transcript HGVS, the lookup key
	Classification string   // e.g. "Pathogenic"
	Conditions     []string // ordered condition names
	Stars          int      // review-confidence tier
	ReviewStatus   string
}

// StarRating maps a ClinVar review status to its review-confidence tier.
// The upstream data carries a tier below "single submitter" (conflicting or
// no assertion criteria), reported as 0.
func StarRating(reviewStatus string) int {
	switch {
	case strings.Contains(reviewStatus, "practice guideline"):
		return 4
	case strings.Contains(reviewStatus, "reviewed by expert panel"):
		return 3
	case strings.Contains(reviewStatus, "multiple submitters"):
		return 2
	case strings.Contains(reviewStatus, "single submitter"):
		return 1
	default:
		return 0
	}
}

// ParseConditions splits a ClinVar phenotype list into an ordered condition
// list, dropping "not provided" entries. An empty result is replaced with a
// single explanatory entry so the stored row is never blank.
func ParseConditions(phenotypeList string) []string {
	var conditions []string
	for _, c := range strings.Split(phenotypeList, "|") {
		c = strings.TrimSpace(c)
		if c == "" || c == "not provided" {
			continue
		}
		conditions = append(conditions, c)
	}
	if len(conditions) == 0 {
		conditions = []string{"No Conditions submitted on ClinVar"}
	}
	return conditions
}

// CleanName strips the gene symbol and protein-consequence decorations from a
// ClinVar record name, e.g. "NM_000360.4(TH):c.1442G>A (Gly481Asp)" becomes
// "NM_000360.4:c.1442G>A".
func CleanName(name string) string {
	open := strings.IndexByte(name, '(')
	if open < 0 {
		return name
	}
	closing := strings.IndexByte(name, ')')
	if closing < 0 {
		return name
	}
	rest := name[closing+1:]
	if sp := strings.IndexByte(rest, ' '); sp >= 0 {
		rest = rest[:sp]
	}
	return name[:open] + rest
}
