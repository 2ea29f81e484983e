package normalize

import "regexp"

// Transcript is one transcript-level description of a normalized variant.
type Transcript struct {
	HGVS        string // NM_...:c....
	ProteinHGVS string // NP_...:p....
}

// NormalizedVariant is the service's canonical description of a raw variant.
// Transcripts preserve the order the service returned them in, which follows
// its own canonical-transcript preference.
type NormalizedVariant struct {
	GenomicHGVS string // NC_...:g....
	Transcripts []Transcript
	GeneSymbol  string
	HGNCID      string // numeric part of the HGNC id, e.g. "801"
}

// HGVS shape checks, matching what the validation service is expected to
// produce for GRCh38 RefSeq accessions.
var (
	ncPattern = regexp.MustCompile(`^NC_\d+\.\d{1,2}:g\.([-]*\d+|[-]*\d+_[-]*\d+|[-]*\d+[+-]\d+)([ACGT]>[ACGT]|delins[ACGT]*|del[ACGT]*|ins[ACGT]*|dup[ACGT]*|inv[ACGT]*)`)
	nmPattern = regexp.MustCompile(`^NM_\d+\.\d{1,2}:c\.([-]*\d+|[-]*\d+_[-]*\d+|[-]*\d+[+-]\d+)([ACGT]>[ACGT]|delins[ACGT]*|del[ACGT]*|ins[ACGT]*|dup[ACGT]*|inv[ACGT]*)`)
	npPattern = regexp.MustCompile(`^NP_\d+\.\d{1,2}:p\.`)
	hgncIDRe  = regexp.MustCompile(`^\d+$`)
)

// recognized GRCh38 chromosome names (after stripping any "chr" prefix).
var grch38Chroms = map[string]bool{
	"1": true, "2": true, "3": true, "4": true, "5": true, "6": true,
	"7": true, "8": true, "9": true, "10": true, "11": true, "12": true,
	"13": true, "14": true, "15": true, "16": true, "17": true, "18": true,
	"19": true, "20": true, "21": true, "22": true, "X": true, "Y": true,
	"MT": true, "M": true,
}

// ValidChrom reports whether the chromosome maps to the GRCh38 reference set.
func ValidChrom(chrom string) bool {
	return grch38Chroms[chrom]
}
