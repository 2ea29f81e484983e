package vcf

import (
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const atp1a3VCF = `##fileformat=VCFv4.2
##reference=GRCh38
#CHROM	POS	ID	REF	ALT	QUAL	FILTER	INFO
19	41968837	rs606231437	C	G	.	PASS	.
`

func TestParserSingleVariant(t *testing.T) {
	parser, err := NewParserFromReader(strings.NewReader(atp1a3VCF), "P001")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	v, err := parser.Next()
	if err != nil {
		t.Fatalf("Failed to read variant: %v", err)
	}
	if v == nil {
		t.Fatal("Expected a variant, got nil")
	}

	if v.Chrom != "19" {
		t.Errorf("Expected chrom 19, got %s", v.Chrom)
	}
	if v.Pos != 41968837 {
		t.Errorf("Expected pos 41968837, got %d", v.Pos)
	}
	if v.Ref != "C" {
		t.Errorf("Expected ref C, got %s", v.Ref)
	}
	if v.Alt != "G" {
		t.Errorf("Expected alt G, got %s", v.Alt)
	}
	if v.PatientID != "P001" {
		t.Errorf("Expected patient P001, got %s", v.PatientID)
	}
	if v.Key() != "19-41968837-C-G" {
		t.Errorf("Expected key 19-41968837-C-G, got %s", v.Key())
	}
	if !v.IsSNV() {
		t.Error("C>G should be classified as SNV")
	}

	v2, err := parser.Next()
	if err != nil {
		t.Fatalf("Error checking for more variants: %v", err)
	}
	if v2 != nil {
		t.Error("Expected no more variants")
	}
}

func TestParserChrPrefixAndKey(t *testing.T) {
	input := `#CHROM	POS	ID	REF	ALT
chr11	2165787	.	C	T
`
	parser, err := NewParserFromReader(strings.NewReader(input), "P001")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	v, err := parser.Next()
	if err != nil {
		t.Fatalf("Failed to read variant: %v", err)
	}
	if v.NormalizeChrom() != "11" {
		t.Errorf("Expected normalized chrom 11, got %s", v.NormalizeChrom())
	}
	if v.Key() != "11-2165787-C-T" {
		t.Errorf("Expected key 11-2165787-C-T, got %s", v.Key())
	}
}

func TestParserSplitsMultiAllelic(t *testing.T) {
	input := `#CHROM	POS	ID	REF	ALT
1	12345	.	A	G,T
`
	parser, err := NewParserFromReader(strings.NewReader(input), "P001")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}

	var alts []string
	for {
		v, err := parser.Next()
		if err != nil {
			t.Fatalf("Error reading variant: %v", err)
		}
		if v == nil {
			break
		}
		if v.Pos != 12345 || v.Ref != "A" {
			t.Errorf("Split variant lost position or ref: %+v", v)
		}
		alts = append(alts, v.Alt)
	}

	if len(alts) != 2 || alts[0] != "G" || alts[1] != "T" {
		t.Errorf("Expected alts [G T], got %v", alts)
	}
}

func TestParserGzipInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.vcf.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write([]byte(atp1a3VCF)); err != nil {
		t.Fatalf("Failed to write gzip data: %v", err)
	}
	gz.Close()
	f.Close()

	parser, err := NewParser(path, "P001")
	if err != nil {
		t.Fatalf("Failed to create parser: %v", err)
	}
	defer parser.Close()

	v, err := parser.Next()
	if err != nil {
		t.Fatalf("Failed to read variant: %v", err)
	}
	if v == nil || v.Pos != 41968837 {
		t.Fatalf("Expected ATP1A3 variant from gzip input, got %+v", v)
	}
}

func TestParserMissingHeader(t *testing.T) {
	input := "19\t41968837\t.\tC\tG\n"
	_, err := NewParserFromReader(strings.NewReader(input), "P001")
	if err == nil {
		t.Fatal("Expected error for missing #CHROM header")
	}

	var malformed *MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("Expected MalformedInputError, got %T", err)
	}
}

func TestParserMalformedRows(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		field string
	}{
		{"too few columns", "19\t41968837\tC", ""},
		{"bad position", "19\tnotanumber\t.\tC\tG", "POS"},
		{"negative position", "19\t-5\t.\tC\tG", "POS"},
		{"missing ref", "19\t41968837\t.\t.\tG", "REF"},
		{"missing alt", "19\t41968837\t.\tC\t.", "ALT"},
		{"missing chrom", ".\t41968837\t.\tC\tG", "CHROM"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := "#CHROM\tPOS\tID\tREF\tALT\n" + tt.row + "\n"
			parser, err := NewParserFromReader(strings.NewReader(input), "P001")
			if err != nil {
				t.Fatalf("Failed to create parser: %v", err)
			}

			_, err = parser.Next()
			var malformed *MalformedInputError
			if !errors.As(err, &malformed) {
				t.Fatalf("Expected MalformedInputError, got %v", err)
			}
			if malformed.Field != tt.field {
				t.Errorf("Expected field %q, got %q", tt.field, malformed.Field)
			}
			if malformed.Line != 2 {
				t.Errorf("Expected line 2, got %d", malformed.Line)
			}
		})
	}
}

func TestMultiParser(t *testing.T) {
	p1, err := NewParserFromReader(strings.NewReader(atp1a3VCF), "P001")
	if err != nil {
		t.Fatalf("Failed to create first parser: %v", err)
	}
	p2, err := NewParserFromReader(strings.NewReader(atp1a3VCF), "P002")
	if err != nil {
		t.Fatalf("Failed to create second parser: %v", err)
	}

	m := NewMultiParser(p1, p2)
	var patients []string
	for {
		v, err := m.Next()
		if err != nil {
			t.Fatalf("Error reading variant: %v", err)
		}
		if v == nil {
			break
		}
		patients = append(patients, v.PatientID)
	}

	if len(patients) != 2 || patients[0] != "P001" || patients[1] != "P002" {
		t.Errorf("Expected patients [P001 P002], got %v", patients)
	}
}
