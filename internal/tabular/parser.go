// Package tabular provides parsing of delimited variant files (CSV/TSV with a
// header row), the second upload format alongside VCF.
package tabular

import (
	"bufio"
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hgvslab/variantdb/internal/vcf"
)

// Recognized header names for the required columns, compared case-insensitively.
var (
	chromNames   = []string{"#chrom", "chrom", "chromosome"}
	posNames     = []string{"pos", "position", "start_position"}
	refNames     = []string{"ref", "reference_allele", "reference"}
	altNames     = []string{"alt", "alternate_allele", "alternate"}
	idNames      = []string{"id", "variant_id"}
	patientNames = []string{"patient_id", "sample", "sample_id"}
)

// columnIndices holds the positions of the required and optional columns.
type columnIndices struct {
	Chrom   int
	Pos     int
	Ref     int
	Alt     int
	ID      int
	Patient int
}

// Parser reads variants from a delimited file with a header row.
type Parser struct {
	reader     *csv.Reader
	file       *os.File
	gzipReader *gzip.Reader
	path       string
	patientID  string
	lineNumber int
	columns    columnIndices
}

// NewParser creates a parser for the given delimited file. The delimiter is
// taken from the header row (tab if present, comma otherwise). patientID is
// attached to every variant unless the file carries its own patient column.
func NewParser(path, patientID string) (*Parser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tabular file: %w", err)
	}

	p := &Parser{file: file, path: path, patientID: patientID}

	var raw io.Reader = file

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	if _, err := file.Read(buf); err != nil {
		file.Close()
		return nil, fmt.Errorf("read tabular header: %w", err)
	}
	if _, err := file.Seek(0, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek tabular file: %w", err)
	}
	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		raw = p.gzipReader
	}

	br := bufio.NewReader(raw)
	headerLine, err := br.ReadString('\n')
	if err != nil && err != io.EOF {
		p.Close()
		return nil, fmt.Errorf("read header row: %w", err)
	}
	p.lineNumber = 1
	headerLine = strings.TrimRight(headerLine, "\r\n")
	if headerLine == "" {
		p.Close()
		return nil, &vcf.MalformedInputError{File: path, Line: 1, Message: "empty file, no header row"}
	}

	delim := ','
	if strings.Contains(headerLine, "\t") {
		delim = '\t'
	}

	cols, err := resolveColumns(strings.Split(headerLine, string(delim)))
	if err != nil {
		p.Close()
		return nil, &vcf.MalformedInputError{File: path, Line: 1, Message: err.Error()}
	}
	p.columns = cols

	p.reader = csv.NewReader(br)
	p.reader.Comma = delim
	p.reader.FieldsPerRecord = -1
	p.reader.Comment = '#'

	return p, nil
}

// resolveColumns maps header names to column indices. All four required
// columns must be present; an unrecognized header is a parse error.
func resolveColumns(header []string) (columnIndices, error) {
	cols := columnIndices{Chrom: -1, Pos: -1, Ref: -1, Alt: -1, ID: -1, Patient: -1}

	match := func(name string, candidates []string) bool {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, c := range candidates {
			if name == c {
				return true
			}
		}
		return false
	}

	for i, name := range header {
		switch {
		case match(name, chromNames):
			cols.Chrom = i
		case match(name, posNames):
			cols.Pos = i
		case match(name, refNames):
			cols.Ref = i
		case match(name, altNames):
			cols.Alt = i
		case match(name, idNames):
			cols.ID = i
		case match(name, patientNames):
			cols.Patient = i
		}
	}

	var missing []string
	if cols.Chrom < 0 {
		missing = append(missing, "CHROM")
	}
	if cols.Pos < 0 {
		missing = append(missing, "POS")
	}
	if cols.Ref < 0 {
		missing = append(missing, "REF")
	}
	if cols.Alt < 0 {
		missing = append(missing, "ALT")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("header row missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// Next reads the next variant. Returns nil, nil when there are no more rows.
func (p *Parser) Next() (*vcf.RawVariant, error) {
	record, err := p.reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, &vcf.MalformedInputError{File: p.path, Line: p.lineNumber + 1, Message: err.Error()}
	}
	p.lineNumber++

	get := func(idx int) string {
		if idx < 0 || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	chrom := get(p.columns.Chrom)
	if chrom == "" || chrom == "." {
		return nil, p.fieldError("CHROM")
	}

	pos, err := strconv.ParseInt(get(p.columns.Pos), 10, 64)
	if err != nil || pos <= 0 {
		return nil, p.fieldError("POS")
	}

	ref := get(p.columns.Ref)
	if ref == "" || ref == "." {
		return nil, p.fieldError("REF")
	}

	alt := get(p.columns.Alt)
	if alt == "" || alt == "." {
		return nil, p.fieldError("ALT")
	}

	patientID := get(p.columns.Patient)
	if patientID == "" {
		patientID = p.patientID
	}

	return &vcf.RawVariant{
		Chrom:     chrom,
		Pos:       pos,
		ID:        get(p.columns.ID),
		Ref:       ref,
		Alt:       alt,
		PatientID: patientID,
	}, nil
}

// LineNumber returns the current line number being processed.
func (p *Parser) LineNumber() int {
	return p.lineNumber
}

// Close closes the parser and underlying file.
func (p *Parser) Close() error {
	if p.gzipReader != nil {
		p.gzipReader.Close()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}

func (p *Parser) fieldError(field string) *vcf.MalformedInputError {
	return &vcf.MalformedInputError{
		File:    p.path,
		Line:    p.lineNumber,
		Field:   field,
		Message: fmt.Sprintf("missing or invalid required field %s", field),
	}
}
