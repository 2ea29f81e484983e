package vcf

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parser reads variants from a VCF file.
type Parser struct {
	reader      *bufio.Reader
	file        *os.File
	gzipReader  *gzip.Reader
	path        string
	patientID   string
	lineNumber  int
	header      []string
	sampleNames []string // sample names from #CHROM header line
	pending     []*RawVariant
}

// NewParser creates a new VCF parser for the given file.
// Supports both plain VCF and gzipped VCF (.vcf.gz) files.
// patientID is attached to every variant the parser produces.
func NewParser(path, patientID string) (*Parser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vcf file: %w", err)
	}

	p := &Parser{file: file, path: path, patientID: patientID}

	// Check for gzip magic bytes
	buf := make([]byte, 2)
	_, err = file.Read(buf)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read vcf header: %w", err)
	}

	// Seek back to beginning
	_, err = file.Seek(0, 0)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("seek vcf file: %w", err)
	}

	// Check for gzip magic number (0x1f, 0x8b)
	if buf[0] == 0x1f && buf[1] == 0x8b {
		p.gzipReader, err = gzip.NewReader(file)
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		p.reader = bufio.NewReader(p.gzipReader)
	} else {
		p.reader = bufio.NewReader(file)
	}

	// Parse header
	if err := p.parseHeader(); err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// NewParserFromReader creates a parser from an io.Reader (e.g., an upload stream).
func NewParserFromReader(r io.Reader, patientID string) (*Parser, error) {
	p := &Parser{
		reader:    bufio.NewReader(r),
		patientID: patientID,
	}

	if err := p.parseHeader(); err != nil {
		return nil, err
	}

	return p, nil
}

// parseHeader reads and stores VCF header lines.
func (p *Parser) parseHeader() error {
	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("read header: %w", err)
		}
		p.lineNumber++

		line = strings.TrimRight(line, "\r\n")

		if strings.HasPrefix(line, "##") {
			p.header = append(p.header, line)
			continue
		}

		if strings.HasPrefix(line, "#CHROM") {
			p.header = append(p.header, line)
			// Extract sample names from columns after FORMAT (index 9+)
			fields := strings.Split(line, "\t")
			if len(fields) > 9 {
				p.sampleNames = fields[9:]
			}
			return nil
		}

		// Non-header line encountered without #CHROM
		return &MalformedInputError{
			File:    p.path,
			Line:    p.lineNumber,
			Message: "expected #CHROM header line",
		}
	}

	return &MalformedInputError{
		File:    p.path,
		Line:    p.lineNumber,
		Message: "no #CHROM header line found",
	}
}

// Next reads the next variant from the VCF file. Multi-allelic records are
// split, one variant per alternate allele.
// Returns nil, nil when there are no more variants.
func (p *Parser) Next() (*RawVariant, error) {
	if len(p.pending) > 0 {
		v := p.pending[0]
		p.pending = p.pending[1:]
		return v, nil
	}

	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("read variant line: %w", err)
	}
	p.lineNumber++

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return p.Next() // Skip empty lines
	}

	v, err := p.parseLine(line)
	if err != nil {
		return nil, err
	}

	split := SplitMultiAllelic(v)
	p.pending = split[1:]
	return split[0], nil
}

// parseLine parses a single VCF data line into a RawVariant.
func (p *Parser) parseLine(line string) (*RawVariant, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 5 {
		return nil, &MalformedInputError{
			File:    p.path,
			Line:    p.lineNumber,
			Message: fmt.Sprintf("expected at least 5 columns (CHROM POS ID REF ALT), found %d", len(fields)),
		}
	}

	if fields[0] == "" || fields[0] == "." {
		return nil, p.fieldError("CHROM", fields[0])
	}

	pos, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || pos <= 0 {
		return nil, p.fieldError("POS", fields[1])
	}

	ref := fields[3]
	if ref == "" || ref == "." {
		return nil, p.fieldError("REF", ref)
	}

	alt := fields[4]
	if alt == "" || alt == "." {
		return nil, p.fieldError("ALT", alt)
	}

	return &RawVariant{
		Chrom:     fields[0],
		Pos:       pos,
		ID:        fields[2],
		Ref:       ref,
		Alt:       alt,
		PatientID: p.patientID,
	}, nil
}

func (p *Parser) fieldError(field, value string) *MalformedInputError {
	msg := fmt.Sprintf("missing required field %s", field)
	if value != "" && value != "." {
		msg = fmt.Sprintf("invalid %s value %q", field, value)
	}
	return &MalformedInputError{
		File:    p.path,
		Line:    p.lineNumber,
		Field:   field,
		Message: msg,
	}
}

// Header returns the VCF header lines.
func (p *Parser) Header() []string {
	return p.header
}

// SampleNames returns sample names from the #CHROM header line.
// Returns nil if no sample columns are present.
func (p *Parser) SampleNames() []string {
	return p.sampleNames
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

// MalformedInputError reports a bad upload row with the offending line and field.
type MalformedInputError struct {
	File    string
	Line    int
	Field   string
	Message string
}

func (e *MalformedInputError) Error() string {
	name := e.File
	if name == "" {
		name = "input"
	}
	return fmt.Sprintf("%s: line %d: %s", name, e.Line, e.Message)
}
