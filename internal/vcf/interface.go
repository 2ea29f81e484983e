package vcf

// VariantParser is the interface for parsers that read variants.
// Both the VCF and tabular parsers implement this interface.
type VariantParser interface {
	// Next reads the next variant.
	// Returns nil, nil when there are no more variants.
	Next() (*RawVariant, error)

	// Close closes the parser and releases resources.
	Close() error

	// LineNumber returns the current line number being processed.
	LineNumber() int
}

// MultiParser concatenates several parsers into one logical sequence.
// Each underlying parser contributes its own patient identifier tagging.
type MultiParser struct {
	parsers []VariantParser
	current int
}

// NewMultiParser creates a parser over the given parsers in order.
func NewMultiParser(parsers ...VariantParser) *MultiParser {
	return &MultiParser{parsers: parsers}
}

// Next reads the next variant, advancing to the next file at EOF.
func (m *MultiParser) Next() (*RawVariant, error) {
	for m.current < len(m.parsers) {
		v, err := m.parsers[m.current].Next()
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
		m.current++
	}
	return nil, nil
}

// LineNumber returns the line number of the parser currently being read.
func (m *MultiParser) LineNumber() int {
	if m.current < len(m.parsers) {
		return m.parsers[m.current].LineNumber()
	}
	return 0
}

// Close closes all underlying parsers, returning the first error seen.
func (m *MultiParser) Close() error {
	var first error
	for _, p := range m.parsers {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
