package dataset

import (
	"fmt"
	"strings"
)

// SchemaError reports an imported store whose tables do not match the
// expected dataset schema. Nothing is imported when it is returned.
type SchemaError struct {
	Table   string
	Missing []string
	Extra   []string
}

func (e *SchemaError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing columns %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, fmt.Sprintf("unexpected columns %s", strings.Join(e.Extra, ", ")))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("table %s not found", e.Table)
	}
	return fmt.Sprintf("table %s: %s", e.Table, strings.Join(parts, "; "))
}

// DuplicateKeyError reports a sequence number collision on append. This is an
// integrity fault, not a recoverable condition: the dataset's shared sequence
// has been reused.
type DuplicateKeyError struct {
	No int64
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("sequence number %d already present", e.No)
}
