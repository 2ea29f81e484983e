package query

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hgvslab/variantdb/internal/dataset"
)

// formulaPrefixes are the characters spreadsheets interpret as the start of
// a formula. Cell values beginning with one get a leading apostrophe so the
// exported file opens as data, not as executable expressions.
const formulaPrefixes = "=+-@*"

func escapeCell(v string) string {
	if v != "" && strings.ContainsRune(formulaPrefixes, rune(v[0])) {
		return "'" + v
	}
	return v
}

// WriteFlat writes the rows as CSV: a header of the display columns, then
// one record per annotated variant.
func WriteFlat(w io.Writer, rows []dataset.AnnotatedVariant) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Columns); err != nil {
		return err
	}
	record := make([]string, len(Columns))
	for i := range rows {
		for j, col := range Columns {
			v, err := fieldValue(&rows[i], col)
			if err != nil {
				return err
			}
			record[j] = escapeCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportFlat writes the rows to "<datasetName>.csv" in dir and returns the
// path. When that file already exists the smallest free numeric suffix is
// used instead, so repeated exports never overwrite each other.
func ExportFlat(rows []dataset.AnnotatedVariant, dir, datasetName string) (string, error) {
	path, err := exportPath(dir, datasetName)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}

	if err := WriteFlat(f, rows); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	return path, nil
}

func exportPath(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name+".csv")
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("check export path: %w", err)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d.csv", name, n))
	}
}
