package clinvar

import (
	"bufio"
	"compress/gzip"
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// requiredColumns are the variant_summary columns the loader consumes.
var requiredColumns = []string{
	"Name",
	"ChromosomeAccession",
	"ClinicalSignificance",
	"PhenotypeList",
	"ReviewStatus",
	"Assembly",
}

// BulkLoad replaces the store contents with annotations parsed from a ClinVar
// variant_summary file (plain or gzipped TSV). Only GRCh38 records with a
// transcript-level name are kept. The replacement is atomic: lookups see
// either the old or the new generation, and the persistent copy is swapped
// via a staging table so a crash mid-load leaves the previous data intact.
// Returns the number of annotations loaded.
func (s *Store) BulkLoad(r io.Reader, loadedAt time.Time) (int, error) {
	reader, err := maybeGzip(r)
	if err != nil {
		return 0, err
	}

	annotations, err := s.parseSummary(reader)
	if err != nil {
		return 0, err
	}

	if err := s.persist(annotations, loadedAt); err != nil {
		return 0, fmt.Errorf("persist annotations: %w", err)
	}

	s.snap.Store(&snapshot{annotations: annotations, lastUpdated: loadedAt})
	s.logger.Info("reference store loaded",
		zap.Int("annotations", len(annotations)),
		zap.Time("loaded_at", loadedAt))

	return len(annotations), nil
}

// maybeGzip wraps the reader in a gzip decompressor when the stream starts
// with the gzip magic bytes.
func maybeGzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(r, 1<<20)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peek stream: %w", err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return gz, nil
	}
	return br, nil
}

func (s *Store) parseSummary(r io.Reader) (map[string]*ReferenceAnnotation, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 1<<22)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, fmt.Errorf("empty variant summary file")
	}

	header := strings.TrimPrefix(scanner.Text(), "#")
	colIdx := make(map[string]int)
	for i, name := range strings.Split(header, "\t") {
		colIdx[name] = i
	}
	for _, col := range requiredColumns {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("variant summary missing column %q", col)
		}
	}

	annotations := make(map[string]*ReferenceAnnotation)
	var total, kept int
	for scanner.Scan() {
		total++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) <= colIdx["Assembly"] {
			continue
		}
		if fields[colIdx["Assembly"]] != "GRCh38" {
			continue
		}

		name := CleanName(fields[colIdx["Name"]])
		if !strings.HasPrefix(name, "NM_") {
			continue
		}
		// First record wins when ClinVar lists a transcript description
		// more than once.
		if _, seen := annotations[name]; seen {
			continue
		}

		reviewStatus := fields[colIdx["ReviewStatus"]]
		annotations[name] = &ReferenceAnnotation{
			NCAccession:    fields[colIdx["ChromosomeAccession"]],
			NMHGVS:         name,
			Classification: fields[colIdx["ClinicalSignificance"]],
			Conditions:     ParseConditions(fields[colIdx["PhenotypeList"]]),
			Stars:          StarRating(reviewStatus),
			ReviewStatus:   reviewStatus,
		}
		kept++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read variant summary: %w", err)
	}

	s.logger.Debug("parsed variant summary",
		zap.Int("records", total),
		zap.Int("kept", kept))

	return annotations, nil
}

// persist writes the new generation into a staging table and swaps it in.
func (s *Store) persist(annotations map[string]*ReferenceAnnotation, loadedAt time.Time) error {
	_, err := s.db.Exec(`
		DROP TABLE IF EXISTS reference_annotations_staging;
		CREATE TABLE reference_annotations_staging (
			nc_accession VARCHAR,
			nm_hgvs VARCHAR PRIMARY KEY,
			clinical_significance VARCHAR,
			conditions VARCHAR,
			stars TINYINT,
			review_status VARCHAR
		);
	`)
	if err != nil {
		return fmt.Errorf("create staging table: %w", err)
	}

	if err := s.appendStaging(annotations); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin swap: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DROP TABLE reference_annotations"); err != nil {
		return fmt.Errorf("drop old table: %w", err)
	}
	if _, err := tx.Exec("ALTER TABLE reference_annotations_staging RENAME TO reference_annotations"); err != nil {
		return fmt.Errorf("rename staging table: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM store_metadata"); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	if _, err := tx.Exec("INSERT INTO store_metadata (last_updated) VALUES (?)", loadedAt); err != nil {
		return fmt.Errorf("record load time: %w", err)
	}

	return tx.Commit()
}

// appendStaging bulk-inserts via the DuckDB appender, which is much faster
// than prepared INSERTs for full reloads.
func (s *Store) appendStaging(annotations map[string]*ReferenceAnnotation) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	return conn.Raw(func(driverConn any) error {
		appender, err := duckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "reference_annotations_staging")
		if err != nil {
			return fmt.Errorf("create appender: %w", err)
		}

		for _, a := range annotations {
			err := appender.AppendRow(
				a.NCAccession,
				a.NMHGVS,
				a.Classification,
				strings.Join(a.Conditions, "|"),
				int8(a.Stars),
				a.ReviewStatus,
			)
			if err != nil {
				appender.Close()
				return fmt.Errorf("append annotation %s: %w", a.NMHGVS, err)
			}
		}

		return appender.Close()
	})
}
