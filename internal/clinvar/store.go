package clinvar

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"
)

// snapshot is one immutable generation of the reference cache. Readers hold a
// pointer to the generation that was current when they looked, so an
// in-progress bulk load never corrupts an in-flight lookup.
type snapshot struct {
	annotations map[string]*ReferenceAnnotation
	lastUpdated time.Time
}

// Store is the process-wide reference annotation store. Lookups are served
// from an in-memory snapshot swapped atomically on bulk load; DuckDB holds
// the persistent copy restored on startup.
type Store struct {
	db     *sql.DB
	path   string
	snap   atomic.Pointer[snapshot]
	logger *zap.Logger
}

// Open opens or creates the store at the given path and restores the current
// snapshot. Use an empty string for an in-memory store.
func Open(path string) (*Store, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path, logger: zap.NewNop()}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	if err := s.loadSnapshot(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	return s, nil
}

// SetLogger sets the logger for load progress messages.
func (s *Store) SetLogger(l *zap.Logger) {
	s.logger = l
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reference_annotations (
			nc_accession VARCHAR,
			nm_hgvs VARCHAR PRIMARY KEY,
			clinical_significance VARCHAR,
			conditions VARCHAR,
			stars TINYINT,
			review_status VARCHAR
		);

		CREATE TABLE IF NOT EXISTS store_metadata (
			last_updated TIMESTAMP
		);
	`)
	return err
}

// loadSnapshot restores the in-memory snapshot from DuckDB.
func (s *Store) loadSnapshot() error {
	rows, err := s.db.Query(`
		SELECT nc_accession, nm_hgvs, clinical_significance, conditions, stars, review_status
		FROM reference_annotations
	`)
	if err != nil {
		return fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	annotations := make(map[string]*ReferenceAnnotation)
	for rows.Next() {
		var a ReferenceAnnotation
		var conditions string
		if err := rows.Scan(&a.NCAccession, &a.NMHGVS, &a.Classification, &conditions, &a.Stars, &a.ReviewStatus); err != nil {
			return fmt.Errorf("scan annotation: %w", err)
		}
		a.Conditions = strings.Split(conditions, "|")
		annotations[a.NMHGVS] = &a
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate annotations: %w", err)
	}

	var lastUpdated time.Time
	err = s.db.QueryRow("SELECT last_updated FROM store_metadata").Scan(&lastUpdated)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query metadata: %w", err)
	}

	s.snap.Store(&snapshot{annotations: annotations, lastUpdated: lastUpdated})
	return nil
}

// Lookup returns the annotation for a transcript HGVS description, exact
// match only. Safe for concurrent use with BulkLoad: callers observe either
// the pre-load or the post-load state, never a partial one.
func (s *Store) Lookup(nmHGVS string) (*ReferenceAnnotation, bool) {
	a, ok := s.snap.Load().annotations[nmHGVS]
	return a, ok
}

// Count returns the number of annotations in the current snapshot.
func (s *Store) Count() int {
	return len(s.snap.Load().annotations)
}

// LastUpdated returns the timestamp of the most recent bulk load, zero if the
// store has never been loaded.
func (s *Store) LastUpdated() time.Time {
	return s.snap.Load().lastUpdated
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}
