package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
)

// datasetNameRe keeps dataset names usable as file names.
var datasetNameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Manager owns the datasets directory and the open dataset handles. Datasets
// are independent stores; operations on different datasets never contend.
type Manager struct {
	dir    string
	logger *zap.Logger

	mu   sync.Mutex
	open map[string]*Dataset
}

// NewManager creates a manager rooted at dir, creating it if needed.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create datasets directory: %w", err)
	}
	return &Manager{dir: dir, logger: zap.NewNop(), open: make(map[string]*Dataset)}, nil
}

// SetLogger sets the logger used for open and import messages.
func (m *Manager) SetLogger(l *zap.Logger) {
	m.logger = l
}

// CreateOrOpen returns the dataset with the given name, creating its store
// file and schema when it does not exist yet.
func (m *Manager) CreateOrOpen(ctx context.Context, name string) (*Dataset, error) {
	if !datasetNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid dataset name %q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if d, ok := m.open[name]; ok {
		return d, nil
	}

	path := filepath.Join(m.dir, name+".db")
	db, err := openStore(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset %s: %w", name, err)
	}

	d := &Dataset{name: name, path: path, db: db}
	if err := d.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("dataset %s: %w", name, err)
	}

	m.open[name] = d
	m.logger.Debug("dataset opened", zap.String("dataset", name), zap.String("path", path))
	return d, nil
}

// List returns the names of all datasets in the directory, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read datasets directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".db"))
	}
	sort.Strings(names)
	return names, nil
}

// LoadExternal imports an uploaded store file as a new dataset. The store is
// written to a temporary file and its tables are validated against the
// expected schema before it becomes visible; on rejection the file is
// removed and nothing is imported. The auxiliary normalization cache table
// is not required.
func (m *Manager) LoadExternal(ctx context.Context, name string, data []byte) (*Dataset, error) {
	if !datasetNameRe.MatchString(name) {
		return nil, fmt.Errorf("invalid dataset name %q", name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.dir, name+".db")
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("dataset %s already exists", name)
	}

	tmp, err := os.CreateTemp(m.dir, "."+name+"-import-*")
	if err != nil {
		return nil, fmt.Errorf("create import file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("write import file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close import file: %w", err)
	}

	if err := validateStore(ctx, tmpPath); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("install imported dataset: %w", err)
	}

	db, err := openStore(path)
	if err != nil {
		return nil, fmt.Errorf("open imported dataset %s: %w", name, err)
	}

	d := &Dataset{name: name, path: path, db: db}
	m.open[name] = d
	m.logger.Info("dataset imported", zap.String("dataset", name), zap.Int("bytes", len(data)))
	return d, nil
}

// Close closes all open datasets.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for name, d := range m.open {
		if err := d.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.open, name)
	}
	return firstErr
}

func openStore(path string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, path)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = NORMAL;
		PRAGMA foreign_keys = ON;
	`); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// validateStore checks that an imported store carries exactly the expected
// dataset tables and columns.
func validateStore(ctx context.Context, path string) error {
	db, err := openStore(path)
	if err != nil {
		return fmt.Errorf("open import for validation: %w", err)
	}
	defer db.Close()

	tables := []struct {
		name    string
		columns []string
	}{
		{"patient_variant", patientVariantColumns},
		{"variant_annotations", variantAnnotationColumns},
	}
	for _, t := range tables {
		if err := validateColumns(ctx, db, t.name, t.columns); err != nil {
			return err
		}
	}
	return nil
}

func validateColumns(ctx context.Context, db *bun.DB, table string, expected []string) error {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	got := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return fmt.Errorf("inspect table %s: %w", table, err)
		}
		got[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("inspect table %s: %w", table, err)
	}

	schemaErr := &SchemaError{Table: table}
	want := make(map[string]bool, len(expected))
	for _, col := range expected {
		want[col] = true
		if !got[col] {
			schemaErr.Missing = append(schemaErr.Missing, col)
		}
	}
	for col := range got {
		if !want[col] {
			schemaErr.Extra = append(schemaErr.Extra, col)
		}
	}
	sort.Strings(schemaErr.Extra)

	if len(got) == 0 || len(schemaErr.Missing) > 0 || len(schemaErr.Extra) > 0 {
		return schemaErr
	}
	return nil
}
