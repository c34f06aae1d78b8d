// Package duckdb stores analysis history in DuckDB.
// Each run is one row in analysis_runs; its per-drug outputs are appended
// to analysis_results (queryable, append-only).
package duckdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store manages a DuckDB connection for analysis history.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database path, empty for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// ensureSchema creates tables if they don't exist.
func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS analysis_runs (
		run_id VARCHAR PRIMARY KEY,
		created_at TIMESTAMP,
		sample_id VARCHAR,
		patient_id VARCHAR,
		language VARCHAR,
		source_path VARCHAR,
		source_size BIGINT,
		source_mtime TIMESTAMP,
		result_count BIGINT,
		error_count BIGINT
	)`); err != nil {
		return err
	}

	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS analysis_results (
		run_id VARCHAR,
		drug VARCHAR,
		patient_id VARCHAR,
		gene VARCHAR,
		diplotype VARCHAR,
		phenotype VARCHAR,
		risk_label VARCHAR,
		severity VARCHAR,
		confidence DOUBLE,
		cpic_level VARCHAR,
		variant_count BIGINT,
		missing_data BOOLEAN,
		llm_failure BOOLEAN,
		analyzed_at TIMESTAMP,
		output_json VARCHAR,
		PRIMARY KEY (run_id, drug)
	)`)
	return err
}
