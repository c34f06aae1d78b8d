package duckdb

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goduckdb "github.com/marcboeker/go-duckdb"

	"github.com/inodb/vibe-pgx/internal/analysis"
)

// Run describes one recorded analysis.
type Run struct {
	ID          string
	CreatedAt   time.Time
	SampleID    string
	PatientID   string
	Language    string
	Source      FileFingerprint
	ResultCount int
	ErrorCount  int
}

// Record is a stored clinical output together with the run it belongs to.
type Record struct {
	RunID  string
	Output analysis.ClinicalOutput
}

// WriteRun records a run and batch-inserts its outputs using the Appender API.
// Repeated drugs within one run are deduplicated, keeping the first. The run
// id is generated when empty and returned.
func (s *Store) WriteRun(run Run, report *analysis.Report) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.ResultCount = len(report.Results)
	run.ErrorCount = len(report.Errors)
	if run.PatientID == "" && len(report.Results) > 0 {
		run.PatientID = report.Results[0].PatientID
	}

	if _, err := s.db.Exec(`INSERT INTO analysis_runs VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.SampleID, run.PatientID, run.Language,
		run.Source.Path, run.Source.Size, run.Source.ModTime,
		int64(run.ResultCount), int64(run.ErrorCount),
	); err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if len(report.Results) == 0 {
		return run.ID, nil
	}

	seen := make(map[string]bool, len(report.Results))
	deduped := make([]analysis.ClinicalOutput, 0, len(report.Results))
	for _, out := range report.Results {
		if !seen[out.Drug] {
			seen[out.Drug] = true
			deduped = append(deduped, out)
		}
	}

	if err := s.appendResults(run.ID, deduped); err != nil {
		if _, delErr := s.db.Exec("DELETE FROM analysis_runs WHERE run_id=?", run.ID); delErr != nil {
			return "", fmt.Errorf("%w (removing run %s: %v)", err, run.ID, delErr)
		}
		return "", err
	}
	return run.ID, nil
}

// appendResults batch-inserts outputs for a run using the Appender API.
func (s *Store) appendResults(runID string, outputs []analysis.ClinicalOutput) error {
	conn, err := s.db.Conn(context.Background())
	if err != nil {
		return fmt.Errorf("get connection: %w", err)
	}
	defer conn.Close()

	var appender *goduckdb.Appender
	if err := conn.Raw(func(driverConn any) error {
		var err error
		appender, err = goduckdb.NewAppenderFromConn(driverConn.(driver.Conn), "", "analysis_results")
		return err
	}); err != nil {
		return fmt.Errorf("create appender: %w", err)
	}
	defer appender.Close()

	for _, out := range outputs {
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode output %s: %w", out.Drug, err)
		}
		qm := out.QualityMetrics
		if err := appender.AppendRow(
			runID, out.Drug, out.PatientID,
			out.Profile.PrimaryGene, out.Profile.Diplotype, string(out.Profile.Phenotype),
			string(out.RiskAssessment.RiskLabel), string(out.RiskAssessment.Severity),
			out.RiskAssessment.ConfidenceScore, string(out.Recommendation.CPICLevel),
			int64(qm.VariantCount), qm.MissingDataFlag, qm.LLMFailureFlag,
			out.Timestamp, string(data),
		); err != nil {
			return fmt.Errorf("append result: %w", err)
		}
	}

	if err := appender.Flush(); err != nil {
		return fmt.Errorf("flush results: %w", err)
	}
	return nil
}

// LookupByPatient returns every stored output for a patient, newest first.
func (s *Store) LookupByPatient(patientID string) ([]Record, error) {
	rows, err := s.db.Query(`SELECT run_id, output_json
		FROM analysis_results
		WHERE patient_id=?
		ORDER BY analyzed_at DESC, drug`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query by patient: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// SearchByDrug returns every stored output for a drug, newest first.
func (s *Store) SearchByDrug(drug string) ([]Record, error) {
	rows, err := s.db.Query(`SELECT run_id, output_json
		FROM analysis_results
		WHERE lower(drug)=lower(?)
		ORDER BY analyzed_at DESC, patient_id`, drug)
	if err != nil {
		return nil, fmt.Errorf("query by drug: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// LookupRun returns the outputs recorded for one run, ordered by drug.
func (s *Store) LookupRun(runID string) ([]Record, error) {
	rows, err := s.db.Query(`SELECT run_id, output_json
		FROM analysis_results
		WHERE run_id=?
		ORDER BY drug`, runID)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListRuns returns the most recent runs. A limit of 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	query := `SELECT run_id, created_at, sample_id, patient_id, language,
		source_path, source_size, source_mtime, result_count, error_count
		FROM analysis_runs
		ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var results, errs int64
		if err := rows.Scan(
			&r.ID, &r.CreatedAt, &r.SampleID, &r.PatientID, &r.Language,
			&r.Source.Path, &r.Source.Size, &r.Source.ModTime, &results, &errs,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.ResultCount = int(results)
		r.ErrorCount = int(errs)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ClearHistory removes all recorded runs and results.
func (s *Store) ClearHistory() error {
	if _, err := s.db.Exec("DELETE FROM analysis_results"); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM analysis_runs")
	return err
}

// scanRecords scans (run_id, output_json) rows into records.
func scanRecords(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var data string
		if err := rows.Scan(&rec.RunID, &data); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(data), &rec.Output); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return records, nil
}
