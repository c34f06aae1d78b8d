package output

import (
	"encoding/json"
	"io"

	"github.com/inodb/vibe-pgx/internal/analysis"
)

// JSONReport is the serialized form of an analysis run.
type JSONReport struct {
	RunID   string                    `json:"run_id,omitempty"`
	Results []analysis.ClinicalOutput `json:"results"`
	Errors  []*analysis.Error         `json:"errors"`
	Success bool                      `json:"success"`
}

// NewJSONReport wraps a report for serialization.
func NewJSONReport(r *analysis.Report, runID string) JSONReport {
	results := r.Results
	if results == nil {
		results = []analysis.ClinicalOutput{}
	}
	errs := r.Errors
	if errs == nil {
		errs = []*analysis.Error{}
	}
	return JSONReport{
		RunID:   runID,
		Results: results,
		Errors:  errs,
		Success: r.Success(),
	}
}

// WriteJSON writes the report as indented JSON.
func WriteJSON(w io.Writer, r *analysis.Report, runID string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewJSONReport(r, runID))
}
