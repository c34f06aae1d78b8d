// Package output provides clinical report formatters.
package output

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/inodb/vibe-pgx/internal/analysis"
)

// TabWriter writes clinical outputs in tab-delimited format, one row per drug.
type TabWriter struct {
	w       *bufio.Writer
	columns []string
}

// NewTabWriter creates a new tab-delimited writer.
func NewTabWriter(w io.Writer) *TabWriter {
	return &TabWriter{
		w: bufio.NewWriter(w),
		columns: []string{
			"#Patient_ID",
			"Drug",
			"Gene",
			"Diplotype",
			"Phenotype",
			"Risk_Label",
			"Severity",
			"Confidence",
			"CPIC_Level",
			"Variant_Count",
			"Missing_Data",
			"Detected_Variants",
			"Recommendation",
		},
	}
}

// WriteHeader writes the header line.
func (tw *TabWriter) WriteHeader() error {
	_, err := tw.w.WriteString(strings.Join(tw.columns, "\t") + "\n")
	return err
}

// Write writes a single clinical output.
func (tw *TabWriter) Write(out *analysis.ClinicalOutput) error {
	detected := "-"
	if len(out.Profile.DetectedVariants) > 0 {
		parts := make([]string, len(out.Profile.DetectedVariants))
		for i, v := range out.Profile.DetectedVariants {
			parts[i] = v.RsID + ":" + v.Genotype
		}
		detected = strings.Join(parts, ",")
	}

	missing := "-"
	if out.QualityMetrics.MissingDataFlag {
		missing = "YES"
	}

	values := []string{
		out.PatientID,
		out.Drug,
		orDash(out.Profile.PrimaryGene),
		orDash(out.Profile.Diplotype),
		string(out.Profile.Phenotype),
		string(out.RiskAssessment.RiskLabel),
		string(out.RiskAssessment.Severity),
		strconv.FormatFloat(out.RiskAssessment.ConfidenceScore, 'f', 2, 64),
		orDash(string(out.Recommendation.CPICLevel)),
		strconv.Itoa(out.QualityMetrics.VariantCount),
		missing,
		detected,
		orDash(sanitize(out.Recommendation.RecommendationSummary)),
	}

	_, err := tw.w.WriteString(strings.Join(values, "\t") + "\n")
	return err
}

// WriteError writes an error as a comment line so the table stays parseable.
func (tw *TabWriter) WriteError(e *analysis.Error) error {
	line := fmt.Sprintf("## ERROR\t%s\t%s\t%s\n", e.Code, orDash(e.Drug), sanitize(e.Message))
	_, err := tw.w.WriteString(line)
	return err
}

// WriteReport writes the header, every result and every error.
func (tw *TabWriter) WriteReport(r *analysis.Report) error {
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for i := range r.Results {
		if err := tw.Write(&r.Results[i]); err != nil {
			return err
		}
	}
	for _, e := range r.Errors {
		if err := tw.WriteError(e); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes any buffered data to the underlying writer.
func (tw *TabWriter) Flush() error {
	return tw.w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// sanitize keeps free text on one table cell.
func sanitize(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}
