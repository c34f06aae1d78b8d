package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/inodb/vibe-pgx/internal/analysis"
	"github.com/inodb/vibe-pgx/internal/duckdb"
	"github.com/inodb/vibe-pgx/internal/output"
)

type historyOptions struct {
	patient      string
	drug         string
	runID        string
	listRuns     bool
	limit        int
	clear        bool
	outputFormat string
}

func (a *app) newHistoryCmd() *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded analyses",
		Long:  "Query the DuckDB history of analyses recorded with --history or history.enabled.",
		Example: `  vibe-pgx history --runs
  vibe-pgx history --patient PATIENT_NA12878
  vibe-pgx history --drug warfarin -f json`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runHistory(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.patient, "patient", "", "Show results for a patient id")
	cmd.Flags().StringVar(&opts.drug, "drug", "", "Show results for a drug")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Show results of one run")
	cmd.Flags().BoolVar(&opts.listRuns, "runs", false, "List recorded runs")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Delete all recorded history")
	cmd.Flags().StringVarP(&opts.outputFormat, "output-format", "f", "tab", "Output format: tab, json")
	cmd.MarkFlagsMutuallyExclusive("patient", "drug", "run", "runs", "clear")

	return cmd
}

func (a *app) runHistory(out io.Writer, opts historyOptions) error {
	if opts.patient == "" && opts.drug == "" && opts.runID == "" && !opts.listRuns && !opts.clear {
		return usagef("one of --patient, --drug, --run, --runs or --clear is required")
	}
	if opts.outputFormat != "json" && opts.outputFormat != "tab" {
		return usagef("unknown output format %q", opts.outputFormat)
	}

	store, err := a.openHistory(true)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case opts.clear:
		if err := store.ClearHistory(); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		fmt.Fprintf(out, "Cleared history in %s\n", store.Path())
		return nil
	case opts.listRuns:
		runs, err := store.ListRuns(opts.limit)
		if err != nil {
			return err
		}
		return writeRuns(out, opts.outputFormat, runs)
	}

	var records []duckdb.Record
	switch {
	case opts.patient != "":
		records, err = store.LookupByPatient(opts.patient)
	case opts.drug != "":
		records, err = store.SearchByDrug(opts.drug)
	default:
		records, err = store.LookupRun(opts.runID)
	}
	if err != nil {
		return err
	}
	return writeRecords(out, opts.outputFormat, records)
}

type historyEntry struct {
	RunID  string                  `json:"run_id"`
	Result analysis.ClinicalOutput `json:"result"`
}

func writeRecords(w io.Writer, format string, records []duckdb.Record) error {
	if format == "json" {
		entries := make([]historyEntry, len(records))
		for i, r := range records {
			entries[i] = historyEntry{RunID: r.RunID, Result: r.Output}
		}
		return writeIndentedJSON(w, entries)
	}

	tw := output.NewTabWriter(w)
	if err := tw.WriteHeader(); err != nil {
		return err
	}
	for i := range records {
		if err := tw.Write(&records[i].Output); err != nil {
			return err
		}
	}
	return tw.Flush()
}

type runEntry struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	SampleID    string    `json:"sample_id"`
	PatientID   string    `json:"patient_id"`
	Language    string    `json:"language"`
	Source      string    `json:"source"`
	ResultCount int       `json:"result_count"`
	ErrorCount  int       `json:"error_count"`
}

func writeRuns(w io.Writer, format string, runs []duckdb.Run) error {
	entries := make([]runEntry, len(runs))
	for i, r := range runs {
		entries[i] = runEntry{
			RunID:       r.ID,
			CreatedAt:   r.CreatedAt,
			SampleID:    r.SampleID,
			PatientID:   r.PatientID,
			Language:    r.Language,
			Source:      r.Source.Path,
			ResultCount: r.ResultCount,
			ErrorCount:  r.ErrorCount,
		}
	}
	if format == "json" {
		return writeIndentedJSON(w, entries)
	}

	fmt.Fprintln(w, "#Run_ID\tCreated\tSample_ID\tPatient_ID\tLanguage\tSource\tResults\tErrors")
	for _, e := range entries {
		source := e.Source
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.RunID, e.CreatedAt.UTC().Format(time.RFC3339), e.SampleID, e.PatientID, e.Language,
			source, strconv.Itoa(e.ResultCount), strconv.Itoa(e.ErrorCount))
	}
	return nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
