package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/inodb/vibe-pgx/internal/analysis"
	"github.com/inodb/vibe-pgx/internal/duckdb"
	"github.com/inodb/vibe-pgx/internal/output"
	"github.com/inodb/vibe-pgx/internal/vcf"
)

type analyzeOptions struct {
	drugs        string
	language     string
	outputFormat string
	outputFile   string
	explain      bool
	history      bool
}

func (a *app) newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions

	cmd := &cobra.Command{
		Use:   "analyze [vcf-file]",
		Short: "Analyze a VCF for drug-gene interactions",
		Long: `Analyze a single-sample VCF (use '-' for stdin) against the drug rules.

Without --drugs every supported drug is analyzed. Without a VCF, --drugs is
required and a homozygous-reference genotype is assumed.`,
		Example: `  vibe-pgx analyze sample.vcf
  vibe-pgx analyze --drugs "Codeine, Clopidogrel" --language hi-IN sample.vcf
  vibe-pgx analyze -f tab -o report.tsv sample.vcf
  cat sample.vcf | vibe-pgx analyze --history -`,
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.drugs, "drugs", "d", "", "Comma-separated drug names (default: all supported drugs)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Output language code (default: analysis.language)")
	cmd.Flags().StringVarP(&opts.outputFormat, "output-format", "f", "json", "Output format: json, tab")
	cmd.Flags().StringVarP(&opts.outputFile, "output", "o", "", "Output file (default: stdout)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Fetch explanations from the configured explanation service")
	cmd.Flags().BoolVar(&opts.history, "history", false, "Record the run in the history database")

	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, args []string, opts analyzeOptions) error {
	language := opts.language
	if language == "" {
		language = a.cfg.Analysis.Language
	}
	if e := analysis.ValidateLanguage(language); e != nil {
		return &usageError{err: e}
	}
	if opts.outputFormat != "json" && opts.outputFormat != "tab" {
		return usagef("unknown output format %q", opts.outputFormat)
	}

	drugs, e := analysis.ParseDrugList(opts.drugs)
	if e != nil {
		return &usageError{err: e}
	}
	drugs, e = analysis.DrugsToProcess(drugs, len(args) == 1)
	if e != nil {
		return &usageError{err: e}
	}

	var (
		sample   *vcf.Sample
		source   duckdb.FileFingerprint
		parseErr error
	)
	if len(args) == 1 {
		var err error
		sample, source, err = readVCF(cmd.InOrStdin(), args[0])
		var fe *vcf.FormatError
		if errors.As(err, &fe) {
			parseErr = err
		} else if err != nil {
			return err
		}
	}

	analyzer, _, err := a.newAnalyzer()
	if err != nil {
		return err
	}
	explainer, err := a.newExplainer(opts.explain)
	if err != nil {
		return err
	}

	var report *analysis.Report
	switch {
	case parseErr != nil:
		report = analysis.ParseErrorReport(parseErr)
	case sample != nil:
		report = analyzer.RunSample(sample, drugs, language)
	default:
		report = analyzer.Run(analysis.SyntheticVCF, drugs, language)
	}
	analyzer.Enrich(cmd.Context(), report, explainer)

	var runID string
	if report.SampleID != "" {
		runID, err = a.recordRun(opts.history, report, language, source)
		if err != nil {
			a.logger.Warn("history write failed", zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	if opts.outputFile != "" {
		f, err := os.Create(opts.outputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := writeReport(out, opts.outputFormat, report, runID); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if len(report.Results) == 0 {
		return errors.New("analysis produced no results")
	}
	return nil
}

// readVCF parses the VCF at path, or stdin for "-". Format errors are
// returned unwrapped so the caller can report them.
func readVCF(stdin io.Reader, path string) (*vcf.Sample, duckdb.FileFingerprint, error) {
	if path == "-" {
		cr := &countingReader{r: stdin}
		sample, err := vcf.ParseReader(cr)
		if err != nil {
			return nil, duckdb.FileFingerprint{}, wrapRead(err)
		}
		return sample, duckdb.UploadFingerprint("-", cr.n), nil
	}

	sample, err := vcf.ReadFile(path)
	if err != nil {
		return nil, duckdb.FileFingerprint{}, wrapRead(err)
	}
	fp, err := duckdb.StatFile(path)
	if err != nil {
		return nil, duckdb.FileFingerprint{}, err
	}
	return sample, fp, nil
}

func wrapRead(err error) error {
	var fe *vcf.FormatError
	if errors.As(err, &fe) {
		return err
	}
	return fmt.Errorf("reading VCF: %w", err)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// recordRun writes the run to history when enabled and returns its id.
func (a *app) recordRun(force bool, report *analysis.Report, language string, source duckdb.FileFingerprint) (string, error) {
	store, err := a.openHistory(force)
	if err != nil || store == nil {
		return "", err
	}
	defer store.Close()

	id, err := store.WriteRun(duckdb.Run{
		SampleID: report.SampleID,
		Language: language,
		Source:   source,
	}, report)
	if err != nil {
		return "", err
	}
	a.logger.Info("run recorded", zap.String("run_id", id), zap.String("db", store.Path()))
	return id, nil
}

func writeReport(w io.Writer, format string, report *analysis.Report, runID string) error {
	if format == "json" {
		return output.WriteJSON(w, report, runID)
	}
	tw := output.NewTabWriter(w)
	if err := tw.WriteReport(report); err != nil {
		return err
	}
	return tw.Flush()
}
