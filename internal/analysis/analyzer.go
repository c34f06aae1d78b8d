// Package analysis runs the pharmacogenomic pipeline for a VCF and a list of
// drugs and assembles clinical outputs.
package analysis

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/inodb/vibe-pgx/internal/pgx"
	"github.com/inodb/vibe-pgx/internal/rules"
	"github.com/inodb/vibe-pgx/internal/vcf"
)

// RuleSource looks up the rule for a canonical drug name.
type RuleSource interface {
	Lookup(drug string) (*rules.Rule, bool)
}

// Analyzer evaluates drugs against a parsed VCF sample.
type Analyzer struct {
	rules   RuleSource
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

// NewAnalyzer creates an analyzer backed by the given rules.
func NewAnalyzer(src RuleSource) *Analyzer {
	return &Analyzer{
		rules:   src,
		workers: 1,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
}

// SetLogger sets the logger for warning and info messages.
func (a *Analyzer) SetLogger(l *zap.Logger) {
	a.logger = l
}

// SetWorkers sets the number of drugs evaluated concurrently.
// If n is 0, runtime.NumCPU() is used.
func (a *Analyzer) SetWorkers(n int) {
	a.workers = n
}

// Run parses the VCF text once and evaluates every requested drug. A VCF
// format error stops the run before any drug is evaluated. Per-drug failures
// are recorded and do not affect other drugs. Results and errors follow the
// order of drugs.
func (a *Analyzer) Run(vcfText string, drugs []string, language string) *Report {
	sample, err := vcf.Parse(vcfText)
	if err != nil {
		return ParseErrorReport(err)
	}

	return a.RunSample(sample, drugs, language)
}

// ParseErrorReport builds the report for a VCF that failed to parse. Format
// errors keep their code; anything else is a generic parse failure.
func ParseErrorReport(err error) *Report {
	var fe *vcf.FormatError
	if errors.As(err, &fe) {
		return &Report{Results: []ClinicalOutput{}, Errors: []*Error{{Code: fe.Code, Message: fe.Message}}}
	}
	return &Report{Results: []ClinicalOutput{}, Errors: []*Error{{Code: CodeVCFParseError, Message: "Failed to parse VCF file."}}}
}

// RunSample evaluates drugs against an already parsed sample.
func (a *Analyzer) RunSample(sample *vcf.Sample, drugs []string, language string) *Report {
	language = normalizeLanguage(language)
	report := &Report{Results: []ClinicalOutput{}, Errors: []*Error{}, SampleID: sample.SampleID}

	workers := a.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(drugs) {
		workers = max(len(drugs), 1)
	}

	items := make(chan WorkItem, len(drugs))
	for i, d := range drugs {
		items <- WorkItem{Seq: i, Drug: strings.TrimSpace(d)}
	}
	close(items)

	results := a.ParallelEvaluate(sample, language, items, workers)
	// The callback never fails, so every result is collected.
	_ = OrderedCollect(results, func(r WorkResult) error {
		if r.Err != nil {
			report.Errors = append(report.Errors, r.Err)
			return nil
		}
		report.Results = append(report.Results, *r.Output)
		return nil
	})

	if len(report.Results) == 0 && len(report.Errors) == 0 {
		report.Errors = append(report.Errors, &Error{
			Code:    CodeNoResults,
			Message: "No pharmacogenomic data found in this VCF for the selected drugs.",
		})
	}

	a.logger.Info("analysis complete",
		zap.String("sample", sample.SampleID),
		zap.Int("drugs", len(drugs)),
		zap.Int("results", len(report.Results)),
		zap.Int("errors", len(report.Errors)))

	return report
}

// Evaluate runs the pipeline for a single drug name.
func (a *Analyzer) Evaluate(sample *vcf.Sample, drugName, language string) (*ClinicalOutput, *Error) {
	drug, ok := rules.MatchDrug(drugName)
	if !ok {
		return nil, &Error{
			Code:    CodeUnsupportedDrug,
			Message: "Drug not supported by current pharmacogenomic engine.",
			Drug:    drugName,
		}
	}

	rule, ok := a.rules.Lookup(drug)
	if !ok {
		return nil, &Error{
			Code:    CodeNoRule,
			Message: fmt.Sprintf("No pharmacogenomic rule found for %s.", drug),
			Drug:    drug,
		}
	}

	out, err := a.evaluateRule(sample, drug, rule, normalizeLanguage(language))
	if err != nil {
		a.logger.Warn("drug analysis failed", zap.String("drug", drug), zap.Error(err))
		return nil, &Error{
			Code:    CodeAnalysisError,
			Message: fmt.Sprintf("Analysis failed for %s: %v", drug, err),
			Drug:    drug,
		}
	}
	return out, nil
}

// evaluateRule converts a panic into an error so one bad rule cannot take
// down the run.
func (a *Analyzer) evaluateRule(sample *vcf.Sample, drug string, rule *rules.Rule, language string) (out *ClinicalOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()

	if rule == nil {
		return nil, errors.New("rule is nil")
	}

	call := pgx.CallStarAlleles(sample.Variants, rule)
	phenotype, strategy := pgx.InferPhenotypeWith(pgx.DefaultStrategies(), call.Diplotype, rule)

	risk, ok := rule.RiskMap[phenotype]
	if !ok {
		return nil, fmt.Errorf("no risk label for phenotype %s", phenotype)
	}
	severity, ok := risk.Severity()
	if !ok {
		return nil, fmt.Errorf("no severity for risk label %q", risk)
	}

	detected := len(call.Detected)
	confidence := pgx.Confidence(pgx.ConfidenceFactors{
		ExpectedMarkers: len(rule.RsIDs),
		DetectedMarkers: detected,
		Phenotype:       phenotype,
		PartialAlleles:  call.Partial,
	})

	a.logger.Debug("drug evaluated",
		zap.String("drug", drug),
		zap.String("gene", rule.Gene),
		zap.String("diplotype", call.Diplotype),
		zap.String("phenotype", string(phenotype)),
		zap.String("strategy", strategy),
		zap.Float64("confidence", confidence))

	variants := call.Detected
	if variants == nil {
		variants = []pgx.DetectedVariant{}
	}
	alternatives := rule.Alternatives
	if alternatives == nil {
		alternatives = []string{}
	}

	out = &ClinicalOutput{
		PatientID:         PatientID(sample.SampleID),
		Drug:              drug,
		Timestamp:         a.now().UTC(),
		PreferredLanguage: language,
		RiskAssessment: RiskAssessment{
			RiskLabel:       risk,
			ConfidenceScore: confidence,
			Severity:        severity,
		},
		Profile: PharmacogenomicProfile{
			PrimaryGene:      rule.Gene,
			Diplotype:        call.Diplotype,
			Phenotype:        phenotype,
			DetectedVariants: variants,
		},
		Recommendation: ClinicalRecommendation{
			CPICLevel:             rule.CPICLevel,
			RecommendationSummary: rule.Recommendations[phenotype],
			AlternativeDrugs:      alternatives,
			MonitoringGuidance:    rule.Monitoring[phenotype],
		},
		QualityMetrics: QualityMetrics{
			VCFParsingSuccess:          true,
			StarAlleleDetectionSuccess: detected > 0,
			PhenotypeAssignmentSuccess: phenotype != rules.PhenotypeUnknown,
			DrugRuleApplied:            true,
			VariantCount:               detected,
			MissingDataFlag:            detected < len(rule.RsIDs),
		},
	}
	out.Explanation = TemplateExplanation(ExplanationRequestFor(out), call.Diplotype)

	return out, nil
}
