package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inodb/vibe-pgx/internal/rules"
)

// ExplanationRequest is the per-drug input of an explanation.
type ExplanationRequest struct {
	Drug              string  `json:"drug"`
	Gene              string  `json:"gene"`
	Phenotype         string  `json:"phenotype"`
	RiskLabel         string  `json:"risk_label"`
	Severity          string  `json:"severity"`
	ConfidenceScore   float64 `json:"confidence_score"`
	CPICLevel         string  `json:"cpic_level"`
	PreferredLanguage string  `json:"preferred_language"`
}

// Validate checks required fields, the confidence range and the language.
func (r *ExplanationRequest) Validate() error {
	required := []struct{ name, value string }{
		{"drug", r.Drug},
		{"gene", r.Gene},
		{"phenotype", r.Phenotype},
		{"risk_label", r.RiskLabel},
		{"severity", r.Severity},
		{"cpic_level", r.CPICLevel},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return errors.New("confidence_score must be between 0 and 1")
	}
	if !ValidLanguage(r.PreferredLanguage) {
		return fmt.Errorf("unsupported preferred_language %q", r.PreferredLanguage)
	}
	return nil
}

// ExplanationRequestFor builds the explanation request for a result.
func ExplanationRequestFor(out *ClinicalOutput) ExplanationRequest {
	return ExplanationRequest{
		Drug:              out.Drug,
		Gene:              out.Profile.PrimaryGene,
		Phenotype:         string(out.Profile.Phenotype),
		RiskLabel:         string(out.RiskAssessment.RiskLabel),
		Severity:          string(out.RiskAssessment.Severity),
		ConfidenceScore:   out.RiskAssessment.ConfidenceScore,
		CPICLevel:         string(out.Recommendation.CPICLevel),
		PreferredLanguage: out.PreferredLanguage,
	}
}

// TemplateExplanation renders the built-in explanation. diplotype may be empty.
func TemplateExplanation(req ExplanationRequest, diplotype string) Explanation {
	phenotype := rules.Phenotype(req.Phenotype)

	var detail strings.Builder
	if diplotype != "" {
		fmt.Fprintf(&detail, "Patient carries %s diplotype in %s, classified as %s. ", diplotype, req.Gene, req.Phenotype)
	} else {
		fmt.Fprintf(&detail, "Patient is classified as %s for %s. ", req.Phenotype, req.Gene)
	}
	fmt.Fprintf(&detail, "This affects the metabolism of %s, resulting in a %s risk classification with %s severity. CPIC Level %s evidence supports this recommendation.",
		req.Drug, strings.ToLower(req.RiskLabel), req.Severity, req.CPICLevel)

	return Explanation{
		Summary:             fmt.Sprintf("%s phenotype detected for %s. %s risk for %s.", req.Phenotype, req.Gene, req.RiskLabel, req.Drug),
		DetailedExplanation: detail.String(),
		Mechanism: fmt.Sprintf("%s enzyme activity is %s in %s phenotype, directly impacting the pharmacokinetic processing of %s.",
			req.Gene, phenotype.Activity(), req.Phenotype, req.Drug),
	}
}

// Explainer produces a richer explanation, typically from a remote service.
type Explainer interface {
	Explain(ctx context.Context, req ExplanationRequest) (*Explanation, error)
}

const quotaExceededMessage = "Explanation service quota exceeded. Built-in explanations were used."

// Enrich replaces the template explanation of each result with the
// explainer's text. A failed call keeps the template and sets the result's
// LLM failure flag. Once the quota is exhausted no further calls are made and
// a single LLM_QUOTA_EXCEEDED error is added to the report.
func (a *Analyzer) Enrich(ctx context.Context, report *Report, ex Explainer) {
	if ex == nil {
		return
	}

	quotaExceeded := false
	for i := range report.Results {
		out := &report.Results[i]
		if quotaExceeded {
			out.QualityMetrics.LLMFailureFlag = true
			continue
		}

		exp, err := ex.Explain(ctx, ExplanationRequestFor(out))
		if err != nil {
			out.QualityMetrics.LLMFailureFlag = true
			if errors.Is(err, ErrQuotaExceeded) {
				quotaExceeded = true
				a.logger.Warn("explanation quota exceeded", zap.String("drug", out.Drug))
				continue
			}
			a.logger.Warn("falling back to built-in explanation", zap.String("drug", out.Drug), zap.Error(err))
			continue
		}

		out.Explanation = mergeExplanation(out.Explanation, exp)
		out.QualityMetrics.LLMFailureFlag = false
	}

	if quotaExceeded {
		report.Errors = append(report.Errors, &Error{Code: CodeLLMQuotaExceeded, Message: quotaExceededMessage})
	}
}

// mergeExplanation keeps template fields the remote explanation left empty.
func mergeExplanation(base Explanation, remote *Explanation) Explanation {
	if remote == nil {
		return base
	}
	if remote.Summary != "" {
		base.Summary = remote.Summary
	}
	if remote.DetailedExplanation != "" {
		base.DetailedExplanation = remote.DetailedExplanation
	}
	if remote.Mechanism != "" {
		base.Mechanism = remote.Mechanism
	}
	if remote.PatientSummary != "" {
		base.PatientSummary = remote.PatientSummary
	}
	return base
}
