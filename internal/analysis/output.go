package analysis

import (
	"regexp"
	"strings"
	"time"

	"github.com/inodb/vibe-pgx/internal/pgx"
	"github.com/inodb/vibe-pgx/internal/rules"
)

// ClinicalOutput is the structured result for one (patient, drug) pair.
type ClinicalOutput struct {
	PatientID         string                 `json:"patient_id"`
	Drug              string                 `json:"drug"`
	Timestamp         time.Time              `json:"timestamp"`
	PreferredLanguage string                 `json:"preferred_language"`
	RiskAssessment    RiskAssessment         `json:"risk_assessment"`
	Profile           PharmacogenomicProfile `json:"pharmacogenomic_profile"`
	Recommendation    ClinicalRecommendation `json:"clinical_recommendation"`
	Explanation       Explanation            `json:"llm_generated_explanation"`
	QualityMetrics    QualityMetrics         `json:"quality_metrics"`
}

// RiskAssessment is the risk classification of the drug.
type RiskAssessment struct {
	RiskLabel       rules.RiskLabel `json:"risk_label"`
	ConfidenceScore float64         `json:"confidence_score"`
	Severity        rules.Severity  `json:"severity"`
}

// PharmacogenomicProfile is the genotype-derived part of the result.
type PharmacogenomicProfile struct {
	PrimaryGene      string                `json:"primary_gene"`
	Diplotype        string                `json:"diplotype"`
	Phenotype        rules.Phenotype       `json:"phenotype"`
	DetectedVariants []pgx.DetectedVariant `json:"detected_variants"`
}

// ClinicalRecommendation carries guideline text for the phenotype.
type ClinicalRecommendation struct {
	CPICLevel             rules.CPICLevel `json:"cpic_level"`
	RecommendationSummary string          `json:"recommendation_summary"`
	AlternativeDrugs      []string        `json:"alternative_drugs"`
	MonitoringGuidance    string          `json:"monitoring_guidance"`
}

// Explanation is the human-readable explanation of a result.
type Explanation struct {
	Summary             string `json:"summary"`
	DetailedExplanation string `json:"detailed_explanation"`
	Mechanism           string `json:"mechanism"`
	PatientSummary      string `json:"patient_summary,omitempty"`
}

// QualityMetrics records which pipeline stages succeeded.
type QualityMetrics struct {
	VCFParsingSuccess          bool `json:"vcf_parsing_success"`
	StarAlleleDetectionSuccess bool `json:"star_allele_detection_success"`
	PhenotypeAssignmentSuccess bool `json:"phenotype_assignment_success"`
	DrugRuleApplied            bool `json:"drug_rule_applied"`
	VariantCount               int  `json:"variant_count"`
	MissingDataFlag            bool `json:"missing_data_flag"`
	// LLMFailureFlag is set when a remote explanation was requested and failed.
	LLMFailureFlag bool `json:"llm_failure_flag"`
}

// Report is the outcome of one analysis run. Results and Errors are
// independent; a run can have both.
type Report struct {
	Results []ClinicalOutput `json:"results"`
	Errors  []*Error         `json:"errors"`
	// SampleID is the VCF sample the run analyzed; empty when parsing failed.
	SampleID string `json:"-"`
}

// Success reports whether the run produced no errors.
func (r *Report) Success() bool {
	return len(r.Errors) == 0
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// PatientID derives the patient identifier from a VCF sample id.
func PatientID(sampleID string) string {
	return "PATIENT_" + strings.ToUpper(nonAlphanumeric.ReplaceAllString(sampleID, "_"))
}
