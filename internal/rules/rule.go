// Package rules holds the drug-gene pharmacogenomic rule table.
package rules

import "strings"

// Phenotype is a metabolizer status.
type Phenotype string

// Metabolizer phenotypes.
const (
	PhenotypePM      Phenotype = "PM"  // poor metabolizer
	PhenotypeIM      Phenotype = "IM"  // intermediate metabolizer
	PhenotypeNM      Phenotype = "NM"  // normal metabolizer
	PhenotypeRM      Phenotype = "RM"  // rapid metabolizer
	PhenotypeURM     Phenotype = "URM" // ultrarapid metabolizer
	PhenotypeUnknown Phenotype = "Unknown"
)

// Phenotypes lists every phenotype value in a fixed order.
var Phenotypes = []Phenotype{
	PhenotypePM, PhenotypeIM, PhenotypeNM, PhenotypeRM, PhenotypeURM, PhenotypeUnknown,
}

// Valid reports whether p is one of the known phenotypes.
func (p Phenotype) Valid() bool {
	for _, known := range Phenotypes {
		if p == known {
			return true
		}
	}
	return false
}

// Activity describes enzyme activity for the phenotype in plain words.
func (p Phenotype) Activity() string {
	switch p {
	case PhenotypePM:
		return "absent/significantly reduced"
	case PhenotypeIM:
		return "reduced"
	case PhenotypeNM:
		return "normal"
	case PhenotypeRM:
		return "increased"
	case PhenotypeURM:
		return "greatly increased"
	default:
		return "uncertain"
	}
}

// RiskLabel is the clinical risk classification of a drug for a phenotype.
type RiskLabel string

// Risk labels.
const (
	RiskSafe            RiskLabel = "Safe"
	RiskAdjustDosage    RiskLabel = "Adjust Dosage"
	RiskMonitorClosely  RiskLabel = "Monitor Closely"
	RiskToxic           RiskLabel = "Toxic"
	RiskContraindicated RiskLabel = "Contraindicated"
)

// Severity is the severity tier of a risk label.
type Severity string

// Severity tiers.
const (
	SeverityNone     Severity = "none"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityByRisk = map[RiskLabel]Severity{
	RiskSafe:            SeverityNone,
	RiskAdjustDosage:    SeverityModerate,
	RiskMonitorClosely:  SeverityModerate,
	RiskToxic:           SeverityHigh,
	RiskContraindicated: SeverityCritical,
}

// Severity returns the severity tier of the risk label.
func (r RiskLabel) Severity() (Severity, bool) {
	s, ok := severityByRisk[r]
	return s, ok
}

// Valid reports whether r is one of the known risk labels.
func (r RiskLabel) Valid() bool {
	_, ok := severityByRisk[r]
	return ok
}

// CPICLevel is the CPIC evidence level of a guideline.
type CPICLevel string

// Valid reports whether the level is one of A-D.
func (l CPICLevel) Valid() bool {
	switch l {
	case "A", "B", "C", "D":
		return true
	}
	return false
}

// Supported drug names, in display order.
const (
	DrugCodeine        = "Codeine"
	DrugClopidogrel    = "Clopidogrel"
	DrugWarfarin       = "Warfarin"
	DrugMercaptopurine = "Mercaptopurine"
	DrugAzathioprine   = "Azathioprine"
	DrugSimvastatin    = "Simvastatin"
)

// SupportedDrugs is the fixed drug vocabulary.
var SupportedDrugs = []string{
	DrugCodeine, DrugClopidogrel, DrugWarfarin, DrugMercaptopurine, DrugAzathioprine, DrugSimvastatin,
}

// MatchDrug matches a free-text drug name case-insensitively against the
// supported vocabulary and returns the canonical name.
func MatchDrug(name string) (string, bool) {
	name = strings.TrimSpace(name)
	for _, d := range SupportedDrugs {
		if strings.EqualFold(d, name) {
			return d, true
		}
	}
	return "", false
}

// StarAllele is a named haplotype defined by marker genotype signatures.
type StarAllele struct {
	Name string `yaml:"name"`
	// Signatures are "rsID:expectedGenotype" strings, e.g. "rs4244285:GA".
	Signatures []string `yaml:"signatures"`
}

// Rule is the pharmacogenomic rule for one drug.
type Rule struct {
	Drug            string                  `yaml:"drug"`
	Gene            string                  `yaml:"gene"`
	RsIDs           []string                `yaml:"rsids"`
	StarAlleles     []StarAllele            `yaml:"star_alleles"`
	PhenotypeMap    map[string]Phenotype    `yaml:"phenotype_map"`
	RiskMap         map[Phenotype]RiskLabel `yaml:"risk_map"`
	CPICLevel       CPICLevel               `yaml:"cpic_level"`
	Recommendations map[Phenotype]string    `yaml:"recommendations"`
	Alternatives    []string                `yaml:"alternatives"`
	Monitoring      map[Phenotype]string    `yaml:"monitoring"`
}

// HasMarker reports whether rsID is one of the rule's markers.
func (r *Rule) HasMarker(rsID string) bool {
	for _, id := range r.RsIDs {
		if id == rsID {
			return true
		}
	}
	return false
}

// ParseSignature splits an "rsID:genotype" signature.
func ParseSignature(sig string) (rsID, genotype string, ok bool) {
	rsID, genotype, ok = strings.Cut(sig, ":")
	if !ok || rsID == "" || genotype == "" {
		return "", "", false
	}
	return rsID, genotype, true
}
