package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed drug_rules.yaml
var defaultRulesYAML []byte

// Table is an immutable, validated set of drug rules keyed by canonical drug name.
type Table struct {
	rules map[string]*Rule
}

type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// ValidationError describes a malformed rule.
type ValidationError struct {
	Drug    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %s: %s: %s", e.Drug, e.Field, e.Message)
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded rule table. It is parsed and validated once.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Load(bytes.NewReader(defaultRulesYAML))
	})
	return defaultTable, defaultErr
}

// LoadFile loads a rule table from a YAML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	return Load(f)
}

// Load parses and validates a YAML rule table.
func Load(r io.Reader) (*Table, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return NewTable(rf.Rules)
}

// NewTable validates the given rules and builds a table from them.
func NewTable(rules []*Rule) (*Table, error) {
	t := &Table{rules: make(map[string]*Rule, len(rules))}

	var errs []error
	for _, r := range rules {
		if err := Validate(r); err != nil {
			errs = append(errs, err)
			continue
		}
		drug, _ := MatchDrug(r.Drug)
		if _, dup := t.rules[drug]; dup {
			errs = append(errs, &ValidationError{Drug: r.Drug, Field: "drug", Message: "duplicate rule"})
			continue
		}
		t.rules[drug] = r
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return t, nil
}

// Validate checks a rule for internal consistency. Every phenotype must have a
// risk label, a recommendation and monitoring text, since the fallback
// heuristic can produce any phenotype regardless of the diplotype map.
func Validate(r *Rule) error {
	if r == nil {
		return &ValidationError{Field: "rule", Message: "nil rule"}
	}
	if _, ok := MatchDrug(r.Drug); !ok {
		return &ValidationError{Drug: r.Drug, Field: "drug", Message: "not a supported drug"}
	}
	if r.Gene == "" {
		return &ValidationError{Drug: r.Drug, Field: "gene", Message: "required"}
	}
	if len(r.RsIDs) == 0 {
		return &ValidationError{Drug: r.Drug, Field: "rsids", Message: "at least one marker is required"}
	}
	if !r.CPICLevel.Valid() {
		return &ValidationError{Drug: r.Drug, Field: "cpic_level", Message: fmt.Sprintf("invalid level %q", r.CPICLevel)}
	}

	seen := make(map[string]bool, len(r.StarAlleles))
	for _, a := range r.StarAlleles {
		if !strings.HasPrefix(a.Name, "*") {
			return &ValidationError{Drug: r.Drug, Field: "star_alleles", Message: fmt.Sprintf("invalid allele name %q", a.Name)}
		}
		if seen[a.Name] {
			return &ValidationError{Drug: r.Drug, Field: "star_alleles", Message: fmt.Sprintf("duplicate allele %s", a.Name)}
		}
		seen[a.Name] = true
		for _, sig := range a.Signatures {
			rsID, _, ok := ParseSignature(sig)
			if !ok {
				return &ValidationError{Drug: r.Drug, Field: "star_alleles", Message: fmt.Sprintf("malformed signature %q in %s", sig, a.Name)}
			}
			if !r.HasMarker(rsID) {
				return &ValidationError{Drug: r.Drug, Field: "star_alleles", Message: fmt.Sprintf("signature %q uses unknown marker", sig)}
			}
		}
	}

	for diplotype, p := range r.PhenotypeMap {
		if !p.Valid() {
			return &ValidationError{Drug: r.Drug, Field: "phenotype_map", Message: fmt.Sprintf("%s maps to invalid phenotype %q", diplotype, p)}
		}
		if strings.Count(diplotype, "/") != 1 {
			return &ValidationError{Drug: r.Drug, Field: "phenotype_map", Message: fmt.Sprintf("malformed diplotype %q", diplotype)}
		}
	}

	for _, p := range Phenotypes {
		risk, ok := r.RiskMap[p]
		if !ok {
			return &ValidationError{Drug: r.Drug, Field: "risk_map", Message: fmt.Sprintf("missing phenotype %s", p)}
		}
		if !risk.Valid() {
			return &ValidationError{Drug: r.Drug, Field: "risk_map", Message: fmt.Sprintf("invalid risk label %q for %s", risk, p)}
		}
		if r.Recommendations[p] == "" {
			return &ValidationError{Drug: r.Drug, Field: "recommendations", Message: fmt.Sprintf("missing phenotype %s", p)}
		}
		if r.Monitoring[p] == "" {
			return &ValidationError{Drug: r.Drug, Field: "monitoring", Message: fmt.Sprintf("missing phenotype %s", p)}
		}
	}

	return nil
}

// Lookup returns the rule for a canonical drug name.
func (t *Table) Lookup(drug string) (*Rule, bool) {
	r, ok := t.rules[drug]
	return r, ok
}

// Drugs returns the drugs that have rules, in supported-drug order.
func (t *Table) Drugs() []string {
	drugs := make([]string, 0, len(t.rules))
	for _, d := range SupportedDrugs {
		if _, ok := t.rules[d]; ok {
			drugs = append(drugs, d)
		}
	}
	return drugs
}

// Len returns the number of rules in the table.
func (t *Table) Len() int {
	return len(t.rules)
}
