package pgx

import (
	"strings"

	"github.com/inodb/vibe-pgx/internal/rules"
)

// Strategy is one step of phenotype inference. Infer reports false when the
// strategy has no answer, so the next strategy is tried.
type Strategy struct {
	Name  string
	Infer func(diplotype string, rule *rules.Rule) (rules.Phenotype, bool)
}

// Strategy names.
const (
	StrategyExact     = "exact"
	StrategySymmetric = "symmetric"
	StrategyHeuristic = "heuristic"
)

// Allele function classes used by the heuristic. These are shared by every
// gene, so e.g. *17 counts as reduced and increased alike. It is a coarse
// approximation, only reached when the rule's diplotype map has no entry.
var (
	lossOfFunction = map[string]bool{
		"*2": true, "*3": true, "*3A": true, "*3B": true, "*3C": true,
		"*4": true, "*5": true, "*6": true,
	}
	reducedFunction = map[string]bool{
		"*9": true, "*10": true, "*17": true, "*41": true,
	}
	increasedFunction = map[string]bool{
		"*17": true,
	}
)

// ExactLookup finds the diplotype as written in the rule's map.
func ExactLookup(diplotype string, rule *rules.Rule) (rules.Phenotype, bool) {
	p, ok := rule.PhenotypeMap[diplotype]
	return p, ok
}

// SymmetricLookup finds the diplotype with its alleles swapped.
func SymmetricLookup(diplotype string, rule *rules.Rule) (rules.Phenotype, bool) {
	a1, a2 := splitDiplotype(diplotype)
	p, ok := rule.PhenotypeMap[a2+"/"+a1]
	return p, ok
}

// FunctionHeuristic classifies each allele by a fixed function class. It
// always answers, falling back to Unknown.
func FunctionHeuristic(diplotype string, _ *rules.Rule) (rules.Phenotype, bool) {
	a1, a2 := splitDiplotype(diplotype)

	switch {
	case lossOfFunction[a1] && lossOfFunction[a2]:
		return rules.PhenotypePM, true
	case lossOfFunction[a1] && reducedFunction[a2], reducedFunction[a1] && lossOfFunction[a2]:
		return rules.PhenotypePM, true
	case lossOfFunction[a1] || lossOfFunction[a2] || reducedFunction[a1] || reducedFunction[a2]:
		return rules.PhenotypeIM, true
	case increasedFunction[a1] && increasedFunction[a2]:
		return rules.PhenotypeURM, true
	case increasedFunction[a1] || increasedFunction[a2]:
		return rules.PhenotypeRM, true
	}
	return rules.PhenotypeUnknown, true
}

// DefaultStrategies returns the inference chain: exact, symmetric, heuristic.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: StrategyExact, Infer: ExactLookup},
		{Name: StrategySymmetric, Infer: SymmetricLookup},
		{Name: StrategyHeuristic, Infer: FunctionHeuristic},
	}
}

// InferPhenotype maps a diplotype to a phenotype using the default strategies.
func InferPhenotype(diplotype string, rule *rules.Rule) rules.Phenotype {
	p, _ := InferPhenotypeWith(DefaultStrategies(), diplotype, rule)
	return p
}

// InferPhenotypeWith runs the strategies in order and returns the first answer
// together with the name of the strategy that produced it.
func InferPhenotypeWith(strategies []Strategy, diplotype string, rule *rules.Rule) (rules.Phenotype, string) {
	for _, s := range strategies {
		if p, ok := s.Infer(diplotype, rule); ok {
			return p, s.Name
		}
	}
	return rules.PhenotypeUnknown, ""
}

// splitDiplotype splits "X/Y"; a missing half is the baseline allele.
func splitDiplotype(diplotype string) (string, string) {
	a1, a2, _ := strings.Cut(diplotype, "/")
	if a1 == "" {
		a1 = BaselineAllele
	}
	if a2 == "" {
		a2 = BaselineAllele
	}
	return a1, a2
}
