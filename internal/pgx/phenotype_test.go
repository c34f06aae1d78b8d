package pgx

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inodb/vibe-pgx/internal/rules"
)

func TestInferPhenotype_Strategies(t *testing.T) {
	r := defaultRule(t, rules.DrugClopidogrel)

	tests := []struct {
		diplotype string
		want      rules.Phenotype
		strategy  string
	}{
		{"*1/*1", rules.PhenotypeNM, StrategyExact},
		{"*1/*2", rules.PhenotypeIM, StrategyExact},
		{"*2/*1", rules.PhenotypeIM, StrategySymmetric},
		{"*17/*1", rules.PhenotypeRM, StrategySymmetric},
		{"*4/*4", rules.PhenotypePM, StrategyHeuristic},
		{"*99/*98", rules.PhenotypeUnknown, StrategyHeuristic},
	}

	for _, tt := range tests {
		t.Run(tt.diplotype, func(t *testing.T) {
			p, name := InferPhenotypeWith(DefaultStrategies(), tt.diplotype, r)
			assert.Equal(t, tt.want, p)
			assert.Equal(t, tt.strategy, name)
			assert.Equal(t, tt.want, InferPhenotype(tt.diplotype, r))
		})
	}
}

func TestInferPhenotype_Symmetry(t *testing.T) {
	for _, drug := range rules.SupportedDrugs {
		r := defaultRule(t, drug)
		for diplotype := range r.PhenotypeMap {
			a1, a2 := splitDiplotype(diplotype)
			assert.Equal(t, InferPhenotype(diplotype, r), InferPhenotype(a2+"/"+a1, r), "%s %s", drug, diplotype)
		}
	}
}

func TestFunctionHeuristic(t *testing.T) {
	tests := []struct {
		diplotype string
		want      rules.Phenotype
	}{
		{"*4/*5", rules.PhenotypePM},
		{"*4/*10", rules.PhenotypePM},
		{"*41/*3", rules.PhenotypePM},
		{"*4/*99", rules.PhenotypeIM},
		{"*99/*9", rules.PhenotypeIM},
		// *17 is listed as reduced before it is considered increased.
		{"*17/*17", rules.PhenotypeIM},
		{"*1/*1", rules.PhenotypeUnknown},
		{"*1", rules.PhenotypeUnknown},
		{"", rules.PhenotypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.diplotype, func(t *testing.T) {
			p, ok := FunctionHeuristic(tt.diplotype, nil)
			assert.True(t, ok)
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestInferPhenotypeWith_CustomChain(t *testing.T) {
	r := defaultRule(t, rules.DrugWarfarin)
	never := Strategy{Name: "never", Infer: func(string, *rules.Rule) (rules.Phenotype, bool) { return "", false }}

	p, name := InferPhenotypeWith([]Strategy{never}, "*1/*1", r)
	assert.Equal(t, rules.PhenotypeUnknown, p)
	assert.Empty(t, name)

	p, name = InferPhenotypeWith([]Strategy{never, {Name: StrategyExact, Infer: ExactLookup}}, "*1/*1", r)
	assert.Equal(t, rules.PhenotypeNM, p)
	assert.Equal(t, StrategyExact, name)
}
