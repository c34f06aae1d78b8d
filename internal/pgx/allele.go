// Package pgx implements star-allele calling, phenotype inference and
// confidence scoring against a drug-gene rule.
package pgx

import (
	"sort"
	"strings"

	"github.com/inodb/vibe-pgx/internal/rules"
	"github.com/inodb/vibe-pgx/internal/vcf"
)

// BaselineAllele is the reference haplotype assumed when nothing else is called.
const BaselineAllele = "*1"

// DetectedVariant is a rule marker found in the sample.
type DetectedVariant struct {
	RsID       string `json:"rsid"`
	Chromosome string `json:"chromosome"`
	Position   string `json:"position"`
	Genotype   string `json:"genotype"`
}

// AlleleCall is the diplotype called for one gene.
type AlleleCall struct {
	Diplotype string
	Allele1   string
	Allele2   string
	Detected  []DetectedVariant
	// Partial is set when the call rests on incomplete marker evidence.
	Partial bool
}

type alleleScore struct {
	name  string
	score float64
}

// CallStarAlleles matches sample variants against the rule's star-allele
// signatures. Alleles are ranked by the fraction of their signatures that
// match; ties keep declaration order.
func CallStarAlleles(variants []vcf.Variant, rule *rules.Rule) AlleleCall {
	genotypes := make(map[string]string)
	var detected []DetectedVariant
	for _, v := range variants {
		if !rule.HasMarker(v.ID) {
			continue
		}
		genotypes[v.ID] = v.Genotype
		detected = append(detected, DetectedVariant{
			RsID:       v.ID,
			Chromosome: v.Chrom,
			Position:   v.Pos,
			Genotype:   v.Genotype,
		})
	}

	var scored []alleleScore
	for _, a := range rule.StarAlleles {
		if len(a.Signatures) == 0 {
			continue
		}
		matches := 0
		for _, sig := range a.Signatures {
			rsID, want, ok := rules.ParseSignature(sig)
			if !ok {
				continue
			}
			got, found := genotypes[rsID]
			if found && normalizeGenotype(got) == normalizeGenotype(want) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		scored = append(scored, alleleScore{
			name:  a.Name,
			score: float64(matches) / float64(len(a.Signatures)),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})

	call := AlleleCall{
		Allele1:  BaselineAllele,
		Allele2:  BaselineAllele,
		Detected: detected,
	}

	switch len(scored) {
	case 0:
		call.Partial = len(detected) < len(rule.RsIDs)
	case 1:
		call.Allele1 = scored[0].name
		call.Partial = true
	default:
		call.Allele1 = scored[0].name
		call.Allele2 = scored[1].name
		for _, s := range scored {
			if s.score < 1 {
				call.Partial = true
				break
			}
		}
	}

	call.Diplotype = call.Allele1 + "/" + call.Allele2
	return call
}

// normalizeGenotype drops allele separators and sorts the remaining
// characters, so "G/A", "A|G" and "AG" compare equal.
func normalizeGenotype(gt string) string {
	b := []byte(strings.NewReplacer("/", "", "|", "").Replace(gt))
	sort.Slice(b, func(i, j int) bool { return b[i] < b[j] })
	return string(b)
}
