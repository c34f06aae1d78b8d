package pgx

import (
	"math"

	"github.com/inodb/vibe-pgx/internal/rules"
)

// Confidence penalties.
const (
	missingMarkerPenalty = 0.1
	unknownPenalty       = 0.2
	partialPenalty       = 0.15
	multiGenePenalty     = 0.05
)

// ConfidenceFactors are the inputs of the confidence score.
type ConfidenceFactors struct {
	ExpectedMarkers int
	DetectedMarkers int
	Phenotype       rules.Phenotype
	PartialAlleles  bool
	// MultiGene is reserved for drugs inferred from more than one gene.
	MultiGene bool
}

// Confidence returns a score in [0,1], rounded to two decimals.
func Confidence(f ConfidenceFactors) float64 {
	score := 1.0

	if missing := f.ExpectedMarkers - f.DetectedMarkers; missing > 0 {
		score -= float64(missing) * missingMarkerPenalty
	}
	if f.Phenotype == rules.PhenotypeUnknown {
		score -= unknownPenalty
	}
	if f.PartialAlleles {
		score -= partialPenalty
	}
	if f.MultiGene {
		score -= multiGenePenalty
	}

	score = math.Round(score*100) / 100
	return math.Max(0, math.Min(1, score))
}
