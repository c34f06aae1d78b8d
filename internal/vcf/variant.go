// Package vcf provides single-sample VCF genotype parsing.
package vcf

// Default header values used when the VCF does not declare them.
const (
	DefaultSampleID   = "SAMPLE_001"
	DefaultFileFormat = "VCFv4.1"
)

// Variant represents a single data row of a VCF file with its resolved genotype.
type Variant struct {
	Chrom    string // Chromosome name (e.g., "10", "chr10")
	Pos      string // 1-based genomic position as written in the file
	ID       string // Variant identifier (rs ID or ".")
	Ref      string // Reference allele
	Alt      string // Alternate allele(s), comma-joined
	Genotype string // Resolved allele strings joined by "/" or "|" (e.g., "A/G")
}

// Sample is the parsed content of a single-sample VCF.
type Sample struct {
	Variants      []Variant
	SampleID      string
	FileFormat    string
	TotalVariants int
}

func isGenotypeSeparator(r rune) bool {
	return r == '/' || r == '|'
}
