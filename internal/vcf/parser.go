// Package vcf provides single-sample VCF genotype parsing.
package vcf

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Format error codes. Callers branch on these, so the values are stable.
const (
	CodeEmptyFile          = "EMPTY_FILE"
	CodeMissingFileFormat  = "MISSING_FILEFORMAT"
	CodeMissingChromHeader = "MISSING_CHROM_HEADER"
	CodeNoVariants         = "NO_VARIANTS"
	CodeMissingGT          = "MISSING_GT"
	CodeNoGTField          = "NO_GT_FIELD"
)

const (
	fileFormatMarker   = "##fileformat=VCF"
	fileFormatPrefix   = "##fileformat="
	chromHeaderPrefix  = "#CHROM"
	genotypeKey        = "GT"
	minHeaderColumns   = 9
	minDataColumns     = 10
	formatColumn       = 8
	sampleColumn       = 9
	missingAlleleToken = "."
)

// FormatError reports a structural problem that makes the whole VCF unusable.
type FormatError struct {
	Code    string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("vcf format error %s: %s", e.Code, e.Message)
}

// ReadFile reads and parses a VCF file.
func ReadFile(path string) (*Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vcf file: %w", err)
	}
	return Parse(string(data))
}

// ParseReader reads all content from r and parses it.
func ParseReader(r io.Reader) (*Sample, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read vcf: %w", err)
	}
	return Parse(string(data))
}

// Parse validates VCF text and returns its variants with resolved genotypes.
// Rows with fewer than 10 columns or without GT in FORMAT are skipped.
func Parse(content string) (*Sample, error) {
	lines, err := validate(content)
	if err != nil {
		return nil, err
	}

	s := &Sample{
		SampleID:   DefaultSampleID,
		FileFormat: DefaultFileFormat,
	}

	for _, line := range lines {
		if strings.HasPrefix(line, fileFormatPrefix) {
			s.FileFormat = DefaultFileFormat
			if parts := strings.Split(line, "="); len(parts) > 1 && parts[1] != "" {
				s.FileFormat = parts[1]
			}
			continue
		}

		if strings.HasPrefix(line, chromHeaderPrefix) {
			cols := strings.Split(line, "\t")
			if len(cols) > sampleColumn && cols[sampleColumn] != "" {
				s.SampleID = cols[sampleColumn]
			}
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		if v, ok := parseLine(line); ok {
			s.Variants = append(s.Variants, v)
		}
	}

	s.TotalVariants = len(s.Variants)
	return s, nil
}

// validate checks the structural requirements and returns the non-blank lines.
func validate(content string) ([]string, error) {
	if strings.TrimSpace(content) == "" {
		return nil, &FormatError{Code: CodeEmptyFile, Message: "VCF file is empty or corrupted."}
	}

	if !strings.Contains(content, fileFormatMarker) {
		return nil, &FormatError{Code: CodeMissingFileFormat, Message: "Invalid VCF file: Missing ##fileformat=VCF header."}
	}

	lines := splitLines(content)

	var header string
	var data []string
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, chromHeaderPrefix):
			if header == "" {
				header = line
			}
		case strings.HasPrefix(line, "#"):
		default:
			data = append(data, line)
		}
	}

	if header == "" {
		return nil, &FormatError{Code: CodeMissingChromHeader, Message: "Invalid VCF file: Missing #CHROM header line."}
	}

	if len(data) == 0 {
		return nil, &FormatError{Code: CodeNoVariants, Message: "Invalid VCF file: No variant data rows found."}
	}

	if len(strings.Split(header, "\t")) < minHeaderColumns {
		return nil, &FormatError{Code: CodeMissingGT, Message: "Invalid VCF file: Missing FORMAT/genotype columns."}
	}

	for _, line := range data {
		fields := strings.Split(line, "\t")
		if len(fields) >= minDataColumns && strings.Contains(fields[formatColumn], genotypeKey) {
			return lines, nil
		}
	}

	return nil, &FormatError{Code: CodeNoGTField, Message: "Invalid VCF file: No genotype (GT) field found in variant data."}
}

// splitLines splits content into lines, dropping line endings and blank lines.
func splitLines(content string) []string {
	raw := strings.Split(content, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// parseLine parses a single data row. It reports false for rows that carry no genotype.
func parseLine(line string) (Variant, bool) {
	fields := strings.Split(line, "\t")
	if len(fields) < minDataColumns {
		return Variant{}, false
	}

	gtIndex := -1
	for i, key := range strings.Split(fields[formatColumn], ":") {
		if key == genotypeKey {
			gtIndex = i
			break
		}
	}
	if gtIndex < 0 {
		return Variant{}, false
	}

	gt := missingAlleleToken
	if sampleFields := strings.Split(fields[sampleColumn], ":"); gtIndex < len(sampleFields) && sampleFields[gtIndex] != "" {
		gt = sampleFields[gtIndex]
	}

	ref := orMissing(fields[3])
	alt := orMissing(fields[4])

	return Variant{
		Chrom:    orMissing(fields[0]),
		Pos:      orMissing(fields[1]),
		ID:       orMissing(fields[2]),
		Ref:      ref,
		Alt:      alt,
		Genotype: ResolveGenotype(gt, ref, alt),
	}, true
}

// ResolveGenotype converts a GT value of allele indices into allele strings.
// Index 0 is the reference allele, N>=1 the (N-1)th alternate allele and "."
// stays missing. The separator of the input ("|" or "/") is preserved.
func ResolveGenotype(gt, ref, alt string) string {
	sep := "/"
	if strings.Contains(gt, "|") {
		sep = "|"
	}

	alts := strings.Split(alt, ",")
	indices := strings.FieldsFunc(gt, isGenotypeSeparator)
	alleles := make([]string, len(indices))
	for i, idx := range indices {
		alleles[i] = resolveAllele(idx, ref, alts)
	}

	return strings.Join(alleles, sep)
}

func resolveAllele(idx, ref string, alts []string) string {
	if idx == missingAlleleToken {
		return missingAlleleToken
	}
	n, err := strconv.Atoi(idx)
	if err != nil || n < 0 {
		return missingAlleleToken
	}
	if n == 0 {
		return ref
	}
	if n > len(alts) || alts[n-1] == "" {
		return missingAlleleToken
	}
	return alts[n-1]
}

func orMissing(s string) string {
	if s == "" {
		return missingAlleleToken
	}
	return s
}
