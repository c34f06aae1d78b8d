package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/inodb/vibe-pgx/internal/rules"
)

// MaxDrugInputLength bounds the free-text drug field.
const MaxDrugInputLength = 100

// MaxUploadBytes is the default limit for uploaded VCF files.
const MaxUploadBytes = 5 * 1024 * 1024

// SyntheticVCF is analyzed when drugs are given without a VCF. Its single
// homozygous-reference row yields *1/*1 for every gene.
const SyntheticVCF = "##fileformat=VCFv4.1\n" +
	"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE\n" +
	"chr1\t1\t.\tA\tG\t.\t.\t.\tGT\t0/0"

const vcfContentMessage = "This field accepts drug names only. VCF content detected."

var (
	wordPOS       = regexp.MustCompile(`\bPOS\b`)
	wordALT       = regexp.MustCompile(`\bALT\b`)
	rsIDPattern   = regexp.MustCompile(`rs\d+`)
	drugListChars = regexp.MustCompile(`^[a-zA-Z\s,\-]+$`)
)

// ParseDrugList validates a comma-separated drug field and splits it into
// trimmed, non-empty names. Names are not matched against the vocabulary
// here; unsupported names are reported per drug by the analyzer.
func ParseDrugList(raw string) ([]string, *Error) {
	if len(raw) > MaxDrugInputLength {
		return nil, validationError(fmt.Sprintf("Drug input must be %d characters or less", MaxDrugInputLength))
	}
	if strings.Contains(raw, "##fileformat") ||
		strings.Contains(raw, "#CHROM") ||
		wordPOS.MatchString(raw) ||
		wordALT.MatchString(raw) ||
		strings.Contains(raw, "\t") ||
		rsIDPattern.MatchString(raw) {
		return nil, validationError(vcfContentMessage)
	}
	if raw != "" && !drugListChars.MatchString(raw) {
		return nil, validationError("Drug names may only contain letters, spaces, commas, and hyphens.")
	}

	drugs := []string{}
	for _, d := range strings.Split(raw, ",") {
		if d = strings.TrimSpace(d); d != "" {
			drugs = append(drugs, d)
		}
	}
	return drugs, nil
}

// ValidateLanguage returns a VALIDATION_ERROR for unsupported codes. An empty
// code is accepted and means DefaultLanguage.
func ValidateLanguage(code string) *Error {
	if code == "" || ValidLanguage(code) {
		return nil
	}
	return validationError(fmt.Sprintf("Unsupported language %q.", code))
}

// ValidateUpload checks the size and file name of an uploaded VCF.
func ValidateUpload(name string, size, limit int64) *Error {
	if limit <= 0 {
		limit = MaxUploadBytes
	}
	if size > limit {
		return &Error{Code: CodeFileTooLarge, Message: fmt.Sprintf("VCF file must be under %dMB.", limit/(1024*1024))}
	}
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".vcf") && !strings.HasSuffix(lower, ".vcf.gz") {
		return &Error{Code: CodeInvalidFileType, Message: "Only .vcf and .vcf.gz files are accepted."}
	}
	return nil
}

// DrugsToProcess applies the request defaults: an uploaded VCF with no drugs
// selects every supported drug, and no VCF with no drugs is an error.
func DrugsToProcess(drugs []string, haveVCF bool) ([]string, *Error) {
	if len(drugs) > 0 {
		return drugs, nil
	}
	if haveVCF {
		return append([]string(nil), rules.SupportedDrugs...), nil
	}
	return nil, &Error{Code: CodeNoDrugs, Message: "Drug names are required for text-based analysis."}
}

func validationError(msg string) *Error {
	return &Error{Code: CodeValidationError, Message: msg}
}
