package analysis

import (
	"errors"
	"fmt"
)

// Error codes produced by the analyzer and its callers. VCF format codes are
// defined in package vcf and passed through unchanged.
const (
	CodeUnsupportedDrug  = "UNSUPPORTED_DRUG"
	CodeNoRule           = "NO_RULE"
	CodeAnalysisError    = "ANALYSIS_ERROR"
	CodeNoResults        = "NO_RESULTS"
	CodeVCFParseError    = "VCF_PARSE_ERROR"
	CodeValidationError  = "VALIDATION_ERROR"
	CodeNoDrugs          = "NO_DRUGS"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidFileType  = "INVALID_FILE_TYPE"
	CodeLLMQuotaExceeded = "LLM_QUOTA_EXCEEDED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// ErrQuotaExceeded is returned by explainers when the remote service reports
// an exhausted quota.
var ErrQuotaExceeded = errors.New("explanation quota exceeded")

// Error is a coded, user-visible analysis error. Drug is set for per-drug errors.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Drug    string `json:"drug,omitempty"`
}

func (e *Error) Error() string {
	if e.Drug != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Drug, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
