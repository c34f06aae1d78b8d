package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-pgx/internal/rules"
)

func TestParseDrugList(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []string
		wantMsg string
	}{
		{name: "empty", raw: "", want: []string{}},
		{name: "single", raw: "Codeine", want: []string{"Codeine"}},
		{name: "trims and drops empties", raw: " codeine , ,Warfarin,", want: []string{"codeine", "Warfarin"}},
		{name: "hyphen allowed", raw: "Anti-Drug", want: []string{"Anti-Drug"}},
		{name: "too long", raw: strings.Repeat("a", 101), wantMsg: "100 characters"},
		{name: "fileformat", raw: "##fileformat=VCFv4.2", wantMsg: "VCF content"},
		{name: "chrom header", raw: "#CHROM", wantMsg: "VCF content"},
		{name: "POS word", raw: "Codeine POS", wantMsg: "VCF content"},
		{name: "ALT word", raw: "ALT", wantMsg: "VCF content"},
		{name: "tab", raw: "Codeine\tWarfarin", wantMsg: "VCF content"},
		{name: "rsid", raw: "rs3892097", wantMsg: "VCF content"},
		{name: "digits", raw: "Codeine2", wantMsg: "letters, spaces, commas, and hyphens"},
		{name: "semicolon", raw: "Codeine;Warfarin", wantMsg: "letters, spaces, commas, and hyphens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDrugList(tt.raw)
			if tt.wantMsg != "" {
				require.NotNil(t, err)
				assert.Equal(t, CodeValidationError, err.Code)
				assert.Contains(t, err.Message, tt.wantMsg)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDrugList_PositionIsNotPOS(t *testing.T) {
	got, err := ParseDrugList("Position")
	require.Nil(t, err)
	assert.Equal(t, []string{"Position"}, got)
}

func TestValidateLanguage(t *testing.T) {
	assert.Nil(t, ValidateLanguage(""))
	assert.Nil(t, ValidateLanguage("ta-IN"))

	err := ValidateLanguage("fr-FR")
	require.NotNil(t, err)
	assert.Equal(t, CodeValidationError, err.Code)
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		size     int64
		limit    int64
		wantCode string
	}{
		{"vcf", "sample.vcf", 100, 0, ""},
		{"upper case gz", "SAMPLE.VCF.GZ", 100, 0, ""},
		{"exactly at limit", "a.vcf", MaxUploadBytes, 0, ""},
		{"too large", "a.vcf", MaxUploadBytes + 1, 0, CodeFileTooLarge},
		{"custom limit", "a.vcf", 11, 10, CodeFileTooLarge},
		{"wrong extension", "a.txt", 100, 0, CodeInvalidFileType},
		{"gz only", "a.gz", 100, 0, CodeInvalidFileType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.file, tt.size, tt.limit)
			if tt.wantCode == "" {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}

func TestDrugsToProcess(t *testing.T) {
	got, err := DrugsToProcess([]string{"Warfarin"}, false)
	require.Nil(t, err)
	assert.Equal(t, []string{"Warfarin"}, got)

	got, err = DrugsToProcess(nil, true)
	require.Nil(t, err)
	assert.Equal(t, rules.SupportedDrugs, got)

	_, err = DrugsToProcess(nil, false)
	require.NotNil(t, err)
	assert.Equal(t, CodeNoDrugs, err.Code)
}

func TestSyntheticVCF(t *testing.T) {
	table, err := rules.Default()
	require.NoError(t, err)

	report := NewAnalyzer(table).Run(SyntheticVCF, []string{"Simvastatin"}, "")
	require.Len(t, report.Results, 1)
	assert.Equal(t, "*1/*1", report.Results[0].Profile.Diplotype)
	assert.Equal(t, "PATIENT_SAMPLE", report.Results[0].PatientID)
}
