package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/vibe-pgx/internal/analysis"
	"github.com/inodb/vibe-pgx/internal/duckdb"
	"github.com/inodb/vibe-pgx/internal/output"
	"github.com/inodb/vibe-pgx/internal/rules"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	table, err := rules.Default()
	require.NoError(t, err)
	opts.Analyzer = analysis.NewAnalyzer(table)
	opts.Drugs = table.Drugs()
	return NewServer(opts)
}

func readTestFile(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	return data
}

type upload struct {
	name string
	data []byte
}

func analyzeRequest(t *testing.T, fields map[string]string, file *upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("vcf", file.name)
		require.NoError(t, err)
		_, err = fw.Write(file.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeReport(t *testing.T, w *httptest.ResponseRecorder) output.JSONReport {
	t.Helper()
	var r output.JSONReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) *analysis.Error {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Options{Version: "test"})
	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t, Options{})

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = serve(s, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestDrugs(t *testing.T) {
	s := newTestServer(t, Options{})
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/drugs", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Drugs     []string            `json:"drugs"`
		Languages []analysis.Language `json:"languages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, rules.SupportedDrugs, body.Drugs)
	assert.Len(t, body.Languages, len(analysis.SupportedLanguages))
}

func TestAnalyze_Upload(t *testing.T) {
	s := newTestServer(t, Options{})
	req := analyzeRequest(t,
		map[string]string{"drugs": "codeine, Clopidogrel", "language": "hi-IN"},
		&upload{name: "panel.vcf", data: readTestFile(t, "pgx_panel.vcf")})
	w := serve(s, req)

	require.Equal(t, http.StatusOK, w.Code)
	r := decodeReport(t, w)
	assert.True(t, r.Success)
	assert.Empty(t, r.RunID)
	require.Len(t, r.Results, 2)

	assert.Equal(t, "Codeine", r.Results[0].Drug)
	assert.Equal(t, "*4/*1", r.Results[0].Profile.Diplotype)
	assert.Equal(t, "hi-IN", r.Results[0].PreferredLanguage)
	assert.Equal(t, "PATIENT_NA12878", r.Results[0].PatientID)
	assert.Equal(t, "Clopidogrel", r.Results[1].Drug)
	assert.Equal(t, rules.RiskAdjustDosage, r.Results[1].RiskAssessment.RiskLabel)
	assert.False(t, r.Results[1].QualityMetrics.LLMFailureFlag)
}

func TestAnalyze_UploadWithoutDrugsUsesAll(t *testing.T) {
	s := newTestServer(t, Options{})
	req := analyzeRequest(t, nil, &upload{name: "panel.vcf", data: readTestFile(t, "pgx_panel.vcf")})
	w := serve(s, req)

	require.Equal(t, http.StatusOK, w.Code)
	r := decodeReport(t, w)
	require.Len(t, r.Results, len(rules.SupportedDrugs))
	for i, d := range rules.SupportedDrugs {
		assert.Equal(t, d, r.Results[i].Drug)
	}
}

func TestAnalyze_DrugsWithoutVCF(t *testing.T) {
	s := newTestServer(t, Options{})
	w := serve(s, analyzeRequest(t, map[string]string{"drugs": "Warfarin, Aspirin"}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	r := decodeReport(t, w)
	assert.False(t, r.Success)
	require.Len(t, r.Results, 1)
	assert.Equal(t, "*1/*1", r.Results[0].Profile.Diplotype)
	assert.Equal(t, "en-US", r.Results[0].PreferredLanguage)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, analysis.CodeUnsupportedDrug, r.Errors[0].Code)
	assert.Equal(t, "Aspirin", r.Errors[0].Drug)
}

func TestAnalyze_RequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		wantCode string
	}{
		{"no drugs no vcf", nil, analysis.CodeNoDrugs},
		{"vcf content in drugs", map[string]string{"drugs": "rs3892097"}, analysis.CodeValidationError},
		{"bad characters", map[string]string{"drugs": "Codeine;1"}, analysis.CodeValidationError},
		{"unknown language", map[string]string{"drugs": "Codeine", "language": "fr-FR"}, analysis.CodeValidationError},
	}

	s := newTestServer(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, analyzeRequest(t, tt.fields, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestAnalyze_UploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		file     upload
		wantCode string
	}{
		{"wrong extension", upload{name: "panel.txt", data: []byte("x")}, analysis.CodeInvalidFileType},
		{"too large", upload{name: "big.vcf", data: bytes.Repeat([]byte("A"), 64)}, analysis.CodeFileTooLarge},
		{"not a vcf", upload{name: "junk.vcf", data: []byte("hello")}, "MISSING_FILEFORMAT"},
		{"empty", upload{name: "empty.vcf", data: []byte("  \n")}, "EMPTY_FILE"},
	}

	s := newTestServer(t, Options{MaxUploadBytes: 32})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file := tt.file
			w := serve(s, analyzeRequest(t, map[string]string{"drugs": "Codeine"}, &file))
			require.Equal(t, http.StatusOK, w.Code)
			r := decodeReport(t, w)
			assert.False(t, r.Success)
			assert.Empty(t, r.Results)
			require.Len(t, r.Errors, 1)
			assert.Equal(t, tt.wantCode, r.Errors[0].Code)
		})
	}
}

type quotaExplainer struct{ calls int }

func (q *quotaExplainer) Explain(context.Context, analysis.ExplanationRequest) (*analysis.Explanation, error) {
	q.calls++
	return nil, analysis.ErrQuotaExceeded
}

func TestAnalyze_ExplainerQuota(t *testing.T) {
	ex := &quotaExplainer{}
	s := newTestServer(t, Options{Explainer: ex})
	w := serve(s, analyzeRequest(t, map[string]string{"drugs": "Codeine,Warfarin"}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	r := decodeReport(t, w)
	assert.Equal(t, 1, ex.calls)
	require.Len(t, r.Results, 2)
	for _, res := range r.Results {
		assert.True(t, res.QualityMetrics.LLMFailureFlag)
		assert.NotEmpty(t, res.Explanation.Summary)
	}
	require.Len(t, r.Errors, 1)
	assert.Equal(t, analysis.CodeLLMQuotaExceeded, r.Errors[0].Code)
	assert.False(t, r.Success)
}

func TestAnalyze_History(t *testing.T) {
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	s := newTestServer(t, Options{History: store})
	req := analyzeRequest(t,
		map[string]string{"drugs": "Warfarin,Simvastatin"},
		&upload{name: "panel.vcf", data: readTestFile(t, "pgx_panel.vcf")})
	w := serve(s, req)

	require.Equal(t, http.StatusOK, w.Code)
	r := decodeReport(t, w)
	require.NotEmpty(t, r.RunID)

	records, err := store.LookupRun(r.RunID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Simvastatin", records[0].Output.Drug)
	assert.Equal(t, "Warfarin", records[1].Output.Drug)

	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "NA12878", runs[0].SampleID)
	assert.Equal(t, "panel.vcf", runs[0].Source.Path)
}

func TestAnalyze_HistorySkippedOnFormatError(t *testing.T) {
	store, err := duckdb.Open("")
	require.NoError(t, err)
	defer store.Close()

	s := newTestServer(t, Options{History: store})
	w := serve(s, analyzeRequest(t, map[string]string{"drugs": "Codeine"}, &upload{name: "junk.vcf", data: []byte("junk")}))

	r := decodeReport(t, w)
	assert.Empty(t, r.RunID)
	runs, err := store.ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestExplanation(t *testing.T) {
	s := newTestServer(t, Options{})
	in := analysis.ExplanationRequest{
		Drug:              "Clopidogrel",
		Gene:              "CYP2C19",
		Phenotype:         "PM",
		RiskLabel:         "Contraindicated",
		Severity:          "critical",
		ConfidenceScore:   0.9,
		CPICLevel:         "A",
		PreferredLanguage: "en-US",
	}
	body, err := json.Marshal(in)
	require.NoError(t, err)

	w := serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/explanation", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp explanationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, in, resp.Input)
	assert.Equal(t, analysis.TemplateExplanation(in, ""), resp.Explanation)
	assert.Contains(t, resp.Explanation.DetailedExplanation, "Patient is classified as PM for CYP2C19.")
}

func TestExplanation_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"missing gene", `{"drug":"Codeine","phenotype":"PM","risk_label":"Toxic","severity":"high","confidence_score":0.5,"cpic_level":"A","preferred_language":"en-US"}`},
		{"confidence out of range", `{"drug":"Codeine","gene":"CYP2D6","phenotype":"PM","risk_label":"Toxic","severity":"high","confidence_score":1.5,"cpic_level":"A","preferred_language":"en-US"}`},
		{"bad language", `{"drug":"Codeine","gene":"CYP2D6","phenotype":"PM","risk_label":"Toxic","severity":"high","confidence_score":0.5,"cpic_level":"A","preferred_language":"xx"}`},
	}

	s := newTestServer(t, Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(s, httptest.NewRequest(http.MethodPost, "/api/v1/explanation", bytes.NewBufferString(tt.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, analysis.CodeValidationError, decodeError(t, w).Code)
		})
	}
}
