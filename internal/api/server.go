// Package api exposes the analyzer over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inodb/vibe-pgx/internal/analysis"
	"github.com/inodb/vibe-pgx/internal/duckdb"
	"github.com/inodb/vibe-pgx/internal/output"
	"github.com/inodb/vibe-pgx/internal/rules"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// HistoryWriter persists analysis runs.
type HistoryWriter interface {
	WriteRun(run duckdb.Run, report *analysis.Report) (string, error)
}

// Options configures a Server. Only Analyzer is required.
type Options struct {
	Analyzer       *analysis.Analyzer
	Explainer      analysis.Explainer
	History        HistoryWriter
	Drugs          []string
	MaxUploadBytes int64
	Version        string
	Logger         *zap.Logger

	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	opts   Options
	logger *zap.Logger
	router *gin.Engine
	server *http.Server
}

type errorBody struct {
	Error *analysis.Error `json:"error"`
}

// NewServer creates a server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = analysis.MaxUploadBytes
	}
	if len(opts.Drugs) == 0 {
		opts.Drugs = rules.SupportedDrugs
	}

	router := gin.New()
	s := &Server{
		opts:   opts,
		logger: opts.Logger,
		router: router,
	}

	router.Use(requestID())
	router.Use(s.requestLogger())
	router.Use(gin.CustomRecovery(s.handlePanic))

	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", s.opts.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/drugs", s.handleDrugs)
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/explanation", s.handleExplanation)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   s.opts.Version,
	})
}

func (s *Server) handleDrugs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"drugs":     s.opts.Drugs,
		"languages": analysis.SupportedLanguages,
	})
}

// handleAnalyze accepts a multipart form with an optional "vcf" file, a
// comma-separated "drugs" field and a "language" field.
func (s *Server) handleAnalyze(c *gin.Context) {
	// Leave headroom for the other form fields.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.opts.MaxUploadBytes+1<<20)

	language := c.DefaultPostForm("language", analysis.DefaultLanguage)
	if e := analysis.ValidateLanguage(language); e != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: e})
		return
	}

	drugs, e := analysis.ParseDrugList(c.PostForm("drugs"))
	if e != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: e})
		return
	}

	file, err := c.FormFile("vcf")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.fileError(c, &analysis.Error{Code: analysis.CodeFileTooLarge, Message: "VCF file is too large."})
			return
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			c.JSON(http.StatusBadRequest, errorBody{Error: &analysis.Error{Code: analysis.CodeValidationError, Message: "Malformed form data."}})
			return
		}
	}
	haveVCF := file != nil

	drugs, e = analysis.DrugsToProcess(drugs, haveVCF)
	if e != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: e})
		return
	}

	vcfText := analysis.SyntheticVCF
	source := duckdb.FileFingerprint{}
	if haveVCF {
		if e := analysis.ValidateUpload(file.Filename, file.Size, s.opts.MaxUploadBytes); e != nil {
			s.fileError(c, e)
			return
		}
		f, err := file.Open()
		if err != nil {
			s.internalError(c, fmt.Errorf("open upload: %w", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.internalError(c, fmt.Errorf("read upload: %w", err))
			return
		}
		vcfText = string(data)
		source = duckdb.UploadFingerprint(file.Filename, file.Size)
	}

	report := s.opts.Analyzer.Run(vcfText, drugs, language)
	s.opts.Analyzer.Enrich(c.Request.Context(), report, s.opts.Explainer)

	var runID string
	if s.opts.History != nil && report.SampleID != "" {
		runID, err = s.opts.History.WriteRun(duckdb.Run{
			SampleID: report.SampleID,
			Language: language,
			Source:   source,
		}, report)
		if err != nil {
			s.logger.Warn("history write failed", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
			runID = ""
		}
	}

	c.JSON(http.StatusOK, output.NewJSONReport(report, runID))
}

type explanationResponse struct {
	Explanation analysis.Explanation        `json:"explanation"`
	Input       analysis.ExplanationRequest `json:"input"`
	Success     bool                        `json:"success"`
}

func (s *Server) handleExplanation(c *gin.Context) {
	var req analysis.ExplanationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: &analysis.Error{Code: analysis.CodeValidationError, Message: "Invalid input."}})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, errorBody{Error: &analysis.Error{Code: analysis.CodeValidationError, Message: err.Error()}})
		return
	}

	c.JSON(http.StatusOK, explanationResponse{
		Explanation: analysis.TemplateExplanation(req, ""),
		Input:       req,
		Success:     true,
	})
}

// fileError reports an upload problem the way analysis errors are reported:
// as an unsuccessful report rather than an HTTP error.
func (s *Server) fileError(c *gin.Context, e *analysis.Error) {
	c.JSON(http.StatusOK, output.NewJSONReport(&analysis.Report{Errors: []*analysis.Error{e}}, ""))
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Error("request failed", zap.String("request_id", c.GetString("request_id")), zap.Error(err))
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: &analysis.Error{
		Code:    analysis.CodeInternalError,
		Message: "An unexpected server error occurred.",
	}})
}

func (s *Server) handlePanic(c *gin.Context, recovered any) {
	s.internalError(c, fmt.Errorf("panic: %v", recovered))
}

// requestID propagates or assigns a correlation id for each request.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
