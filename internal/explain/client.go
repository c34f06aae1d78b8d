// Package explain is a client for the remote explanation service.
package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/inodb/vibe-pgx/internal/analysis"
)

// Config configures the explanation client.
type Config struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Retries   int           `mapstructure:"retries"`
	Backoff   time.Duration `mapstructure:"backoff"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second
	CacheSize int           `mapstructure:"cache_size"`
}

// Client requests explanations from the remote service. Calls go through a
// rate limiter and a circuit breaker; successful answers are cached.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      *lru.Cache[analysis.ExplanationRequest, *analysis.Explanation]
	retries    int
	backoff    time.Duration
	logger     *zap.Logger
}

// New creates a client. Zero values in cfg take defaults.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("explanation endpoint is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}

	cache, err := lru.New[analysis.ExplanationRequest, *analysis.Explanation](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create explanation cache: %w", err)
	}

	c := &Client{
		endpoint:   cfg.Endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		cache:      cache,
		retries:    cfg.Retries,
		backoff:    cfg.Backoff,
		logger:     zap.NewNop(),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "explanation",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return c, nil
}

// SetLogger sets the logger for warning and info messages.
func (c *Client) SetLogger(l *zap.Logger) {
	c.logger = l
}

// Explain requests an explanation, retrying failed attempts after the
// configured backoff. A quota error or an open circuit is returned at once.
func (c *Client) Explain(ctx context.Context, req analysis.ExplanationRequest) (*analysis.Explanation, error) {
	if exp, ok := c.cache.Get(req); ok {
		return exp, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, c.backoff); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		res, err := c.breaker.Execute(func() (interface{}, error) {
			return c.post(ctx, req)
		})
		if err == nil {
			exp := res.(*analysis.Explanation)
			c.cache.Add(req, exp)
			return exp, nil
		}

		c.logger.Warn("explanation request failed",
			zap.String("drug", req.Drug),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if errors.Is(err, analysis.ErrQuotaExceeded) || errors.Is(err, gobreaker.ErrOpenState) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

type serviceResponse struct {
	Explanation *serviceExplanation `json:"llm_generated_explanation"`
}

type serviceExplanation struct {
	Summary             string `json:"summary"`
	DetailedExplanation string `json:"detailed_explanation"`
	Mechanism           string `json:"mechanism"`
	ClinicianEN         string `json:"clinician_en"`
	ClinicianHI         string `json:"clinician_hi"`
	PatientEN           string `json:"patient_en"`
	PatientHI           string `json:"patient_hi"`
}

func (c *Client) post(ctx context.Context, req analysis.ExplanationRequest) (*analysis.Explanation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("explanation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if isQuotaError(string(msg)) {
			return nil, fmt.Errorf("explanation service status %d: %w", resp.StatusCode, analysis.ErrQuotaExceeded)
		}
		return nil, fmt.Errorf("explanation service status %d", resp.StatusCode)
	}

	var sr serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if sr.Explanation == nil {
		return nil, errors.New("response has no llm_generated_explanation")
	}

	e := sr.Explanation
	return &analysis.Explanation{
		Summary:             firstNonEmpty(e.ClinicianEN, e.ClinicianHI, e.Summary),
		DetailedExplanation: firstNonEmpty(e.ClinicianEN, e.ClinicianHI, e.DetailedExplanation),
		Mechanism:           e.Mechanism,
		PatientSummary:      firstNonEmpty(e.PatientEN, e.PatientHI),
	}, nil
}

func isQuotaError(body string) bool {
	return strings.Contains(body, "quota") || strings.Contains(body, "429") || strings.Contains(body, "exceeded")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
