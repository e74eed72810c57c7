// Package provider wraps the external generative-language API behind the
// ports.Generator contract: one prompt in, one block of text out.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	atlaserrors "atlas/internal/errors"
	"atlas/internal/logging"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultModel   = "gemini-pro-latest"
	defaultTimeout = 30 * time.Second
)

// Config holds the generation backend configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Metrics receives provider instrumentation callbacks. Nil-safe on the
// observability side.
type Metrics interface {
	RecordProviderRequest(ctx context.Context, duration time.Duration, failed bool)
	RecordCacheLookup(ctx context.Context, hit bool)
}

// GeminiClient calls the generateContent endpoint of the Gemini API.
type GeminiClient struct {
	apiKey     string
	model      string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	cache      *responseCache
	logger     logging.Logger
	metrics    Metrics
}

// Option customizes a GeminiClient.
type Option func(*GeminiClient)

// WithMetrics attaches provider instrumentation.
func WithMetrics(m Metrics) Option {
	return func(c *GeminiClient) { c.metrics = m }
}

// WithHTTPClient overrides the underlying HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *GeminiClient) { c.httpClient = hc }
}

// NewGeminiClient constructs the generation client. An empty API key yields a
// client whose Generate always fails with a "capabilities not configured"
// provider error; the server keeps running and surfaces the error per call.
func NewGeminiClient(cfg Config, logger logging.Logger, opts ...Option) *GeminiClient {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache:  newResponseCache(defaultCacheSize, defaultCacheTTL),
		logger: logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API credential is present.
func (c *GeminiClient) Configured() bool {
	return c.apiKey != ""
}

// generateContent wire shapes, request side.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends prompt to the model and returns the concatenated candidate
// text. The call is bounded by the configured timeout and retried once on a
// transient failure.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", atlaserrors.NewProviderError(nil, "capabilities not configured: missing provider API key")
	}

	if text, ok := c.cache.get(c.model, prompt); ok {
		c.recordCacheLookup(ctx, true)
		return text, nil
	}
	c.recordCacheLookup(ctx, false)

	text, err := c.generateOnce(ctx, prompt)
	if err != nil && isTransient(err) {
		c.logger.Warn("Transient provider failure, retrying once: %v", err)
		text, err = c.generateOnce(ctx, prompt)
	}
	if err != nil {
		return "", err
	}

	c.cache.put(c.model, prompt, text)
	return text, nil
}

func (c *GeminiClient) generateOnce(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", atlaserrors.NewProviderError(err, "marshal generation request")
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", atlaserrors.NewProviderError(err, "build generation request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordRequest(ctx, time.Since(start), true)
		if errors.Is(err, context.DeadlineExceeded) {
			return "", atlaserrors.NewProviderError(err, fmt.Sprintf("generation call exceeded %s budget", c.timeout))
		}
		return "", atlaserrors.NewProviderError(err, "generation request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		c.recordRequest(ctx, time.Since(start), true)
		return "", atlaserrors.NewProviderError(err, "read generation response")
	}

	if resp.StatusCode != http.StatusOK {
		c.recordRequest(ctx, time.Since(start), true)
		return "", &httpStatusError{status: resp.StatusCode, body: truncate(string(payload), 200)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		c.recordRequest(ctx, time.Since(start), true)
		return "", atlaserrors.NewProviderError(err, "decode generation response")
	}
	if parsed.Error != nil {
		c.recordRequest(ctx, time.Since(start), true)
		return "", atlaserrors.NewProviderError(nil, fmt.Sprintf("provider error %d: %s", parsed.Error.Code, parsed.Error.Message))
	}
	if len(parsed.Candidates) == 0 {
		c.recordRequest(ctx, time.Since(start), true)
		return "", atlaserrors.NewProviderError(nil, "provider returned no candidates")
	}

	var sb strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	c.recordRequest(ctx, time.Since(start), false)
	return sb.String(), nil
}

func (c *GeminiClient) recordRequest(ctx context.Context, d time.Duration, failed bool) {
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(ctx, d, failed)
	}
}

func (c *GeminiClient) recordCacheLookup(ctx context.Context, hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(ctx, hit)
	}
}

// httpStatusError keeps the status code inspectable for the retry decision
// while still reading as a provider error at the edges.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
}

// As lets errors.As match *ProviderError so the dispatcher classification
// treats HTTP failures uniformly.
func (e *httpStatusError) As(target any) bool {
	if pe, ok := target.(**atlaserrors.ProviderError); ok {
		*pe = atlaserrors.NewProviderError(nil, e.Error())
		return true
	}
	return false
}

func isTransient(err error) bool {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch statusErr.status {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
