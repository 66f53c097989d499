// Package vision relays posture images to the external pose-analysis service.
//
// Analyze reports upstream failures as errors; the HTTP layer deliberately
// maps those to Fallback so the client-visible contract never surfaces a hard
// failure for this step.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/UWellLabs/uwell/internal/locale"
	"github.com/UWellLabs/uwell/internal/models"
)

// DefaultTimeout bounds one upstream analysis call.
const DefaultTimeout = 30 * time.Second

// analyzePath is the upstream endpoint relative to the base URL.
const analyzePath = "/analyze"

// Opts holds configuration options for the pose-analysis client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for the pose-analysis client.
type Option func(*Opts)

// WithBaseURL sets the upstream pose-analysis base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithHTTPClient sets the HTTP client used for upstream calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client forwards images to the pose-analysis service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a pose-analysis client, falling back to the POSE_API_URL
// environment variable when no base URL option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("POSE_API_URL")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("pose-analysis base URL not set")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	slog.Debug("vision.NewClient: client configured", "base_url", cfg.BaseURL)
	return &Client{baseURL: strings.TrimSuffix(cfg.BaseURL, "/"), client: cfg.HTTPClient}, nil
}

// Analyze relays the image as a multipart request and decodes the structured
// result. Any transport failure or non-2xx status is returned as an error.
func (c *Client) Analyze(ctx context.Context, image io.Reader, filename, sessionID, lang string) (models.AnalysisResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to create image part: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to copy image data: %w", err)
	}
	if err := writer.WriteField("lang", models.NormalizeLang(lang)); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to write lang field: %w", err)
	}
	if sessionID != "" {
		if err := writer.WriteField("sessionId", sessionID); err != nil {
			return models.AnalysisResult{}, fmt.Errorf("failed to write session field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analyzePath, &body)
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("vision.Client.Analyze: upstream unreachable", "error", err)
		return models.AnalysisResult{}, fmt.Errorf("pose-analysis request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.AnalysisResult{}, fmt.Errorf("failed to read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Warn("vision.Client.Analyze: upstream returned non-success status", "status", resp.StatusCode, "body", string(raw))
		return models.AnalysisResult{}, fmt.Errorf("pose-analysis returned status %d", resp.StatusCode)
	}

	var result models.AnalysisResult
	if err := json.Unmarshal(raw, &result); err != nil {
		slog.Warn("vision.Client.Analyze: unparseable analysis response", "error", err)
		return models.AnalysisResult{}, fmt.Errorf("failed to decode analysis response: %w", err)
	}
	result.Type = models.ReplyTypeAnalysis
	slog.Debug("vision.Client.Analyze: analysis received", "score", result.Score, "recommendations", len(result.Recommendations))
	return result, nil
}

// Fallback returns the canned "good posture" analysis substituted when the
// upstream service is unreachable. The recommendation list is never empty.
func Fallback(lang string) models.AnalysisResult {
	lang = models.NormalizeLang(lang)
	return models.AnalysisResult{
		Type:            models.ReplyTypeAnalysis,
		Summary:         locale.Get(locale.FallbackSummary, lang),
		Score:           75,
		Notes:           locale.Get(locale.FallbackNotes, lang),
		Recommendations: []models.Step{locale.FallbackStep[lang]},
	}
}
