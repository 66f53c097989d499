// Gemini chat completion adapter.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/UWellLabs/uwell/internal/models"
)

// DefaultGeminiBaseURL is the production generativelanguage endpoint.
const DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-1.5-flash"

// Gemini adapts chat requests to the generativelanguage REST API. The provider
// takes one concatenated prompt string built by flattening the history into
// "role: text" lines, and nests the reply under candidate/content/parts. The
// part text may itself be a triple-backtick fenced JSON string, which is
// unwrapped before use.
type Gemini struct {
	apiKey       string
	model        string
	baseURL      string
	systemPrompt string
	client       *http.Client
}

// NewGemini initializes the Gemini adapter, falling back to the
// GEMINI_API_KEY environment variable when no key option is given.
func NewGemini(opts ...Option) (*Gemini, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}

	slog.Debug("provider.NewGemini: adapter configured", "model", cfg.Model)
	return &Gemini{
		apiKey:       cfg.APIKey,
		model:        cfg.Model,
		baseURL:      cfg.BaseURL,
		systemPrompt: cfg.SystemPrompt,
		client:       cfg.HTTPClient,
	}, nil
}

// Name identifies the adapter.
func (p *Gemini) Name() string { return NameGemini }

// geminiRequest is the generateContent request envelope.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// geminiResponse covers the candidate/content/parts path we extract from.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// buildPrompt flattens the conversation into "role: text" lines with the
// system instructions on top and the new message last.
func (p *Gemini) buildPrompt(history []models.Turn, message, lang string) string {
	var buf bytes.Buffer
	buf.WriteString(p.systemPrompt)
	buf.WriteString(" ")
	buf.WriteString(languageInstruction(lang))
	buf.WriteString("\n\n")
	for _, turn := range history {
		buf.WriteString(string(turn.Role))
		buf.WriteString(": ")
		buf.WriteString(turn.Text)
		buf.WriteString("\n")
	}
	buf.WriteString("user: ")
	buf.WriteString(message)
	return buf.String()
}

// Generate posts the flattened prompt and extracts the first candidate part.
func (p *Gemini) Generate(ctx context.Context, history []models.Turn, message, lang string) (string, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: p.buildPrompt(history, message, lang)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		slog.Error("provider.Gemini.Generate: request failed", "error", err)
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read gemini response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("provider.Gemini.Generate: non-OK status", "status", resp.StatusCode, "body", string(raw))
		return "", fmt.Errorf("gemini returned status %d", resp.StatusCode)
	}
	slog.Debug("provider.Gemini.Generate: raw payload", "payload", string(raw))

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("provider.Gemini.Generate: unparseable response body", "error", err)
		return "", nil
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		slog.Warn("provider.Gemini.Generate: response shape had no candidate parts")
		return "", nil
	}

	// The part text is sometimes a fenced, JSON-encoded string; unwrap it.
	text := StripCodeFence(parsed.Candidates[0].Content.Parts[0].Text)
	var unwrapped string
	if err := json.Unmarshal([]byte(text), &unwrapped); err == nil {
		return unwrapped, nil
	}
	return text, nil
}
