// Package provider normalizes chat completion calls to the externally hosted
// LLM providers used by U-Well.
//
// Exactly one provider is active per deployment, selected by configuration at
// construction. Each adapter owns its provider-specific request shape and
// response extraction; callers only ever see a plain reply string.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/UWellLabs/uwell/internal/models"
)

// Provider names accepted by New.
const (
	NameOpenAI = "openai"
	NameGemini = "gemini"
)

// DefaultTimeout bounds one upstream completion call. The browser gives up at
// 30s, so there is no point waiting longer than that server-side.
const DefaultTimeout = 30 * time.Second

// Provider produces a single plain-text reply for a conversation.
type Provider interface {
	// Name identifies the active adapter.
	Name() string
	// Generate returns the provider's reply text. A transport or HTTP-status
	// failure is returned as an error (retryable by the caller); a successful
	// call whose body yields no extractable text returns ("", nil).
	Generate(ctx context.Context, history []models.Turn, message, lang string) (string, error)
}

// Opts holds configuration options shared by the provider adapters.
type Opts struct {
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	HTTPClient   *http.Client
}

// Option defines a configuration option for a provider adapter.
type Option func(*Opts)

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the provider model name.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithBaseURL overrides the provider endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithSystemPrompt overrides the built-in system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Opts) { o.SystemPrompt = prompt }
}

// WithHTTPClient sets the HTTP client used for REST providers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// New constructs the adapter for the named provider.
func New(name string, opts ...Option) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NameOpenAI:
		return NewOpenAI(opts...)
	case NameGemini, "":
		return NewGemini(opts...)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// defaultSystemPrompt instructs the model to emit the structured payload the
// orchestrator classifies. The actual coaching content lives with the model.
const defaultSystemPrompt = `You are U-Well, a supportive wellness companion. ` +
	`Answer with a single JSON object. Use {"type":"reply","text":"..."} for ordinary replies, ` +
	`add "request_photo":true when a posture photo would help you advise, and use ` +
	`{"type":"crisis","message":"..."} when the user appears to be in serious distress.`

// languageInstruction nudges the model toward the requested locale.
func languageInstruction(lang string) string {
	if models.NormalizeLang(lang) == models.LangHindi {
		return "Respond in Hindi."
	}
	return "Respond in English."
}

// StripCodeFence removes a surrounding triple-backtick fence (with an optional
// language tag) from s. Providers routinely wrap JSON payloads this way.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the fence line itself ("json", "JSON", or empty).
		tag := strings.TrimSpace(trimmed[:idx])
		if tag == "" || len(tag) <= 10 {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
