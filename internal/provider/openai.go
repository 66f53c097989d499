// OpenAI chat completion adapter.

package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/UWellLabs/uwell/internal/models"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI adapts chat requests to the OpenAI chat completions API. The provider
// takes a structured list of role/content messages and exposes the reply under
// a flat choice/message/content path.
type OpenAI struct {
	client       openai.Client
	model        openai.ChatModel
	systemPrompt string
}

// NewOpenAI initializes the OpenAI adapter, falling back to the
// OPENAI_API_KEY environment variable when no key option is given.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not set")
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	slog.Debug("provider.NewOpenAI: adapter configured", "model", model)
	return &OpenAI{
		client:       openai.NewClient(reqOpts...),
		model:        model,
		systemPrompt: systemPrompt,
	}, nil
}

// Name identifies the adapter.
func (p *OpenAI) Name() string { return NameOpenAI }

// Generate sends the conversation as structured messages and extracts the
// first choice's content.
func (p *OpenAI) Generate(ctx context.Context, history []models.Turn, message, lang string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(p.systemPrompt + " " + languageInstruction(lang)),
	}
	for _, turn := range history {
		switch turn.Role {
		case models.RoleModel:
			messages = append(messages, openai.AssistantMessage(turn.Text))
		default:
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}
	messages = append(messages, openai.UserMessage(message))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: messages,
	})
	if err != nil {
		slog.Error("provider.OpenAI.Generate: completion call failed", "error", err)
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("provider.OpenAI.Generate: response contained no choices")
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
