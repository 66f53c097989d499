// Package chat implements the conversation-state and retry/fallback
// orchestration for the /api/chat endpoint.
//
// One Orchestrator handles one inbound request at a time; nothing here
// persists between requests. Provider failures degrade to locale-appropriate
// soft replies, and a keyword safety net overrides whatever the model
// classified.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/UWellLabs/uwell/internal/crisis"
	"github.com/UWellLabs/uwell/internal/locale"
	"github.com/UWellLabs/uwell/internal/models"
	"github.com/UWellLabs/uwell/internal/provider"
)

// Retry configuration. Attempt n sleeps min(1s * 2^(n-1), 60s) before the
// next attempt; with MaxAttempts=3 a fully failing request sleeps 1s + 2s.
const (
	MaxAttempts            = 3
	initialBackoffInterval = time.Second
	maxBackoffInterval     = time.Minute
)

// ErrExhausted is returned when no reply at all could be produced; the HTTP
// layer maps it to 429 "Quota exceeded".
var ErrExhausted = fmt.Errorf("provider attempts exhausted")

// Notifier receives crisis alerts. Implementations must be safe for
// concurrent use.
type Notifier interface {
	SendCrisisAlert(ctx context.Context, sessionID, lang string) error
}

// Orchestrator wraps a provider call in bounded retries and classifies the
// normalized reply.
type Orchestrator struct {
	provider   provider.Provider
	notifier   Notifier
	newBackOff func() backoff.BackOff
}

// Option defines a configuration option for the Orchestrator.
type Option func(*Orchestrator)

// WithNotifier enables crisis alert notifications.
func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithBackOffFactory overrides the backoff policy, mainly for tests.
func WithBackOffFactory(f func() backoff.BackOff) Option {
	return func(o *Orchestrator) { o.newBackOff = f }
}

// NewOrchestrator creates an Orchestrator for the given provider.
func NewOrchestrator(p provider.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{provider: p, newBackOff: defaultBackOff}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// defaultBackOff builds the exponential policy for one request.
func defaultBackOff() backoff.BackOff {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = initialBackoffInterval
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = maxBackoffInterval
	expo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(expo, MaxAttempts-1)
}

// modelPayload is the structured reply shape the model is instructed to emit.
// Both "type" and "kind" are accepted, as are "text" and "message".
type modelPayload struct {
	Type         string            `json:"type"`
	Kind         string            `json:"kind"`
	Text         string            `json:"text"`
	Message      string            `json:"message"`
	RequestPhoto bool              `json:"request_photo"`
	Helplines    []models.Helpline `json:"helplines"`
}

func (p *modelPayload) kind() string {
	if p.Type != "" {
		return p.Type
	}
	return p.Kind
}

func (p *modelPayload) body() string {
	if p.Text != "" {
		return p.Text
	}
	return p.Message
}

// Respond executes the full per-request state machine: bounded provider
// retries, reply classification, and the independent crisis override.
// The returned error is only non-nil when no reply at all could be built.
func (o *Orchestrator) Respond(ctx context.Context, req models.ChatRequest) (models.ChatReply, error) {
	if o.provider == nil {
		return models.ChatReply{}, ErrExhausted
	}
	lang := models.NormalizeLang(req.Lang)

	var reply string
	attempt := 0
	op := func() error {
		attempt++
		slog.Debug("chat.Orchestrator.Respond: provider attempt", "attempt", attempt, "provider", o.provider.Name(), "sessionID", req.SessionID)
		text, err := o.provider.Generate(ctx, req.History, req.Message, lang)
		if err != nil {
			slog.Warn("chat.Orchestrator.Respond: provider attempt failed", "attempt", attempt, "error", err)
			return err
		}
		reply = text
		return nil
	}
	callErr := backoff.Retry(op, backoff.WithContext(o.newBackOff(), ctx))

	// The keyword safety net scans the raw user input and always wins,
	// regardless of what the model returned — including total exhaustion.
	if crisis.Detect(req.Message) {
		slog.Info("chat.Orchestrator.Respond: crisis override triggered", "sessionID", req.SessionID, "lang", lang)
		o.alert(ctx, req.SessionID, lang)
		return models.ChatReply{
			Type:      models.ReplyTypeCrisis,
			Text:      locale.Get(locale.CrisisMessage, lang),
			Helplines: crisis.Helplines(lang),
		}, nil
	}

	if callErr != nil {
		// Soft failure: all attempts exhausted, downgrade to an apology.
		slog.Error("chat.Orchestrator.Respond: attempts exhausted", "attempts", attempt, "error", callErr, "sessionID", req.SessionID)
		return models.ChatReply{
			Type: models.ReplyTypeReply,
			Text: locale.Get(locale.Apology, lang),
		}, nil
	}

	slog.Debug("chat.Orchestrator.Respond: raw provider reply", "payload", reply)

	if strings.TrimSpace(reply) == "" {
		// Success-with-empty is deliberately not retried.
		slog.Warn("chat.Orchestrator.Respond: provider produced empty reply", "sessionID", req.SessionID)
		return models.ChatReply{
			Type: models.ReplyTypeReply,
			Text: locale.Get(locale.EmptyReply, lang),
		}, nil
	}

	return o.classify(ctx, req, reply, lang), nil
}

// classify interprets a non-empty reply as a structured payload and routes it.
func (o *Orchestrator) classify(ctx context.Context, req models.ChatRequest, reply, lang string) models.ChatReply {
	var payload modelPayload
	text := provider.StripCodeFence(reply)
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		// Plain prose reply; pass through unchanged.
		return models.ChatReply{Type: models.ReplyTypeReply, Text: reply}
	}

	if payload.kind() == string(models.ReplyTypeCrisis) {
		helplines := payload.Helplines
		if len(helplines) == 0 {
			helplines = crisis.Helplines(lang)
		}
		body := payload.body()
		if body == "" {
			body = locale.Get(locale.CrisisMessage, lang)
		}
		slog.Info("chat.Orchestrator.classify: model declared crisis", "sessionID", req.SessionID)
		o.alert(ctx, req.SessionID, lang)
		return models.ChatReply{Type: models.ReplyTypeCrisis, Text: body, Helplines: helplines}
	}

	body := payload.body()
	if body == "" {
		body = reply
	}
	return models.ChatReply{
		Type:         models.ReplyTypeReply,
		Text:         body,
		RequestPhoto: payload.RequestPhoto,
	}
}

// alert notifies the configured operator channel without delaying the user
// reply. Failures are logged and dropped.
func (o *Orchestrator) alert(ctx context.Context, sessionID, lang string) {
	if o.notifier == nil {
		return
	}
	go func() {
		alertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := o.notifier.SendCrisisAlert(alertCtx, sessionID, lang); err != nil {
			slog.Error("chat.Orchestrator.alert: crisis alert failed", "error", err, "sessionID", sessionID)
		}
	}()
}
