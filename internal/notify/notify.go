// Package notify wraps the Twilio API for operator crisis alerts in U-Well.
//
// When configured, a short SMS goes to the on-call counselor number whenever
// the chat safety net fires. Alerts are best-effort: failures are logged by
// the caller and never shown to the end user.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Opts holds configuration options for the crisis alert client.
type Opts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
	ToNumber   string
}

// Option defines a configuration option for the crisis alert client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.FromNumber = from }
}

// WithToNumber sets the on-call number that receives alerts.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.ToNumber = to }
}

// Client sends crisis alert SMS messages via Twilio.
type Client struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewClient creates the alert client, falling back to environment variables
// (TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER, CRISIS_ALERT_TO)
// for unset options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.ToNumber == "" {
		cfg.ToNumber = os.Getenv("CRISIS_ALERT_TO")
	}
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("Twilio credentials not set")
	}
	if cfg.FromNumber == "" || cfg.ToNumber == "" {
		return nil, fmt.Errorf("Twilio from/to numbers not set")
	}

	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	slog.Debug("notify.NewClient: crisis alert client configured", "to_set", cfg.ToNumber != "")
	return &Client{client: rest, from: cfg.FromNumber, to: cfg.ToNumber}, nil
}

// SendCrisisAlert notifies the on-call number that a session triggered the
// crisis safety net. Only the opaque session token is included.
func (c *Client) SendCrisisAlert(ctx context.Context, sessionID, lang string) error {
	body := fmt.Sprintf("U-Well crisis alert: session %s (lang %s) triggered the crisis safety net.", sessionID, lang)

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(c.to)
	params.SetFrom(c.from)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("failed to send crisis alert: %w", err)
	}
	slog.Info("notify.Client.SendCrisisAlert: alert sent", "sessionID", sessionID)
	return nil
}
