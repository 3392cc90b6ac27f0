// Package mailer delivers transactional email through the hosted delivery
// provider's REST API. Inline HTML content is sanitized before it leaves the
// process since parts of it may originate from admin input.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// Message describes one outgoing email. Either TemplateID with Variables, or
// inline HTML, must be set.
type Message struct {
	To         string
	Subject    string
	HTML       string
	TemplateID string
	Variables  map[string]any
}

// Sender is the delivery surface consumed by the admin services.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Config contains credentials for the delivery provider.
type Config struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// Client is the HTTP implementation of Sender.
type Client struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// New constructs a mail client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.From == "" {
		return nil, fmt.Errorf("mailer url, api key and sender address must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		from:       cfg.From,
		httpClient: &http.Client{Timeout: timeout},
		sanitizer:  bluemonday.UGCPolicy(),
		logger:     logger.With().Str("component", "mailer").Logger(),
	}, nil
}

type sendRequest struct {
	From       string         `json:"from"`
	To         []string       `json:"to"`
	Subject    string         `json:"subject"`
	HTML       string         `json:"html,omitempty"`
	TemplateID string         `json:"template_id,omitempty"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// Send delivers one message. A non-2xx provider response is returned as an
// error with the provider's message passed through.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("recipient address is required")
	}
	if msg.TemplateID == "" && strings.TrimSpace(msg.HTML) == "" {
		return fmt.Errorf("either template id or html content is required")
	}

	body := sendRequest{
		From:       c.from,
		To:         []string{msg.To},
		Subject:    msg.Subject,
		TemplateID: msg.TemplateID,
		Variables:  msg.Variables,
	}
	if msg.HTML != "" {
		body.HTML = c.sanitizer.Sanitize(msg.HTML)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn().Int("status", resp.StatusCode).Str("to", msg.To).Msg("mail provider rejected request")
		return fmt.Errorf("mail provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	c.logger.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("mail delivered to provider")

	return nil
}
