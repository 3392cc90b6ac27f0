// Package identity wraps the hosted authentication provider's admin API.
// The provider is the source of truth for credentials, ban status and
// sessions; this client covers the small admin surface the dashboard needs.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// PermanentBanDuration is the effectively-infinite sentinel the provider
// accepts for permanent bans (100 years).
const PermanentBanDuration = "876000h"

// UnbanDuration lifts a ban.
const UnbanDuration = "none"

// User is the subset of the provider's user record the dashboard reads.
type User struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	BannedFor string         `json:"banned_until,omitempty"`
	Metadata  map[string]any `json:"user_metadata,omitempty"`
}

// UserUpdate carries the mutable fields of a provider user record. Nil
// fields are left untouched.
type UserUpdate struct {
	Password    *string        `json:"password,omitempty"`
	BanDuration *string        `json:"ban_duration,omitempty"`
	Metadata    map[string]any `json:"user_metadata,omitempty"`
}

// AdminClient is the provider surface consumed by the admin services.
type AdminClient interface {
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) error
	DeleteUser(ctx context.Context, id string) error
}

// Config contains credentials required to talk to the identity provider.
type Config struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
}

// Client is the HTTP implementation of AdminClient.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     zerolog.Logger
}

// New constructs an identity admin client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.ServiceKey == "" {
		return nil, fmt.Errorf("identity provider url and service key must be provided")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "identity_client").Logger(),
	}, nil
}

// GetUser fetches one user record by id.
func (c *Client) GetUser(ctx context.Context, id string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/admin/users/"+id, nil, &user); err != nil {
		return User{}, err
	}

	return user, nil
}

// UpdateUser applies a partial update (password, ban duration, metadata).
func (c *Client) UpdateUser(ctx context.Context, id string, update UserUpdate) error {
	return c.do(ctx, http.MethodPut, "/admin/users/"+id, update, nil)
}

// DeleteUser removes the user account. Dependent member rows are removed by
// the database's foreign key cascade, not by this client.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/admin/users/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode identity request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("identity request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn().Int("status", resp.StatusCode).Str("path", path).Msg("identity provider rejected request")
		return fmt.Errorf("identity provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode identity response: %w", err)
		}
	}

	return nil
}
