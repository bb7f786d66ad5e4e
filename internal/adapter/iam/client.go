// Package iam provisions user identities in the external identity
// provider's management API, authenticating with client credentials.
package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/neomorfeo/useriq/internal/domain"
)

// expiryHaircut is subtracted from the token lifetime so a token near the
// end of its window is never handed to an outbound call.
const expiryHaircut = 60 * time.Second

const defaultConnection = "Username-Password-Authentication"

// Compile-time check: Client implements domain.IdentityProvider.
var _ domain.IdentityProvider = (*Client)(nil)

// Config holds the management API credentials.
type Config struct {
	// BaseURL is the tenant root, e.g. https://example.auth.test.
	BaseURL      string
	ClientID     string
	ClientSecret string
	Audience     string
	// Connection names the identity store new users are created in.
	// Empty selects the provider's username/password database.
	Connection string
}

// Client talks to the identity provider's management API. Access tokens
// are cached until shortly before expiry and shared across calls.
type Client struct {
	cfg  Config
	http *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// New creates a client. Tokens are fetched on demand; call Refresh in a
// background goroutine to keep the cache warm.
func New(cfg Config) *Client {
	if cfg.Connection == "" {
		cfg.Connection = defaultConnection
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// getValidToken returns a cached token, fetching a fresh one when the
// cached token is missing or inside the expiry haircut.
func (c *Client) getValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	token, expiry, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	c.token = token
	c.expiry = expiry
	return token, nil
}

// fetchToken performs the client-credentials exchange. Caller holds c.mu.
func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.cfg.ClientID,
		"client_secret": c.cfg.ClientSecret,
		"audience":      c.cfg.Audience,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("requesting access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", time.Time{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, msg)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", time.Time{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned empty access token")
	}

	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)

	// Prefer the exp claim when the token is a parseable JWT; expires_in
	// is advisory and some providers round it.
	if claims := jwtExpiry(tok.AccessToken); !claims.IsZero() && claims.Before(expiry) {
		expiry = claims
	}

	return tok.AccessToken, expiry.Add(-expiryHaircut), nil
}

// jwtExpiry extracts the exp claim without verifying the signature. The
// token is only inspected for cache bookkeeping, never trusted.
func jwtExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Refresh keeps the token cache warm until ctx is cancelled. Each cycle
// sleeps until just before the cached token's haircut window and fetches
// a replacement, so foreground calls rarely pay the exchange latency.
func (c *Client) Refresh(ctx context.Context) {
	for {
		c.mu.Lock()
		wait := time.Until(c.expiry)
		c.mu.Unlock()
		if wait < time.Second {
			wait = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		c.mu.Lock()
		c.token = ""
		c.mu.Unlock()
		if _, err := c.getValidToken(ctx); err != nil {
			slog.WarnContext(ctx, "background token refresh failed", "error", err)
		}
	}
}

type createUserRequest struct {
	Email         string `json:"email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Password      string `json:"password"`
	Connection    string `json:"connection"`
	EmailVerified bool   `json:"email_verified"`

	AppMetadata map[string]string `json:"app_metadata,omitempty"`
}

// CreateIdentity creates the user in the provider's identity store. The
// confirmation flow already verified the address, so the identity is
// created with the email marked verified.
func (c *Client) CreateIdentity(ctx context.Context, user domain.User, initialPassword string) error {
	token, err := c.getValidToken(ctx)
	if err != nil {
		return fmt.Errorf("acquiring management token: %w", err)
	}

	body, err := json.Marshal(createUserRequest{
		Email:         user.Email,
		GivenName:     user.FirstName,
		FamilyName:    user.LastName,
		Password:      initialPassword,
		Connection:    c.cfg.Connection,
		EmailVerified: true,
		AppMetadata: map[string]string{
			"tenancy_id": user.TenancyID,
			"user_id":    user.ID,
		},
	})
	if err != nil {
		return fmt.Errorf("encoding create user request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v2/users", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building create user request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("creating identity for user %s: %w", user.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("identity provider returned %d for user %s: %s", resp.StatusCode, user.ID, msg)
	}

	slog.InfoContext(ctx, "identity provisioned", "user_id", user.ID, "tenancy_id", user.TenancyID)
	return nil
}
