// Copyright (c) 2026 Scout HQ, Inc. All rights reserved.
// Author: platform@scout-hq.io

/*
Package authclient is the Go SDK for the Scout identity API.

It manages the full client-side session lifecycle: credential storage across
durable and ephemeral scopes, bearer injection, transparent access-token
refresh with single-flight deduplication, and an observable auth state for
UI frontends.

Architecture:

  - Store: Two-scope credential storage (file for "remember me", memory otherwise).
  - Transport: http.RoundTripper that injects tokens and retries once after refresh.
  - Coordinator: Collapses concurrent refreshes into a single network call.
  - Controller: Mutex-guarded auth state machine for login/logout/initialize.

Usage:

	client, err := authclient.New(authclient.Config{
	    BaseURL: "https://api.scout-hq.io",
	    Store:   authclient.NewFileStore(credPath),
	})
	if err != nil { ... }

	outcome, err := client.Login(ctx, authclient.LoginInput{
	    Email:    "jordan@acme.test",
	    Password: password,
	    Remember: true,
	})

Business calls made through client.HTTPClient() automatically carry the
bearer token and survive access-token expiry.
*/
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// # Configuration

// DefaultTimeout bounds every request issued by the SDK, including the
// refresh retry that may follow a 401.
const DefaultTimeout = 15 * time.Second

// Config carries the dependencies and knobs for building a [Client].
type Config struct {
	// BaseURL is the root of the identity API, e.g. "https://api.scout-hq.io".
	BaseURL string

	// Store holds the session credentials. Required.
	Store *Store

	// HTTPClient is the client used for the underlying network calls.
	// Its Transport is wrapped, never replaced. Optional.
	HTTPClient *http.Client

	// Timeout overrides DefaultTimeout when positive.
	Timeout time.Duration

	// Logger receives SDK diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// OnSessionExpired fires once when a refresh fails and the local
	// session has been cleared. Optional.
	OnSessionExpired func()
}

// Client is a session-scoped handle on the Scout identity API.
//
// The zero value is not usable; construct with [New].
type Client struct {
	baseURL string
	store   *Store
	logger  *slog.Logger

	// authHTTP performs the auth endpoints themselves (login, refresh,
	// logout, MFA). It is deliberately free of the refreshing Transport:
	// a 401 from /auth/refresh must never trigger another refresh.
	authHTTP *http.Client

	// apiHTTP carries the refreshing Transport and serves /me plus all
	// business traffic issued through HTTPClient().
	apiHTTP *http.Client

	refresher *Coordinator
	transport *Transport
}

// New validates the config and assembles the client with its two HTTP stacks.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("authclient: BaseURL is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("authclient: Store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	var baseTransport http.RoundTripper = http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		baseTransport = cfg.HTTPClient.Transport
	}

	authHTTP := &http.Client{
		Transport: baseTransport,
		Timeout:   timeout,
	}

	coordinator := NewCoordinator(cfg.Store, authHTTP, baseURL+"/api/v1/auth/refresh", logger)
	transport := NewTransport(baseTransport, cfg.Store, coordinator, logger, cfg.OnSessionExpired)

	apiHTTP := &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}

	return &Client{
		baseURL:   baseURL,
		store:     cfg.Store,
		logger:    logger,
		authHTTP:  authHTTP,
		apiHTTP:   apiHTTP,
		refresher: coordinator,
		transport: transport,
	}, nil
}

// HTTPClient returns the refresh-capable client for business API calls.
// Requests issued through it carry the bearer token automatically.
func (c *Client) HTTPClient() *http.Client {
	return c.apiHTTP
}

// Store returns the credential store backing this client.
func (c *Client) Store() *Store {
	return c.store
}

// # Wire Types

// User is the account profile as returned by the identity API.
type User struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Role        string     `json:"role"`
	CompanyID   string     `json:"company_id,omitempty"`
	MFAEnabled  bool       `json:"mfa_enabled"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// sessionPayload is the success body shared by login, MFA, and refresh.
type sessionPayload struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         *User    `json:"user"`
	Permissions  []string `json:"permissions"`
}

// mfaPayload is the login body when the account requires a second factor.
type mfaPayload struct {
	MFARequired bool     `json:"mfa_required"`
	Challenge   string   `json:"challenge"`
	Methods     []string `json:"methods"`
}

// LoginInput carries the credentials for a login attempt.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	// Company is the optional tenant handle, display form accepted.
	Company string `json:"company,omitempty"`
	// Remember selects the durable credential scope (30-day session).
	Remember bool `json:"remember"`
}

// LoginOutcome is the result of a login attempt.
//
// When MFARequired is set the session is NOT established yet; complete it
// with [Client.VerifyMFA] using ChallengeID.
type LoginOutcome struct {
	MFARequired bool
	ChallengeID string
	MFAMethods  []string

	User        *User
	Permissions []string
}

// # Auth Endpoints

// Login authenticates with the identity API and stores the issued pair.
//
// Accounts protected by MFA receive a pending challenge instead of tokens;
// see [LoginOutcome].
func (c *Client) Login(ctx context.Context, input LoginInput) (*LoginOutcome, error) {
	raw, err := c.postAuth(ctx, "/api/v1/auth/login", input)
	if err != nil {
		return nil, err
	}

	// The login endpoint has two success shapes; sniff for the MFA branch.
	var mfa mfaPayload
	if err := json.Unmarshal(raw, &mfa); err == nil && mfa.MFARequired {
		c.logger.Debug("login requires mfa", slog.String("challenge", mfa.Challenge))
		return &LoginOutcome{
			MFARequired: true,
			ChallengeID: mfa.Challenge,
			MFAMethods:  mfa.Methods,
		}, nil
	}

	session, err := c.adoptSession(raw, input.Remember)
	if err != nil {
		return nil, err
	}

	return &LoginOutcome{User: session.User, Permissions: session.Permissions}, nil
}

// VerifyMFA answers a pending login challenge and stores the issued pair.
//
// remember must repeat the value given at login; it selects the credential
// scope for the issued pair.
func (c *Client) VerifyMFA(ctx context.Context, challengeID, code string, remember bool) (*LoginOutcome, error) {
	raw, err := c.postAuth(ctx, "/api/v1/auth/mfa/verify", map[string]string{
		"challenge": challengeID,
		"code":      code,
	})
	if err != nil {
		return nil, err
	}

	session, err := c.adoptSession(raw, remember)
	if err != nil {
		return nil, err
	}

	return &LoginOutcome{User: session.User, Permissions: session.Permissions}, nil
}

// Logout revokes the server-side session and wipes local credentials.
//
// The local teardown happens unconditionally: a dead server must not be able
// to pin a client in a logged-in state. Idempotent.
func (c *Client) Logout(ctx context.Context) error {
	stored, err := c.store.Read()
	if err == nil && stored != nil && stored.RefreshToken != "" {
		// Best effort; the server treats unknown tokens as already revoked.
		if _, err := c.postAuth(ctx, "/api/v1/auth/logout", map[string]string{
			"refresh_token": stored.RefreshToken,
		}); err != nil {
			c.logger.Debug("server-side logout failed", slog.String("error", err.Error()))
		}
	}

	return c.store.Clear()
}

// Me fetches the authenticated user's profile.
//
// The call rides the refresh-capable client, so an expired access token is
// rotated transparently.
func (c *Client) Me(ctx context.Context) (*User, []string, error) {
	stored, err := c.store.Read()
	if err != nil {
		return nil, nil, err
	}
	if stored == nil {
		return nil, nil, ErrNoSession
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth/me", nil)
	if err != nil {
		return nil, nil, fmt.Errorf("authclient: failed to build request: %w", err)
	}

	response, err := c.apiHTTP.Do(request)
	if err != nil {
		return nil, nil, fmt.Errorf("authclient: request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return nil, nil, decodeAPIError(response)
	}

	var envelope struct {
		Data struct {
			User        *User    `json:"user"`
			Permissions []string `json:"permissions"`
		} `json:"data"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return nil, nil, fmt.Errorf("authclient: failed to decode response: %w", err)
	}

	return envelope.Data.User, envelope.Data.Permissions, nil
}

// RefreshSession forces a token rotation with the stored pair and returns
// the re-verified profile.
//
// Unlike the transparent refresh inside the Transport, this rotates even
// while the access token is still valid. A failed rotation performs the same
// teardown as the 401 interceptor: credentials cleared, expiry hook fired.
func (c *Client) RefreshSession(ctx context.Context) (*User, []string, error) {
	stored, err := c.store.Read()
	if err != nil {
		return nil, nil, err
	}
	if stored == nil {
		return nil, nil, ErrNoSession
	}

	if _, err := c.refresher.Refresh(ctx, stored.AccessToken); err != nil {
		_ = c.store.Clear()
		c.transport.notifyExpired(stored.AccessToken)
		return nil, nil, err
	}

	return c.Me(ctx)
}

// RequestPasswordReset asks the server to start the forgot-password flow.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := c.postAuth(ctx, "/api/v1/auth/password-reset", map[string]string{"email": email})
	return err
}

// ConfirmPasswordReset completes the forgot-password flow with the token
// the user received out of band.
func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	_, err := c.postAuth(ctx, "/api/v1/auth/password-reset/confirm", map[string]string{
		"token":    token,
		"password": newPassword,
	})
	return err
}

// ChangePassword updates the authenticated user's password. All sessions,
// including this one, are revoked server side; the local pair is cleared.
func (c *Client) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	payload, err := json.Marshal(map[string]string{
		"current_password": currentPassword,
		"new_password":     newPassword,
	})
	if err != nil {
		return fmt.Errorf("authclient: failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/change-password", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("authclient: failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.apiHTTP.Do(request)
	if err != nil {
		return fmt.Errorf("authclient: request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return decodeAPIError(response)
	}

	// The server revoked every session; drop the now-dead local pair.
	return c.store.Clear()
}

// # Internal Plumbing

// postAuth issues a JSON POST on the bare (non-refreshing) client and
// returns the raw "data" payload.
func (c *Client) postAuth(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("authclient: failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("authclient: failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.authHTTP.Do(request)
	if err != nil {
		return nil, fmt.Errorf("authclient: request failed: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, decodeAPIError(response)
	}

	if response.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("authclient: failed to decode response: %w", err)
	}

	return envelope.Data, nil
}

// adoptSession decodes a session payload and stores its token pair in the
// scope selected by remember.
func (c *Client) adoptSession(raw json.RawMessage, remember bool) (*sessionPayload, error) {
	var session sessionPayload
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("authclient: failed to decode session: %w", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		return nil, fmt.Errorf("authclient: session response missing tokens")
	}

	creds := Credentials{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
	}
	if err := c.store.Write(creds, remember); err != nil {
		return nil, err
	}

	return &session, nil
}

// decodeAPIError turns a non-2xx response into an [*APIError].
func decodeAPIError(response *http.Response) *APIError {
	apiErr := &APIError{
		Status:  response.StatusCode,
		Code:    "UNKNOWN",
		Message: http.StatusText(response.StatusCode),
	}

	var envelope struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(response.Body).Decode(&envelope); err == nil {
		if envelope.Code != "" {
			apiErr.Code = envelope.Code
		}
		if envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
	}

	return apiErr
}
