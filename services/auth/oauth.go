// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/zoho-actionizer/actionizer-backend/services/llm"
)

// Scopes requested during the browser authorization flow. One grant covers
// every tool the dispatcher can call, so a single consent screen is enough.
var DefaultScopes = []string{
	"ZohoProjects.portals.ALL",
	"ZohoProjects.tasks.ALL",
	"ZohoCalendar.event.ALL",
	"WorkDrive.files.READ",
	"WorkDrive.files.ALL",
}

// OAuthConfig holds the OAuth application registration for this deployment.
//
// One registration is shared by all tenants (see DESIGN.md); tenants are
// distinguished by the state parameter round-tripped through the consent
// screen, not by separate client credentials.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AccountsURL  string
	Scopes       []string
}

// LoadOAuthConfig reads the OAuth app registration from the environment.
//
// # Description
//
// Reads ZOHO_CLIENT_ID, ZOHO_CLIENT_SECRET, ZOHO_ACCOUNTS_URL and
// OAUTH_REDIRECT_URI. The accounts URL defaults to the .com data center;
// the redirect URI defaults to the local callback for development.
//
// # Outputs
//
//   - OAuthConfig: The loaded configuration.
//   - error: Non-nil if client id or secret is missing.
func LoadOAuthConfig() (OAuthConfig, error) {
	cfg := OAuthConfig{
		ClientID:     os.Getenv("ZOHO_CLIENT_ID"),
		ClientSecret: os.Getenv("ZOHO_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("OAUTH_REDIRECT_URI"),
		AccountsURL:  os.Getenv("ZOHO_ACCOUNTS_URL"),
		Scopes:       DefaultScopes,
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return OAuthConfig{}, fmt.Errorf("oauth: ZOHO_CLIENT_ID and ZOHO_CLIENT_SECRET must be set")
	}
	if cfg.AccountsURL == "" {
		cfg.AccountsURL = "https://accounts.zoho.com"
	}
	if cfg.RedirectURI == "" {
		cfg.RedirectURI = "http://localhost:8080/callback"
		slog.Info("OAUTH_REDIRECT_URI not set, defaulting to local callback",
			slog.String("redirect_uri", cfg.RedirectURI))
	}
	return cfg, nil
}

// OAuthClient talks to the accounts server: it builds authorize URLs and
// performs the code-exchange and refresh grants.
//
// # Thread Safety
//
// Safe for concurrent use.
type OAuthClient struct {
	cfg        OAuthConfig
	httpClient *http.Client
}

// NewOAuthClient creates an OAuthClient for the given registration.
func NewOAuthClient(cfg OAuthConfig) *OAuthClient {
	return &OAuthClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// tokenResponse is the accounts server's reply to either grant.
//
// The accounts server signals some failures with HTTP 200 plus an "error"
// field in the body, so both paths must be checked.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	APIDomain    string `json:"api_domain"`
	Error        string `json:"error"`
}

// AuthorizeURL builds the browser redirect target for the consent screen.
//
// # Inputs
//
//   - tenant: Round-tripped through the state parameter so the callback can
//     attribute the grant. Empty means DefaultTenant.
//
// # Outputs
//
//   - string: Fully-encoded authorize URL on the accounts server.
func (c *OAuthClient) AuthorizeURL(tenant string) string {
	if tenant == "" {
		tenant = DefaultTenant
	}
	q := url.Values{}
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("client_id", c.cfg.ClientID)
	q.Set("response_type", "code")
	q.Set("access_type", "offline")
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("state", tenant)
	return c.cfg.AccountsURL + "/oauth/v2/auth?" + q.Encode()
}

// Exchange turns a one-time grant code into the first token set.
//
// # Description
//
// Grant codes are single-use: the caller (the OAuth callback handler) must
// invoke this exactly once per code. accountsServer overrides the configured
// accounts URL when the callback's accounts-server parameter names a
// different data center; empty uses the configured default.
//
// # Outputs
//
//   - TokenRecord: Access + refresh token with an absolute expiry.
//   - error: Non-nil on transport failure or an error reply.
func (c *OAuthClient) Exchange(ctx context.Context, code, accountsServer string) (TokenRecord, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)

	resp, err := c.postToken(ctx, accountsServer, form)
	if err != nil {
		return TokenRecord{}, fmt.Errorf("oauth: code exchange: %w", err)
	}
	if resp.AccessToken == "" {
		return TokenRecord{}, fmt.Errorf("oauth: code exchange returned no access token")
	}
	if resp.RefreshToken == "" {
		return TokenRecord{}, fmt.Errorf("oauth: code exchange returned no refresh token")
	}
	return TokenRecord{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiryTS:     time.Now().Add(expiryDuration(resp.ExpiresIn)),
	}, nil
}

// Refresh obtains a new access token from a stored refresh token.
//
// The refresh token itself is not rotated by the accounts server; the caller
// keeps the existing one.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (accessToken string, expiry time.Time, err error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("refresh_token", refreshToken)

	resp, err := c.postToken(ctx, "", form)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("oauth: refresh: %w", err)
	}
	if resp.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("oauth: refresh returned no access token")
	}
	return resp.AccessToken, time.Now().Add(expiryDuration(resp.ExpiresIn)), nil
}

// postToken sends a form POST to the token endpoint and decodes the reply.
func (c *OAuthClient) postToken(ctx context.Context, accountsServer string, form url.Values) (*tokenResponse, error) {
	base := c.cfg.AccountsURL
	if accountsServer != "" {
		base = accountsServer
	}
	endpoint := base + "/oauth/v2/token"

	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("accounts server returned status %d: %s",
			httpResp.StatusCode, llm.SafeLogString(string(bodyBytes)))
	}

	var resp tokenResponse
	if err := json.Unmarshal(bodyBytes, &resp); err != nil {
		return nil, fmt.Errorf("parsing response JSON: %w", err)
	}
	if resp.Error != "" {
		// 200-with-error is how the accounts server reports invalid or
		// already-used grant codes.
		return nil, fmt.Errorf("accounts server error: %s", resp.Error)
	}
	return &resp, nil
}

// expiryDuration converts the server's expires_in seconds to a duration,
// defaulting to one hour when absent.
func expiryDuration(expiresIn int) time.Duration {
	if expiresIn <= 0 {
		return time.Hour
	}
	return time.Duration(expiresIn) * time.Second
}
