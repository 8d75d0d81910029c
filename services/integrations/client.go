// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package integrations holds the upstream tool adapters: Jira, Zoho
// Projects, Zoho Calendar and Zoho WorkDrive (with Cliq sharing). Each
// adapter is a thin, typed wrapper over the vendor's REST API; retry and
// token lifecycle concerns live with the caller.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/zoho-actionizer/actionizer-backend/services/llm"
)

// =============================================================================
// Configuration
// =============================================================================

// Config carries the upstream API bases. Tests point these at local fakes.
type Config struct {
	JiraBaseURL      string
	ProjectsBaseURL  string
	CalendarBaseURL  string
	WorkDriveBaseURL string
	CliqBaseURL      string

	// Timeout bounds each upstream call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 30 * time.Second

// DefaultConfig returns production endpoints.
func DefaultConfig() Config {
	return Config{
		JiraBaseURL:      "https://your-domain.atlassian.net",
		ProjectsBaseURL:  "https://projectsapi.zoho.com/restapi",
		CalendarBaseURL:  "https://calendar.zoho.com/api/v1",
		WorkDriveBaseURL: "https://www.zohoapis.com/workdrive/api/v1",
		CliqBaseURL:      "https://cliq.zoho.com",
		Timeout:          DefaultTimeout,
	}
}

// =============================================================================
// Errors
// =============================================================================

// APIError is a non-2xx reply from an upstream API. The body is redacted
// before storage so it is safe to log.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// ErrFileNotFound means a WorkDrive lookup matched nothing.
var ErrFileNotFound = fmt.Errorf("integrations: no matching file found")

// ErrUnsupportedCliqTarget means the share target names a type the adapter
// does not handle (only chat targets are implemented).
var ErrUnsupportedCliqTarget = fmt.Errorf("integrations: unsupported cliq target type")

// =============================================================================
// Client
// =============================================================================

// Client is the shared HTTP plumbing under every adapter.
//
// # Thread Safety
//
// Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an adapter client over the given endpoints.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// zohoHeaders returns the auth headers every Zoho product API expects.
func zohoHeaders(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Zoho-oauthtoken "+accessToken)
	h.Set("Content-Type", "application/json")
	return h
}

// doJSON issues one request and decodes a JSON reply into out.
//
// # Inputs
//
//   - headers: Pre-built auth headers. Content-Type is overridden to JSON
//     when payload is non-nil.
//   - query: Optional query parameters.
//   - payload: Marshalled as the JSON request body when non-nil.
//   - out: Decode target; nil discards the body.
//
// # Outputs
//
//   - error: *APIError on a non-2xx reply, otherwise transport or decode
//     failures.
func (c *Client) doJSON(ctx context.Context, method, rawURL string, headers http.Header, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       llm.SafeLogString(string(respBody)),
		}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing response JSON: %w", err)
	}
	return nil
}

// doRaw issues one request and returns the raw reply bytes. Used for file
// downloads where the body is not JSON.
func (c *Client) doRaw(ctx context.Context, method, rawURL string, headers http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       llm.SafeLogString(string(body)),
		}
	}
	return body, nil
}
