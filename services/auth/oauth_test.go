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
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// newAccountsServer fakes the accounts server's token endpoint. Each call's
// form is recorded into forms; reply is returned verbatim with the given
// status.
func newAccountsServer(t *testing.T, status int, reply string, forms *[]url.Values) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/v2/token" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if forms != nil {
			*forms = append(*forms, r.PostForm)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthClient(accountsURL string) *OAuthClient {
	return NewOAuthClient(OAuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8080/callback",
		AccountsURL:  accountsURL,
		Scopes:       DefaultScopes,
	})
}

func TestAuthorizeURL_CarriesTenantInState(t *testing.T) {
	c := testOAuthClient("https://accounts.example.com")
	raw := c.AuthorizeURL("acme")

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if u.Path != "/oauth/v2/auth" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	if q.Get("state") != "acme" {
		t.Errorf("state = %q, want acme", q.Get("state"))
	}
	if q.Get("response_type") != "code" {
		t.Errorf("response_type = %q", q.Get("response_type"))
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("access_type = %q", q.Get("access_type"))
	}
	if !strings.Contains(q.Get("scope"), "ZohoProjects.tasks.ALL") {
		t.Errorf("scope missing tasks grant: %q", q.Get("scope"))
	}

	// Empty tenant falls back to the default.
	u2, _ := url.Parse(c.AuthorizeURL(""))
	if u2.Query().Get("state") != DefaultTenant {
		t.Errorf("empty tenant state = %q", u2.Query().Get("state"))
	}
}

func TestExchange_ReturnsRecord(t *testing.T) {
	var forms []url.Values
	srv := newAccountsServer(t, http.StatusOK,
		`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`, &forms)
	c := testOAuthClient(srv.URL)

	before := time.Now()
	rec, err := c.Exchange(context.Background(), "grant-code", "")
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if rec.AccessToken != "at-1" || rec.RefreshToken != "rt-1" {
		t.Fatalf("record = %+v", rec)
	}
	remaining := rec.ExpiryTS.Sub(before)
	if remaining < 59*time.Minute || remaining > 61*time.Minute {
		t.Errorf("expiry %v from now, want ~1h", remaining)
	}

	if len(forms) != 1 {
		t.Fatalf("got %d token calls, want 1", len(forms))
	}
	form := forms[0]
	if form.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", form.Get("grant_type"))
	}
	if form.Get("code") != "grant-code" {
		t.Errorf("code = %q", form.Get("code"))
	}
}

func TestExchange_AccountsServerOverride(t *testing.T) {
	var forms []url.Values
	srv := newAccountsServer(t, http.StatusOK,
		`{"access_token":"at","refresh_token":"rt","expires_in":3600}`, &forms)

	// Configured URL is unreachable garbage; the override must win.
	c := testOAuthClient("http://127.0.0.1:1")
	if _, err := c.Exchange(context.Background(), "code", srv.URL); err != nil {
		t.Fatalf("Exchange with override: %v", err)
	}
	if len(forms) != 1 {
		t.Fatalf("override server saw %d calls, want 1", len(forms))
	}
}

func TestExchange_RejectsMissingRefreshToken(t *testing.T) {
	srv := newAccountsServer(t, http.StatusOK, `{"access_token":"at","expires_in":3600}`, nil)
	c := testOAuthClient(srv.URL)

	if _, err := c.Exchange(context.Background(), "code", ""); err == nil {
		t.Fatal("expected error for reply without refresh token")
	}
}

func TestExchange_RejectsMissingAccessToken(t *testing.T) {
	srv := newAccountsServer(t, http.StatusOK, `{"refresh_token":"rt","expires_in":3600}`, nil)
	c := testOAuthClient(srv.URL)

	// A record without an access token would never read as authenticated,
	// leaving the tenant stuck until re-authorization.
	if _, err := c.Exchange(context.Background(), "code", ""); err == nil {
		t.Fatal("expected error for reply without access token")
	}
}

func TestExchange_ErrorInOKBody(t *testing.T) {
	srv := newAccountsServer(t, http.StatusOK, `{"error":"invalid_code"}`, nil)
	c := testOAuthClient(srv.URL)

	_, err := c.Exchange(context.Background(), "used-code", "")
	if err == nil {
		t.Fatal("expected error for 200 body with error field")
	}
	if !strings.Contains(err.Error(), "invalid_code") {
		t.Errorf("error %q should name the server's error code", err)
	}
}

func TestRefresh_ReturnsNewAccessToken(t *testing.T) {
	var forms []url.Values
	srv := newAccountsServer(t, http.StatusOK,
		`{"access_token":"at-2","expires_in":3600}`, &forms)
	c := testOAuthClient(srv.URL)

	token, expiry, err := c.Refresh(context.Background(), "rt-1")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if token != "at-2" {
		t.Errorf("token = %q", token)
	}
	if !expiry.After(time.Now()) {
		t.Errorf("expiry %v not in the future", expiry)
	}
	if forms[0].Get("grant_type") != "refresh_token" {
		t.Errorf("grant_type = %q", forms[0].Get("grant_type"))
	}
	if forms[0].Get("refresh_token") != "rt-1" {
		t.Errorf("refresh_token = %q", forms[0].Get("refresh_token"))
	}
}

func TestRefresh_NonOKStatus(t *testing.T) {
	srv := newAccountsServer(t, http.StatusBadRequest, `{"error":"invalid_client"}`, nil)
	c := testOAuthClient(srv.URL)

	if _, _, err := c.Refresh(context.Background(), "rt"); err == nil {
		t.Fatal("expected error for 400 reply")
	}
}
