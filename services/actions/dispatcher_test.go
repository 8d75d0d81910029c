// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package actions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/zoho-actionizer/actionizer-backend/services/auth"
	"github.com/zoho-actionizer/actionizer-backend/services/integrations"
)

// stubTokens fakes the token manager, counting lookups.
type stubTokens struct {
	token string
	err   error
	calls atomic.Int64
}

func (s *stubTokens) GetToken(_ context.Context, _ string) (string, error) {
	s.calls.Add(1)
	if s.err != nil {
		return "", s.err
	}
	return s.token, nil
}

// upstreamRecord captures one adapter request.
type upstreamRecord struct {
	Path string
	Body []byte
	Auth string
}

func newAdapterUpstream(t *testing.T, status int, reply string, recs *[]upstreamRecord) *integrations.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		*recs = append(*recs, upstreamRecord{
			Path: r.URL.Path,
			Body: body,
			Auth: r.Header.Get("Authorization"),
		})
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return integrations.NewClient(integrations.Config{
		JiraBaseURL:      srv.URL,
		ProjectsBaseURL:  srv.URL,
		CalendarBaseURL:  srv.URL,
		WorkDriveBaseURL: srv.URL,
		CliqBaseURL:      srv.URL,
	}, nil)
}

func newTestDispatcher(t *testing.T, tokens TokenSource, client *integrations.Client) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DefaultCatalog(), tokens, client, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func TestNewDispatcher_RejectsUncoveredCatalog(t *testing.T) {
	catalog, err := NewCatalog([]ToolSpec{{Name: "teleport", ExpectedFields: []string{"where"}}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	var recs []upstreamRecord
	_, err = NewDispatcher(catalog, &stubTokens{token: "t"}, newAdapterUpstream(t, 200, `{}`, &recs), nil)
	if err == nil {
		t.Fatal("catalog tool without a handler must fail construction")
	}
}

func TestDispatch_UnsupportedTool(t *testing.T) {
	var recs []upstreamRecord
	tokens := &stubTokens{token: "t"}
	d := newTestDispatcher(t, tokens, newAdapterUpstream(t, 200, `{}`, &recs))

	_, err := d.Dispatch(context.Background(), "ftp", "acme", nil)
	if CodeOf(err) != CodeUnsupportedTool {
		t.Fatalf("err = %v, want UNSUPPORTED_TOOL", err)
	}
	if tokens.calls.Load() != 0 {
		t.Error("token requested for unsupported tool")
	}
}

func TestDispatch_AuthRequiredSkipsAdapter(t *testing.T) {
	var recs []upstreamRecord
	tokens := &stubTokens{err: auth.ErrAuthRequired}
	d := newTestDispatcher(t, tokens, newAdapterUpstream(t, 200, `{}`, &recs))

	_, err := d.Dispatch(context.Background(), "jira", "acme", map[string]any{
		"project_key": "OPS", "summary": "x",
	})
	if CodeOf(err) != CodeAuthRequired {
		t.Fatalf("err = %v, want AUTH_REQUIRED", err)
	}
	if len(recs) != 0 {
		t.Errorf("adapter invoked %d times despite missing token", len(recs))
	}
}

func TestDispatch_RefreshFailureIsAuthRequired(t *testing.T) {
	var recs []upstreamRecord
	tokens := &stubTokens{err: auth.ErrRefreshFailed}
	d := newTestDispatcher(t, tokens, newAdapterUpstream(t, 200, `{}`, &recs))

	_, err := d.Dispatch(context.Background(), "jira", "acme", map[string]any{
		"project_key": "OPS", "summary": "x",
	})
	if CodeOf(err) != CodeAuthRequired {
		t.Fatalf("err = %v, want AUTH_REQUIRED", err)
	}
}

func TestDispatch_JiraCallsAdapterOnceWithFields(t *testing.T) {
	var recs []upstreamRecord
	tokens := &stubTokens{token: "tok-1"}
	d := newTestDispatcher(t, tokens,
		newAdapterUpstream(t, http.StatusCreated, `{"id":"10001","key":"OPS-7"}`, &recs))

	result, err := d.Dispatch(context.Background(), "jira", "acme", map[string]any{
		"project_key": "OPS",
		"summary":     "Fix payment bug",
		"description": "prefilled description",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(recs) != 1 {
		t.Fatalf("adapter called %d times, want exactly 1", len(recs))
	}
	if recs[0].Auth != "Bearer tok-1" {
		t.Errorf("Authorization = %q", recs[0].Auth)
	}

	var payload map[string]any
	if err := json.Unmarshal(recs[0].Body, &payload); err != nil {
		t.Fatalf("body: %v", err)
	}
	fields := payload["fields"].(map[string]any)
	if fields["summary"] != "Fix payment bug" {
		t.Errorf("summary = %v", fields["summary"])
	}
	if fields["project"].(map[string]any)["key"] != "OPS" {
		t.Errorf("project = %v", fields["project"])
	}
	if fields["description"] != "prefilled description" {
		t.Errorf("description = %v", fields["description"])
	}

	if result["key"] != "OPS-7" {
		t.Errorf("result = %v", result)
	}
}

func TestDispatch_UpstreamErrorCarriesStatus(t *testing.T) {
	var recs []upstreamRecord
	tokens := &stubTokens{token: "t"}
	d := newTestDispatcher(t, tokens,
		newAdapterUpstream(t, http.StatusServiceUnavailable, `{"error":"maintenance"}`, &recs))

	_, err := d.Dispatch(context.Background(), "zoho_calendar", "acme", map[string]any{
		"calendar_id": "c1", "title": "t", "start_iso": "s", "end_iso": "e",
	})
	if CodeOf(err) != CodeUpstream {
		t.Fatalf("err = %v, want UPSTREAM_ERROR", err)
	}
	var ae *ActionError
	if !errors.As(err, &ae) || ae.UpstreamStatus != http.StatusServiceUnavailable {
		t.Errorf("upstream status not carried: %v", err)
	}
}

func TestDispatch_WorkDriveTargetFromFields(t *testing.T) {
	// Full fake: search → download → cliq share.
	var sharePosts atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/files/search":
			_, _ = w.Write([]byte(`{"data":[{"id":"f1","name":"report.pdf"}]}`))
		case r.URL.Path == "/files/f1/download":
			_, _ = w.Write([]byte("bytes"))
		case r.URL.Path == "/api/v2/chats/chat9/files":
			sharePosts.Add(1)
			_, _ = w.Write([]byte(`{"status":"shared"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	client := integrations.NewClient(integrations.Config{
		WorkDriveBaseURL: srv.URL,
		CliqBaseURL:      srv.URL,
		JiraBaseURL:      srv.URL,
		ProjectsBaseURL:  srv.URL,
		CalendarBaseURL:  srv.URL,
	}, nil)
	d := newTestDispatcher(t, &stubTokens{token: "t"}, client)

	result, err := d.Dispatch(context.Background(), "zoho_workdrive", "acme", map[string]any{
		"org_id":        "o1",
		"name_or_query": "report.pdf",
		"cliq_target":   map[string]any{"type": "chat", "id": "chat9"},
		"message":       "here",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if sharePosts.Load() != 1 {
		t.Errorf("cliq share called %d times", sharePosts.Load())
	}
	if _, ok := result["shared_to_cliq"]; !ok {
		t.Errorf("result = %v", result)
	}
}
