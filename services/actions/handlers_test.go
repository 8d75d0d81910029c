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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/zoho-actionizer/actionizer-backend/services/auth"
	"github.com/zoho-actionizer/actionizer-backend/services/llm"
)

// newPipelineRouter assembles the full pipeline over fakes: a canned model
// reply, a stub token source, and a recorded adapter upstream.
func newPipelineRouter(t *testing.T, llmReply string, tokens *stubTokens, upstreamStatus int, upstreamReply string) (*gin.Engine, *[]upstreamRecord) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var recs []upstreamRecord
	client := newAdapterUpstream(t, upstreamStatus, upstreamReply, &recs)

	catalog := DefaultCatalog()
	analyzer := NewAnalyzer(&stubLLM{reply: llmReply}, catalog, llm.GenerationParams{}, nil)
	registry := NewMemoryActionRegistry(0)
	dispatcher, err := NewDispatcher(catalog, tokens, client, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}

	r := gin.New()
	r.Use(RequestIDMiddleware())
	NewHandlers(analyzer, registry, catalog, dispatcher, nil).RegisterRoutes(r)
	return r, &recs
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", path, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

const paymentBugReply = `{"suggestions":[
	{"tool":"jira","score":0.95,"title":"Create bug ticket",
	 "prefill":{"summary":"Fix payment bug","description":"payment flow broken","issuetype":"Bug"}},
	{"tool":"zoho_projects","score":0.6,"title":"Create task"},
	{"tool":"zoho_calendar","score":0.4,"title":"Block time",
	 "prefill":{"title":"Payment bug deadline","start_iso":"2026-09-02T17:00:00Z"}}
]}`

func decodeAnalyze(t *testing.T, w *httptest.ResponseRecorder) AnalyzeIntentResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("analyze status = %d: %s", w.Code, w.Body.String())
	}
	var resp AnalyzeIntentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding analyze response: %v", err)
	}
	return resp
}

func TestAnalyzeThenExecuteJira_EndToEnd(t *testing.T) {
	tokens := &stubTokens{token: "tok"}
	r, recs := newPipelineRouter(t, paymentBugReply, tokens,
		http.StatusCreated, `{"id":"10001","key":"OPS-1"}`)

	resp := decodeAnalyze(t, postJSON(t, r, "/analyze-intent", AnalyzeIntentRequest{
		MessageText: "fix the payment bug by 5pm tomorrow",
	}))

	if len(resp.Suggestions) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(resp.Suggestions))
	}
	if resp.Suggestions[0].Tool != "jira" {
		t.Fatalf("top suggestion = %q, want jira", resp.Suggestions[0].Tool)
	}
	for i := 1; i < len(resp.Suggestions); i++ {
		if resp.Suggestions[i-1].Score < resp.Suggestions[i].Score {
			t.Errorf("suggestions not ordered by score")
		}
	}
	for _, s := range resp.Suggestions {
		if s.ActionID == "" {
			t.Error("suggestion missing action_id")
		}
	}

	w := postJSON(t, r, "/execute-action", ExecuteActionRequest{
		ActionID: resp.Suggestions[0].ActionID,
		UpdatedParams: map[string]any{
			"project_key": "OPS",
			"summary":     "Fix payment bug",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("execute status = %d: %s", w.Code, w.Body.String())
	}

	var execResp ExecuteActionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &execResp); err != nil {
		t.Fatalf("decoding execute response: %v", err)
	}
	if !execResp.Success || execResp.Result["key"] != "OPS-1" {
		t.Errorf("execute response = %+v", execResp)
	}

	// Adapter called exactly once, with overrides plus prefill.
	if len(*recs) != 1 {
		t.Fatalf("adapter calls = %d, want 1", len(*recs))
	}
	var payload map[string]any
	if err := json.Unmarshal((*recs)[0].Body, &payload); err != nil {
		t.Fatalf("adapter body: %v", err)
	}
	fields := payload["fields"].(map[string]any)
	if fields["summary"] != "Fix payment bug" {
		t.Errorf("summary = %v", fields["summary"])
	}
	if fields["project"].(map[string]any)["key"] != "OPS" {
		t.Errorf("project key = %v", fields["project"])
	}
	if fields["description"] != "payment flow broken" {
		t.Errorf("prefilled description lost: %v", fields["description"])
	}
	if fields["issuetype"].(map[string]any)["name"] != "Bug" {
		t.Errorf("prefilled issuetype lost: %v", fields["issuetype"])
	}
}

func TestExecute_CalendarMissingEndISO_NoTokenRequested(t *testing.T) {
	tokens := &stubTokens{token: "tok"}
	r, recs := newPipelineRouter(t, paymentBugReply, tokens, http.StatusOK, `{}`)

	resp := decodeAnalyze(t, postJSON(t, r, "/analyze-intent", AnalyzeIntentRequest{
		MessageText: "block time for the payment bug",
	}))

	var calendarID string
	for _, s := range resp.Suggestions {
		if s.Tool == "zoho_calendar" {
			calendarID = s.ActionID
		}
	}
	if calendarID == "" {
		t.Fatal("no calendar suggestion")
	}

	w := postJSON(t, r, "/execute-action", ExecuteActionRequest{
		ActionID: calendarID,
		UpdatedParams: map[string]any{
			"calendar_id": "cal1",
			// end_iso deliberately omitted; start_iso and title come prefilled.
		},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "end_iso") {
		t.Errorf("error does not name end_iso: %s", w.Body.String())
	}
	if tokens.calls.Load() != 0 {
		t.Errorf("token requested %d times before validation", tokens.calls.Load())
	}
	if len(*recs) != 0 {
		t.Errorf("adapter invoked despite validation failure")
	}
}

func TestExecute_UnauthenticatedTenant(t *testing.T) {
	tokens := &stubTokens{err: auth.ErrAuthRequired}
	r, recs := newPipelineRouter(t, paymentBugReply, tokens, http.StatusOK, `{}`)

	resp := decodeAnalyze(t, postJSON(t, r, "/analyze-intent", AnalyzeIntentRequest{
		MessageText: "fix the payment bug",
		Tenant:      "acme",
	}))

	w := postJSON(t, r, "/execute-action", ExecuteActionRequest{
		ActionID: resp.Suggestions[0].ActionID,
		UpdatedParams: map[string]any{
			"project_key": "OPS",
			"summary":     "Fix payment bug",
		},
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: %s", w.Code, w.Body.String())
	}
	if len(*recs) != 0 {
		t.Errorf("adapter invoked for unauthenticated tenant")
	}

	var body errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Code != CodeAuthRequired {
		t.Errorf("code = %q", body.Code)
	}
}

func TestExecute_UnknownActionID(t *testing.T) {
	r, _ := newPipelineRouter(t, paymentBugReply, &stubTokens{token: "t"}, http.StatusOK, `{}`)

	w := postJSON(t, r, "/execute-action", ExecuteActionRequest{
		ActionID: "never-issued",
	})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestAnalyze_UnparseableModelReplyIs502(t *testing.T) {
	r, _ := newPipelineRouter(t, "sorry, nothing useful here",
		&stubTokens{token: "t"}, http.StatusOK, `{}`)

	w := postJSON(t, r, "/analyze-intent", AnalyzeIntentRequest{MessageText: "anything"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", w.Code, w.Body.String())
	}
}

func TestAnalyze_MissingMessageTextIs400(t *testing.T) {
	r, _ := newPipelineRouter(t, paymentBugReply, &stubTokens{token: "t"}, http.StatusOK, `{}`)

	w := postJSON(t, r, "/analyze-intent", map[string]any{"metadata": map[string]any{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestVersionedRoutesAlias(t *testing.T) {
	r, _ := newPipelineRouter(t, paymentBugReply, &stubTokens{token: "t"}, http.StatusOK, `{}`)

	w := postJSON(t, r, "/v1/actions/analyze-intent", AnalyzeIntentRequest{
		MessageText: "fix the payment bug",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("versioned route status = %d", w.Code)
	}

	health := httptest.NewRecorder()
	r.ServeHTTP(health, httptest.NewRequest("GET", "/v1/actions/health", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("health status = %d", health.Code)
	}
}

func TestRequestIDMiddleware_EchoesHeader(t *testing.T) {
	r, _ := newPipelineRouter(t, paymentBugReply, &stubTokens{token: "t"}, http.StatusOK, `{}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/actions/health", nil)
	req.Header.Set("X-Request-ID", "caller-supplied")
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "caller-supplied" {
		t.Errorf("X-Request-ID = %q", got)
	}

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/v1/actions/health", nil))
	if w2.Header().Get("X-Request-ID") == "" {
		t.Error("request id not generated")
	}
}
