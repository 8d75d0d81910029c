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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zoho-actionizer/actionizer-backend/services/llm"
)

// stubLLM replays a canned reply and records the prompts it saw.
type stubLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubLLM) Generate(_ context.Context, prompt string, _ llm.GenerationParams) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func newTestAnalyzer(reply string) (*Analyzer, *stubLLM) {
	stub := &stubLLM{reply: reply}
	return NewAnalyzer(stub, DefaultCatalog(), llm.GenerationParams{}, nil), stub
}

func TestAnalyze_OrderingNonIncreasing(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[
		{"tool":"zoho_calendar","score":0.4,"title":"Schedule"},
		{"tool":"jira","score":0.9,"title":"Ticket"},
		{"tool":"zoho_projects","score":0.7,"title":"Task"}
	]}`)

	got, err := a.Analyze(context.Background(), "fix the payment bug by 5pm tomorrow", MessageMeta{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		require.GreaterOrEqual(t, got[i-1].Score, got[i].Score,
			"scores must be non-increasing")
	}
	require.Equal(t, "jira", got[0].Tool)
}

func TestAnalyze_TiesBreakByCatalogOrder(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[
		{"tool":"zoho_workdrive","score":0.5,"title":"Share"},
		{"tool":"jira","score":0.5,"title":"Ticket"},
		{"tool":"zoho_calendar","score":0.5,"title":"Schedule"}
	]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Equal(t, []string{"jira", "zoho_calendar", "zoho_workdrive"},
		[]string{got[0].Tool, got[1].Tool, got[2].Tool})
}

func TestAnalyze_DropsUnknownToolKeepsBatch(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[
		{"tool":"slack","score":0.9,"title":"Post"},
		{"tool":"jira","score":0.6,"title":"Ticket"}
	]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "jira", got[0].Tool)
}

func TestAnalyze_ScoreDefaultsAndClamping(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[
		{"tool":"jira","title":"No score"},
		{"tool":"zoho_projects","score":1.7,"title":"Too high"},
		{"tool":"zoho_calendar","score":-0.3,"title":"Negative"}
	]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Len(t, got, 3)

	byTool := map[string]float64{}
	for _, s := range got {
		byTool[s.Tool] = s.Score
	}
	require.Equal(t, 0.0, byTool["jira"])
	require.Equal(t, 1.0, byTool["zoho_projects"])
	require.Equal(t, 0.0, byTool["zoho_calendar"])
}

func TestAnalyze_ExpectedFieldsDefaultFromCatalog(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[{"tool":"jira","score":0.8,"title":"Ticket"}]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	spec, _ := DefaultCatalog().Lookup("jira")
	require.Equal(t, spec.ExpectedFields, got[0].ExpectedFields)
}

func TestAnalyze_ExpectedFieldsCannotWidenPastCatalog(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[{"tool":"jira","score":0.8,"title":"Ticket",
		"expected_fields":["summary","assignee","project_key","labels"]}]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Equal(t, []string{"project_key", "summary"}, got[0].ExpectedFields,
		"fields the catalog never declared must not enter the override whitelist")
}

func TestAnalyze_ExpectedFieldsCanNarrow(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[{"tool":"jira","score":0.8,"title":"Ticket",
		"expected_fields":["description","project_key"]}]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Equal(t, []string{"project_key", "description"}, got[0].ExpectedFields,
		"a narrowed list keeps catalog declaration order")
}

func TestAnalyze_PrefillObjectAndHintArrayForms(t *testing.T) {
	a, _ := newTestAnalyzer(`{"suggestions":[
		{"tool":"jira","score":0.9,"title":"Ticket",
		 "prefill":{"project_key":"OPS","summary":"Fix payment bug"}},
		{"tool":"zoho_calendar","score":0.5,"title":"Event",
		 "prefill":[{"field":"title","value":"Payment fix deadline"},
		            {"field":"start_iso","hint":"tomorrow 17:00"}]}
	]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "OPS", got[0].Prefill["project_key"])
	require.Equal(t, "Payment fix deadline", got[1].Prefill["title"])
	require.Equal(t, "tomorrow 17:00", got[1].Prefill["start_iso"])
}

func TestAnalyze_StripsMarkdownFences(t *testing.T) {
	a, _ := newTestAnalyzer("Here you go:\n```json\n" +
		`{"suggestions":[{"tool":"jira","score":0.9,"title":"T"}]}` + "\n```\nDone.")

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAnalyze_RepairsNearJSON(t *testing.T) {
	// Trailing comma fails the strict parse and goes through repair.
	a, _ := newTestAnalyzer(`{"suggestions":[{"tool":"jira","score":0.9,"title":"T",}]}`)

	got, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "jira", got[0].Tool)
}

func TestAnalyze_NoJSONIsParseError(t *testing.T) {
	a, _ := newTestAnalyzer("I could not find any relevant tools for that.")

	_, err := a.Analyze(context.Background(), "msg", MessageMeta{})
	require.Error(t, err)
	require.Equal(t, CodeParse, CodeOf(err))
}

func TestAnalyze_PromptCarriesMessageMetadataAndTools(t *testing.T) {
	a, stub := newTestAnalyzer(`{"suggestions":[]}`)

	_, err := a.Analyze(context.Background(), "fix the payment bug",
		MessageMeta{Channel: "ops", Sender: "dana"})
	require.NoError(t, err)
	require.Len(t, stub.prompts, 1)

	prompt := stub.prompts[0]
	require.Contains(t, prompt, "fix the payment bug")
	require.Contains(t, prompt, `"channel":"ops"`)
	require.Contains(t, prompt, `"sender":"dana"`)
	for _, tool := range []string{"jira", "zoho_projects", "zoho_calendar", "zoho_workdrive"} {
		require.True(t, strings.Contains(prompt, tool), "prompt missing tool %s", tool)
	}
}
