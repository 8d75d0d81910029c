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
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoho-actionizer/actionizer-backend/services/llm"
)

// =============================================================================
// Intent Analyzer
// =============================================================================

// Analyzer turns a free-text message into ranked action candidates by
// delegating to the reasoning model and validating its reply against the
// catalog.
//
// # Description
//
// The model call is not retried here: it is neither cheap nor
// idempotent-safe, so retry policy belongs to the caller. A reply with no
// parseable JSON object fails the whole analyze with CodeParse; an
// individually bad suggestion record is dropped and logged, never failing
// the batch.
//
// # Thread Safety
//
// Safe for concurrent use.
type Analyzer struct {
	client  llm.LLMClient
	catalog *Catalog
	params  llm.GenerationParams
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewAnalyzer creates an Analyzer over the given model client and catalog.
func NewAnalyzer(client llm.LLMClient, catalog *Catalog, params llm.GenerationParams, logger *slog.Logger) *Analyzer {
	if client == nil {
		panic("NewAnalyzer: client must not be nil")
	}
	if catalog == nil {
		panic("NewAnalyzer: catalog must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{
		client:  client,
		catalog: catalog,
		params:  params,
		logger:  logger,
		tracer:  otel.Tracer("actions.Analyzer"),
	}
}

// rawSuggestion is one suggestion record as the model emits it, before
// validation. Prefill stays raw because the model alternates between an
// object form and an array-of-hints form.
type rawSuggestion struct {
	Tool           string          `json:"tool"`
	Score          *float64        `json:"score"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ExpectedFields []string        `json:"expected_fields"`
	Prefill        json.RawMessage `json:"prefill"`
}

type modelReply struct {
	Suggestions []rawSuggestion `json:"suggestions"`
}

// Analyze returns action candidates for the message, sorted by score
// descending with catalog declaration order breaking ties.
func (a *Analyzer) Analyze(ctx context.Context, message string, meta MessageMeta) ([]SuggestedAction, error) {
	ctx, span := a.tracer.Start(ctx, "actions.Analyzer.Analyze")
	defer span.End()
	start := time.Now()
	defer func() { analyzeLatency.Observe(time.Since(start).Seconds()) }()

	prompt, err := buildAnalyzePrompt(message, meta, a.catalog)
	if err != nil {
		span.SetStatus(codes.Error, "prompt build failed")
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	reply, err := a.client.Generate(ctx, prompt, a.params)
	if err != nil {
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("analyzer: model call: %w", err)
	}

	parsed, err := parseModelReply(reply)
	if err != nil {
		span.SetStatus(codes.Error, "unparseable reply")
		return nil, err
	}

	suggestions := a.validateSuggestions(parsed.Suggestions)
	sortSuggestions(suggestions, a.catalog)

	suggestionsPerAnalyze.Observe(float64(len(suggestions)))
	span.SetAttributes(
		attribute.Int("suggestions.raw", len(parsed.Suggestions)),
		attribute.Int("suggestions.valid", len(suggestions)),
	)
	return suggestions, nil
}

// parseModelReply extracts and decodes the JSON object from the model's
// text. A strict parse is tried first; near-JSON goes through repair once.
func parseModelReply(reply string) (*modelReply, error) {
	block := extractJSONBlock(reply)
	if block == "" {
		return nil, NewParseError("model reply contains no JSON object", nil)
	}

	var parsed modelReply
	if err := json.Unmarshal([]byte(block), &parsed); err == nil {
		return &parsed, nil
	}

	repaired, err := jsonrepair.JSONRepair(block)
	if err != nil {
		return nil, NewParseError("model reply is not repairable JSON", err)
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, NewParseError("repaired model reply still fails to parse", err)
	}
	repairedReplies.Inc()
	return &parsed, nil
}

// extractJSONBlock returns the first-{ to last-} span of the text, which
// strips markdown fences and any prose the model added despite instructions.
func extractJSONBlock(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// validateSuggestions applies per-record validation: unknown tools are
// dropped, scores clamped to [0,1], prefill coerced, expected fields
// defaulted from the catalog.
func (a *Analyzer) validateSuggestions(raw []rawSuggestion) []SuggestedAction {
	out := make([]SuggestedAction, 0, len(raw))
	for _, r := range raw {
		spec, known := a.catalog.Lookup(r.Tool)
		if !known {
			droppedSuggestions.WithLabelValues("unknown_tool").Inc()
			a.logger.Warn("dropping suggestion for unknown tool", slog.String("tool", r.Tool))
			continue
		}

		score := 0.0
		if r.Score != nil {
			score = clampScore(*r.Score)
		}

		// The expected-field list becomes the override whitelist on the
		// stored action, so model output can narrow it but never widen it
		// past the tool's declared fields.
		expected := intersectFields(spec.ExpectedFields, r.ExpectedFields)
		if len(expected) == 0 {
			expected = spec.ExpectedFields
		}

		out = append(out, SuggestedAction{
			Tool:           r.Tool,
			Score:          score,
			Title:          r.Title,
			Description:    r.Description,
			ExpectedFields: expected,
			Prefill:        coercePrefill(r.Prefill),
		})
	}
	return out
}

// intersectFields keeps the declared fields the model also listed, in
// declared order. Fields the model invented are discarded.
func intersectFields(declared, supplied []string) []string {
	if len(supplied) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(supplied))
	for _, f := range supplied {
		seen[f] = true
	}
	var out []string
	for _, f := range declared {
		if seen[f] {
			out = append(out, f)
		}
	}
	return out
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// coercePrefill accepts both prefill shapes the model emits: a plain
// field→value object, or an array of {field, value, hint} records where the
// hint stands in when no value was given.
func coercePrefill(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj == nil {
			return map[string]any{}
		}
		return obj
	}

	var hints []struct {
		Field string `json:"field"`
		Value any    `json:"value"`
		Hint  any    `json:"hint"`
	}
	if err := json.Unmarshal(raw, &hints); err != nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(hints))
	for _, h := range hints {
		if h.Field == "" {
			continue
		}
		if h.Value != nil {
			out[h.Field] = h.Value
		} else if h.Hint != nil {
			out[h.Field] = h.Hint
		}
	}
	return out
}

// sortSuggestions orders by score descending; equal scores fall back to
// catalog declaration order so output is deterministic.
func sortSuggestions(s []SuggestedAction, catalog *Catalog) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return catalog.Order(s[i].Tool) < catalog.Order(s[j].Tool)
	})
}
