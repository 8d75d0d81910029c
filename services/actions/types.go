// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package actions implements the suggestion-and-execution pipeline: a
// free-text message becomes a ranked list of tool actions with prefilled
// parameters, held in a TTL-bounded registry until the caller executes one
// with whitelisted overrides.
package actions

import "time"

// SuggestedAction is one ranked, prefilled action candidate.
//
// Suggestions are immutable once stored: caller overrides are merged into
// the execution request only, never written back.
type SuggestedAction struct {
	ActionID    string  `json:"action_id"`
	Tool        string  `json:"tool"`
	Score       float64 `json:"score"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`

	// ExpectedFields is the authoritative whitelist for later overrides.
	ExpectedFields []string       `json:"expected_fields"`
	Prefill        map[string]any `json:"prefill"`

	// Tenant scopes execution-time credential resolution. Set when the
	// suggestion is registered, never exposed to other tenants: action ids
	// are unguessable, and the stored tenant — not a caller-supplied one —
	// drives the token lookup.
	Tenant string `json:"tenant,omitempty"`

	// StoredAt is set by the registry at insert time and drives TTL expiry.
	StoredAt time.Time `json:"stored_at,omitempty"`
}

// MessageMeta is opaque passthrough context for the analyzer. All fields
// optional.
type MessageMeta struct {
	Channel   string `json:"channel,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}
