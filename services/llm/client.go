// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the client for the external reasoning collaborator.
//
// The intent analyzer hands a prompt to an LLMClient and gets raw model text
// back; everything about parsing and validating that text lives with the
// analyzer, not here. The only implementation today is the Gemini REST
// client, mirroring the provider the suggestion prompt was tuned against.
package llm

import "context"

// GenerationParams controls a single generation call.
//
// All fields are optional; nil pointers mean "provider default". Pointer
// fields distinguish "unset" from zero values (temperature 0 is a valid,
// deliberate choice for deterministic suggestion output).
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// LLMClient generates text from a prompt.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type LLMClient interface {
	// Generate sends a single-turn prompt and returns the raw model text.
	//
	// The call is NOT retried on failure: generation is neither cheap nor
	// idempotent-safe, so retry policy belongs to the caller.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
