// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"regexp"
)

// redactionPattern pairs a compiled regex with a replacement label.
//
// Description:
//
//	Each pattern identifies a specific class of secret (API key, OAuth
//	token, client secret) and provides a labeled replacement string so the
//	log reader knows what was redacted without seeing the secret value.
//
// Thread Safety: This type is immutable after construction.
type redactionPattern struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// redactionPatterns is the ordered list of secret patterns to redact.
//
// IMPORTANT: Order matters. More specific patterns (e.g., the Zoho OAuth
// header value) must appear BEFORE less specific patterns (bare token query
// parameters) to prevent partial redaction.
//
// Thread Safety: This slice is initialized once and never modified.
// All access is read-only.
var redactionPatterns = []redactionPattern{
	// Gemini/Google API key: AIza<base62, 30+ chars>
	{
		Pattern:     regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`),
		Replacement: "[REDACTED:gemini_key]",
	},
	// Zoho OAuth tokens as sent in Authorization headers: Zoho-oauthtoken 1000.xxx.yyy
	{
		Pattern:     regexp.MustCompile(`Zoho-oauthtoken\s+[A-Za-z0-9.]{10,}`),
		Replacement: "Zoho-oauthtoken [REDACTED]",
	},
	// Zoho access/refresh token values: 1000.<hex>.<hex>
	{
		Pattern:     regexp.MustCompile(`1000\.[0-9a-f]{16,}\.[0-9a-f]{16,}`),
		Replacement: "[REDACTED:zoho_token]",
	},
	// Bearer token in Authorization header values
	{
		Pattern:     regexp.MustCompile(`Bearer\s+[A-Za-z0-9._-]{10,}`),
		Replacement: "[REDACTED:bearer_token]",
	},
	// OAuth parameters in URLs or form bodies
	{
		Pattern:     regexp.MustCompile(`refresh_token=[^\s&]{10,}`),
		Replacement: "refresh_token=[REDACTED]",
	},
	{
		Pattern:     regexp.MustCompile(`client_secret=[^\s&]{10,}`),
		Replacement: "client_secret=[REDACTED]",
	},
	{
		Pattern:     regexp.MustCompile(`code=[^\s&]{10,}`),
		Replacement: "code=[REDACTED]",
	},
	// API key in URL query parameter: key=<value>
	{
		Pattern:     regexp.MustCompile(`key=[A-Za-z0-9._-]{10,}`),
		Replacement: "key=[REDACTED]",
	},
}

// SafeLogString redacts known secret formats from a string before logging.
//
// Description:
//
//	Upstream error bodies often echo the request back, including API keys
//	and OAuth material. Every error path that quotes an upstream body must
//	route it through this function before the text reaches a log line or a
//	wrapped error message.
//
// Inputs:
//   - s: The raw string, possibly containing secrets.
//
// Outputs:
//   - string: The input with all recognized secrets replaced by labels.
//
// Thread Safety: Stateless. Safe for concurrent use.
func SafeLogString(s string) string {
	for _, rp := range redactionPatterns {
		s = rp.Pattern.ReplaceAllString(s, rp.Replacement)
	}
	return s
}
