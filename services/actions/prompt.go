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
	"fmt"
	"text/template"
)

// analyzePromptText demands strict JSON so the parser has a fighting chance.
// The tool block comes from the catalog, metadata is embedded as JSON.
const analyzePromptText = `You are a tool-selector assistant. Given a user message and optional metadata, you must output valid JSON exactly matching this schema:
{
  "suggestions": [
     {
        "tool": <string>,
        "score": <float 0-1>,
        "title": <string>,
        "description": <string or null>,
        "expected_fields": [ <string> ],
        "prefill": { <string>: <value> }
     }
  ]
}

Do NOT add any prose before or after the JSON. Strict JSON only.

User message:
"""{{.Message}}"""

Context metadata (json):
{{.MetadataJSON}}

Available tools (provide these exact tool ids in the "tool" field):
{{.ToolBlock}}
Task:
1) Determine which tools can reasonably be used for an action based on the user message. Rank them by relevance (score 0.0-1.0).
2) For each suggested tool, return tool, score, title, optional description, expected_fields, and prefill values for the fields you can infer.
3) Use the JSON schema (strict) and make suggestions only when confident.

Now produce the JSON response.`

var analyzePromptTmpl = template.Must(template.New("analyze").Parse(analyzePromptText))

type promptInput struct {
	Message      string
	MetadataJSON string
	ToolBlock    string
}

// buildAnalyzePrompt renders the analyzer prompt for one message.
func buildAnalyzePrompt(message string, meta MessageMeta, catalog *Catalog) (string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}

	var buf bytes.Buffer
	err = analyzePromptTmpl.Execute(&buf, promptInput{
		Message:      message,
		MetadataJSON: string(metaJSON),
		ToolBlock:    catalog.PromptBlock(),
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return buf.String(), nil
}
