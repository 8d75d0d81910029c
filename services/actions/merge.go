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
	"fmt"
	"sort"
	"strings"
)

// MergeFields combines a stored action's prefill with caller overrides.
//
// # Description
//
// Only keys in the action's expected fields are accepted from overrides;
// everything else is silently dropped. This is a security boundary: a caller
// must not be able to inject fields outside the tool's declared schema.
// Overrides win on conflict. The stored action is never mutated — merged
// values live only in the execution request.
func MergeFields(stored SuggestedAction, overrides map[string]any) map[string]any {
	whitelist := make(map[string]bool, len(stored.ExpectedFields))
	for _, f := range stored.ExpectedFields {
		whitelist[f] = true
	}

	merged := make(map[string]any, len(stored.Prefill)+len(overrides))
	for k, v := range stored.Prefill {
		merged[k] = v
	}
	for k, v := range overrides {
		if whitelist[k] {
			merged[k] = v
		}
	}
	return merged
}

// ValidateRequired checks the tool's required-field table against merged
// fields.
//
// # Description
//
// Runs before any token fetch or adapter call, so a bad request costs no
// network round-trips and causes no partial side effects. A field counts as
// missing when absent or an empty string. The error names every missing key
// in sorted order so the message is deterministic.
func ValidateRequired(catalog *Catalog, tool string, fields map[string]any) error {
	spec, ok := catalog.Lookup(tool)
	if !ok {
		return NewUnsupportedToolError(tool)
	}

	var missing []string
	for _, f := range spec.RequiredFields {
		if !fieldPresent(fields, f) {
			missing = append(missing, f)
		}
	}
	for _, group := range spec.RequiredAnyOf {
		satisfied := false
		for _, f := range group {
			if fieldPresent(fields, f) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, "one of ("+strings.Join(group, "|")+")")
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return NewValidationError(fmt.Sprintf(
			"tool %s missing required fields: %s", tool, strings.Join(missing, ", ")))
	}
	return nil
}

func fieldPresent(fields map[string]any, key string) bool {
	v, ok := fields[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString && s == "" {
		return false
	}
	return true
}
