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
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Tool Catalog
// =============================================================================

// ToolSpec declares one supported tool: what the model should know about it
// and which fields an execution must carry.
type ToolSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// ExpectedFields is the full field whitelist, in display order.
	ExpectedFields []string `yaml:"expected_fields"`

	// RequiredFields must all be present and non-empty at execution time.
	RequiredFields []string `yaml:"required_fields"`

	// RequiredAnyOf lists groups where at least one member per group must be
	// present and non-empty.
	RequiredAnyOf [][]string `yaml:"required_any_of"`
}

// Catalog is an ordered set of tool specs. Declaration order is
// authoritative: the analyzer breaks score ties by it.
//
// # Thread Safety
//
// Immutable after construction; safe for concurrent reads.
type Catalog struct {
	tools []ToolSpec
	index map[string]int
}

// NewCatalog builds a catalog from specs, validating as it goes.
func NewCatalog(tools []ToolSpec) (*Catalog, error) {
	c := &Catalog{
		tools: tools,
		index: make(map[string]int, len(tools)),
	}
	for i, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("catalog: tool %d has an empty name", i)
		}
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate tool %q", t.Name)
		}
		expected := make(map[string]bool, len(t.ExpectedFields))
		for _, f := range t.ExpectedFields {
			expected[f] = true
		}
		for _, f := range t.RequiredFields {
			if !expected[f] {
				return nil, fmt.Errorf("catalog: tool %q requires field %q not in expected fields", t.Name, f)
			}
		}
		for _, group := range t.RequiredAnyOf {
			if len(group) == 0 {
				return nil, fmt.Errorf("catalog: tool %q has an empty required-any-of group", t.Name)
			}
			for _, f := range group {
				if !expected[f] {
					return nil, fmt.Errorf("catalog: tool %q requires field %q not in expected fields", t.Name, f)
				}
			}
		}
		c.index[t.Name] = i
	}
	return c, nil
}

// DefaultCatalog returns the built-in four-tool catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]ToolSpec{
		{
			Name:           "jira",
			Description:    "Create a Jira ticket",
			ExpectedFields: []string{"project_key", "summary", "description", "issuetype", "duedate"},
			RequiredFields: []string{"project_key", "summary"},
		},
		{
			Name:           "zoho_projects",
			Description:    "Create a Zoho Projects task",
			ExpectedFields: []string{"portal_id", "project_id", "name", "description", "start_date", "end_date", "priority"},
			RequiredFields: []string{"portal_id", "project_id", "name"},
		},
		{
			Name:           "zoho_calendar",
			Description:    "Create a Zoho Calendar event",
			ExpectedFields: []string{"calendar_id", "title", "start_iso", "end_iso", "description", "location"},
			RequiredFields: []string{"calendar_id", "title", "start_iso", "end_iso"},
		},
		{
			Name:           "zoho_workdrive",
			Description:    "Retrieve a WorkDrive file, optionally sharing it to a Cliq chat",
			ExpectedFields: []string{"org_id", "name_or_query", "file_id", "cliq_target", "filename", "message"},
			RequiredAnyOf:  [][]string{{"file_id", "name_or_query"}},
		},
	})
	if err != nil {
		// The built-in catalog is a compile-time constant in all but syntax.
		panic(fmt.Sprintf("default catalog invalid: %v", err))
	}
	return c
}

// LoadCatalogFile reads a catalog override from a YAML file.
//
// The file holds a `tools:` list of ToolSpec entries and replaces the
// built-in catalog wholesale.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	var file struct {
		Tools []ToolSpec `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	if len(file.Tools) == 0 {
		return nil, fmt.Errorf("catalog: %s declares no tools", path)
	}
	return NewCatalog(file.Tools)
}

// Lookup returns the spec for a tool name.
func (c *Catalog) Lookup(name string) (ToolSpec, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolSpec{}, false
	}
	return c.tools[i], true
}

// Order returns the tool's declaration position, used as the deterministic
// tie-break when scores are equal. Unknown tools sort last.
func (c *Catalog) Order(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	return len(c.tools)
}

// Tools returns the specs in declaration order.
func (c *Catalog) Tools() []ToolSpec {
	return c.tools
}

// PromptBlock renders the tool list the way the analyzer prompt embeds it.
func (c *Catalog) PromptBlock() string {
	var b strings.Builder
	for _, t := range c.tools {
		fmt.Fprintf(&b, "- %s: %s. Expected fields: %s\n",
			t.Name, t.Description, strings.Join(t.ExpectedFields, ", "))
	}
	return b.String()
}
