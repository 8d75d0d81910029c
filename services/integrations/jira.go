// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package integrations

import (
	"context"
	"fmt"
	"net/http"
)

// TicketRequest describes a Jira issue to create. An empty IssueType
// defaults to Task.
type TicketRequest struct {
	ProjectKey  string
	Summary     string
	Description string
	IssueType   string
	DueDate     string // YYYY-MM-DD
}

// jiraCreatePayload is the Jira REST v2 issue body.
type jiraCreatePayload struct {
	Fields jiraFields `json:"fields"`
}

type jiraFields struct {
	Project     jiraProject   `json:"project"`
	Summary     string        `json:"summary"`
	Description string        `json:"description"`
	IssueType   jiraIssueType `json:"issuetype"`
	DueDate     string        `json:"duedate,omitempty"`
}

type jiraProject struct {
	Key string `json:"key"`
}

type jiraIssueType struct {
	Name string `json:"name"`
}

type jiraCreateResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// CreateJiraTicket creates a Task-type issue in the given project.
//
// # Outputs
//
//   - map[string]any: id, key, and a browse URL for the created issue.
//   - error: *APIError on an upstream rejection.
func (c *Client) CreateJiraTicket(ctx context.Context, accessToken string, req TicketRequest) (map[string]any, error) {
	issueType := req.IssueType
	if issueType == "" {
		issueType = "Task"
	}
	payload := jiraCreatePayload{
		Fields: jiraFields{
			Project:     jiraProject{Key: req.ProjectKey},
			Summary:     req.Summary,
			Description: req.Description,
			IssueType:   jiraIssueType{Name: issueType},
			DueDate:     req.DueDate,
		},
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+accessToken)
	headers.Set("Content-Type", "application/json")

	var resp jiraCreateResponse
	endpoint := c.cfg.JiraBaseURL + "/rest/api/2/issue"
	if err := c.doJSON(ctx, http.MethodPost, endpoint, headers, nil, payload, &resp); err != nil {
		return nil, fmt.Errorf("jira: creating ticket: %w", err)
	}

	return map[string]any{
		"id":  resp.ID,
		"key": resp.Key,
		"url": fmt.Sprintf("%s/browse/%s", c.cfg.JiraBaseURL, resp.Key),
	}, nil
}
