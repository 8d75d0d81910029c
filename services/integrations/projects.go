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
	"net/url"
)

// TaskRequest describes a Zoho Projects task to create.
type TaskRequest struct {
	PortalID    string
	ProjectID   string
	Name        string
	Description string

	// Optional fields; empty values are omitted from the payload.
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Priority  string // High, Medium, Low
	OwnerIDs  []string
}

// ListTasksFilter narrows a task listing. Zero values place no constraint.
type ListTasksFilter struct {
	OwnerID string
	Status  string // Open, Closed, In Progress, On Hold
}

// taskBody builds the task object Zoho expects, dropping empty optionals.
func (r TaskRequest) taskBody() map[string]any {
	task := map[string]any{
		"name":        r.Name,
		"description": r.Description,
	}
	if r.StartDate != "" {
		task["start_date"] = r.StartDate
	}
	if r.EndDate != "" {
		task["end_date"] = r.EndDate
	}
	if r.Priority != "" {
		task["priority"] = r.Priority
	}
	if len(r.OwnerIDs) > 0 {
		owners := make([]map[string]string, 0, len(r.OwnerIDs))
		for _, id := range r.OwnerIDs {
			owners = append(owners, map[string]string{"id": id})
		}
		task["owner"] = owners
	}
	return task
}

func (c *Client) tasksURL(portalID, projectID string) string {
	return fmt.Sprintf("%s/portal/%s/projects/%s/tasks/", c.cfg.ProjectsBaseURL, portalID, projectID)
}

// CreateProjectTask creates a task inside a Zoho Projects project.
func (c *Client) CreateProjectTask(ctx context.Context, accessToken string, req TaskRequest) (map[string]any, error) {
	payload := map[string]any{"task": req.taskBody()}

	var resp map[string]any
	err := c.doJSON(ctx, http.MethodPost, c.tasksURL(req.PortalID, req.ProjectID),
		zohoHeaders(accessToken), nil, payload, &resp)
	if err != nil {
		return nil, fmt.Errorf("projects: creating task: %w", err)
	}
	return resp, nil
}

// CreateProjectTaskInMilestone creates a task inside a specific milestone.
func (c *Client) CreateProjectTaskInMilestone(ctx context.Context, accessToken, milestoneID string, req TaskRequest) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s/portal/%s/projects/%s/milestones/%s/tasks/",
		c.cfg.ProjectsBaseURL, req.PortalID, req.ProjectID, milestoneID)
	payload := map[string]any{"task": req.taskBody()}

	var resp map[string]any
	err := c.doJSON(ctx, http.MethodPost, endpoint, zohoHeaders(accessToken), nil, payload, &resp)
	if err != nil {
		return nil, fmt.Errorf("projects: creating task in milestone %s: %w", milestoneID, err)
	}
	return resp, nil
}

// UpdateProjectTask updates fields of an existing task.
//
// Zoho uses POST for task updates; updates carries Zoho-format fields
// (name, description, start_date, end_date, priority, owner).
func (c *Client) UpdateProjectTask(ctx context.Context, accessToken, portalID, projectID, taskID string, updates map[string]any) (map[string]any, error) {
	endpoint := fmt.Sprintf("%s%s/", c.tasksURL(portalID, projectID), taskID)
	payload := map[string]any{"task": updates}

	var resp map[string]any
	err := c.doJSON(ctx, http.MethodPost, endpoint, zohoHeaders(accessToken), nil, payload, &resp)
	if err != nil {
		return nil, fmt.Errorf("projects: updating task %s: %w", taskID, err)
	}
	return resp, nil
}

// ListProjectTasks lists tasks inside a project, optionally filtered.
func (c *Client) ListProjectTasks(ctx context.Context, accessToken, portalID, projectID string, filter ListTasksFilter) (map[string]any, error) {
	q := url.Values{}
	if filter.OwnerID != "" {
		q.Set("owner", filter.OwnerID)
	}
	if filter.Status != "" {
		q.Set("task_status", filter.Status)
	}

	var resp map[string]any
	err := c.doJSON(ctx, http.MethodGet, c.tasksURL(portalID, projectID),
		zohoHeaders(accessToken), q, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("projects: listing tasks: %w", err)
	}
	return resp, nil
}

// SearchProjectTasks matches free text against task names and descriptions.
//
// Zoho Projects has no dedicated search endpoint; search rides the list API
// as a query parameter.
func (c *Client) SearchProjectTasks(ctx context.Context, accessToken, portalID, projectID, query string) (map[string]any, error) {
	q := url.Values{}
	q.Set("search", query)

	var resp map[string]any
	err := c.doJSON(ctx, http.MethodGet, c.tasksURL(portalID, projectID),
		zohoHeaders(accessToken), q, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("projects: searching tasks: %w", err)
	}
	return resp, nil
}
