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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/zoho-actionizer/actionizer-backend/services/auth"
	"github.com/zoho-actionizer/actionizer-backend/services/integrations"
)

// =============================================================================
// Tool Dispatcher
// =============================================================================

// TokenSource serves valid access tokens per tenant. Satisfied by
// auth.Manager.
type TokenSource interface {
	GetToken(ctx context.Context, tenant string) (string, error)
}

// toolHandler executes one tool's adapter call from validated fields. Each
// handler owns its field extraction.
type toolHandler func(ctx context.Context, accessToken string, fields map[string]any) (map[string]any, error)

// Dispatcher routes a validated action to its tool adapter.
//
// # Description
//
// The handler table is built and verified at construction: every catalog
// tool must have a handler, so a catalog/dispatch mismatch fails startup
// instead of a request. The dispatcher owns no state and never retries —
// ticket and event creation are not idempotent-safe.
//
// Cancelled requests are not compensated: an upstream side effect that
// already happened (a created ticket) stays.
//
// # Thread Safety
//
// Safe for concurrent use.
type Dispatcher struct {
	tokens   TokenSource
	client   *integrations.Client
	handlers map[string]toolHandler
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewDispatcher builds the dispatch table and verifies it covers the
// catalog.
func NewDispatcher(catalog *Catalog, tokens TokenSource, client *integrations.Client, logger *slog.Logger) (*Dispatcher, error) {
	if catalog == nil || tokens == nil || client == nil {
		return nil, fmt.Errorf("dispatcher: catalog, tokens and client are all required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		tokens: tokens,
		client: client,
		logger: logger,
		tracer: otel.Tracer("actions.Dispatcher"),
	}
	d.handlers = map[string]toolHandler{
		"jira":           d.dispatchJira,
		"zoho_projects":  d.dispatchProjects,
		"zoho_calendar":  d.dispatchCalendar,
		"zoho_workdrive": d.dispatchWorkDrive,
	}

	for _, spec := range catalog.Tools() {
		if _, ok := d.handlers[spec.Name]; !ok {
			return nil, fmt.Errorf("dispatcher: catalog tool %q has no registered handler", spec.Name)
		}
	}
	return d, nil
}

// Dispatch obtains the tenant's token and runs the tool's adapter call.
//
// # Outputs
//
//   - map[string]any: Tool-specific result payload.
//   - error: *ActionError — CodeUnsupportedTool, CodeAuthRequired,
//     CodeNotFound (file lookups), CodeValidation, or CodeUpstream.
func (d *Dispatcher) Dispatch(ctx context.Context, tool, tenant string, fields map[string]any) (map[string]any, error) {
	ctx, span := d.tracer.Start(ctx, "actions.Dispatcher.Dispatch",
		trace.WithAttributes(attribute.String("tool", tool)))
	defer span.End()

	handler, ok := d.handlers[tool]
	if !ok {
		dispatchTotal.WithLabelValues(tool, "unsupported").Inc()
		return nil, NewUnsupportedToolError(tool)
	}

	token, err := d.tokens.GetToken(ctx, tenant)
	if err != nil {
		span.SetStatus(codes.Error, "token unavailable")
		dispatchTotal.WithLabelValues(tool, "auth_required").Inc()
		if errors.Is(err, auth.ErrAuthRequired) || errors.Is(err, auth.ErrRefreshFailed) {
			return nil, NewAuthRequiredError(tenant, err)
		}
		return nil, fmt.Errorf("dispatcher: obtaining token: %w", err)
	}

	start := time.Now()
	result, err := handler(ctx, token, fields)
	dispatchLatency.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, "adapter call failed")
		dispatchTotal.WithLabelValues(tool, "error").Inc()
		return nil, normalizeAdapterError(tool, err)
	}

	dispatchTotal.WithLabelValues(tool, "success").Inc()
	d.logger.Info("action dispatched",
		slog.String("tool", tool),
		slog.String("tenant", tenant),
	)
	return result, nil
}

// normalizeAdapterError maps adapter failures onto the pipeline taxonomy so
// raw transport errors never leak to callers.
func normalizeAdapterError(tool string, err error) error {
	if errors.Is(err, integrations.ErrFileNotFound) {
		return &ActionError{Code: CodeNotFound, Message: "no matching file found", Err: err}
	}
	if errors.Is(err, integrations.ErrUnsupportedCliqTarget) {
		return &ActionError{Code: CodeValidation, Message: "only chat share targets are supported", Err: err}
	}
	var apiErr *integrations.APIError
	if errors.As(err, &apiErr) {
		return NewUpstreamError(tool, apiErr.StatusCode, err)
	}
	return NewUpstreamError(tool, 0, err)
}

// =============================================================================
// Per-tool handlers
// =============================================================================

func (d *Dispatcher) dispatchJira(ctx context.Context, accessToken string, fields map[string]any) (map[string]any, error) {
	return d.client.CreateJiraTicket(ctx, accessToken, integrations.TicketRequest{
		ProjectKey:  strField(fields, "project_key"),
		Summary:     strField(fields, "summary"),
		Description: strField(fields, "description"),
		IssueType:   strField(fields, "issuetype"),
		DueDate:     strField(fields, "duedate"),
	})
}

func (d *Dispatcher) dispatchProjects(ctx context.Context, accessToken string, fields map[string]any) (map[string]any, error) {
	return d.client.CreateProjectTask(ctx, accessToken, integrations.TaskRequest{
		PortalID:    strField(fields, "portal_id"),
		ProjectID:   strField(fields, "project_id"),
		Name:        strField(fields, "name"),
		Description: strField(fields, "description"),
		StartDate:   strField(fields, "start_date"),
		EndDate:     strField(fields, "end_date"),
		Priority:    strField(fields, "priority"),
	})
}

func (d *Dispatcher) dispatchCalendar(ctx context.Context, accessToken string, fields map[string]any) (map[string]any, error) {
	return d.client.CreateCalendarEvent(ctx, accessToken, integrations.EventRequest{
		CalendarID:  strField(fields, "calendar_id"),
		Title:       strField(fields, "title"),
		StartISO:    strField(fields, "start_iso"),
		EndISO:      strField(fields, "end_iso"),
		Location:    strField(fields, "location"),
		Description: strField(fields, "description"),
	})
}

func (d *Dispatcher) dispatchWorkDrive(ctx context.Context, accessToken string, fields map[string]any) (map[string]any, error) {
	req := integrations.FindOrShareRequest{
		OrgID:       strField(fields, "org_id"),
		FileID:      strField(fields, "file_id"),
		NameOrQuery: strField(fields, "name_or_query"),
		Filename:    strField(fields, "filename"),
		Message:     strField(fields, "message"),
	}
	if target, ok := fields["cliq_target"].(map[string]any); ok {
		req.CliqTarget = &integrations.CliqTarget{
			Type: strField(target, "type"),
			ID:   strField(target, "id"),
		}
	}
	return d.client.FindOrShareFile(ctx, accessToken, req)
}

// strField fetches a string field from the merged map. Non-string values
// are stringified with %v so numeric model prefill still works.
func strField(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, isString := v.(string); isString {
		return s
	}
	return fmt.Sprintf("%v", v)
}
