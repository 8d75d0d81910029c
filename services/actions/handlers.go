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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zoho-actionizer/actionizer-backend/services/auth"
)

// =============================================================================
// Request / Response Shapes
// =============================================================================

// AnalyzeIntentRequest asks for action suggestions for one message.
type AnalyzeIntentRequest struct {
	MessageText string      `json:"message_text" binding:"required"`
	Metadata    MessageMeta `json:"metadata"`
	Tenant      string      `json:"tenant"`
}

// AnalyzeIntentResponse returns the ranked, registered suggestions.
type AnalyzeIntentResponse struct {
	Suggestions []SuggestedAction `json:"suggestions"`
}

// ExecuteActionRequest executes one previously suggested action.
type ExecuteActionRequest struct {
	ActionID      string         `json:"action_id" binding:"required"`
	UpdatedParams map[string]any `json:"updated_params"`
}

// ExecuteActionResponse carries the tool-specific result payload.
type ExecuteActionResponse struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
}

type errorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code,omitempty"`
}

// =============================================================================
// Handlers
// =============================================================================

// Handlers wires the pipeline components behind the HTTP surface.
type Handlers struct {
	analyzer   *Analyzer
	registry   ActionRegistry
	catalog    *Catalog
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewHandlers creates the pipeline HTTP handlers.
func NewHandlers(analyzer *Analyzer, registry ActionRegistry, catalog *Catalog, dispatcher *Dispatcher, logger *slog.Logger) *Handlers {
	if analyzer == nil || registry == nil || catalog == nil || dispatcher == nil {
		panic("NewHandlers: all components are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		analyzer:   analyzer,
		registry:   registry,
		catalog:    catalog,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// HandleAnalyzeIntent ranks action suggestions for a message and registers
// each one so it can be executed within the TTL window.
//
// POST /analyze-intent
func (h *Handlers) HandleAnalyzeIntent(c *gin.Context) {
	var req AnalyzeIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  CodeValidation,
		})
		return
	}
	tenant := req.Tenant
	if tenant == "" {
		tenant = auth.DefaultTenant
	}
	log := h.requestLogger(c)

	suggestions, err := h.analyzer.Analyze(c.Request.Context(), req.MessageText, req.Metadata)
	if err != nil {
		log.Error("analyze failed", slog.String("error", err.Error()))
		h.writeError(c, err)
		return
	}

	registered := make([]SuggestedAction, 0, len(suggestions))
	for _, s := range suggestions {
		s.Tenant = tenant
		id, err := h.registry.Put(c.Request.Context(), s)
		if err != nil {
			log.Error("storing suggestion failed", slog.String("error", err.Error()))
			h.writeError(c, err)
			return
		}
		s.ActionID = id
		registered = append(registered, s)
	}

	log.Info("intent analyzed",
		slog.String("tenant", tenant),
		slog.Int("suggestions", len(registered)),
	)
	c.JSON(http.StatusOK, AnalyzeIntentResponse{Suggestions: registered})
}

// HandleExecuteAction validates, authorizes, and dispatches one stored
// action with the caller's whitelisted overrides.
//
// POST /execute-action
func (h *Handlers) HandleExecuteAction(c *gin.Context) {
	var req ExecuteActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "invalid request: " + err.Error(),
			Code:  CodeValidation,
		})
		return
	}
	log := h.requestLogger(c)

	action, err := h.registry.Get(c.Request.Context(), req.ActionID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	fields := MergeFields(action, req.UpdatedParams)

	// Validation runs before any token fetch or adapter call.
	if err := ValidateRequired(h.catalog, action.Tool, fields); err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), action.Tool, action.Tenant, fields)
	if err != nil {
		log.Warn("execution failed",
			slog.String("action_id", req.ActionID),
			slog.String("tool", action.Tool),
			slog.String("error", err.Error()),
		)
		h.writeError(c, err)
		return
	}

	log.Info("action executed",
		slog.String("action_id", req.ActionID),
		slog.String("tool", action.Tool),
	)
	c.JSON(http.StatusOK, ExecuteActionResponse{Success: true, Result: result})
}

// HandleHealth reports liveness.
//
// GET /health
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps a pipeline error onto its HTTP status and JSON body.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var ae *ActionError
	if !errors.As(err, &ae) {
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	c.JSON(statusForCode(ae), errorResponse{Error: ae.Message, Code: ae.Code})
}

// statusForCode is the single place the error taxonomy meets HTTP.
func statusForCode(ae *ActionError) int {
	switch ae.Code {
	case CodeParse:
		return http.StatusBadGateway
	case CodeValidation, CodeUnsupportedTool:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeUpstream:
		// Upstream errors are usually caller-correctable (bad fields) unless
		// the third party itself fell over.
		if ae.UpstreamStatus >= 500 {
			return http.StatusBadGateway
		}
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// requestLogger attaches the request id set by the middleware.
func (h *Handlers) requestLogger(c *gin.Context) *slog.Logger {
	if id := c.GetString(requestIDKey); id != "" {
		return h.logger.With(slog.String("request_id", id))
	}
	return h.logger
}
