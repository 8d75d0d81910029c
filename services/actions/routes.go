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
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDKey is the gin context key under which the request id is stored.
const requestIDKey = "request_id"

// RequestIDMiddleware assigns every request an id, echoed in the
// X-Request-ID response header and attached to request-scoped log lines.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// RegisterRoutes attaches the pipeline endpoints under a versioned group,
// plus top-level aliases matching the pre-versioning wire paths.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	v1 := r.Group("/v1/actions")
	v1.POST("/analyze-intent", h.HandleAnalyzeIntent)
	v1.POST("/execute-action", h.HandleExecuteAction)
	v1.GET("/health", h.HandleHealth)

	// Original clients post to the bare paths.
	r.POST("/analyze-intent", h.HandleAnalyzeIntent)
	r.POST("/execute-action", h.HandleExecuteAction)
}
