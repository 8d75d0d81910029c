// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the browser-facing OAuth flow over gin.
type Handlers struct {
	manager *Manager
	oauth   *OAuthClient
	logger  *slog.Logger
}

// NewHandlers creates the OAuth HTTP handlers.
func NewHandlers(manager *Manager, oauth *OAuthClient, logger *slog.Logger) *Handlers {
	if manager == nil {
		panic("NewHandlers: manager must not be nil")
	}
	if oauth == nil {
		panic("NewHandlers: oauth must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{manager: manager, oauth: oauth, logger: logger}
}

// HandleAuthorize starts the authorization flow.
//
// GET /auth?tenant=<id>
//
// Redirects the browser to the accounts server's consent page. The tenant
// identifier rides in the OAuth state parameter and comes back on the
// callback.
func (h *Handlers) HandleAuthorize(c *gin.Context) {
	tenant := c.Query("tenant")
	if tenant == "" {
		tenant = DefaultTenant
	}
	c.Redirect(http.StatusFound, h.oauth.AuthorizeURL(tenant))
}

// HandleCallback completes the authorization flow.
//
// GET /callback?code=...&state=<tenant>&accounts-server=...
//
// Exchanges the one-time grant code for the tenant's first token record and
// sends the browser to the success page. The code is consumed exactly once;
// a failed exchange is surfaced here rather than retried.
func (h *Handlers) HandleCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code parameter"})
		return
	}
	tenant := c.Query("state")
	if tenant == "" {
		tenant = DefaultTenant
	}
	accountsServer := c.Query("accounts-server")

	if err := h.manager.Exchange(c.Request.Context(), tenant, code, accountsServer); err != nil {
		h.logger.Error("authorization code exchange failed",
			slog.String("tenant", tenant),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "token exchange failed"})
		return
	}

	c.Redirect(http.StatusSeeOther, "/authsuccess")
}

// HandleAuthSuccess renders the post-authorization landing page.
//
// GET /authsuccess
func (h *Handlers) HandleAuthSuccess(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(authSuccessPage))
}

const authSuccessPage = `<!DOCTYPE html>
<html>
<head><title>Authorization Complete</title></head>
<body>
<h1>Authorization complete</h1>
<p>You can close this window and return to the application.</p>
</body>
</html>
`

// RegisterRoutes attaches the OAuth flow endpoints to the router.
func (h *Handlers) RegisterRoutes(r gin.IRouter) {
	r.GET("/auth", h.HandleAuthorize)
	r.GET("/callback", h.HandleCallback)
	r.GET("/authsuccess", h.HandleAuthSuccess)
}
