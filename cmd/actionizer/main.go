// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command actionizer starts the action suggestion and execution server.
//
// The server turns free-text messages into ranked tool-action suggestions
// (Jira tickets, Zoho Projects tasks, Calendar events, WorkDrive shares),
// holds them in a TTL-bounded registry, and executes the one the caller
// picks after merging whitelisted parameter overrides, resolving the
// tenant's OAuth token on the way.
//
// Usage:
//
//	go run ./cmd/actionizer
//	go run ./cmd/actionizer -port 9090 -data-dir /var/lib/actionizer
//
// Environment:
//
//	GEMINI_API_KEY       model API key (required for analyze)
//	GEMINI_MODEL         model name (default gemini-2.0-flash)
//	ZOHO_CLIENT_ID       OAuth client id
//	ZOHO_CLIENT_SECRET   OAuth client secret
//	ZOHO_ACCOUNTS_URL    accounts server (default https://accounts.zoho.com)
//	OAUTH_REDIRECT_URI   callback URL (default http://localhost:8080/callback)
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/actions/health
//
//	# Analyze a message
//	curl -X POST http://localhost:8080/v1/actions/analyze-intent \
//	  -H "Content-Type: application/json" \
//	  -d '{"message_text": "fix the payment bug by 5pm tomorrow"}'
//
//	# Execute a suggestion
//	curl -X POST http://localhost:8080/v1/actions/execute-action \
//	  -H "Content-Type: application/json" \
//	  -d '{"action_id": "<id>", "updated_params": {"project_key": "OPS"}}'
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"

	"github.com/zoho-actionizer/actionizer-backend/services/actions"
	"github.com/zoho-actionizer/actionizer-backend/services/auth"
	"github.com/zoho-actionizer/actionizer-backend/services/integrations"
	"github.com/zoho-actionizer/actionizer-backend/services/llm"
	badgerstore "github.com/zoho-actionizer/actionizer-backend/services/storage/badger"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	dataDir := flag.String("data-dir", "", "Directory for the embedded store; empty runs actions in memory")
	catalogFile := flag.String("catalog", "", "Optional YAML file overriding the built-in tool catalog")
	actionTTL := flag.Duration("action-ttl", actions.DefaultActionTTL, "Lifetime of stored suggestions")
	rps := flag.Float64("rate-limit", 20, "Requests per second allowed before 429")
	traceStdout := flag.Bool("trace-stdout", false, "Export OTel spans to stdout")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if *traceStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			slog.Error("Failed to create stdout trace exporter", slog.String("error", err.Error()))
			os.Exit(1)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
	}

	// Catalog: built-in unless overridden from YAML.
	catalog := actions.DefaultCatalog()
	if *catalogFile != "" {
		loaded, err := actions.LoadCatalogFile(*catalogFile)
		if err != nil {
			slog.Error("Failed to load catalog file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		catalog = loaded
		slog.Info("Catalog overridden from file",
			slog.String("path", *catalogFile),
			slog.Int("tools", len(catalog.Tools())),
		)
	}

	// Persistence: a data dir gives durable actions and tokens; without one,
	// actions live in memory and a restart drops stored tokens too.
	var db *badgerstore.DB
	var registry actions.ActionRegistry
	var tokenStore auth.TokenStore
	if *dataDir != "" {
		cfg := badgerstore.DefaultConfig()
		cfg.Path = *dataDir
		opened, err := badgerstore.OpenDB(cfg)
		if err != nil {
			slog.Error("Failed to open data directory",
				slog.String("path", *dataDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		db = opened
		registry = actions.NewBadgerActionRegistry(db, *actionTTL, slog.Default())
		tokenStore = auth.NewBadgerTokenStore(db, slog.Default())
		slog.Info("Embedded store opened", slog.String("path", *dataDir))
	} else {
		registry = actions.NewMemoryActionRegistry(*actionTTL)
		tokenStore = auth.NewMemoryTokenStore()
		slog.Warn("No data-dir set; actions and tokens will not survive a restart")
	}

	// Model client.
	llmClient, err := llm.NewGeminiClient()
	if err != nil {
		slog.Error("Failed to create model client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	analyzer := actions.NewAnalyzer(llmClient, catalog, llm.GenerationParams{}, slog.Default())

	// OAuth + token manager.
	oauthCfg, err := auth.LoadOAuthConfig()
	if err != nil {
		slog.Error("Failed to load OAuth config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	oauthClient := auth.NewOAuthClient(oauthCfg)
	tokenManager := auth.NewManager(tokenStore, oauthClient, 0, slog.Default())

	// Adapters + dispatcher.
	adapterClient := integrations.NewClient(integrations.DefaultConfig(), slog.Default())
	dispatcher, err := actions.NewDispatcher(catalog, tokenManager, adapterClient, slog.Default())
	if err != nil {
		slog.Error("Dispatcher construction failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Router.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("actionizer"))
	router.Use(actions.RequestIDMiddleware())
	router.Use(rateLimitMiddleware(rate.NewLimiter(rate.Limit(*rps), int(*rps)*2)))
	if *debug {
		router.Use(gin.Logger())
	}

	actions.NewHandlers(analyzer, registry, catalog, dispatcher, slog.Default()).RegisterRoutes(router)
	auth.NewHandlers(tokenManager, oauthClient, slog.Default()).RegisterRoutes(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port, *dataDir != "")

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down actionizer server")
		if db != nil {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close embedded store", slog.String("error", err.Error()))
			}
		}
		os.Exit(0)
	}()

	// Periodic value-log GC for long-running on-disk deployments.
	if db != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for range ticker.C {
				db.RunGC(slog.Default())
			}
		}()
	}

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting actionizer server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// rateLimitMiddleware rejects requests beyond the global limit with 429.
func rateLimitMiddleware(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

func printBanner(port int, durable bool) {
	storage := "IN-MEMORY (set -data-dir for durability)"
	if durable {
		storage = "DURABLE (embedded store)"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                       ACTIONIZER SERVER                           ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Message → ranked action suggestions → validated execution.       ║
║  Storage: %-50s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/actions/health            │  ║
║  │                                                             │  ║
║  │ # Authorize a tenant (browser)                              │  ║
║  │ open http://localhost:%d/auth?tenant=default          │  ║
║  │                                                             │  ║
║  │ # Analyze a message                                         │  ║
║  │ curl -X POST http://localhost:%d/v1/actions/analyze-intent \║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"message_text": "fix the payment bug by 5pm"}'       │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Actions: /v1/actions/analyze-intent, /execute-action         ║
║  ├── OAuth:   /auth, /callback, /authsuccess                      ║
║  └── Ops:     /v1/actions/health, /metrics                        ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, storage, port, port, port)
}
