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
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	tokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "actionizer",
		Subsystem: "auth",
		Name:      "token_refresh_total",
		Help:      "Token refresh attempts by outcome: success, error, shared",
	}, []string{"outcome"})

	tokenRefreshLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "actionizer",
		Subsystem: "auth",
		Name:      "token_refresh_latency_seconds",
		Help:      "Latency of token refresh calls to the accounts server",
		Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
	})
)

// defaultExpiryMargin is how far ahead of expiry a token is still served
// without a refresh. 60 seconds covers the adapter call that follows.
const defaultExpiryMargin = 60 * time.Second

// =============================================================================
// Manager
// =============================================================================

// Manager serves valid access tokens per tenant, refreshing near-expiry
// tokens with at most one in-flight refresh per tenant.
//
// # Description
//
// GetToken is the hot path: a valid stored token returns immediately with no
// locking beyond the store read. Near-expiry tokens go through a
// singleflight group keyed by tenant, so concurrent callers share one
// network call and one result — a failed refresh propagates the same error
// to every waiter of that attempt, and the stale record stays in place.
//
// Exchange seeds the first record from the one-time grant code delivered to
// the OAuth callback. It is deliberately not routed through the
// singleflight group: codes are single-use and the callback invokes the
// exchange exactly once.
//
// # Thread Safety
//
// Safe for concurrent use.
type Manager struct {
	store  TokenStore
	oauth  *OAuthClient
	margin time.Duration
	logger *slog.Logger

	refreshGroup singleflight.Group

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewManager creates a Manager over the given store and OAuth client.
//
// # Inputs
//
//   - store: Token persistence. Must not be nil.
//   - oauth: Accounts-server client. Must not be nil.
//   - margin: Remaining lifetime below which a refresh is triggered.
//     Pass 0 to use the default (60s).
//   - logger: Logger instance. May be nil.
func NewManager(store TokenStore, oauth *OAuthClient, margin time.Duration, logger *slog.Logger) *Manager {
	if store == nil {
		panic("NewManager: store must not be nil")
	}
	if oauth == nil {
		panic("NewManager: oauth must not be nil")
	}
	if margin <= 0 {
		margin = defaultExpiryMargin
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		oauth:  oauth,
		margin: margin,
		logger: logger,
		now:    time.Now,
	}
}

// GetToken returns a valid access token for the tenant.
//
// # Description
//
// Fails with ErrAuthRequired when the tenant has never completed the
// authorization flow. A near-expiry token triggers a single-flight refresh;
// the refreshed record is persisted before any waiter gets the new token.
//
// # Outputs
//
//   - string: A usable access token.
//   - error: ErrAuthRequired, ErrRefreshFailed (wrapped), or a storage error.
func (m *Manager) GetToken(ctx context.Context, tenant string) (string, error) {
	if tenant == "" {
		tenant = DefaultTenant
	}

	rec, ok, err := m.store.Load(ctx, tenant)
	if err != nil {
		return "", fmt.Errorf("loading token record: %w", err)
	}
	if !ok || !rec.Authenticated() {
		return "", fmt.Errorf("tenant %q: %w", tenant, ErrAuthRequired)
	}

	if rec.ValidFor(m.margin, m.now()) {
		return rec.AccessToken, nil
	}

	// Near expiry: refresh, deduplicated per tenant. Every concurrent caller
	// for this tenant awaits the same attempt and observes the same outcome.
	token, err, shared := m.refreshGroup.Do(tenant, func() (interface{}, error) {
		return m.refresh(ctx, tenant, rec)
	})
	if shared {
		tokenRefreshTotal.WithLabelValues("shared").Inc()
	}
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// refresh performs one refresh attempt for a tenant and persists the result.
//
// The stored record is re-read inside the critical section: a caller that
// lost the singleflight race may have been queued behind a refresh that
// already completed, in which case the fresh record is returned without
// another network call.
func (m *Manager) refresh(ctx context.Context, tenant string, stale TokenRecord) (string, error) {
	rec, ok, err := m.store.Load(ctx, tenant)
	if err != nil {
		return "", fmt.Errorf("reloading token record: %w", err)
	}
	if ok && rec.ValidFor(m.margin, m.now()) {
		return rec.AccessToken, nil
	}
	if !ok {
		rec = stale
	}

	start := m.now()
	accessToken, expiry, err := m.oauth.Refresh(ctx, rec.RefreshToken)
	tokenRefreshLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		// Keep the stale record: the old token might still be accepted, and
		// a human may re-authorize out of band.
		tokenRefreshTotal.WithLabelValues("error").Inc()
		m.logger.Warn("token refresh failed",
			slog.String("tenant", tenant),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("tenant %q: %w: %w", tenant, ErrRefreshFailed, err)
	}

	// Expiry is monotonic across successful refreshes.
	if expiry.Before(rec.ExpiryTS) {
		expiry = rec.ExpiryTS
	}
	rec.AccessToken = accessToken
	rec.ExpiryTS = expiry

	// Persist before returning so no waiter ever holds a token the store
	// could lose on crash.
	if err := m.store.Save(ctx, tenant, rec); err != nil {
		tokenRefreshTotal.WithLabelValues("error").Inc()
		return "", fmt.Errorf("persisting refreshed token: %w", err)
	}

	tokenRefreshTotal.WithLabelValues("success").Inc()
	m.logger.Info("token refreshed",
		slog.String("tenant", tenant),
		slog.Time("expiry", rec.ExpiryTS),
	)
	return rec.AccessToken, nil
}

// Exchange turns a one-time grant code into the tenant's first token record.
//
// # Description
//
// Called by the OAuth callback handler, exactly once per code. The record is
// persisted before returning. Not routed through the singleflight group —
// the code exchange is a distinct, non-concurrent operation.
func (m *Manager) Exchange(ctx context.Context, tenant, code, accountsServer string) error {
	if tenant == "" {
		tenant = DefaultTenant
	}

	rec, err := m.oauth.Exchange(ctx, code, accountsServer)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, tenant, rec); err != nil {
		return fmt.Errorf("persisting exchanged token: %w", err)
	}

	m.logger.Info("authorization code exchanged",
		slog.String("tenant", tenant),
		slog.Time("expiry", rec.ExpiryTS),
	)
	return nil
}
