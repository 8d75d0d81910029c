// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth manages per-tenant OAuth credential lifecycle.
//
// A tenant's credentials move through three states: unauthenticated (no
// record, or a record without an access token), valid (expiry more than a
// safety margin away), and near-expiry (refresh needed). The Manager serves
// tokens, deduplicates concurrent refreshes per tenant, and persists every
// mutation before any caller observes it. The first record for a tenant is
// seeded by the authorization-code exchange on the OAuth callback — there is
// no refresh path without it.
package auth

import (
	"errors"
	"time"
)

// ErrAuthRequired indicates the tenant has no usable token and a human must
// (re)authorize via the browser flow. It is returned for tenants with no
// stored record and for records that never completed a code exchange; it is
// NOT returned for refresh failures, which keep the stale record in place.
var ErrAuthRequired = errors.New("auth: tenant authorization required")

// ErrRefreshFailed wraps a failed token refresh. The stored record is left
// untouched: the stale token might still work, and clearing it would force a
// needless re-authorization.
var ErrRefreshFailed = errors.New("auth: token refresh failed")

// DefaultTenant is used when a request does not name a tenant. The service
// runs tenant-keyed throughout, but single-tenant deployments never need to
// mention one.
const DefaultTenant = "default"

// TokenRecord holds one tenant's OAuth credentials.
//
// An empty AccessToken means the tenant is unauthenticated: the record may
// exist (e.g. created by a partial flow) but must never trigger a refresh.
// ExpiryTS only moves forward across successful refreshes.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiryTS     time.Time `json:"expiry_ts"`
}

// Authenticated reports whether the record completed a code exchange.
func (r TokenRecord) Authenticated() bool {
	return r.AccessToken != ""
}

// ValidFor reports whether the access token is still usable margin from now.
func (r TokenRecord) ValidFor(margin time.Duration, now time.Time) bool {
	return r.Authenticated() && r.ExpiryTS.After(now.Add(margin))
}
