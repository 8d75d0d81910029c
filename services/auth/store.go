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

// =============================================================================
// TokenStore — Credential Persistence
// =============================================================================
//
// Token records are tiny but precious: losing them forces every tenant back
// through the browser authorization flow, and corrupting the store would take
// out ALL tenants, not just the one being refreshed. Records are therefore
// written as individually versioned JSON values through BadgerDB, whose WAL
// makes each commit crash-atomic — the storage-level equivalent of
// write-to-temp-then-rename for a single flat file, without the multi-tenant
// blast radius of one shared file.
//
// Storage layout:
//
//	tokens/v1/{tenant}  →  JSON tokenEnvelope (version + TokenRecord)

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/zoho-actionizer/actionizer-backend/services/storage/badger"
)

// tokenKeyPrefix is prepended to the tenant id to form the BadgerDB key.
// Versioned (v1) to allow future format changes without collision.
const tokenKeyPrefix = "tokens/v1/"

// tokenEnvelopeVersion is the current serialization version written by Save.
const tokenEnvelopeVersion = 1

// tokenEnvelope is the on-disk representation of a TokenRecord.
type tokenEnvelope struct {
	Version int         `json:"version"`
	Record  TokenRecord `json:"record"`
}

// TokenStore persists per-tenant token records.
//
// # Description
//
// Load returns (record, true, nil) when the tenant has a stored record and
// (zero, false, nil) when it does not; errors are reserved for storage
// failures. Save must be durable before it returns — the Manager relies on
// this to guarantee that no caller ever observes a refreshed token that
// could be lost by a crash.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type TokenStore interface {
	Load(ctx context.Context, tenant string) (TokenRecord, bool, error)
	Save(ctx context.Context, tenant string, rec TokenRecord) error
	Delete(ctx context.Context, tenant string) error
}

// =============================================================================
// BadgerTokenStore
// =============================================================================

// BadgerTokenStore implements TokenStore backed by a BadgerDB instance.
//
// The DB is expected to be opened at startup with SyncWrites enabled and
// shared with the action registry; key prefixes keep the two keyspaces
// apart. The store does not own the DB lifecycle.
//
// # Thread Safety
//
// Safe for concurrent use. BadgerDB transactions are per-goroutine.
type BadgerTokenStore struct {
	db     *badgerstore.DB
	logger *slog.Logger
}

// NewBadgerTokenStore creates a BadgerTokenStore backed by the given DB.
//
// # Inputs
//
//   - db: Opened BadgerDB wrapper. Must not be nil.
//   - logger: Logger for persistence diagnostics. May be nil.
func NewBadgerTokenStore(db *badgerstore.DB, logger *slog.Logger) *BadgerTokenStore {
	if db == nil {
		panic("NewBadgerTokenStore: db must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerTokenStore{db: db, logger: logger}
}

// Load retrieves the token record for a tenant.
func (s *BadgerTokenStore) Load(ctx context.Context, tenant string) (TokenRecord, bool, error) {
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(tokenKey(tenant))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return TokenRecord{}, false, nil
	}
	if err != nil {
		return TokenRecord{}, false, fmt.Errorf("token store load: %w", err)
	}

	var env tokenEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return TokenRecord{}, false, fmt.Errorf("token store decode (tenant %s): %w", tenant, err)
	}
	if env.Version != tokenEnvelopeVersion {
		return TokenRecord{}, false, fmt.Errorf("token store: unsupported record version %d (tenant %s)", env.Version, tenant)
	}
	return env.Record, true, nil
}

// Save durably persists the token record for a tenant.
func (s *BadgerTokenStore) Save(ctx context.Context, tenant string, rec TokenRecord) error {
	raw, err := json.Marshal(tokenEnvelope{Version: tokenEnvelopeVersion, Record: rec})
	if err != nil {
		return fmt.Errorf("token store encode: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set(tokenKey(tenant), raw)
	})
	if err != nil {
		return fmt.Errorf("token store save: %w", err)
	}

	s.logger.Debug("token record persisted",
		slog.String("tenant", tenant),
		slog.Time("expiry", rec.ExpiryTS),
	)
	return nil
}

// Delete removes a tenant's record. Used only by explicit de-authorization.
func (s *BadgerTokenStore) Delete(ctx context.Context, tenant string) error {
	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Delete(tokenKey(tenant))
	})
	if err != nil {
		return fmt.Errorf("token store delete: %w", err)
	}
	return nil
}

// tokenKey builds the BadgerDB key for a tenant.
func tokenKey(tenant string) []byte {
	return []byte(tokenKeyPrefix + tenant)
}

// =============================================================================
// MemoryTokenStore
// =============================================================================

// MemoryTokenStore is an in-memory TokenStore for tests and for deployments
// that explicitly opt out of persistence. Records do not survive a restart.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryTokenStore struct {
	mu      sync.RWMutex
	records map[string]TokenRecord
}

// NewMemoryTokenStore creates an empty MemoryTokenStore.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{records: make(map[string]TokenRecord)}
}

// Load retrieves the token record for a tenant.
func (s *MemoryTokenStore) Load(_ context.Context, tenant string) (TokenRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[tenant]
	return rec, ok, nil
}

// Save stores the token record for a tenant.
func (s *MemoryTokenStore) Save(_ context.Context, tenant string, rec TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[tenant] = rec
	return nil
}

// Delete removes a tenant's record.
func (s *MemoryTokenStore) Delete(_ context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, tenant)
	return nil
}
