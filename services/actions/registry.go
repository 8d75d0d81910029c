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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	badgerstore "github.com/zoho-actionizer/actionizer-backend/services/storage/badger"
)

// =============================================================================
// Action Registry
// =============================================================================

// DefaultActionTTL bounds how long a suggestion stays executable. Stale
// prefill may reference data that has since changed.
const DefaultActionTTL = 15 * time.Minute

// actionKeyPrefix versions the key layout so a future format change can
// migrate by prefix.
const actionKeyPrefix = "actions/v1/"

// ActionRegistry stores suggested actions for their execution window.
//
// Put always generates a fresh identifier — never caller-supplied — so
// action ids cannot be guessed or collided across tenants. Get on an
// unknown or expired id fails with CodeNotFound.
type ActionRegistry interface {
	Put(ctx context.Context, action SuggestedAction) (string, error)
	Get(ctx context.Context, id string) (SuggestedAction, error)
	Delete(ctx context.Context, id string) error
}

// =============================================================================
// Badger-backed implementation
// =============================================================================

// BadgerActionRegistry persists actions as JSON under actions/v1/{id} with a
// store-native TTL.
//
// # Description
//
// Expiry is enforced twice: the store drops the entry after the TTL, and Get
// double-checks StoredAt so a key the garbage collector has not reclaimed
// yet is still never returned past its lifetime.
//
// # Thread Safety
//
// Safe for concurrent use; badger transactions provide isolation.
type BadgerActionRegistry struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger

	// now is swappable for expiry tests.
	now func() time.Time
}

// NewBadgerActionRegistry creates a registry over an open database.
//
// # Inputs
//
//   - db: Open database handle. Must not be nil.
//   - ttl: Entry lifetime. Zero means DefaultActionTTL.
//   - logger: Logger instance. May be nil.
func NewBadgerActionRegistry(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *BadgerActionRegistry {
	if db == nil {
		panic("NewBadgerActionRegistry: db must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultActionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerActionRegistry{db: db, ttl: ttl, logger: logger, now: time.Now}
}

func actionKey(id string) []byte {
	return []byte(actionKeyPrefix + id)
}

// Put stores the action under a fresh identifier and returns it.
func (r *BadgerActionRegistry) Put(ctx context.Context, action SuggestedAction) (string, error) {
	id := uuid.NewString()
	action.ActionID = id
	action.StoredAt = r.now()

	encoded, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("registry: encoding action: %w", err)
	}

	err = r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(actionKey(id), encoded).WithTTL(r.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return "", fmt.Errorf("registry: storing action: %w", err)
	}

	r.logger.Debug("action stored",
		slog.String("action_id", id),
		slog.String("tool", action.Tool),
	)
	return id, nil
}

// Get returns the stored action, or CodeNotFound for unknown and expired
// ids.
func (r *BadgerActionRegistry) Get(ctx context.Context, id string) (SuggestedAction, error) {
	var action SuggestedAction
	err := r.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(actionKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &action)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return SuggestedAction{}, NewNotFoundError(id)
	}
	if err != nil {
		return SuggestedAction{}, fmt.Errorf("registry: loading action: %w", err)
	}

	if r.now().Sub(action.StoredAt) >= r.ttl {
		return SuggestedAction{}, NewNotFoundError(id)
	}
	return action, nil
}

// Delete removes the action. Deleting an unknown id is not an error.
func (r *BadgerActionRegistry) Delete(ctx context.Context, id string) error {
	err := r.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(actionKey(id))
	})
	if err != nil {
		return fmt.Errorf("registry: deleting action: %w", err)
	}
	return nil
}

// =============================================================================
// In-memory implementation
// =============================================================================

// MemoryActionRegistry holds actions in a map with lazy expiry on Get. Used
// when no data directory is configured, and in tests.
//
// # Thread Safety
//
// Safe for concurrent use.
type MemoryActionRegistry struct {
	mu      sync.RWMutex
	actions map[string]SuggestedAction
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryActionRegistry creates an in-memory registry. Zero ttl means
// DefaultActionTTL.
func NewMemoryActionRegistry(ttl time.Duration) *MemoryActionRegistry {
	if ttl <= 0 {
		ttl = DefaultActionTTL
	}
	return &MemoryActionRegistry{
		actions: make(map[string]SuggestedAction),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *MemoryActionRegistry) Put(_ context.Context, action SuggestedAction) (string, error) {
	id := uuid.NewString()
	action.ActionID = id
	action.StoredAt = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictExpiredLocked()
	r.actions[id] = action
	registrySize.Set(float64(len(r.actions)))
	return id, nil
}

func (r *MemoryActionRegistry) Get(_ context.Context, id string) (SuggestedAction, error) {
	r.mu.RLock()
	action, ok := r.actions[id]
	r.mu.RUnlock()
	if !ok || r.now().Sub(action.StoredAt) >= r.ttl {
		return SuggestedAction{}, NewNotFoundError(id)
	}
	return action, nil
}

func (r *MemoryActionRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.actions, id)
	registrySize.Set(float64(len(r.actions)))
	return nil
}

// evictExpiredLocked sweeps expired entries. Caller holds the write lock.
func (r *MemoryActionRegistry) evictExpiredLocked() {
	cutoff := r.now().Add(-r.ttl)
	for id, a := range r.actions {
		if !a.StoredAt.After(cutoff) {
			delete(r.actions, id)
		}
	}
}
