// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badgerstore wraps BadgerDB behind a small transactional API.
//
// The wrapper exists so that the rest of the codebase never touches a raw
// *badger.DB: callers get context-aware read/write transaction helpers and a
// single place where the DB lifecycle (open, close, crash recovery) is
// handled. BadgerDB writes go through a WAL, so a crash between writes can
// never leave a half-written value visible — which is what the credential
// store relies on for multi-tenant safety.
package badgerstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	badger "github.com/dgraph-io/badger/v4"
)

// Config controls how the DB is opened.
type Config struct {
	// Path is the on-disk directory for the DB. Ignored when InMemory is set.
	Path string

	// InMemory opens a non-persistent DB. Used by tests.
	InMemory bool

	// SyncWrites forces an fsync on every commit. Slower, but a committed
	// write survives power loss. The credential store wants this.
	SyncWrites bool
}

// DefaultConfig returns the standard on-disk configuration.
//
// The caller must set Path before passing the config to OpenDB.
func DefaultConfig() Config {
	return Config{SyncWrites: true}
}

// InMemoryConfig returns a configuration for an ephemeral in-memory DB.
//
// Used by tests and by deployments that explicitly opt out of persistence.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is an opened BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use. Badger transactions are per-goroutine.
type DB struct {
	db *badger.DB
}

// OpenDB opens (creating if necessary) a BadgerDB with the given config.
//
// # Inputs
//
//   - cfg: Open configuration. For on-disk DBs, cfg.Path must be non-empty.
//
// # Outputs
//
//   - *DB: The opened database. Never nil on success.
//   - error: Non-nil if the directory cannot be created or the DB cannot
//     be opened (e.g. another process holds the lock).
func OpenDB(cfg Config) (*DB, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badgerstore: config.Path must be set for on-disk DB")
		}
		if err := os.MkdirAll(cfg.Path, 0o700); err != nil {
			return nil, fmt.Errorf("badgerstore: creating data dir: %w", err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	// Badger's default logger prints to stderr with its own format; route
	// nothing through it and keep slog as the single logging surface.
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: opening DB: %w", err)
	}
	return &DB{db: db}, nil
}

// WithTxn runs fn inside a read-write transaction and commits it.
//
// The context is checked before the transaction starts; Badger itself does
// not observe cancellation mid-transaction.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// Close flushes and closes the underlying DB.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("badgerstore: closing DB: %w", err)
	}
	return nil
}

// RunGC triggers one round of Badger value-log garbage collection.
//
// Intended to be called periodically from a background goroutine in main.
// Returns without error when there was nothing to collect.
func (d *DB) RunGC(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	err := d.db.RunValueLogGC(0.5)
	switch err {
	case nil:
		logger.Debug("badger value log GC reclaimed space")
	case badger.ErrNoRewrite:
		// Nothing to collect.
	default:
		logger.Warn("badger value log GC failed", slog.String("error", err.Error()))
	}
}
