// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// actiondump inspects an actionizer data directory.
//
// The server persists pending action suggestions and per-tenant OAuth token
// records in BadgerDB between restarts. This tool opens the store read-only
// and prints a human-readable summary: suggestion ids, tools, scores,
// tenants, TTL remaining, and — for tokens — tenant, expiry, and whether a
// refresh token is present. Token values themselves are never printed.
//
// Usage:
//
//	actiondump [--path /var/lib/actionizer]
//
// If --path is not given, reads ACTIONIZER_DATA_DIR from the environment.
//
// Exit codes:
//
//	0 — success (including "empty store" which prints a message and exits 0)
//	1 — error opening or reading the database
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/zoho-actionizer/actionizer-backend/services/actions"
	"github.com/zoho-actionizer/actionizer-backend/services/auth"
)

// Key prefixes must match registry.go and store.go exactly.
const (
	actionKeyPrefix = "actions/v1/"
	tokenKeyPrefix  = "tokens/v1/"
)

func main() {
	pathFlag := flag.String("path", "", "Path to the actionizer BadgerDB directory (overrides ACTIONIZER_DATA_DIR env var)")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("ACTIONIZER_DATA_DIR")
	}
	if dbPath == "" {
		fatalf("no path given: pass --path or set ACTIONIZER_DATA_DIR")
	}

	fmt.Printf("Data directory: %s\n", dbPath)

	// Check existence before trying to open — gives a cleaner error message
	// than BadgerDB's "no such file or directory" buried in a long error.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Data directory does not exist. The server has not persisted anything yet.")
		fmt.Println("Start the server with -data-dir pointing here to populate it.")
		os.Exit(0)
	}

	opts := dgbadger.DefaultOptions(dbPath).
		WithLogger(nil). // suppress BadgerDB internal logs
		WithReadOnly(true)

	db, err := dgbadger.Open(opts)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	suggestions, tokens, err := collect(db)
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}

	printSuggestions(suggestions)
	printTokens(tokens)

	fmt.Printf("\n%s\n", strings.Repeat("─", 80))
	fmt.Printf("Summary: %d pending suggestion%s, %d tenant token record%s, path: %s\n",
		len(suggestions), plural(len(suggestions), "", "s"),
		len(tokens), plural(len(tokens), "", "s"),
		dbPath)
}

// suggestionEntry is one decoded row under the actions key prefix.
type suggestionEntry struct {
	id        string
	expiresAt time.Time
	hasExpiry bool
	rawSize   int
	action    actions.SuggestedAction
	decodeErr error
}

// tokenEntry is one decoded row under the tokens key prefix.
type tokenEntry struct {
	tenant     string
	rawSize    int
	record     auth.TokenRecord
	hasRefresh bool
	decodeErr  error
}

func collect(db *dgbadger.DB) ([]suggestionEntry, []tokenEntry, error) {
	var suggestions []suggestionEntry
	var tokens []tokenEntry

	err := db.View(func(txn *dgbadger.Txn) error {
		itOpts := dgbadger.DefaultIteratorOptions
		itOpts.PrefetchValues = true
		it := txn.NewIterator(itOpts)
		defer it.Close()

		prefix := []byte(actionKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			e := suggestionEntry{id: strings.TrimPrefix(string(item.Key()), actionKeyPrefix)}
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				suggestions = append(suggestions, e)
				continue
			}
			e.rawSize = len(raw)
			if err := json.Unmarshal(raw, &e.action); err != nil {
				e.decodeErr = fmt.Errorf("decode suggestion: %w", err)
			}
			suggestions = append(suggestions, e)
		}

		prefix = []byte(tokenKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			e := tokenEntry{tenant: strings.TrimPrefix(string(item.Key()), tokenKeyPrefix)}
			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				tokens = append(tokens, e)
				continue
			}
			e.rawSize = len(raw)
			var envelope struct {
				Version int              `json:"version"`
				Record  auth.TokenRecord `json:"record"`
			}
			if err := json.Unmarshal(raw, &envelope); err != nil {
				e.decodeErr = fmt.Errorf("decode token envelope: %w", err)
			} else {
				e.record = envelope.Record
				e.hasRefresh = envelope.Record.RefreshToken != ""
			}
			tokens = append(tokens, e)
		}
		return nil
	})
	return suggestions, tokens, err
}

func printSuggestions(entries []suggestionEntry) {
	if len(entries) == 0 {
		fmt.Println("\nNo pending suggestions.")
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].action.StoredAt.Before(entries[j].action.StoredAt)
	})

	fmt.Printf("\nFound %d pending suggestion%s:\n", len(entries), plural(len(entries), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Printf("\n[%d] Action id:  %s\n", i+1, e.id)
		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}
		fmt.Printf("    Tool:       %s\n", e.action.Tool)
		fmt.Printf("    Score:      %.2f\n", e.action.Score)
		fmt.Printf("    Tenant:     %s\n", e.action.Tenant)
		fmt.Printf("    Title:      %s\n", e.action.Title)
		fmt.Printf("    Stored at:  %s\n", e.action.StoredAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("    Raw size:   %d bytes\n", e.rawSize)
		if e.hasExpiry {
			remaining := time.Until(e.expiresAt)
			if remaining < 0 {
				fmt.Printf("    TTL:        EXPIRED (%s ago, awaiting compaction)\n", (-remaining).Round(time.Second))
			} else {
				fmt.Printf("    TTL:        %s remaining\n", remaining.Round(time.Second))
			}
		} else {
			fmt.Printf("    TTL:        no expiry set\n")
		}
		if len(e.action.Prefill) > 0 {
			keys := make([]string, 0, len(e.action.Prefill))
			for k := range e.action.Prefill {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Printf("    Prefill:    %s\n", strings.Join(keys, ", "))
		}
	}
}

func printTokens(entries []tokenEntry) {
	if len(entries) == 0 {
		fmt.Println("\nNo tenant token records.")
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].tenant < entries[j].tenant })

	fmt.Printf("\nFound %d tenant token record%s:\n", len(entries), plural(len(entries), "", "s"))
	fmt.Println(strings.Repeat("─", 80))

	for _, e := range entries {
		fmt.Printf("\n    Tenant:     %s\n", e.tenant)
		if e.decodeErr != nil {
			fmt.Printf("    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}
		expiry := e.record.ExpiryTS
		remaining := time.Until(expiry)
		var status string
		if remaining < 0 {
			status = fmt.Sprintf("expired %s ago (refresh on next use)", (-remaining).Round(time.Second))
		} else {
			status = fmt.Sprintf("valid for %s", remaining.Round(time.Second))
		}
		fmt.Printf("    Access:     %s (expires %s)\n", status, expiry.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("    Refresh:    present=%v\n", e.hasRefresh)
		fmt.Printf("    Raw size:   %d bytes\n", e.rawSize)
	}
}

// plural returns singular or plural suffix based on count.
func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

// fatalf prints to stderr and exits 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "actiondump: "+format+"\n", args...)
	os.Exit(1)
}
