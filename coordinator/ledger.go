// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"sort"
	"sync"
)

// TokenRecord is one identity's durable session state: who it is on
// the server and where its sync cursor stands. UserID travels as a
// plain string; it crosses wire and file boundaries, and an
// unparseable value must degrade to re-learning the ID at login
// rather than dropping the row.
type TokenRecord struct {
	Username    string `cbor:"1,keyasint" json:"username"`
	UserID      string `cbor:"2,keyasint" json:"user_id"`
	AccessToken string `cbor:"3,keyasint" json:"access_token"`
	NextBatch   string `cbor:"4,keyasint" json:"next_batch"`
}

// merge overlays an update onto an existing record. Empty update
// fields leave the existing value in place, so a cursor-only update
// never wipes the access token.
func (r TokenRecord) merge(update TokenRecord) TokenRecord {
	if update.UserID != "" {
		r.UserID = update.UserID
	}
	if update.AccessToken != "" {
		r.AccessToken = update.AccessToken
	}
	if update.NextBatch != "" {
		r.NextBatch = update.NextBatch
	}
	return r
}

// TokenLedger accumulates token records keyed by username. Updates are
// last-write-wins per field, and applying the same update twice leaves
// the ledger unchanged, so a worker may safely replay its update
// stream after a reconnect.
type TokenLedger struct {
	mu      sync.Mutex
	records map[string]TokenRecord
}

// NewTokenLedger creates an empty ledger.
func NewTokenLedger() *TokenLedger {
	return &TokenLedger{records: make(map[string]TokenRecord)}
}

// Seed loads existing records into the ledger, typically from the
// token file of a previous run.
func (l *TokenLedger) Seed(records []TokenRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, record := range records {
		if record.Username == "" {
			continue
		}
		l.records[record.Username] = l.records[record.Username].merge(record)
	}
}

// Update applies one record. Records without a username are dropped.
func (l *TokenLedger) Update(update TokenRecord) {
	if update.Username == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	existing, ok := l.records[update.Username]
	if !ok {
		existing = TokenRecord{Username: update.Username}
	}
	l.records[update.Username] = existing.merge(update)
}

// Lookup returns the record for a username.
func (l *TokenLedger) Lookup(username string) (TokenRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[username]
	return record, ok
}

// Len returns the number of recorded identities.
func (l *TokenLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Snapshot returns all records sorted by username. The slice is a
// copy; mutating it does not affect the ledger.
func (l *TokenLedger) Snapshot() []TokenRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := make([]TokenRecord, 0, len(l.records))
	for _, record := range l.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Username < records[j].Username
	})
	return records
}
