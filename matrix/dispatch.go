// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"log/slog"
	"sync"
)

// ResponseKind identifies which operation produced a response
// delivered on the Bus.
type ResponseKind int

const (
	// KindLogin is delivered after a successful Login.
	KindLogin ResponseKind = iota + 1
	// KindRegister is delivered after a successful Register.
	KindRegister
	// KindSync is delivered after every successful Sync or SyncAdvance.
	KindSync
	// KindCreateRoom is delivered after a successful CreateRoom.
	KindCreateRoom
	// KindJoin is delivered after a successful Join.
	KindJoin
	// KindSendEvent is delivered after a successful SendEvent,
	// SendMessage, SendReaction, or PutState.
	KindSendEvent
)

// Response is one operation result delivered to bus observers.
type Response struct {
	// Kind identifies the producing operation.
	Kind ResponseKind
	// Session is the session that performed the operation.
	Session *Session
	// Payload is the decoded response body: *AuthResponse for
	// KindLogin/KindRegister, *SyncResponse for KindSync,
	// *CreateRoomResponse for KindCreateRoom, *JoinResponse for
	// KindJoin, *SendEventResponse for KindSendEvent.
	Payload any
}

// Observer receives responses from a Bus.
type Observer func(Response)

type busEntry struct {
	kinds    map[ResponseKind]bool // nil means all kinds
	observer Observer
}

// Bus delivers successful operation responses to registered observers.
// Observers run synchronously, in registration order, before the
// operation that produced the response returns. A panicking observer
// is recovered and logged; remaining observers still run.
type Bus struct {
	mu      sync.Mutex
	entries []busEntry
	logger  *slog.Logger
}

// NewBus creates an empty Bus. If logger is nil, slog.Default() is
// used for observer panic reports.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers an observer for the given response kinds. With
// no kinds the observer receives every response.
func (b *Bus) Subscribe(observer Observer, kinds ...ResponseKind) {
	entry := busEntry{observer: observer}
	if len(kinds) > 0 {
		entry.kinds = make(map[ResponseKind]bool, len(kinds))
		for _, kind := range kinds {
			entry.kinds[kind] = true
		}
	}
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()
}

// publish delivers a response to all matching observers.
func (b *Bus) publish(response Response) {
	b.mu.Lock()
	entries := make([]busEntry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	for _, entry := range entries {
		if entry.kinds != nil && !entry.kinds[response.Kind] {
			continue
		}
		b.deliver(entry.observer, response)
	}
}

func (b *Bus) deliver(observer Observer, response Response) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("response observer panicked",
				"kind", int(response.Kind),
				"panic", r)
		}
	}()
	observer(response)
}
