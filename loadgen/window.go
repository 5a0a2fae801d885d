// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"math/rand"
	"sync"

	"github.com/pangeachat/matrix-locust/lib/ref"
)

// windowCap bounds the recent-message window. Ten is enough to react
// to without the window growing with run length.
const windowCap = 10

// SeenMessage is one timeline message a virtual user has observed
// through its sync loop.
type SeenMessage struct {
	RoomID  ref.RoomID
	EventID ref.EventID
	Sender  ref.UserID
	Body    string
}

// MessageWindow keeps the last few messages seen across all of a
// user's rooms. The sync loop appends; the action loop samples targets
// for reactions and read receipts.
type MessageWindow struct {
	mu       sync.Mutex
	messages []SeenMessage
}

// NewMessageWindow creates an empty window.
func NewMessageWindow() *MessageWindow {
	return &MessageWindow{}
}

// Add appends a message, evicting the oldest when the window is full.
func (w *MessageWindow) Add(message SeenMessage) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.messages = append(w.messages, message)
	if len(w.messages) > windowCap {
		w.messages = w.messages[len(w.messages)-windowCap:]
	}
}

// Len returns the number of messages currently held.
func (w *MessageWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

// Recent returns a copy of the window, oldest first.
func (w *MessageWindow) Recent() []SeenMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	recent := make([]SeenMessage, len(w.messages))
	copy(recent, w.messages)
	return recent
}

// Pick returns a uniformly random held message. ok is false when the
// window is empty.
func (w *MessageWindow) Pick(rng *rand.Rand) (SeenMessage, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) == 0 {
		return SeenMessage{}, false
	}
	return w.messages[rng.Intn(len(w.messages))], true
}

// Latest returns the newest held message.
func (w *MessageWindow) Latest() (SeenMessage, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.messages) == 0 {
		return SeenMessage{}, false
	}
	return w.messages[len(w.messages)-1], true
}
