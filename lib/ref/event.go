// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// EventID is a validated Matrix event ID (e.g., "$opaque"). Modern room
// versions use opaque IDs with no server part, so only the '$' sigil is
// required. The zero value is not valid; use IsZero to check.
type EventID struct {
	id string
}

// ParseEventID validates and wraps a raw Matrix event ID string.
func ParseEventID(raw string) (EventID, error) {
	if raw == "" {
		return EventID{}, fmt.Errorf("ref: empty event ID")
	}
	if raw[0] != '$' {
		return EventID{}, fmt.Errorf("ref: event ID %q must start with '$'", raw)
	}
	if len(raw) == 1 {
		return EventID{}, fmt.Errorf("ref: event ID %q has no body", raw)
	}
	return EventID{id: raw}, nil
}

// String returns the full event ID string.
func (e EventID) String() string { return e.id }

// IsZero reports whether the EventID is the zero value (uninitialized).
func (e EventID) IsZero() bool { return e.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (e EventID) MarshalText() ([]byte, error) {
	return []byte(e.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (e *EventID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*e = EventID{}
		return nil
	}
	parsed, err := ParseEventID(string(data))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// EventType is a Matrix event type string (e.g., "m.room.message").
// Event types are free-form namespaced strings; no validation beyond
// non-emptiness is useful, so this is a plain string type.
type EventType string

// String returns the event type string.
func (t EventType) String() string { return string(t) }
