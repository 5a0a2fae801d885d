// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseUserID(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		id, err := ParseUserID("@alice:example.org")
		if err != nil {
			t.Fatalf("ParseUserID failed: %v", err)
		}
		if id.String() != "@alice:example.org" {
			t.Errorf("unexpected string form: %s", id)
		}
		if id.Localpart() != "alice" {
			t.Errorf("unexpected localpart: %s", id.Localpart())
		}
		if id.Server() != "example.org" {
			t.Errorf("unexpected server: %s", id.Server())
		}
	})

	t.Run("server with port", func(t *testing.T) {
		id, err := ParseUserID("@bob:localhost:8008")
		if err != nil {
			t.Fatalf("ParseUserID failed: %v", err)
		}
		// Domain derivation takes the substring after the FINAL colon.
		if id.Server() != "8008" {
			t.Errorf("unexpected server: %s", id.Server())
		}
		if id.Localpart() != "bob:localhost" {
			t.Errorf("unexpected localpart: %s", id.Localpart())
		}
	})

	t.Run("invalid", func(t *testing.T) {
		for _, raw := range []string{"", "alice", "@alice", "@:example.org", "@alice:", "!room:example.org"} {
			if _, err := ParseUserID(raw); err == nil {
				t.Errorf("expected error for %q", raw)
			}
		}
	})
}

func TestParseRoomID(t *testing.T) {
	id, err := ParseRoomID("!abc123:example.org")
	if err != nil {
		t.Fatalf("ParseRoomID failed: %v", err)
	}
	if id.Server() != "example.org" {
		t.Errorf("unexpected server: %s", id.Server())
	}
	for _, raw := range []string{"", "abc", "@alice:example.org", "!:example.org"} {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestParseEventID(t *testing.T) {
	if _, err := ParseEventID("$opaque-id-no-server"); err != nil {
		t.Fatalf("ParseEventID failed: %v", err)
	}
	for _, raw := range []string{"", "$", "opaque"} {
		if _, err := ParseEventID(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type record struct {
		User  UserID  `json:"user_id"`
		Room  RoomID  `json:"room_id,omitempty"`
		Event EventID `json:"event_id,omitempty"`
	}

	var decoded record
	raw := `{"user_id":"@alice:example.org","room_id":"!r:example.org","event_id":"$e1"}`
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.User.String() != "@alice:example.org" {
		t.Errorf("unexpected user: %s", decoded.User)
	}

	encoded, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var again record
	if err := json.Unmarshal(encoded, &again); err != nil {
		t.Fatalf("re-unmarshal failed: %v", err)
	}
	if again != decoded {
		t.Errorf("round trip mismatch: %+v != %+v", again, decoded)
	}

	// Invalid identifiers are rejected at deserialization.
	if err := json.Unmarshal([]byte(`{"user_id":"alice"}`), &decoded); err == nil {
		t.Error("expected error for invalid user ID in JSON")
	}

	// Empty strings decode to the zero value rather than erroring.
	var sparse record
	if err := json.Unmarshal([]byte(`{"user_id":"@a:b","room_id":"","event_id":""}`), &sparse); err != nil {
		t.Fatalf("unmarshal with empty fields failed: %v", err)
	}
	if !sparse.Room.IsZero() || !sparse.Event.IsZero() {
		t.Error("empty identifiers should decode to zero values")
	}
}
