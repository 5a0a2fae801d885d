// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/pangeachat/matrix-locust/lib/ref"
)

func mustUserID(t *testing.T, raw string) ref.UserID {
	t.Helper()
	userID, err := ref.ParseUserID(raw)
	if err != nil {
		t.Fatalf("ParseUserID(%q): %v", raw, err)
	}
	return userID
}

func mustRoomID(t *testing.T, raw string) ref.RoomID {
	t.Helper()
	roomID, err := ref.ParseRoomID(raw)
	if err != nil {
		t.Fatalf("ParseRoomID(%q): %v", raw, err)
	}
	return roomID
}

func TestSessionLogin(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/_matrix/client/v3/login" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var request map[string]any
		json.NewDecoder(r.Body).Decode(&request)
		if request["type"] != "m.login.password" {
			t.Errorf("type = %v", request["type"])
		}
		identifier, _ := request["identifier"].(map[string]any)
		if identifier["user"] != "alice" {
			t.Errorf("identifier = %v", identifier)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"user_id":      "@alice:example.org",
			"access_token": "syt_alice",
			"device_id":    "DEV1",
		})
	}))

	session := NewSession(client, nil, "alice", "secret")
	if session.LoggedIn() {
		t.Fatal("fresh session reports logged in")
	}

	auth, err := session.Login(context.Background(), LoginOptions{DeviceName: "loadtest"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if auth.AccessToken != "syt_alice" {
		t.Errorf("AccessToken = %q", auth.AccessToken)
	}
	if !session.LoggedIn() {
		t.Error("session not logged in after Login")
	}
	if session.UserID() != mustUserID(t, "@alice:example.org") {
		t.Errorf("UserID = %v", session.UserID())
	}
	if session.Domain() != "example.org" {
		t.Errorf("Domain = %q", session.Domain())
	}
}

func TestSessionLoginRejectsBothCredentials(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	session := NewSession(client, nil, "alice", "secret")

	_, err := session.Login(context.Background(), LoginOptions{Password: "pw", Token: "tok"})
	if err == nil {
		t.Fatal("expected error for password and token together")
	}
}

func TestSessionSeedCredentials(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	session := NewSession(client, nil, "alice", "secret")

	if session.SeedCredentials(ref.UserID{}, "", "") {
		t.Error("empty seed reported usable")
	}

	if !session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_seeded", "batch_7") {
		t.Fatal("full seed reported unusable")
	}
	if session.AccessToken() != "syt_seeded" {
		t.Errorf("AccessToken = %q", session.AccessToken())
	}
	if session.NextBatch() != "batch_7" {
		t.Errorf("NextBatch = %q", session.NextBatch())
	}

	// Empty fields in a later seed leave existing state untouched.
	if !session.SeedCredentials(ref.UserID{}, "", "") {
		t.Error("re-seed with blanks lost the access token")
	}
	if session.AccessToken() != "syt_seeded" || session.NextBatch() != "batch_7" {
		t.Error("blank seed fields overwrote existing state")
	}
}

// syncHandler serves /sync with a next_batch that advances on every
// call and records the since parameter it saw.
func syncHandler(batches []string, sinceSeen *[]string) http.HandlerFunc {
	call := 0
	return func(w http.ResponseWriter, r *http.Request) {
		*sinceSeen = append(*sinceSeen, r.URL.Query().Get("since"))
		batch := batches[call]
		if call < len(batches)-1 {
			call++
		}
		json.NewEncoder(w).Encode(map[string]any{"next_batch": batch})
	}
}

func TestSyncRecordsCursorOnlyWhenEmpty(t *testing.T) {
	var sinceSeen []string
	client, _ := newTestClient(t, syncHandler([]string{"s1", "s2", "s3"}, &sinceSeen))

	session := NewSession(client, nil, "alice", "secret")
	session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	// First one-shot sync latches the initial cursor.
	if _, err := session.Sync(context.Background(), SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if session.NextBatch() != "s1" {
		t.Fatalf("cursor after initial sync = %q, want s1", session.NextBatch())
	}

	// A later one-shot sync must not move the cursor: the continuous
	// loop owns advancement, and skipping it here would lose events.
	if _, err := session.Sync(context.Background(), SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if session.NextBatch() != "s1" {
		t.Errorf("one-shot sync moved the cursor to %q", session.NextBatch())
	}

	// SyncAdvance always advances.
	if _, err := session.SyncAdvance(context.Background(), SyncOptions{}); err != nil {
		t.Fatalf("SyncAdvance: %v", err)
	}
	if session.NextBatch() != "s3" {
		t.Errorf("cursor after SyncAdvance = %q, want s3", session.NextBatch())
	}

	// Every call after the first resumed from the session cursor.
	if sinceSeen[0] != "" || sinceSeen[1] != "s1" || sinceSeen[2] != "s1" {
		t.Errorf("since parameters = %v", sinceSeen)
	}
}

func TestSyncSeededCursorSurvivesOneShot(t *testing.T) {
	var sinceSeen []string
	client, _ := newTestClient(t, syncHandler([]string{"s50"}, &sinceSeen))

	session := NewSession(client, nil, "alice", "secret")
	session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "s42")

	if _, err := session.Sync(context.Background(), SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if session.NextBatch() != "s42" {
		t.Errorf("seeded cursor overwritten, now %q", session.NextBatch())
	}
	if sinceSeen[0] != "s42" {
		t.Errorf("since = %q, want seeded cursor", sinceSeen[0])
	}
}

func TestSyncRequiresLogin(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}))
	session := NewSession(client, nil, "alice", "secret")

	_, err := session.Sync(context.Background(), SyncOptions{})
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestSendEventWithTxnID(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPut {
			t.Errorf("method = %q", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{"event_id": "$ev1:example.org"})
	}))

	session := NewSession(client, nil, "alice", "secret")
	session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	roomID := mustRoomID(t, "!room:example.org")
	response, err := session.SendEventWithTxnID(context.Background(), roomID,
		"m.room.message", "txn-1", NewTextMessage("hello"))
	if err != nil {
		t.Fatalf("SendEventWithTxnID: %v", err)
	}
	if response.EventID.String() != "$ev1:example.org" {
		t.Errorf("EventID = %v", response.EventID)
	}
	if !strings.HasSuffix(gotPath, "/send/m.room.message/txn-1") {
		t.Errorf("path = %q", gotPath)
	}
}

func TestGetStateEventDecodesContent(t *testing.T) {
	var gotPath string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodGet {
			t.Errorf("method = %q", r.Method)
		}
		json.NewEncoder(w).Encode(map[string]any{"via": []string{"example.org"}})
	}))

	session := NewSession(client, nil, "alice", "secret")
	session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	var content struct {
		Via []string `json:"via"`
	}
	err := session.GetStateEvent(context.Background(),
		mustRoomID(t, "!space:example.org"), "m.space.child", "!child:example.org", &content)
	if err != nil {
		t.Fatalf("GetStateEvent: %v", err)
	}
	if gotPath != "/_matrix/client/v3/rooms/!space:example.org/state/m.space.child/!child:example.org" {
		t.Errorf("path = %q", gotPath)
	}
	if len(content.Via) != 1 || content.Via[0] != "example.org" {
		t.Errorf("via = %v", content.Via)
	}
}

func TestSendReactionShape(t *testing.T) {
	var gotContent map[string]any
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotContent)
		json.NewEncoder(w).Encode(map[string]any{"event_id": "$r1:example.org"})
	}))

	session := NewSession(client, nil, "alice", "secret")
	session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	eventID, err := ref.ParseEventID("$target:example.org")
	if err != nil {
		t.Fatalf("ParseEventID: %v", err)
	}
	if _, err := session.SendReaction(context.Background(),
		mustRoomID(t, "!room:example.org"), eventID, "👍"); err != nil {
		t.Fatalf("SendReaction: %v", err)
	}

	relates, _ := gotContent["m.relates_to"].(map[string]any)
	if relates["rel_type"] != "m.annotation" {
		t.Errorf("rel_type = %v", relates["rel_type"])
	}
	if relates["event_id"] != "$target:example.org" {
		t.Errorf("event_id = %v", relates["event_id"])
	}
	if relates["key"] != "👍" {
		t.Errorf("key = %v", relates["key"])
	}
}

func TestSessionBusDeliveries(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/login"):
			json.NewEncoder(w).Encode(map[string]any{
				"user_id": "@alice:example.org", "access_token": "syt", "device_id": "D",
			})
		case strings.HasSuffix(r.URL.Path, "/sync"):
			json.NewEncoder(w).Encode(map[string]any{"next_batch": "s1"})
		case strings.HasSuffix(r.URL.Path, "/createRoom"):
			json.NewEncoder(w).Encode(map[string]any{"room_id": "!new:example.org"})
		}
	}))

	bus := NewBus(client.Logger())
	var kinds []ResponseKind
	bus.Subscribe(func(response Response) { kinds = append(kinds, response.Kind) })

	session := NewSession(client, bus, "alice", "secret")
	ctx := context.Background()
	if _, err := session.Login(ctx, LoginOptions{}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := session.Sync(ctx, SyncOptions{}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := session.CreateRoom(ctx, CreateRoomRequest{Name: "test"}); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	want := []ResponseKind{KindLogin, KindSync, KindCreateRoom}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("kinds[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}

func TestAddChildRoomMirroredState(t *testing.T) {
	type stateWrite struct {
		path    string
		content map[string]any
	}
	var writes []stateWrite
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var content map[string]any
		json.NewDecoder(r.Body).Decode(&content)
		writes = append(writes, stateWrite{path: r.URL.Path, content: content})
		json.NewEncoder(w).Encode(map[string]any{"event_id": "$s:example.org"})
	}))

	session := NewSession(client, nil, "alice", "secret")
	session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	parent := mustRoomID(t, "!space:example.org")
	child := mustRoomID(t, "!room:example.org")
	if err := AddChildRoom(context.Background(), session, parent, child, nil); err != nil {
		t.Fatalf("AddChildRoom: %v", err)
	}

	if len(writes) != 2 {
		t.Fatalf("made %d state writes, want 2", len(writes))
	}
	if !strings.Contains(writes[0].path, "/rooms/!space:example.org/state/m.space.child/") {
		t.Errorf("first write path = %q, want m.space.child on the parent", writes[0].path)
	}
	if !strings.Contains(writes[1].path, "/rooms/!room:example.org/state/m.space.parent/") {
		t.Errorf("second write path = %q, want m.space.parent on the child", writes[1].path)
	}
	via, _ := writes[0].content["via"].([]any)
	if len(via) != 1 || via[0] != "example.org" {
		t.Errorf("via = %v, want derived server domain", via)
	}
}
