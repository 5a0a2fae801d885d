// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pangeachat/matrix-locust/coordinator"
	"github.com/pangeachat/matrix-locust/lib/clock"
	"github.com/pangeachat/matrix-locust/matrix"
)

func scenarioConfig(t *testing.T, handler http.Handler, topology coordinator.Topology, usernames ...string) ScenarioConfig {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := matrix.NewClient(matrix.ClientConfig{
		HomeserverURL: server.URL,
		HTTPClient:    server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	return ScenarioConfig{
		Driver: DriverConfig{
			Client:      client,
			Queue:       NewShardQueue(usernames),
			Ledger:      coordinator.NewTokenLedger(),
			Credentials: func(string) string { return "secret" },
			Clock:       clock.Fake(time.Unix(1700000000, 0)),
			Logger:      slog.Default(),
		},
		Topology: topology,
	}
}

func TestWithRetryExactlyThreeAttempts(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/createRoom") {
			mu.Lock()
			attempts++
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"errcode": "M_UNKNOWN", "error": "boom"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{})
	})

	config := scenarioConfig(t, handler, nil, "alice")
	user, _ := NewVirtualUser(config.Driver)
	user.session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	err := user.withRetry(context.Background(), "create room", func(ctx context.Context) error {
		_, err := user.session.CreateRoom(ctx, matrix.CreateRoomRequest{Name: "x"})
		return err
	})
	if err == nil {
		t.Fatal("expected failure after exhausting the budget")
	}
	if attempts != setupRetryBudget {
		t.Errorf("server saw %d attempts, want exactly %d", attempts, setupRetryBudget)
	}
}

func TestWithRetrySucceedsMidBudget(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{"errcode": "M_UNKNOWN", "error": "boom"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"room_id": "!new:example.org"})
	})

	config := scenarioConfig(t, handler, nil, "alice")
	user, _ := NewVirtualUser(config.Driver)
	user.session.SeedCredentials(mustUserID(t, "@alice:example.org"), "syt_alice", "")

	err := user.withRetry(context.Background(), "create room", func(ctx context.Context) error {
		_, err := user.session.CreateRoom(ctx, matrix.CreateRoomRequest{Name: "x"})
		return err
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("server saw %d attempts, want 2", attempts)
	}
}

func TestRunRegisterFatalOnUnsupportedFlow(t *testing.T) {
	var mu sync.Mutex
	identitiesSeen := make(map[string]bool)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if username, ok := body["username"].(string); ok {
			mu.Lock()
			identitiesSeen[username] = true
			mu.Unlock()
		}
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"errcode": "M_FORBIDDEN",
			"error":   "auth required",
			"flows":   []map[string]any{{"stages": []string{"m.login.sso"}}},
			"session": "sess1",
		})
	})

	config := scenarioConfig(t, handler, nil, "alice", "bob", "carol")
	err := RunRegister(context.Background(), config)
	if !errors.Is(err, matrix.ErrNoSupportedFlow) {
		t.Fatalf("err = %v, want ErrNoSupportedFlow", err)
	}

	// The systemic failure halts the drain: later identities are
	// never attempted.
	mu.Lock()
	defer mu.Unlock()
	if len(identitiesSeen) != 1 {
		t.Errorf("server saw %d identities after a fatal flow failure, want 1", len(identitiesSeen))
	}
}

func TestRunRegisterToleratesExistingUsers(t *testing.T) {
	var mu sync.Mutex
	registered := make(map[string]bool)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		username, _ := body["username"].(string)

		if username == "bob" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"errcode": "M_USER_IN_USE", "error": "taken"})
			return
		}
		if _, hasAuth := body["auth"]; !hasAuth {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"errcode": "M_FORBIDDEN", "error": "auth required",
				"flows": []map[string]any{{"stages": []string{"m.login.dummy"}}},
			})
			return
		}
		mu.Lock()
		registered[username] = true
		mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"user_id":      "@" + username + ":example.org",
			"access_token": "syt_" + username,
			"device_id":    "D",
		})
	})

	config := scenarioConfig(t, handler, nil, "alice", "bob", "carol")
	if err := RunRegister(context.Background(), config); err != nil {
		t.Fatalf("RunRegister: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !registered["alice"] || !registered["carol"] {
		t.Errorf("registered = %v, want alice and carol", registered)
	}
	if registered["bob"] {
		t.Error("bob registered despite M_USER_IN_USE")
	}
}

func TestRunCreateRoomsInvitesMembers(t *testing.T) {
	var mu sync.Mutex
	var invited []string
	created := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/login"):
			json.NewEncoder(w).Encode(map[string]any{
				"user_id": "@alice:example.org", "access_token": "syt", "device_id": "D",
			})
		case strings.HasSuffix(r.URL.Path, "/createRoom"):
			mu.Lock()
			created++
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"room_id": "!lobby:example.org"})
		case strings.HasSuffix(r.URL.Path, "/invite"):
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			invited = append(invited, body["user_id"].(string))
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	})

	topology := coordinator.Topology{"lobby": {"alice", "bob", "carol"}}
	config := scenarioConfig(t, handler, topology, "alice")
	if err := RunCreateRooms(context.Background(), config); err != nil {
		t.Fatalf("RunCreateRooms: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if created != 1 {
		t.Errorf("created %d rooms, want 1", created)
	}
	if len(invited) != 2 || invited[0] != "@bob:example.org" || invited[1] != "@carol:example.org" {
		t.Errorf("invited = %v", invited)
	}
}

func TestRunSpacesBuildsMirroredHierarchy(t *testing.T) {
	var mu sync.Mutex
	var statePaths []string
	rooms := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/login"):
			json.NewEncoder(w).Encode(map[string]any{
				"user_id": "@alice:example.org", "access_token": "syt", "device_id": "D",
			})
		case strings.HasSuffix(r.URL.Path, "/createRoom"):
			mu.Lock()
			rooms++
			n := rooms
			mu.Unlock()
			roomID := "!space:example.org"
			if n > 1 {
				roomID = "!child:example.org"
			}
			json.NewEncoder(w).Encode(map[string]any{"room_id": roomID})
		case strings.Contains(r.URL.Path, "/state/"):
			mu.Lock()
			statePaths = append(statePaths, r.URL.Path)
			mu.Unlock()
			json.NewEncoder(w).Encode(map[string]any{"event_id": "$s:example.org"})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	})

	topology := coordinator.Topology{"dev": {"alice"}}
	config := scenarioConfig(t, handler, topology, "alice")
	if err := RunSpaces(context.Background(), config); err != nil {
		t.Fatalf("RunSpaces: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if rooms != 2 {
		t.Errorf("created %d rooms, want space plus child", rooms)
	}
	if len(statePaths) != 2 {
		t.Fatalf("state writes = %v, want the mirrored pair", statePaths)
	}
	if !strings.Contains(statePaths[0], "m.space.child") || !strings.Contains(statePaths[0], "!space") {
		t.Errorf("first state write = %q", statePaths[0])
	}
	if !strings.Contains(statePaths[1], "m.space.parent") || !strings.Contains(statePaths[1], "!child") {
		t.Errorf("second state write = %q", statePaths[1])
	}
}

func TestRunChatFatalErrorSurvivesEarlierBenignFailure(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/login"):
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			identifier, _ := body["identifier"].(map[string]any)
			username, _ := identifier["user"].(string)
			if username == "aaa" {
				// A dead identity: fails fast and benignly.
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{"errcode": "M_UNKNOWN", "error": "boom"})
				return
			}
			// The other identity reaches its fatal registration failure
			// only after the benign error has already been reported.
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{"errcode": "M_FORBIDDEN", "error": "unknown user"})
		case strings.HasSuffix(r.URL.Path, "/register"):
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{
				"errcode": "M_FORBIDDEN",
				"error":   "auth required",
				"flows":   []map[string]any{{"stages": []string{"m.login.sso"}}},
				"session": "sess1",
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{})
		}
	})

	config := scenarioConfig(t, handler, nil, "aaa", "bbb")
	config.Driver.RegisterMissing = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := RunChat(ctx, config)
	if !errors.Is(err, matrix.ErrNoSupportedFlow) {
		t.Fatalf("err = %v, want ErrNoSupportedFlow despite the earlier benign failure", err)
	}
	if ctx.Err() != nil {
		t.Error("RunChat waited out the context instead of returning the fatal error")
	}
}

func TestRunScenarioUnknownName(t *testing.T) {
	config := scenarioConfig(t, http.NewServeMux(), nil, "alice")
	if err := RunScenario(context.Background(), "explode", config); err == nil {
		t.Error("expected error for unknown scenario")
	}
}
