// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loadtest.yaml")
	content := `
homeserver: http://localhost:8008
workers: 4
users_file: users.csv
scenario: create-rooms
rooms_file: rooms.json
sync_timeout: 15s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("unexpected workers: %d", cfg.Workers)
	}
	if cfg.SyncTimeout != 15*time.Second {
		t.Errorf("unexpected sync timeout: %v", cfg.SyncTimeout)
	}
	// Defaults survive a partial file.
	if cfg.TokensFile != "tokens.csv" {
		t.Errorf("unexpected tokens file: %s", cfg.TokensFile)
	}
	if cfg.SlotsPerWorker != 100 {
		t.Errorf("unexpected slots per worker: %d", cfg.SlotsPerWorker)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestValidate(t *testing.T) {
	t.Run("missing required fields", func(t *testing.T) {
		cfg := Default()
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing homeserver and users_file")
		}
	})

	t.Run("unknown scenario", func(t *testing.T) {
		cfg := Default()
		cfg.Homeserver = "http://localhost:8008"
		cfg.UsersFile = "users.csv"
		cfg.Scenario = "stampede"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for unknown scenario")
		}
	})

	t.Run("create-rooms requires rooms_file", func(t *testing.T) {
		cfg := Default()
		cfg.Homeserver = "http://localhost:8008"
		cfg.UsersFile = "users.csv"
		cfg.Scenario = "create-rooms"
		if err := cfg.Validate(); err == nil {
			t.Error("expected error for missing rooms_file")
		}
	})
}
