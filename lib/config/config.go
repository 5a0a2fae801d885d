// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the load generator.
//
// Configuration is loaded from a single YAML file passed via the
// --config flag. There are no fallbacks or automatic discovery: a load
// test run must be deterministic and auditable, so the file is the
// single source of truth and environment variables never override it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a load test run.
type Config struct {
	// Homeserver is the base URL of the Matrix homeserver under test
	// (e.g., "http://localhost:8008").
	Homeserver string `yaml:"homeserver"`

	// Workers is the number of in-process worker roles the identity
	// list is sharded across.
	Workers int `yaml:"workers"`

	// SlotsPerWorker is the number of virtual-user slots each worker
	// runs concurrently. Each slot drains identities from the worker's
	// shard until the shard is exhausted, then parks.
	SlotsPerWorker int `yaml:"slots_per_worker"`

	// UsersFile is the CSV of identities (username,password columns).
	UsersFile string `yaml:"users_file"`

	// TokensFile is the durable token ledger CSV. Read at start when
	// present (absence means cold start), fully rewritten at stop.
	TokensFile string `yaml:"tokens_file"`

	// RoomsFile is the room topology JSON for the room-creation
	// scenario: room display name -> ordered member usernames, first
	// member creates, the rest are invited. Optional.
	RoomsFile string `yaml:"rooms_file"`

	// Scenario selects the behavior driver: "chat", "register",
	// "create-rooms", "accept-invites", or "spaces".
	Scenario string `yaml:"scenario"`

	// RegistrationToken is submitted during the
	// m.login.registration_token UIA stage when the server demands it.
	RegistrationToken string `yaml:"registration_token"`

	// SyncTimeout is the server-side long-poll hold for the background
	// sync loop.
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the default configuration. The defaults exist so
// every field has a sensible zero value; Homeserver and UsersFile are
// still required.
func Default() *Config {
	return &Config{
		Workers:        1,
		SlotsPerWorker: 100,
		TokensFile:     "tokens.csv",
		Scenario:       "chat",
		SyncTimeout:    30 * time.Second,
	}
}

// LoadFile loads configuration from a YAML file, merging over Default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Homeserver == "" {
		errs = append(errs, fmt.Errorf("homeserver is required"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.SlotsPerWorker < 1 {
		errs = append(errs, fmt.Errorf("slots_per_worker must be at least 1, got %d", c.SlotsPerWorker))
	}
	if c.UsersFile == "" {
		errs = append(errs, fmt.Errorf("users_file is required"))
	}
	if c.TokensFile == "" {
		errs = append(errs, fmt.Errorf("tokens_file is required"))
	}
	switch c.Scenario {
	case "chat", "register", "create-rooms", "accept-invites", "spaces":
	default:
		errs = append(errs, fmt.Errorf("unknown scenario %q", c.Scenario))
	}
	if c.Scenario == "create-rooms" && c.RoomsFile == "" {
		errs = append(errs, fmt.Errorf("rooms_file is required for the create-rooms scenario"))
	}
	if c.SyncTimeout < 0 {
		errs = append(errs, fmt.Errorf("sync_timeout must not be negative"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
