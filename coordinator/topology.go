// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Topology describes the room layout a run should build: room name to
// its member usernames. The first member of each room is its creator.
type Topology map[string][]string

// LoadTopology reads a topology file (JSON object of room name to
// member list).
func LoadTopology(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: failed to read topology file: %w", err)
	}
	var topology Topology
	if err := json.Unmarshal(data, &topology); err != nil {
		return nil, fmt.Errorf("coordinator: failed to parse topology file %s: %w", path, err)
	}
	for room, members := range topology {
		if len(members) == 0 {
			return nil, fmt.Errorf("coordinator: room %q has no members", room)
		}
	}
	return topology, nil
}

// Creators inverts the topology into creator username to the rooms
// that user creates, each room list sorted for deterministic scenario
// order.
func (t Topology) Creators() map[string][]string {
	creators := make(map[string][]string)
	for room, members := range t {
		creators[members[0]] = append(creators[members[0]], room)
	}
	for _, rooms := range creators {
		sort.Strings(rooms)
	}
	return creators
}

// Memberships inverts the topology into username to the rooms that
// user should end up joined to, creators included, sorted.
func (t Topology) Memberships() map[string][]string {
	memberships := make(map[string][]string)
	for room, members := range t {
		for _, member := range members {
			memberships[member] = append(memberships[member], room)
		}
	}
	for _, rooms := range memberships {
		sort.Strings(rooms)
	}
	return memberships
}

// Invitees returns the members of a room excluding its creator, in
// file order.
func (t Topology) Invitees(room string) []string {
	members := t[room]
	if len(members) <= 1 {
		return nil
	}
	return members[1:]
}
