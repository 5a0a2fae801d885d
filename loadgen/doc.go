// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package loadgen drives simulated users against a homeserver. Each
// virtual user draws one identity from its worker's shard queue,
// establishes a session (seeded from the token ledger when warm,
// logging in or registering when cold), then runs two loops: a
// background long-poll sync loop that advances the cursor and feeds
// recent messages into a bounded window, and a foreground action loop
// that samples weighted behaviors with humanlike pacing.
//
// Action weights, pacing distributions, and the chat burst sub-mode
// mirror observed client behavior: mostly lurking, occasional reads
// and paginations, rare profile churn, and bursts of conversation
// where reactions and images punctuate a run of text messages.
//
// Setup scenarios (register, create-rooms, accept-invites, spaces)
// build the account and room population a traffic run needs. Setup
// writes retry up to three times; the operations are idempotent on
// the server side (registration of an existing user fails cleanly,
// joins and state puts converge), so a retry never double-creates.
package loadgen
