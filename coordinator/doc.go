// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator distributes identities across load workers and
// keeps the durable token ledger that lets a run resume without
// re-registering every account.
//
// Identity distribution is a static partition: ComputeShards splits
// the sorted username list so every worker but the last receives the
// same floor share and the last absorbs the remainder. The split is a
// pure function of the inputs, so every worker computes the same
// partition without negotiation.
//
// The token ledger records the user ID, access token, and sync cursor
// for each identity that has logged in or registered. Updates are
// last-write-wins per username and replay-idempotent, so replaying a
// worker's update stream after a reconnect converges to the same
// ledger. At shutdown the ledger is flushed to a CSV file sorted by
// username; on the next run the file seeds sessions so warm identities
// skip registration.
//
// Workers and the coordinator exchange CBOR envelopes over a
// [Messenger]. A worker that hits [matrix.ErrNoSupportedFlow] during
// registration reports a fatal stop: the server cannot onboard any
// identity, so the coordinator halts the whole run instead of letting
// every worker fail identity by identity.
package coordinator
