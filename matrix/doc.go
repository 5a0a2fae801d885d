// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package matrix wraps the subset of the Matrix client-server API that
// the load generator exercises: login, registration with interactive
// auth, incremental sync with long-polling, room create/join/invite,
// state events, message and reaction sends, pagination, typing
// notifications, read receipts, profile get/set, and room tags.
//
// The package provides two core types. [Client] holds the homeserver
// URL and HTTP transport, shared across all sessions; it is stateless
// per call. [Session] is the mutable per-identity protocol state
// (user ID, access token, device ID, sync cursor, derived server
// domain) with one method per logical operation. Every operation is a
// thin mapping from typed arguments to one HTTP call; none retry
// internally. Retry policy belongs to the behavior driver, which knows
// which writes are idempotent.
//
// After every successful operation the session's [Bus] delivers the
// response to registered observers, filtered by [ResponseKind], in
// registration order and synchronously, before the operation returns.
// The coordinator's token persistence rides on this bus.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, ...) and HTTP status
// code; [IsMatrixError] tests for a specific code. Interactive-auth
// negotiation that finds no usable flow returns [ErrNoSupportedFlow],
// which the coordinator treats as fatal to the whole run: a server
// that cannot onboard one identity cannot onboard any.
//
// Request URLs are built by string concatenation rather than url.URL
// to avoid double-encoding of path segments. Any legacy r0 API prefix
// constructed internally is rewritten to the current v3 prefix before
// the request is sent, and observability labels are derived from the
// templated path (identifiers collapsed, query stripped) so that
// aggregate statistics group by endpoint rather than by room.
package matrix
