// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated Matrix identifier types.
//
// Each type wraps a raw string that has been checked for structural
// validity at construction: [UserID] ("@alice:example.org"), [RoomID]
// ("!abc:example.org"), and [EventID] ("$opaque"). The zero value of
// every type is invalid; use IsZero to check. All types implement
// encoding.TextMarshaler and TextUnmarshaler, so JSON deserialization
// validates identifiers automatically.
//
// Validation is structural only. The types accept any spec-shaped
// identifier; they do not enforce localpart character rules beyond
// what every homeserver requires, because a load generator must accept
// whatever identifiers the server under test hands back.
package ref
