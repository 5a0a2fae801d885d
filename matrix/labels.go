// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package matrix

import "strings"

// API path prefixes. The client builds every path against the current
// versioned prefix; rewriteAPIPath catches any legacy r0 path that
// slips through helper code so nothing unversioned reaches the wire.
const (
	clientAPIPrefix       = "/_matrix/client/v3"
	mediaAPIPrefix        = "/_matrix/media/v3"
	legacyClientAPIPrefix = "/_matrix/client/r0"
	legacyMediaAPIPrefix  = "/_matrix/media/r0"
)

// rewriteAPIPath rewrites legacy r0 path prefixes to the current v3
// prefixes. Paths already on v3 (or outside the known prefixes) pass
// through unchanged.
func rewriteAPIPath(path string) string {
	if strings.HasPrefix(path, legacyClientAPIPrefix) {
		return clientAPIPrefix + path[len(legacyClientAPIPrefix):]
	}
	if strings.HasPrefix(path, legacyMediaAPIPrefix) {
		return mediaAPIPrefix + path[len(legacyMediaAPIPrefix):]
	}
	return path
}

// EndpointLabel collapses a request path into a low-cardinality
// observability label: the query string is stripped and identifier
// segments (room IDs, user IDs, event IDs, transaction IDs, state
// keys) are replaced with "_". Event types are kept because they are
// part of the endpoint's identity, not per-instance data. For example,
// a message send labels as
//
//	/_matrix/client/v3/rooms/_/send/m.room.message/_
//
// The full path with real identifiers is still sent over the wire;
// only statistics grouping uses this form.
func EndpointLabel(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if isIdentifierSegment(segment) {
			segments[i] = "_"
			continue
		}
		// Positional identifiers that carry no sigil: transaction IDs
		// and state keys sit two segments after "send"/"state", read
		// receipts put the event ID two after "receipt", and typing
		// targets the user one after "typing".
		if i >= 2 && (segments[i-2] == "send" || segments[i-2] == "state" || segments[i-2] == "receipt") {
			segments[i] = "_"
			continue
		}
		if i >= 1 && segments[i-1] == "typing" {
			segments[i] = "_"
		}
	}
	return strings.Join(segments, "/")
}

// isIdentifierSegment reports whether a path segment is a Matrix
// identifier (room, user, event, or alias), in raw or percent-encoded
// form.
func isIdentifierSegment(segment string) bool {
	switch {
	case strings.HasPrefix(segment, "!"), strings.HasPrefix(segment, "@"),
		strings.HasPrefix(segment, "$"), strings.HasPrefix(segment, "#"):
		return true
	case strings.HasPrefix(segment, "%21"), strings.HasPrefix(segment, "%40"),
		strings.HasPrefix(segment, "%24"), strings.HasPrefix(segment, "%23"):
		return true
	}
	return false
}
