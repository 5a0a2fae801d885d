// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers for the load generator.
//
// Response body reads are bounded at MaxResponseSize to prevent
// unbounded memory allocation from a misbehaving server. With
// thousands of concurrent virtual users, a single pathological
// response shape would otherwise take out the whole worker process.
package netutil

import "io"

// MaxResponseSize bounds JSON API response body reads: 64 MB. A /sync
// response for a user in thousands of busy rooms is the largest
// legitimate payload and still sits far below this.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll when reading HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}
