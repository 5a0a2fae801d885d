// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// UserID is a validated Matrix user ID (e.g., "@alice:example.org").
//
// A Matrix user ID always starts with '@' and contains a ':' separating
// the localpart from the server name. UserID is an immutable value
// type. The zero value is not valid; use IsZero to check.
type UserID struct {
	id string
}

// ParseUserID validates and wraps a raw Matrix user ID string. Returns
// an error if the string is empty, doesn't start with '@', has an empty
// localpart, or is missing the ':server' suffix.
func ParseUserID(raw string) (UserID, error) {
	if err := validateSigil(raw, '@', "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// String returns the full user ID string.
func (u UserID) String() string { return u.id }

// IsZero reports whether the UserID is the zero value (uninitialized).
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the localpart of the user ID, without the '@'
// prefix or ':server' suffix. Panics on a zero-value UserID.
func (u UserID) Localpart() string {
	if u.id == "" {
		panic("UserID.Localpart called on zero value")
	}
	body := u.id[1:]
	return body[:strings.LastIndex(body, ":")]
}

// Server returns the server name of the user ID, the portion after the
// final ':'. This is the "domain" a session derives on login. Panics
// on a zero-value UserID.
func (u UserID) Server() string {
	if u.id == "" {
		panic("UserID.Server called on zero value")
	}
	return u.id[strings.LastIndex(u.id, ":")+1:]
}

// MarshalText implements encoding.TextMarshaler.
func (u UserID) MarshalText() ([]byte, error) {
	return []byte(u.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Validates the user
// ID format. An empty input produces the zero value (unset user ID).
func (u *UserID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*u = UserID{}
		return nil
	}
	parsed, err := ParseUserID(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// validateSigil checks the shared structural shape of sigil-prefixed
// Matrix identifiers: "<sigil>localpart:server" with both parts
// non-empty.
func validateSigil(raw string, sigil byte, kind string) error {
	if raw == "" {
		return fmt.Errorf("ref: empty %s", kind)
	}
	if raw[0] != sigil {
		return fmt.Errorf("ref: %s %q must start with %q", kind, raw, string(sigil))
	}
	body := raw[1:]
	sep := strings.LastIndex(body, ":")
	if sep < 0 {
		return fmt.Errorf("ref: %s %q is missing the ':server' suffix", kind, raw)
	}
	if sep == 0 {
		return fmt.Errorf("ref: %s %q has an empty localpart", kind, raw)
	}
	if sep == len(body)-1 {
		return fmt.Errorf("ref: %s %q has an empty server name", kind, raw)
	}
	return nil
}
