// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/csv"
	"fmt"
	"os"
)

// UserCredential is one identity from the users file.
type UserCredential struct {
	Username string
	Password string
}

// LoadUsers reads the identity population from a CSV of
// username,password rows. A header row is skipped when present. Rows
// with an empty username are rejected: a blank identity would silently
// shrink every shard computed from the file.
func LoadUsers(path string) ([]UserCredential, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: failed to open users file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 2

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("coordinator: failed to parse users file %s: %w", path, err)
	}

	var users []UserCredential
	for i, row := range rows {
		if i == 0 && row[0] == "username" {
			continue
		}
		if row[0] == "" {
			return nil, fmt.Errorf("coordinator: users file %s row %d has an empty username", path, i+1)
		}
		users = append(users, UserCredential{Username: row[0], Password: row[1]})
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("coordinator: users file %s contains no identities", path)
	}
	return users, nil
}

// Usernames projects the username column, in file order.
func Usernames(users []UserCredential) []string {
	usernames := make([]string, len(users))
	for i, user := range users {
		usernames[i] = user.Username
	}
	return usernames
}

// PasswordLookup builds a Credentials-style lookup from the loaded
// users. Unknown usernames resolve to the empty password.
func PasswordLookup(users []UserCredential) func(username string) string {
	passwords := make(map[string]string, len(users))
	for _, user := range users {
		passwords[user.Username] = user.Password
	}
	return func(username string) string {
		return passwords[username]
	}
}
