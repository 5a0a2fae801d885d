// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

var tokenFileHeader = []string{"username", "user_id", "access_token", "next_batch"}

// LoadTokens reads a token file written by SaveTokens. A missing file
// is a cold start and returns no records and no error.
func LoadTokens(path string) ([]TokenRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("coordinator: failed to open token file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(tokenFileHeader)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("coordinator: failed to parse token file %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var records []TokenRecord
	for i, row := range rows {
		if i == 0 && row[0] == tokenFileHeader[0] {
			continue
		}
		records = append(records, TokenRecord{
			Username:    row[0],
			UserID:      row[1],
			AccessToken: row[2],
			NextBatch:   row[3],
		})
	}
	return records, nil
}

// SaveTokens writes records to path as CSV, sorted order preserved
// from the caller (the ledger snapshot is already sorted by username).
// The write goes through a temp file and rename so a crash mid-flush
// never truncates the previous run's tokens.
func SaveTokens(path string, records []TokenRecord) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("coordinator: failed to create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	writer := csv.NewWriter(tmp)
	if err := writer.Write(tokenFileHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("coordinator: failed to write token file header: %w", err)
	}
	for _, record := range records {
		row := []string{record.Username, record.UserID, record.AccessToken, record.NextBatch}
		if err := writer.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("coordinator: failed to write token row for %s: %w", record.Username, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("coordinator: failed to flush token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("coordinator: failed to close token file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("coordinator: failed to replace token file: %w", err)
	}
	return nil
}
