// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"log/slog"

	"github.com/pangeachat/matrix-locust/matrix"
)

// TokenReporter bridges a worker's session buses to its coordinator
// link: every login, registration, and sync response becomes a token
// update envelope. Updates are merged last-write-wins on the other
// side, so the reporter never needs to batch or order them.
type TokenReporter struct {
	link   Messenger
	logger *slog.Logger
}

// NewTokenReporter creates a reporter sending on link.
func NewTokenReporter(link Messenger, logger *slog.Logger) *TokenReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenReporter{link: link, logger: logger}
}

// Watch subscribes the reporter to a session's bus. ctx bounds the
// send of each resulting update.
func (r *TokenReporter) Watch(ctx context.Context, bus *matrix.Bus) {
	bus.Subscribe(func(response matrix.Response) {
		r.report(ctx, response)
	}, matrix.KindLogin, matrix.KindRegister, matrix.KindSync)
}

func (r *TokenReporter) report(ctx context.Context, response matrix.Response) {
	session := response.Session
	if session == nil {
		return
	}

	record := TokenRecord{Username: session.Username()}
	switch payload := response.Payload.(type) {
	case *matrix.AuthResponse:
		record.UserID = payload.UserID.String()
		record.AccessToken = payload.AccessToken
	case *matrix.SyncResponse:
		record.UserID = session.UserID().String()
		record.NextBatch = session.NextBatch()
	default:
		return
	}

	envelope, err := Seal(EnvelopeTokenUpdate, record)
	if err != nil {
		r.logger.Warn("failed to encode token update",
			"username", record.Username,
			"error", err)
		return
	}
	if err := r.link.Send(ctx, envelope); err != nil {
		r.logger.Warn("failed to send token update",
			"username", record.Username,
			"error", err)
	}
}
