// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"context"
	"errors"
	"time"

	"github.com/pangeachat/matrix-locust/lib/ref"
	"github.com/pangeachat/matrix-locust/matrix"
)

// syncErrorBackoff paces retries when the sync endpoint is failing, so
// a struggling server is not hammered by tight error loops from every
// virtual user at once.
const syncErrorBackoff = 5 * time.Second

// runSyncLoop long-polls /sync until ctx is done. Every successful
// poll advances the session cursor; timeline messages land in the
// window and joined-room membership updates the user's room list.
// Auto-join of invites keeps topology scenarios flowing without a
// human accepting each invite.
func (u *VirtualUser) runSyncLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		timeout := u.config.SyncTimeout
		if timeout <= 0 {
			timeout = syncLongPollTimeout
		}
		response, err := u.session.SyncAdvance(ctx, matrix.SyncOptions{
			Timeout:    int(timeout / time.Millisecond),
			SetTimeout: true,
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, matrix.ErrNotLoggedIn) {
				return
			}
			u.logger.Warn("sync failed", "username", u.session.Username(), "error", err)
			if err := u.sleep(ctx, syncErrorBackoff); err != nil {
				return
			}
			continue
		}

		u.absorbSync(ctx, response)
	}
}

// absorbSync folds one sync response into the user's local state.
func (u *VirtualUser) absorbSync(ctx context.Context, response *matrix.SyncResponse) {
	for roomID, room := range response.Rooms.Join {
		u.trackRoom(roomID, room.Timeline.PrevBatch)
		for _, event := range room.Timeline.Events {
			if event.Type != "m.room.message" {
				continue
			}
			if event.Sender == u.session.UserID() {
				continue
			}
			body, _ := event.Content["body"].(string)
			u.window.Add(SeenMessage{
				RoomID:  roomID,
				EventID: event.EventID,
				Sender:  event.Sender,
				Body:    body,
			})
		}
	}

	for roomID := range response.Rooms.Invite {
		if _, err := u.session.Join(ctx, roomID.String()); err != nil {
			u.logger.Warn("failed to accept invite",
				"username", u.session.Username(),
				"room", roomID,
				"error", err)
		}
	}
}

// trackRoom records a joined room. The pagination token is stored only
// the first time the room appears: after that the token tracks how far
// back the user has paginated, and a later sync's fresher prev_batch
// must not pull the scroll position forward again.
func (u *VirtualUser) trackRoom(roomID ref.RoomID, prevBatch string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, known := u.prevBatches[roomID]; known {
		return
	}
	u.rooms = append(u.rooms, roomID)
	u.prevBatches[roomID] = prevBatch
}
