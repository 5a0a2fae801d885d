// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"context"
	"math/rand"
	"time"

	"github.com/pangeachat/matrix-locust/lib/ref"
	"github.com/pangeachat/matrix-locust/matrix"
)

// Pacing distributions. Exponential inter-arrival times make the
// aggregate request stream Poisson-like instead of lockstepped.
const (
	meanThinkTime   = 10 * time.Second
	meanTypingDelay = 5 * time.Second
	meanIdleTime    = 10 * time.Minute

	syncLongPollTimeout = 30 * time.Second
	typingTimeoutMS     = 30000
	paginationLimit     = 20
)

func sampleExp(rng *rand.Rand, mean time.Duration) time.Duration {
	return time.Duration(rng.ExpFloat64() * float64(mean))
}

// actionFunc is one foreground behavior. Errors are logged by the
// driver, never fatal: a failed gesture is itself realistic traffic.
type actionFunc func(ctx context.Context, u *VirtualUser) error

// weightedAction pairs a behavior with its selection weight.
type weightedAction struct {
	name   string
	weight int
	run    actionFunc
}

// actionTable is the foreground behavior mix. The heavy do-nothing
// weight keeps most users lurking at any instant, which is what a
// population of real clients looks like to the server.
var actionTable = []weightedAction{
	{name: "do_nothing", weight: 11, run: actionDoNothing},
	{name: "send_text", weight: 1, run: actionSendText},
	{name: "look_at_room", weight: 4, run: actionLookAtRoom},
	{name: "paginate_room", weight: 1, run: actionPaginateRoom},
	{name: "go_idle", weight: 1, run: actionGoIdle},
	{name: "change_displayname", weight: 1, run: actionChangeDisplayname},
	{name: "chat_burst", weight: 3, run: actionChatBurst},
}

// pickAction samples the table by weight.
func pickAction(rng *rand.Rand, table []weightedAction) weightedAction {
	total := 0
	for _, action := range table {
		total += action.weight
	}
	roll := rng.Intn(total)
	for _, action := range table {
		roll -= action.weight
		if roll < 0 {
			return action
		}
	}
	return table[len(table)-1]
}

func actionDoNothing(ctx context.Context, u *VirtualUser) error {
	return nil
}

// actionSendText types for a moment, then sends one message.
func actionSendText(ctx context.Context, u *VirtualUser) error {
	roomID, ok := u.pickRoom()
	if !ok {
		return nil
	}

	if err := u.session.Typing(ctx, roomID, true, typingTimeoutMS); err != nil {
		u.logger.Debug("typing notification failed", "room", roomID, "error", err)
	}
	if err := u.sleep(ctx, sampleExp(u.rng, meanTypingDelay)); err != nil {
		return err
	}

	_, err := u.session.SendMessage(ctx, roomID, matrix.NewTextMessage(messageBody(u.rng)))
	return err
}

// actionLookAtRoom opens a room: backfills avatars and display names
// for the senders of recent messages, the way a client rendering the
// timeline would, then marks the newest message as read.
func actionLookAtRoom(ctx context.Context, u *VirtualUser) error {
	message, ok := u.window.Latest()
	if !ok {
		return nil
	}
	u.backfillProfiles(ctx, message.RoomID)
	return u.session.SendReadReceipt(ctx, message.RoomID, message.EventID)
}

// backfillProfiles fetches avatar URL and display name for every
// uncached sender with a recent message in the room. Each sender is
// fetched once per virtual user; failures are best effort, like a
// client showing a blank avatar.
func (u *VirtualUser) backfillProfiles(ctx context.Context, roomID ref.RoomID) {
	self := u.session.UserID()
	for _, message := range u.window.Recent() {
		if message.RoomID != roomID || message.Sender == self {
			continue
		}
		u.mu.Lock()
		seen := u.profiles[message.Sender]
		u.profiles[message.Sender] = true
		u.mu.Unlock()
		if seen {
			continue
		}
		if _, err := u.session.UserAvatarURL(ctx, message.Sender); err != nil {
			u.logger.Debug("avatar backfill failed", "user", message.Sender, "error", err)
		}
		if _, err := u.session.UserDisplayName(ctx, message.Sender); err != nil {
			u.logger.Debug("displayname backfill failed", "user", message.Sender, "error", err)
		}
	}
}

// actionPaginateRoom scrolls back through a room's history. The scroll
// resumes from the earliest token the user has seen for the room,
// falling back to the initial sync cursor, and each page's end token
// is stored so the next paginate action continues further back instead
// of re-reading the same history.
func actionPaginateRoom(ctx context.Context, u *VirtualUser) error {
	roomID, ok := u.pickRoom()
	if !ok {
		return nil
	}
	from := u.prevBatch(roomID)
	if from == "" {
		from = u.session.NextBatch()
	}
	if from == "" {
		return nil
	}

	pages := 1 + u.rng.Intn(3)
	for page := 0; page < pages; page++ {
		response, err := u.session.RoomMessages(ctx, roomID, matrix.RoomMessagesOptions{
			From:      from,
			Direction: "b",
			Limit:     paginationLimit,
		})
		if err != nil {
			return err
		}
		if response.End == "" || len(response.Chunk) == 0 {
			break
		}
		from = response.End
		u.setPrevBatch(roomID, from)
		if err := u.sleep(ctx, sampleExp(u.rng, meanTypingDelay)); err != nil {
			return err
		}
	}
	return nil
}

// actionGoIdle takes the user away from the keyboard for a long
// stretch. The background sync loop keeps polling, so the server still
// holds the long-poll connection for an idle user.
func actionGoIdle(ctx context.Context, u *VirtualUser) error {
	return u.sleep(ctx, sampleExp(u.rng, meanIdleTime))
}

func actionChangeDisplayname(ctx context.Context, u *VirtualUser) error {
	name := u.session.Username() + " " + loremWords[u.rng.Intn(len(loremWords))]
	return u.session.SetDisplayName(ctx, name)
}

// pickRoom selects a random joined room.
func (u *VirtualUser) pickRoom() (ref.RoomID, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.rooms) == 0 {
		return ref.RoomID{}, false
	}
	return u.rooms[u.rng.Intn(len(u.rooms))], true
}

// prevBatch returns the earliest-seen pagination token for a room.
func (u *VirtualUser) prevBatch(roomID ref.RoomID) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.prevBatches[roomID]
}

// setPrevBatch records how far back the user has paginated a room.
func (u *VirtualUser) setPrevBatch(roomID ref.RoomID, token string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prevBatches[roomID] = token
}
