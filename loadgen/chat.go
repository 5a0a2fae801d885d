// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"context"
	"math"
	"math/rand"

	"github.com/pangeachat/matrix-locust/lib/ref"
	"github.com/pangeachat/matrix-locust/matrix"
)

// chatAction is one step inside a burst.
type chatAction int

const (
	chatSendText chatAction = iota
	chatSendImage
	chatSendReaction
	chatStop
)

// Weight pools for the burst sub-modes. Drawing a weight from a pool
// (rather than fixing it) makes individual bursts differ in character:
// some users fire off reactions, some never touch them.
var (
	chatImageWeights    = []int{0, 0, 0, 1, 1, 2}
	chatReactionWeights = []int{0, 0, 1, 1, 1, 2, 3}
)

// chatWeights is one burst's sampled behavior mix.
type chatWeights struct {
	text     int
	image    int
	reaction int
	stop     int
}

// sampleChatWeights draws a fresh mix for one burst. Text dominates
// (gaussian around 15); stop is always reachable so every burst
// terminates.
func sampleChatWeights(rng *rand.Rand) chatWeights {
	text := int(math.Round(rng.NormFloat64()*4 + 15))
	if text < 1 {
		text = 1
	}
	return chatWeights{
		text:     text,
		image:    chatImageWeights[rng.Intn(len(chatImageWeights))],
		reaction: chatReactionWeights[rng.Intn(len(chatReactionWeights))],
		stop:     1,
	}
}

// pick samples one step from the mix.
func (w chatWeights) pick(rng *rand.Rand) chatAction {
	roll := rng.Intn(w.text + w.image + w.reaction + w.stop)
	switch {
	case roll < w.text:
		return chatSendText
	case roll < w.text+w.image:
		return chatSendImage
	case roll < w.text+w.image+w.reaction:
		return chatSendReaction
	}
	return chatStop
}

var reactionEmoji = []string{"👍", "❤️", "😂", "🎉", "😮", "😢", "🔥", "💯"}

// reactionKey identifies one (message, emoji) pair for burst-local
// deduplication.
type reactionKey struct {
	eventID ref.EventID
	emoji   string
}

// actionChatBurst holds a conversation: a run of messages in one room
// with images and reactions mixed in, paced by typing delays, until
// the sampled stop step ends the burst. Reactions are deduplicated
// within the burst so one user never reacts twice with the same emoji
// to the same message, which servers reject as duplicate annotations.
func actionChatBurst(ctx context.Context, u *VirtualUser) error {
	roomID, ok := u.pickRoom()
	if !ok {
		return nil
	}

	weights := sampleChatWeights(u.rng)
	reacted := make(map[reactionKey]bool)

	for {
		if err := u.sleep(ctx, sampleExp(u.rng, meanTypingDelay)); err != nil {
			return err
		}

		switch weights.pick(u.rng) {
		case chatSendText:
			if err := u.session.Typing(ctx, roomID, true, typingTimeoutMS); err != nil {
				u.logger.Debug("typing notification failed", "room", roomID, "error", err)
			}
			if _, err := u.session.SendMessage(ctx, roomID, matrix.NewTextMessage(messageBody(u.rng))); err != nil {
				return err
			}

		case chatSendImage:
			// Placeholder. Image traffic needs a media pool uploaded
			// before the run starts; the step still consumes its share
			// of the burst so the sampled mix keeps its shape.

		case chatSendReaction:
			message, ok := u.window.Pick(u.rng)
			if !ok {
				continue
			}
			key := reactionKey{eventID: message.EventID, emoji: reactionEmoji[u.rng.Intn(len(reactionEmoji))]}
			if reacted[key] {
				continue
			}
			reacted[key] = true
			if _, err := u.session.SendReaction(ctx, message.RoomID, key.eventID, key.emoji); err != nil {
				return err
			}

		case chatStop:
			return nil
		}
	}
}
