// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"context"
	"fmt"
	"time"

	"github.com/pangeachat/matrix-locust/coordinator"
	"github.com/pangeachat/matrix-locust/lib/ref"
	"github.com/pangeachat/matrix-locust/matrix"
)

// matrixUserID qualifies a bare localpart against the run's server
// domain. Already-qualified names pass through.
func matrixUserID(name, domain string) (ref.UserID, error) {
	if len(name) > 0 && name[0] == '@' {
		return ref.ParseUserID(name)
	}
	return ref.ParseUserID("@" + name + ":" + domain)
}

// setupRetryBudget bounds attempts for setup writes. Room creation,
// joins, and state puts are idempotent or fail cleanly on conflict, so
// a retry never double-creates; three attempts rides out transient
// errors without stalling a large setup run on a dead room.
const (
	setupRetryBudget = 3
	setupRetryDelay  = 2 * time.Second
)

// Scenario names accepted by the runner.
const (
	ScenarioChat          = "chat"
	ScenarioRegister      = "register"
	ScenarioCreateRooms   = "create-rooms"
	ScenarioAcceptInvites = "accept-invites"
	ScenarioSpaces        = "spaces"
)

// ScenarioConfig carries everything a setup scenario needs for one
// worker's shard.
type ScenarioConfig struct {
	Driver   DriverConfig
	Topology coordinator.Topology
	// Slots is how many virtual users the chat scenario runs. Zero
	// means one per shard identity. Slots beyond the shard size park.
	Slots int
}

// withRetry runs op up to setupRetryBudget times, logging each failed
// attempt.
func (u *VirtualUser) withRetry(ctx context.Context, what string, op func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= setupRetryBudget; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		u.logger.Warn("setup operation failed",
			"operation", what,
			"attempt", attempt,
			"error", err)
		if attempt < setupRetryBudget {
			if sleepErr := u.sleep(ctx, setupRetryDelay); sleepErr != nil {
				return err
			}
		}
	}
	return fmt.Errorf("loadgen: %s failed after %d attempts: %w", what, setupRetryBudget, err)
}

// forEachIdentity drains the shard queue, building a virtual user per
// identity and applying fn. A fatal error (no usable registration
// flow) aborts the drain; other per-identity errors are logged and the
// drain continues.
func forEachIdentity(ctx context.Context, config ScenarioConfig, fn func(context.Context, *VirtualUser) error) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		user, ok := NewVirtualUser(config.Driver)
		if !ok {
			return nil
		}
		if config.Driver.Reporter != nil {
			config.Driver.Reporter.Watch(ctx, user.session.Bus())
		}

		if err := fn(ctx, user); err != nil {
			if coordinator.ClassifyWorkerError(err) {
				return err
			}
			user.logger.Warn("scenario step failed for identity", "error", err)
		}
	}
}

// RunRegister registers every identity in the shard. An identity the
// server already knows is fine (the token ledger will cover it); a
// registration negotiation with no usable flow aborts the whole drain,
// since no later identity can fare better.
func RunRegister(ctx context.Context, config ScenarioConfig) error {
	return forEachIdentity(ctx, config, func(ctx context.Context, user *VirtualUser) error {
		_, err := user.session.Register(ctx, matrix.RegisterOptions{
			DeviceName:        config.Driver.DeviceName,
			RegistrationToken: config.Driver.RegistrationToken,
		})
		if matrix.IsMatrixError(err, matrix.ErrCodeUserInUse) {
			user.logger.Debug("identity already registered")
			return nil
		}
		return err
	})
}

// RunCreateRooms creates each identity's rooms from the topology and
// invites the other members.
func RunCreateRooms(ctx context.Context, config ScenarioConfig) error {
	creators := config.Topology.Creators()
	return forEachIdentity(ctx, config, func(ctx context.Context, user *VirtualUser) error {
		rooms := creators[user.session.Username()]
		if len(rooms) == 0 {
			return nil
		}
		if err := user.establish(ctx); err != nil {
			return err
		}

		for _, roomName := range rooms {
			if err := user.createAndPopulate(ctx, roomName, config.Topology); err != nil {
				return err
			}
		}
		return nil
	})
}

// createAndPopulate creates one room and invites its members.
func (u *VirtualUser) createAndPopulate(ctx context.Context, roomName string, topology coordinator.Topology) error {
	var created *matrix.CreateRoomResponse
	err := u.withRetry(ctx, "create room "+roomName, func(ctx context.Context) error {
		response, err := u.session.CreateRoom(ctx, matrix.CreateRoomRequest{
			Name:   roomName,
			Preset: "private_chat",
		})
		if err != nil {
			return err
		}
		created = response
		return nil
	})
	if err != nil {
		return err
	}
	u.logger.Info("created room", "name", roomName, "room", created.RoomID)

	domain := u.session.Domain()
	for _, invitee := range topology.Invitees(roomName) {
		target, parseErr := matrixUserID(invitee, domain)
		if parseErr != nil {
			u.logger.Warn("skipping invitee with unusable name", "invitee", invitee, "error", parseErr)
			continue
		}
		inviteErr := u.withRetry(ctx, "invite "+invitee, func(ctx context.Context) error {
			return u.session.Invite(ctx, created.RoomID, target)
		})
		if inviteErr != nil {
			u.logger.Warn("giving up on invite", "invitee", invitee, "error", inviteErr)
		}
	}
	return nil
}

// RunAcceptInvites logs each identity in and accepts every pending
// invite from one sync snapshot.
func RunAcceptInvites(ctx context.Context, config ScenarioConfig) error {
	return forEachIdentity(ctx, config, func(ctx context.Context, user *VirtualUser) error {
		if err := user.establish(ctx); err != nil {
			return err
		}

		response, err := user.session.Sync(ctx, matrix.SyncOptions{SetTimeout: true})
		if err != nil {
			return err
		}

		for roomID := range response.Rooms.Invite {
			joinErr := user.withRetry(ctx, "join "+roomID.String(), func(ctx context.Context) error {
				_, err := user.session.Join(ctx, roomID.String())
				return err
			})
			if joinErr != nil {
				user.logger.Warn("giving up on invite", "room", roomID, "error", joinErr)
			}
		}
		return nil
	})
}

// RunSpaces builds each creator's rooms under a personal space: one
// m.space room per creator with every owned room linked in through the
// mirrored parent/child state pair.
func RunSpaces(ctx context.Context, config ScenarioConfig) error {
	creators := config.Topology.Creators()
	return forEachIdentity(ctx, config, func(ctx context.Context, user *VirtualUser) error {
		rooms := creators[user.session.Username()]
		if len(rooms) == 0 {
			return nil
		}
		if err := user.establish(ctx); err != nil {
			return err
		}

		var space *matrix.CreateRoomResponse
		err := user.withRetry(ctx, "create space", func(ctx context.Context) error {
			response, err := user.session.CreateRoom(ctx, matrix.CreateRoomRequest{
				Name:            user.session.Username() + "'s space",
				Preset:          "private_chat",
				CreationContent: map[string]any{"type": "m.space"},
			})
			if err != nil {
				return err
			}
			space = response
			return nil
		})
		if err != nil {
			return err
		}

		for _, roomName := range rooms {
			var child *matrix.CreateRoomResponse
			err := user.withRetry(ctx, "create room "+roomName, func(ctx context.Context) error {
				response, err := user.session.CreateRoom(ctx, matrix.CreateRoomRequest{
					Name:   roomName,
					Preset: "private_chat",
				})
				if err != nil {
					return err
				}
				child = response
				return nil
			})
			if err != nil {
				return err
			}

			err = user.withRetry(ctx, "link room "+roomName, func(ctx context.Context) error {
				return matrix.AddChildRoom(ctx, user.session, space.RoomID, child.RoomID, nil)
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RunChat runs the steady-state traffic mix: every identity in the
// shard becomes a live virtual user until ctx is done.
func RunChat(ctx context.Context, config ScenarioConfig) error {
	slots := config.Slots
	if slots <= 0 {
		slots = config.Driver.Queue.Stats().Remaining
	}

	// Buffered to the slot count so a user's exit never blocks, even
	// after this function has returned.
	errs := make(chan error, slots)
	users := 0
	for slot := 0; slot < slots; slot++ {
		user, ok := NewVirtualUser(config.Driver)
		if !ok {
			// Each unfilled slot parks, keeping the shortfall visible
			// in the queue stats.
			continue
		}
		users++
		go func() {
			errs <- user.Run(ctx)
		}()
	}
	if users == 0 {
		return nil
	}

	// Drain every slot's result. A benign failure in one slot (a dead
	// login, say) must not swallow a fatal registration error arriving
	// later from another, so the channel is read until the run ends.
	for done := 0; done < users; {
		select {
		case err := <-errs:
			done++
			if coordinator.ClassifyWorkerError(err) {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

// RunScenario dispatches a named scenario.
func RunScenario(ctx context.Context, name string, config ScenarioConfig) error {
	switch name {
	case ScenarioChat:
		return RunChat(ctx, config)
	case ScenarioRegister:
		return RunRegister(ctx, config)
	case ScenarioCreateRooms:
		return RunCreateRooms(ctx, config)
	case ScenarioAcceptInvites:
		return RunAcceptInvites(ctx, config)
	case ScenarioSpaces:
		return RunSpaces(ctx, config)
	}
	return fmt.Errorf("loadgen: unknown scenario %q", name)
}
