// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/pangeachat/matrix-locust/coordinator"
	"github.com/pangeachat/matrix-locust/lib/clock"
	"github.com/pangeachat/matrix-locust/lib/ref"
	"github.com/pangeachat/matrix-locust/matrix"
)

// Credentials derives a password for a username. Load runs use a
// deterministic scheme so every worker can log any identity in.
type Credentials func(username string) (password string)

// DriverConfig wires one worker's virtual users.
type DriverConfig struct {
	Client      *matrix.Client
	Queue       *ShardQueue
	Ledger      *coordinator.TokenLedger
	Reporter    *coordinator.TokenReporter
	Credentials Credentials
	Clock       clock.Clock
	Logger      *slog.Logger
	// DeviceName labels devices created by cold logins.
	DeviceName string
	// SyncTimeout is the server-side long-poll hold for the
	// background sync loop. Zero uses the default.
	SyncTimeout time.Duration
	// RegistrationToken is forwarded to registration negotiations
	// when the homeserver gates sign-up behind a shared token.
	RegistrationToken string
	// RegisterMissing registers identities the server does not know
	// instead of failing their login.
	RegisterMissing bool
}

// VirtualUser is one simulated client: a session plus the local state
// its behavior loops share.
type VirtualUser struct {
	config  DriverConfig
	session *matrix.Session
	window  *MessageWindow
	rng     *rand.Rand
	logger  *slog.Logger
	clk     clock.Clock

	mu          sync.Mutex
	rooms       []ref.RoomID
	prevBatches map[ref.RoomID]string
	profiles    map[ref.UserID]bool
}

// NewVirtualUser draws an identity from the shard queue and builds the
// user around it. ok is false when the queue is exhausted; the queue
// records the park and the caller should not retry.
func NewVirtualUser(config DriverConfig) (*VirtualUser, bool) {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Ledger == nil {
		config.Ledger = coordinator.NewTokenLedger()
	}
	if config.Credentials == nil {
		config.Credentials = func(string) string { return "" }
	}

	username, ok := config.Queue.Draw()
	if !ok {
		config.Queue.Park()
		config.Logger.Warn("shard exhausted, parking virtual user")
		return nil, false
	}

	logger := config.Logger.With("username", username)
	bus := matrix.NewBus(logger)
	session := matrix.NewSession(config.Client, bus, username, config.Credentials(username))

	// Seed the generator from the username so a rerun of the same
	// population replays the same behavior sequence.
	hash := fnv.New64a()
	hash.Write([]byte(username))

	return &VirtualUser{
		config:      config,
		session:     session,
		window:      NewMessageWindow(),
		rng:         rand.New(rand.NewSource(int64(hash.Sum64()))),
		logger:      logger,
		clk:         config.Clock,
		prevBatches: make(map[ref.RoomID]string),
		profiles:    make(map[ref.UserID]bool),
	}, true
}

// Session exposes the user's session, mainly to tests and scenarios.
func (u *VirtualUser) Session() *matrix.Session { return u.session }

// sleep waits for the given duration on the user's clock, returning
// early with ctx.Err() on cancellation. A shutdown mid-idle must not
// leave a timer running for the rest of the idle period.
func (u *VirtualUser) sleep(ctx context.Context, duration time.Duration) error {
	return u.clk.SleepCtx(ctx, duration)
}

// establish brings the session up: warm identities are seeded from the
// ledger, cold ones log in, unknown ones register when permitted. The
// first sync latches the initial cursor for seeded sessions that never
// had one.
func (u *VirtualUser) establish(ctx context.Context) error {
	username := u.session.Username()

	if record, ok := u.config.Ledger.Lookup(username); ok {
		// An unparseable stored ID seeds as zero and is re-learned at
		// the next login.
		seedID, _ := ref.ParseUserID(record.UserID)
		if u.session.SeedCredentials(seedID, record.AccessToken, record.NextBatch) {
			u.logger.Debug("seeded session from token ledger")
			return nil
		}
	}

	_, err := u.session.Login(ctx, matrix.LoginOptions{DeviceName: u.config.DeviceName})
	if err == nil {
		return nil
	}

	if u.config.RegisterMissing && matrix.IsMatrixError(err, matrix.ErrCodeForbidden) {
		u.logger.Info("login refused, registering")
		_, err = u.session.Register(ctx, matrix.RegisterOptions{
			DeviceName:        u.config.DeviceName,
			RegistrationToken: u.config.RegistrationToken,
		})
	}
	if err != nil {
		return fmt.Errorf("loadgen: failed to establish session for %s: %w", username, err)
	}
	return nil
}

// Run drives the user until ctx is done: establish the session, start
// the background sync loop, then sample foreground actions with think
// time in between. A fatal establishment error (no usable registration
// flow) is returned so the worker can report it; per-action errors are
// logged and absorbed.
func (u *VirtualUser) Run(ctx context.Context) error {
	if u.config.Reporter != nil {
		u.config.Reporter.Watch(ctx, u.session.Bus())
	}

	if err := u.establish(ctx); err != nil {
		return err
	}

	// Initial one-shot sync: latches the cursor when the ledger had
	// none, and primes rooms and the message window either way.
	response, err := u.session.Sync(ctx, matrix.SyncOptions{SetTimeout: true})
	if err != nil {
		u.logger.Warn("initial sync failed", "error", err)
	} else {
		u.absorbSync(ctx, response)
	}

	syncDone := make(chan struct{})
	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go func() {
		defer close(syncDone)
		u.runSyncLoop(syncCtx)
	}()

	for {
		if err := u.sleep(ctx, sampleExp(u.rng, meanThinkTime)); err != nil {
			break
		}

		action := pickAction(u.rng, actionTable)
		if err := action.run(ctx, u); err != nil {
			if ctx.Err() != nil {
				break
			}
			u.logger.Warn("action failed", "action", action.name, "error", err)
		}
	}

	stopSync()
	<-syncDone
	return nil
}
