// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pangeachat/matrix-locust/matrix"
)

// Coordinator owns the token ledger and the worker links for one run.
// It assigns shards, absorbs token updates, propagates fatal stops,
// and flushes the ledger to the token file at shutdown.
type Coordinator struct {
	ledger    *TokenLedger
	tokenPath string
	logger    *slog.Logger

	mu      sync.Mutex
	workers []Messenger
	stopped bool
	stop    context.CancelCauseFunc
}

// ErrRunStopped is the cancellation cause when a fatal stop halts the
// run.
var ErrRunStopped = errors.New("coordinator: run stopped")

// New creates a coordinator that persists tokens at tokenPath. The
// ledger is seeded from an existing token file if one is present. The
// returned context is canceled (with a cause wrapping the reason) when
// a fatal stop arrives.
func New(ctx context.Context, tokenPath string, logger *slog.Logger) (*Coordinator, context.Context, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ledger := NewTokenLedger()
	records, err := LoadTokens(tokenPath)
	if err != nil {
		return nil, nil, err
	}
	ledger.Seed(records)
	if len(records) > 0 {
		logger.Info("seeded token ledger from previous run",
			"path", tokenPath,
			"identities", len(records))
	}

	runCtx, stop := context.WithCancelCause(ctx)
	return &Coordinator{
		ledger:    ledger,
		tokenPath: tokenPath,
		logger:    logger,
		stop:      stop,
	}, runCtx, nil
}

// Ledger returns the coordinator's token ledger.
func (c *Coordinator) Ledger() *TokenLedger { return c.ledger }

// AttachWorker registers a worker link, sends it its shard assignment,
// and starts absorbing its envelopes until the link closes or ctx is
// done.
func (c *Coordinator) AttachWorker(ctx context.Context, link Messenger, assignment ShardAssignment) error {
	c.mu.Lock()
	c.workers = append(c.workers, link)
	c.mu.Unlock()

	envelope, err := Seal(EnvelopeShardAssignment, assignment)
	if err != nil {
		return err
	}
	if err := link.Send(ctx, envelope); err != nil {
		return fmt.Errorf("coordinator: failed to send shard to worker %d: %w", assignment.Worker, err)
	}

	go c.absorb(ctx, link, assignment.Worker)
	return nil
}

// absorb drains one worker's envelope stream into the ledger.
func (c *Coordinator) absorb(ctx context.Context, link Messenger, worker int) {
	for {
		select {
		case envelope, ok := <-link.Receive():
			if !ok {
				return
			}
			c.handle(envelope, worker)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) handle(envelope Envelope, worker int) {
	switch envelope.Type {
	case EnvelopeTokenUpdate:
		var record TokenRecord
		if err := Open(envelope, EnvelopeTokenUpdate, &record); err != nil {
			c.logger.Warn("dropping malformed token update",
				"worker", worker,
				"error", err)
			return
		}
		c.ledger.Update(record)
	case EnvelopeFatalStop:
		var fatal FatalStop
		if err := Open(envelope, EnvelopeFatalStop, &fatal); err != nil {
			fatal.Reason = "unreadable fatal stop"
		}
		c.FatalStop(errors.New(fatal.Reason))
	default:
		c.logger.Warn("dropping envelope of unknown type",
			"worker", worker,
			"type", int(envelope.Type))
	}
}

// FatalStop halts the run: the run context is canceled with the cause
// and every worker link receives a fatal-stop envelope. Safe to call
// more than once; only the first cause wins.
func (c *Coordinator) FatalStop(cause error) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	workers := make([]Messenger, len(c.workers))
	copy(workers, c.workers)
	c.mu.Unlock()

	c.logger.Error("stopping run", "cause", cause)
	c.stop(fmt.Errorf("%w: %w", ErrRunStopped, cause))

	envelope, err := Seal(EnvelopeFatalStop, FatalStop{Reason: cause.Error()})
	if err != nil {
		return
	}
	for _, link := range workers {
		// The run context is already canceled; best-effort delivery
		// with a fresh context so buffered links still hear the stop.
		_ = link.Send(context.Background(), envelope)
	}
}

// ClassifyWorkerError maps a worker-side error to run disposition. An
// onboarding negotiation with no usable flow is systemic: no identity
// can register, so the run must stop rather than grind through
// thousands of identical failures.
func ClassifyWorkerError(err error) (fatal bool) {
	return errors.Is(err, matrix.ErrNoSupportedFlow)
}

// Flush writes the current ledger snapshot to the token file.
func (c *Coordinator) Flush() error {
	records := c.ledger.Snapshot()
	if err := SaveTokens(c.tokenPath, records); err != nil {
		return err
	}
	c.logger.Info("flushed token ledger",
		"path", c.tokenPath,
		"identities", len(records))
	return nil
}
