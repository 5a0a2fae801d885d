// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject Fake() with deterministic control.
//
// The load generator sleeps constantly (think time, typing delay,
// away-from-keyboard idling), so every component that waits accepts a
// Clock instead of calling the time package directly. Tests of the
// behavior driver would otherwise take wall-clock minutes.
package clock

import (
	"context"
	"time"
)

// Clock provides the subset of the time package the load generator
// uses: reading the current time and sleeping.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for at least duration d.
	// A non-positive d returns immediately.
	Sleep(d time.Duration)

	// SleepCtx pauses for at least d or until ctx is done, whichever
	// comes first, and returns ctx.Err(). The wait is released
	// immediately on cancellation; no timer outlives the call.
	SleepCtx(ctx context.Context, d time.Duration) error
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

func (realClock) SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
	return ctx.Err()
}
