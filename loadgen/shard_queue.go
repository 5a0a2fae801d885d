// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package loadgen

import "sync"

// ShardQueue hands out the identities of one worker's shard, each
// exactly once. When the shard is exhausted further draws fail and the
// caller parks itself: an exhausted queue means the worker is running
// more virtual users than it was assigned identities, and a parked
// user stays visible in Stats instead of silently spinning.
type ShardQueue struct {
	mu      sync.Mutex
	pending []string
	drawn   int
	parked  int
}

// NewShardQueue creates a queue over the given identities.
func NewShardQueue(usernames []string) *ShardQueue {
	pending := make([]string, len(usernames))
	copy(pending, usernames)
	return &ShardQueue{pending: pending}
}

// Draw removes and returns the next identity. ok is false when the
// shard is exhausted.
func (q *ShardQueue) Draw() (username string, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return "", false
	}
	username = q.pending[0]
	q.pending = q.pending[1:]
	q.drawn++
	return username, true
}

// Park records that a virtual user found the queue exhausted and
// stopped.
func (q *ShardQueue) Park() {
	q.mu.Lock()
	q.parked++
	q.mu.Unlock()
}

// QueueStats is a point-in-time view of a shard queue.
type QueueStats struct {
	Remaining int
	Drawn     int
	Parked    int
}

// Stats returns the current queue counters.
func (q *ShardQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Remaining: len(q.pending),
		Drawn:     q.drawn,
		Parked:    q.parked,
	}
}
