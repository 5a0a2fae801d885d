// Copyright 2026 The Pangea Chat Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"fmt"
	"sort"
)

// ComputeShards partitions usernames across workers. Each worker but
// the last receives floor(len/workers) identities in sorted order; the
// last worker absorbs the remainder, so shard sizes can differ only at
// the tail. The input is sorted (not mutated) before splitting, which
// makes the partition a pure function of the identity set: every
// worker derives the same shards independently.
//
// An empty identity set yields all-empty shards. workers must be
// positive.
func ComputeShards(usernames []string, workers int) ([][]string, error) {
	if workers <= 0 {
		return nil, fmt.Errorf("coordinator: worker count must be positive, got %d", workers)
	}

	sorted := make([]string, len(usernames))
	copy(sorted, usernames)
	sort.Strings(sorted)

	shards := make([][]string, workers)
	share := len(sorted) / workers
	for worker := 0; worker < workers-1; worker++ {
		shards[worker] = sorted[worker*share : (worker+1)*share]
	}
	shards[workers-1] = sorted[(workers-1)*share:]
	return shards, nil
}

// ShardFor returns the shard for one worker index without building the
// whole partition.
func ShardFor(usernames []string, workers, worker int) ([]string, error) {
	if worker < 0 || worker >= workers {
		return nil, fmt.Errorf("coordinator: worker index %d out of range [0,%d)", worker, workers)
	}
	shards, err := ComputeShards(usernames, workers)
	if err != nil {
		return nil, err
	}
	return shards[worker], nil
}
