// Copyright 2024 The reposit Authors
// This file is part of the reposit library.
//
// The reposit library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The reposit library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the reposit library. If not, see <http://www.gnu.org/licenses/>.

// Package ratelimit provides the two byte-rate token buckets that pace
// the snapshot (write) and restore (read) data paths, plus the
// cumulative throttle-time counters surfaced to metrics readers.
package ratelimit

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces a byte stream at a configured rate and records how long
// it has cumulatively paused callers.
type Limiter struct {
	limiter      *rate.Limiter // nil means unlimited (rate <= 0 at construction)
	pausedNanos  int64
	burstBytes   int
}

// New builds a Limiter for bytesPerSec. A rate <= 0 disables limiting
// entirely: Acquire never consults golang.org/x/time/rate and always
// returns immediately.
func New(bytesPerSec int) *Limiter {
	if bytesPerSec <= 0 {
		return &Limiter{}
	}
	// Burst one second's worth of traffic so a single large segment blob
	// doesn't get sliced into many tiny waits.
	burst := bytesPerSec
	return &Limiter{
		limiter:    rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		burstBytes: burst,
	}
}

// Acquire blocks until n bytes' worth of budget is available (in chunks
// no larger than the configured burst) and returns how long it paused.
// Rate-limit exhaustion never fails a request, only delays it, so the
// only error this can return is ctx cancellation.
func (l *Limiter) Acquire(ctx context.Context, n int) (time.Duration, error) {
	if l == nil || l.limiter == nil || n <= 0 {
		return 0, nil
	}
	var paused time.Duration
	for remaining := n; remaining > 0; {
		chunk := remaining
		if l.burstBytes > 0 && chunk > l.burstBytes {
			chunk = l.burstBytes
		}
		if !l.limiter.AllowN(time.Now(), chunk) {
			start := time.Now()
			err := l.limiter.WaitN(ctx, chunk)
			paused += time.Since(start)
			if err != nil {
				return paused, err
			}
		}
		remaining -= chunk
	}
	atomic.AddInt64(&l.pausedNanos, int64(paused))
	return paused, nil
}

// PausedNanos returns the cumulative nanoseconds this limiter has ever
// forced a caller to wait.
func (l *Limiter) PausedNanos() int64 {
	if l == nil {
		return 0
	}
	return atomic.LoadInt64(&l.pausedNanos)
}

// Pair bundles the snapshot (write) and restore (read) limiters a
// Repository holds, along with the two cumulative counters exposed as
// independently observable metrics.
type Pair struct {
	Snapshot *Limiter
	Restore  *Limiter
}

// NewPair builds both limiters from the repository's configured byte
// rates.
func NewPair(snapshotBytesPerSec, restoreBytesPerSec int) *Pair {
	return &Pair{
		Snapshot: New(snapshotBytesPerSec),
		Restore:  New(restoreBytesPerSec),
	}
}

// SnapshotThrottleNanos implements the public metric of the same name.
func (p *Pair) SnapshotThrottleNanos() uint64 {
	return uint64(p.Snapshot.PausedNanos())
}

// RestoreThrottleNanos implements the public metric of the same name.
func (p *Pair) RestoreThrottleNanos() uint64 {
	return uint64(p.Restore.PausedNanos())
}
