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

package repository

import (
	"context"
	"errors"

	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/layout"
	"github.com/blobsnap/reposit/snapshot"
)

// errNoShardSnapshotter is returned by WriteShard when the repository was
// constructed without a ShardSnapshotter, since there is then nothing to
// drive the write through.
var errNoShardSnapshotter = errors.New("repository: no shard snapshotter configured")

// ShardSnapshotter is the external collaborator that walks one shard's
// segment files and emits the manifest plus segment blobs for one
// snapshot. The repository supplies the rate-limited container this
// writer/deleter operates against; it never interprets the manifest's
// contents itself.
type ShardSnapshotter interface {
	// SnapshotShard writes indices/<index>/<shard>/snap-<uuid>.dat and
	// any __<segment-id> blobs through container, pacing writes through
	// limiter. It returns the manifest it wrote.
	SnapshotShard(ctx context.Context, container blobstore.Backend, limiter *ShardLimiter, index string, shard int, id snapshot.ID) (snapshot.ShardManifest, error)

	// RestoreShard copies the segment blobs manifest describes from
	// container back into the local shard, pacing reads through limiter.
	RestoreShard(ctx context.Context, container blobstore.Backend, limiter *ShardLimiter, index string, shard int, manifest snapshot.ShardManifest) error

	// DeleteShard removes the per-shard manifest for id and any segment
	// blobs it referenced that are not referenced by another committed
	// snapshot. Failures are logged by the caller and never abort a
	// wider delete.
	DeleteShard(ctx context.Context, container blobstore.Backend, index string, shard int, id snapshot.ID) error
}

// ShardLimiter is the paced read/write handle a ShardSnapshotter uses
// for segment data, wrapping the repository's snapshot (write) and
// restore (read) rate limiters behind a single interface so a
// snapshotter doesn't need to know which direction it's pacing.
type ShardLimiter struct {
	acquire func(ctx context.Context, n int) error
}

// Acquire blocks until n bytes of budget is available.
func (s *ShardLimiter) Acquire(ctx context.Context, n int) error {
	if s == nil || s.acquire == nil {
		return nil
	}
	return s.acquire(ctx, n)
}

// WriteShard drives one shard's data write through the external
// ShardSnapshotter, between Initialize and Finalize: the engine supplies
// the rate-limited container (paced through the snapshot/write limiter)
// and the shard coordinator walks that shard's segment files and returns
// the manifest it wrote. The repository does not persist the manifest
// itself; the caller is responsible for folding it into the snapshot it
// is assembling before calling Finalize.
func (r *Repository) WriteShard(ctx context.Context, index string, shard int, id snapshot.ID) (snapshot.ShardManifest, error) {
	if err := r.checkWritable(); err != nil {
		return snapshot.ShardManifest{}, err
	}
	if r.shards == nil {
		return snapshot.ShardManifest{}, errNoShardSnapshotter
	}
	return r.shards.SnapshotShard(ctx, r.shardContainer(index, shard), r.writeLimiter(), index, shard, id)
}

// ReadShard drives one shard's data restore through the external
// ShardSnapshotter, pacing reads through the restore limiter rather than
// the write limiter WriteShard uses. Restoring is a read operation and is
// permitted even against a read-only repository.
func (r *Repository) ReadShard(ctx context.Context, index string, shard int, manifest snapshot.ShardManifest) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.shards == nil {
		return errNoShardSnapshotter
	}
	return r.shards.RestoreShard(ctx, r.shardContainer(index, shard), r.readLimiter(), index, shard, manifest)
}

func (r *Repository) shardContainer(index string, shard int) blobstore.Backend {
	return r.backend.Container(layout.ShardContainer(index, shard))
}

func (r *Repository) writeLimiter() *ShardLimiter {
	return &ShardLimiter{acquire: func(ctx context.Context, n int) error {
		_, err := r.limiters.Snapshot.Acquire(ctx, n)
		return err
	}}
}

func (r *Repository) readLimiter() *ShardLimiter {
	return &ShardLimiter{acquire: func(ctx context.Context, n int) error {
		_, err := r.limiters.Restore.Acquire(ctx, n)
		return err
	}}
}
