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

package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/blobstore/memblob"
	"github.com/blobsnap/reposit/repoerr"
	"github.com/blobsnap/reposit/repository"
	"github.com/blobsnap/reposit/snapshot"
)

// fakeShardSnapshotter is a minimal in-memory ShardSnapshotter: it writes
// one segment blob per shard write and tracks deletes/restores so tests
// can assert the repository actually drives the interface.
type fakeShardSnapshotter struct {
	written  []string
	restored []string
	deleted  []string
}

func (f *fakeShardSnapshotter) SnapshotShard(ctx context.Context, container blobstore.Backend, limiter *repository.ShardLimiter, index string, shard int, id snapshot.ID) (snapshot.ShardManifest, error) {
	if err := limiter.Acquire(ctx, 1); err != nil {
		return snapshot.ShardManifest{}, err
	}
	f.written = append(f.written, id.BlobID())
	if err := container.Write("__seg-1", []byte("data")); err != nil {
		return snapshot.ShardManifest{}, err
	}
	return snapshot.ShardManifest{Index: index, Shard: shard, Files: map[string]string{"seg-1": "seg-1"}}, nil
}

func (f *fakeShardSnapshotter) RestoreShard(ctx context.Context, container blobstore.Backend, limiter *repository.ShardLimiter, index string, shard int, manifest snapshot.ShardManifest) error {
	if err := limiter.Acquire(ctx, 1); err != nil {
		return err
	}
	f.restored = append(f.restored, manifest.Index)
	return nil
}

func (f *fakeShardSnapshotter) DeleteShard(ctx context.Context, container blobstore.Backend, index string, shard int, id snapshot.ID) error {
	f.deleted = append(f.deleted, id.BlobID())
	return nil
}

func newTestRepo(t *testing.T, readonly bool) (*repository.Repository, *memblob.Store) {
	t.Helper()
	store := memblob.New()
	backend := memblob.Wrap(store)
	cfg := repository.DefaultConfig()
	cfg.Name = "test"
	cfg.ReadOnly = readonly
	repo := repository.New(cfg, backend, nil)
	require.NoError(t, repo.Start())
	t.Cleanup(func() { repo.Close() })
	return repo, store
}

// S1 — create & list a single snapshot.
func TestCreateAndListSingleSnapshot(t *testing.T) {
	repo, _ := newTestRepo(t, false)
	id := snapshot.ID{Name: "s1", UUID: "U1"}

	require.NoError(t, repo.Initialize(id, []string{"idx-a"}, snapshot.GlobalMetadata{
		Indices: map[string]snapshot.IndexRef{"idx-a": {NumShards: 1}},
	}))

	summary, err := repo.Finalize(id, []string{"idx-a"}, 1000, "", 1, nil)
	require.NoError(t, err)
	require.Equal(t, "s1", summary.Name)
	require.Equal(t, []string{"idx-a"}, summary.Indices)
	require.Equal(t, int64(1000), summary.StartTimeMillis)
	require.Equal(t, 1, summary.TotalShards)
	require.Empty(t, summary.ShardFailures)

	ids, err := repo.Snapshots()
	require.NoError(t, err)
	require.Equal(t, []snapshot.ID{id}, ids)
}

// S2 — name conflict.
func TestNameConflict(t *testing.T) {
	repo, _ := newTestRepo(t, false)
	id := snapshot.ID{Name: "s1", UUID: "U1"}
	require.NoError(t, repo.Initialize(id, nil, snapshot.GlobalMetadata{}))
	_, err := repo.Finalize(id, nil, 0, "", 0, nil)
	require.NoError(t, err)

	err = repo.Initialize(snapshot.ID{Name: "s1", UUID: "U2"}, nil, snapshot.GlobalMetadata{})
	require.ErrorIs(t, err, repoerr.NameConflict)
}

// S3 — delete preserves invariant under crash after step 4a.
func TestDeleteRecoversFromInterruptedOrdering(t *testing.T) {
	repo, store := newTestRepo(t, false)
	id := snapshot.ID{Name: "s1", UUID: "U1"}
	require.NoError(t, repo.Initialize(id, nil, snapshot.GlobalMetadata{}))
	_, err := repo.Finalize(id, nil, 0, "", 0, nil)
	require.NoError(t, err)

	// Simulate a crash between summary deletion (4a) and index rewrite
	// (4c) by deleting the summary blob directly, out of band, then
	// observing through a second repository instance over the same
	// store so the first instance's read cache can't mask it.
	backend := memblob.Wrap(store)
	require.NoError(t, backend.Delete("snap-U1.dat"))

	cfg := repository.DefaultConfig()
	cfg.Name = "observer"
	observer := repository.New(cfg, backend, nil)
	require.NoError(t, observer.Start())
	defer observer.Close()

	_, err = observer.ReadSnapshot(id)
	require.ErrorIs(t, err, repoerr.Missing)

	ids, err := observer.Snapshots()
	require.NoError(t, err)
	require.Contains(t, ids, id)

	// Re-invoking Delete: 4a is a no-op (blob already gone), 4c completes.
	require.NoError(t, observer.Delete(id))
	ids, err = observer.Snapshots()
	require.NoError(t, err)
	require.Empty(t, ids)
}

// S4 — legacy read.
func TestLegacyRead(t *testing.T) {
	repo, store := newTestRepo(t, false)
	backend := memblob.Wrap(store)

	require.NoError(t, backend.Write("snapshot-old", []byte(`{"name":"old","uuid":"_na_","indices":["idx-a"],"total_shards":1,"shard_failures":[]}`)))
	require.NoError(t, backend.Write("index", []byte(`{"snapshots":[{"name":"old","uuid":"_na_"}]}`)))

	id := snapshot.ID{Name: "old", UUID: snapshot.UnassignedUUID}
	summary, err := repo.ReadSnapshot(id)
	require.NoError(t, err)
	require.Equal(t, "old", summary.Name)
	require.Equal(t, []string{"idx-a"}, summary.Indices)
}

// S5 — read-only guard.
func TestReadOnlyGuard(t *testing.T) {
	repo, store := newTestRepo(t, true)

	err := repo.Initialize(snapshot.ID{Name: "s1", UUID: "U1"}, nil, snapshot.GlobalMetadata{})
	require.ErrorIs(t, err, repoerr.ReadOnly)
	require.Zero(t, store.Len())

	_, err = repo.Snapshots()
	require.NoError(t, err)
}

// S6 — verification round trip.
func TestVerificationRoundTrip(t *testing.T) {
	repo, store := newTestRepo(t, false)

	token, err := repo.StartVerification()
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Positive(t, store.Len())

	require.NoError(t, repo.EndVerification(token))
	require.Zero(t, store.Len())
}

func TestReadOnlyVerificationIsNoop(t *testing.T) {
	repo, _ := newTestRepo(t, true)
	token, err := repo.StartVerification()
	require.NoError(t, err)
	require.Empty(t, token)

	err = repo.EndVerification(token)
	require.ErrorIs(t, err, repoerr.ReadOnly)
}

func TestResolveMissingName(t *testing.T) {
	repo, _ := newTestRepo(t, false)
	_, err := repo.Resolve([]string{"nope"})
	require.ErrorIs(t, err, repoerr.Missing)
}

func TestDeleteUnknownSnapshot(t *testing.T) {
	repo, _ := newTestRepo(t, false)
	err := repo.Delete(snapshot.ID{Name: "nope", UUID: "U1"})
	require.ErrorIs(t, err, repoerr.Missing)
}

func TestReadSnapshotMetadataMergesIndicesAndServesFromCache(t *testing.T) {
	repo, store := newTestRepo(t, false)
	id := snapshot.ID{Name: "s1", UUID: "U1"}

	require.NoError(t, repo.Initialize(id, []string{"idx-a"}, snapshot.GlobalMetadata{
		Indices: map[string]snapshot.IndexRef{"idx-a": {NumShards: 2}},
	}))

	meta, indices, err := repo.ReadSnapshotMetadata(id, []string{"idx-a"}, false)
	require.NoError(t, err)
	require.Equal(t, 2, meta.Indices["idx-a"].NumShards)
	require.Equal(t, 2, indices["idx-a"].NumShards)

	// A second read must come back identical even if the backend blobs
	// were removed underneath it, proving the metadata cache actually
	// served the second call instead of re-reading.
	backend := memblob.Wrap(store)
	require.NoError(t, backend.Delete("meta-U1.dat"))
	require.NoError(t, backend.Delete("indices/idx-a/meta-U1.dat"))

	meta2, indices2, err := repo.ReadSnapshotMetadata(id, []string{"idx-a"}, false)
	require.NoError(t, err)
	require.Equal(t, meta, meta2)
	require.Equal(t, indices, indices2)
}

func TestThrottleCountersStartAtZero(t *testing.T) {
	repo, _ := newTestRepo(t, false)
	require.Zero(t, repo.SnapshotThrottleNanos())
	require.Zero(t, repo.RestoreThrottleNanos())
}

func TestWriteShardDrivesSnapshotterThroughWriteLimiter(t *testing.T) {
	store := memblob.New()
	backend := memblob.Wrap(store)
	cfg := repository.DefaultConfig()
	cfg.Name = "test"
	shards := &fakeShardSnapshotter{}
	repo := repository.New(cfg, backend, shards)
	require.NoError(t, repo.Start())
	defer repo.Close()

	id := snapshot.ID{Name: "s1", UUID: "U1"}
	manifest, err := repo.WriteShard(context.Background(), "idx-a", 0, id)
	require.NoError(t, err)
	require.Equal(t, "idx-a", manifest.Index)
	require.Equal(t, []string{"U1"}, shards.written)

	rc, err := backend.Container("indices/idx-a/0").Read("__seg-1")
	require.NoError(t, err)
	rc.Close()
}

func TestReadShardDrivesSnapshotterThroughReadLimiter(t *testing.T) {
	shards := &fakeShardSnapshotter{}
	repo, _ := newTestRepoWithShards(t, shards)

	err := repo.ReadShard(context.Background(), "idx-a", 0, snapshot.ShardManifest{Index: "idx-a", Shard: 0})
	require.NoError(t, err)
	require.Equal(t, []string{"idx-a"}, shards.restored)
}

func TestWriteShardRejectsReadOnly(t *testing.T) {
	shards := &fakeShardSnapshotter{}
	store := memblob.New()
	backend := memblob.Wrap(store)
	cfg := repository.DefaultConfig()
	cfg.Name = "test"
	cfg.ReadOnly = true
	repo := repository.New(cfg, backend, shards)
	require.NoError(t, repo.Start())
	defer repo.Close()

	_, err := repo.WriteShard(context.Background(), "idx-a", 0, snapshot.ID{Name: "s1", UUID: "U1"})
	require.ErrorIs(t, err, repoerr.ReadOnly)
	require.Empty(t, shards.written)
}

func TestWriteShardWithoutSnapshotterFails(t *testing.T) {
	repo, _ := newTestRepo(t, false)
	_, err := repo.WriteShard(context.Background(), "idx-a", 0, snapshot.ID{Name: "s1", UUID: "U1"})
	require.Error(t, err)
}

func newTestRepoWithShards(t *testing.T, shards *fakeShardSnapshotter) (*repository.Repository, *memblob.Store) {
	t.Helper()
	store := memblob.New()
	backend := memblob.Wrap(store)
	cfg := repository.DefaultConfig()
	cfg.Name = "test"
	repo := repository.New(cfg, backend, shards)
	require.NoError(t, repo.Start())
	t.Cleanup(func() { repo.Close() })
	return repo, store
}
