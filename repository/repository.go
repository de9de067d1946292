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

// Package repository implements the snapshot lifecycle engine: Initialize,
// Finalize, Delete, ReadSnapshot, ReadSnapshotMetadata, Snapshots, Resolve,
// and the verification protocol, all layered on package blobstore through
// the framed and legacy codecs in package blobformat.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/blobsnap/reposit/blobformat"
	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/internal/logutil"
	"github.com/blobsnap/reposit/layout"
	"github.com/blobsnap/reposit/ratelimit"
	"github.com/blobsnap/reposit/repoerr"
	"github.com/blobsnap/reposit/snapshot"
)

// state is the repository's lifecycle state, per the created/started/
// closed state machine.
type state int32

const (
	stateCreated state = iota
	stateStarted
	stateClosed
)

// Codecs bundles the three framed codec instances a Repository needs,
// parameterized by the repository's configured version bounds so callers
// can tune min/current version without touching the blobformat package.
type Codecs struct {
	Snapshot       blobformat.Codec[snapshot.Snapshot]
	GlobalMetadata blobformat.Codec[snapshot.GlobalMetadata]
	IndexMetadata  blobformat.Codec[snapshot.IndexMetadata]

	LegacySnapshot blobformat.Legacy[snapshot.Snapshot]
	LegacyMeta     blobformat.Legacy[snapshot.GlobalMetadata]
}

// NewCodecs builds the standard set of codecs for a repository configured
// with the given version bounds and compression flag. Every pattern is
// derived from package layout's own path functions (fed the literal "%s"
// in place of the variable component) rather than duplicating the
// filename literals here, so the two naming sources can't drift.
func NewCodecs(minVersion, currentVersion uint32, compress bool) Codecs {
	// IndexMetadataBlob returns a path rooted at its index's container,
	// but the IndexMetadata codec runs against a backend already scoped
	// to that container, so only the filename component is wanted.
	indexMetaPattern := path.Base(layout.IndexMetadataBlob("_", "%s"))

	return Codecs{
		Snapshot: blobformat.Codec[snapshot.Snapshot]{
			Name: "snapshot", Pattern: layout.SnapshotBlob("%s"),
			MinVersion: minVersion, CurrentVersion: currentVersion, Compress: compress,
		},
		GlobalMetadata: blobformat.Codec[snapshot.GlobalMetadata]{
			Name: "metadata", Pattern: layout.MetadataBlob("%s"),
			MinVersion: minVersion, CurrentVersion: currentVersion, Compress: compress,
		},
		IndexMetadata: blobformat.Codec[snapshot.IndexMetadata]{
			Name: "index-metadata", Pattern: indexMetaPattern,
			MinVersion: minVersion, CurrentVersion: currentVersion, Compress: compress,
		},
		LegacySnapshot: blobformat.Legacy[snapshot.Snapshot]{Pattern: layout.LegacySnapshotBlob("%s")},
		LegacyMeta:     blobformat.Legacy[snapshot.GlobalMetadata]{Pattern: layout.LegacyMetadataBlob("%s")},
	}
}

// Repository is the engine bound to one blobstore.Backend. It holds no
// package-level mutable state: throttle counters, the started/closed
// flag, and the index singleflight group all live on the value, so one
// process can host several independently-configured repositories.
type Repository struct {
	name    string
	cfg     *Config
	backend blobstore.Backend
	codecs  Codecs
	shards  ShardSnapshotter

	limiters *ratelimit.Pair
	caches   *caches
	metrics  *Metrics
	log      *logutil.Logger

	indexGroup singleflight.Group

	mu    sync.Mutex
	state state
}

// New constructs a Repository bound to backend, not yet started.
func New(cfg *Config, backend blobstore.Backend, shards ShardSnapshotter) *Repository {
	codecs := NewCodecs(cfg.MinVersion, cfg.CurrentVersion, cfg.Compress)
	metrics := NewMetrics(cfg.Name)
	return &Repository{
		name:     cfg.Name,
		cfg:      cfg,
		backend:  backend,
		codecs:   codecs,
		shards:   shards,
		limiters: ratelimit.NewPair(cfg.MaxSnapshotBytesPerSec, cfg.MaxRestoreBytesPerSec),
		caches:   newCaches(metrics),
		metrics:  metrics,
		log:      logutil.New().With("repository", cfg.Name),
	}
}

// Start transitions created -> started, binding the blob backend.
func (r *Repository) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != stateCreated {
		return fmt.Errorf("repository %q: Start called in state %d", r.name, r.state)
	}
	r.state = stateStarted
	r.log.Info("repository started", "readonly", r.cfg.ReadOnly, "base_path", r.cfg.BasePath)
	return nil
}

// Close transitions started -> closed. After Close, every snapshot,
// listing and shard operation fails; StartVerification and
// EndVerification do not check the lifecycle state.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = stateClosed
	return r.log.Sync()
}

func (r *Repository) checkOpen() error {
	r.mu.Lock()
	s := r.state
	r.mu.Unlock()
	if s == stateClosed {
		return fmt.Errorf("repository %q: closed", r.name)
	}
	return nil
}

func (r *Repository) checkWritable() error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	if r.cfg.ReadOnly {
		return repoerr.ReadOnly
	}
	return nil
}

// ReadOnly reports whether this repository rejects mutating operations.
func (r *Repository) ReadOnly() bool { return r.cfg.ReadOnly }

// SnapshotThrottleNanos returns the cumulative nanoseconds the snapshot
// (write) rate limiter has forced callers to wait.
func (r *Repository) SnapshotThrottleNanos() uint64 { return r.limiters.SnapshotThrottleNanos() }

// RestoreThrottleNanos returns the cumulative nanoseconds the restore
// (read) rate limiter has forced callers to wait.
func (r *Repository) RestoreThrottleNanos() uint64 { return r.limiters.RestoreThrottleNanos() }

// Initialize begins a new snapshot: rejects on read-only or name
// conflict, then writes global and per-index metadata. Partial writes
// on failure are left in place for a subsequent Delete to reclaim.
func (r *Repository) Initialize(id snapshot.ID, indices []string, meta snapshot.GlobalMetadata) error {
	t := r.metrics.start("initialize")
	if err := r.checkWritable(); err != nil {
		t.done("rejected")
		return err
	}

	if _, ok := r.readSnapshotList().get(id.Name); ok {
		t.done("conflict")
		return repoerr.NameConflict
	}
	if conflict, err := r.summaryExists(id); err != nil {
		t.done("error")
		return repoerr.NewSnapshotCreation(id.Name, id.UUID, err)
	} else if conflict {
		t.done("conflict")
		return repoerr.NameConflict
	}

	if err := r.codecs.GlobalMetadata.Write(r.backend, id.BlobID(), meta); err != nil {
		t.done("error")
		return repoerr.NewSnapshotCreation(id.Name, id.UUID, err)
	}

	for _, idx := range indices {
		container := r.backend.Container(layout.IndexContainer(idx))
		im := snapshot.IndexMetadata{Name: idx}
		if ref, ok := meta.Indices[idx]; ok {
			im.NumShards = ref.NumShards
		}
		if err := r.codecs.IndexMetadata.Write(container, id.BlobID(), im); err != nil {
			t.done("error")
			return repoerr.NewSnapshotCreation(id.Name, id.UUID, err)
		}
	}

	t.done("ok")
	return nil
}

// summaryExists reports whether a summary blob already exists for id,
// under either codec (an existence probe must check both, since a
// legacy writer and a framed writer could otherwise collide on name).
func (r *Repository) summaryExists(id snapshot.ID) (bool, error) {
	ok, err := r.codecs.Snapshot.Exists(r.backend, id.BlobID())
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return r.codecs.LegacySnapshot.Exists(r.backend, id.Name)
}

// Finalize completes a snapshot: writes its summary, then appends it to
// the snapshot index. The summary write happens-before the index
// update, so a crash in between leaves an orphan summary, never a
// phantom-committed snapshot.
func (r *Repository) Finalize(id snapshot.ID, indices []string, startTimeMillis int64, failureMessage string, totalShards int, shardFailures []snapshot.ShardFailure) (snapshot.Snapshot, error) {
	t := r.metrics.start("finalize")
	if err := r.checkWritable(); err != nil {
		t.done("rejected")
		return snapshot.Snapshot{}, err
	}

	summary := snapshot.Snapshot{
		Name:            id.Name,
		UUID:            id.UUID,
		Indices:         indices,
		StartTimeMillis: startTimeMillis,
		EndTimeMillis:   nowMillis(),
		FailureMessage:  failureMessage,
		TotalShards:     totalShards,
		ShardFailures:   shardFailures,
		Version:         r.cfg.CurrentVersion,
	}

	if err := r.codecs.Snapshot.Write(r.backend, id.BlobID(), summary); err != nil {
		t.done("error")
		return snapshot.Snapshot{}, repoerr.NewRepository(r.name, err)
	}

	list := r.readSnapshotList()
	if _, ok := list.get(id.Name); !ok {
		list.add(id)
		if err := r.writeSnapshotList(list); err != nil {
			t.done("error")
			return snapshot.Snapshot{}, repoerr.NewRepository(r.name, err)
		}
	}

	r.caches.putSummary(id, summary)
	t.done("ok")
	return summary, nil
}

// nowMillis is split out so tests can observe it's the only place
// Finalize touches wall-clock time.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// Delete removes a snapshot in the order invariant #1 requires: summary,
// then global metadata, then the index entry, then (best-effort)
// per-index and per-shard cleanup.
func (r *Repository) Delete(id snapshot.ID) error {
	t := r.metrics.start("delete")
	if err := r.checkWritable(); err != nil {
		t.done("rejected")
		return err
	}

	summary, version, haveSummary := r.tryReadSummaryForDelete(id)
	indices := summary.Indices
	numShards := map[string]int{}

	meta, haveMeta := r.tryReadMetaForDelete(id)
	if haveMeta {
		for idx, ref := range meta.Indices {
			numShards[idx] = ref.NumShards
		}
	}

	// 4a: delete summary blob(s).
	if err := r.deleteSummary(id, version, haveSummary); err != nil {
		t.done("error")
		return repoerr.NewRepository(r.name, err)
	}

	// 4b: delete global metadata blob(s).
	if err := r.deleteMeta(id, version, haveSummary); err != nil {
		t.done("error")
		return repoerr.NewRepository(r.name, err)
	}
	r.caches.dropMetadataBlob(globalMetadataCacheKey(id))

	// 4c: update the snapshot index.
	list := r.readSnapshotList()
	if _, ok := list.get(id.Name); !ok {
		t.done("missing")
		r.caches.dropSummary(id)
		return repoerr.Missing
	}
	list.remove(id.Name)
	if err := r.writeSnapshotList(list); err != nil {
		t.done("error")
		return repoerr.NewRepository(r.name, err)
	}
	r.caches.dropSummary(id)

	// 4d: best-effort per-index/per-shard cleanup, fanned out across
	// indices and joined without surfacing individual failures.
	r.cleanupIndices(id, indices, numShards)

	t.done("ok")
	return nil
}

func (r *Repository) tryReadSummaryForDelete(id snapshot.ID) (snapshot.Snapshot, uint32, bool) {
	s, err := r.codecs.Snapshot.Read(r.backend, id.BlobID())
	if err == nil {
		return s, s.Version, true
	}
	if err != blobstore.ErrNotFound {
		r.log.Warn("failed reading snapshot summary during delete, continuing with empty index list", "snapshot", id.Name, "err", err)
	}
	ls, err := r.codecs.LegacySnapshot.Read(r.backend, id.Name)
	if err == nil {
		return ls, 0, true
	}
	return snapshot.Snapshot{}, 0, false
}

func (r *Repository) tryReadMetaForDelete(id snapshot.ID) (snapshot.GlobalMetadata, bool) {
	m, err := r.codecs.GlobalMetadata.Read(r.backend, id.BlobID())
	if err == nil {
		return m, true
	}
	if err != blobstore.ErrNotFound {
		r.log.Warn("failed reading global metadata during delete, proceeding with shard-level best-effort", "snapshot", id.Name, "err", err)
	}
	lm, err := r.codecs.LegacyMeta.Read(r.backend, id.Name)
	if err == nil {
		return lm, true
	}
	return snapshot.GlobalMetadata{}, false
}

func (r *Repository) deleteSummary(id snapshot.ID, version uint32, versionKnown bool) error {
	if versionKnown && !blobformat.IsLegacy(version, r.cfg.LegacyCutoff) {
		return r.codecs.Snapshot.Delete(r.backend, id.BlobID())
	}
	if versionKnown {
		return r.codecs.LegacySnapshot.Delete(r.backend, id.Name)
	}
	if err := r.codecs.Snapshot.Delete(r.backend, id.BlobID()); err != nil {
		return err
	}
	return r.codecs.LegacySnapshot.Delete(r.backend, id.Name)
}

func (r *Repository) deleteMeta(id snapshot.ID, version uint32, versionKnown bool) error {
	if versionKnown && !blobformat.IsLegacy(version, r.cfg.LegacyCutoff) {
		return r.codecs.GlobalMetadata.Delete(r.backend, id.BlobID())
	}
	if versionKnown {
		return r.codecs.LegacyMeta.Delete(r.backend, id.Name)
	}
	if err := r.codecs.GlobalMetadata.Delete(r.backend, id.BlobID()); err != nil {
		return err
	}
	return r.codecs.LegacyMeta.Delete(r.backend, id.Name)
}

// cleanupIndices deletes per-index metadata and delegates per-shard
// cleanup to the external shard snapshotter, in parallel across indices.
// Every failure is logged; none aborts the operation or the sibling
// indices' cleanup.
func (r *Repository) cleanupIndices(id snapshot.ID, indices []string, numShards map[string]int) {
	var g errgroup.Group
	for _, idx := range indices {
		idx := idx
		g.Go(func() error {
			container := r.backend.Container(layout.IndexContainer(idx))
			if err := r.codecs.IndexMetadata.Delete(container, id.BlobID()); err != nil {
				r.log.Warn("failed deleting per-index metadata", "snapshot", id.Name, "index", idx, "err", err)
			}
			r.caches.dropMetadataBlob(indexMetadataCacheKey(idx, id))
			if r.shards == nil {
				return nil
			}
			n := numShards[idx]
			for shard := 0; shard < n; shard++ {
				shard := shard
				ctx := context.Background()
				if err := r.shards.DeleteShard(ctx, r.shardContainer(idx, shard), idx, shard, id); err != nil {
					r.log.Warn("failed deleting shard data", "snapshot", id.Name, "index", idx, "shard", shard, "err", err)
				}
			}
			return nil
		})
	}
	_ = g.Wait() // errors are logged per-index above, never surfaced
}

// ReadSnapshot returns a snapshot's summary, falling back from the
// framed codec to the legacy codec on NotFound only; a corrupt blob
// propagates regardless of which codec hit it.
func (r *Repository) ReadSnapshot(id snapshot.ID) (snapshot.Snapshot, error) {
	if err := r.checkOpen(); err != nil {
		return snapshot.Snapshot{}, err
	}
	if s, ok := r.caches.getSummary(id); ok {
		return s, nil
	}

	s, err := r.codecs.Snapshot.Read(r.backend, id.BlobID())
	if err == nil {
		r.caches.putSummary(id, s)
		return s, nil
	}
	if err != blobstore.ErrNotFound {
		return snapshot.Snapshot{}, repoerr.NewSnapshotError(id.Name, id.UUID, err)
	}

	s, err = r.codecs.LegacySnapshot.Read(r.backend, id.Name)
	if err == nil {
		r.caches.putSummary(id, s)
		return s, nil
	}
	if err == blobstore.ErrNotFound {
		return snapshot.Snapshot{}, repoerr.Missing
	}
	return snapshot.Snapshot{}, repoerr.NewSnapshotError(id.Name, id.UUID, err)
}

// globalMetadataCacheKey and indexMetadataCacheKey namespace the shared
// metadata byte cache so a global blob and a per-index blob for the same
// snapshot id never collide on the same key.
func globalMetadataCacheKey(id snapshot.ID) string {
	return "global:" + id.BlobID()
}

func indexMetadataCacheKey(idx string, id snapshot.ID) string {
	return "index:" + idx + ":" + id.BlobID()
}

// readGlobalMetadata serves id's global metadata from the byte cache when
// present, falling back through the framed then legacy codec and caching
// the result. The returned error is the raw blobstore/codec error so
// callers can still distinguish blobstore.ErrNotFound.
func (r *Repository) readGlobalMetadata(id snapshot.ID) (snapshot.GlobalMetadata, error) {
	key := globalMetadataCacheKey(id)
	if raw, ok := r.caches.getMetadataBlob(key); ok {
		var meta snapshot.GlobalMetadata
		if err := json.Unmarshal(raw, &meta); err == nil {
			return meta, nil
		}
	}

	meta, err := r.codecs.GlobalMetadata.Read(r.backend, id.BlobID())
	if err == blobstore.ErrNotFound {
		meta, err = r.codecs.LegacyMeta.Read(r.backend, id.Name)
	}
	if err != nil {
		return snapshot.GlobalMetadata{}, err
	}
	if raw, err := json.Marshal(meta); err == nil {
		r.caches.putMetadataBlob(key, raw)
	}
	return meta, nil
}

// readIndexMetadata is readGlobalMetadata's per-index counterpart.
func (r *Repository) readIndexMetadata(id snapshot.ID, idx string) (snapshot.IndexMetadata, error) {
	key := indexMetadataCacheKey(idx, id)
	if raw, ok := r.caches.getMetadataBlob(key); ok {
		var im snapshot.IndexMetadata
		if err := json.Unmarshal(raw, &im); err == nil {
			return im, nil
		}
	}

	container := r.backend.Container(layout.IndexContainer(idx))
	im, err := r.codecs.IndexMetadata.Read(container, id.BlobID())
	if err != nil {
		return snapshot.IndexMetadata{}, err
	}
	if raw, err := json.Marshal(im); err == nil {
		r.caches.putMetadataBlob(key, raw)
	}
	return im, nil
}

// ReadSnapshotMetadata reads the global metadata blob for id, then merges
// in per-index metadata for each requested index. When ignoreIndexErrors
// is set (used only from deletion), a single index's failure is logged
// and skipped instead of propagated.
func (r *Repository) ReadSnapshotMetadata(id snapshot.ID, indices []string, ignoreIndexErrors bool) (snapshot.GlobalMetadata, map[string]snapshot.IndexMetadata, error) {
	if err := r.checkOpen(); err != nil {
		return snapshot.GlobalMetadata{}, nil, err
	}

	meta, err := r.readGlobalMetadata(id)
	if err != nil {
		if err == blobstore.ErrNotFound {
			return snapshot.GlobalMetadata{}, nil, repoerr.Missing
		}
		return snapshot.GlobalMetadata{}, nil, repoerr.NewSnapshotError(id.Name, id.UUID, err)
	}

	out := make(map[string]snapshot.IndexMetadata, len(indices))
	for _, idx := range indices {
		im, err := r.readIndexMetadata(id, idx)
		if err != nil {
			if ignoreIndexErrors {
				r.log.Warn("skipping unreadable index metadata", "snapshot", id.Name, "index", idx, "err", err)
				continue
			}
			return snapshot.GlobalMetadata{}, nil, repoerr.NewSnapshotError(id.Name, id.UUID, err)
		}
		out[idx] = im
	}
	return meta, out, nil
}

// Snapshots returns every committed snapshot id, in the index blob's
// insertion order.
func (r *Repository) Snapshots() ([]snapshot.ID, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	list := r.readSnapshotList()
	out := make([]snapshot.ID, len(list.ids))
	copy(out, list.ids)
	return out, nil
}

// Resolve looks up each name in names against Snapshots(), returning
// repoerr.Missing for the first unresolved name.
func (r *Repository) Resolve(names []string) ([]snapshot.ID, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	list := r.readSnapshotList()
	out := make([]snapshot.ID, 0, len(names))
	for _, name := range names {
		id, ok := list.get(name)
		if !ok {
			return nil, repoerr.Missing
		}
		out = append(out, id)
	}
	return out, nil
}
