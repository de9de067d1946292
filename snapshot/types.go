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

// Package snapshot holds the repository's data model: the identity and
// summary of a snapshot, and the metadata types a snapshot's indices
// carry. None of these types know how to persist themselves; that is
// package repository's job, through package blobformat.
package snapshot

// UnassignedUUID is the sentinel UUID used for snapshots written by
// legacy (pre-5.0-equivalent) writers that never recorded a real UUID.
// It is a repository-wide constant and must never change once a
// repository has legacy entries on disk.
const UnassignedUUID = "_na_"

// ID identifies a snapshot by (Name, UUID). Equality and hashing are by
// both fields; the on-blob filename component is UUID, or Name for
// legacy entries sharing UnassignedUUID.
type ID struct {
	Name string
	UUID string
}

// BlobID returns the filename component this id contributes to a framed
// blob pattern: the UUID normally, or the Name when the UUID is the
// legacy sentinel.
func (id ID) BlobID() string {
	if id.UUID == "" || id.UUID == UnassignedUUID {
		return id.Name
	}
	return id.UUID
}

// IsLegacy reports whether id was recorded by a pre-framed-codec writer.
func (id ID) IsLegacy() bool {
	return id.UUID == "" || id.UUID == UnassignedUUID
}

// ShardFailure records one shard that failed to snapshot.
type ShardFailure struct {
	Index  string `json:"index"`
	Shard  int    `json:"shard"`
	Node   string `json:"node"`
	Reason string `json:"reason"`
}

// Snapshot is the immutable summary written by Finalize and read back by
// ReadSnapshot. Version gates which codec variant produced it.
type Snapshot struct {
	Name            string         `json:"name"`
	UUID            string         `json:"uuid"`
	Indices         []string       `json:"indices"`
	StartTimeMillis int64          `json:"start_time_ms"`
	EndTimeMillis   int64          `json:"end_time_ms"`
	FailureMessage  string         `json:"failure_message,omitempty"`
	TotalShards     int            `json:"total_shards"`
	ShardFailures   []ShardFailure `json:"shard_failures"`
	Version         uint32         `json:"version"`
}

// ID returns the (name, uuid) identity of this summary.
func (s Snapshot) ID() ID { return ID{Name: s.Name, UUID: s.UUID} }

// GlobalMetadata is the opaque cluster-wide metadata recorded alongside
// a snapshot: the set of indices known at snapshot time and any
// cluster-level settings worth preserving. Treated as a value type with
// a stable JSON serialization.
type GlobalMetadata struct {
	Indices  map[string]IndexRef `json:"indices"`
	Settings map[string]string   `json:"settings,omitempty"`
}

// IndexRef is the minimal per-index fact the global metadata needs to
// recover how many shards an index had, used by deletion's step 4c/4d
// to know how many per-shard manifests to clean up without re-reading
// every index's own metadata.
type IndexRef struct {
	NumShards int `json:"num_shards"`
}

// IndexMetadata is the per-index settings and mappings snapshotted for
// one index within one snapshot.
type IndexMetadata struct {
	Name      string            `json:"name"`
	NumShards int               `json:"num_shards"`
	Settings  map[string]string `json:"settings,omitempty"`
	Mappings  map[string]string `json:"mappings,omitempty"`
}

// ShardManifest is the external shard snapshotter's per-shard output:
// the logical-to-physical segment file mapping for one shard of one
// snapshot. The repository does not interpret or persist the contents;
// the external shard snapshotter writes and deletes the manifest blob
// and any segment blobs it references.
type ShardManifest struct {
	Index       string            `json:"index"`
	Shard       int               `json:"shard"`
	Files       map[string]string `json:"files"` // logical name -> physical segment blob id
	TotalSizeB  int64             `json:"total_size_bytes"`
}
