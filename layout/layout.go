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

// Package layout derives the deterministic, content-addressed paths the
// repository reads and writes at. Centralizing every path decision here
// means the lifecycle engine never builds a filename itself, the same
// separation the teacher draws between core/rawdb/freezer_table.go's
// segment-file indexing math and its callers.
package layout

import "path"

// IndexBlobName is the name of the root-level snapshot index blob, the
// repository's single source of truth for which snapshots exist.
const IndexBlobName = "index"

// SnapshotBlob returns the path of a snapshot's framed summary blob.
func SnapshotBlob(uuid string) string {
	return "snap-" + uuid + ".dat"
}

// MetadataBlob returns the path of a snapshot's framed global-metadata
// blob.
func MetadataBlob(uuid string) string {
	return "meta-" + uuid + ".dat"
}

// LegacySnapshotBlob returns the pre-framed-codec path for a snapshot
// summary, keyed by name rather than uuid.
func LegacySnapshotBlob(name string) string {
	return "snapshot-" + name
}

// LegacyMetadataBlob returns the pre-framed-codec path for a global
// metadata blob, keyed by name rather than uuid.
func LegacyMetadataBlob(name string) string {
	return "metadata-" + name
}

// IndexContainer returns the container holding one index's per-snapshot
// metadata, relative to the repository root.
func IndexContainer(indexName string) string {
	return path.Join("indices", indexName)
}

// IndexMetadataBlob returns the path of one index's framed metadata blob
// for a given snapshot uuid, within IndexContainer(indexName).
func IndexMetadataBlob(indexName, uuid string) string {
	return path.Join(IndexContainer(indexName), "meta-"+uuid+".dat")
}

// ShardContainer returns the container holding one shard's manifests and
// segment blobs, relative to the repository root.
func ShardContainer(indexName string, shard int) string {
	return path.Join(IndexContainer(indexName), itoa(shard))
}

// ShardManifestBlob returns the path of one shard's per-snapshot
// manifest blob.
func ShardManifestBlob(indexName string, shard int, uuid string) string {
	return path.Join(ShardContainer(indexName, shard), "snap-"+uuid+".dat")
}

// SegmentBlob returns the path of one physical segment blob within a
// shard's container. Segment blob ids are opaque identifiers chosen by
// the external shard snapshotter and are never reused once written, so
// they double as content-addressed keys.
func SegmentBlob(indexName string, shard int, segmentID string) string {
	return path.Join(ShardContainer(indexName, shard), "__"+segmentID)
}

// VerificationContainer returns the scratch container a verification
// round writes its probe blob under, keyed by the round's random seed so
// concurrent verifications on different nodes never collide.
func VerificationContainer(seed string) string {
	return "tests-" + seed
}

// VerificationBlob returns the path of the probe blob a verification
// round writes and reads back.
func VerificationBlob(seed string) string {
	return path.Join(VerificationContainer(seed), "master.dat")
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
