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
	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"

	"github.com/blobsnap/reposit/snapshot"
)

const (
	summaryCacheEntries  = 512
	metadataCacheBytes   = 32 * 1024 * 1024 // fastcache rounds this up internally
)

// caches holds the repository's two read caches: a small LRU of decoded
// Snapshot summaries (bounded by entry count, since summaries are tiny
// fixed-shape values), and a byte-oriented fastcache of raw global/index
// metadata blobs (bounded by memory, since metadata blobs vary widely in
// size). Neither cache is required for correctness: every entry can
// always be refetched from the backend, so a cache miss is silent.
type caches struct {
	summaries *lru.Cache
	metadata  *fastcache.Cache
	metrics   *Metrics
}

func newCaches(m *Metrics) *caches {
	sc, err := lru.New(summaryCacheEntries)
	if err != nil {
		// lru.New only fails for a non-positive size, which
		// summaryCacheEntries never is.
		panic(err)
	}
	return &caches{
		summaries: sc,
		metadata:  fastcache.New(metadataCacheBytes),
		metrics:   m,
	}
}

func (c *caches) getSummary(id snapshot.ID) (snapshot.Snapshot, bool) {
	v, ok := c.summaries.Get(id)
	if !ok {
		c.recordMiss("summaries")
		var zero snapshot.Snapshot
		return zero, false
	}
	c.recordHit("summaries")
	return v.(snapshot.Snapshot), true
}

func (c *caches) putSummary(id snapshot.ID, s snapshot.Snapshot) {
	c.summaries.Add(id, s)
}

func (c *caches) dropSummary(id snapshot.ID) {
	c.summaries.Remove(id)
}

func (c *caches) getMetadataBlob(key string) ([]byte, bool) {
	v, ok := c.metadata.HasGet(nil, []byte(key))
	if !ok {
		c.recordMiss("metadata")
		return nil, false
	}
	c.recordHit("metadata")
	return v, true
}

func (c *caches) putMetadataBlob(key string, raw []byte) {
	c.metadata.Set([]byte(key), raw)
}

func (c *caches) dropMetadataBlob(key string) {
	c.metadata.Del([]byte(key))
}

func (c *caches) recordHit(name string) {
	if c.metrics != nil {
		c.metrics.CacheHits.WithLabelValues(name).Inc()
	}
}

func (c *caches) recordMiss(name string) {
	if c.metrics != nil {
		c.metrics.CacheMisses.WithLabelValues(name).Inc()
	}
}
