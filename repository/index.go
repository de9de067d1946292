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
	"encoding/json"
	"io"

	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/layout"
	"github.com/blobsnap/reposit/snapshot"
)

// indexDoc is the wire shape of the index blob: an object with a
// "snapshots" array of {name,uuid} pairs.
type indexDoc struct {
	Snapshots []wireEntry `json:"snapshots"`
}

// wireEntry additionally accepts decoding a bare JSON string, the
// pre-5.0 name-only format, via a custom UnmarshalJSON.
type wireEntry struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
}

func (e *wireEntry) UnmarshalJSON(data []byte) error {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		e.Name = bare
		e.UUID = snapshot.UnassignedUUID
		return nil
	}
	type alias wireEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = wireEntry(a)
	return nil
}

// snapshotList is the index blob decoded into an order-preserving,
// deduplicated-by-name sequence.
type snapshotList struct {
	ids   []snapshot.ID
	byName map[string]int // name -> index into ids
}

func newSnapshotList() *snapshotList {
	return &snapshotList{byName: make(map[string]int)}
}

func (l *snapshotList) add(id snapshot.ID) {
	if i, ok := l.byName[id.Name]; ok {
		l.ids[i] = id
		return
	}
	l.byName[id.Name] = len(l.ids)
	l.ids = append(l.ids, id)
}

func (l *snapshotList) get(name string) (snapshot.ID, bool) {
	i, ok := l.byName[name]
	if !ok {
		var zero snapshot.ID
		return zero, false
	}
	return l.ids[i], true
}

func (l *snapshotList) remove(name string) {
	i, ok := l.byName[name]
	if !ok {
		return
	}
	l.ids = append(l.ids[:i], l.ids[i+1:]...)
	delete(l.byName, name)
	for n, idx := range l.byName {
		if idx > i {
			l.byName[n] = idx - 1
		}
	}
}

// readSnapshotList loads the current index blob, tolerating a backend
// that cannot probe existence and tolerating a missing or corrupt blob
// by returning an empty list instead of failing: a transient index read
// error must never make listing unavailable. Concurrent callers are
// collapsed onto a single backend read via singleflight.
func (r *Repository) readSnapshotList() *snapshotList {
	v, _, _ := r.indexGroup.Do("index", func() (interface{}, error) {
		return r.readSnapshotListUncached(), nil
	})
	return v.(*snapshotList)
}

func (r *Repository) readSnapshotListUncached() *snapshotList {
	out := newSnapshotList()

	exists, err := r.backend.Exists(layout.IndexBlobName)
	if err != nil && err != blobstore.ErrUnsupported {
		r.log.Warn("failed probing snapshot index existence", "err", err)
		return out
	}
	if err == nil && !exists {
		return out
	}

	rc, err := r.backend.Read(layout.IndexBlobName)
	if err != nil {
		if err != blobstore.ErrNotFound {
			r.log.Warn("failed reading snapshot index", "err", err)
		}
		return out
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		r.log.Warn("failed draining snapshot index", "err", err)
		return out
	}

	var doc indexDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		r.log.Warn("failed parsing snapshot index, treating as empty", "err", err)
		return out
	}
	for _, e := range doc.Snapshots {
		out.add(snapshot.ID{Name: e.Name, UUID: e.UUID})
	}
	return out
}

// writeSnapshotList serializes l in its current order and replaces the
// index blob. Callers hold the single-writer precondition; no
// compare-and-swap is performed.
func (r *Repository) writeSnapshotList(l *snapshotList) error {
	doc := indexDoc{Snapshots: make([]wireEntry, len(l.ids))}
	for i, id := range l.ids {
		doc.Snapshots[i] = wireEntry{Name: id.Name, UUID: id.UUID}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	if err := r.backend.Delete(layout.IndexBlobName); err != nil {
		r.log.Warn("failed clearing prior snapshot index before rewrite", "err", err)
	}
	if err := r.backend.Write(layout.IndexBlobName, raw); err != nil {
		return err
	}
	r.indexGroup.Forget("index")
	return nil
}
