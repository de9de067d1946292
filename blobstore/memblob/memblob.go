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

// Package memblob implements an in-memory blobstore.Backend, modelled on
// ethdb/memorydb's key-value store. It exists for tests: the repository
// test suite uses it as a fast stand-in for a real object store, with
// optional fault injection for crash-recovery scenarios.
package memblob

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/blobsnap/reposit/blobstore"
)

// Fault lets tests make a specific call to a specific blob fail, to drive
// the partial-failure scenarios (S3, S5, properties 5-7).
type Fault struct {
	Op   string // "write", "delete", "read", "exists", "move"
	Name string
	Err  error
}

// Store is the shared backing map for a tree of memblob containers. All
// containers produced by Container() off the same root share one Store,
// exactly as sibling directories in a real backend share one filesystem.
type Store struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	faults map[string]error
}

// New creates a fresh, empty store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Inject arms a fault: the next call matching op+fullPath fails with err
// and is then disarmed.
func (s *Store) Inject(op, fullPath string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		s.faults = make(map[string]error)
	}
	s.faults[op+":"+fullPath] = err
}

func (s *Store) takeFault(op, fullPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.faults == nil {
		return nil
	}
	key := op + ":" + fullPath
	if err, ok := s.faults[key]; ok {
		delete(s.faults, key)
		return err
	}
	return nil
}

// Backend is a container rooted at prefix within a shared Store.
type Backend struct {
	store  *Store
	prefix string // normalized, no trailing slash, may be ""
}

// NewBackend returns the root container of a fresh store.
func NewBackend() *Backend {
	return &Backend{store: New()}
}

// Wrap returns the root container over an existing store, letting tests
// share faults/state across independently-constructed repositories.
func Wrap(s *Store) *Backend {
	return &Backend{store: s}
}

func (b *Backend) join(name string) string {
	if b.prefix == "" {
		return name
	}
	return b.prefix + "/" + name
}

func (b *Backend) Container(path string) blobstore.Backend {
	return &Backend{store: b.store, prefix: b.join(strings.Trim(path, "/"))}
}

func (b *Backend) Exists(name string) (bool, error) {
	full := b.join(name)
	if err := b.store.takeFault("exists", full); err != nil {
		return false, err
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	_, ok := b.store.blobs[full]
	return ok, nil
}

func (b *Backend) Read(name string) (io.ReadCloser, error) {
	full := b.join(name)
	if err := b.store.takeFault("read", full); err != nil {
		return nil, err
	}
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	data, ok := b.store.blobs[full]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return io.NopCloser(bytes.NewReader(cp)), nil
}

func (b *Backend) Write(name string, data []byte) error {
	full := b.join(name)
	if err := b.store.takeFault("write", full); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	b.store.blobs[full] = cp
	return nil
}

func (b *Backend) Delete(name string) error {
	full := b.join(name)
	if err := b.store.takeFault("delete", full); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	delete(b.store.blobs, full)
	return nil
}

func (b *Backend) List(prefix string) ([]string, error) {
	base := b.prefix
	full := b.join(prefix)
	b.store.mu.RLock()
	defer b.store.mu.RUnlock()
	var names []string
	for k := range b.store.blobs {
		if !strings.HasPrefix(k, full) {
			continue
		}
		rel := k
		if base != "" {
			rel = strings.TrimPrefix(k, base+"/")
		}
		if strings.Contains(rel, "/") {
			continue // only direct children, like a directory listing
		}
		names = append(names, rel)
	}
	sort.Strings(names)
	return names, nil
}

func (b *Backend) Move(src, dst string) error {
	fullSrc, fullDst := b.join(src), b.join(dst)
	if err := b.store.takeFault("move", fullSrc); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	data, ok := b.store.blobs[fullSrc]
	if !ok {
		return blobstore.ErrNotFound
	}
	b.store.blobs[fullDst] = data
	delete(b.store.blobs, fullSrc)
	return nil
}

func (b *Backend) DeleteContainer(path string) error {
	full := b.join(path)
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for k := range b.store.blobs {
		if k == full || strings.HasPrefix(k, full+"/") {
			delete(b.store.blobs, k)
		}
	}
	return nil
}

// Len reports how many blobs currently exist across the whole store,
// useful for assertions that deletion actually cleaned everything up.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
