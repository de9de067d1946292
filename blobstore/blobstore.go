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

// Package blobstore defines the abstract key/value blob backend contract
// that the snapshot repository is built on. Concrete backends (local
// filesystem, S3, Azure Blob Storage, or an in-memory fake for tests) live
// in their own sub-packages and all satisfy Backend.
package blobstore

import (
	"errors"
	"io"
)

// Sentinel errors returned by Backend implementations. Callers use
// errors.Is against these, never string matching.
var (
	// ErrNotFound is returned by Read when the requested blob does not
	// exist in the container, and by Move when the source does not exist.
	// Exists reports a missing blob as false, not as an error.
	ErrNotFound = errors.New("blobstore: blob not found")

	// ErrUnsupported is returned by operations a backend cannot perform
	// (e.g. Exists on a write-once object store, Move on a backend that
	// cannot move blobs, List on a backend with no prefix enumeration).
	// Repository.Snapshots and the codecs' Exists fall back to Read when
	// Exists is unsupported; the verification protocol reports an
	// unsupported Move as a verification failure.
	ErrUnsupported = errors.New("blobstore: operation unsupported")
)

// Backend is a hierarchy of containers addressed by slash-separated path
// segments, each holding named byte blobs. Implementations must be safe
// for concurrent use from multiple goroutines operating on distinct blob
// names; concurrent writes to the same name have unspecified winner
// semantics (the caller is expected to serialize those).
type Backend interface {
	// Container returns a Backend rooted at path relative to this one.
	// Implementations may create the sub-path lazily on first write.
	Container(path string) Backend

	// Exists reports whether name is present in this container. May fail
	// with ErrUnsupported on backends that cannot probe existence cheaply
	// (e.g. some object stores); callers must fall back to Read in that
	// case rather than treating it as fatal.
	Exists(name string) (bool, error)

	// Read opens the blob for streaming read. Returns ErrNotFound if the
	// blob does not exist. The caller must Close the returned reader.
	Read(name string) (io.ReadCloser, error)

	// Write stores data under name, atomically with respect to readers:
	// a concurrent Read observes either the previous contents, the new
	// contents, or ErrNotFound, never a partial write.
	Write(name string, data []byte) error

	// Delete removes name. Deleting a name that does not exist is not an
	// error.
	Delete(name string) error

	// List enumerates blob names directly under this container matching
	// prefix (which may be empty for "all"). Backends that cannot support
	// enumeration return ErrUnsupported.
	List(prefix string) ([]string, error)

	// Move renames src to dst within this container, used by backends
	// that cannot overwrite atomically (write-temp, then Move) and by the
	// verification protocol. Backends that cannot move a blob at all
	// return ErrUnsupported; the S3 and Azure backends, which have no
	// native rename, move by copying and then deleting the source.
	Move(src, dst string) error

	// DeleteContainer recursively removes everything under path, used by
	// the verification protocol to clean up its scratch space.
	DeleteContainer(path string) error
}
