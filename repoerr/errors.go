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

// Package repoerr defines the typed error taxonomy the repository layer
// returns, so callers can branch on errors.Is/As instead of string
// matching. Modelled on the teacher's layered error wrapping in
// core/rawdb and ethdb (e.g. leveldb's errors.ErrNotFound passed through
// unchanged, repair errors wrapped with context).
package repoerr

import "fmt"

// ReadOnly is returned by any mutating operation on a read-only
// repository.
var ReadOnly = kind("repository is read-only")

// NameConflict is returned when creating a snapshot whose name already
// exists in the index.
var NameConflict = kind("snapshot name already exists")

// Missing is returned when a requested snapshot, index metadata, or
// blob is absent.
var Missing = kind("snapshot not found")

// Corrupt is returned when a blob fails its checksum or cannot be
// decoded.
var Corrupt = kind("repository blob corrupt")

// UnsupportedVersion is returned when a blob's codec version falls
// outside the range this binary knows how to read.
var UnsupportedVersion = kind("unsupported snapshot version")

// kind is a trivial string-based error, distinguishable by identity
// (==, or errors.Is) rather than by message text.
type kind string

func (k kind) Error() string { return string(k) }

// Repository wraps a failure with the repository name it occurred in.
// It is the envelope error for composite, multi-blob operations such as
// index rewrites.
type Repository struct {
	Name  string
	Cause error
}

func (e *Repository) Error() string {
	return fmt.Sprintf("repository %q: %v", e.Name, e.Cause)
}

func (e *Repository) Unwrap() error { return e.Cause }

// NewRepository wraps cause as a Repository error, or returns nil if
// cause is nil.
func NewRepository(name string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Repository{Name: name, Cause: cause}
}

// Snapshot wraps a failure scoped to one snapshot id. Stage distinguishes
// where in the snapshot's lifecycle the failure occurred ("creation" or
// "read"), matching the two envelope kinds named in the error taxonomy.
type Snapshot struct {
	Stage string
	Name  string
	UUID  string
	Cause error
}

func (e *Snapshot) Error() string {
	if e.UUID != "" {
		return fmt.Sprintf("snapshot %s %q (%s): %v", e.Stage, e.Name, e.UUID, e.Cause)
	}
	return fmt.Sprintf("snapshot %s %q: %v", e.Stage, e.Name, e.Cause)
}

func (e *Snapshot) Unwrap() error { return e.Cause }

// NewSnapshotCreation wraps cause as the error surfaced from Initialize,
// or returns nil if cause is nil.
func NewSnapshotCreation(name, uuid string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Snapshot{Stage: "creation", Name: name, UUID: uuid, Cause: cause}
}

// NewSnapshotError wraps cause as the error surfaced from a read path
// (ReadSnapshot, ReadSnapshotMetadata), or returns nil if cause is nil.
func NewSnapshotError(name, uuid string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Snapshot{Stage: "read", Name: name, UUID: uuid, Cause: cause}
}

// Verification wraps a failure detected during the verification
// protocol, naming the path it occurred at.
type Verification struct {
	Path  string
	Cause error
}

func (e *Verification) Error() string {
	return fmt.Sprintf("verification failed (%s): %v", e.Path, e.Cause)
}

func (e *Verification) Unwrap() error { return e.Cause }

// NewVerification wraps cause as a Verification error, or returns nil if
// cause is nil.
func NewVerification(path string, cause error) error {
	if cause == nil {
		return nil
	}
	return &Verification{Path: path, Cause: cause}
}
