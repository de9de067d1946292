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

// Package blobformat implements the two blob wire formats the repository
// writes metadata in: a checksummed, versioned "framed" codec for
// current writers, and an unframed "legacy" codec kept around for
// reading (and deleting) blobs left by older writers. The split mirrors
// the teacher's own two on-disk formats in core/rawdb/freezer_table.go
// (compressed vs. raw index/data files) generalized from a fixed binary
// record to an arbitrary self-describing payload.
package blobformat

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"

	"github.com/golang/snappy"

	"github.com/blobsnap/reposit/blobstore"
)

// magic is the fixed 4-byte header shared by every framed blob in the
// repository.
var magic = [4]byte{'R', 'S', 'R', '1'}

// Sentinel errors. Wrap with fmt.Errorf("...: %w", ErrX) at call sites
// that need to attach the blob id or repository name.
var (
	ErrCorrupt            = bfError("corrupt blob")
	ErrUnsupportedVersion = bfError("unsupported codec version")
)

type bfError string

func (e bfError) Error() string { return string(e) }

// Codec reads and writes one blob type T under a repository-relative
// filename pattern, e.g. "snap-%s.dat" or "meta-%s.dat".
type Codec[T any] struct {
	Name           string // one of "snapshot", "metadata", "index-metadata"
	Pattern        string // fmt pattern taking one %s, the blob id
	MinVersion     uint32
	CurrentVersion uint32
	Compress       bool
}

// Filename renders the blob's name for id (a snapshot uuid, or a
// snapshot name for legacy-sentinel-uuid entries).
func (c Codec[T]) Filename(id string) string {
	return sprintf(c.Pattern, id)
}

// Write encodes value as a framed blob and stores it under id via
// Codec.CurrentVersion. New writes must never use a version below the
// repository's legacy cutoff; callers pass CurrentVersion precisely so
// that invariant is structural, not checked.
func (c Codec[T]) Write(container blobstore.Backend, id string, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.Compress {
		payload = snappy.Encode(nil, payload)
	}
	var buf bytes.Buffer
	buf.Write(magic[:])

	body := &bytes.Buffer{}
	writeVString(body, c.Name)
	writeU32BE(body, c.CurrentVersion)
	body.Write(payload)

	crc := crc32.ChecksumIEEE(body.Bytes())
	buf.Write(body.Bytes())
	writeU32BE(&buf, crc)

	return container.Write(c.Filename(id), buf.Bytes())
}

// Read decodes a framed blob written by Write (or an earlier compatible
// version). blobstore.ErrNotFound and other backend read errors are
// returned unchanged; a blob that fails its frame, checksum, name or
// payload checks yields ErrCorrupt, and one outside the version range
// yields ErrUnsupportedVersion.
func (c Codec[T]) Read(container blobstore.Backend, id string) (T, error) {
	var zero T
	rc, err := container.Read(c.Filename(id))
	if err != nil {
		return zero, err // ErrNotFound propagates unchanged
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return zero, err
	}
	return c.decode(raw)
}

func (c Codec[T]) decode(raw []byte) (T, error) {
	var zero T
	if len(raw) < 4+4 {
		return zero, ErrCorrupt
	}
	if !bytes.Equal(raw[:4], magic[:]) {
		return zero, ErrCorrupt
	}
	body := raw[4 : len(raw)-4]
	wantCRC := binary.BigEndian.Uint32(raw[len(raw)-4:])
	if crc32.ChecksumIEEE(body) != wantCRC {
		return zero, ErrCorrupt
	}
	r := bytes.NewReader(body)
	name, err := readVString(r)
	if err != nil {
		return zero, ErrCorrupt
	}
	if name != c.Name {
		return zero, ErrCorrupt
	}
	version, err := readU32BE(r)
	if err != nil {
		return zero, ErrCorrupt
	}
	if version < c.MinVersion || version > c.CurrentVersion {
		return zero, ErrUnsupportedVersion
	}
	payload := make([]byte, r.Len())
	if _, err := io.ReadFull(r, payload); err != nil {
		return zero, ErrCorrupt
	}
	if c.Compress {
		decoded, err := snappy.Decode(nil, payload)
		if err != nil {
			return zero, ErrCorrupt
		}
		payload = decoded
	}
	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		return zero, ErrCorrupt
	}
	return value, nil
}

// Exists reports whether the framed blob for id is present, tolerating
// blobstore.ErrUnsupported from backends that cannot probe existence
// directly.
func (c Codec[T]) Exists(container blobstore.Backend, id string) (bool, error) {
	ok, err := container.Exists(c.Filename(id))
	if err == blobstore.ErrUnsupported {
		if _, rerr := container.Read(c.Filename(id)); rerr != nil {
			if rerr == blobstore.ErrNotFound {
				return false, nil
			}
			return false, rerr
		}
		return true, nil
	}
	return ok, err
}

// Delete removes the framed blob for id. Deleting a missing blob is not
// an error.
func (c Codec[T]) Delete(container blobstore.Backend, id string) error {
	return container.Delete(c.Filename(id))
}

func writeVString(w *bytes.Buffer, s string) {
	writeU32BE(w, uint32(len(s)))
	w.WriteString(s)
}

func readVString(r *bytes.Reader) (string, error) {
	n, err := readU32BE(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU32BE(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func readU32BE(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func sprintf(pattern, id string) string {
	// Deliberately not fmt.Sprintf to keep this package free of the
	// "%!s(MISSING)" failure mode if a pattern is ever misconfigured
	// with the wrong number of verbs; blob filenames are load-bearing.
	out := make([]byte, 0, len(pattern)+len(id))
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '%' && i+1 < len(pattern) && pattern[i+1] == 's' {
			out = append(out, id...)
			i++
			continue
		}
		out = append(out, pattern[i])
	}
	return string(out)
}
