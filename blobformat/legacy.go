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

package blobformat

import (
	"encoding/json"
	"io"

	"github.com/blobsnap/reposit/blobstore"
)

// Legacy reads and deletes blobs written by pre-framed-codec writers.
// It has no Write method: the legacy format must never be used for new
// writes, so the type simply can't do it.
type Legacy[T any] struct {
	Pattern string // e.g. "snapshot-%s" or "metadata-%s", no .dat suffix
}

func (l Legacy[T]) Filename(id string) string {
	return sprintf(l.Pattern, id)
}

func (l Legacy[T]) Read(container blobstore.Backend, id string) (T, error) {
	var zero T
	rc, err := container.Read(l.Filename(id))
	if err != nil {
		return zero, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return zero, err
	}
	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, ErrCorrupt
	}
	return value, nil
}

func (l Legacy[T]) Exists(container blobstore.Backend, id string) (bool, error) {
	ok, err := container.Exists(l.Filename(id))
	if err == blobstore.ErrUnsupported {
		if _, rerr := container.Read(l.Filename(id)); rerr != nil {
			if rerr == blobstore.ErrNotFound {
				return false, nil
			}
			return false, rerr
		}
		return true, nil
	}
	return ok, err
}

func (l Legacy[T]) Delete(container blobstore.Backend, id string) error {
	return container.Delete(l.Filename(id))
}
