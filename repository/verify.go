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
	"encoding/base64"
	"errors"

	"github.com/pborman/uuid"

	"github.com/blobsnap/reposit/layout"
	"github.com/blobsnap/reposit/repoerr"
)

// StartVerification writes a known blob under a random seed-addressed
// path and returns the seed as a token, so a node-side verifier can read
// it back and confirm connectivity and write access. A read-only
// repository has nothing to verify from the writer side and returns an
// empty token.
func (r *Repository) StartVerification() (string, error) {
	if r.cfg.ReadOnly {
		return "", nil
	}

	if free, err := r.freeBytesHint(); err == nil && free < minVerificationFreeBytes {
		r.log.Warn("low free space before verification write", "free_bytes", free)
	}

	seed := base64.RawURLEncoding.EncodeToString(uuid.NewRandom())
	tempPath := layout.VerificationBlob(seed) + "-temp"
	finalPath := layout.VerificationBlob(seed)

	if err := r.backend.Write(tempPath, []byte(seed)); err != nil {
		return "", repoerr.NewVerification(tempPath, err)
	}
	if err := r.backend.Move(tempPath, finalPath); err != nil {
		return "", repoerr.NewVerification(finalPath, err)
	}
	return seed, nil
}

// EndVerification removes the scratch container a prior StartVerification
// created. Calling it on a read-only repository is a programming error
// the caller must avoid, since StartVerification never hands out a
// non-empty token on one.
func (r *Repository) EndVerification(token string) error {
	if r.cfg.ReadOnly {
		return repoerr.ReadOnly
	}
	if token == "" {
		return nil
	}
	if err := r.backend.DeleteContainer(layout.VerificationContainer(token)); err != nil {
		return repoerr.NewVerification(layout.VerificationContainer(token), err)
	}
	return nil
}

const minVerificationFreeBytes = 64 * 1024 * 1024

// freeBytesHint reports free space at the repository's base path when
// the bound backend supports it (only localfs does); other backends
// return an error that callers treat as "unknown, don't warn".
func (r *Repository) freeBytesHint() (uint64, error) {
	fb, ok := r.backend.(interface{ FreeBytes() (uint64, error) })
	if !ok {
		return 0, errNoFreeBytesSupport
	}
	return fb.FreeBytes()
}

var errNoFreeBytesSupport = errors.New("backend does not report free space")
