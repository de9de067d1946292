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

// IsLegacy reports whether a snapshot recorded with the given version
// predates the repository's legacy cutoff and must therefore be read
// (and deleted) through the Legacy codec rather than the framed one.
// It never decides to write legacy, only to read/delete it.
func IsLegacy(version, legacyCutoff uint32) bool {
	return version < legacyCutoff
}
