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

package snapshot_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobsnap/reposit/snapshot"
)

func TestBlobIDPrefersUUID(t *testing.T) {
	id := snapshot.ID{Name: "s1", UUID: "U1"}
	require.Equal(t, "U1", id.BlobID())
	require.False(t, id.IsLegacy())
}

func TestBlobIDFallsBackToNameForLegacy(t *testing.T) {
	cases := []snapshot.ID{
		{Name: "s1", UUID: ""},
		{Name: "s1", UUID: snapshot.UnassignedUUID},
	}
	for _, id := range cases {
		require.Equal(t, "s1", id.BlobID())
		require.True(t, id.IsLegacy())
	}
}

func TestSnapshotIDRoundTrip(t *testing.T) {
	s := snapshot.Snapshot{Name: "s1", UUID: "U1"}
	require.Equal(t, snapshot.ID{Name: "s1", UUID: "U1"}, s.ID())
}

func TestIDEqualityIsByBothFields(t *testing.T) {
	a := snapshot.ID{Name: "s1", UUID: "U1"}
	b := snapshot.ID{Name: "s1", UUID: "U2"}
	require.NotEqual(t, a, b)
	require.Equal(t, a, snapshot.ID{Name: "s1", UUID: "U1"})
}
