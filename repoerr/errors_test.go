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

package repoerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobsnap/reposit/repoerr"
)

func TestEnvelopesUnwrapToCause(t *testing.T) {
	require.ErrorIs(t, repoerr.NewRepository("repo1", repoerr.Missing), repoerr.Missing)
	require.ErrorIs(t, repoerr.NewSnapshotCreation("s1", "U1", repoerr.NameConflict), repoerr.NameConflict)
	require.ErrorIs(t, repoerr.NewSnapshotError("s1", "U1", repoerr.Corrupt), repoerr.Corrupt)
	require.ErrorIs(t, repoerr.NewVerification("tests-x/master.dat", repoerr.Missing), repoerr.Missing)
}

func TestNewWrappersReturnNilForNilCause(t *testing.T) {
	require.NoError(t, repoerr.NewRepository("repo1", nil))
	require.NoError(t, repoerr.NewSnapshotCreation("s1", "U1", nil))
	require.NoError(t, repoerr.NewSnapshotError("s1", "U1", nil))
	require.NoError(t, repoerr.NewVerification("path", nil))
}

func TestDistinctKindsAreNotEqual(t *testing.T) {
	require.False(t, errors.Is(repoerr.Missing, repoerr.Corrupt))
	require.False(t, errors.Is(repoerr.ReadOnly, repoerr.NameConflict))
}
