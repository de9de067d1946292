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

package azureblob

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJoin(t *testing.T) {
	require.Equal(t, "a/b", join("a", "b"))
	require.Equal(t, "b", join("", "b"))
	require.Equal(t, "a", join("a", ""))
	require.Equal(t, "", join("", ""))
	require.Equal(t, "a/b", join("a", "/b/"))
}

func TestContainerPrefixNesting(t *testing.T) {
	b := &Backend{prefix: "snaps"}
	sub := b.Container("indices/idx-a").(*Backend)
	require.Equal(t, "snaps/indices/idx-a", sub.prefix)
}

// isNotFound only recognizes azblob.StorageError, which the SDK builds
// from a parsed HTTP response and isn't practical to construct directly;
// this confirms ordinary errors are never misclassified as "not found".
func TestIsNotFoundRejectsOrdinaryErrors(t *testing.T) {
	require.False(t, isNotFound(errors.New("boom")))
	require.False(t, isNotFound(nil))
}
