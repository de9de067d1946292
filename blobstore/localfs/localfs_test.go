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

package localfs_test

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/blobstore/localfs"
)

func TestWriteReadDeleteRoundTrip(t *testing.T) {
	root := t.TempDir()
	b, err := localfs.New(root)
	require.NoError(t, err)

	require.NoError(t, b.Write("index", []byte("hello")))
	rc, err := b.Read("index")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "hello", string(data))

	ok, err := b.Exists("index")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Delete("index"))
	require.NoError(t, b.Delete("index")) // idempotent

	_, err = b.Read("index")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	root := t.TempDir()
	b, err := localfs.New(root)
	require.NoError(t, err)
	require.NoError(t, b.Write("snap-U1.dat", []byte("x")))

	entries, err := b.List("")
	require.NoError(t, err)
	require.Equal(t, []string{"snap-U1.dat"}, entries)
}

func TestContainerNesting(t *testing.T) {
	root := t.TempDir()
	b, err := localfs.New(root)
	require.NoError(t, err)

	sub := b.Container("indices/idx-a")
	require.NoError(t, sub.Write("meta-U1.dat", []byte("x")))

	_, err = b.Read(filepath.Join("indices", "idx-a", "meta-U1.dat"))
	require.NoError(t, err)
}

func TestMoveAcrossNames(t *testing.T) {
	root := t.TempDir()
	b, err := localfs.New(root)
	require.NoError(t, err)
	require.NoError(t, b.Write("src", []byte("x")))
	require.NoError(t, b.Move("src", "dst"))

	_, err = b.Read("src")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	rc, err := b.Read("dst")
	require.NoError(t, err)
	rc.Close()
}

func TestFreeBytes(t *testing.T) {
	root := t.TempDir()
	b, err := localfs.New(root)
	require.NoError(t, err)

	free, err := b.FreeBytes()
	require.NoError(t, err)
	require.Positive(t, free)
}
