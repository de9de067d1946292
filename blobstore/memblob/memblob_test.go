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

package memblob_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/blobstore/memblob"
)

func TestReadWriteDelete(t *testing.T) {
	b := memblob.NewBackend()
	require.NoError(t, b.Write("a", []byte("hello")))

	rc, err := b.Read("a")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	require.NoError(t, rc.Close())

	ok, err := b.Exists("a")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, b.Delete("a"))
	require.NoError(t, b.Delete("a")) // idempotent

	_, err = b.Read("a")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestContainerIsolation(t *testing.T) {
	b := memblob.NewBackend()
	sub := b.Container("indices/idx-a")
	require.NoError(t, sub.Write("meta-U1.dat", []byte("x")))

	_, err := b.Read("meta-U1.dat")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	rc, err := sub.Read("meta-U1.dat")
	require.NoError(t, err)
	rc.Close()
}

func TestMoveAndDeleteContainer(t *testing.T) {
	b := memblob.NewBackend()
	require.NoError(t, b.Write("src", []byte("x")))
	require.NoError(t, b.Move("src", "dst"))

	_, err := b.Read("src")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	rc, err := b.Read("dst")
	require.NoError(t, err)
	rc.Close()

	sub := b.Container("tests-seed")
	require.NoError(t, sub.Write("master.dat", []byte("tok")))
	require.NoError(t, b.DeleteContainer("tests-seed"))
	_, err = sub.Read("master.dat")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestFaultInjection(t *testing.T) {
	store := memblob.New()
	b := memblob.Wrap(store)
	boom := errors.New("boom")
	store.Inject("write", "cursed", boom)

	err := b.Write("cursed", []byte("x"))
	require.ErrorIs(t, err, boom)

	// The fault fires once; the retry succeeds.
	require.NoError(t, b.Write("cursed", []byte("x")))
}
