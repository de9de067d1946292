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

package blobformat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blobsnap/reposit/blobformat"
	"github.com/blobsnap/reposit/blobstore"
	"github.com/blobsnap/reposit/blobstore/memblob"
)

type payload struct {
	Value string
	N     int
}

func testCodec(compress bool) blobformat.Codec[payload] {
	return blobformat.Codec[payload]{
		Name: "snapshot", Pattern: "snap-%s.dat",
		MinVersion: 1, CurrentVersion: 7, Compress: compress,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		back := memblob.NewBackend()
		codec := testCodec(compress)
		want := payload{Value: "hello", N: 42}

		require.NoError(t, codec.Write(back, "U1", want))
		got, err := codec.Read(back, "U1")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCodecNotFoundPropagates(t *testing.T) {
	back := memblob.NewBackend()
	codec := testCodec(false)
	_, err := codec.Read(back, "missing")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestCodecCorruptionDetected(t *testing.T) {
	back := memblob.NewBackend()
	codec := testCodec(false)
	require.NoError(t, codec.Write(back, "U1", payload{Value: "x"}))

	rc, err := back.Read(codec.Filename("U1"))
	require.NoError(t, err)
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 256)
	for {
		n, rerr := rc.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if rerr != nil {
			break
		}
	}
	rc.Close()

	corrupted := append([]byte(nil), buf...)
	corrupted[len(corrupted)-1] ^= 0xFF // flip a bit in the trailing CRC
	require.NoError(t, back.Write(codec.Filename("U1"), corrupted))

	_, err = codec.Read(back, "U1")
	require.ErrorIs(t, err, blobformat.ErrCorrupt)
}

func TestCodecUnsupportedVersion(t *testing.T) {
	back := memblob.NewBackend()
	writer := blobformat.Codec[payload]{Name: "snapshot", Pattern: "snap-%s.dat", MinVersion: 1, CurrentVersion: 99}
	require.NoError(t, writer.Write(back, "U1", payload{Value: "x"}))

	reader := blobformat.Codec[payload]{Name: "snapshot", Pattern: "snap-%s.dat", MinVersion: 1, CurrentVersion: 7}
	_, err := reader.Read(back, "U1")
	require.ErrorIs(t, err, blobformat.ErrUnsupportedVersion)
}

func TestLegacyHasNoWrite(t *testing.T) {
	back := memblob.NewBackend()
	legacy := blobformat.Legacy[payload]{Pattern: "snapshot-%s"}

	// Legacy blobs are produced by some other (older) writer; simulate
	// that by writing raw JSON directly to the backend.
	require.NoError(t, back.Write(legacy.Filename("old"), []byte(`{"Value":"x","N":3}`)))

	got, err := legacy.Read(back, "old")
	require.NoError(t, err)
	require.Equal(t, payload{Value: "x", N: 3}, got)

	require.NoError(t, legacy.Delete(back, "old"))
	_, err = legacy.Read(back, "old")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestIsLegacy(t *testing.T) {
	require.True(t, blobformat.IsLegacy(5, 6))
	require.False(t, blobformat.IsLegacy(6, 6))
	require.False(t, blobformat.IsLegacy(7, 6))
}
