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

// Package azureblob implements blobstore.Backend over an Azure Blob
// Storage container. Like S3, Azure has no cross-blob rename, so Move is
// a server-side StartCopyFromURL followed by deleting the source.
package azureblob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/blobsnap/reposit/blobstore"
)

// Backend is a container rooted at prefix within an Azure container URL.
type Backend struct {
	containerURL azblob.ContainerURL
	prefix       string
}

// New builds a Backend against an already-constructed azblob.ContainerURL
// (the caller is responsible for credentials and pipeline options, which
// vary by deployment).
func New(containerURL azblob.ContainerURL) *Backend {
	return &Backend{containerURL: containerURL}
}

func join(prefix, name string) string {
	name = strings.Trim(name, "/")
	if prefix == "" {
		return name
	}
	if name == "" {
		return prefix
	}
	return prefix + "/" + name
}

func (b *Backend) Container(path string) blobstore.Backend {
	return &Backend{containerURL: b.containerURL, prefix: join(b.prefix, path)}
}

func (b *Backend) blobURL(name string) azblob.BlockBlobURL {
	return b.containerURL.NewBlockBlobURL(join(b.prefix, name))
}

func isNotFound(err error) bool {
	if serr, ok := err.(azblob.StorageError); ok {
		return serr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}

func (b *Backend) Exists(name string) (bool, error) {
	ctx := context.Background()
	_, err := b.blobURL(name).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (b *Backend) Read(name string) (io.ReadCloser, error) {
	ctx := context.Background()
	resp, err := b.blobURL(name).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if isNotFound(err) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return resp.Body(azblob.RetryReaderOptions{}), nil
}

func (b *Backend) Write(name string, data []byte) error {
	ctx := context.Background()
	_, err := b.blobURL(name).Upload(ctx, bytes.NewReader(data), azblob.BlobHTTPHeaders{}, azblob.Metadata{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	return err
}

func (b *Backend) Delete(name string) error {
	ctx := context.Background()
	_, err := b.blobURL(name).Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{})
	if isNotFound(err) {
		return nil
	}
	return err
}

func (b *Backend) List(prefix string) ([]string, error) {
	ctx := context.Background()
	full := join(b.prefix, prefix)
	if prefix == "" && b.prefix != "" {
		full = b.prefix + "/"
	}
	var names []string
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := b.containerURL.ListBlobsHierarchySegment(ctx, marker, "/", azblob.ListBlobsSegmentOptions{Prefix: full})
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Segment.BlobItems {
			rel := item.Name
			if b.prefix != "" {
				rel = strings.TrimPrefix(rel, b.prefix+"/")
			}
			names = append(names, rel)
		}
		marker = resp.NextMarker
	}
	return names, nil
}

func (b *Backend) Move(src, dst string) error {
	ctx := context.Background()
	srcURL := b.blobURL(src).URL()
	_, err := b.blobURL(dst).StartCopyFromURL(ctx, srcURL, azblob.Metadata{}, azblob.ModifiedAccessConditions{}, azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil)
	if isNotFound(err) {
		return blobstore.ErrNotFound
	}
	if err != nil {
		return err
	}
	// Poll briefly for the server-side copy to land before removing the
	// source; Azure copies of small metadata blobs complete well within
	// this window in practice.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		props, err := b.blobURL(dst).GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
		if err == nil && props.CopyStatus() == azblob.CopyStatusSuccess {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	return b.Delete(src)
}

func (b *Backend) DeleteContainer(path string) error {
	ctx := context.Background()
	full := join(b.prefix, path)
	if full != "" {
		full += "/"
	}
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := b.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{Prefix: full})
		if err != nil {
			return err
		}
		for _, item := range resp.Segment.BlobItems {
			if _, err := b.containerURL.NewBlockBlobURL(item.Name).Delete(ctx, azblob.DeleteSnapshotsOptionNone, azblob.BlobAccessConditions{}); err != nil && !isNotFound(err) {
				return err
			}
		}
		marker = resp.NextMarker
	}
	return nil
}
