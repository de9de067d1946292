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

// Package s3 implements blobstore.Backend over an AWS S3 bucket. S3 has
// no rename primitive, so Move is a CopyObject followed by a
// DeleteObject of the source — the write-temp-then-move fallback for
// backends without atomic overwrite.
package s3

import (
	"bytes"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/blobsnap/reposit/blobstore"
)

// Backend is a container rooted at prefix within bucket.
type Backend struct {
	svc    *s3.S3
	bucket string
	prefix string // no leading slash, may be "", never has a trailing slash
}

// New creates a Backend over bucket using the given session, rooted at
// the bucket's top level.
func New(sess *session.Session, bucket string) *Backend {
	return &Backend{svc: s3.New(sess), bucket: bucket}
}

func (b *Backend) Container(path string) blobstore.Backend {
	return &Backend{svc: b.svc, bucket: b.bucket, prefix: join(b.prefix, path)}
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

func (b *Backend) key(name string) string {
	return join(b.prefix, name)
}

func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

func (b *Backend) Exists(name string) (bool, error) {
	_, err := b.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (b *Backend) Read(name string) (io.ReadCloser, error) {
	out, err := b.svc.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if isNotFound(err) {
		return nil, blobstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return out.Body, nil
}

func (b *Backend) Write(name string, data []byte) error {
	_, err := b.svc.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (b *Backend) Delete(name string) error {
	_, err := b.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(name)),
	})
	if isNotFound(err) {
		return nil
	}
	return err
}

func (b *Backend) List(prefix string) ([]string, error) {
	full := b.key(prefix)
	if prefix == "" && b.prefix != "" {
		full = b.prefix + "/"
	}
	var names []string
	err := b.svc.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket:    aws.String(b.bucket),
		Prefix:    aws.String(full),
		Delimiter: aws.String("/"),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			names = append(names, strings.TrimPrefix(aws.StringValue(obj.Key), b.prefix+"/"))
		}
		return true
	})
	return names, err
}

func (b *Backend) Move(src, dst string) error {
	source := b.bucket + "/" + b.key(src)
	_, err := b.svc.CopyObject(&s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(b.key(dst)),
	})
	if isNotFound(err) {
		return blobstore.ErrNotFound
	}
	if err != nil {
		return err
	}
	return b.Delete(src)
}

func (b *Backend) DeleteContainer(path string) error {
	full := b.key(path)
	if full != "" {
		full += "/"
	}
	var keys []*s3.ObjectIdentifier
	err := b.svc.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(full),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	_, err = b.svc.DeleteObjects(&s3.DeleteObjectsInput{
		Bucket: aws.String(b.bucket),
		Delete: &s3.Delete{Objects: keys},
	})
	return err
}
