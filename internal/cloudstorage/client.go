// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cloudstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Opener streams objects out of one storage backend.
type Opener interface {
	// Open returns the object body and its size in bytes, or -1 when the
	// backend does not report one. The caller closes the body.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error)
}

// ErrObjectNotFound is wrapped by Open when the object does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Scheme identifies a storage backend in a URI.
type Scheme string

const (
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "azblob"
	SchemeFile  Scheme = "file"
)

// Location is a parsed object URI.
type Location struct {
	Scheme Scheme
	Bucket string
	Key    string
}

func (l Location) String() string {
	if l.Scheme == SchemeFile {
		return l.Key
	}
	return string(l.Scheme) + "://" + l.Bucket + "/" + l.Key
}

// ParseURI accepts s3://bucket/key, gs://bucket/key, azblob://container/blob,
// file:///path and plain filesystem paths.
func ParseURI(uri string) (Location, error) {
	if uri == "" {
		return Location{}, fmt.Errorf("empty object URI")
	}
	if !strings.Contains(uri, "://") {
		return Location{Scheme: SchemeFile, Key: uri}, nil
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Location{}, fmt.Errorf("parse object URI %q: %w", uri, err)
	}

	var scheme Scheme
	switch strings.ToLower(u.Scheme) {
	case "s3", "s3a":
		scheme = SchemeS3
	case "gs", "gcs":
		scheme = SchemeGCS
	case "azblob", "az", "abfs":
		scheme = SchemeAzure
	case "file":
		if u.Host != "" && u.Host != "localhost" {
			return Location{}, fmt.Errorf("file URI %q must not name a host", uri)
		}
		return Location{Scheme: SchemeFile, Key: u.Path}, nil
	default:
		return Location{}, fmt.Errorf("unsupported object URI scheme %q", u.Scheme)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("object URI %q needs both a bucket and a key", uri)
	}
	return Location{Scheme: scheme, Bucket: u.Host, Key: key}, nil
}
