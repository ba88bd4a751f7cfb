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
	"io/fs"
	"os"
	"path/filepath"
)

type fileOpener struct {
	base string
}

// NewFileOpener reads local files. With a non-empty base, bucket and key are
// joined under it; otherwise key is used as the path.
func NewFileOpener(base string) Opener {
	return &fileOpener{base: base}
}

func (o *fileOpener) path(bucket, key string) string {
	if o.base == "" && bucket == "" {
		return filepath.FromSlash(key)
	}
	return filepath.Join(o.base, bucket, filepath.FromSlash(key))
}

func (o *fileOpener) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	p := o.path(bucket, key)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			recordOpenError(ctx, SchemeFile, bucket, "not_found")
			return nil, 0, fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		recordOpenError(ctx, SchemeFile, bucket, "unknown")
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, 0, fmt.Errorf("%s is a directory", p)
	}
	return newCountingBody(ctx, f, SchemeFile, bucket), fi.Size(), nil
}
