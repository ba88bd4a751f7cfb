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

	"cloud.google.com/go/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/rowstream/internal/gcpclient"
)

type gcsOpener struct {
	client *gcpclient.StorageClient
}

// NewGCSOpener reads objects through the GCS JSON API. Objects stored with
// Content-Encoding: gzip are returned compressed, so the caller's codec
// setting stays correct.
func NewGCSOpener(client *gcpclient.StorageClient) Opener {
	return &gcsOpener{client: client}
}

func (o *gcsOpener) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	ctx, span := o.client.Tracer.Start(ctx, "cloudstorage.gcsOpen",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	r, err := o.client.Client.Bucket(bucket).Object(key).ReadCompressed(true).NewReader(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "new reader failed")
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			recordOpenError(ctx, SchemeGCS, bucket, "not_found")
			return nil, 0, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, key)
		}
		recordOpenError(ctx, SchemeGCS, bucket, "unknown")
		return nil, 0, fmt.Errorf("open gs://%s/%s: %w", bucket, key, err)
	}

	size := r.Attrs.Size
	span.SetAttributes(attribute.Int64("size", size))
	return newCountingBody(ctx, r, SchemeGCS, bucket), size, nil
}
