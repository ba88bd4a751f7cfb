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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/rowstream/internal/awsclient"
)

type s3Opener struct {
	client *awsclient.S3Client
}

// NewS3Opener reads objects with GetObject.
func NewS3Opener(client *awsclient.S3Client) Opener {
	return &s3Opener{client: client}
}

func s3ErrorIs404(err error) bool {
	var noKey *types.NoSuchKey
	var noBucket *types.NoSuchBucket
	return errors.As(err, &noKey) || errors.As(err, &noBucket)
}

func (o *s3Opener) Open(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	ctx, span := o.client.Tracer.Start(ctx, "cloudstorage.s3Open",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	out, err := o.client.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "get object failed")
		if s3ErrorIs404(err) {
			recordOpenError(ctx, SchemeS3, bucket, "not_found")
			return nil, 0, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}
		recordOpenError(ctx, SchemeS3, bucket, "unknown")
		return nil, 0, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	span.SetAttributes(attribute.Int64("size", size))
	return newCountingBody(ctx, out.Body, SchemeS3, bucket), size, nil
}
