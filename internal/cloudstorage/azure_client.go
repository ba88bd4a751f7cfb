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
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/rowstream/internal/azureclient"
)

type azureOpener struct {
	client *azureclient.BlobClient
}

// NewAzureOpener reads blobs with DownloadStream; the bucket is the container.
func NewAzureOpener(client *azureclient.BlobClient) Opener {
	return &azureOpener{client: client}
}

func (o *azureOpener) Open(ctx context.Context, container, blobName string) (io.ReadCloser, int64, error) {
	ctx, span := o.client.Tracer.Start(ctx, "cloudstorage.azureOpen",
		trace.WithAttributes(
			attribute.String("bucket", container),
			attribute.String("key", blobName),
		),
	)
	defer span.End()

	resp, err := o.client.Client.DownloadStream(ctx, container, blobName, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "download stream failed")
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			recordOpenError(ctx, SchemeAzure, container, "not_found")
			return nil, 0, fmt.Errorf("%w: azblob://%s/%s", ErrObjectNotFound, container, blobName)
		}
		recordOpenError(ctx, SchemeAzure, container, "unknown")
		return nil, 0, fmt.Errorf("download blob %s/%s: %w", container, blobName, err)
	}

	size := int64(-1)
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	span.SetAttributes(attribute.Int64("size", size))
	return newCountingBody(ctx, resp.Body, SchemeAzure, container), size, nil
}
