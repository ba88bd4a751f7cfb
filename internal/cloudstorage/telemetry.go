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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	openCount  metric.Int64Counter
	openErrors metric.Int64Counter
	readBytes  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/rowstream/internal/cloudstorage")

	var err error
	openCount, err = meter.Int64Counter(
		"rowstream.storage.open.count",
		metric.WithDescription("Number of objects opened for reading"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.count counter: %w", err))
	}

	openErrors, err = meter.Int64Counter(
		"rowstream.storage.open.errors",
		metric.WithDescription("Number of failed object opens"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create open.errors counter: %w", err))
	}

	readBytes, err = meter.Int64Counter(
		"rowstream.storage.read.bytes",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes read from opened objects"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create read.bytes counter: %w", err))
	}
}

func recordOpenError(ctx context.Context, scheme Scheme, bucket, reason string) {
	openErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scheme", string(scheme)),
		attribute.String("bucket", bucket),
		attribute.String("reason", reason),
	))
}

// countingBody records the bytes read from an object body when it is closed.
type countingBody struct {
	io.ReadCloser
	scheme Scheme
	bucket string
	n      int64
	closed bool
}

func newCountingBody(ctx context.Context, body io.ReadCloser, scheme Scheme, bucket string) *countingBody {
	openCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scheme", string(scheme)),
		attribute.String("bucket", bucket),
	))
	return &countingBody{ReadCloser: body, scheme: scheme, bucket: bucket}
}

func (b *countingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *countingBody) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	readBytes.Add(context.Background(), b.n, metric.WithAttributes(
		attribute.String("scheme", string(b.scheme)),
		attribute.String("bucket", b.bucket),
	))
	return b.ReadCloser.Close()
}
