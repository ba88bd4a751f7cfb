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

package streamreader

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	rowsInCounter          otelmetric.Int64Counter
	rowsOutCounter         otelmetric.Int64Counter
	rowsDroppedCounter     otelmetric.Int64Counter
	batchesFlushedCounter  otelmetric.Int64Counter
	compressedBytesCounter otelmetric.Int64Counter
	inflatedBytesCounter   otelmetric.Int64Counter
	spillCounter           otelmetric.Int64Counter
	spillBytesCounter      otelmetric.Int64Counter

	tracer = otel.Tracer("github.com/cardinalhq/rowstream/internal/streamreader")
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/rowstream/internal/streamreader")

	var err error
	rowsInCounter, err = meter.Int64Counter(
		"rowstream.reader.rows.in",
		otelmetric.WithDescription("Number of rows produced by the tokenizer or table projection"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.in counter: %w", err))
	}

	rowsOutCounter, err = meter.Int64Counter(
		"rowstream.reader.rows.out",
		otelmetric.WithDescription("Number of data rows returned to callers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.out counter: %w", err))
	}

	rowsDroppedCounter, err = meter.Int64Counter(
		"rowstream.reader.rows.dropped",
		otelmetric.WithDescription("Number of malformed rows skipped when skip_invalid_rows is enabled"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.dropped counter: %w", err))
	}

	batchesFlushedCounter, err = meter.Int64Counter(
		"rowstream.reader.batches.flushed",
		otelmetric.WithDescription("Number of record batches handed to the tokenizer"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batches.flushed counter: %w", err))
	}

	compressedBytesCounter, err = meter.Int64Counter(
		"rowstream.decompress.bytes.in",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Compressed bytes consumed from sources"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decompress.bytes.in counter: %w", err))
	}

	inflatedBytesCounter, err = meter.Int64Counter(
		"rowstream.decompress.bytes.out",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Decompressed bytes produced by codecs"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decompress.bytes.out counter: %w", err))
	}

	spillCounter, err = meter.Int64Counter(
		"rowstream.spill.count",
		otelmetric.WithDescription("Number of table buffers that spilled to disk"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create spill.count counter: %w", err))
	}

	spillBytesCounter, err = meter.Int64Counter(
		"rowstream.spill.bytes",
		otelmetric.WithUnit("By"),
		otelmetric.WithDescription("Bytes written to spill files"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create spill.bytes counter: %w", err))
	}
}
