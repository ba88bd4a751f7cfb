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
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// compress encodes data with codec using the same libraries the reader
// decodes with.
func compress(t *testing.T, codec Compression, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	switch codec {
	case CompressionNone:
		return bytes.Clone(data)
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionBzip2:
		w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: bzip2.BestSpeed})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		require.NoError(t, err)
		buf.Write(enc.EncodeAll(data, nil))
		require.NoError(t, enc.Close())
	case CompressionXZ:
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case CompressionLZ4:
		w := lz4.NewWriter(&buf)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	default:
		t.Fatalf("no writer for %s", codec)
	}
	return buf.Bytes()
}

var allCodecs = []Compression{
	CompressionNone,
	CompressionGzip,
	CompressionBzip2,
	CompressionZstd,
	CompressionXZ,
	CompressionLZ4,
}

// drainBytes concatenates everything a byte stage produces.
func drainBytes(t *testing.T, p byteProducer) []byte {
	t.Helper()
	var out []byte
	for {
		b, err := p.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, b...)
	}
}

// readAll returns every row of r, failing the test on any error.
func readAll(t *testing.T, r *Reader) []Row {
	t.Helper()
	rows := []Row{}
	for row, err := range r.All(context.Background()) {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	return rows
}

func textRows(rows ...[]string) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = make(Row, len(r))
		for j, v := range r {
			out[i][j] = v
		}
	}
	return out
}

// errSource fails after delivering its chunks.
type errSource struct {
	chunks [][]byte
	err    error
	closed int
}

func (s *errSource) NextChunk(ctx context.Context) ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, s.err
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *errSource) Close() error {
	s.closed++
	return nil
}
