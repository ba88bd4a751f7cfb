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
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		data string
		size int
		want []string
	}{
		{"zero size keeps input whole", "abcdef", 0, []string{"abcdef"}},
		{"size larger than input", "abc", 10, []string{"abc"}},
		{"even split", "abcdef", 2, []string{"ab", "cd", "ef"}},
		{"uneven split", "abcdefg", 3, []string{"abc", "def", "g"}},
		{"single bytes", "abc", 1, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := SplitChunks([]byte(tt.data), tt.size)
			got := make([]string, len(chunks))
			for i, c := range chunks {
				got[i] = string(c)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSliceSource(t *testing.T) {
	ctx := context.Background()
	src := NewSliceSource([]byte("a"), nil, []byte("b"))

	for _, want := range []string{"a", "", "b"} {
		c, err := src.NextChunk(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, string(c))
	}
	_, err := src.NextChunk(ctx)
	assert.ErrorIs(t, err, io.EOF)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = NewSliceSource([]byte("x")).NextChunk(cctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReaderSource_DataBeforeError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	src := NewReaderSource(iotest.DataErrReader(strings.NewReader("hello")), 16)

	c, err := src.NextChunk(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(c))

	_, err = src.NextChunk(ctx)
	assert.ErrorIs(t, err, io.EOF)

	failing := NewReaderSource(iotest.ErrReader(boom), 16)
	_, err = failing.NextChunk(ctx)
	assert.ErrorIs(t, err, boom)
	_, err = failing.NextChunk(ctx)
	assert.ErrorIs(t, err, boom, "errors are sticky")
}

type closeCounter struct {
	io.Reader
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestReaderSource_Close(t *testing.T) {
	rc := &closeCounter{Reader: strings.NewReader("x")}
	src := NewReaderSource(rc, 0)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 1, rc.closes)

	_, err := src.NextChunk(context.Background())
	assert.ErrorIs(t, err, ErrReaderClosed)
}
