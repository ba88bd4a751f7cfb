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
)

// DefaultChunkSize is the read size used by NewReaderSource when none is given.
const DefaultChunkSize = 64 * 1024

// ChunkSource delivers the raw input as ordered byte chunks.
// NextChunk returns io.EOF once the stream is exhausted. Chunks may be empty.
// A returned chunk is only valid until the next call.
type ChunkSource interface {
	NextChunk(ctx context.Context) ([]byte, error)
}

// ReaderSource adapts an io.Reader into a ChunkSource.
// If the reader is also an io.Closer it is closed by Close.
type ReaderSource struct {
	r         io.Reader
	buf       []byte
	err       error
	closed    bool
	chunkSize int
}

var _ ChunkSource = (*ReaderSource)(nil)

// NewReaderSource creates a ChunkSource that reads up to chunkSize bytes per chunk.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ReaderSource{
		r:         r,
		buf:       make([]byte, chunkSize),
		chunkSize: chunkSize,
	}
}

// NextChunk returns the next chunk read from the underlying reader.
// A read error that arrives together with data is held back until the
// data has been delivered.
func (s *ReaderSource) NextChunk(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, ErrReaderClosed
	}
	if s.err != nil {
		return nil, s.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n, err := s.r.Read(s.buf)
	if err != nil {
		s.err = err
		if n > 0 {
			return s.buf[:n], nil
		}
		return nil, err
	}
	return s.buf[:n], nil
}

// Close closes the underlying reader if it implements io.Closer.
func (s *ReaderSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf = nil
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SliceSource replays a fixed list of chunks.
type SliceSource struct {
	chunks [][]byte
	pos    int
}

var _ ChunkSource = (*SliceSource)(nil)

// NewSliceSource creates a ChunkSource over the given chunks, in order.
func NewSliceSource(chunks ...[]byte) *SliceSource {
	return &SliceSource{chunks: chunks}
}

// NextChunk returns the next chunk or io.EOF.
func (s *SliceSource) NextChunk(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// SplitChunks cuts data into chunks of at most size bytes.
// A size of zero or less yields the whole input as one chunk.
func SplitChunks(data []byte, size int) [][]byte {
	if size <= 0 || size >= len(data) {
		return [][]byte{data}
	}
	chunks := make([][]byte, 0, len(data)/size+1)
	for len(data) > 0 {
		n := min(size, len(data))
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

// sourceReader exposes a ChunkSource as an io.Reader so codecs can pull
// from it. It counts consumed bytes and remembers the first source error
// so that source failures are not mistaken for corrupt input.
type sourceReader struct {
	src      ChunkSource
	ctx      context.Context
	pending  []byte
	consumed int64
	srcErr   error
	eof      bool
}

func newSourceReader(src ChunkSource) *sourceReader {
	return &sourceReader{src: src, ctx: context.Background()}
}

func (r *sourceReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.pending) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if r.srcErr != nil {
			return 0, r.srcErr
		}
		chunk, err := r.src.NextChunk(r.ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.eof = true
				return 0, io.EOF
			}
			r.srcErr = err
			return 0, err
		}
		r.pending = chunk
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	r.consumed += int64(n)
	return n, nil
}

// ReadByte lets decompressors that prefer io.ByteReader avoid over-reading.
func (r *sourceReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
