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
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

const decompressBufferSize = 32 * 1024

// byteProducer is the pull contract shared by the stages below the row level.
// Returned slices are only valid until the next call.
type byteProducer interface {
	Next(ctx context.Context) ([]byte, error)
}

// Decompressor turns a compressed ChunkSource into a stream of decompressed
// byte chunks. Each call to Next feeds source chunks into the codec until it
// produces output. Once the source is exhausted the codec drains whatever it
// still holds, after which the decompressor is terminal and reports io.EOF.
//
// A Decompressor is owned by one reader and is not safe for concurrent use.
type Decompressor struct {
	codec    Compression
	src      ChunkSource
	in       *sourceReader
	dec      io.Reader
	closeDec func() error
	buf      []byte

	bytesOut int64
	done     bool
	closed   bool
	err      error
}

var _ byteProducer = (*Decompressor)(nil)

// NewDecompressor creates a decompressor for src. No bytes are read until the
// first call to Next.
func NewDecompressor(src ChunkSource, codec Compression) (*Decompressor, error) {
	if _, ok := compressionNames[codec]; !ok {
		return nil, &UnsupportedCompressionError{Name: fmt.Sprintf("compression(%d)", int(codec))}
	}
	d := &Decompressor{
		codec: codec,
		src:   src,
		in:    newSourceReader(src),
	}
	if codec != CompressionNone {
		d.buf = make([]byte, decompressBufferSize)
	}
	return d, nil
}

// Codec returns the codec this decompressor was built for.
func (d *Decompressor) Codec() Compression {
	return d.codec
}

// BytesIn returns the number of compressed bytes consumed so far.
func (d *Decompressor) BytesIn() int64 {
	return d.in.consumed
}

// BytesOut returns the number of decompressed bytes produced so far.
func (d *Decompressor) BytesOut() int64 {
	return d.bytesOut
}

// Next returns the next run of decompressed bytes, or io.EOF once the input
// is exhausted and the codec has been flushed. Errors are sticky.
func (d *Decompressor) Next(ctx context.Context) ([]byte, error) {
	if d.closed {
		return nil, ErrReaderClosed
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.done {
		return nil, io.EOF
	}
	d.in.ctx = ctx

	if d.codec == CompressionNone {
		return d.passthrough(ctx)
	}

	if d.dec == nil {
		if err := d.open(); err != nil {
			if d.emptyInput() {
				d.finish(ctx)
				return nil, io.EOF
			}
			return nil, d.fail(err)
		}
	}

	for {
		n, err := d.dec.Read(d.buf)
		if n > 0 {
			d.bytesOut += int64(n)
			if err != nil && !errors.Is(err, io.EOF) {
				d.err = d.wrap(err)
			} else if errors.Is(err, io.EOF) {
				d.finish(ctx)
			}
			return d.buf[:n], nil
		}
		if errors.Is(err, io.EOF) {
			d.finish(ctx)
			return nil, io.EOF
		}
		if err != nil {
			if d.emptyInput() {
				d.finish(ctx)
				return nil, io.EOF
			}
			return nil, d.fail(err)
		}
	}
}

// passthrough hands source chunks on unchanged so chunk boundaries survive.
func (d *Decompressor) passthrough(ctx context.Context) ([]byte, error) {
	chunk, err := d.src.NextChunk(ctx)
	if errors.Is(err, io.EOF) {
		d.finish(ctx)
		return nil, io.EOF
	}
	if err != nil {
		d.err = err
		return nil, err
	}
	d.in.consumed += int64(len(chunk))
	d.bytesOut += int64(len(chunk))
	return chunk, nil
}

func (d *Decompressor) open() error {
	switch d.codec {
	case CompressionGzip:
		zr, err := gzip.NewReader(d.in)
		if err != nil {
			return err
		}
		d.dec = zr
		d.closeDec = zr.Close
	case CompressionBzip2:
		br, err := bzip2.NewReader(d.in, nil)
		if err != nil {
			return err
		}
		d.dec = br
		d.closeDec = br.Close
	case CompressionZstd:
		zd, err := zstd.NewReader(d.in, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			return err
		}
		d.dec = zd
		d.closeDec = func() error {
			zd.Close()
			return nil
		}
	case CompressionXZ:
		xr, err := xz.NewReader(d.in)
		if err != nil {
			return err
		}
		d.dec = xr
	case CompressionLZ4:
		lr := lz4.NewReader(d.in)
		if err := lr.Apply(lz4.ConcurrencyOption(1)); err != nil {
			return err
		}
		d.dec = lr
	default:
		return &UnsupportedCompressionError{Name: d.codec.String()}
	}
	return nil
}

// emptyInput reports whether the source ended without producing a single
// byte. Every codec treats that as an empty stream rather than corruption.
func (d *Decompressor) emptyInput() bool {
	return d.in.eof && d.in.consumed == 0
}

func (d *Decompressor) wrap(err error) error {
	if d.in.srcErr != nil {
		return fmt.Errorf("read %s source: %w", d.codec, d.in.srcErr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return &DecodeError{Codec: d.codec, Offset: d.in.consumed, Err: err}
}

func (d *Decompressor) fail(err error) error {
	d.err = d.wrap(err)
	return d.err
}

func (d *Decompressor) finish(ctx context.Context) {
	if d.done {
		return
	}
	d.done = true
	compressedBytesCounter.Add(ctx, d.in.consumed)
	inflatedBytesCounter.Add(ctx, d.bytesOut)
}

// Close releases codec state. It is safe to call more than once. Some
// codecs report their last read error again from Close; that error is
// dropped once the stream has ended, was empty, or already failed in Next.
func (d *Decompressor) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.buf = nil
	closeDec := d.closeDec
	d.closeDec = nil
	d.dec = nil
	if closeDec == nil {
		return nil
	}
	err := closeDec()
	if d.done || d.emptyInput() || d.err != nil {
		return nil
	}
	return err
}
