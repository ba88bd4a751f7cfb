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
)

// UnsupportedCompressionError is returned when a compression name does not
// map to a known codec. It is raised before any byte is consumed.
type UnsupportedCompressionError struct {
	Name string
}

func (e *UnsupportedCompressionError) Error() string {
	return fmt.Sprintf("unsupported compression %q", e.Name)
}

// UnsupportedEncodingError is returned when an encoding name does not map to
// a known serialization. It is raised before any byte is consumed.
type UnsupportedEncodingError struct {
	Name string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("unsupported encoding %q", e.Name)
}

// UnsupportedDialectError is returned for an unknown named dialect or a
// dialect whose settings cannot be tokenized.
type UnsupportedDialectError struct {
	Name   string
	Reason string
}

func (e *UnsupportedDialectError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported dialect %q: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("unsupported dialect %q", e.Name)
}

// DecodeError reports corrupt or truncated compressed input. Offset is the
// number of compressed bytes consumed from the source when the codec failed.
type DecodeError struct {
	Codec  Compression
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s decode failed near compressed offset %d: %v", e.Codec, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RowParseError reports a record the tokenizer could not parse.
// Batch is the zero-based index of the flushed batch, Row the index of the
// failing row within that batch and Line the line within the batch, if known.
type RowParseError struct {
	Batch int64
	Row   int
	Line  int
	Err   error
}

func (e *RowParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("row parse failed in batch %d at row %d (line %d): %v", e.Batch, e.Row, e.Line, e.Err)
	}
	return fmt.Sprintf("row parse failed in batch %d at row %d: %v", e.Batch, e.Row, e.Err)
}

func (e *RowParseError) Unwrap() error { return e.Err }

// RecordTooLargeError is returned when an undelimited fragment grows beyond
// the configured maximum record size.
type RecordTooLargeError struct {
	Limit int
	Size  int
}

func (e *RecordTooLargeError) Error() string {
	return fmt.Sprintf("record of at least %d bytes exceeds limit of %d bytes", e.Size, e.Limit)
}

// TableDecodeError reports a failure of the table decoder, such as a corrupt
// footer or a schema that cannot be read.
type TableDecodeError struct {
	Format string
	Err    error
}

func (e *TableDecodeError) Error() string {
	return fmt.Sprintf("%s table decode failed: %v", e.Format, e.Err)
}

func (e *TableDecodeError) Unwrap() error { return e.Err }

// BufferOverflowError is returned when the spill buffer cannot accept more
// data, either because the total limit was reached or because spilling to
// disk is disabled or out of space.
type BufferOverflowError struct {
	Limit  int64
	Size   int64
	Reason string
}

func (e *BufferOverflowError) Error() string {
	return fmt.Sprintf("buffer overflow at %d bytes (limit %d): %s", e.Size, e.Limit, e.Reason)
}

// HeaderUnavailableError is returned by Header when the reader was built with
// IgnoreHeader set.
type HeaderUnavailableError struct{}

func (e HeaderUnavailableError) Error() string {
	return "header unavailable: reader was created with ignore_header=true"
}

// ErrHeaderUnavailable is the sentinel for HeaderUnavailableError.
var ErrHeaderUnavailable = HeaderUnavailableError{}

// ReaderClosedError is returned by any read after Close.
type ReaderClosedError struct{}

func (e ReaderClosedError) Error() string {
	return "reader is closed"
}

// ErrReaderClosed is the sentinel for ReaderClosedError.
var ErrReaderClosed = ReaderClosedError{}
