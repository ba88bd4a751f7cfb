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
)

const recordDelimiter = '\n'

// LineSplitter reassembles complete records from decompressed byte chunks.
// A record is every byte up to and including a newline. Bytes after the last
// newline are held as the pending fragment and prefixed to the next chunk.
// At end of input a non-empty fragment is returned once as the final record.
type LineSplitter struct {
	src byteProducer

	// buf holds the pending fragment starting at pos; scanned marks how far
	// past pos a delimiter search has already looked.
	buf     []byte
	pos     int
	scanned int

	maxRecord int
	records   int64
	eof       bool
}

// NewLineSplitter creates a LineSplitter over src. maxRecordBytes bounds the
// size of a single record; zero means unlimited.
func NewLineSplitter(src byteProducer, maxRecordBytes int) *LineSplitter {
	return &LineSplitter{
		src:       src,
		maxRecord: maxRecordBytes,
	}
}

// Records returns the number of records returned so far.
func (s *LineSplitter) Records() int64 {
	return s.records
}

// Next returns the next complete record. The returned slice is owned by the
// caller. io.EOF is returned after the final record.
func (s *LineSplitter) Next(ctx context.Context) ([]byte, error) {
	for {
		if i := bytes.IndexByte(s.buf[s.pos+s.scanned:], recordDelimiter); i >= 0 {
			end := s.pos + s.scanned + i + 1
			if s.maxRecord > 0 && end-s.pos > s.maxRecord {
				return nil, &RecordTooLargeError{Limit: s.maxRecord, Size: end - s.pos}
			}
			return s.emit(end), nil
		}
		s.scanned = len(s.buf) - s.pos

		if s.eof {
			if s.pos < len(s.buf) {
				return s.emit(len(s.buf)), nil
			}
			s.buf = s.buf[:0]
			s.pos = 0
			s.scanned = 0
			return nil, io.EOF
		}

		if s.maxRecord > 0 && s.scanned > s.maxRecord {
			return nil, &RecordTooLargeError{Limit: s.maxRecord, Size: s.scanned}
		}

		chunk, err := s.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.eof = true
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		s.compact()
		s.buf = append(s.buf, chunk...)
	}
}

// emit extracts buf[pos:end] as an owned record and advances past it.
func (s *LineSplitter) emit(end int) []byte {
	rec := bytes.Clone(s.buf[s.pos:end])
	s.pos = end
	s.scanned = 0
	s.records++
	if s.pos == len(s.buf) {
		s.buf = s.buf[:0]
		s.pos = 0
	}
	return rec
}

// compact moves the pending fragment to the front of buf so the buffer does
// not grow with the total input size.
func (s *LineSplitter) compact() {
	if s.pos == 0 {
		return
	}
	n := copy(s.buf, s.buf[s.pos:])
	s.buf = s.buf[:n]
	s.pos = 0
}
