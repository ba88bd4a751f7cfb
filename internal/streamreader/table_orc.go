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
	"fmt"
	"io"

	"github.com/scritchley/orc"
)

// ORCDecoder decodes ORC files. Every top-level column is selected.
type ORCDecoder struct{}

var _ TableDecoder = ORCDecoder{}

func (ORCDecoder) Format() string { return "orc" }

// orcMagic starts every ORC file.
var orcMagic = []byte("ORC")

const orcMinSize = 16

var errNotORC = errors.New("missing ORC magic")

// recoverORC turns a panic from the orc package, which indexes into footer
// bytes without bounds checks, into an error.
func recoverORC(op string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: orc reader panic: %v", op, r)
	}
}

func (ORCDecoder) Decode(_ context.Context, data SizedReaderAt) (table Table, err error) {
	if data.Size() < orcMinSize {
		return nil, fmt.Errorf("open orc file: %d bytes is too short", data.Size())
	}
	head := make([]byte, len(orcMagic))
	if _, err := data.ReadAt(head, 0); err != nil {
		return nil, fmt.Errorf("open orc file: %w", err)
	}
	if !bytes.Equal(head, orcMagic) {
		return nil, fmt.Errorf("open orc file: %w", errNotORC)
	}

	defer recoverORC("open orc file", &err)
	r, err := orc.NewReader(data)
	if err != nil {
		return nil, fmt.Errorf("open orc file: %w", err)
	}
	cols := r.Schema().Columns()
	return &orcTable{
		r:       r,
		cursor:  r.Select(cols...),
		cols:    cols,
		numRows: int64(r.NumRows()),
	}, nil
}

type orcTable struct {
	r       *orc.Reader
	cursor  *orc.Cursor
	cols    []string
	numRows int64

	inStripe bool
	eof      bool
}

func (t *orcTable) Columns() []string { return t.cols }

func (t *orcTable) NumRows() int64 { return t.numRows }

func (t *orcTable) NextRow() (row []any, err error) {
	if t.eof {
		return nil, io.EOF
	}
	defer recoverORC("orc read", &err)
	for {
		if t.inStripe && t.cursor.Next() {
			values := t.cursor.Row()
			row = make([]any, len(values))
			for i, v := range values {
				if b, ok := v.([]byte); ok {
					v = cloneBytes(b)
				}
				row[i] = v
			}
			return row, nil
		}
		if err := t.cursor.Err(); err != nil {
			return nil, fmt.Errorf("orc read: %w", err)
		}
		t.inStripe = t.cursor.Stripes()
		if !t.inStripe {
			if err := t.cursor.Err(); err != nil {
				return nil, fmt.Errorf("orc read: %w", err)
			}
			t.eof = true
			return nil, io.EOF
		}
	}
}

func (t *orcTable) Release() error {
	if t.r == nil {
		return nil
	}
	var err error
	if t.cursor != nil {
		err = t.cursor.Close()
		t.cursor = nil
	}
	if cerr := t.r.Close(); cerr != nil && err == nil {
		err = cerr
	}
	t.r = nil
	return err
}
