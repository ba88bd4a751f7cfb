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
	"encoding/csv"
	"errors"
	"io"
	"unicode/utf8"
)

// Tokenizer turns a batch of complete text records into rows.
// It returns the rows parsed before any error together with the error.
type Tokenizer interface {
	Tokenize(batch []byte) ([]Row, error)
}

// NewTokenizer returns a tokenizer for d. Strict dialects that encoding/csv
// can express use it; others use the dialect state machine.
func NewTokenizer(d Dialect) (Tokenizer, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.stdlibCompatible() {
		return &csvTokenizer{dialect: d}, nil
	}
	return &dialectTokenizer{dialect: d}, nil
}

// arity enforces a fixed field count across the whole stream in strict mode.
type arity struct {
	fields int
}

func (a *arity) check(strict bool, n, line int) error {
	if !strict {
		return nil
	}
	if a.fields == 0 {
		a.fields = n
		return nil
	}
	if n != a.fields {
		return &csv.ParseError{StartLine: line, Line: line, Column: 1, Err: csv.ErrFieldCount}
	}
	return nil
}

// csvTokenizer is backed by encoding/csv and only serves strict dialects.
type csvTokenizer struct {
	dialect Dialect
	arity   arity
}

func (t *csvTokenizer) Tokenize(batch []byte) ([]Row, error) {
	r := csv.NewReader(bytes.NewReader(batch))
	r.Comma = t.dialect.Delimiter
	r.Comment = t.dialect.Comment
	r.TrimLeadingSpace = t.dialect.SkipInitialSpace
	r.FieldsPerRecord = -1

	var rows []Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		line, _ := r.FieldPos(0)
		if err := t.arity.check(t.dialect.Strict, len(rec), line); err != nil {
			return rows, err
		}
		row := make(Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		rows = append(rows, row)
	}
}

// dialectTokenizer handles custom quote and escape runes and the lenient
// quoting of non-strict dialects.
type dialectTokenizer struct {
	dialect Dialect
	arity   arity
}

func (t *dialectTokenizer) Tokenize(batch []byte) ([]Row, error) {
	p := dialectParser{d: t.dialect, data: batch, line: 1}
	var rows []Row
	for {
		start := p.line
		row, err := p.record()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if row == nil {
			continue
		}
		if err := t.arity.check(t.dialect.Strict, len(row), start); err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

type parseState int

const (
	stateStartField parseState = iota
	stateInField
	stateEscaped
	stateInQuoted
	stateEscapeInQuoted
	stateQuoteInQuoted
)

type dialectParser struct {
	d    Dialect
	data []byte
	off  int
	line int
	col  int
}

func (p *dialectParser) next() (rune, bool) {
	if p.off >= len(p.data) {
		return 0, false
	}
	r, size := utf8.DecodeRune(p.data[p.off:])
	p.off += size
	p.col++
	return r, true
}

func (p *dialectParser) endLine(r rune) {
	if r == '\r' && p.off < len(p.data) && p.data[p.off] == '\n' {
		p.off++
	}
	p.line++
	p.col = 0
}

func (p *dialectParser) fail(start int, err error) error {
	return &csv.ParseError{StartLine: start, Line: p.line, Column: p.col, Err: err}
}

// record parses one record. It returns a nil row for blank and comment
// lines and io.EOF when no input remains.
func (p *dialectParser) record() (Row, error) {
	if p.off >= len(p.data) {
		return nil, io.EOF
	}
	start := p.line

	if first, _ := utf8.DecodeRune(p.data[p.off:]); first == '\n' || first == '\r' {
		p.next()
		p.endLine(first)
		return nil, nil
	} else if p.d.Comment != 0 && first == p.d.Comment {
		for {
			r, ok := p.next()
			if !ok {
				return nil, nil
			}
			if r == '\n' || r == '\r' {
				p.endLine(r)
				return nil, nil
			}
		}
	}

	var (
		row   Row
		field []byte
		state = stateStartField
	)
	isQuote := func(r rune) bool { return p.d.Quote != 0 && r == p.d.Quote }
	isEscape := func(r rune) bool { return p.d.Escape != 0 && r == p.d.Escape }
	push := func() {
		row = append(row, string(field))
		field = field[:0]
	}

	for {
		r, ok := p.next()
		if !ok {
			break
		}
		switch state {
		case stateStartField:
			switch {
			case r == '\n' || r == '\r':
				push()
				p.endLine(r)
				return row, nil
			case r == ' ' && p.d.SkipInitialSpace:
			case isQuote(r):
				state = stateInQuoted
			case isEscape(r):
				state = stateEscaped
			case r == p.d.Delimiter:
				push()
			default:
				field = utf8.AppendRune(field, r)
				state = stateInField
			}
		case stateInField:
			switch {
			case r == '\n' || r == '\r':
				push()
				p.endLine(r)
				return row, nil
			case isEscape(r):
				state = stateEscaped
			case r == p.d.Delimiter:
				push()
				state = stateStartField
			case isQuote(r) && p.d.Strict:
				return nil, p.fail(start, csv.ErrBareQuote)
			default:
				field = utf8.AppendRune(field, r)
			}
		case stateEscaped:
			field = utf8.AppendRune(field, r)
			if r == '\n' {
				p.line++
				p.col = 0
			}
			state = stateInField
		case stateInQuoted:
			switch {
			case isEscape(r):
				state = stateEscapeInQuoted
			case isQuote(r):
				if p.d.DoubleQuote {
					state = stateQuoteInQuoted
				} else {
					state = stateInField
				}
			default:
				field = utf8.AppendRune(field, r)
				if r == '\n' {
					p.line++
					p.col = 0
				}
			}
		case stateEscapeInQuoted:
			field = utf8.AppendRune(field, r)
			if r == '\n' {
				p.line++
				p.col = 0
			}
			state = stateInQuoted
		case stateQuoteInQuoted:
			switch {
			case isQuote(r):
				field = utf8.AppendRune(field, r)
				state = stateInQuoted
			case r == p.d.Delimiter:
				push()
				state = stateStartField
			case r == '\n' || r == '\r':
				push()
				p.endLine(r)
				return row, nil
			case p.d.Strict:
				return nil, p.fail(start, csv.ErrQuote)
			default:
				field = utf8.AppendRune(field, r)
				state = stateInField
			}
		}
	}

	switch state {
	case stateInQuoted, stateEscapeInQuoted:
		return nil, p.fail(start, csv.ErrQuote)
	case stateEscaped:
		return nil, p.fail(start, io.ErrUnexpectedEOF)
	}
	push()
	return row, nil
}
