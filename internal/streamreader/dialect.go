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
	"strings"
	"unicode/utf8"
)

// Dialect describes how delimited text is tokenized into rows.
type Dialect struct {
	Name string

	// Delimiter separates fields.
	Delimiter rune
	// Quote starts and ends quoted fields. Zero disables quoting.
	Quote rune
	// Escape, when non-zero, makes the following rune literal.
	Escape rune
	// DoubleQuote treats two quote runes inside a quoted field as one quote.
	DoubleQuote bool
	// LineTerminator is used when rows are written back out. Readers accept
	// "\n", "\r\n" and "\r" regardless.
	LineTerminator string
	// SkipInitialSpace ignores spaces immediately after a delimiter.
	SkipInitialSpace bool
	// Strict rejects bare quotes and rows whose field count differs from
	// the first row.
	Strict bool
	// Comment, when non-zero, marks lines that are skipped entirely.
	Comment rune
}

// ExcelDialect is the default: comma separated, double-quote quoting with
// doubled quotes as the escape.
func ExcelDialect() Dialect {
	return Dialect{
		Name:           "excel",
		Delimiter:      ',',
		Quote:          '"',
		DoubleQuote:    true,
		LineTerminator: "\r\n",
	}
}

// ExcelTabDialect is ExcelDialect with tab separated fields.
func ExcelTabDialect() Dialect {
	d := ExcelDialect()
	d.Name = "excel-tab"
	d.Delimiter = '\t'
	return d
}

// UnixDialect is ExcelDialect with "\n" line endings.
func UnixDialect() Dialect {
	d := ExcelDialect()
	d.Name = "unix"
	d.LineTerminator = "\n"
	return d
}

// ParseDialect resolves a named dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "excel", "csv":
		return ExcelDialect(), nil
	case "excel-tab", "excel_tab", "tsv":
		return ExcelTabDialect(), nil
	case "unix":
		return UnixDialect(), nil
	default:
		return Dialect{}, &UnsupportedDialectError{Name: name}
	}
}

// Validate checks that the dialect can be tokenized.
func (d Dialect) Validate() error {
	fail := func(reason string) error {
		return &UnsupportedDialectError{Name: d.Name, Reason: reason}
	}
	if !usableRune(d.Delimiter) {
		return fail("delimiter must be a valid rune other than CR or LF")
	}
	if d.Quote != 0 && !usableRune(d.Quote) {
		return fail("quote must be a valid rune other than CR or LF")
	}
	if d.Escape != 0 && !usableRune(d.Escape) {
		return fail("escape must be a valid rune other than CR or LF")
	}
	if d.Comment != 0 && !usableRune(d.Comment) {
		return fail("comment must be a valid rune other than CR or LF")
	}
	if d.Quote != 0 && d.Quote == d.Delimiter {
		return fail("quote and delimiter must differ")
	}
	if d.Escape != 0 && (d.Escape == d.Delimiter || d.Escape == d.Quote) {
		return fail("escape must differ from delimiter and quote")
	}
	if d.Comment != 0 && (d.Comment == d.Delimiter || d.Comment == d.Quote) {
		return fail("comment must differ from delimiter and quote")
	}
	switch d.LineTerminator {
	case "", "\n", "\r\n", "\r":
	default:
		return fail("line terminator must be LF, CRLF or CR")
	}
	return nil
}

// stdlibCompatible reports whether encoding/csv implements this dialect.
// Only strict dialects qualify. Non-strict quoting reads "abc"x as abcx,
// matching quoteTracker; LazyQuotes would keep that field open instead.
func (d Dialect) stdlibCompatible() bool {
	return d.Strict && d.Quote == '"' && d.DoubleQuote && d.Escape == 0 && d.Delimiter != '"'
}

func usableRune(r rune) bool {
	return r != 0 && r != '\n' && r != '\r' && r != utf8.RuneError && utf8.ValidRune(r)
}

// quoteTracker follows quoting state across records so a batch is never cut
// inside a quoted field that spans lines.
type quoteTracker struct {
	d          Dialect
	inQuoted   bool
	afterQuote bool
	escaped    bool
	fieldStart bool
}

func newQuoteTracker(d Dialect) quoteTracker {
	return quoteTracker{d: d, fieldStart: true}
}

func (q *quoteTracker) feed(rec []byte) {
	if q.d.Quote == 0 && q.d.Escape == 0 {
		return
	}
	for i := 0; i < len(rec); {
		r, size := utf8.DecodeRune(rec[i:])
		i += size

		if q.escaped {
			q.escaped = false
			q.fieldStart = false
			continue
		}
		if q.afterQuote {
			q.afterQuote = false
			if r == q.d.Quote {
				continue
			}
			q.inQuoted = false
		}
		if q.inQuoted {
			switch {
			case q.d.Escape != 0 && r == q.d.Escape:
				q.escaped = true
			case r == q.d.Quote:
				if q.d.DoubleQuote {
					q.afterQuote = true
				} else {
					q.inQuoted = false
				}
			}
			continue
		}

		switch {
		case q.d.Escape != 0 && r == q.d.Escape:
			q.escaped = true
			q.fieldStart = false
		case r == q.d.Delimiter || r == '\n' || r == '\r':
			q.fieldStart = true
		case q.fieldStart && r == ' ' && q.d.SkipInitialSpace:
		case q.fieldStart && q.d.Quote != 0 && r == q.d.Quote:
			q.inQuoted = true
			q.fieldStart = false
		default:
			q.fieldStart = false
		}
	}
}

// open reports whether the records fed so far end inside a quoted field or
// right after an escape rune.
func (q *quoteTracker) open() bool {
	return (q.inQuoted && !q.afterQuote) || q.escaped
}
