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
	"path"
	"strings"
)

// Encoding identifies how the decompressed bytes are serialized.
type Encoding int

const (
	// EncodingLineDelimited is delimited text, one record per line.
	EncodingLineDelimited Encoding = iota
	EncodingParquet
	EncodingORC
)

var encodingNames = map[Encoding]string{
	EncodingLineDelimited: "csv",
	EncodingParquet:       "parquet",
	EncodingORC:           "orc",
}

var encodingAliases = map[string]Encoding{
	"":               EncodingLineDelimited,
	"csv":            EncodingLineDelimited,
	"tsv":            EncodingLineDelimited,
	"text":           EncodingLineDelimited,
	"line-delimited": EncodingLineDelimited,
	"line_delimited": EncodingLineDelimited,
	"parquet":        EncodingParquet,
	"orc":            EncodingORC,
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return "unknown"
}

// Table reports whether the encoding needs the full-buffer table path.
func (e Encoding) Table() bool {
	return e == EncodingParquet || e == EncodingORC
}

// ParseEncoding resolves an encoding name. Matching is case-insensitive and
// the empty string means line-delimited text.
func ParseEncoding(name string) (Encoding, error) {
	if e, ok := encodingAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return e, nil
	}
	return EncodingLineDelimited, &UnsupportedEncodingError{Name: name}
}

// EncodingFromFilename infers the encoding after stripping any compression
// extension, so "rows.parquet.zst" is parquet.
func EncodingFromFilename(name string) Encoding {
	switch strings.ToLower(path.Ext(TrimCompressionExt(name))) {
	case ".parquet":
		return EncodingParquet
	case ".orc":
		return EncodingORC
	default:
		return EncodingLineDelimited
	}
}
