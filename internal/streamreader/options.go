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
	"log/slog"
	"strings"
)

// ParquetEngine selects the library used to decode parquet input.
type ParquetEngine string

const (
	ParquetEngineArrow     ParquetEngine = "arrow"
	ParquetEngineParquetGo ParquetEngine = "parquet-go"
)

// ParseParquetEngine resolves an engine name; empty means Arrow.
func ParseParquetEngine(name string) (ParquetEngine, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "arrow":
		return ParquetEngineArrow, nil
	case "parquet-go", "parquetgo", "parquet_go":
		return ParquetEngineParquetGo, nil
	default:
		return "", fmt.Errorf("unsupported parquet engine %q", name)
	}
}

// TableOptions configures the full-buffer path used for parquet and ORC.
type TableOptions struct {
	// MaxMemoryBytes is the in-memory budget before spilling (default 64 MiB).
	MaxMemoryBytes int64
	// MaxTotalBytes caps the buffered input size; zero is unlimited.
	MaxTotalBytes int64
	// SpillDir holds spill files; empty means os.TempDir().
	SpillDir string
	// DisableSpill turns exceeding MaxMemoryBytes into a BufferOverflowError.
	DisableSpill  bool
	ParquetEngine ParquetEngine
	// BinaryAsText decodes binary columns as UTF-8 text.
	BinaryAsText bool
}

// Spill returns the spill buffer limits for these options.
func (t TableOptions) Spill() SpillOptions {
	return SpillOptions{
		MaxMemoryBytes: t.MaxMemoryBytes,
		MaxTotalBytes:  t.MaxTotalBytes,
		Dir:            t.SpillDir,
		Disabled:       t.DisableSpill,
	}
}

// Options configures a Reader.
type Options struct {
	Compression Compression
	Encoding    Encoding
	// BufferSize is the batch threshold in bytes for delimited text.
	BufferSize int
	// IgnoreHeader, when false, treats the first row as the header.
	IgnoreHeader bool
	Dialect      Dialect
	// SkipInvalidRows drops malformed rows instead of failing.
	SkipInvalidRows bool
	// MaxRecordBytes limits a single text record; zero is unlimited.
	MaxRecordBytes int
	// ChunkSize is the read size used when a Reader wraps an io.Reader.
	ChunkSize int
	Table     TableOptions
	Logger    *slog.Logger
}

// DefaultOptions returns uncompressed CSV in the excel dialect with no header.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionNone,
		Encoding:     EncodingLineDelimited,
		BufferSize:   DefaultBufferSize,
		ChunkSize:    DefaultChunkSize,
		IgnoreHeader: true,
		Dialect:      ExcelDialect(),
		Table: TableOptions{
			MaxMemoryBytes: DefaultMaxMemoryBytes,
			ParquetEngine:  ParquetEngineArrow,
			BinaryAsText:   true,
		},
	}
}

// Validate checks every option so a Reader fails before reading any input.
func (o Options) Validate() error {
	if _, ok := compressionNames[o.Compression]; !ok {
		return &UnsupportedCompressionError{Name: o.Compression.String()}
	}
	if _, ok := encodingNames[o.Encoding]; !ok {
		return &UnsupportedEncodingError{Name: o.Encoding.String()}
	}
	if o.BufferSize < 0 {
		return fmt.Errorf("buffer size must not be negative, got %d", o.BufferSize)
	}
	if o.ChunkSize < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", o.ChunkSize)
	}
	if o.MaxRecordBytes < 0 {
		return fmt.Errorf("max record bytes must not be negative, got %d", o.MaxRecordBytes)
	}
	if o.Table.MaxMemoryBytes < 0 || o.Table.MaxTotalBytes < 0 {
		return fmt.Errorf("table buffer limits must not be negative")
	}
	if !o.Encoding.Table() {
		return o.Dialect.Validate()
	}
	if o.Encoding == EncodingParquet {
		if _, err := ParseParquetEngine(string(o.Table.ParquetEngine)); err != nil {
			return err
		}
	}
	return nil
}

// Decoder returns the table decoder selected by Encoding and ParquetEngine.
// It returns the Arrow parquet decoder for line-delimited encodings.
func (o Options) Decoder() TableDecoder {
	switch o.Encoding {
	case EncodingORC:
		return ORCDecoder{}
	default:
		if engine, _ := ParseParquetEngine(string(o.Table.ParquetEngine)); engine == ParquetEngineParquetGo {
			return ParquetGoDecoder{}
		}
		return ArrowParquetDecoder{}
	}
}
