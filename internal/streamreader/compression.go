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

// Compression identifies the codec applied to a source stream.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionBzip2
	CompressionZstd
	CompressionXZ
	CompressionLZ4
)

var compressionNames = map[Compression]string{
	CompressionNone:  "none",
	CompressionGzip:  "gzip",
	CompressionBzip2: "bzip2",
	CompressionZstd:  "zstd",
	CompressionXZ:    "xz",
	CompressionLZ4:   "lz4",
}

var compressionAliases = map[string]Compression{
	"":      CompressionNone,
	"none":  CompressionNone,
	"gzip":  CompressionGzip,
	"gz":    CompressionGzip,
	"bzip2": CompressionBzip2,
	"bz2":   CompressionBzip2,
	"zstd":  CompressionZstd,
	"zst":   CompressionZstd,
	"xz":    CompressionXZ,
	"lz4":   CompressionLZ4,
}

var compressionExtensions = map[string]Compression{
	".gz":   CompressionGzip,
	".gzip": CompressionGzip,
	".bz2":  CompressionBzip2,
	".zst":  CompressionZstd,
	".zstd": CompressionZstd,
	".xz":   CompressionXZ,
	".lz4":  CompressionLZ4,
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCompression resolves a compression name. Matching is case-insensitive
// and the empty string means no compression.
func ParseCompression(name string) (Compression, error) {
	if c, ok := compressionAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c, nil
	}
	return CompressionNone, &UnsupportedCompressionError{Name: name}
}

// CompressionFromFilename infers the codec from the last extension of name.
// Names without a known compression extension report CompressionNone.
func CompressionFromFilename(name string) Compression {
	if c, ok := compressionExtensions[strings.ToLower(path.Ext(name))]; ok {
		return c
	}
	return CompressionNone
}

// TrimCompressionExt removes a known compression extension from name,
// so that "rows.csv.gz" becomes "rows.csv".
func TrimCompressionExt(name string) string {
	ext := path.Ext(name)
	if _, ok := compressionExtensions[strings.ToLower(ext)]; ok {
		return strings.TrimSuffix(name, ext)
	}
	return name
}
