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

package helpers

import "bytes"

// SniffLen is the number of leading bytes SniffCompression and
// SniffEncoding need to see.
const SniffLen = 8

var compressionMagic = []struct {
	name  string
	magic []byte
}{
	{"gzip", []byte{0x1f, 0x8b}},
	{"bzip2", []byte("BZh")},
	{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{"xz", []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
	{"lz4", []byte{0x04, 0x22, 0x4d, 0x18}},
}

// SniffCompression names the codec whose magic number starts head, or
// returns "" when head does not look compressed.
func SniffCompression(head []byte) string {
	for _, m := range compressionMagic {
		if bytes.HasPrefix(head, m.magic) {
			return m.name
		}
	}
	return ""
}

// SniffEncoding recognizes the parquet and ORC leading magic. Anything else
// is reported as "" and treated as delimited text by callers.
func SniffEncoding(head []byte) string {
	switch {
	case bytes.HasPrefix(head, []byte("PAR1")):
		return "parquet"
	case bytes.HasPrefix(head, []byte("ORC")):
		return "orc"
	default:
		return ""
	}
}
