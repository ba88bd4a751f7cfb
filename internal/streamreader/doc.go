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

// Package streamreader turns a stream of possibly compressed byte chunks
// into rows.
//
// Delimited text flows through a pull pipeline:
//
//	ChunkSource -> Decompressor -> LineSplitter -> BatchAssembler -> Reader
//
// Chunks are decompressed incrementally, reassembled into complete
// newline-terminated records, grouped into batches of at least BufferSize
// bytes and tokenized a batch at a time, so memory stays bounded by the
// batch threshold plus the longest record. Parquet and ORC cannot be read
// incrementally; they are buffered whole in a SpillBuffer, which moves to a
// temporary file past its memory budget, and decoded by a TableDecoder.
//
// A Reader is single-consumer. It starts no goroutines, and Close releases
// codec state, spill files and the source.
package streamreader
