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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cardinalhq/rowstream/internal/helpers"
	"github.com/cardinalhq/rowstream/internal/idgen"
)

// DefaultMaxMemoryBytes is how much of a table input is kept in memory
// before the spill buffer moves to a temporary file.
const DefaultMaxMemoryBytes = 64 * 1024 * 1024

// SpillFilePrefix starts the name of every spill file.
const SpillFilePrefix = "rowstream-spill-"

// SizedReaderAt is the random-access view table decoders need.
type SizedReaderAt interface {
	io.ReaderAt
	io.Seeker
	Size() int64
}

// SpillOptions bounds a SpillBuffer.
type SpillOptions struct {
	// MaxMemoryBytes is the in-memory budget before spilling. Zero means
	// DefaultMaxMemoryBytes.
	MaxMemoryBytes int64
	// MaxTotalBytes caps the total buffered size. Zero means unlimited.
	MaxTotalBytes int64
	// Dir is where spill files are created. Empty means os.TempDir().
	Dir string
	// Disabled makes exceeding MaxMemoryBytes an overflow instead of a spill.
	Disabled bool
}

// SpillBuffer accumulates a stream in memory and transparently moves it to
// a temporary file once the memory budget is exceeded.
// A SpillBuffer is owned by one loader and is not safe for concurrent use.
type SpillBuffer struct {
	opts SpillOptions

	mem  []byte
	file *os.File
	size int64

	finished bool
	closed   bool
	logger   *slog.Logger

	// freeSpace reports the free bytes on the spill filesystem.
	freeSpace func(dir string) (uint64, error)
}

var _ io.Writer = (*SpillBuffer)(nil)

// NewSpillBuffer creates an empty buffer.
func NewSpillBuffer(opts SpillOptions, logger *slog.Logger) *SpillBuffer {
	if opts.MaxMemoryBytes <= 0 {
		opts.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpillBuffer{
		opts:      opts,
		logger:    logger,
		freeSpace: diskFree,
	}
}

func diskFree(dir string) (uint64, error) {
	usage, err := helpers.DiskUsage(dir)
	if err != nil {
		return 0, err
	}
	return usage.FreeBytes, nil
}

// Size returns the number of bytes written so far.
func (b *SpillBuffer) Size() int64 {
	return b.size
}

// Spilled reports whether the buffer has moved to disk.
func (b *SpillBuffer) Spilled() bool {
	return b.file != nil
}

// Write appends p to the buffer.
func (b *SpillBuffer) Write(p []byte) (int, error) {
	if b.closed {
		return 0, ErrReaderClosed
	}
	if b.finished {
		return 0, fmt.Errorf("spill buffer: write after finish")
	}
	if len(p) == 0 {
		return 0, nil
	}

	next := b.size + int64(len(p))
	if b.opts.MaxTotalBytes > 0 && next > b.opts.MaxTotalBytes {
		return 0, &BufferOverflowError{Limit: b.opts.MaxTotalBytes, Size: next, Reason: "maximum total size exceeded"}
	}

	if b.file == nil && next > b.opts.MaxMemoryBytes {
		if err := b.spill(next); err != nil {
			return 0, err
		}
	}

	if b.file != nil {
		n, err := b.file.Write(p)
		b.size += int64(n)
		spillBytesCounter.Add(context.Background(), int64(n))
		if err != nil {
			return n, fmt.Errorf("write spill file: %w", err)
		}
		return n, nil
	}

	b.mem = append(b.mem, p...)
	b.size = next
	return len(p), nil
}

// spill moves the in-memory contents to a new temporary file.
func (b *SpillBuffer) spill(need int64) error {
	if b.opts.Disabled {
		return &BufferOverflowError{Limit: b.opts.MaxMemoryBytes, Size: need, Reason: "memory budget exceeded and spilling is disabled"}
	}
	if free, err := b.freeSpace(b.opts.Dir); err == nil && free < uint64(need) {
		return &BufferOverflowError{Limit: int64(free), Size: need, Reason: "not enough free space in spill directory " + b.opts.Dir}
	}

	name := filepath.Join(b.opts.Dir, SpillFilePrefix+idgen.NextULID()+".bin")
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create spill file: %w", err)
	}
	if _, err := f.Write(b.mem); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return fmt.Errorf("write spill file: %w", err)
	}

	b.logger.Info("Table buffer spilling to disk",
		slog.String("path", name),
		slog.Int64("memoryBytes", int64(len(b.mem))),
		slog.Int64("budget", b.opts.MaxMemoryBytes))
	spillCounter.Add(context.Background(), 1)
	spillBytesCounter.Add(context.Background(), int64(len(b.mem)))

	b.file = f
	b.mem = nil
	return nil
}

// Finish ends writing and returns a random-access view of the contents.
// The view stays valid until Close.
func (b *SpillBuffer) Finish() (SizedReaderAt, error) {
	if b.closed {
		return nil, ErrReaderClosed
	}
	b.finished = true
	if b.file == nil {
		return bytes.NewReader(b.mem), nil
	}
	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind spill file: %w", err)
	}
	return &fileReaderAt{File: b.file, size: b.size}, nil
}

// Close releases memory and removes any spill file. It is idempotent.
func (b *SpillBuffer) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.mem = nil
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	b.file = nil
	if rmErr := os.Remove(name); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

type fileReaderAt struct {
	*os.File
	size int64
}

func (f *fileReaderAt) Size() int64 {
	return f.size
}
