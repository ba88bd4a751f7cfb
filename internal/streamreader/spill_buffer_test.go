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
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spillFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, SpillFilePrefix+"*"))
	require.NoError(t, err)
	return matches
}

func TestSpillBuffer_InMemory(t *testing.T) {
	dir := t.TempDir()
	b := NewSpillBuffer(SpillOptions{MaxMemoryBytes: 1024, Dir: dir}, nil)

	_, err := b.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = b.Write([]byte("world"))
	require.NoError(t, err)
	assert.False(t, b.Spilled())
	assert.Empty(t, spillFiles(t, dir))

	r, err := b.Finish()
	require.NoError(t, err)
	assert.Equal(t, int64(11), r.Size())
	got, err := io.ReadAll(io.NewSectionReader(r, 0, r.Size()))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	require.NoError(t, b.Close())
}

func TestSpillBuffer_SpillsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	b := NewSpillBuffer(SpillOptions{MaxMemoryBytes: 16, Dir: dir}, nil)

	var want bytes.Buffer
	for i := range 10 {
		chunk := []byte(strings.Repeat(string(rune('a'+i)), 7))
		want.Write(chunk)
		_, err := b.Write(chunk)
		require.NoError(t, err)
	}
	assert.True(t, b.Spilled())
	assert.Len(t, spillFiles(t, dir), 1)

	r, err := b.Finish()
	require.NoError(t, err)
	assert.Equal(t, int64(want.Len()), r.Size())

	part := make([]byte, 7)
	_, err = r.ReadAt(part, 14)
	require.NoError(t, err)
	assert.Equal(t, "ccccccc", string(part))

	_, err = b.Write([]byte("late"))
	assert.Error(t, err, "writes after Finish fail")

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Empty(t, spillFiles(t, dir), "spill file removed on close")
}

func TestSpillBuffer_Overflow(t *testing.T) {
	t.Run("spill disabled", func(t *testing.T) {
		b := NewSpillBuffer(SpillOptions{MaxMemoryBytes: 8, Disabled: true, Dir: t.TempDir()}, nil)
		_, err := b.Write([]byte("12345678"))
		require.NoError(t, err)
		_, err = b.Write([]byte("9"))
		var bo *BufferOverflowError
		require.ErrorAs(t, err, &bo)
		assert.Equal(t, int64(8), bo.Limit)
		assert.Equal(t, int64(9), bo.Size)
	})

	t.Run("total limit", func(t *testing.T) {
		dir := t.TempDir()
		b := NewSpillBuffer(SpillOptions{MaxMemoryBytes: 4, MaxTotalBytes: 10, Dir: dir}, nil)
		defer func() { _ = b.Close() }()
		_, err := b.Write([]byte("0123456789"))
		require.NoError(t, err)
		_, err = b.Write([]byte("x"))
		var bo *BufferOverflowError
		require.ErrorAs(t, err, &bo)
		assert.Equal(t, int64(10), bo.Limit)
	})

	t.Run("no free space", func(t *testing.T) {
		dir := t.TempDir()
		b := NewSpillBuffer(SpillOptions{MaxMemoryBytes: 4, Dir: dir}, nil)
		b.freeSpace = func(string) (uint64, error) { return 2, nil }
		_, err := b.Write([]byte("too much"))
		var bo *BufferOverflowError
		require.ErrorAs(t, err, &bo)
		assert.Contains(t, bo.Reason, dir)
		assert.Empty(t, spillFiles(t, dir))
	})
}

func TestSpillBuffer_ClosedBuffer(t *testing.T) {
	b := NewSpillBuffer(SpillOptions{}, nil)
	require.NoError(t, b.Close())
	_, err := b.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrReaderClosed)
	_, err = b.Finish()
	assert.ErrorIs(t, err, ErrReaderClosed)
}

func TestSpillBuffer_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	b := NewSpillBuffer(SpillOptions{MaxMemoryBytes: 1, Dir: dir}, nil)
	b.freeSpace = func(string) (uint64, error) { return 1 << 30, nil }
	_, err := b.Write([]byte("ab"))
	require.Error(t, err)
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}
