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

package cloudstorage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileOpener_BucketUnderBase(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "bucket", "path"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "bucket", "path", "rows.csv"), []byte("a,b\n1,2\n"), 0o644))

	body, size, err := NewFileOpener(base).Open(context.Background(), "bucket", "path/rows.csv")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	assert.Equal(t, int64(8), size)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	cb, ok := body.(*countingBody)
	require.True(t, ok)
	assert.Equal(t, int64(8), cb.n)
}

func TestFileOpener_PlainPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(p, []byte("x\n"), 0o644))

	loc, err := ParseURI(p)
	require.NoError(t, err)

	body, size, err := NewFileOpener("").Open(context.Background(), loc.Bucket, loc.Key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), size)
	require.NoError(t, body.Close())
	require.NoError(t, body.Close())
}

func TestFileOpener_NotFound(t *testing.T) {
	_, _, err := NewFileOpener(t.TempDir()).Open(context.Background(), "bucket", "missing.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestFileOpener_Directory(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "bucket", "dir"), 0o755))

	_, _, err := NewFileOpener(base).Open(context.Background(), "bucket", "dir")
	assert.Error(t, err)
}

func TestFileOpener_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := NewFileOpener("").Open(ctx, "", "/etc/hostname")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpeners_FileScheme(t *testing.T) {
	p := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(p, []byte("1\n"), 0o644))

	o := NewOpeners(Config{})
	t.Cleanup(func() { _ = o.Close() })

	loc, op, err := o.Open(context.Background(), "file://"+p)
	require.NoError(t, err)
	assert.Equal(t, SchemeFile, loc.Scheme)

	body, _, err := op.Open(context.Background(), loc.Bucket, loc.Key)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	again, err := o.ForScheme(context.Background(), SchemeFile)
	require.NoError(t, err)
	assert.Same(t, op, again)
}

type stubOpener struct{}

func (stubOpener) Open(context.Context, string, string) (io.ReadCloser, int64, error) {
	return io.NopCloser(nil), 0, nil
}

func TestOpeners_RegisterOverridesDefault(t *testing.T) {
	o := NewOpeners(Config{})
	var stub Opener = stubOpener{}
	o.Register(SchemeS3, stub)

	got, err := o.ForScheme(context.Background(), SchemeS3)
	require.NoError(t, err)
	assert.Equal(t, stub, got)

	_, err = o.ForScheme(context.Background(), Scheme("ftp"))
	assert.Error(t, err)
}
