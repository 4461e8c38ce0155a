//go:build linux || darwin

package host

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/evanphx/userprog/fs"
)

func TestHostFS(t *testing.T) {
	ctx := context.Background()

	dir := t.TempDir()

	h, err := NewHostFS(dir)
	require.NoError(t, err)

	require.NoError(t, h.Create(ctx, "data", 8))
	require.Equal(t, fs.ErrExists, errors.Cause(h.Create(ctx, "data", 8)))

	stat, err := os.Stat(filepath.Join(dir, "data"))
	require.NoError(t, err)
	require.Equal(t, int64(8), stat.Size())

	f, err := h.Open(ctx, "/data")
	require.NoError(t, err)

	n, err := f.Write([]byte("abcd"))
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, int64(4), f.Tell())

	f.Seek(0)

	buf := make([]byte, 4)
	_, err = io.ReadFull(f, buf)
	require.NoError(t, err)
	require.Equal(t, "abcd", string(buf))
	require.Equal(t, int64(8), f.Length())

	require.NoError(t, f.Close())
	require.Equal(t, fs.ErrClosed, f.Close())

	_, err = h.Open(ctx, "../escape")
	require.Equal(t, fs.ErrInvalidName, errors.Cause(err))

	_, err = h.Open(ctx, "missing")
	require.Equal(t, fs.ErrUnknownPath, errors.Cause(err))

	require.NoError(t, h.Remove(ctx, "data"))
	require.Equal(t, fs.ErrUnknownPath, errors.Cause(h.Remove(ctx, "data")))
}

func TestHostFSRefusesSymlinks(t *testing.T) {
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.Symlink(outside, filepath.Join(dir, "link")))

	h, err := NewHostFS(dir)
	require.NoError(t, err)

	_, err = h.Open(ctx, "link")
	require.Equal(t, fs.ErrInvalidName, errors.Cause(err))

	require.Equal(t, fs.ErrInvalidName, errors.Cause(h.Remove(ctx, "link")))

	_, err = os.Stat(outside)
	require.NoError(t, err)
}
