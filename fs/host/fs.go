//go:build linux || darwin

package host

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/evanphx/userprog/fs"
	"github.com/evanphx/userprog/log"
)

const resolveCacheSize = 1000

// HostFS exposes the regular files under a host directory. Names never
// resolve outside Root.
type HostFS struct {
	Root string

	resolved *lru.ARCCache
}

func NewHostFS(path string) (*HostFS, error) {
	log.L.Trace("creating host fs", "path", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(abs)
	if err != nil {
		log.L.Error("error stating hostfs path", "error", err)
		return nil, err
	}

	if !stat.IsDir() {
		return nil, errors.Wrapf(fs.ErrNotDirectory, "path=%s", abs)
	}

	cache, err := lru.NewARC(resolveCacheSize)
	if err != nil {
		return nil, err
	}

	return &HostFS{
		Root:     abs,
		resolved: cache,
	}, nil
}

func (h *HostFS) resolve(name string) (string, error) {
	if val, ok := h.resolved.Get(name); ok {
		return val.(string), nil
	}

	clean, err := fs.CleanName(name)
	if err != nil {
		return "", err
	}

	cp := filepath.Join(h.Root, filepath.FromSlash(clean))

	if cp != h.Root && !strings.HasPrefix(cp, h.Root+string(filepath.Separator)) {
		return "", errors.Wrapf(fs.ErrInvalidName, "name=%q escapes root", name)
	}

	h.resolved.Add(name, cp)

	return cp, nil
}

func (h *HostFS) Create(ctx context.Context, name string, size int64) error {
	cp, err := h.resolve(name)
	if err != nil {
		return err
	}

	fd, err := unix.Open(cp, unix.O_CREAT|unix.O_EXCL|unix.O_WRONLY|unix.O_CLOEXEC, 0644)
	if err != nil {
		if err == unix.EEXIST {
			return errors.Wrapf(fs.ErrExists, "name=%s", name)
		}

		if err == unix.ENOENT || err == unix.ENOTDIR {
			return errors.Wrapf(fs.ErrUnknownPath, "name=%s", name)
		}

		return errors.Wrapf(err, "creating %s", cp)
	}

	defer unix.Close(fd)

	if size > 0 {
		if err := unix.Ftruncate(fd, size); err != nil {
			return errors.Wrapf(err, "sizing %s", cp)
		}
	}

	log.L.Trace("hostfs-create", "path", cp, "size", size)

	return nil
}

func (h *HostFS) Remove(ctx context.Context, name string) error {
	cp, err := h.resolve(name)
	if err != nil {
		return err
	}

	stat, err := os.Lstat(cp)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(fs.ErrUnknownPath, "name=%s", name)
		}

		return err
	}

	if !stat.Mode().IsRegular() {
		return errors.Wrapf(fs.ErrInvalidName, "name=%s is not a regular file", name)
	}

	return os.Remove(cp)
}

func (h *HostFS) Open(ctx context.Context, name string) (fs.Handle, error) {
	cp, err := h.resolve(name)
	if err != nil {
		return nil, err
	}

	// Symlinks are refused so nothing under Root can point outside it.
	stat, err := os.Lstat(cp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(fs.ErrUnknownPath, "name=%s", name)
		}

		return nil, err
	}

	if !stat.Mode().IsRegular() {
		return nil, errors.Wrapf(fs.ErrInvalidName, "name=%s is not a regular file", name)
	}

	f, err := os.OpenFile(cp, os.O_RDWR|unix.O_NOFOLLOW, 0)
	if err != nil {
		if !os.IsPermission(err) {
			return nil, err
		}

		f, err = os.OpenFile(cp, os.O_RDONLY|unix.O_NOFOLLOW, 0)
		if err != nil {
			return nil, err
		}
	}

	return &Entry{f: f}, nil
}

// Entry is an open host file.
type Entry struct {
	f *os.File
}

func (e *Entry) Read(b []byte) (int, error) {
	return e.f.Read(b)
}

func (e *Entry) Write(b []byte) (int, error) {
	return e.f.Write(b)
}

func (e *Entry) Seek(pos int64) {
	if pos < 0 {
		pos = 0
	}

	e.f.Seek(pos, io.SeekStart)
}

func (e *Entry) Tell() int64 {
	pos, err := e.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0
	}

	return pos
}

func (e *Entry) Length() int64 {
	stat, err := e.f.Stat()
	if err != nil {
		return 0
	}

	return stat.Size()
}

func (e *Entry) Close() error {
	err := e.f.Close()
	if errors.Is(err, os.ErrClosed) {
		return fs.ErrClosed
	}

	return err
}
