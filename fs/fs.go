package fs

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var (
	ErrUnknownPath  = errors.New("unknown path")
	ErrExists       = errors.New("file exists")
	ErrInvalidName  = errors.New("invalid file name")
	ErrNotDirectory = errors.New("not a directory")
	ErrClosed       = errors.New("file already closed")
	ErrNoSpace      = errors.New("no space left")
)

// FileSystem is the part of a filesystem the syscall layer consumes. Names
// are flat: there is no working directory and no tree walking on the
// caller's side.
type FileSystem interface {
	Create(ctx context.Context, name string, size int64) error
	Remove(ctx context.Context, name string) error
	Open(ctx context.Context, name string) (Handle, error)
}

// Handle is an open file. Each Open returns a new Handle with its own
// position, so two descriptors never share one.
type Handle interface {
	io.Reader
	io.Writer
	io.Closer

	Seek(pos int64)
	Tell() int64
	Length() int64
}

// CleanName normalizes a user supplied name: a leading '/' is dropped, and
// empty names, embedded NULs, and ".." components are rejected.
func CleanName(name string) (string, error) {
	name = strings.TrimLeft(name, "/")

	if name == "" || strings.IndexByte(name, 0) >= 0 {
		return "", errors.Wrapf(ErrInvalidName, "name=%q", name)
	}

	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return "", errors.Wrapf(ErrInvalidName, "name=%q", name)
		}
	}

	return name, nil
}
