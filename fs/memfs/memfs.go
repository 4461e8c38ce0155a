package memfs

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/evanphx/userprog/fs"
	"github.com/evanphx/userprog/log"
)

// NameMax is the longest name Create accepts, the size of a classic
// fixed-width directory entry.
const NameMax = 14

type inode struct {
	mu   sync.RWMutex
	name string
	body []byte

	// set once the name is gone; open handles keep working
	removed bool
}

var dumper = spew.ConfigState{DisableMethods: true, DisablePointerAddresses: true}

// String summarizes the inode for trace output, leaving out the body.
func (i *inode) String() string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	return dumper.Sprintf("%+v", struct {
		Name    string
		Size    int
		Removed bool
	}{i.name, len(i.body), i.removed})
}

// FS is a flat, in-memory filesystem. Files have the size they were
// created with; writes never extend them.
type FS struct {
	mu    sync.Mutex
	files map[string]*inode

	NameMax int
}

func New() *FS {
	return &FS{
		files:   make(map[string]*inode),
		NameMax: NameMax,
	}
}

func (m *FS) Create(ctx context.Context, name string, size int64) error {
	name, err := fs.CleanName(name)
	if err != nil {
		return err
	}

	if m.NameMax > 0 && len(name) > m.NameMax {
		return errors.Wrapf(fs.ErrInvalidName, "name too long: %d > %d", len(name), m.NameMax)
	}

	if size < 0 {
		return errors.Wrapf(fs.ErrNoSpace, "size=%d", size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; ok {
		return errors.Wrapf(fs.ErrExists, "name=%s", name)
	}

	ino := &inode{
		name: name,
		body: make([]byte, size),
	}

	m.files[name] = ino

	if log.L.IsTrace() {
		log.L.Trace("memfs-create", "inode", ino.String())
	}

	return nil
}

func (m *FS) Remove(ctx context.Context, name string) error {
	name, err := fs.CleanName(name)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ino, ok := m.files[name]
	if !ok {
		return errors.Wrapf(fs.ErrUnknownPath, "name=%s", name)
	}

	delete(m.files, name)

	ino.mu.Lock()
	ino.removed = true
	ino.mu.Unlock()

	if log.L.IsTrace() {
		log.L.Trace("memfs-remove", "inode", ino.String())
	}

	return nil
}

func (m *FS) Open(ctx context.Context, name string) (fs.Handle, error) {
	name, err := fs.CleanName(name)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ino, ok := m.files[name]
	if !ok {
		return nil, errors.Wrapf(fs.ErrUnknownPath, "name=%s", name)
	}

	return &File{ino: ino}, nil
}

// Names lists the files currently present, sorted.
func (m *FS) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// File is an open handle on an inode with a private position.
type File struct {
	mu     sync.Mutex
	ino    *inode
	pos    int64
	closed bool
}

func (f *File) Read(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	f.ino.mu.RLock()
	defer f.ino.mu.RUnlock()

	if f.pos >= int64(len(f.ino.body)) {
		if len(b) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}

	n := copy(b, f.ino.body[f.pos:])
	f.pos += int64(n)

	return n, nil
}

func (f *File) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fs.ErrClosed
	}

	f.ino.mu.Lock()
	defer f.ino.mu.Unlock()

	var n int
	if f.pos < int64(len(f.ino.body)) {
		n = copy(f.ino.body[f.pos:], b)
	}

	f.pos += int64(n)

	if n < len(b) {
		return n, io.ErrShortWrite
	}

	return n, nil
}

func (f *File) Seek(pos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if pos < 0 {
		pos = 0
	}

	f.pos = pos
}

func (f *File) Tell() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pos
}

func (f *File) Length() int64 {
	f.ino.mu.RLock()
	defer f.ino.mu.RUnlock()

	return int64(len(f.ino.body))
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fs.ErrClosed
	}

	f.closed = true

	return nil
}
