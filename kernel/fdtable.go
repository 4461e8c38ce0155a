package kernel

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/fs"
)

const tableFull = -1

// FDTable maps descriptors to open handles for one process. Slots 0-2 are
// the standard streams; they are served by the console and never hold a
// handle.
type FDTable struct {
	mu    sync.Mutex
	files []fs.Handle

	// lowest unbound descriptor >= abi.FirstFileFd, or tableFull
	next  int
	count int
}

func NewFDTable(capacity int) *FDTable {
	if capacity <= abi.FirstFileFd {
		panic("descriptor table too small")
	}

	return &FDTable{
		files: make([]fs.Handle, capacity),
		next:  abi.FirstFileFd,
	}
}

// Capacity counts every slot, the three standard streams included.
func (t *FDTable) Capacity() int {
	return len(t.files)
}

// Count is the number of bound descriptors, standard streams excluded.
func (t *FDTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.count
}

// Next is the descriptor the next Allocate would return, or -1 when full.
func (t *FDTable) Next() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.next
}

// Allocate binds h to the lowest unbound descriptor >= 3.
func (t *FDTable) Allocate(h fs.Handle) (int, error) {
	if h == nil {
		return 0, errors.Wrap(ErrBadDescriptor, "nil handle")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.next == tableFull {
		return 0, errors.Wrapf(ErrTableFull, "capacity=%d", len(t.files))
	}

	fd := t.next

	t.files[fd] = h
	t.count++

	t.next = tableFull
	for i := fd + 1; i < len(t.files); i++ {
		if t.files[i] == nil {
			t.next = i
			break
		}
	}

	return fd, nil
}

func (t *FDTable) lookup(fd int) (fs.Handle, error) {
	if fd < abi.FirstFileFd || fd >= len(t.files) {
		return nil, errors.Wrapf(ErrBadDescriptor, "fd=%d", fd)
	}

	h := t.files[fd]
	if h == nil {
		return nil, errors.Wrapf(ErrBadDescriptor, "fd=%d not open", fd)
	}

	return h, nil
}

// Lookup returns the handle bound to fd. Standard stream descriptors are
// not regular files and fail like unbound ones.
func (t *FDTable) Lookup(fd int) (fs.Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.lookup(fd)
}

// Release unbinds fd and closes its handle. The slot is free even if the
// close itself fails.
func (t *FDTable) Release(fd int) error {
	t.mu.Lock()

	h, err := t.lookup(fd)
	if err != nil {
		t.mu.Unlock()
		return err
	}

	t.files[fd] = nil
	t.count--

	if t.next == tableFull || fd < t.next {
		t.next = fd
	}

	t.mu.Unlock()

	if err := h.Close(); err != nil {
		return errors.Wrapf(ErrIO, "closing fd=%d: %s", fd, err)
	}

	return nil
}

// ReleaseAll closes every open handle in ascending descriptor order and
// leaves the table empty. Calling it again is a no-op. The first close
// error is returned after all handles have been closed.
func (t *FDTable) ReleaseAll() error {
	t.mu.Lock()

	var open []fs.Handle

	for fd := abi.FirstFileFd; fd < len(t.files); fd++ {
		if h := t.files[fd]; h != nil {
			open = append(open, h)
			t.files[fd] = nil
		}
	}

	t.count = 0
	t.next = abi.FirstFileFd

	t.mu.Unlock()

	var first error

	for _, h := range open {
		if err := h.Close(); err != nil && first == nil {
			first = errors.Wrapf(ErrIO, "closing handle: %s", err)
		}
	}

	return first
}
