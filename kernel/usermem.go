package kernel

import (
	"bytes"
	"io"

	"github.com/pkg/errors"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/memory"
)

// AddressSpace is what the kernel needs from the memory manager to touch
// user memory.
type AddressSpace interface {
	IsUserRangeValid(addr, n uint64, writable bool) bool

	io.ReaderAt
	io.WriterAt
}

// CheckUserRange fails with ErrFault unless [addr, addr+n) is non-null,
// below memory.UserTop, and mapped (writable if requested). Nothing is
// dereferenced.
func (p *Process) CheckUserRange(addr, n uint64, writable bool) error {
	if addr == 0 {
		return errors.Wrap(ErrFault, "null pointer")
	}

	end := addr + n
	if end < addr || end > memory.UserTop {
		return errors.Wrapf(ErrFault, "range addr=%x len=%d leaves user space", addr, n)
	}

	if !p.Mem.IsUserRangeValid(addr, n, writable) {
		return errors.Wrapf(ErrFault, "range addr=%x len=%d writable=%v not mapped", addr, n, writable)
	}

	return nil
}

func (p *Process) CopyIn(addr, n uint64) ([]byte, error) {
	if err := p.CheckUserRange(addr, n, false); err != nil {
		return nil, err
	}

	buf := make([]byte, n)

	if _, err := p.Mem.ReadAt(buf, int64(addr)); err != nil {
		return nil, errors.Wrapf(ErrFault, "reading addr=%x: %s", addr, err)
	}

	return buf, nil
}

func (p *Process) CopyOut(addr uint64, data []byte) error {
	if err := p.CheckUserRange(addr, uint64(len(data)), true); err != nil {
		return err
	}

	if _, err := p.Mem.WriteAt(data, int64(addr)); err != nil {
		return errors.Wrapf(ErrFault, "writing addr=%x: %s", addr, err)
	}

	return nil
}

// ReadCString copies a NUL terminated string in from user memory, checking
// each byte before reading it. Strings longer than abi.MaxPath fault.
func (p *Process) ReadCString(addr uint64) (string, error) {
	var buf bytes.Buffer

	var t [1]byte

	off := addr

	for i := 0; i < abi.MaxPath; i++ {
		if err := p.CheckUserRange(off, 1, false); err != nil {
			return "", err
		}

		if _, err := p.Mem.ReadAt(t[:], int64(off)); err != nil {
			return "", errors.Wrapf(ErrFault, "reading addr=%x: %s", off, err)
		}

		if t[0] == 0 {
			return buf.String(), nil
		}

		buf.WriteByte(t[0])
		off += 1
	}

	return "", errors.Wrapf(ErrFault, "string at %x exceeds %d bytes", addr, abi.MaxPath)
}
