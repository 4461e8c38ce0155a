package memory

import (
	"sync"

	"github.com/pkg/errors"
)

const (
	PageSize = 4096

	// UserTop is the first address above user space. Anything at or past
	// it belongs to the kernel.
	UserTop uint64 = 0x8004000000

	// CodeBase is where a program's read-only image region starts.
	CodeBase uint64 = 0x400000

	// StackTop is the top of the initial user stack; the stack region grows
	// down from here.
	StackTop uint64 = 0x47480000
)

type Region struct {
	Start, Size uint64
	Writable    bool

	linear []byte
}

func (reg *Region) Contains(x uint64) bool {
	if x < reg.Start {
		return false
	}

	if x >= reg.Start+reg.Size {
		return false
	}

	return true
}

// End is the first address past the region.
func (reg *Region) End() uint64 {
	return reg.Start + reg.Size
}

func pageRound(sz uint64) uint64 {
	if sz < PageSize {
		return PageSize
	}

	diff := sz % PageSize
	if diff == 0 {
		return sz
	}

	return sz + (PageSize - diff)
}

// Project returns the backing bytes for [addr, addr+sz). The caller must
// have checked the range lies inside the region. Backing store is
// allocated lazily, page rounded.
func (reg *Region) Project(addr, sz uint64) []byte {
	offset := addr - reg.Start

	if len(reg.linear) == 0 {
		reg.linear = make([]byte, pageRound(offset+sz))
	}

	if uint64(len(reg.linear)) < offset+sz {
		slice := make([]byte, pageRound(offset+sz))
		copy(slice, reg.linear)

		reg.linear = slice
	}

	return reg.linear[offset : offset+sz]
}

// VirtualMemory is a user address space made of non-overlapping regions.
// It stands in for the page tables of a real machine: a byte is mapped iff
// some region contains it.
type VirtualMemory struct {
	mu      sync.Mutex
	regions []*Region
}

func NewVirtualMemory() *VirtualMemory {
	return &VirtualMemory{}
}

func (vm *VirtualMemory) findRegion(addr uint64) (*Region, bool) {
	for _, reg := range vm.regions {
		if reg.Contains(addr) {
			return reg, true
		}
	}

	return nil, false
}

var (
	ErrInvalidMemoryAccess = errors.New("invalid user memory access")
	ErrBadRegionRequest    = errors.New("bad region request")
)

// IsUserRangeValid reports whether every byte of [addr, addr+n) is mapped
// user memory, and writable if writable is set. A zero length range is
// valid when addr itself is a mapped user address.
func (vm *VirtualMemory) IsUserRangeValid(addr, n uint64, writable bool) bool {
	if addr >= UserTop {
		return false
	}

	end := addr + n
	if end < addr || end > UserTop {
		return false
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()

	cur := addr
	for {
		reg, ok := vm.findRegion(cur)
		if !ok {
			return false
		}

		if writable && !reg.Writable {
			return false
		}

		if end <= reg.End() {
			return true
		}

		cur = reg.End()
	}
}

// ReadAt copies out of user memory, crossing region boundaries as needed.
func (vm *VirtualMemory) ReadAt(b []byte, off int64) (int, error) {
	return vm.transfer(b, uint64(off), false)
}

// WriteAt copies into user memory regardless of the region's writable
// flag; permission checks are the caller's job.
func (vm *VirtualMemory) WriteAt(b []byte, off int64) (int, error) {
	return vm.transfer(b, uint64(off), true)
}

func (vm *VirtualMemory) transfer(b []byte, addr uint64, write bool) (int, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	var done int

	for len(b) > 0 {
		reg, ok := vm.findRegion(addr)
		if !ok {
			return done, errors.Wrapf(ErrInvalidMemoryAccess, "address=%x", addr)
		}

		n := reg.End() - addr
		if n > uint64(len(b)) {
			n = uint64(len(b))
		}

		mem := reg.Project(addr, n)

		var c int
		if write {
			c = copy(mem, b)
		} else {
			c = copy(b, mem)
		}

		b = b[c:]
		addr += uint64(c)
		done += c
	}

	return done, nil
}

// NewRegion maps [addr, addr+size), page rounded. Requests overlapping an
// existing region or reaching into kernel space fail.
func (vm *VirtualMemory) NewRegion(addr, size uint64, writable bool) (*Region, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if addr%PageSize != 0 || size == 0 {
		return nil, errors.Wrapf(ErrBadRegionRequest, "addr=%x size=%x", addr, size)
	}

	size = pageRound(size)

	if addr+size < addr || addr+size > UserTop {
		return nil, errors.Wrapf(ErrBadRegionRequest, "addr=%x size=%x beyond user space", addr, size)
	}

	for _, reg := range vm.regions {
		if addr < reg.End() && reg.Start < addr+size {
			return nil, errors.Wrapf(ErrBadRegionRequest, "addr=%x size=%x overlaps region at %x", addr, size, reg.Start)
		}
	}

	reg := &Region{
		Start:    addr,
		Size:     size,
		Writable: writable,
	}

	vm.regions = append(vm.regions, reg)

	return reg, nil
}
