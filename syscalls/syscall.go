package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
)

// SysArgs carries the arguments a call declared; registers past its arity
// are always zero.
type SysArgs struct {
	Index abi.Sysno
	Args  [abi.MaxArgs]uint64
}

// Int reads argument i as a C int.
func (a SysArgs) Int(i int) int {
	return int(int32(a.Args[i]))
}

// Uint reads argument i as a C unsigned.
func (a SysArgs) Uint(i int) uint32 {
	return uint32(a.Args[i])
}

func (a SysArgs) Ptr(i int) uint64 {
	return a.Args[i]
}

// Handler implements one call. A nil error means the returned value goes
// to the caller. A non-nil error is one of kernel.ErrFault,
// kernel.ErrBadSyscall (the caller is killed), kernel.ErrExited or
// kernel.ErrHalted (the caller is gone); recoverable failures are
// reported as abi.Error with a nil error.
type Handler func(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error)

type Syscall struct {
	Name string
	Args int
	Fn   Handler
}

// Syscalls is indexed by call number. Entries are filled in by the init
// functions of this package and never change afterwards.
var Syscalls [abi.MaxSysno]Syscall

func register(nr abi.Sysno, args int, fn Handler) {
	Syscalls[nr] = Syscall{
		Name: nr.String(),
		Args: args,
		Fn:   fn,
	}
}
