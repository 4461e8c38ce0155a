package syscalls

import (
	"context"

	"github.com/davecgh/go-spew/spew"
	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
	"github.com/evanphx/userprog/log"
)

// Invoker is the syscall dispatcher installed as a kernel's trap handler.
type Invoker struct {
	Kernel *kernel.Kernel
}

var frameDump = spew.ConfigState{Indent: " ", DisableMethods: true, DisablePointerAddresses: true}

// InvokeSyscall decodes frame, runs the matching handler, and stores its
// result in RAX. A nil return means the caller may resume. Otherwise the
// caller must not run again: kernel.ErrExited when the process is gone
// (exit, or killed for a bad call or pointer) and kernel.ErrHalted when
// the machine is off.
func (i *Invoker) InvokeSyscall(ctx context.Context, task *kernel.Task, frame *abi.TrapFrame) error {
	if i.Kernel.Halted() {
		return kernel.ErrHalted
	}

	if task.Exited() {
		return kernel.ErrExited
	}

	l := task.L
	if l == nil {
		l = log.L.With("pid", task.Pid)
	}

	nr := frame.Sysno()

	var sc *Syscall
	if nr < abi.MaxSysno {
		sc = &Syscalls[nr]
	}

	if sc == nil || sc.Fn == nil {
		return i.kill(l, task, errors.Wrapf(kernel.ErrBadSyscall, "sysno=%d (%s)", uint64(nr), nr))
	}

	args := SysArgs{Index: nr}
	for j := 0; j < sc.Args; j++ {
		args.Args[j] = frame.Arg(j)
	}

	if l.IsTrace() {
		l.Trace("syscall", "name", sc.Name, "args", frameDump.Sdump(args.Args[:sc.Args]))
	}

	ret, err := sc.Fn(ctx, l, task, args)
	if err != nil {
		switch errors.Cause(err) {
		case kernel.ErrFault, kernel.ErrBadSyscall:
			return i.kill(l, task, err)
		case kernel.ErrExited:
			return kernel.ErrExited
		case kernel.ErrHalted:
			return kernel.ErrHalted
		default:
			l.Error("unexpected syscall error", "name", sc.Name, "error", err)
			ret = abi.Error
		}
	}

	l.Trace("syscall-return", "name", sc.Name, "ret", ret)

	frame.SetReturn(ret)

	return nil
}

func (i *Invoker) kill(l hclog.Logger, task *kernel.Task, err error) error {
	l.Warn("killing process", "name", task.Name, "error", err)

	task.Exit(abi.StatusKilled)

	return kernel.ErrExited
}
