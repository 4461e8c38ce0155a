package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
)

func sysHalt(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	l.Debug("halt requested")

	task.Kernel.Halt()

	return 0, kernel.ErrHalted
}

func sysExit(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	task.Exit(args.Int(0))

	return 0, kernel.ErrExited
}

// sysWait blocks until the given child has exited and returns its status.
// Each child can be waited for once.
func sysWait(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	child := args.Int(0)

	k := task.Kernel

	code, err := k.Statuses().Wait(k.Context(), task.Pid, child)
	if err != nil {
		switch errors.Cause(err) {
		case kernel.ErrNotAChild, kernel.ErrAlreadyReaped:
			l.Debug("wait refused", "child", child, "error", err)
			return abi.Error, nil
		}

		if k.Halted() {
			return 0, kernel.ErrHalted
		}

		return 0, err
	}

	l.Trace("wait-found-child", "child", child, "status", code)

	return int64(code), nil
}

func init() {
	register(abi.SYS_HALT, 0, sysHalt)
	register(abi.SYS_EXIT, 1, sysExit)
	register(abi.SYS_WAIT, 1, sysWait)
}
