package syscalls

import (
	"context"
	"strings"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
)

// sysExec spawns the program named by the first word of the command line
// as a child of the caller. The remaining words become its arguments.
func sysExec(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	cmdline, err := task.ReadCString(args.Ptr(0))
	if err != nil {
		return 0, err
	}

	argv := strings.Fields(cmdline)
	if len(argv) == 0 {
		l.Debug("exec with empty command line")
		return abi.Error, nil
	}

	child, err := task.Kernel.Exec(task.Process, argv)
	if err != nil {
		if task.Kernel.Halted() {
			return 0, kernel.ErrHalted
		}

		l.Debug("unable to exec process", "error", err, "cmdline", cmdline)
		return abi.Error, nil
	}

	l.Trace("exec", "child", child.Pid, "name", child.Name)

	return int64(child.Pid), nil
}

func init() {
	register(abi.SYS_EXEC, 1, sysExec)
}
