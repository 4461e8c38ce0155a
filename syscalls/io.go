package syscalls

import (
	"context"
	"io"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
)

// sysRead fills the user buffer from the console (fd 0) or an open file.
// The buffer is validated before any device is touched. A transfer shorter
// than requested, including one cut off by end of file, returns -1.
func sysRead(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		fd  = args.Int(0)
		ptr = args.Ptr(1)
		sz  = args.Uint(2)
	)

	if err := task.CheckUserRange(ptr, uint64(sz), true); err != nil {
		return 0, err
	}

	data := make([]byte, sz)

	var n int

	switch fd {
	case abi.Stdin:
		for n < len(data) {
			c, err := task.Kernel.Console.ReadChar()
			if err != nil {
				if err != io.EOF {
					l.Error("error reading console", "error", err)
					return abi.Error, nil
				}

				break
			}

			data[n] = c
			n++
		}
	case abi.Stdout, abi.Stderr:
		return abi.Error, nil
	default:
		h, err := task.Files.Lookup(fd)
		if err != nil {
			return abi.Error, nil
		}

		for n < len(data) {
			x, err := h.Read(data[n:])
			n += x

			if err == io.EOF {
				break
			}

			if err != nil {
				l.Error("error reading file", "fd", fd, "error", err)
				return abi.Error, nil
			}

			if x == 0 {
				break
			}
		}
	}

	if n != len(data) {
		l.Debug("short read", "fd", fd, "wanted", len(data), "read", n)
		return abi.Error, nil
	}

	if err := task.CopyOut(ptr, data); err != nil {
		return 0, err
	}

	return int64(n), nil
}

// sysWrite sends the user buffer to the console (fd 1 and 2) or an open
// file. A transfer shorter than requested is reported as -1.
func sysWrite(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	var (
		fd  = args.Int(0)
		ptr = args.Ptr(1)
		sz  = args.Uint(2)
	)

	data, err := task.CopyIn(ptr, uint64(sz))
	if err != nil {
		return 0, err
	}

	var n int

	switch fd {
	case abi.Stdout, abi.Stderr:
		n, err = task.Kernel.Console.WriteBytes(data)
	case abi.Stdin:
		return abi.Error, nil
	default:
		h, lerr := task.Files.Lookup(fd)
		if lerr != nil {
			return abi.Error, nil
		}

		n, err = h.Write(data)
	}

	if err != nil || n != len(data) {
		l.Debug("short write", "fd", fd, "wanted", len(data), "wrote", n, "error", err)
		return abi.Error, nil
	}

	return int64(n), nil
}

func init() {
	register(abi.SYS_READ, 3, sysRead)
	register(abi.SYS_WRITE, 3, sysWrite)
}
