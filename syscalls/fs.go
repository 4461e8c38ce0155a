package syscalls

import (
	"context"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
)

func boolRet(ok bool) int64 {
	if ok {
		return 1
	}

	return 0
}

func sysCreate(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	path, err := task.ReadCString(args.Ptr(0))
	if err != nil {
		return 0, err
	}

	size := args.Uint(1)

	err = task.Kernel.FS.Create(ctx, path, int64(size))
	if err != nil {
		l.Debug("create failed", "path", path, "size", size, "error", err)
	}

	return boolRet(err == nil), nil
}

func sysRemove(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	path, err := task.ReadCString(args.Ptr(0))
	if err != nil {
		return 0, err
	}

	err = task.Kernel.FS.Remove(ctx, path)
	if err != nil {
		l.Debug("remove failed", "path", path, "error", err)
	}

	return boolRet(err == nil), nil
}

func sysOpen(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	path, err := task.ReadCString(args.Ptr(0))
	if err != nil {
		return 0, err
	}

	l.Trace("open file", "path", path)

	h, err := task.Kernel.FS.Open(ctx, path)
	if err != nil {
		l.Debug("open failed", "path", path, "error", err)
		return abi.Error, nil
	}

	fd, err := task.Files.Allocate(h)
	if err != nil {
		l.Debug("unable to bind descriptor", "path", path, "capacity", task.Files.Capacity(), "error", err)

		if cerr := h.Close(); cerr != nil {
			l.Warn("error closing unbound handle", "path", path, "error", cerr)
		}

		return abi.Error, nil
	}

	return int64(fd), nil
}

func sysFilesize(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	h, err := task.Files.Lookup(args.Int(0))
	if err != nil {
		return abi.Error, nil
	}

	return h.Length(), nil
}

func sysSeek(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	h, err := task.Files.Lookup(args.Int(0))
	if err != nil {
		l.Debug("seek on bad descriptor", "fd", args.Int(0))
		return 0, nil
	}

	h.Seek(int64(args.Uint(1)))

	return 0, nil
}

func sysTell(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	h, err := task.Files.Lookup(args.Int(0))
	if err != nil {
		return abi.Error, nil
	}

	return h.Tell(), nil
}

func sysClose(ctx context.Context, l hclog.Logger, task *kernel.Task, args SysArgs) (int64, error) {
	fd := args.Int(0)

	if err := task.Files.Release(fd); err != nil {
		l.Debug("error closing fd", "error", err, "fd", fd)
		return abi.Error, nil
	}

	return 0, nil
}

func init() {
	register(abi.SYS_CREATE, 2, sysCreate)
	register(abi.SYS_REMOVE, 1, sysRemove)
	register(abi.SYS_OPEN, 1, sysOpen)
	register(abi.SYS_FILESIZE, 1, sysFilesize)
	register(abi.SYS_SEEK, 2, sysSeek)
	register(abi.SYS_TELL, 1, sysTell)
	register(abi.SYS_CLOSE, 1, sysClose)
}
