// Package ulib is the user side of the syscall boundary: the calls a
// program makes, marshalled through its own stack and trapped into the
// kernel the same way compiled user code would.
package ulib

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/kernel"
)

// User is the execution context of one running program. It is not safe
// for concurrent use; a program is a single thread.
type User struct {
	ctx  context.Context
	task *kernel.Task

	sp    uint64
	floor uint64
}

func New(ctx context.Context, task *kernel.Task) *User {
	return &User{
		ctx:   ctx,
		task:  task,
		sp:    task.SP,
		floor: task.StackBase,
	}
}

func (u *User) Task() *kernel.Task {
	return u.task
}

func (u *User) Context() context.Context {
	return u.ctx
}

// Syscall traps into the kernel. If the kernel reports the process is
// gone (exited, killed or halted) the calling goroutine stops here and
// never returns to the program.
func (u *User) Syscall(nr abi.Sysno, args ...uint64) int64 {
	var frame abi.TrapFrame

	frame.R.RAX = uint64(nr)

	for i, a := range args {
		frame.SetArg(i, a)
	}

	if err := u.task.Kernel.Trap(u.ctx, u.task, &frame); err != nil {
		runtime.Goexit()
	}

	return frame.Return()
}

// Mark returns the current scratch stack pointer for a later Release.
func (u *User) Mark() uint64 {
	return u.sp
}

func (u *User) Release(mark uint64) {
	u.sp = mark
}

// Alloc reserves n bytes of the user stack, 8 byte aligned, and returns
// their address. Running out of stack kills the process.
func (u *User) Alloc(n int) uint64 {
	sz := (uint64(n) + 7) &^ 7

	if u.sp-u.floor < sz {
		u.task.L.Error("user stack exhausted", "want", sz)
		u.task.Exit(abi.StatusKilled)
		runtime.Goexit()
	}

	u.sp -= sz

	return u.sp
}

func (u *User) PushBytes(b []byte) uint64 {
	addr := u.Alloc(len(b))

	if _, err := u.task.Mem.WriteAt(b, int64(addr)); err != nil {
		panic(err)
	}

	return addr
}

// PushString copies s and a NUL terminator onto the stack.
func (u *User) PushString(s string) uint64 {
	return u.PushBytes(append([]byte(s), 0))
}

func (u *User) peek(addr uint64, n int) []byte {
	buf := make([]byte, n)

	if _, err := u.task.Mem.ReadAt(buf, int64(addr)); err != nil {
		panic(err)
	}

	return buf
}

// Args reads the command line back out of the argument block the kernel
// built at spawn.
func (u *User) Args() []string {
	le := binary.LittleEndian

	args := make([]string, 0, u.task.Argc)

	for i := 0; i < u.task.Argc; i++ {
		ptr := le.Uint64(u.peek(u.task.Argv+uint64(8*i), 8))

		str, err := u.task.ReadCString(ptr)
		if err != nil {
			panic(err)
		}

		args = append(args, str)
	}

	return args
}

func (u *User) withString(s string, f func(addr uint64) int64) int64 {
	mark := u.Mark()
	defer u.Release(mark)

	return f(u.PushString(s))
}

func (u *User) Halt() {
	u.Syscall(abi.SYS_HALT)
}

func (u *User) Exit(code int) {
	u.Syscall(abi.SYS_EXIT, uint64(int64(code)))
}

// Exec starts cmdline as a child and returns its pid, or -1.
func (u *User) Exec(cmdline string) int {
	return int(u.withString(cmdline, func(addr uint64) int64 {
		return u.Syscall(abi.SYS_EXEC, addr)
	}))
}

func (u *User) Wait(pid int) int {
	return int(u.Syscall(abi.SYS_WAIT, uint64(int64(pid))))
}

func (u *User) Create(name string, size uint32) bool {
	return u.withString(name, func(addr uint64) int64 {
		return u.Syscall(abi.SYS_CREATE, addr, uint64(size))
	}) == 1
}

func (u *User) Remove(name string) bool {
	return u.withString(name, func(addr uint64) int64 {
		return u.Syscall(abi.SYS_REMOVE, addr)
	}) == 1
}

func (u *User) Open(name string) int {
	return int(u.withString(name, func(addr uint64) int64 {
		return u.Syscall(abi.SYS_OPEN, addr)
	}))
}

func (u *User) Filesize(fd int) int {
	return int(u.Syscall(abi.SYS_FILESIZE, uint64(int64(fd))))
}

// Read fills buf from fd and returns the byte count, or -1.
func (u *User) Read(fd int, buf []byte) int {
	mark := u.Mark()
	defer u.Release(mark)

	addr := u.Alloc(len(buf))

	n := u.Syscall(abi.SYS_READ, uint64(int64(fd)), addr, uint64(len(buf)))
	if n > 0 {
		copy(buf, u.peek(addr, int(n)))
	}

	return int(n)
}

func (u *User) Write(fd int, data []byte) int {
	mark := u.Mark()
	defer u.Release(mark)

	addr := u.PushBytes(data)

	return int(u.Syscall(abi.SYS_WRITE, uint64(int64(fd)), addr, uint64(len(data))))
}

func (u *User) Seek(fd int, pos uint32) {
	u.Syscall(abi.SYS_SEEK, uint64(int64(fd)), uint64(pos))
}

func (u *User) Tell(fd int) int {
	return int(u.Syscall(abi.SYS_TELL, uint64(int64(fd))))
}

func (u *User) Close(fd int) int {
	return int(u.Syscall(abi.SYS_CLOSE, uint64(int64(fd))))
}

// Printf writes to standard output.
func (u *User) Printf(format string, args ...interface{}) int {
	return u.Write(abi.Stdout, []byte(fmt.Sprintf(format, args...)))
}
