package ulib_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/console"
	"github.com/evanphx/userprog/fs/memfs"
	"github.com/evanphx/userprog/kernel"
	"github.com/evanphx/userprog/syscalls"
	"github.com/evanphx/userprog/ulib"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.Write(b)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.String()
}

type machine struct {
	k   *kernel.Kernel
	out *syncBuffer
}

func newMachine(t *testing.T, input string) *machine {
	out := &syncBuffer{}

	k, err := kernel.NewKernel(kernel.Options{
		FS:        memfs.New(),
		Console:   console.New(strings.NewReader(input), out),
		StackSize: 16384,
	})
	require.NoError(t, err)

	k.Invoker = &syscalls.Invoker{Kernel: k}

	return &machine{k: k, out: out}
}

func (m *machine) program(name string, f func(u *ulib.User) int) {
	m.k.RegisterProgram(name, func(ctx context.Context, task *kernel.Task) int {
		return f(ulib.New(ctx, task))
	})
}

func (m *machine) run(t *testing.T, args ...string) *kernel.Process {
	p, err := m.k.InitProcess(args)
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process never finished")
	}

	return p
}

func TestUser(t *testing.T) {
	n := neko.Modern(t)

	n.It("reads its command line from the argument block", func(t *testing.T) {
		m := newMachine(t, "")

		var args []string

		m.program("echo", func(u *ulib.User) int {
			args = u.Args()
			return 0
		})

		m.run(t, "echo", "a", "bc")

		require.Equal(t, []string{"echo", "a", "bc"}, args)
	})

	n.It("round trips data through a file", func(t *testing.T) {
		m := newMachine(t, "")

		m.program("files", func(u *ulib.User) int {
			require.True(t, u.Create("data", 5))
			require.False(t, u.Create("data", 5))

			fd := u.Open("data")
			require.Equal(t, 3, fd)
			require.Equal(t, 5, u.Filesize(fd))

			require.Equal(t, 5, u.Write(fd, []byte("hello")))
			require.Equal(t, 5, u.Tell(fd))

			u.Seek(fd, 1)

			buf := make([]byte, 8)
			require.Equal(t, -1, u.Read(fd, buf))

			u.Seek(fd, 1)
			require.Equal(t, 4, u.Read(fd, buf[:4]))
			require.Equal(t, "ello", string(buf[:4]))

			require.Equal(t, 0, u.Close(fd))
			require.Equal(t, -1, u.Close(fd))

			require.True(t, u.Remove("data"))
			require.Equal(t, -1, u.Open("data"))

			return 0
		})

		p := m.run(t, "files")

		require.Equal(t, 0, p.ExitCode())
		require.Equal(t, "files: exit(0)\n", m.out.String())
	})

	n.It("releases scratch stack after each call", func(t *testing.T) {
		m := newMachine(t, "")

		m.program("loop", func(u *ulib.User) int {
			mark := u.Mark()

			for i := 0; i < 1000; i++ {
				u.Printf("")
				u.Create("f", 1)
			}

			require.Equal(t, mark, u.Mark())

			return 0
		})

		p := m.run(t, "loop")
		require.Equal(t, 0, p.ExitCode())
	})

	n.It("reads the console", func(t *testing.T) {
		m := newMachine(t, "ping")

		m.program("cat", func(u *ulib.User) int {
			buf := make([]byte, 16)
			n := u.Read(abi.Stdin, buf)
			u.Write(abi.Stdout, buf[:n])
			return n
		})

		p := m.run(t, "cat")

		require.Equal(t, 4, p.ExitCode())
		require.Equal(t, "pingcat: exit(4)\n", m.out.String())
	})

	n.It("does not return from exit", func(t *testing.T) {
		m := newMachine(t, "")

		m.program("quit", func(u *ulib.User) int {
			u.Exit(9)
			u.Printf("unreachable")
			return 0
		})

		p := m.run(t, "quit")

		require.Equal(t, 9, p.ExitCode())
		require.Equal(t, "quit: exit(9)\n", m.out.String())
	})

	n.It("is killed for a bad pointer", func(t *testing.T) {
		m := newMachine(t, "")

		m.program("bad", func(u *ulib.User) int {
			u.Syscall(abi.SYS_WRITE, abi.Stdout, 0x10000000, 4)
			u.Printf("unreachable")
			return 0
		})

		p := m.run(t, "bad")

		require.Equal(t, abi.StatusKilled, p.ExitCode())
		require.Equal(t, "bad: exit(-1)\n", m.out.String())
	})

	n.It("spawns and waits for children", func(t *testing.T) {
		m := newMachine(t, "")

		m.program("child", func(u *ulib.User) int {
			return len(u.Args())
		})

		var first, second int

		m.program("parent", func(u *ulib.User) int {
			pid := u.Exec("child x y")
			require.True(t, pid > 0)

			first = u.Wait(pid)
			second = u.Wait(pid)

			require.Equal(t, -1, u.Exec("missing"))

			return 0
		})

		m.run(t, "parent")

		require.Equal(t, 3, first)
		require.Equal(t, -1, second)
		require.Equal(t, "child: exit(3)\nparent: exit(0)\n", m.out.String())
	})

	n.It("stops when the machine halts", func(t *testing.T) {
		m := newMachine(t, "")

		m.program("off", func(u *ulib.User) int {
			u.Halt()
			u.Printf("unreachable")
			return 0
		})

		p, err := m.k.InitProcess([]string{"off"})
		require.NoError(t, err)

		select {
		case <-m.k.Halting():
		case <-time.After(5 * time.Second):
			t.Fatal("machine never halted")
		}

		m.k.Wait()

		require.False(t, p.Exited())
		require.Equal(t, "", m.out.String())
	})

	n.Meow()
}
