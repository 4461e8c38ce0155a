package programs

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"

	"github.com/evanphx/userprog/console"
	"github.com/evanphx/userprog/fs/memfs"
	"github.com/evanphx/userprog/kernel"
	"github.com/evanphx/userprog/syscalls"
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
	fs  *memfs.FS
	out *syncBuffer
}

func boot(t *testing.T, input string) *machine {
	out := &syncBuffer{}
	mfs := memfs.New()

	k, err := kernel.NewKernel(kernel.Options{
		FS:         mfs,
		Console:    console.New(strings.NewReader(input), out),
		FDCapacity: 8,
	})
	require.NoError(t, err)

	k.Invoker = &syscalls.Invoker{Kernel: k}

	Register(k)

	return &machine{k: k, fs: mfs, out: out}
}

func (m *machine) file(t *testing.T, name, body string) {
	require.NoError(t, m.fs.Create(context.Background(), name, int64(len(body))))

	h, err := m.fs.Open(context.Background(), name)
	require.NoError(t, err)

	_, err = h.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, h.Close())
}

// run starts args as the initial process and waits for the machine to go
// idle.
func (m *machine) run(t *testing.T, args ...string) *kernel.Process {
	p, err := m.k.InitProcess(args)
	require.NoError(t, err)

	select {
	case <-p.Done():
	case <-m.k.Halting():
	case <-time.After(5 * time.Second):
		t.Fatal("program never finished")
	}

	m.k.Wait()

	return p
}

func TestPrograms(t *testing.T) {
	n := neko.Modern(t)

	n.It("registers every builtin", func(t *testing.T) {
		m := boot(t, "")

		for _, name := range Names() {
			_, ok := m.k.LookupProgram(name)
			require.True(t, ok, name)
		}
	})

	n.It("echoes its arguments", func(t *testing.T) {
		m := boot(t, "")

		p := m.run(t, "echo", "hello", "world")

		require.Equal(t, 0, p.ExitCode())
		require.Equal(t, "hello world\necho: exit(0)\n", m.out.String())
	})

	n.It("cats files and stdin", func(t *testing.T) {
		m := boot(t, "from stdin")
		m.file(t, "a", strings.Repeat("x", 1000))

		m.run(t, "cat", "a")
		require.Equal(t, strings.Repeat("x", 1000)+"cat: exit(0)\n", m.out.String())

		m = boot(t, "from stdin")
		m.run(t, "cat")
		require.Equal(t, "from stdincat: exit(0)\n", m.out.String())
	})

	n.It("reports missing files on stderr", func(t *testing.T) {
		m := boot(t, "")

		p := m.run(t, "cat", "nope")

		require.Equal(t, 1, p.ExitCode())
		require.Equal(t, "cat: nope: cannot open\ncat: exit(1)\n", m.out.String())
	})

	n.It("copies a file", func(t *testing.T) {
		m := boot(t, "")
		m.file(t, "src", "payload")

		p := m.run(t, "cp", "src", "dst")
		require.Equal(t, 0, p.ExitCode())

		h, err := m.fs.Open(context.Background(), "dst")
		require.NoError(t, err)

		buf := make([]byte, 16)
		cnt, _ := h.Read(buf)
		require.Equal(t, "payload", string(buf[:cnt]))
	})

	n.It("creates, sizes and removes files", func(t *testing.T) {
		m := boot(t, "")

		require.Equal(t, 0, m.run(t, "create", "f", "42").ExitCode())
		require.Equal(t, []string{"f"}, m.fs.Names())

		require.Equal(t, 0, m.run(t, "rm", "f").ExitCode())
		require.Empty(t, m.fs.Names())

		require.Equal(t, 1, m.run(t, "rm", "f").ExitCode())
	})

	n.It("prints the size of files", func(t *testing.T) {
		m := boot(t, "")
		m.file(t, "f", "12345")

		m.run(t, "size", "f")
		require.Equal(t, "f 5\nsize: exit(0)\n", m.out.String())
	})

	n.It("exits with the requested status", func(t *testing.T) {
		m := boot(t, "")

		p := m.run(t, "exit", "-7")

		require.Equal(t, -7, p.ExitCode())
		require.Equal(t, "exit: exit(-7)\n", m.out.String())
	})

	n.It("waits for a child and reports its status", func(t *testing.T) {
		m := boot(t, "")

		p := m.run(t, "run", "exit", "7")

		require.Equal(t, 7, p.ExitCode())

		out := m.out.String()
		require.Contains(t, out, "exit: exit(7)\n")
		require.Contains(t, out, "= 7\n")
		require.True(t, strings.HasSuffix(out, "run: exit(7)\n"))
	})

	n.It("runs a command per shell line", func(t *testing.T) {
		m := boot(t, "echo one\n\nnothere\necho two\nexit\necho never\n")

		p := m.run(t, "sh")

		require.Equal(t, 0, p.ExitCode())
		require.Equal(t,
			"$ one\necho: exit(0)\n$ $ sh: nothere: cannot exec\n$ two\necho: exit(0)\n$ sh: exit(0)\n",
			m.out.String())
	})

	n.It("kills programs that pass bad pointers or calls", func(t *testing.T) {
		m := boot(t, "")

		p := m.run(t, "bad-ptr")
		require.Equal(t, -1, p.ExitCode())
		require.Equal(t, "bad-ptr: exit(-1)\n", m.out.String())

		m = boot(t, "")

		p = m.run(t, "bad-call")
		require.Equal(t, -1, p.ExitCode())
		require.Equal(t, "bad-call: exit(-1)\n", m.out.String())
	})

	n.It("closes leaked descriptors at exit", func(t *testing.T) {
		m := boot(t, "")
		m.file(t, "f", "x")

		p := m.run(t, "leak", "f", "10")

		require.Equal(t, 5, p.ExitCode())

		p = m.run(t, "leak", "f", "2")
		require.Equal(t, 2, p.ExitCode())
	})

	n.It("lets orphans finish", func(t *testing.T) {
		m := boot(t, "")

		m.run(t, "orphan", "exit", "3")

		require.Eventually(t, func() bool {
			return strings.Contains(m.out.String(), "exit: exit(3)\n")
		}, 5*time.Second, time.Millisecond)

		require.Eventually(t, func() bool {
			return m.k.Statuses().Len() == 0
		}, 5*time.Second, time.Millisecond)
	})

	n.It("halts the machine", func(t *testing.T) {
		m := boot(t, "")

		p := m.run(t, "halt")

		require.True(t, m.k.Halted())
		require.False(t, p.Exited())
		require.Equal(t, "", m.out.String())
	})

	n.Meow()
}
