package kernel

import (
	"context"
	"fmt"
	"sync"

	hclog "github.com/hashicorp/go-hclog"
	"github.com/sasha-s/go-deadlock"

	"github.com/evanphx/userprog/log"
)

type prockey struct{}

// GetTask recovers the task a user context was started with. Kernel code
// receives the task explicitly; this exists for the user side of the trap
// boundary, which only holds a context.
func GetTask(ctx context.Context) (*Task, bool) {
	if v := ctx.Value(prockey{}); v != nil {
		return v.(*Task), true
	}

	return nil, false
}

func SetTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, prockey{}, t)
}

// Task is a process as seen from inside a syscall.
type Task struct {
	*Process
}

type Process struct {
	Kernel *Kernel
	Pid    int
	Name   string
	Args   []string

	Mem   AddressSpace
	Files *FDTable

	// Initial user stack pointer and the argument block written below
	// it at spawn.
	SP   uint64
	Argc int
	Argv uint64

	// StackBase is the lowest mapped stack address.
	StackBase uint64

	L hclog.Logger

	parent  int
	program Program

	mu       sync.Mutex
	exited   bool
	exitCode int
	done     chan struct{}
}

func (p *Process) Parent() int {
	return p.parent
}

func (p *Process) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exited
}

// ExitCode is only meaningful once Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.exitCode
}

// Done is closed when the process has finished terminating.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit terminates the process with code. The whole sequence runs before
// Exit returns: the exit line is printed, every descriptor is closed,
// children are orphaned, and only then is the status published and any
// waiting parent woken. Later calls are no-ops and report false.
func (p *Process) Exit(code int) bool {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return false
	}

	p.exited = true
	p.exitCode = code
	p.mu.Unlock()

	p.L.Trace("process-exit", "code", code)

	k := p.Kernel

	msg := fmt.Sprintf("%s: exit(%d)\n", p.Name, code)
	if _, err := k.Console.WriteBytes([]byte(msg)); err != nil {
		p.L.Error("error writing exit status", "error", err)
	}

	if err := p.Files.ReleaseAll(); err != nil {
		p.L.Warn("error closing files at exit", "error", err)
	}

	k.statuses.ParentExited(p.Pid)

	if err := k.statuses.Exit(p.Pid, code); err != nil {
		p.L.Error("error publishing exit status", "error", err)
	}

	k.processes.RemoveProc(p)

	close(p.done)

	return true
}

// ProcessManager hands out pids and tracks live processes. Pids increase
// monotonically and are not recycled.
type ProcessManager struct {
	mu        deadlock.RWMutex
	highWater int
	processes map[int]*Process
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		processes: make(map[int]*Process),
	}
}

func (p *ProcessManager) AssignPid(proc *Process) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.highWater++
	pid := p.highWater
	p.processes[pid] = proc
	proc.Pid = pid

	return pid
}

func (p *ProcessManager) Get(pid int) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proc, ok := p.processes[pid]
	return proc, ok
}

func (p *ProcessManager) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.processes)
}

func (p *ProcessManager) RemoveProc(proc *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.processes, proc.Pid)

	log.L.Trace("process-removed", "pid", proc.Pid, "live", len(p.processes))
}
