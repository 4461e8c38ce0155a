package kernel

import (
	"context"
	"io"
	"sync"

	hclog "github.com/hashicorp/go-hclog"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/fs"
	"github.com/evanphx/userprog/log"
)

// Console is the character device behind descriptors 0, 1 and 2.
type Console interface {
	ReadChar() (byte, error)
	WriteBytes(b []byte) (int, error)
}

type nullConsole struct{}

func (nullConsole) ReadChar() (byte, error) {
	return 0, io.EOF
}

func (nullConsole) WriteBytes(b []byte) (int, error) {
	return len(b), nil
}

// TrapHandler receives every syscall a user context issues.
type TrapHandler interface {
	InvokeSyscall(ctx context.Context, task *Task, frame *abi.TrapFrame) error
}

// Program is the body of a user process. Its return value is the exit
// status when it returns normally.
type Program func(ctx context.Context, task *Task) int

type Options struct {
	FS      fs.FileSystem
	Console Console

	FDCapacity int
	StackSize  uint64

	// PowerOff runs once when the machine halts.
	PowerOff func()

	Logger hclog.Logger
}

type Kernel struct {
	FS      fs.FileSystem
	Console Console
	Invoker TrapHandler

	L hclog.Logger

	fdCapacity int
	stackSize  uint64
	powerOff   func()

	processes *ProcessManager
	statuses  *Registry

	progMu   sync.RWMutex
	programs map[string]Program

	ctx      context.Context
	halt     context.CancelFunc
	haltOnce sync.Once

	running sync.WaitGroup
}

func NewKernel(opts Options) (*Kernel, error) {
	if opts.FDCapacity == 0 {
		opts.FDCapacity = abi.OpenMax
	}

	if opts.StackSize == 0 {
		opts.StackSize = 64 * 1024
	}

	if opts.Logger == nil {
		opts.Logger = log.L
	}

	if opts.Console == nil {
		opts.Console = nullConsole{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	k := &Kernel{
		FS:         opts.FS,
		Console:    opts.Console,
		L:          opts.Logger,
		fdCapacity: opts.FDCapacity,
		stackSize:  opts.StackSize,
		powerOff:   opts.PowerOff,
		processes:  NewProcessManager(),
		statuses:   NewRegistry(),
		programs:   make(map[string]Program),
		ctx:        ctx,
		halt:       cancel,
	}

	return k, nil
}

func (k *Kernel) Processes() *ProcessManager {
	return k.processes
}

func (k *Kernel) Statuses() *Registry {
	return k.statuses
}

// Context lives as long as the machine is powered on.
func (k *Kernel) Context() context.Context {
	return k.ctx
}

func (k *Kernel) RegisterProgram(name string, prog Program) {
	k.progMu.Lock()
	defer k.progMu.Unlock()

	k.programs[name] = prog
}

func (k *Kernel) LookupProgram(name string) (Program, bool) {
	k.progMu.RLock()
	defer k.progMu.RUnlock()

	prog, ok := k.programs[name]
	return prog, ok
}

// Trap hands a user context's syscall to the installed handler.
func (k *Kernel) Trap(ctx context.Context, task *Task, frame *abi.TrapFrame) error {
	if k.Invoker == nil {
		return ErrBadSyscall
	}

	return k.Invoker.InvokeSyscall(ctx, task, frame)
}

// Halt powers the machine off. Processes still running are abandoned: no
// exit status is recorded for them and their next trap fails.
func (k *Kernel) Halt() {
	k.haltOnce.Do(func() {
		k.L.Info("machine-halt", "live", k.processes.Len())

		k.halt()

		if k.powerOff != nil {
			k.powerOff()
		}
	})
}

func (k *Kernel) Halted() bool {
	return k.ctx.Err() != nil
}

// Halting is closed once Halt has been called.
func (k *Kernel) Halting() <-chan struct{} {
	return k.ctx.Done()
}

// Wait blocks until every started process goroutine has returned.
func (k *Kernel) Wait() {
	k.running.Wait()
}
