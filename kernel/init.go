package kernel

import (
	"encoding/binary"
	"runtime/debug"

	"github.com/pkg/errors"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/memory"
)

// InitProcess creates and starts the first process. It has no parent, so
// nothing can wait on it; use Done and ExitCode instead.
func (k *Kernel) InitProcess(args []string) (*Process, error) {
	return k.Exec(nil, args)
}

// Exec creates a child of parent running args[0] and starts it.
func (k *Kernel) Exec(parent *Process, args []string) (*Process, error) {
	proc, err := k.SetupProcess(parent, args)
	if err != nil {
		return nil, err
	}

	k.StartProcess(proc)

	return proc, nil
}

// SetupProcess builds a process without running it: pid, address space,
// argument block, descriptor table and status record.
func (k *Kernel) SetupProcess(parent *Process, args []string) (*Process, error) {
	if k.Halted() {
		return nil, ErrHalted
	}

	if len(args) == 0 {
		return nil, errors.Wrap(ErrUnknownProgram, "empty command line")
	}

	prog, ok := k.LookupProgram(args[0])
	if !ok {
		return nil, errors.Wrapf(ErrUnknownProgram, "program=%s", args[0])
	}

	virtmem := memory.NewVirtualMemory()

	_, err := virtmem.NewRegion(memory.CodeBase, memory.PageSize, false)
	if err != nil {
		return nil, err
	}

	stackBase := memory.StackTop - k.stackSize
	_, err = virtmem.NewRegion(stackBase, k.stackSize, true)
	if err != nil {
		return nil, err
	}

	proc := &Process{
		Kernel: k,
		Name:   args[0],
		Args:   args,
		Mem:    virtmem,
		Files:  NewFDTable(k.fdCapacity),

		StackBase: stackBase,
		program:   prog,
		done:      make(chan struct{}),
	}

	sp, argv, err := writeExecHeader(memory.StackTop, stackBase, virtmem, args)
	if err != nil {
		return nil, err
	}

	proc.SP = sp
	proc.Argc = len(args)
	proc.Argv = argv

	if parent != nil {
		proc.parent = parent.Pid
	}

	k.processes.AssignPid(proc)

	proc.L = k.L.Named(proc.Name).With("pid", proc.Pid)

	if err := k.statuses.Register(proc.Pid, proc.parent); err != nil {
		k.processes.RemoveProc(proc)
		return nil, err
	}

	proc.L.Trace("process-setup", "parent", proc.parent, "args", args)

	return proc, nil
}

// StartProcess runs the program on its own goroutine. Returning from the
// program exits with its result; a panic or an abandoned user context
// exits with abi.StatusKilled unless the machine is halting.
func (k *Kernel) StartProcess(proc *Process) {
	task := &Task{Process: proc}
	ctx := SetTask(k.ctx, task)

	k.running.Add(1)

	go func() {
		defer k.running.Done()

		defer func() {
			if r := recover(); r != nil {
				proc.L.Error("process-panic", "panic", r, "stack", string(debug.Stack()))
			}

			if !proc.Exited() && !k.Halted() {
				proc.Exit(abi.StatusKilled)
			}
		}()

		code := proc.program(ctx, task)

		if !k.Halted() {
			proc.Exit(code)
		}
	}()
}

// writeExecHeader lays out args just below top: the strings, then a NULL
// terminated argv array, 8 byte aligned. It returns the new stack pointer
// and the address of argv[0].
func writeExecHeader(top, floor uint64, vmem AddressSpace, args []string) (uint64, uint64, error) {
	total := uint64(8 * (len(args) + 1))
	for _, str := range args {
		total += uint64(len(str) + 1)
	}

	total = (total + 7) &^ 7

	if top-floor < total+8 {
		return 0, 0, errors.Errorf("arguments need %d bytes, stack has %d", total, top-floor)
	}

	le := binary.LittleEndian

	sp := top
	ptrs := make([]uint64, len(args)+1)

	for i, str := range args {
		sp -= uint64(len(str) + 1)

		data := append([]byte(str), 0)
		if _, err := vmem.WriteAt(data, int64(sp)); err != nil {
			return 0, 0, err
		}

		ptrs[i] = sp
	}

	sp &^= 7
	sp -= uint64(8 * len(ptrs))

	argv := sp

	buf := make([]byte, 8*len(ptrs))
	for i, ptr := range ptrs {
		le.PutUint64(buf[8*i:], ptr)
	}

	if _, err := vmem.WriteAt(buf, int64(argv)); err != nil {
		return 0, 0, err
	}

	return sp, argv, nil
}
