package kernel

import "github.com/pkg/errors"

var (
	ErrBadSyscall    = errors.New("bad syscall number")
	ErrFault         = errors.New("bad user address")
	ErrBadDescriptor = errors.New("bad file descriptor")
	ErrTableFull     = errors.New("descriptor table full")
	ErrNotAChild     = errors.New("not a child of the caller")
	ErrAlreadyReaped = errors.New("child already reaped")
	ErrIO            = errors.New("i/o failure")

	ErrUnknownProgram = errors.New("unknown program")

	// ErrExited and ErrHalted are control errors: the calling process no
	// longer exists, or the machine is off. Nothing may be written back to
	// the trap frame once either is seen.
	ErrExited = errors.New("process exited")
	ErrHalted = errors.New("machine halted")
)
