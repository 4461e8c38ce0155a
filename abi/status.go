package abi

const (
	// Error is the value returned to user code for any recoverable failure:
	// bad descriptor, full table, I/O failure, wait misuse.
	Error = -1

	// StatusKilled is the exit status recorded for a process the kernel
	// terminates: unsupported syscall number or a bad user pointer.
	StatusKilled = -1

	// Standard descriptors. They are bound at process start and never
	// handed out for regular files.
	Stdin  = 0
	Stdout = 1
	Stderr = 2

	// FirstFileFd is the lowest descriptor open() may return.
	FirstFileFd = 3

	// OpenMax is the default per-process descriptor table capacity.
	OpenMax = 128

	// MaxPath bounds user strings (paths and command lines) copied in from
	// user memory, terminator included.
	MaxPath = 4096
)
