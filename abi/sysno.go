package abi

import "fmt"

// Sysno is a system call number as loaded into RAX by the user stub.
type Sysno uint64

// Pintos numbering. Calls past SYS_CLOSE are recognised by name only; they
// have no handler and trap as unsupported.
const (
	SYS_HALT Sysno = iota
	SYS_EXIT
	SYS_FORK
	SYS_EXEC
	SYS_WAIT
	SYS_CREATE
	SYS_REMOVE
	SYS_OPEN
	SYS_FILESIZE
	SYS_READ
	SYS_WRITE
	SYS_SEEK
	SYS_TELL
	SYS_CLOSE

	SYS_DUP2
	SYS_MMAP
	SYS_MUNMAP
	SYS_CHDIR
	SYS_MKDIR
	SYS_READDIR
	SYS_ISDIR
	SYS_INUMBER
	SYS_SYMLINK
	SYS_MOUNT
	SYS_UMOUNT

	MaxSysno
)

var SyscallNames = map[Sysno]string{
	SYS_HALT:     "halt",
	SYS_EXIT:     "exit",
	SYS_FORK:     "fork",
	SYS_EXEC:     "exec",
	SYS_WAIT:     "wait",
	SYS_CREATE:   "create",
	SYS_REMOVE:   "remove",
	SYS_OPEN:     "open",
	SYS_FILESIZE: "filesize",
	SYS_READ:     "read",
	SYS_WRITE:    "write",
	SYS_SEEK:     "seek",
	SYS_TELL:     "tell",
	SYS_CLOSE:    "close",
	SYS_DUP2:     "dup2",
	SYS_MMAP:     "mmap",
	SYS_MUNMAP:   "munmap",
	SYS_CHDIR:    "chdir",
	SYS_MKDIR:    "mkdir",
	SYS_READDIR:  "readdir",
	SYS_ISDIR:    "isdir",
	SYS_INUMBER:  "inumber",
	SYS_SYMLINK:  "symlink",
	SYS_MOUNT:    "mount",
	SYS_UMOUNT:   "umount",
}

func (n Sysno) String() string {
	if name, ok := SyscallNames[n]; ok {
		return name
	}

	return fmt.Sprintf("sys_%d", uint64(n))
}
