package programs

import (
	"strconv"
	"strings"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/ulib"
)

func echo(u *ulib.User) int {
	u.Printf("%s\n", strings.Join(u.Args()[1:], " "))
	return 0
}

func halt(u *ulib.User) int {
	u.Halt()
	return 0
}

func exit(u *ulib.User) int {
	args := u.Args()
	if len(args) < 2 {
		return 0
	}

	code, err := strconv.Atoi(args[1])
	if err != nil {
		return abi.StatusKilled
	}

	u.Exit(code)

	return 0
}

// run executes its arguments as a child command line, waits for it, and
// reports the status.
func run(u *ulib.User) int {
	cmdline := strings.Join(u.Args()[1:], " ")

	pid := u.Exec(cmdline)
	if pid < 0 {
		u.Printf("run: %s: cannot exec\n", cmdline)
		return 1
	}

	status := u.Wait(pid)

	u.Printf("wait(%d) = %d\n", pid, status)

	return status
}

// orphan starts a child and exits without waiting for it.
func orphan(u *ulib.User) int {
	cmdline := strings.Join(u.Args()[1:], " ")
	if cmdline == "" {
		cmdline = "exit 3"
	}

	if u.Exec(cmdline) < 0 {
		return 1
	}

	return 0
}

func badPtr(u *ulib.User) int {
	u.Syscall(abi.SYS_WRITE, abi.Stdout, 0x10000000, 16)
	return 0
}

func badCall(u *ulib.User) int {
	u.Syscall(abi.SYS_FORK)
	return 0
}

func readLine(u *ulib.User) (string, bool) {
	var (
		sb strings.Builder
		c  [1]byte
	)

	for {
		if u.Read(abi.Stdin, c[:]) != 1 {
			return sb.String(), sb.Len() > 0
		}

		if c[0] == '\n' {
			return sb.String(), true
		}

		sb.WriteByte(c[0])
	}
}

// shell runs one command per input line and waits for each. It stops at
// end of input or on the line "exit".
func shell(u *ulib.User) int {
	for {
		u.Printf("$ ")

		line, ok := readLine(u)
		if !ok {
			return 0
		}

		line = strings.TrimSpace(line)

		switch line {
		case "":
			continue
		case "exit":
			return 0
		}

		pid := u.Exec(line)
		if pid < 0 {
			u.Printf("sh: %s: cannot exec\n", line)
			continue
		}

		u.Wait(pid)
	}
}
