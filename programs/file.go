package programs

import (
	"strconv"

	"github.com/evanphx/userprog/abi"
	"github.com/evanphx/userprog/ulib"
)

const chunk = 512

// copyFd copies src to dst until src is drained. Reads never ask for more
// than the file has left, since a short read fails. Standard input has no
// length and is read a byte at a time until it runs dry.
func copyFd(u *ulib.User, dst, src int) bool {
	if src == abi.Stdin {
		var c [1]byte

		for u.Read(abi.Stdin, c[:]) == 1 {
			if u.Write(dst, c[:]) != 1 {
				return false
			}
		}

		return true
	}

	buf := make([]byte, chunk)

	for {
		left := u.Filesize(src) - u.Tell(src)
		if left <= 0 {
			return left == 0
		}

		if left > chunk {
			left = chunk
		}

		n := u.Read(src, buf[:left])
		if n != left {
			return false
		}

		if u.Write(dst, buf[:n]) != n {
			return false
		}
	}
}

// cat copies each named file, or standard input when none are given, to
// standard output.
func cat(u *ulib.User) int {
	args := u.Args()[1:]

	if len(args) == 0 {
		if !copyFd(u, abi.Stdout, abi.Stdin) {
			return 1
		}

		return 0
	}

	status := 0

	for _, name := range args {
		fd := u.Open(name)
		if fd < 0 {
			u.Write(abi.Stderr, []byte("cat: "+name+": cannot open\n"))
			status = 1
			continue
		}

		if !copyFd(u, abi.Stdout, fd) {
			status = 1
		}

		u.Close(fd)
	}

	return status
}

// cp copies src to a new file dst of the same size.
func cp(u *ulib.User) int {
	args := u.Args()
	if len(args) != 3 {
		u.Write(abi.Stderr, []byte("usage: cp src dst\n"))
		return 1
	}

	src := u.Open(args[1])
	if src < 0 {
		u.Write(abi.Stderr, []byte("cp: "+args[1]+": cannot open\n"))
		return 1
	}

	defer u.Close(src)

	if !u.Create(args[2], uint32(u.Filesize(src))) {
		u.Write(abi.Stderr, []byte("cp: "+args[2]+": cannot create\n"))
		return 1
	}

	dst := u.Open(args[2])
	if dst < 0 {
		return 1
	}

	defer u.Close(dst)

	if !copyFd(u, dst, src) {
		return 1
	}

	return 0
}

func create(u *ulib.User) int {
	args := u.Args()
	if len(args) != 3 {
		u.Write(abi.Stderr, []byte("usage: create name size\n"))
		return 1
	}

	sz, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		u.Write(abi.Stderr, []byte("create: bad size "+args[2]+"\n"))
		return 1
	}

	if !u.Create(args[1], uint32(sz)) {
		return 1
	}

	return 0
}

func rm(u *ulib.User) int {
	status := 0

	for _, name := range u.Args()[1:] {
		if !u.Remove(name) {
			u.Write(abi.Stderr, []byte("rm: "+name+": cannot remove\n"))
			status = 1
		}
	}

	return status
}

// size prints the length of each named file.
func size(u *ulib.User) int {
	status := 0

	for _, name := range u.Args()[1:] {
		fd := u.Open(name)
		if fd < 0 {
			status = 1
			continue
		}

		u.Printf("%s %d\n", name, u.Filesize(fd))
		u.Close(fd)
	}

	return status
}

// leak opens the named file count times and exits without closing any of
// them. The kernel closes them at exit.
func leak(u *ulib.User) int {
	args := u.Args()
	if len(args) != 3 {
		return 1
	}

	count, err := strconv.Atoi(args[2])
	if err != nil {
		return 1
	}

	opened := 0

	for i := 0; i < count; i++ {
		if u.Open(args[1]) >= 0 {
			opened++
		}
	}

	return opened
}
