// Package programs holds the user programs built into the machine image.
// Each one talks to the kernel only through ulib.
package programs

import (
	"context"
	"sort"

	"github.com/evanphx/userprog/kernel"
	"github.com/evanphx/userprog/ulib"
)

// Main is a program body. Its result becomes the exit status.
type Main func(u *ulib.User) int

// Wrap adapts a Main to the kernel's program signature.
func Wrap(m Main) kernel.Program {
	return func(ctx context.Context, task *kernel.Task) int {
		return m(ulib.New(ctx, task))
	}
}

var Builtin = map[string]Main{
	"echo":   echo,
	"cat":    cat,
	"cp":     cp,
	"create": create,
	"rm":     rm,
	"size":   size,
	"sh":     shell,
	"run":    run,
	"halt":   halt,
	"exit":   exit,
	"orphan": orphan,
	"leak":   leak,

	"bad-ptr":  badPtr,
	"bad-call": badCall,
}

// Register installs every builtin program into k.
func Register(k *kernel.Kernel) {
	for name, m := range Builtin {
		k.RegisterProgram(name, Wrap(m))
	}
}

func Names() []string {
	var names []string

	for name := range Builtin {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
