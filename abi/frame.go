package abi

// Registers is the part of the x86-64 register file the syscall
// convention uses: RAX carries the call number in and the result out,
// the rest carry arguments in order.
type Registers struct {
	RAX uint64
	RDI uint64
	RSI uint64
	RDX uint64
	R10 uint64
	R8  uint64
	R9  uint64
}

// MaxArgs is the number of argument registers.
const MaxArgs = 6

// TrapFrame is the state saved when user code traps into the kernel.
type TrapFrame struct {
	R Registers
}

func (f *TrapFrame) Sysno() Sysno {
	return Sysno(f.R.RAX)
}

// Arg returns argument register i (0 based). Out of range indexes read as
// zero.
func (f *TrapFrame) Arg(i int) uint64 {
	switch i {
	case 0:
		return f.R.RDI
	case 1:
		return f.R.RSI
	case 2:
		return f.R.RDX
	case 3:
		return f.R.R10
	case 4:
		return f.R.R8
	case 5:
		return f.R.R9
	default:
		return 0
	}
}

func (f *TrapFrame) SetArg(i int, v uint64) {
	switch i {
	case 0:
		f.R.RDI = v
	case 1:
		f.R.RSI = v
	case 2:
		f.R.RDX = v
	case 3:
		f.R.R10 = v
	case 4:
		f.R.R8 = v
	case 5:
		f.R.R9 = v
	}
}

func (f *TrapFrame) SetReturn(v int64) {
	f.R.RAX = uint64(v)
}

func (f *TrapFrame) Return() int64 {
	return int64(f.R.RAX)
}
