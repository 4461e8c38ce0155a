package console

import (
	"bufio"
	"io"
	"sync"
)

// Console is the machine's character device. Output is serialized so that
// one WriteBytes call reaches the terminal as a single run of bytes.
type Console struct {
	inMu sync.Mutex
	in   *bufio.Reader

	outMu sync.Mutex
	out   io.Writer
}

func New(in io.Reader, out io.Writer) *Console {
	c := &Console{out: out}

	if in != nil {
		c.in = bufio.NewReader(in)
	}

	return c
}

// ReadChar blocks for the next input byte. It returns io.EOF when the
// console has no input attached or the input is exhausted.
func (c *Console) ReadChar() (byte, error) {
	c.inMu.Lock()
	defer c.inMu.Unlock()

	if c.in == nil {
		return 0, io.EOF
	}

	return c.in.ReadByte()
}

func (c *Console) WriteBytes(b []byte) (int, error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if c.out == nil {
		return len(b), nil
	}

	return c.out.Write(b)
}
