package log

import (
	"io"
	"os"

	hclog "github.com/hashicorp/go-hclog"
)

var L hclog.Logger

func init() {
	L = hclog.New(&hclog.LoggerOptions{
		Name:   "userprog",
		Output: os.Stderr,
	})
	L.SetLevel(hclog.Info)

	if str := os.Getenv("TRACE"); str != "" {
		L.SetLevel(hclog.Trace)
	}
}

// Redirect replaces L with a logger writing to w at the given level. Used by
// the CLI when a log file is configured and by tests that want quiet output.
func Redirect(w io.Writer, level hclog.Level) {
	L = hclog.New(&hclog.LoggerOptions{
		Name:   "userprog",
		Output: w,
		Level:  level,
	})
}
