// Package verbose traces instrument traffic when the daemon runs with -v
package verbose

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

var (
	enabled atomic.Bool
	out     atomic.Pointer[log.Logger]
)

func init() {
	out.Store(log.New(os.Stderr, "[SCPI] ", log.LstdFlags|log.Lmicroseconds))
}

// SetEnabled sets the global trace flag
func SetEnabled(enable bool) {
	enabled.Store(enable)
}

// IsEnabled returns whether tracing is enabled
func IsEnabled() bool {
	return enabled.Load()
}

// SetOutput redirects trace lines, e.g. into the log file
func SetOutput(w io.Writer) {
	out.Store(log.New(w, "[SCPI] ", log.LstdFlags|log.Lmicroseconds))
}

// Printf prints a trace line if tracing is enabled
func Printf(format string, args ...interface{}) {
	if enabled.Load() {
		out.Load().Printf(format, args...)
	}
}
