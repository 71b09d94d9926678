package hostfunc

import (
	"io"
	"os"
	"strings"
	"sync"
)

// ConsoleLogName is the global name under which the console bridge is bound.
const ConsoleLogName = "console_log"

// flusher is implemented by buffered writers such as *bufio.Writer. Writes to
// an *os.File are unbuffered and need no flush.
type flusher interface {
	Flush() error
}

// Console is the logging bridge scripts write through. Every call produces
// exactly one line and is flushed before returning.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w, or to stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{w: w}
}

// Print joins parts with single spaces, terminates the line and flushes.
func (c *Console) Print(parts ...string) error {
	line := strings.Join(parts, " ") + "\n"

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.w, line); err != nil {
		return err
	}
	if f, ok := c.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// Write passes p through unchanged and flushes. It lets runtimes with their
// own stdout, such as WASI guests, share the console.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.w.Write(p)
	if err != nil {
		return n, err
	}
	if f, ok := c.w.(flusher); ok {
		return n, f.Flush()
	}
	return n, nil
}
