package audio

import (
	"context"
	"errors"
)

var (
	ErrActive        = errors.New("server active")
	ErrNotActive     = errors.New("server not active")
	ErrNoCallback    = errors.New("process callback not set")
	ErrServerClosed  = errors.New("server closed")
	ErrPortExists    = errors.New("port already registered")
	ErrInvalidFormat = errors.New("invalid sample rate or buffer size")
)

// Direction is the data flow of a port as seen from the client.
type Direction int

const (
	Input Direction = iota
	Output
)

func (d Direction) String() string {
	if d == Input {
		return "input"
	}
	return "output"
}

// ProcessFunc is invoked once per buffer period on the real-time goroutine.
// A non-zero return asks the server to stop the graph.
type ProcessFunc func(nframes int) int

// Port is a registered audio port. Buffer returns the port's sample memory
// for the current period; the slice must not be retained past the callback.
type Port interface {
	Name() string
	Direction() Direction
	Buffer(nframes int) Buffer
}

// Server is the real-time audio I/O collaborator. It supplies the sample
// rate and period size, owns ports, and drives the process callback.
type Server interface {
	SampleRate() int
	BufferSize() int
	RegisterPort(name string, dir Direction) (Port, error)
	SetProcessCallback(fn ProcessFunc) error
	// Activate starts invoking the process callback.
	Activate(ctx context.Context) error
	// Deactivate stops the callback loop and returns once no further
	// callbacks can arrive.
	Deactivate() error
	Close() error
}

// BufferPort is a Port backed by a single preallocated buffer.
type BufferPort struct {
	name string
	dir  Direction
	buf  Buffer
}

func NewBufferPort(name string, dir Direction, frames int) *BufferPort {
	return &BufferPort{name: name, dir: dir, buf: NewBuffer(frames)}
}

func (p *BufferPort) Name() string         { return p.name }
func (p *BufferPort) Direction() Direction { return p.dir }

// Buffer returns the first nframes samples of the port memory.
func (p *BufferPort) Buffer(nframes int) Buffer {
	if nframes > len(p.buf) {
		nframes = len(p.buf)
	}
	return p.buf[:nframes]
}
