package executor

import (
	"errors"
	"strings"
)

var (
	ErrNotInitialized     = errors.New("host not initialized")
	ErrAlreadyInitialized = errors.New("host already initialized")
	ErrClosed             = errors.New("host closed")
	ErrFrameMismatch      = errors.New("buffer length does not match frames per buffer")
	ErrEntryMissing       = errors.New("entry point not defined")
	ErrEntryNotCallable   = errors.New("entry point is not callable")
)

// Stage identifies which part of initialization failed.
type Stage string

const (
	StageConfig   Stage = "config"   // invalid sample rate or buffer size
	StageRuntime  Stage = "runtime"  // engine or context creation
	StageCompile  Stage = "compile"  // prelude or user script
	StageResolve  Stage = "resolve"  // entry point lookup
	StageAllocate Stage = "allocate" // script-private memory
	StageStart    Stage = "start"    // start(sampleRate) threw
)

// InitError is returned by Host.Init. Every InitError is fatal: the host
// has no usable script afterwards.
type InitError struct {
	Stage Stage
	Entry string
	Err   error
}

func NewInitError(stage Stage, entry string, err error) *InitError {
	return &InitError{Stage: stage, Entry: entry, Err: err}
}

func (e *InitError) Error() string {
	var b strings.Builder
	b.WriteString("init [")
	b.WriteString(string(e.Stage))
	b.WriteByte(']')
	if e.Entry != "" {
		b.WriteString(" ")
		b.WriteString(e.Entry)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// Is matches another *InitError with the same stage. An empty stage in the
// target matches any stage.
func (e *InitError) Is(target error) bool {
	t, ok := target.(*InitError)
	if !ok {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}

// ScriptError wraps an exception or trap raised by a script entry point
// after initialization.
type ScriptError struct {
	Entry string
	Err   error
}

func (e *ScriptError) Error() string {
	return e.Entry + ": " + e.Err.Error()
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of an *InitError anywhere in err's chain.
func StageOf(err error) (Stage, bool) {
	var ie *InitError
	if errors.As(err, &ie) {
		return ie.Stage, true
	}
	return "", false
}
