package executor

import (
	"context"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/caffeineduck/gorurt/hostfunc"
	"go.uber.org/zap"
)

// Names of the entry points every script must define.
const (
	EntryStart     = "start"
	EntryProcess   = "process"
	EntryDummyLoad = "dummyLoad"
)

// Entries lists the required entry points in resolution order.
var Entries = []string{EntryStart, EntryProcess, EntryDummyLoad}

// Source is a user script as loaded from disk.
type Source struct {
	Name string
	Code []byte
}

// Env is what a Language receives when loading a script.
type Env struct {
	Registry *hostfunc.Registry
	Console  *hostfunc.Console
	Logger   *zap.Logger
	Frames   int
}

// Language creates script instances for one runtime.
type Language interface {
	// Name returns a unique identifier for this language (e.g. "javascript", "wasm").
	Name() string

	// Load creates one engine instance and execution context, binds the
	// console bridge and registry functions, compiles the prelude and the
	// user script, and resolves every name in Entries. Failures must be
	// returned as *InitError; any partially created engine is released.
	Load(ctx context.Context, env Env, src Source) (Script, error)
}

// Script is a loaded user script with its entry points resolved. A Script
// is not safe for concurrent use; Host serializes every call.
type Script interface {
	Start(ctx context.Context, sampleRate float64) error
	// Process invokes process with a view over samples. The script mutates
	// samples in place.
	Process(samples audio.Buffer) error
	DummyLoad(ctx context.Context, sampleRate float64) error
	Close(ctx context.Context) error
}
