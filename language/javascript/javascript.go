package javascript

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/caffeineduck/gorurt/executor"
	"github.com/caffeineduck/gorurt/hostfunc"
	"github.com/dop251/goja"
	"go.uber.org/zap"
)

//go:embed prelude.js
var prelude string

// Option configures the JavaScript language.
type Option func(*JavaScript)

// WithMaxCallStackSize bounds script recursion depth. Zero keeps the goja
// default.
func WithMaxCallStackSize(n int) Option {
	return func(j *JavaScript) {
		j.maxCallStack = n
	}
}

// WithStrict compiles the user script in strict mode.
func WithStrict() Option {
	return func(j *JavaScript) {
		j.strict = true
	}
}

// JavaScript implements executor.Language on the goja ECMAScript engine.
type JavaScript struct {
	maxCallStack int
	strict       bool
}

// New returns a JavaScript language adapter.
func New(opts ...Option) *JavaScript {
	j := &JavaScript{}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name returns "javascript".
func (j *JavaScript) Name() string {
	return "javascript"
}

// Load creates a runtime, binds host functions, runs the console prelude and
// the user script, and resolves the entry points.
func (j *JavaScript) Load(ctx context.Context, env executor.Env, src executor.Source) (executor.Script, error) {
	vm := goja.New()
	if j.maxCallStack > 0 {
		vm.SetMaxCallStackSize(j.maxCallStack)
	}

	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &script{vm: vm, logger: logger}

	if env.Console != nil {
		if err := vm.Set(hostfunc.ConsoleLogName, s.consoleLog(env.Console)); err != nil {
			return nil, executor.NewInitError(executor.StageRuntime, "", fmt.Errorf("bind %s: %w", hostfunc.ConsoleLogName, err))
		}
	}
	var bound []string
	if env.Registry != nil {
		bound = env.Registry.List()
		for name, fn := range env.Registry.All() {
			if name == hostfunc.ConsoleLogName {
				continue
			}
			if err := vm.Set(name, s.bind(name, fn)); err != nil {
				return nil, executor.NewInitError(executor.StageRuntime, "", fmt.Errorf("bind %s: %w", name, err))
			}
		}
	}

	if err := s.run("prelude.js", prelude, false); err != nil {
		return nil, executor.NewInitError(executor.StageCompile, "", fmt.Errorf("prelude: %w", err))
	}
	if err := s.run(src.Name, string(src.Code), j.strict); err != nil {
		return nil, executor.NewInitError(executor.StageCompile, "", err)
	}

	var err error
	if s.start, err = s.resolve(executor.EntryStart); err != nil {
		return nil, err
	}
	if s.process, err = s.resolve(executor.EntryProcess); err != nil {
		return nil, err
	}
	if s.dummyLoad, err = s.resolve(executor.EntryDummyLoad); err != nil {
		return nil, err
	}

	s.float32Array = vm.Get("Float32Array")
	if s.float32Array == nil {
		return nil, executor.NewInitError(executor.StageRuntime, "", errors.New("Float32Array unavailable"))
	}
	s.zero = vm.ToValue(0)

	logger.Debug("javascript script loaded",
		zap.String("script", src.Name),
		zap.Strings("host_functions", bound),
	)
	return s, nil
}

// script holds one goja runtime and the resolved entry points.
type script struct {
	vm     *goja.Runtime
	logger *zap.Logger

	start     goja.Callable
	process   goja.Callable
	dummyLoad goja.Callable

	float32Array goja.Value
	zero         goja.Value
}

func (s *script) run(name, code string, strict bool) error {
	prog, err := goja.Compile(name, code, strict)
	if err != nil {
		return err
	}
	_, err = s.vm.RunProgram(prog)
	return err
}

func (s *script) resolve(name string) (goja.Callable, error) {
	v := s.vm.Get(name)
	if v == nil {
		// let and const declarations live in the global lexical scope, not
		// on the global object.
		v, _ = s.vm.RunString("typeof " + name + " === 'undefined' ? undefined : " + name)
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, executor.NewInitError(executor.StageResolve, name, executor.ErrEntryMissing)
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, executor.NewInitError(executor.StageResolve, name,
			fmt.Errorf("%w: got %s", executor.ErrEntryNotCallable, v.String()))
	}
	return fn, nil
}

func (s *script) Start(ctx context.Context, sampleRate float64) error {
	return s.call(ctx, s.start, s.vm.ToValue(sampleRate))
}

// Process wraps samples in a Float32Array over the same memory and calls
// process with it. The backing ArrayBuffer is detached afterwards so a
// script that keeps the view cannot reach the memory after the callback.
func (s *script) Process(samples audio.Buffer) error {
	ab := s.vm.NewArrayBuffer(samples.Bytes())
	defer ab.Detach()

	view, err := s.vm.New(s.float32Array, s.vm.ToValue(ab), s.zero, s.vm.ToValue(len(samples)))
	if err != nil {
		return err
	}
	_, err = s.process(s.vm.GlobalObject(), view)
	return err
}

func (s *script) DummyLoad(ctx context.Context, sampleRate float64) error {
	return s.call(ctx, s.dummyLoad, s.vm.ToValue(sampleRate))
}

// Close drops the runtime. goja has no explicit dispose; the engine and
// everything it allocated become garbage once unreferenced.
func (s *script) Close(ctx context.Context) error {
	s.start, s.process, s.dummyLoad = nil, nil, nil
	s.float32Array, s.zero = nil, nil
	s.vm = nil
	return nil
}

// call invokes fn, interrupting the runtime if ctx is cancelled first.
func (s *script) call(ctx context.Context, fn goja.Callable, args ...goja.Value) error {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		s.vm.Interrupt(ctx.Err())
		close(fired)
	})
	defer func() {
		if !stop() {
			<-fired
			s.vm.ClearInterrupt()
		}
	}()

	_, err := fn(s.vm.GlobalObject(), args...)
	return err
}

func (s *script) consoleLog(console *hostfunc.Console) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		if err := console.Print(parts...); err != nil {
			panic(s.vm.NewGoError(err))
		}
		return goja.Undefined()
	}
}

func (s *script) bind(name string, fn hostfunc.Func) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, arg := range call.Arguments {
			args[i] = arg.Export()
		}
		out, err := fn(context.Background(), args)
		if err != nil {
			panic(s.vm.NewGoError(fmt.Errorf("%s: %w", name, err)))
		}
		if out == nil {
			return goja.Undefined()
		}
		return s.vm.ToValue(out)
	}
}
