package wasm

import (
	"context"
	"errors"
	"fmt"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/caffeineduck/gorurt/executor"
	"github.com/caffeineduck/gorurt/hostfunc"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// HostModule is the import module name host functions are exported under.
	HostModule = "env"

	memoryExport = "memory"
	allocExport  = "alloc"
)

var (
	ErrNoMemory   = errors.New("module does not export memory")
	ErrBadPointer = errors.New("alloc returned an unusable pointer")
)

type signature struct {
	params  []api.ValueType
	results []api.ValueType
}

var (
	f64 = []api.ValueType{api.ValueTypeF64}
	i32 = []api.ValueType{api.ValueTypeI32}
)

// exports lists the functions a module must export, in resolution order.
var exports = []struct {
	name string
	sig  signature
}{
	{executor.EntryStart, signature{params: f64}},
	{executor.EntryProcess, signature{params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}}},
	{executor.EntryDummyLoad, signature{params: f64}},
	{allocExport, signature{params: i32, results: i32}},
}

// Wasm implements executor.Language for WebAssembly modules run by wazero.
//
// A module exports memory, start(f64), process(i32 ptr, i32 frames),
// dummyLoad(f64) and alloc(i32 bytes) -> i32, and may import
// env.console_log(i32 ptr, i32 len). Modules built as WASI reactors have
// their _initialize export run before start.
type Wasm struct {
	cfg config
}

// New returns a WebAssembly language adapter.
func New(opts ...Option) *Wasm {
	w := &Wasm{}
	for _, opt := range opts {
		opt(&w.cfg)
	}
	return w
}

// Name returns "wasm".
func (w *Wasm) Name() string {
	return "wasm"
}

// Load compiles src, instantiates it against the host module and reserves
// one buffer of env.Frames samples in guest memory through alloc.
func (w *Wasm) Load(ctx context.Context, env executor.Env, src executor.Source) (executor.Script, error) {
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	console := env.Console
	if console == nil {
		console = hostfunc.NewConsole(nil)
	}

	s := &script{console: console, logger: logger, stack: make([]uint64, 2)}

	if w.cfg.diskCache {
		dir := w.cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		cache, err := wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, executor.NewInitError(executor.StageRuntime, "", fmt.Errorf("create disk cache: %w", err))
		}
		s.cache = cache
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if s.cache != nil {
		rtConfig = rtConfig.WithCompilationCache(s.cache)
	}
	if w.cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(w.cfg.memoryLimitPages)
	}
	s.runtime = wazero.NewRuntimeWithConfig(ctx, rtConfig)

	fail := func(stage executor.Stage, entry string, err error) (executor.Script, error) {
		return nil, multierr.Append(executor.NewInitError(stage, entry, err), s.Close(context.Background()))
	}

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, s.runtime); err != nil {
		return fail(executor.StageRuntime, "", fmt.Errorf("instantiate WASI: %w", err))
	}
	bound, err := s.instantiateHostModule(ctx, env.Registry)
	if err != nil {
		return fail(executor.StageRuntime, "", fmt.Errorf("instantiate %s module: %w", HostModule, err))
	}

	compiled, err := s.runtime.CompileModule(ctx, src.Code)
	if err != nil {
		return fail(executor.StageCompile, "", err)
	}
	if ie := checkExports(compiled); ie != nil {
		return fail(ie.Stage, ie.Entry, ie.Err)
	}

	modConfig := wazero.NewModuleConfig().
		WithName(src.Name).
		WithStdout(console).
		WithStderr(console).
		WithSysWalltime().
		WithSysNanotime().
		WithStartFunctions("_initialize")

	s.module, err = s.runtime.InstantiateModule(ctx, compiled, modConfig)
	if err != nil {
		return fail(executor.StageCompile, "", fmt.Errorf("instantiate: %w", err))
	}

	s.start = s.module.ExportedFunction(executor.EntryStart)
	s.process = s.module.ExportedFunction(executor.EntryProcess)
	s.dummyLoad = s.module.ExportedFunction(executor.EntryDummyLoad)

	if err := s.reserve(ctx, env.Frames); err != nil {
		return fail(executor.StageAllocate, allocExport, err)
	}

	logger.Debug("wasm module loaded",
		zap.String("script", src.Name),
		zap.Strings("host_functions", bound),
		zap.Uint32("buffer_ptr", s.ptr),
		zap.Uint32("buffer_bytes", s.size),
	)
	return s, nil
}

func checkExports(compiled wazero.CompiledModule) *executor.InitError {
	if _, ok := compiled.ExportedMemories()[memoryExport]; !ok {
		return executor.NewInitError(executor.StageResolve, memoryExport, ErrNoMemory)
	}
	funcs := compiled.ExportedFunctions()
	for _, want := range exports {
		def, ok := funcs[want.name]
		if !ok {
			return executor.NewInitError(executor.StageResolve, want.name, executor.ErrEntryMissing)
		}
		if !equalTypes(def.ParamTypes(), want.sig.params) || !equalTypes(def.ResultTypes(), want.sig.results) {
			return executor.NewInitError(executor.StageResolve, want.name,
				fmt.Errorf("%w: signature %s, want %s", executor.ErrEntryNotCallable,
					formatSignature(def.ParamTypes(), def.ResultTypes()),
					formatSignature(want.sig.params, want.sig.results)))
		}
	}
	return nil
}

func equalTypes(got, want []api.ValueType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func formatSignature(params, results []api.ValueType) string {
	name := func(ts []api.ValueType) string {
		out := "("
		for i, t := range ts {
			if i > 0 {
				out += ","
			}
			out += api.ValueTypeName(t)
		}
		return out + ")"
	}
	return name(params) + "->" + name(results)
}

// script is one instantiated module with its sample region reserved.
type script struct {
	console *hostfunc.Console
	logger  *zap.Logger

	cache   wazero.CompilationCache
	runtime wazero.Runtime
	module  api.Module

	start     api.Function
	process   api.Function
	dummyLoad api.Function

	ptr   uint32
	size  uint32
	stack []uint64
}

// reserve asks the guest for a region large enough for one buffer.
func (s *script) reserve(ctx context.Context, frames int) error {
	s.size = uint32(frames) * 4
	res, err := s.module.ExportedFunction(allocExport).Call(ctx, api.EncodeU32(s.size))
	if err != nil {
		return err
	}
	s.ptr = api.DecodeU32(res[0])
	if s.ptr == 0 || s.ptr%4 != 0 {
		return fmt.Errorf("%w: %#x is null or not 4-byte aligned", ErrBadPointer, s.ptr)
	}
	if uint64(s.ptr)+uint64(s.size) > uint64(s.module.Memory().Size()) {
		return fmt.Errorf("%w: %#x+%d exceeds memory of %d bytes", ErrBadPointer, s.ptr, s.size, s.module.Memory().Size())
	}
	return nil
}

func (s *script) Start(ctx context.Context, sampleRate float64) error {
	_, err := s.start.Call(ctx, api.EncodeF64(sampleRate))
	return err
}

// Process copies samples into the reserved region, calls process and copies
// the result back. Guest memory is little-endian like every host this runs
// on, so the bytes move without conversion.
func (s *script) Process(samples audio.Buffer) error {
	n := uint32(len(samples)) * 4
	if n > s.size {
		return fmt.Errorf("buffer of %d bytes exceeds reserved %d", n, s.size)
	}
	mem := s.module.Memory()
	if !mem.Write(s.ptr, samples.Bytes()) {
		return fmt.Errorf("write %d bytes at %#x: out of range", n, s.ptr)
	}

	s.stack[0] = api.EncodeU32(s.ptr)
	s.stack[1] = api.EncodeU32(uint32(len(samples)))
	if err := s.process.CallWithStack(context.Background(), s.stack); err != nil {
		return err
	}

	out, ok := mem.Read(s.ptr, n)
	if !ok {
		return fmt.Errorf("read %d bytes at %#x: out of range", n, s.ptr)
	}
	copy(samples.Bytes(), out)
	return nil
}

// DummyLoad calls dummyLoad. Cancelling ctx while it runs closes the module,
// after which every call fails.
func (s *script) DummyLoad(ctx context.Context, sampleRate float64) error {
	_, err := s.dummyLoad.Call(ctx, api.EncodeF64(sampleRate))
	return err
}

func (s *script) Close(ctx context.Context) error {
	var err error
	if s.runtime != nil {
		err = multierr.Append(err, s.runtime.Close(ctx))
	}
	if s.cache != nil {
		err = multierr.Append(err, s.cache.Close(ctx))
	}
	s.start, s.process, s.dummyLoad = nil, nil, nil
	s.module, s.runtime, s.cache = nil, nil, nil
	return err
}
