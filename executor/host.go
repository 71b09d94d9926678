package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/caffeineduck/gorurt/hostfunc"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type hostState int

const (
	stateNew hostState = iota
	stateReady
	stateClosed
)

// Host owns one script engine for the life of the process. Every call into
// the script holds the engine lock; Process and DummyLoad block on it while
// TryProcess gives up immediately when another goroutine holds it.
type Host struct {
	lang Language
	src  Source
	cfg  hostConfig

	mu         sync.Mutex
	state      hostState
	script     Script
	sampleRate float64
	frames     int

	processCalls   atomic.Int64
	dummyLoadCalls atomic.Int64
	busy           atomic.Int64
}

// HostStats counts calls into the script since Init.
type HostStats struct {
	ProcessCalls   int64 `json:"process_calls"`
	DummyLoadCalls int64 `json:"dummy_load_calls"`
	Busy           int64 `json:"busy"`
}

// NewHost prepares a host for src in lang. Nothing is compiled until Init.
func NewHost(lang Language, src Source, opts ...Option) *Host {
	cfg := defaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.registry == nil {
		cfg.registry = hostfunc.NewRegistry()
		hostfunc.RegisterDefaults(cfg.registry, nil)
	}
	if cfg.console == nil {
		cfg.console = hostfunc.NewConsole(nil)
	}
	return &Host{lang: lang, src: src, cfg: cfg}
}

// Init loads the script, resolves its entry points and calls
// start(sampleRate) once. Any error is an *InitError.
func (h *Host) Init(ctx context.Context, sampleRate float64, framesPerBuffer int) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateReady:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}

	if sampleRate <= 0 || framesPerBuffer <= 0 {
		return NewInitError(StageConfig, "",
			fmt.Errorf("sample rate %v and frames per buffer %d must be positive", sampleRate, framesPerBuffer))
	}

	log := h.cfg.logger.With(zap.String("language", h.lang.Name()), zap.String("script", h.src.Name))
	began := time.Now()

	script, err := h.lang.Load(ctx, Env{
		Registry: h.cfg.registry,
		Console:  h.cfg.console,
		Logger:   h.cfg.logger,
		Frames:   framesPerBuffer,
	}, h.src)
	if err != nil {
		if _, ok := StageOf(err); !ok {
			err = NewInitError(StageCompile, "", err)
		}
		log.Error("script load failed", zap.Error(err))
		return err
	}

	if err := guard(func() error { return script.Start(ctx, sampleRate) }); err != nil {
		err = NewInitError(StageStart, EntryStart, err)
		log.Error("start failed", zap.Error(err))
		return multierr.Append(err, script.Close(ctx))
	}

	h.script = script
	h.sampleRate = sampleRate
	h.frames = framesPerBuffer
	h.state = stateReady

	log.Info("script initialized",
		zap.Float64("sample_rate", sampleRate),
		zap.Int("frames_per_buffer", framesPerBuffer),
		zap.Duration("elapsed", time.Since(began)),
	)
	return nil
}

// Process runs the script's process function over buf, blocking until the
// engine is free. buf is returned unchanged in identity; its samples carry
// whatever the script wrote.
func (h *Host) Process(buf audio.Buffer) (audio.Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return buf, h.process(buf)
}

// TryProcess is Process for the real-time path. When another goroutine
// holds the engine it returns false without touching buf.
func (h *Host) TryProcess(buf audio.Buffer) (bool, error) {
	if !h.mu.TryLock() {
		h.busy.Add(1)
		return false, nil
	}
	defer h.mu.Unlock()

	if err := h.process(buf); err != nil {
		var se *ScriptError
		return errors.As(err, &se), err
	}
	return true, nil
}

func (h *Host) process(buf audio.Buffer) error {
	if err := h.readyLocked(); err != nil {
		return err
	}
	if len(buf) != h.frames {
		return fmt.Errorf("%w: got %d, want %d", ErrFrameMismatch, len(buf), h.frames)
	}

	h.processCalls.Add(1)
	if err := guard(func() error { return h.script.Process(buf) }); err != nil {
		return &ScriptError{Entry: EntryProcess, Err: err}
	}
	return nil
}

// DummyLoad runs the script's dummyLoad function, blocking until the engine
// is free. Cancelling ctx interrupts the script where the runtime supports
// it.
func (h *Host) DummyLoad(ctx context.Context, sampleRate float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.readyLocked(); err != nil {
		return err
	}

	h.dummyLoadCalls.Add(1)
	if err := guard(func() error { return h.script.DummyLoad(ctx, sampleRate) }); err != nil {
		return &ScriptError{Entry: EntryDummyLoad, Err: err}
	}
	return nil
}

// Shutdown releases the script engine. It must only be called once the
// audio server has stopped delivering callbacks.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case stateNew:
		return ErrNotInitialized
	case stateClosed:
		return ErrClosed
	}

	err := h.script.Close(ctx)
	h.script = nil
	h.state = stateClosed

	h.cfg.logger.Info("script shut down",
		zap.String("script", h.src.Name),
		zap.Int64("process_calls", h.processCalls.Load()),
		zap.Int64("dummy_load_calls", h.dummyLoadCalls.Load()),
		zap.Error(err),
	)
	return err
}

// SampleRate returns the rate given to Init.
func (h *Host) SampleRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sampleRate
}

// FramesPerBuffer returns the period size given to Init.
func (h *Host) FramesPerBuffer() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// Language returns the name of the runtime backing this host.
func (h *Host) Language() string {
	return h.lang.Name()
}

// Stats returns the call counters. Busy counts TryProcess calls that found
// the engine held.
func (h *Host) Stats() HostStats {
	return HostStats{
		ProcessCalls:   h.processCalls.Load(),
		DummyLoadCalls: h.dummyLoadCalls.Load(),
		Busy:           h.busy.Load(),
	}
}

func (h *Host) readyLocked() error {
	switch h.state {
	case stateNew:
		return ErrNotInitialized
	case stateClosed:
		return ErrClosed
	}
	return nil
}

// guard converts a Go panic escaping a runtime into an error so that a
// misbehaving host function cannot take down the audio goroutine.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
