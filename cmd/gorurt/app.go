package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/caffeineduck/gorurt/audio/speaker"
	"github.com/caffeineduck/gorurt/config"
	"github.com/caffeineduck/gorurt/executor"
	"github.com/caffeineduck/gorurt/hostfunc"
	"github.com/caffeineduck/gorurt/language/javascript"
	"github.com/caffeineduck/gorurt/language/wasm"
	"github.com/caffeineduck/gorurt/processor"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// app is one configured pipeline: script host, audio server, callback and
// load simulator.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	console io.Writer

	params   *hostfunc.Params
	host     *executor.Host
	suppress *processor.Suppression
	callback *processor.Callback
	load     *processor.LoadSimulator
	server   *audio.Simulator
	warmup   processor.WarmupResult
	started  time.Time

	// life ends in stop. Work started on behalf of a client, such as a
	// control-plane load tick, runs under it rather than the request.
	life    context.Context
	endLife context.CancelFunc

	closers []io.Closer
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

func newApp(cfg *config.Config, logger *zap.Logger, console io.Writer) *app {
	life, endLife := context.WithCancel(context.Background())
	return &app{
		cfg:      cfg,
		logger:   logger,
		console:  console,
		params:   hostfunc.NewParams(hostfunc.DefaultParamsConfig()),
		suppress: &processor.Suppression{},
		life:     life,
		endLife:  endLife,
	}
}

func newLanguage(cfg *config.Config) (executor.Language, error) {
	switch cfg.ScriptLanguage() {
	case "wasm":
		pages, err := config.ParseMemoryLimit(cfg.Script.MemoryLimit)
		if err != nil {
			return nil, err
		}
		var opts []wasm.Option
		if pages > 0 {
			opts = append(opts, wasm.WithMemoryLimitPages(pages))
		}
		switch {
		case cfg.Script.NoCache:
		case cfg.Script.CacheDir != "":
			opts = append(opts, wasm.WithCacheDir(cfg.Script.CacheDir))
		default:
			opts = append(opts, wasm.WithDiskCache())
		}
		return wasm.New(opts...), nil
	default:
		return javascript.New(), nil
	}
}

// initScript reads, compiles and starts the script, then warms it up. No
// audio port exists until this returns successfully.
func (a *app) initScript(ctx context.Context) error {
	code, err := os.ReadFile(a.cfg.Script.Path)
	if err != nil {
		return withExitCode(exitScriptRead, fmt.Errorf("read script: %w", err))
	}

	lang, err := newLanguage(a.cfg)
	if err != nil {
		return withExitCode(exitConfig, err)
	}
	policy, err := processor.ParseLockPolicy(a.cfg.Script.LockPolicy)
	if err != nil {
		return withExitCode(exitConfig, err)
	}

	registry := hostfunc.NewRegistry()
	hostfunc.RegisterDefaults(registry, a.params)

	a.host = executor.NewHost(lang, executor.Source{Name: a.cfg.Script.Path, Code: code},
		executor.WithRegistry(registry),
		executor.WithConsole(hostfunc.NewConsole(a.console)),
		executor.WithLogger(a.logger),
	)
	if err := a.host.Init(ctx, float64(a.cfg.Audio.SampleRate), a.cfg.Audio.BufferSize); err != nil {
		return err
	}

	a.warmup, err = processor.Warmup(ctx, a.host, a.cfg.Audio.BufferSize, a.cfg.Script.WarmupIterations)
	if err != nil {
		return withExitCode(exitStart, multierr.Append(err, a.host.Shutdown(ctx)))
	}
	a.logger.Info("warm-up finished",
		zap.Int("iterations", a.warmup.Iterations),
		zap.Duration("first", a.warmup.First),
		zap.Duration("last", a.warmup.Last),
		zap.Duration("total", a.warmup.Total),
	)

	a.callback = processor.NewCallback(a.host, a.suppress,
		processor.WithLockPolicy(policy),
		processor.WithFrames(a.cfg.Audio.BufferSize),
		processor.WithErrorEvery(a.cfg.Log.ErrorEvery),
		processor.WithCallbackLogger(a.logger),
	)
	a.load = processor.NewLoadSimulator(a.host, a.suppress, a.cfg.LoadSampleRate(),
		processor.WithLoadLogger(a.logger))
	return nil
}

func (a *app) openSource() (audio.Source, error) {
	switch a.cfg.Audio.Source {
	case "sine":
		return audio.NewSine(a.cfg.Audio.SineHz, a.cfg.Audio.SampleRate, a.cfg.Audio.SineAmp), nil
	case "file":
		f, err := os.Open(a.cfg.Audio.SourcePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f)
		return audio.NewRawReader(f), nil
	default:
		return audio.Silence{}, nil
	}
}

func (a *app) openSink() (audio.Sink, error) {
	switch a.cfg.Audio.Sink {
	case "file":
		f, err := os.Create(a.cfg.Audio.SinkPath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, f)
		return audio.NewRawWriter(f), nil
	case "speaker":
		s, err := speaker.New(a.cfg.Audio.SampleRate, a.cfg.Audio.BufferSize, 5*time.Second)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s)
		return s, nil
	default:
		return audio.Discard{}, nil
	}
}

// startAudio registers one input and one output port, installs the
// callback and activates the server. Background load starts afterwards
// when enabled.
func (a *app) startAudio(ctx context.Context) error {
	src, err := a.openSource()
	if err != nil {
		return withExitCode(exitAudio, fmt.Errorf("open source: %w", err))
	}
	sink, err := a.openSink()
	if err != nil {
		return withExitCode(exitAudio, fmt.Errorf("open sink: %w", err))
	}

	opts := []audio.SimOption{
		audio.WithSource(src),
		audio.WithSink(sink),
		audio.WithSimLogger(a.logger),
		audio.WithDuration(a.cfg.Audio.Duration, a.cfg.Audio.SampleRate, a.cfg.Audio.BufferSize),
	}
	if a.cfg.Audio.Freewheel {
		opts = append(opts, audio.WithFreewheel())
	}
	a.server, err = audio.NewSimulator(a.cfg.Audio.SampleRate, a.cfg.Audio.BufferSize, opts...)
	if err != nil {
		return withExitCode(exitAudio, err)
	}

	in, err := a.server.RegisterPort("input", audio.Input)
	if err != nil {
		return withExitCode(exitAudio, err)
	}
	out, err := a.server.RegisterPort("output", audio.Output)
	if err != nil {
		return withExitCode(exitAudio, err)
	}
	if err := a.server.SetProcessCallback(a.callback.Bind(in, out)); err != nil {
		return withExitCode(exitAudio, err)
	}

	ctx, a.cancel = context.WithCancel(ctx)
	if err := a.server.Activate(ctx); err != nil {
		return withExitCode(exitAudio, err)
	}
	a.started = time.Now()

	if a.cfg.Load.Enabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.load.Run(ctx, a.cfg.Load.Interval)
		}()
	}
	return nil
}

// wait blocks until ctx is done or the server stops on its own.
func (a *app) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-a.server.Done():
	}
	if err := a.server.Err(); err != nil {
		return withExitCode(exitAudio, err)
	}
	return nil
}

// stop deactivates the server before shutting the host down, so no
// callback can reach a disposed engine.
func (a *app) stop(ctx context.Context) error {
	var err error
	a.endLife()
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	if a.server != nil {
		err = multierr.Append(err, a.server.Close())
		a.logStats()
	}
	if a.host != nil {
		err = multierr.Append(err, a.host.Shutdown(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i].Close())
	}
	a.closers = nil
	return err
}

func (a *app) logStats() {
	s := a.snapshot()
	a.logger.Info("audio stopped",
		zap.Int64("cycles", s.Audio.Cycles),
		zap.Int64("overruns", s.Audio.Overruns),
		zap.Duration("max_callback", s.Audio.Max),
		zap.Duration("mean_callback", s.Audio.Mean),
		zap.Int64("processed", s.Callback.Processed),
		zap.Int64("suppressed", s.Callback.Suppressed),
		zap.Int64("skipped", s.Callback.Skipped),
		zap.Int64("failed", s.Callback.Failed),
	)
}

type statsResponse struct {
	Language string                  `json:"language"`
	Script   string                  `json:"script"`
	Uptime   string                  `json:"uptime"`
	Audio    audio.StatsSnapshot     `json:"audio"`
	Callback processor.CallbackStats `json:"callback"`
	Host     executor.HostStats      `json:"host"`
	Load     processor.LoadStats     `json:"load"`
	Warmup   processor.WarmupResult  `json:"warmup"`
}

func (a *app) snapshot() statsResponse {
	s := statsResponse{
		Script: a.cfg.Script.Path,
		Warmup: a.warmup,
	}
	if a.host != nil {
		s.Language = a.host.Language()
		s.Host = a.host.Stats()
	}
	if a.callback != nil {
		s.Callback = a.callback.Stats()
	}
	if a.load != nil {
		s.Load = a.load.Stats()
	}
	if a.server != nil {
		s.Audio = a.server.Stats().Snapshot()
		s.Uptime = time.Since(a.started).Round(time.Millisecond).String()
	}
	return s
}
