package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimOption configures a Simulator.
type SimOption func(*simConfig)

type simConfig struct {
	source    Source
	sink      Sink
	freewheel bool
	maxCycles int64
	logger    *zap.Logger
}

func defaultSimConfig() simConfig {
	return simConfig{
		source: Silence{},
		sink:   Discard{},
		logger: zap.NewNop(),
	}
}

// WithSource sets where input port samples come from. Default is silence.
func WithSource(src Source) SimOption {
	return func(c *simConfig) {
		c.source = src
	}
}

// WithSink sets where output port samples go. Default discards them.
func WithSink(sink Sink) SimOption {
	return func(c *simConfig) {
		c.sink = sink
	}
}

// WithFreewheel runs cycles back to back instead of pacing them at the
// buffer period.
func WithFreewheel() SimOption {
	return func(c *simConfig) {
		c.freewheel = true
	}
}

// WithMaxCycles stops the loop after n callbacks. Zero means unbounded.
func WithMaxCycles(n int64) SimOption {
	return func(c *simConfig) {
		c.maxCycles = n
	}
}

// WithDuration stops the loop after roughly d of audio has been processed.
func WithDuration(d time.Duration, sampleRate, bufferSize int) SimOption {
	return func(c *simConfig) {
		if d <= 0 || sampleRate <= 0 || bufferSize <= 0 {
			return
		}
		frames := int64(d.Seconds() * float64(sampleRate))
		c.maxCycles = (frames + int64(bufferSize) - 1) / int64(bufferSize)
	}
}

func WithSimLogger(l *zap.Logger) SimOption {
	return func(c *simConfig) {
		c.logger = l
	}
}

// Simulator is a Server that paces the process callback with a clock. The
// first input port is fed from the configured Source and the first output
// port is drained into the Sink after every callback.
type Simulator struct {
	cfg    simConfig
	rate   int
	size   int
	period time.Duration
	stats  Stats

	mu       sync.Mutex
	ports    []*BufferPort
	callback ProcessFunc
	active   bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// NewSimulator creates a server running at sampleRate with bufferSize
// frames per period.
func NewSimulator(sampleRate, bufferSize int, opts ...SimOption) (*Simulator, error) {
	if sampleRate <= 0 || bufferSize <= 0 {
		return nil, fmt.Errorf("%w: rate=%d size=%d", ErrInvalidFormat, sampleRate, bufferSize)
	}

	cfg := defaultSimConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	period := time.Duration(float64(bufferSize) / float64(sampleRate) * float64(time.Second))

	return &Simulator{
		cfg:    cfg,
		rate:   sampleRate,
		size:   bufferSize,
		period: period,
	}, nil
}

func (s *Simulator) SampleRate() int       { return s.rate }
func (s *Simulator) BufferSize() int       { return s.size }
func (s *Simulator) Period() time.Duration { return s.period }
func (s *Simulator) Stats() *Stats         { return &s.stats }

func (s *Simulator) RegisterPort(name string, dir Direction) (Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}
	if s.active {
		return nil, ErrActive
	}
	for _, p := range s.ports {
		if p.name == name {
			return nil, fmt.Errorf("%w: %s", ErrPortExists, name)
		}
	}

	p := NewBufferPort(name, dir, s.size)
	s.ports = append(s.ports, p)
	s.cfg.logger.Debug("port registered", zap.String("port", name), zap.Stringer("direction", dir))
	return p, nil
}

// Ports returns the registered ports in registration order.
func (s *Simulator) Ports() []Port {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Port, len(s.ports))
	for i, p := range s.ports {
		out[i] = p
	}
	return out
}

func (s *Simulator) SetProcessCallback(fn ProcessFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		return ErrActive
	}
	s.callback = fn
	return nil
}

func (s *Simulator) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.active {
		return ErrActive
	}
	if s.callback == nil {
		return ErrNoCallback
	}

	var in, out *BufferPort
	for _, p := range s.ports {
		if p.dir == Input && in == nil {
			in = p
		}
		if p.dir == Output && out == nil {
			out = p
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.err = nil
	s.active = true

	s.cfg.logger.Info("audio simulator activated",
		zap.Int("sample_rate", s.rate),
		zap.Int("buffer_size", s.size),
		zap.Duration("period", s.period),
		zap.Bool("freewheel", s.cfg.freewheel),
	)

	go s.loop(loopCtx, s.callback, in, out, s.done)
	return nil
}

// Done is closed when the callback loop exits, whether through Deactivate,
// the source ending, the cycle limit or a non-zero callback return.
func (s *Simulator) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.done
}

// Err reports why the loop stopped, if it stopped on an error.
func (s *Simulator) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Simulator) Deactivate() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return ErrNotActive
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.cfg.logger.Info("audio simulator deactivated", zap.Int64("cycles", s.stats.Snapshot().Cycles))
	return nil
}

func (s *Simulator) Close() error {
	s.mu.Lock()
	active, closed := s.active, s.closed
	s.mu.Unlock()

	if closed {
		return nil
	}
	if active {
		if err := s.Deactivate(); err != nil && !errors.Is(err, ErrNotActive) {
			return err
		}
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if f, ok := s.cfg.sink.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

func (s *Simulator) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *Simulator) loop(ctx context.Context, cb ProcessFunc, in, out *BufferPort, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if !s.cfg.freewheel {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for cycle := int64(0); s.cfg.maxCycles == 0 || cycle < s.cfg.maxCycles; cycle++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return
		}

		eof := false
		if in != nil {
			if err := s.cfg.source.Read(in.buf); err != nil {
				if !errors.Is(err, io.EOF) {
					s.cfg.logger.Error("source read failed", zap.Error(err))
					s.setErr(fmt.Errorf("read source: %w", err))
					return
				}
				eof = true
			}
		}

		start := time.Now()
		ret := cb(s.size)
		s.stats.Record(time.Since(start), s.period)

		if out != nil {
			if err := s.cfg.sink.Write(out.buf); err != nil {
				s.cfg.logger.Error("sink write failed", zap.Error(err))
				s.setErr(fmt.Errorf("write sink: %w", err))
				return
			}
		}

		if ret != 0 {
			s.cfg.logger.Warn("process callback requested stop", zap.Int("status", ret))
			return
		}
		if eof {
			return
		}
	}
}
