package processor

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultLoadInterval is the pause between dummyLoad calls.
const DefaultLoadInterval = time.Second

// LoadOption configures a LoadSimulator.
type LoadOption func(*LoadSimulator)

// WithLoadLogger sets the logger for tick failures. Default no-op.
func WithLoadLogger(l *zap.Logger) LoadOption {
	return func(s *LoadSimulator) {
		s.logger = l
	}
}

// LoadSimulator calls the script's dummyLoad from outside the audio
// goroutine. While a call is in flight the suppression flag is raised.
type LoadSimulator struct {
	engine     Engine
	suppress   *Suppression
	sampleRate float64
	logger     *zap.Logger

	ticks    atomic.Int64
	failures atomic.Int64
}

// LoadStats counts dummyLoad calls made by a LoadSimulator.
type LoadStats struct {
	Ticks    int64 `json:"ticks"`
	Failures int64 `json:"failures"`
}

// NewLoadSimulator returns a simulator passing sampleRate to dummyLoad.
func NewLoadSimulator(engine Engine, suppress *Suppression, sampleRate float64, opts ...LoadOption) *LoadSimulator {
	s := &LoadSimulator{
		engine:     engine,
		suppress:   suppress,
		sampleRate: sampleRate,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.suppress == nil {
		s.suppress = &Suppression{}
	}
	return s
}

// Tick raises suppression, runs dummyLoad once and clears suppression, even
// when dummyLoad fails. Overlapping ticks keep suppression raised until the
// last of them returns.
func (s *LoadSimulator) Tick(ctx context.Context) error {
	s.suppress.Set()
	defer s.suppress.Clear()

	s.ticks.Add(1)
	if err := s.engine.DummyLoad(ctx, s.sampleRate); err != nil {
		s.failures.Add(1)
		return err
	}
	return nil
}

// Run ticks every interval until ctx is done. Failed ticks are logged and
// do not stop the loop.
func (s *LoadSimulator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultLoadInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("load simulation started",
		zap.Duration("interval", interval),
		zap.Float64("sample_rate", s.sampleRate),
	)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("load simulation stopped", zap.Int64("ticks", s.ticks.Load()))
			return nil
		case <-ticker.C:
			began := time.Now()
			if err := s.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Warn("dummyLoad failed", zap.Error(err))
				continue
			}
			s.logger.Debug("dummyLoad finished", zap.Duration("elapsed", time.Since(began)))
		}
	}
}

// Stats returns the tick and failure counts.
func (s *LoadSimulator) Stats() LoadStats {
	return LoadStats{
		Ticks:    s.ticks.Load(),
		Failures: s.failures.Load(),
	}
}
