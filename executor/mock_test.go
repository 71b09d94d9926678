package executor

import (
	"context"
	"errors"
	"sync"

	"github.com/caffeineduck/gorurt/audio"
)

// mockLanguage implements Language in Go so host logic can be tested
// without a real script runtime.
type mockLanguage struct {
	missing   string // entry point to leave undefined
	loadErr   error
	startErr  error
	processFn func(audio.Buffer) error
	dummyFn   func(context.Context) error

	mu     sync.Mutex
	script *mockScript
}

func (m *mockLanguage) Name() string {
	return "mock"
}

func (m *mockLanguage) Load(ctx context.Context, env Env, src Source) (Script, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.missing != "" {
		return nil, NewInitError(StageResolve, m.missing, ErrEntryMissing)
	}
	s := &mockScript{lang: m, frames: env.Frames}
	m.mu.Lock()
	m.script = s
	m.mu.Unlock()
	return s, nil
}

type mockScript struct {
	lang   *mockLanguage
	frames int

	mu         sync.Mutex
	startRate  float64
	lengths    []int
	dummyRates []float64
	closed     int
}

func (s *mockScript) Start(ctx context.Context, sampleRate float64) error {
	s.mu.Lock()
	s.startRate = sampleRate
	s.mu.Unlock()
	return s.lang.startErr
}

func (s *mockScript) Process(samples audio.Buffer) error {
	s.mu.Lock()
	s.lengths = append(s.lengths, len(samples))
	s.mu.Unlock()
	if s.lang.processFn != nil {
		return s.lang.processFn(samples)
	}
	return nil
}

func (s *mockScript) DummyLoad(ctx context.Context, sampleRate float64) error {
	s.mu.Lock()
	s.dummyRates = append(s.dummyRates, sampleRate)
	s.mu.Unlock()
	if s.lang.dummyFn != nil {
		return s.lang.dummyFn(ctx)
	}
	return nil
}

func (s *mockScript) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	if s.closed > 1 {
		return errors.New("closed twice")
	}
	return nil
}
