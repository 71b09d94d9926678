package processor

import (
	"context"
	"sync/atomic"

	"github.com/caffeineduck/gorurt/audio"
)

// Engine is the script host as seen from the audio path. *executor.Host
// implements it.
type Engine interface {
	Process(buf audio.Buffer) (audio.Buffer, error)
	TryProcess(buf audio.Buffer) (bool, error)
	DummyLoad(ctx context.Context, sampleRate float64) error
}

// Suppression is the process-wide flag telling the callback to skip the
// script. It counts holders rather than storing a bool, so overlapping
// dummyLoad calls keep the callback suppressed until the last one finishes.
// A callback that observes the flag a moment late simply processes one more
// buffer.
type Suppression struct {
	holders atomic.Int32
}

// Set adds one holder. Every Set must be paired with a Clear.
func (s *Suppression) Set() { s.holders.Add(1) }

// Clear releases one holder. It never drops the count below zero.
func (s *Suppression) Clear() {
	for {
		n := s.holders.Load()
		if n <= 0 || s.holders.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// Active reports whether any holder remains.
func (s *Suppression) Active() bool { return s.holders.Load() > 0 }
