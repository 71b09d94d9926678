package processor

import (
	"fmt"
	"sync/atomic"

	"github.com/caffeineduck/gorurt/audio"
	"go.uber.org/zap"
)

// LockPolicy selects how the callback enters the script engine.
type LockPolicy string

const (
	// LockTry skips the script for one period when the engine is busy.
	LockTry LockPolicy = "try"
	// LockBlocking waits for the engine, stalling the audio goroutine for
	// as long as dummyLoad runs.
	LockBlocking LockPolicy = "blocking"
)

// ParseLockPolicy accepts "try" and "blocking". Empty selects LockTry.
func ParseLockPolicy(s string) (LockPolicy, error) {
	switch LockPolicy(s) {
	case "", LockTry:
		return LockTry, nil
	case LockBlocking:
		return LockBlocking, nil
	}
	return "", fmt.Errorf("unknown lock policy %q", s)
}

// DefaultErrorEvery is how many script failures pass between summary logs
// after the first one.
const DefaultErrorEvery = 1000

type callbackConfig struct {
	policy     LockPolicy
	logger     *zap.Logger
	errorEvery int64
	frames     int
}

// CallbackOption configures a Callback.
type CallbackOption func(*callbackConfig)

// WithLockPolicy selects how OnBuffer enters the engine. Default LockTry.
func WithLockPolicy(p LockPolicy) CallbackOption {
	return func(c *callbackConfig) {
		c.policy = p
	}
}

// WithCallbackLogger sets the logger for script failures. Default no-op.
func WithCallbackLogger(l *zap.Logger) CallbackOption {
	return func(c *callbackConfig) {
		c.logger = l
	}
}

// WithFrames preallocates the input restore buffer for periods of n frames.
// A larger period grows it once.
func WithFrames(n int) CallbackOption {
	return func(c *callbackConfig) {
		c.frames = n
	}
}

// WithErrorEvery logs one summary per n script failures after the first.
// n <= 0 silences everything but the first.
func WithErrorEvery(n int64) CallbackOption {
	return func(c *callbackConfig) {
		c.errorEvery = n
	}
}

// Callback is the audio server's process callback. It never fails: script
// errors are counted and logged, and the input is always forwarded.
type Callback struct {
	engine   Engine
	suppress *Suppression
	cfg      callbackConfig

	// saved holds the input of the current period until process succeeds.
	saved audio.Buffer

	processed  atomic.Int64
	suppressed atomic.Int64
	skipped    atomic.Int64
	failed     atomic.Int64
}

// CallbackStats counts callback outcomes. Every call lands in exactly one
// of processed, suppressed or skipped; failed is a subset of processed.
type CallbackStats struct {
	Processed  int64 `json:"processed"`
	Suppressed int64 `json:"suppressed"`
	Skipped    int64 `json:"skipped"`
	Failed     int64 `json:"failed"`
}

// NewCallback returns a callback running engine unless suppress is active.
// A nil suppress never suppresses.
func NewCallback(engine Engine, suppress *Suppression, opts ...CallbackOption) *Callback {
	cfg := callbackConfig{
		policy:     LockTry,
		logger:     zap.NewNop(),
		errorEvery: DefaultErrorEvery,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if suppress == nil {
		suppress = &Suppression{}
	}
	return &Callback{
		engine:   engine,
		suppress: suppress,
		cfg:      cfg,
		saved:    audio.NewBuffer(max(cfg.frames, 0)),
	}
}

// OnBuffer transforms in through the script, unless suppressed, then copies
// nframes samples from in to out. When the script fails the original input
// is forwarded. It always returns 0 so the server keeps running.
func (c *Callback) OnBuffer(in, out audio.Buffer, nframes int) int {
	if c.suppress.Active() {
		c.suppressed.Add(1)
	} else {
		c.run(in)
	}
	audio.CopyFrames(out, in, nframes)
	return 0
}

func (c *Callback) run(in audio.Buffer) {
	if len(c.saved) < len(in) {
		c.saved = audio.NewBuffer(len(in))
	}
	saved := c.saved[:len(in)]
	copy(saved, in)

	var err error
	switch c.cfg.policy {
	case LockBlocking:
		_, err = c.engine.Process(in)
	default:
		var ran bool
		ran, err = c.engine.TryProcess(in)
		if !ran && err == nil {
			c.skipped.Add(1)
			return
		}
	}
	c.processed.Add(1)
	if err != nil {
		copy(in, saved)
		c.fail(err)
	}
}

// fail logs the first script error in full and afterwards one summary every
// errorEvery failures.
func (c *Callback) fail(err error) {
	n := c.failed.Add(1)
	switch {
	case n == 1:
		c.cfg.logger.Error("process failed, passing audio through", zap.Error(err))
	case c.cfg.errorEvery > 0 && n%c.cfg.errorEvery == 0:
		c.cfg.logger.Warn("process still failing",
			zap.Int64("failures", n),
			zap.Error(err),
		)
	}
}

// Bind adapts the callback to the server's process function over the given
// ports.
func (c *Callback) Bind(in, out audio.Port) audio.ProcessFunc {
	return func(nframes int) int {
		return c.OnBuffer(in.Buffer(nframes), out.Buffer(nframes), nframes)
	}
}

// Stats returns a snapshot of the outcome counters.
func (c *Callback) Stats() CallbackStats {
	return CallbackStats{
		Processed:  c.processed.Load(),
		Suppressed: c.suppressed.Load(),
		Skipped:    c.skipped.Load(),
		Failed:     c.failed.Load(),
	}
}
