package executor

import (
	"github.com/caffeineduck/gorurt/hostfunc"
	"go.uber.org/zap"
)

// Option configures a Host.
type Option func(*hostConfig)

type hostConfig struct {
	registry *hostfunc.Registry
	console  *hostfunc.Console
	logger   *zap.Logger
}

func defaultHostConfig() hostConfig {
	return hostConfig{
		logger: zap.NewNop(),
	}
}

// WithRegistry sets the host functions bound into the script namespace.
// Without it only time_now is bound.
func WithRegistry(r *hostfunc.Registry) Option {
	return func(c *hostConfig) {
		c.registry = r
	}
}

// WithConsole sets the destination of console.log. Default is stdout.
func WithConsole(console *hostfunc.Console) Option {
	return func(c *hostConfig) {
		c.console = console
	}
}

// WithLogger sets the diagnostics logger. Default no-op.
func WithLogger(l *zap.Logger) Option {
	return func(c *hostConfig) {
		c.logger = l
	}
}
