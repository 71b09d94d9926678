package wasm

import (
	"os"
	"path/filepath"
)

type config struct {
	diskCache        bool
	cacheDir         string
	memoryLimitPages uint32
}

// Option configures the WebAssembly language.
type Option func(*config)

// WithDiskCache enables persistent compilation caching in the default cache
// directory, so a restart skips recompiling an unchanged module.
func WithDiskCache() Option {
	return func(c *config) {
		c.diskCache = true
	}
}

// WithCacheDir enables disk caching in dir.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		c.diskCache = true
		c.cacheDir = dir
	}
}

// WithMemoryLimitPages caps guest linear memory. Each page is 64KB.
func WithMemoryLimitPages(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "gorurt")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "gorurt")
	}
	return filepath.Join(os.TempDir(), "gorurt-cache")
}
