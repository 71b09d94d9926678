// Package config handles gorurt.toml runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
)

// FileName is the configuration file looked up in the working directory
// when no path is given.
const FileName = "gorurt.toml"

// Config is the full runtime configuration.
type Config struct {
	Audio   Audio      `toml:"audio"`
	Script  Script     `toml:"script"`
	Load    LoadConfig `toml:"load"`
	Log     Log        `toml:"log"`
	Control Control    `toml:"control"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

// Audio configures the simulated audio server.
type Audio struct {
	SampleRate int           `toml:"sample_rate"`
	BufferSize int           `toml:"buffer_size"`
	Source     string        `toml:"source"` // silence, sine or file
	SourcePath string        `toml:"source_path"`
	SineHz     float64       `toml:"sine_hz"`
	SineAmp    float64       `toml:"sine_amplitude"`
	Sink       string        `toml:"sink"` // discard, file or speaker
	SinkPath   string        `toml:"sink_path"`
	Duration   time.Duration `toml:"duration"` // zero runs until interrupted
	Freewheel  bool          `toml:"freewheel"`
}

// Script configures the user script and its runtime.
type Script struct {
	Path             string `toml:"path"`
	Language         string `toml:"language"` // auto, js or wasm
	WarmupIterations int    `toml:"warmup_iterations"`
	LockPolicy       string `toml:"lock_policy"` // try or blocking
	MemoryLimit      string `toml:"memory_limit"`
	CacheDir         string `toml:"cache_dir"`
	NoCache          bool   `toml:"no_cache"`
}

// LoadConfig configures background dummyLoad calls.
type LoadConfig struct {
	Enabled    bool          `toml:"enabled"`
	Interval   time.Duration `toml:"interval"`
	SampleRate float64       `toml:"sample_rate"` // zero uses the audio sample rate
}

type Log struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"` // console or json
	ErrorEvery int64  `toml:"error_every"`
}

type Control struct {
	Addr string `toml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Audio: Audio{
			SampleRate: 48000,
			BufferSize: 256,
			Source:     "silence",
			SineHz:     440,
			SineAmp:    0.5,
			Sink:       "discard",
		},
		Script: Script{
			Path:             "process.js",
			Language:         "auto",
			WarmupIterations: 100,
			LockPolicy:       "try",
			MemoryLimit:      "256mb",
		},
		Load: LoadConfig{
			Interval: time.Second,
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			ErrorEvery: 1000,
		},
		Control: Control{
			Addr: ":8080",
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := Default()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}

	cfg.Path, err = filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when given, otherwise FileName from dir if it
// exists, otherwise the defaults.
func LoadOrDefault(path, dir string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	candidate := filepath.Join(dir, FileName)
	if _, err := os.Stat(candidate); err == nil {
		return Load(candidate)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return Default(), nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	check(c.Audio.SampleRate > 0, "audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	check(c.Audio.BufferSize > 0, "audio.buffer_size must be positive, got %d", c.Audio.BufferSize)
	check(c.Audio.Duration >= 0, "audio.duration must not be negative")
	check(oneOf(c.Audio.Source, "silence", "sine", "file"), "audio.source %q: want silence, sine or file", c.Audio.Source)
	check(c.Audio.Source != "file" || c.Audio.SourcePath != "", "audio.source_path required for file source")
	check(c.Audio.Source != "sine" || c.Audio.SineHz > 0, "audio.sine_hz must be positive")
	check(oneOf(c.Audio.Sink, "discard", "file", "speaker"), "audio.sink %q: want discard, file or speaker", c.Audio.Sink)
	check(c.Audio.Sink != "file" || c.Audio.SinkPath != "", "audio.sink_path required for file sink")

	check(c.Script.Path != "", "script.path required")
	check(oneOf(c.Script.Language, "auto", "js", "javascript", "wasm"), "script.language %q: want auto, js or wasm", c.Script.Language)
	check(c.Script.WarmupIterations >= 0, "script.warmup_iterations must not be negative")
	check(oneOf(c.Script.LockPolicy, "try", "blocking"), "script.lock_policy %q: want try or blocking", c.Script.LockPolicy)
	_, memErr := ParseMemoryLimit(c.Script.MemoryLimit)
	check(memErr == nil, "script.memory_limit: %v", memErr)

	check(c.Load.Interval > 0, "load.interval must be positive")
	check(c.Load.SampleRate >= 0, "load.sample_rate must not be negative")

	check(oneOf(c.Log.Format, "console", "json"), "log.format %q: want console or json", c.Log.Format)
	check(oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "error"), "log.level %q: want debug, info, warn or error", c.Log.Level)
	return err
}

// ScriptLanguage resolves "auto" from the script file extension.
func (c *Config) ScriptLanguage() string {
	switch c.Script.Language {
	case "js", "javascript":
		return "js"
	case "wasm":
		return "wasm"
	}
	switch strings.ToLower(filepath.Ext(c.Script.Path)) {
	case ".wasm":
		return "wasm"
	default:
		return "js"
	}
}

// LoadSampleRate is the rate passed to dummyLoad.
func (c *Config) LoadSampleRate() float64 {
	if c.Load.SampleRate > 0 {
		return c.Load.SampleRate
	}
	return float64(c.Audio.SampleRate)
}

// Memory limits in 64KB WebAssembly pages.
const (
	MemoryLimit1MB   uint32 = 16
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
	MemoryLimit1GB   uint32 = 16384
)

// ParseMemoryLimit converts "1mb", "16mb", "64mb", "256mb" or "1gb" into
// pages. Empty means no limit.
func ParseMemoryLimit(s string) (uint32, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case "1mb":
		return MemoryLimit1MB, nil
	case "16mb":
		return MemoryLimit16MB, nil
	case "64mb":
		return MemoryLimit64MB, nil
	case "256mb":
		return MemoryLimit256MB, nil
	case "1gb":
		return MemoryLimit1GB, nil
	}
	return 0, fmt.Errorf("unknown memory limit %q: want 1mb, 16mb, 64mb, 256mb or 1gb", s)
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
