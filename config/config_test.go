package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 48000, cfg.Audio.SampleRate)
	assert.Equal(t, 100, cfg.Script.WarmupIterations)
	assert.Equal(t, "process.js", cfg.Script.Path)
	assert.Equal(t, time.Second, cfg.Load.Interval)
	assert.False(t, cfg.Load.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "gorurt.toml", `
[audio]
sample_rate = 44100
buffer_size = 128
source = "sine"
sine_hz = 220.0
duration = "2s"

[script]
path = "gain.wasm"
lock_policy = "blocking"
memory_limit = "16mb"

[load]
enabled = true
interval = "250ms"

[log]
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 44100, cfg.Audio.SampleRate)
	assert.Equal(t, 128, cfg.Audio.BufferSize)
	assert.Equal(t, "sine", cfg.Audio.Source)
	assert.Equal(t, 2*time.Second, cfg.Audio.Duration)
	assert.Equal(t, "discard", cfg.Audio.Sink)
	assert.Equal(t, "blocking", cfg.Script.LockPolicy)
	assert.Equal(t, 100, cfg.Script.WarmupIterations)
	assert.True(t, cfg.Load.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Load.Interval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "wasm", cfg.ScriptLanguage())
	assert.Equal(t, 44100.0, cfg.LoadSampleRate())
	assert.Equal(t, path, cfg.Path)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "gorurt.toml", `
[audio]
sampel_rate = 44100
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio.sampel_rate")
}

func TestLoadParseError(t *testing.T) {
	path := writeFile(t, t.TempDir(), "gorurt.toml", `[audio`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadOrDefault("", dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.Path)

	writeFile(t, dir, FileName, "[audio]\nbuffer_size = 64\n")
	cfg, err = LoadOrDefault("", dir)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Audio.BufferSize)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Audio.SampleRate = 0
	cfg.Audio.BufferSize = -1
	cfg.Audio.Sink = "tape"
	cfg.Script.LockPolicy = "spin"
	cfg.Script.MemoryLimit = "3mb"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 5)
	assert.Contains(t, err.Error(), "audio.sink")
}

func TestValidateRequiresPaths(t *testing.T) {
	cfg := Default()
	cfg.Audio.Source = "file"
	cfg.Audio.Sink = "file"
	assert.Len(t, multierr.Errors(cfg.Validate()), 2)
}

func TestScriptLanguage(t *testing.T) {
	tests := []struct {
		lang, path, want string
	}{
		{"auto", "process.js", "js"},
		{"auto", "filters/gain.WASM", "wasm"},
		{"auto", "script", "js"},
		{"wasm", "process.js", "wasm"},
		{"javascript", "x.wasm", "js"},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Script.Language, cfg.Script.Path = tt.lang, tt.path
		assert.Equal(t, tt.want, cfg.ScriptLanguage(), "%s %s", tt.lang, tt.path)
	}
}

func TestParseMemoryLimit(t *testing.T) {
	pages, err := ParseMemoryLimit("64MB")
	require.NoError(t, err)
	assert.Equal(t, MemoryLimit64MB, pages)

	pages, err = ParseMemoryLimit("")
	require.NoError(t, err)
	assert.Zero(t, pages)

	_, err = ParseMemoryLimit("2gb")
	assert.Error(t, err)
}

func TestLoadSampleRateOverride(t *testing.T) {
	cfg := Default()
	cfg.Load.SampleRate = 96000
	assert.Equal(t, 96000.0, cfg.LoadSampleRate())
}
