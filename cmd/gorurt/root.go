package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/caffeineduck/gorurt/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gorurt",
		Short: "Scripted real-time audio processing",
		Long: `gorurt - Transform live audio with JavaScript or WebAssembly scripts.

Every audio period is handed to the script's process(samples) function and
the result is written to the output port. Scripts define three entry points:

  start(sampleRate)     called once before audio starts
  process(samples)      called for every buffer, mutates samples in place
  dummyLoad(sampleRate) called from a background thread with --load

Settings come from gorurt.toml in the working directory, or --config.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Config file (default: ./gorurt.toml if present)")
	cmd.PersistentFlags().StringP("lang", "l", "", "Language: js, wasm (default: auto-detect)")
	cmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().String("log-format", "", "Log format: console, json")
	cmd.PersistentFlags().Bool("no-cache", false, "Disable WebAssembly compilation cache")

	cmd.AddCommand(newRunCmd(), newCheckCmd(), newServeCmd())
	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	err := root.Execute()
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
	}
	return exitCode(err)
}

// addAudioFlags registers the flags shared by run and serve.
func addAudioFlags(cmd *cobra.Command) {
	cmd.Flags().Int("rate", 0, "Sample rate in Hz")
	cmd.Flags().Int("buffer", 0, "Frames per buffer")
	cmd.Flags().String("source", "", "Input source: silence, sine, file")
	cmd.Flags().String("source-path", "", "Raw float32 input file for --source file")
	cmd.Flags().String("sink", "", "Output sink: discard, file, speaker")
	cmd.Flags().String("sink-path", "", "Raw float32 output file for --sink file")
	cmd.Flags().Duration("duration", 0, "Stop after this much audio (default: until interrupted)")
	cmd.Flags().Bool("freewheel", false, "Run callbacks back to back instead of in real time")
	cmd.Flags().Bool("load", false, "Call dummyLoad periodically from a background goroutine")
	cmd.Flags().Duration("load-interval", 0, "Pause between dummyLoad calls")
	cmd.Flags().String("lock-policy", "", "Engine lock on the audio path: try, blocking")
}

// loadConfig reads the config file and applies any flags the user set.
// A positional argument replaces the script path.
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	wd, err := os.Getwd()
	if err != nil {
		return nil, withExitCode(exitConfig, err)
	}
	cfg, err := config.LoadOrDefault(path, wd)
	if err != nil {
		return nil, withExitCode(exitConfig, err)
	}

	if len(args) > 0 {
		cfg.Script.Path = args[0]
	}

	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("lang", &cfg.Script.Language)
	str("log-level", &cfg.Log.Level)
	str("log-format", &cfg.Log.Format)
	str("source", &cfg.Audio.Source)
	str("source-path", &cfg.Audio.SourcePath)
	str("sink", &cfg.Audio.Sink)
	str("sink-path", &cfg.Audio.SinkPath)
	str("lock-policy", &cfg.Script.LockPolicy)
	str("addr", &cfg.Control.Addr)
	if flags.Changed("rate") {
		cfg.Audio.SampleRate, _ = flags.GetInt("rate")
	}
	if flags.Changed("buffer") {
		cfg.Audio.BufferSize, _ = flags.GetInt("buffer")
	}
	if flags.Changed("duration") {
		cfg.Audio.Duration, _ = flags.GetDuration("duration")
	}
	if flags.Changed("freewheel") {
		cfg.Audio.Freewheel, _ = flags.GetBool("freewheel")
	}
	if flags.Changed("load") {
		cfg.Load.Enabled, _ = flags.GetBool("load")
	}
	if flags.Changed("load-interval") {
		cfg.Load.Interval, _ = flags.GetDuration("load-interval")
	}
	if flags.Changed("warmup") {
		cfg.Script.WarmupIterations, _ = flags.GetInt("warmup")
	}
	if flags.Changed("no-cache") {
		cfg.Script.NoCache, _ = flags.GetBool("no-cache")
	}

	if err := cfg.Validate(); err != nil {
		return nil, withExitCode(exitConfig, fmt.Errorf("invalid configuration: %w", err))
	}
	return cfg, nil
}

// newLogger builds the diagnostics logger. It writes to stderr so stdout
// carries only script console output.
func newLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if cfg.Format == "json" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = true
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
