package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [script]",
		Short: "Process audio through a script",
		Long: `Load a script, warm it up and process audio until interrupted.

The script is taken from the argument, or script.path in the config
(default process.js). Language is detected from the extension:
.wasm runs on the WebAssembly runtime, anything else as JavaScript.

Examples:
  gorurt run gain.js --source sine --sink speaker
  gorurt run filter.wasm --duration 10s --sink file --sink-path out.f32
  gorurt run process.js --load --lock-policy blocking`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRun,
	}

	addAudioFlags(cmd)
	cmd.Flags().Int("warmup", 0, "Warm-up iterations before audio starts")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return withExitCode(exitConfig, err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger, cmd.OutOrStdout())
	if err := a.initScript(ctx); err != nil {
		return err
	}
	if err := a.startAudio(ctx); err != nil {
		return multierr.Append(err, a.stop(context.Background()))
	}
	logger.Info("processing audio",
		zap.String("script", cfg.Script.Path),
		zap.Int("sample_rate", cfg.Audio.SampleRate),
		zap.Int("buffer_size", cfg.Audio.BufferSize),
		zap.Bool("load", cfg.Load.Enabled),
	)

	waitErr := a.wait(ctx)
	return multierr.Append(waitErr, a.stop(context.Background()))
}
