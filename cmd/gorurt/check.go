package main

import (
	"context"
	"fmt"

	"github.com/caffeineduck/gorurt/audio"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check [script]",
		Short: "Load and warm up a script without starting audio",
		Long: `Compile the script, resolve start, process and dummyLoad, call start and
run the warm-up loop. Exits non-zero with a code naming the failed step:

  2 configuration   3 script unreadable   4 compile
  5 missing entry point   6 engine setup, start or warm-up failed

With --cycles the script also processes that many buffers of a sine input
and the output range is reported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCheck,
	}

	cmd.Flags().Int("rate", 0, "Sample rate in Hz")
	cmd.Flags().Int("buffer", 0, "Frames per buffer")
	cmd.Flags().Int("warmup", 0, "Warm-up iterations")
	cmd.Flags().Int64("cycles", 0, "Buffers to process after warm-up")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return withExitCode(exitConfig, err)
	}
	defer logger.Sync()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	a := newApp(cfg, logger, out)
	if err := a.initScript(ctx); err != nil {
		return err
	}

	fmt.Fprintf(out, "ok: %s (%s) at %d Hz, %d frames\n",
		cfg.Script.Path, a.host.Language(), cfg.Audio.SampleRate, cfg.Audio.BufferSize)
	w := a.warmup
	fmt.Fprintf(out, "warm-up: %d iterations, first %v, last %v, max %v, total %v\n",
		w.Iterations, w.First, w.Last, w.Max, w.Total)

	cycles, _ := cmd.Flags().GetInt64("cycles")
	if cycles > 0 {
		if err := a.checkCycles(ctx, cycles); err != nil {
			return multierr.Append(err, a.stop(context.Background()))
		}
		s := a.snapshot()
		fmt.Fprintf(out, "cycles: %d, failed %d, max callback %v, mean %v\n",
			s.Audio.Cycles, s.Callback.Failed, s.Audio.Max, s.Audio.Mean)
	}
	return a.stop(context.Background())
}

// checkCycles runs the callback over a freewheeling server fed with a sine
// and reports the peak of the captured output.
func (a *app) checkCycles(ctx context.Context, cycles int64) error {
	capture := &audio.Capture{}
	var err error
	a.server, err = audio.NewSimulator(a.cfg.Audio.SampleRate, a.cfg.Audio.BufferSize,
		audio.WithSource(audio.NewSine(440, a.cfg.Audio.SampleRate, 0.5)),
		audio.WithSink(capture),
		audio.WithFreewheel(),
		audio.WithMaxCycles(cycles),
	)
	if err != nil {
		return withExitCode(exitAudio, err)
	}
	in, _ := a.server.RegisterPort("input", audio.Input)
	out, _ := a.server.RegisterPort("output", audio.Output)
	if err := a.server.SetProcessCallback(a.callback.Bind(in, out)); err != nil {
		return withExitCode(exitAudio, err)
	}
	if err := a.server.Activate(ctx); err != nil {
		return withExitCode(exitAudio, err)
	}
	<-a.server.Done()

	var peak float32
	for _, buf := range capture.Buffers {
		for _, v := range buf {
			peak = max(peak, v, -v)
		}
	}
	fmt.Fprintf(a.console, "output peak: %.4f\n", peak)
	return a.server.Err()
}
