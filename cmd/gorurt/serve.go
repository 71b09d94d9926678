package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [script]",
		Short: "Process audio with an HTTP control server",
		Long: `Run the audio pipeline like "run" and expose it over HTTP.

Endpoints:
  GET    /health         Health check
  GET    /stats          Callback, audio and script counters
  GET    /params         All script parameters
  GET    /params/{name}  One parameter
  PUT    /params/{name}  Set a parameter, body {"value": 0.5}
  DELETE /params/{name}  Remove a parameter
  POST   /load           Run dummyLoad once, suppressing processing meanwhile

Scripts read parameters with param_get(name, default).`,
		Args: cobra.MaximumNArgs(1),
		RunE: runServe,
	}

	addAudioFlags(cmd)
	cmd.Flags().Int("warmup", 0, "Warm-up iterations before audio starts")
	cmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
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

	srv := &http.Server{
		Addr:              cfg.Control.Addr,
		Handler:           newControlHandler(a),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() { srvErr <- serveControl(srv, logger) }()

	var runErr error
	select {
	case <-ctx.Done():
	case <-a.server.Done():
		runErr = a.server.Err()
	case err := <-srvErr:
		if err != nil {
			runErr = fmt.Errorf("control server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runErr = multierr.Append(runErr, srv.Shutdown(shutdownCtx))
	if runErr != nil {
		runErr = withExitCode(exitAudio, runErr)
	}
	return multierr.Append(runErr, a.stop(context.Background()))
}
