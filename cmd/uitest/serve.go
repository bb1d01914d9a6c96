package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/browser"
	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/jobs"
	"github.com/copyleftdev/uitest/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the improvement jobs HTTP API",
	Long: `Starts an HTTP server accepting improvement jobs:

  POST /api/v1/improve          submit a run, returns {"jobId": ...}
  GET  /api/v1/improve/{jobID}  job status and report
  GET  /health

Runs share one browser; at most browser.maxSessions run at a time.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()
	if servePort > 0 {
		cfg.Server.Port = servePort
	}

	browsers := browser.NewManager(cfg.Browser, logger)
	runner := improve.NewRunner(cfg, logger, improve.WithLauncher(improve.ManagerLauncher(browsers)))
	jm := jobs.NewManager(cfg, runner, logger)
	srv := server.NewServer(cfg, jm, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.Start() }()

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	timeout := cfg.Browser.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := jm.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := browsers.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger.Warn("Shutdown incomplete", zap.Error(err))
		return err
	}
	return nil
}
