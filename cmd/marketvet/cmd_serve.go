package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketvet/marketvet/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the analysis and feedback API:
  POST /api/v1/analyze   run the pipeline for a symbol
  POST /api/v1/outcomes  record a realized trade outcome
  GET  /api/v1/accuracy  per-indicator reliability table
  GET  /health           component health and degradation plan
  GET  /metrics          Prometheus metrics`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv := httpapi.NewServer(httpapi.Config{
		Listen:          a.cfg.Server.Listen,
		ReadTimeout:     a.cfg.Server.ReadTimeout,
		WriteTimeout:    a.cfg.Server.WriteTimeout,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.orchestrator, a.tracker, a.monitor, a.collector)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
