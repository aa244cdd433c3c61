package handlers

import (
	"context"
	"fmt"
	"signalbrief/internal/config"
	"signalbrief/internal/server"
	"time"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for starting the HTTP API
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the synthesis HTTP API",
		Long: `Start the HTTP API.

Endpoints:
  • POST /api/v1/synthesis   run one synthesis (JSON, or markdown with Accept: text/markdown)
  • GET  /health             liveness plus database and redis checks
  • GET  /metrics            Prometheus metrics

A generation service that stays unavailable after retries is reported as
503 with retry_after; malformed requests are 400.

Examples:
  # Start server on default port 8080
  signalbrief serve

  # Start on custom port
  signalbrief serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Get()

	serverCfg := cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	opts := server.Options{Checks: map[string]server.Pinger{}}
	if cfg.Metrics.Enabled {
		opts.Metrics = rt.metrics
		opts.MetricsPath = cfg.Metrics.Path
	}
	if rt.db != nil {
		opts.Checks["database"] = rt.db
	}
	if rt.redis != nil {
		opts.Checks["redis"] = rt.redis
	}

	srv, err := server.New(rt.pipeline, serverCfg, opts)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		rt.log.Info(fmt.Sprintf("Server listening on http://%s:%d", serverCfg.Host, serverCfg.Port))
		rt.log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		rt.log.Info("Server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		rt.log.Info("Server stopped successfully")
	}

	return nil
}
