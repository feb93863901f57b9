package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/manager"
	"github.com/jagilber-org/mcp-agent-manager-sub001/internal/telemetry"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the manager process and block until shutdown",
		RunE:  runServe,
	}
	cmd.Flags().Bool("log-json", false, "output logs in JSON instead of console format")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	cfg, err := manager.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tel := buildTelemetry(cfg.LogLevel, logJSON)

	m, err := manager.New(cfg, tel)
	if err != nil {
		return fmt.Errorf("construct manager: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := m.Start(ctx); err != nil {
		return fmt.Errorf("start manager: %w", err)
	}
	tel.Logger.Info(ctx, "managerd: started", "dataDir", cfg.DataDir, "dashboard", cfg.Dashboard)

	<-ctx.Done()
	tel.Logger.Info(ctx, "managerd: shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop manager: %w", err)
	}
	return nil
}

// buildTelemetry wires the manager's logging/metrics/tracing seam to a real
// zerolog writer and the process-wide OTEL providers, following
// cuemby-warren/pkg/log's level/format switch.
func buildTelemetry(level string, jsonOutput bool) telemetry.Bundle {
	zlevel, err := zerolog.ParseLevel(level)
	if err != nil {
		zlevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(zlevel)

	var zl zerolog.Logger
	if jsonOutput {
		zl = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return telemetry.Bundle{
		Logger:  telemetry.NewZerologLogger(zl),
		Metrics: telemetry.NewOtelMetrics("managerd"),
		Tracer:  telemetry.NewOtelTracer("managerd"),
	}
}
