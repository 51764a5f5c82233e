package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"govqa/cmd/govqa-cli/commands"
	"govqa/internal/components/telemetry"
	"govqa/pkg/configutil"
)

// setupTelemetry looks for telemetry.json5 in the working directory and its
// parents, telemetry stays off without one.
func setupTelemetry(ctx context.Context) telemetry.Telemetry {
	config, err := configutil.ReadRecursively[telemetry.Config]("telemetry.json5")
	if os.IsNotExist(err) {
		return telemetry.Telemetry{}
	}
	if err != nil {
		slog.Warn("failed to read telemetry config", "err", err)
		return telemetry.Telemetry{}
	}
	t, err := telemetry.Setup(ctx, "govqa-cli", config)
	if err != nil {
		slog.Warn("failed to setup telemetry", "err", err)
		return telemetry.Telemetry{}
	}
	return t
}

func main() {
	// interrupting cancels the request in flight
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	t := setupTelemetry(ctx)

	ok := commands.ExecuteContext(ctx)
	stop()

	err := t.Shutdown(context.Background())
	if err != nil {
		slog.Warn("failed to flush telemetry", "err", err)
	}
	if !ok {
		os.Exit(1)
	}
}
