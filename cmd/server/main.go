package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"riskaccept/internal/app"
	"riskaccept/internal/platform/config"
	"riskaccept/internal/platform/logger"
)

// main loads configuration, wires the process and runs it until SIGINT or
// SIGTERM. Business logic lives in internal/acceptance.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", "error", err)
		os.Exit(1)
	}

	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		log.Warn("failed to release resources", "error", err)
	}
	if runErr != nil {
		log.Error("server stopped with error", "error", runErr)
		os.Exit(1)
	}
	log.Info("server stopped")
}
