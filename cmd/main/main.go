package main

import (
	"context"
	"os/signal"
	"syscall"

	"pagoda/harvester/internal/config"
	"pagoda/harvester/internal/container"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.Info("Starting Pagoda product harvester...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Info("Configuration loaded successfully")

	// Stop signals cancel between keywords; in-flight UI actions finish
	// under their own timeouts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	runErr := app.Run(ctx)
	app.Close()
	if runErr != nil {
		log.Fatalf("Run exited with error: %v", runErr)
	}

	log.Info("Run finished successfully")
}
