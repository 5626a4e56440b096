package main

import (
	"flag"
	"log"
	"os"

	"BasisPulse/internal/di"
	"BasisPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s feed=%s symbols=%v assets=%v",
		cfg.Environment, cfg.Feed.Mode, cfg.Feed.Symbols, cfg.Aggregator.Assets)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Blocks until a shutdown signal arrives.
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
