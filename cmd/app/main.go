package main

import (
	"context"
	"flag"
	"log"
	"os"

	"SignalPulse/internal/di"
	"SignalPulse/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s journal=%s weights=%s instruments=%d",
		cfg.Environment, cfg.Journal.Backend, cfg.WeightsStore.Type, len(cfg.Instruments))

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
