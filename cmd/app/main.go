package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"SeriesPrep/internal/di"
	"SeriesPrep/pkg/config"
)

func run() error {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log.Printf("starting env=%s backend=%s brokers=%v", cfg.Environment, cfg.Backend.Type, cfg.Kafka.Brokers)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}

	// Blocks until SIGINT or SIGTERM.
	return app.Run()
}

func main() {
	if err := run(); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}
