package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"ParityBot/internal/di"
	"ParityBot/pkg/config"
	"ParityBot/pkg/server"
)

func main() {
	if err := run(); err != nil {
		log.Printf("paritybot: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	modeFlag := flag.String("mode", envOr("PARITYBOT_MODE", "serve"), "run mode: backtest, live, match or serve")
	symbol := flag.String("symbol", "", "override strategy.symbol")
	flag.Parse()

	mode, err := server.ParseMode(strings.ToLower(*modeFlag))
	if err != nil {
		return err
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *symbol != "" {
		cfg.Strategy.Symbol = strings.ToUpper(*symbol)
	}
	log.Printf("env=%s mode=%s symbol=%s dry_run=%t", cfg.Environment, mode, cfg.Strategy.Symbol, cfg.Live.DryRun)

	app, err := di.InitializeApp(cfg, mode)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	return app.Run(context.Background())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
