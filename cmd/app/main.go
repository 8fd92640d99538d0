package main

import (
	"flag"
	"log"
	"os"

	"RiskKernel/internal/di"
	"RiskKernel/pkg/config"
	applogger "RiskKernel/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	app.Log.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.Strings("symbols", cfg.Symbols),
		applogger.Strings("brokers", cfg.Kafka.Brokers),
		applogger.String("forecast", cfg.Forecast.Mode),
		applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
		applogger.Bool("redis", cfg.Redis.Enabled),
	)

	// Blocks until SIGINT/SIGTERM.
	if err := app.Run(); err != nil {
		app.Log.Error("app error", applogger.Error(err))
		os.Exit(1)
	}
}
