// migrate runs DB migrations from embedded SQL; use with go run ./cmd/migrate.
package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"orgscope/internal/config"
	"orgscope/internal/db/migrate"
	"orgscope/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	version := flag.Bool("version", false, "Print the applied schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.Must(cfg.LogLevel, cfg.Production())
	defer func() { _ = logger.Sync() }()

	if *version {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("migrate version", zap.Error(err))
		}
		fmt.Printf("version %d dirty=%t\n", v, dirty)
		return
	}

	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, dir, logger); err != nil {
		logger.Fatal("migrate", zap.String("direction", string(dir)), zap.Error(err))
	}
	logger.Info("migrations applied", zap.String("direction", string(dir)))
}
