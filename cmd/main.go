package main

import (
	"log"

	"go.uber.org/zap"

	"github.com/shaibs3/LinkWatch/internal/app"
	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/content"
	"github.com/shaibs3/LinkWatch/internal/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Initialize logger first (for configuration loading)
	initialLogger, err := logger.NewLogger("production", "info")
	if err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer func() {
		_ = initialLogger.Sync()
	}()

	// Load configuration
	cfg := config.Load(initialLogger)

	// Create application logger with proper configuration
	appLogger, err := logger.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		initialLogger.Fatal("failed to create application logger", zap.Error(err))
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	// Log build info
	appLogger.Info("Build info",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	var sources []content.Source
	if cfg.ContentDir != "" {
		sources = append(sources, content.NewDirSource(cfg.ContentDir))
		appLogger.Info("serving content from directory", zap.String("dir", cfg.ContentDir))
	} else {
		appLogger.Warn("no CONTENT_DIR configured, scans will find no content units")
	}

	application, err := app.NewApp(cfg, appLogger, sources)
	if err != nil {
		appLogger.Fatal("failed to initialize application", zap.Error(err))
	}

	if err := application.Run(); err != nil {
		appLogger.Fatal("application exited with error", zap.Error(err))
	}
}
