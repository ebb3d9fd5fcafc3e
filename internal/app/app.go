package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shaibs3/LinkWatch/internal/checker"
	"github.com/shaibs3/LinkWatch/internal/config"
	"github.com/shaibs3/LinkWatch/internal/content"
	"github.com/shaibs3/LinkWatch/internal/extract"
	"github.com/shaibs3/LinkWatch/internal/handlers"
	"github.com/shaibs3/LinkWatch/internal/linkstore"
	"github.com/shaibs3/LinkWatch/internal/notify"
	"github.com/shaibs3/LinkWatch/internal/recheck"
	"github.com/shaibs3/LinkWatch/internal/router"
	"github.com/shaibs3/LinkWatch/internal/scanner"
	"github.com/shaibs3/LinkWatch/internal/telemetry"
)

// App represents the main application
type App struct {
	config    *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Telemetry
	server    *http.Server
	recheck   *recheck.Runner
	store     linkstore.Store
}

func NewApp(cfg *config.Config, logger *zap.Logger, sources []content.Source) (*App, error) {
	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(logger)
	if err != nil {
		return nil, err
	}

	// Use the factory to create the link store
	factory := linkstore.NewStoreFactory(logger, tel)
	var configJSON string
	if cfg.LinkDBConfig == "" {
		// Default to in-memory store
		storeCfg := linkstore.StoreConfig{
			DbType:       linkstore.StoreTypeMemory,
			ExtraDetails: map[string]interface{}{},
		}
		b, _ := json.Marshal(storeCfg)
		configJSON = string(b)
	} else {
		configJSON = cfg.LinkDBConfig
	}
	store, err := factory.CreateStore(configJSON)
	if err != nil {
		return nil, err
	}

	extractor, err := extract.NewExtractor(cfg.SiteOrigin, logger)
	if err != nil {
		return nil, err
	}
	linkChecker := checker.NewChecker(cfg.Checker, logger)

	recorder := &notify.Recorder{}
	scanEngine := scanner.NewScanner(store, linkChecker, extractor, sources, cfg.SiteOrigin, cfg.Scan, logger,
		notify.ThresholdHook(cfg.NotifyBrokenThreshold, logger, recorder.Record),
	)

	recheckRunner := recheck.NewRunner(store, scanEngine, cfg.Recheck, logger)

	// Initialize router with handlers
	var limiter = rate.NewLimiter(rate.Limit(cfg.RPSLimit), cfg.RPSBurst)

	// Create handlers
	handlerList := []router.Handler{
		handlers.NewScanHandler(scanEngine),
		handlers.NewLinksHandler(store, scanEngine, recheckRunner),
	}

	appRouter := router.NewRouter(limiter, tel, logger, handlerList)
	server := appRouter.CreateServer(":" + cfg.Port)

	return &App{
		config:    cfg,
		logger:    logger,
		telemetry: tel,
		server:    server,
		recheck:   recheckRunner,
		store:     store,
	}, nil
}

// Start starts the application server
func (app *App) start() error {
	app.logger.Info("starting server", zap.String("port", app.config.Port))

	if err := app.recheck.Start(); err != nil {
		return err
	}

	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the application
func (app *App) stop() error {
	app.logger.Info("shutting down server...")

	app.recheck.Stop()

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server forced to shutdown", zap.Error(err))
		return err
	}

	if err := app.store.Close(); err != nil {
		app.logger.Error("failed to close link store", zap.Error(err))
	}

	app.logger.Info("server exited gracefully")
	return nil
}

// Run starts the application and waits for shutdown signals
func (app *App) Run() error {
	// Start the server
	if err := app.start(); err != nil {
		return err
	}

	// Wait for interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Wait for shutdown signal
	<-ctx.Done()

	// Stop the application
	return app.stop()
}
