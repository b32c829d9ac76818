// Package internal contains core application functionality
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/karloscodes/cartridge"

	"heatmap/internal/config"
	"heatmap/internal/database"
	"heatmap/internal/events"
	"heatmap/internal/http/middleware"
	"heatmap/internal/insights"
)

// Application wraps cartridge.Application with the event store and the
// services mounted on it.
type Application struct {
	*cartridge.Application
	Config    *config.Config
	DBManager *database.DBManager // Event store manager (MongoDB or SQLite)
	Events    *events.Service
	Analyzer  *insights.Analyzer
}

// NewApp creates a new application instance with default settings
func NewApp(ctx context.Context) (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(ctx, cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)

	generator, err := insights.NewGeminiGenerator(ctx, insights.GeminiConfig{
		APIKey: cfg.GoogleAPIKey,
		Model:  cfg.GeminiModel,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}

	return NewAppWithDependencies(cfg, logger, dbManager, generator)
}

// NewAppWithDependencies assembles the application around an existing
// connection manager and generator.
func NewAppWithDependencies(cfg *config.Config, logger *slog.Logger, dbManager *database.DBManager, generator insights.Generator) (*Application, error) {
	app := &Application{
		Config:    cfg,
		DBManager: dbManager,
		Events:    events.NewService(dbManager, logger, events.WithTimeout(cfg.OperationTimeout())),
		Analyzer: insights.NewAnalyzer(dbManager, generator, logger,
			insights.WithGenerationTimeout(cfg.GenerationTimeout()),
			insights.WithOperationTimeout(cfg.OperationTimeout())),
	}

	base, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:       cfg,
		Logger:       logger,
		DBManager:    dbManager,
		ServerConfig: serverConfig(cfg, logger),
		RouteMountFunc: func(srv *cartridge.Server) {
			MountAppRoutes(srv, app)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	app.Application = base
	return app, nil
}

// serverConfig starts from cartridge's defaults. Errors render as JSON since
// every route is an API route, and a request may wait on the generation
// service before it writes. Sec-Fetch-Site checks are off: there is no
// cookie session to forge, the collector posts cross-site and /analyze is
// called server to server.
func serverConfig(cfg *config.Config, logger *slog.Logger) *cartridge.ServerConfig {
	serverCfg := cartridge.DefaultServerConfig()
	serverCfg.ErrorHandler = middleware.ErrorHandler(logger)
	serverCfg.EnableSecFetchSite = false
	serverCfg.ReadTimeout = 30 * time.Second
	serverCfg.WriteTimeout = cfg.GenerationTimeout() + 30*time.Second
	serverCfg.EnableTemplates = false
	serverCfg.StaticPrefix = cfg.GetAssetsPrefix()
	serverCfg.EnableStaticAssets = isDir(cfg.GetPublicDirectory())
	return serverCfg
}

func isDir(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Migrate prepares the event store schema.
func (a *Application) Migrate(ctx context.Context) error {
	return a.DBManager.MigrateDatabase(ctx)
}

// Shutdown stops the HTTP server and releases the store connection.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Logger.Info("Shutting down")

	var errs []error
	if err := a.Application.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if err := a.DBManager.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to close event store: %w", err))
	}
	return errors.Join(errs...)
}
