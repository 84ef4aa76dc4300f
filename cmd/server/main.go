// Package main is the entry point for the genome dashboard server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/genome-heatmap/server/internal/api"
	"github.com/genome-heatmap/server/internal/cache"
	"github.com/genome-heatmap/server/internal/config"
	"github.com/genome-heatmap/server/internal/logger"
	"github.com/genome-heatmap/server/internal/render"
	"github.com/genome-heatmap/server/internal/schema"
	"github.com/genome-heatmap/server/internal/service"
	"github.com/genome-heatmap/server/internal/source"
)

func main() {
	cmd := &cli.Command{
		Name:   "genome-dashboard",
		Usage:  "Multi-track genome feature dashboard server",
		Action: run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   "config/server.yaml",
				Sources: cli.EnvVars("DASHBOARD_CONFIG_FILE"),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	level, err := zapcore.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	if err := logger.Init(level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	sch, err := loadSchema(cfg.Data.SchemaPath)
	if err != nil {
		return fmt.Errorf("load schema: %w", err)
	}

	fetcher, err := source.NewDirFetcher(cfg.Data.Dir)
	if err != nil {
		return fmt.Errorf("open data dir: %w", err)
	}

	cacheManager, err := cache.NewManager(cache.Config{
		RasterCacheSizeMB: cfg.Cache.RasterSizeMB,
		RasterTTL:         time.Duration(cfg.Cache.RasterTTLMinutes) * time.Minute,
		QueryCacheSize:    cfg.Cache.QueryEntries,
	})
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cacheManager.Close()

	renderer := render.NewRenderer(render.Config{
		Width:         cfg.Render.Width,
		Height:        cfg.Render.Height,
		MinimapHeight: cfg.Render.MinimapHeight,
	})

	dashboard := service.New(service.Config{
		Schema:  sch,
		Fetcher: fetcher,
		Remote: source.RemoteConfig{
			QueryURL: cfg.Data.QueryURL,
			Token:    os.Getenv("KB_AUTH_TOKEN"),
		},
		Cache:    cacheManager,
		Renderer: renderer,
	})

	logger.Info("loading dataset",
		zap.String("dir", cfg.Data.Dir),
		zap.String("mode", string(dashboard.Mode(ctx))))
	if err := dashboard.Load(ctx); err != nil {
		return fmt.Errorf("initial load: %w", err)
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if cfg.Data.Watch && dashboard.Mode(ctx) == source.ModeStandalone {
		watcher, err := source.NewWatcher(dashboard.Loader(), cfg.Data.Dir, 500*time.Millisecond)
		if err != nil {
			logger.Warn("file watcher disabled", zap.Error(err))
		} else {
			go watcher.Run(watchCtx)
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Dashboard:   dashboard,
		Schema:      sch,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
	return nil
}

// loadSchema reads the dashboard schema override, falling back to the
// built-in 29-field layout when no path is configured.
func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return schema.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return schema.Parse(raw)
}
