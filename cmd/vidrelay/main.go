package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/vidrelay/internal/api"
	"github.com/iconidentify/vidrelay/internal/api/handler"
	"github.com/iconidentify/vidrelay/internal/config"
	"github.com/iconidentify/vidrelay/internal/cookies"
	"github.com/iconidentify/vidrelay/internal/downloader"
	"github.com/iconidentify/vidrelay/internal/metrics"
	"github.com/iconidentify/vidrelay/internal/potoken"
	"github.com/iconidentify/vidrelay/internal/service"
	"github.com/iconidentify/vidrelay/internal/storage"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *showVersion {
		fmt.Printf("vidrelay %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting vidrelay",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
		logger.Error("failed to create temp directory", "error", err)
		os.Exit(1)
	}

	// Initialize dependencies
	ctx := context.Background()
	uploader, err := storage.New(ctx, cfg.Upload, logger)
	if err != nil {
		logger.Error("failed to initialize upload target", "error", err)
		os.Exit(1)
	}
	if uploader != nil {
		// Missing credentials are reported per request, not at startup.
		if err := uploader.Check(); err != nil {
			logger.Warn("upload target not fully configured", "strategy", cfg.Upload.Strategy, "error", err)
		}
	}

	if n := cookies.Count(cfg.Cookies.Content); n > 0 {
		logger.Info("cookie jar configured", "cookies", n)
	}

	m := metrics.New()
	dl := downloader.NewYtDlp(cfg.YtDlp, logger)

	var tokens service.TokenSource
	if p := potoken.NewProvider(cfg.PoToken, logger); p != nil {
		tokens = p
		logger.Info("po token helper configured", "client", cfg.PoToken.Client)
	}

	// Initialize services
	downloadSvc := service.NewDownloadService(
		service.Config{
			TempPath:      cfg.Storage.TempPath,
			Cookies:       cfg.Cookies.Content,
			MaxConcurrent: cfg.YtDlp.MaxConcurrent,
		},
		dl,
		uploader,
		tokens,
		m,
		logger,
	)

	// Initialize handlers
	downloadHandler := handler.NewDownloadHandler(downloadSvc, logger)
	healthHandler := handler.NewHealthHandler(cfg.Storage.TempPath)

	// Setup router
	router := api.NewRouter(downloadHandler, healthHandler, m.Handler(), api.RouterConfig{
		APIKey:      cfg.Server.APIKey,
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger,
	})

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server",
			"addr", srv.Addr,
			"strategy", cfg.Upload.Strategy,
			"max_concurrent", cfg.YtDlp.MaxConcurrent,
		)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests; in-flight downloads get the grace period.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
