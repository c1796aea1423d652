package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/festlist/festlist/internal/ai"
	"github.com/festlist/festlist/internal/api"
	"github.com/festlist/festlist/internal/api/middleware"
	"github.com/festlist/festlist/internal/catalog"
	"github.com/festlist/festlist/internal/catalog/deezer"
	"github.com/festlist/festlist/internal/catalog/spotify"
	"github.com/festlist/festlist/internal/config"
	"github.com/festlist/festlist/internal/database"
	"github.com/festlist/festlist/internal/encryption"
	"github.com/festlist/festlist/internal/event"
	"github.com/festlist/festlist/internal/extraction"
	"github.com/festlist/festlist/internal/flyer"
	"github.com/festlist/festlist/internal/inbox"
	"github.com/festlist/festlist/internal/logging"
	"github.com/festlist/festlist/internal/maintenance"
	"github.com/festlist/festlist/internal/ocr"
	"github.com/festlist/festlist/internal/playlist"
	"github.com/festlist/festlist/internal/ratelimit"
	"github.com/festlist/festlist/internal/user"
	"github.com/festlist/festlist/internal/version"
)

func main() {
	// Handle subcommands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "extract":
			if err := runExtract(os.Args[2:], os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Printf("festlist %s (%s)\n", version.Version, version.Commit)
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	configPath := os.Getenv("FL_CONFIG_PATH")
	if configPath == "" {
		configPath = "/data/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func newLogManager(cfg *config.Config) (*logging.Manager, *slog.Logger) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	logCfg.FilePath = cfg.Logging.File
	if os.Getenv("FL_LOG_FORMAT") == "" {
		logCfg.Format = logging.TerminalFormat(os.Stderr, logCfg.Format)
	}
	return logging.NewManager(logCfg, os.Stderr)
}

// pipeline holds the services shared by the server and the extract command.
type pipeline struct {
	limiter    *ratelimit.Map
	ocr        *ocr.Service
	extraction *extraction.Service
}

func newPipeline(cfg *config.Config, logger *slog.Logger) *pipeline {
	limiter := ratelimit.NewMap()

	engines := []ocr.Engine{
		ocr.NewTesseract(ocr.TesseractConfig{Path: cfg.OCR.TesseractPath, Lang: cfg.OCR.Language}, logger),
	}
	if cfg.OCR.VisionAPIKey != "" {
		engines = append(engines, ocr.NewGoogleVision(ocr.VisionConfig{APIKey: cfg.OCR.VisionAPIKey}, limiter, logger))
	}

	ext := extraction.NewService(logger)
	if cfg.AI.GeminiAPIKey != "" {
		g := ai.NewGemini(ai.GeminiConfig{APIKey: cfg.AI.GeminiAPIKey, Model: cfg.AI.GeminiModel}, limiter, logger)
		ext.RegisterText(g)
		ext.RegisterImage(g)
	}
	if cfg.AI.OpenAIAPIKey != "" {
		o := ai.NewOpenAI(ai.OpenAIConfig{APIKey: cfg.AI.OpenAIAPIKey, Model: cfg.AI.OpenAIModel}, limiter, logger)
		ext.RegisterText(o)
		ext.RegisterImage(o)
	}

	return &pipeline{
		limiter:    limiter,
		ocr:        ocr.NewService(cfg.OCR.Engine, logger, engines...),
		extraction: ext,
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up structured logging via the logging Manager
	logManager, logger := newLogManager(cfg)
	defer logManager.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	// Run migrations
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	// Reload logging settings from DB (overrides config file values if present)
	if stored, ok, err := logging.LoadSettings(context.Background(), db); err != nil {
		logger.Warn("loading logging settings", "error", err)
	} else if ok {
		logManager.Reconfigure(logging.Merge(logManager.Config(), stored))
		logger.Info("logging configured from database", "config", logManager.Config().String())
	}

	// Resolve encryption key: config > file > generate new
	encKey, err := encryption.ResolveKey(cfg.Encryption.Key, filepath.Dir(cfg.Database.Path), logger)
	if err != nil {
		return fmt.Errorf("resolving encryption key: %w", err)
	}
	encryptor, _, err := encryption.NewEncryptor(encKey)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}

	p := newPipeline(cfg, logger)

	// Initialize services
	userService := user.NewService(db, encryptor, logger)
	quota := user.NewQuota(db, cfg.Limits.DailyAnalyses)
	flyerStore := flyer.NewStore(db, cfg.Uploads.Dir, logger)
	if err := os.MkdirAll(cfg.Uploads.Dir, 0o750); err != nil {
		return fmt.Errorf("creating upload directory: %w", err)
	}
	records := extraction.NewStore(db)
	playlists := playlist.NewStore(db)

	// Spotify when configured; Deezer still lets artists be matched without it.
	spotifyAdapter := spotify.New(spotify.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURL:  cfg.Spotify.RedirectURI,
	}, p.limiter, logger)
	var (
		resolver *catalog.Resolver
		builder  *playlist.Builder
	)
	if spotifyAdapter.Configured() {
		resolver = catalog.NewResolver(spotifyAdapter, 0, logger)
		builder = playlist.NewBuilder(resolver, spotifyAdapter, playlists, logger)
	} else {
		logger.Warn("spotify credentials not configured; matching against deezer, playlist creation disabled")
		resolver = catalog.NewResolver(deezer.New(p.limiter, logger), 0, logger)
	}

	maintenanceService := maintenance.NewService(db, userService, quota, logger)

	eventBus := event.NewBus(logger, 256)
	eventBus.SubscribeAll(func(e event.Event) {
		logger.Debug("event", slog.String("type", string(e.Type)), slog.Any("data", e.Data))
	})

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go eventBus.Start(ctx)

	router := api.NewRouter(api.RouterDeps{
		Users:      userService,
		Quota:      quota,
		Flyers:     flyerStore,
		OCR:        p.ocr,
		Extraction: p.extraction,
		Records:    records,
		Matcher:    resolver,
		Spotify:    api.NewSpotifyAccounts(spotifyAdapter),
		Builder:    builder,
		Playlists:  playlists,
		LogManager: logManager,
		IPLimiter:  middleware.NewIPRateLimiter(ctx),
		Defaults: api.ExtractionDefaults{
			UseAI:     cfg.Extraction.UseAI,
			Threshold: cfg.Extraction.Threshold,
		},
		Admins:   cfg.Server.Admins,
		DB:       db,
		Logger:   logger,
		BasePath: cfg.Server.BasePath,
	})

	// Create HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start maintenance scheduler (session cleanup, quota pruning, optimize)
	go maintenanceService.StartScheduler(ctx, 24*time.Hour)

	// Remove old uploads
	go flyerStore.StartCleanup(ctx, cfg.Uploads.CleanupInterval, cfg.Uploads.MaxAge)

	// Start the inbox watcher when a directory is configured
	if cfg.Inbox.Dir != "" {
		importer := inbox.NewImporter(flyerStore, p.ocr, p.extraction, records, extraction.Options{
			UseAI:     cfg.Inbox.UseAI,
			Threshold: cfg.Extraction.Threshold,
		}, eventBus, logger)
		watcher := inbox.NewService(cfg.Inbox.Dir, importer, eventBus, logger)
		watcher.SetDebounce(cfg.Inbox.Debounce)
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("base_path", cfg.Server.BasePath),
			slog.String("version", version.Version),
			slog.Any("ocr_engines", p.ocr.Engines()),
			slog.Any("ai_providers", p.extraction.TextProviders()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
