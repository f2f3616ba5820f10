package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/sundayezeilo/shortly/internal/achievements"
	"github.com/sundayezeilo/shortly/internal/clicks"
	"github.com/sundayezeilo/shortly/internal/config"
	"github.com/sundayezeilo/shortly/internal/database"
	"github.com/sundayezeilo/shortly/internal/idgen"
	"github.com/sundayezeilo/shortly/internal/links"
	"github.com/sundayezeilo/shortly/internal/media"
	"github.com/sundayezeilo/shortly/internal/memstore"
	"github.com/sundayezeilo/shortly/internal/notifications"
	"github.com/sundayezeilo/shortly/internal/server"
)

// App holds the application dependencies and configuration.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	DBPool   *pgxpool.Pool // nil with the memory store driver
	Tracker  *clicks.Tracker
	Handlers server.Handlers
	Server   *server.Server
}

// linkStore is what a backend must offer for links: CRUD for the API plus
// lookup and a counter for the tracker.
type linkStore interface {
	links.Repository
	clicks.LinkStore
}

type stores struct {
	links         linkStore
	achievements  achievements.Repository
	notifications notifications.Repository
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return NewWithConfig(ctx, cfg, setupLogger(cfg.App.LogLevel))
}

// NewWithConfig wires the application from an already loaded configuration.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	logger.Info("starting application",
		"env", cfg.App.Environment,
		"service", cfg.Service.Name,
		"version", cfg.Service.Version,
		"store", cfg.App.StoreDriver,
	)

	a := &App{Config: cfg, Logger: logger}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}

	ids := idgen.NewV7()
	tracker, err := clicks.NewTracker(clicks.TrackerConfig{
		Links:               st.links,
		Profiles:            st.achievements,
		Notifications:       st.notifications,
		IDGenerator:         ids,
		Logger:              logger,
		MaxIncrementRetries: cfg.Tracker.MaxIncrementRetries,
	})
	if err != nil {
		a.Shutdown()
		return nil, fmt.Errorf("failed to create click tracker: %w", err)
	}
	a.Tracker = tracker

	a.Handlers = server.Handlers{
		Links: links.NewHandler(links.HandlerConfig{
			Service: links.NewService(st.links, nil),
			Logger:  logger,
			BaseURL: cfg.Server.BaseURL,
		}),
		Clicks:        clicks.NewHandler(tracker, logger),
		Achievements:  achievements.NewHandler(achievements.NewService(st.achievements), logger),
		Notifications: notifications.NewHandler(notifications.NewService(st.notifications, nil), logger),
	}

	if cfg.Media.Enabled() {
		uploader, err := media.NewS3Uploader(ctx, cfg.Media)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("failed to create media uploader: %w", err)
		}
		a.Handlers.Media = media.NewHandler(uploader, logger)
		logger.Info("media uploads enabled", "bucket", cfg.Media.Bucket, "region", cfg.Media.Region)
	}

	a.Server = server.New(cfg, logger, a.Handlers)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.Config.App.StoreDriver == config.StoreDriverMemory {
		a.Logger.Warn("using in-memory store, data will not survive a restart")
		mem := memstore.New()
		return stores{links: mem, achievements: mem, notifications: mem}, nil
	}

	if a.Config.Database.Migrate {
		if err := database.Migrate(a.Config.Database.URL(), a.Logger); err != nil {
			return stores{}, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	pool, err := database.Connect(ctx, a.Config.Database, a.Logger)
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.DBPool = pool

	return stores{
		links:         links.NewPostgresRepository(pool),
		achievements:  achievements.NewPostgresRepository(pool),
		notifications: notifications.NewPostgresRepository(pool),
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown releases the application's resources.
func (a *App) Shutdown() {
	a.Logger.Info("shutting down application")

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}
}

// loadEnv loads a .env file only in development and test environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load(); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
