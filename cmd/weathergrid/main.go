package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	httpapi "github.com/i474232898/weathergrid/internal/api/http"
	"github.com/i474232898/weathergrid/internal/config"
	"github.com/i474232898/weathergrid/internal/dashboard"
	"github.com/i474232898/weathergrid/internal/location"
	"github.com/i474232898/weathergrid/internal/scheduler"
	"github.com/i474232898/weathergrid/internal/store"
	"github.com/i474232898/weathergrid/internal/weather"
	"github.com/i474232898/weathergrid/internal/weather/providers"
)

// kvStore is the persistence surface main needs from any backend.
type kvStore interface {
	location.Store
	Close() error
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kv, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer kv.Close()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	service := weather.NewService(
		newProvider(cfg, httpClient),
		newGeocoder(cfg, httpClient),
		weather.WithRetryPolicy(weather.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryBaseDelay,
		}),
	)

	var locator location.Locator
	if cfg.GeolocationEnabled {
		locator = providers.NewIPLocator(httpClient)
	}

	board := dashboard.New(service)
	defer board.Close()

	resolver := location.NewResolver(ctx, kv, location.Options{
		Enricher:        service,
		Locator:         locator,
		DefaultLocation: cfg.DefaultLocation,
		EnrichTimeout:   cfg.EnrichTimeout,
	})
	defer resolver.Close()

	// Every change of the current location restarts the dashboard session.
	resolver.OnCurrentChange(board.Show)
	board.Show(resolver.Current())

	sched := scheduler.New(cfg.RefreshInterval, board)
	if err := sched.Start(); err != nil {
		log.WithError(err).Fatal("failed to start scheduler")
	}
	defer sched.Stop()

	app := newApp()
	httpapi.RegisterRoutes(app, service, resolver, board)

	go func() {
		log.WithField("port", cfg.Port).Info("weathergrid listening")
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.WithError(err).Error("fiber server stopped")
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Error("error during shutdown")
	}
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "weathergrid",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weathergrid",
		})
	})
	return app
}

func openStore(ctx context.Context, cfg *config.AppConfig) (kvStore, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	case config.StoreMemory:
		log.Warn("using in-memory store; saved locations will not survive a restart")
		return store.NewMemoryStore(), nil
	default:
		return store.NewSQLiteStore(cfg.SQLitePath)
	}
}

func newProvider(cfg *config.AppConfig, client *http.Client) weather.Provider {
	if cfg.WeatherProvider == config.ProviderOpenMeteo {
		return providers.NewOpenMeteoProvider(client)
	}
	return providers.NewWeatherAPIProvider(client, cfg.WeatherAPIKey)
}

func newGeocoder(cfg *config.AppConfig, client *http.Client) weather.Geocoder {
	if cfg.Geocoder == config.GeocoderGoogle {
		return providers.NewGoogleGeocoder(cfg.GoogleGeocoderAPIKey)
	}
	return providers.NewOpenCageGeocoder(client, cfg.OpenCageAPIKey)
}
