package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weathergrid/internal/weather"
)

const (
	ProviderWeatherAPI = "weatherapi"
	ProviderOpenMeteo  = "openmeteo"

	GeocoderOpenCage = "opencage"
	GeocoderGoogle   = "google"

	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type AppConfig struct {
	Port string

	WeatherProvider string
	WeatherAPIKey   string

	Geocoder             string
	OpenCageAPIKey       string
	GoogleGeocoderAPIKey string

	GeolocationEnabled bool

	StoreDriver string
	SQLitePath  string
	DatabaseURL string

	// Outbound HTTP and retry behaviour.
	HTTPTimeout    time.Duration
	EnrichTimeout  time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration

	// RefreshInterval controls how often the dashboard refetches (0 = never).
	RefreshInterval time.Duration

	// DefaultLocation is shown when locations are saved but no home is set.
	DefaultLocation *weather.Location

	LogLevel log.Level
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Debugf("no .env file loaded: %v", err)
	}
	cfg := &AppConfig{}

	cfg.Port = getenvDefault("PORT", "8080")

	cfg.WeatherProvider = strings.ToLower(getenvDefault("WEATHER_PROVIDER", ProviderWeatherAPI))
	cfg.WeatherAPIKey = os.Getenv("WEATHERAPI_API_KEY")
	switch cfg.WeatherProvider {
	case ProviderWeatherAPI:
		if cfg.WeatherAPIKey == "" {
			return nil, fmt.Errorf("WEATHERAPI_API_KEY is required for provider %q", cfg.WeatherProvider)
		}
	case ProviderOpenMeteo:
	default:
		return nil, fmt.Errorf("unknown WEATHER_PROVIDER %q", cfg.WeatherProvider)
	}

	cfg.Geocoder = strings.ToLower(getenvDefault("GEOCODER", GeocoderOpenCage))
	cfg.OpenCageAPIKey = os.Getenv("OPENCAGE_API_KEY")
	cfg.GoogleGeocoderAPIKey = os.Getenv("GOOGLE_GEOCODER_API_KEY")
	switch cfg.Geocoder {
	case GeocoderOpenCage, GeocoderGoogle:
	default:
		return nil, fmt.Errorf("unknown GEOCODER %q", cfg.Geocoder)
	}

	cfg.GeolocationEnabled = getenvBool("GEOLOCATION_ENABLED", true)

	cfg.StoreDriver = strings.ToLower(getenvDefault("STORE_DRIVER", StoreSQLite))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "weathergrid.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	switch cfg.StoreDriver {
	case StoreSQLite, StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.EnrichTimeout, err = getenvDuration("ENRICH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryBaseDelay, err = getenvDuration("RETRY_BASE_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", 15*time.Minute); err != nil {
		return nil, err
	}
	cfg.MaxRetries = getenvInt("MAX_RETRIES", 2)
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must not be negative")
	}

	if cfg.DefaultLocation, err = loadDefaultLocation(); err != nil {
		return nil, err
	}

	cfg.LogLevel, err = log.ParseLevel(getenvDefault("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// loadDefaultLocation reads DEFAULT_CITY_* overrides. It returns nil when
// DEFAULT_CITY_LAT is unset.
func loadDefaultLocation() (*weather.Location, error) {
	latStr := os.Getenv("DEFAULT_CITY_LAT")
	if latStr == "" {
		return nil, nil
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_CITY_LAT: %w", err)
	}
	lng, err := strconv.ParseFloat(os.Getenv("DEFAULT_CITY_LNG"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_CITY_LNG: %w", err)
	}

	city := os.Getenv("DEFAULT_CITY_NAME")
	country := os.Getenv("DEFAULT_CITY_COUNTRY")
	formatted := city
	if country != "" {
		formatted = fmt.Sprintf("%s, %s", city, country)
	}
	return &weather.Location{
		Lat:        lat,
		Lng:        lng,
		Formatted:  formatted,
		Components: weather.Components{City: city, Country: country},
	}, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
