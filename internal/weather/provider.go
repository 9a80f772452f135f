package weather

import (
	"context"
	"strconv"
)

// Provider abstracts a weather data source (e.g. WeatherAPI, Open-Meteo).
// Both calls fail with a *FetchError so the Service can classify them.
type Provider interface {
	Name() string
	Current(ctx context.Context, lat, lng float64) (CurrentReport, error)
	Forecast(ctx context.Context, lat, lng float64) (Forecast, error)
}

// Geocoder resolves free-text queries into candidate locations.
// An empty result is a valid outcome, not an error.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Location, error)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
