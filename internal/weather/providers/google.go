package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weathergrid/internal/common"
	"github.com/i474232898/weathergrid/internal/weather"
)

// GoogleGeocoder implements weather.Geocoder on top of the Google Geocoding API.
// The underlying client keeps its key in package state, so only one key per
// process is supported.
type GoogleGeocoder struct {
	geocode func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	geocoder.ApiKey = apiKey
	return &GoogleGeocoder{
		geocode: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}
}

type googleResult struct {
	locs []weather.Location
	err  error
}

// Search resolves query to at most one location. Google reports a miss as an
// error, which is turned into an empty result here.
func (g *GoogleGeocoder) Search(ctx context.Context, query string) ([]weather.Location, error) {
	done := make(chan googleResult, 1)
	go func() {
		locs, err := g.search(query)
		done <- googleResult{locs: locs, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.locs, res.err
	}
}

func (g *GoogleGeocoder) search(query string) ([]weather.Location, error) {
	pos, err := g.geocode(geocoder.Address{City: strings.TrimSpace(query)})
	if err != nil {
		if common.HasAny(err.Error(), "ZERO_RESULTS", "empty") {
			return []weather.Location{}, nil
		}
		return nil, fmt.Errorf("google geocoding: %w", err)
	}

	loc := weather.Location{
		Lat:       pos.Latitude,
		Lng:       pos.Longitude,
		Formatted: query,
	}

	// Reverse lookup only improves the name; coordinates are already known.
	addrs, err := g.reverse(pos)
	if err == nil && len(addrs) > 0 {
		a := addrs[0]
		loc.Formatted = common.FirstNonEmpty(a.FormattedAddress, query)
		loc.Components = weather.Components{
			City:    a.City,
			State:   a.State,
			Country: a.Country,
		}
	}

	return []weather.Location{loc}, nil
}
