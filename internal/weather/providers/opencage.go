package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weathergrid/internal/common"
	"github.com/i474232898/weathergrid/internal/weather"
)

// OpenCageGeocoder implements weather.Geocoder for the OpenCage forward geocoding API.
type OpenCageGeocoder struct {
	apiKey  string
	baseURL string
	limit   int
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenCageGeocoder(client *http.Client, apiKey string) *OpenCageGeocoder {
	return &OpenCageGeocoder{
		apiKey:  apiKey,
		baseURL: "https://api.opencagedata.com/geocode/v1/json",
		limit:   10,
		client:  client,
		circuit: newCircuitBreaker("opencage"),
	}
}

// Search returns up to ten candidates for query, in the provider's ranking order.
func (g *OpenCageGeocoder) Search(ctx context.Context, query string) ([]weather.Location, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("opencage: %w", errNoAPIKey)
	}

	values := url.Values{}
	values.Set("q", query)
	values.Set("key", g.apiKey)
	values.Set("limit", fmt.Sprintf("%d", g.limit))
	u := fmt.Sprintf("%s?%s", g.baseURL, values.Encode())

	var payload struct {
		Results []struct {
			Formatted string `json:"formatted"`
			Geometry  struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"geometry"`
			Components struct {
				City    string `json:"city"`
				Town    string `json:"town"`
				Village string `json:"village"`
				Hamlet  string `json:"hamlet"`
				State     string `json:"state"`
				StateCode string `json:"state_code"`
				Country   string `json:"country"`
				Postcode  string `json:"postcode"`
			} `json:"components"`
		} `json:"results"`
	}

	if err := getJSON(ctx, g.client, g.circuit, u, &payload); err != nil {
		return nil, err
	}

	locs := make([]weather.Location, 0, len(payload.Results))
	for _, r := range payload.Results {
		c := r.Components
		city := common.FirstNonEmpty(c.City, c.Town, c.Village, c.Hamlet)
		locs = append(locs, weather.Location{
			Lat:       r.Geometry.Lat,
			Lng:       r.Geometry.Lng,
			Formatted: r.Formatted,
			Components: weather.Components{
				City:     city,
				State:    common.FirstNonEmpty(c.State, c.StateCode),
				Country:  c.Country,
				Postcode: c.Postcode,
			},
		})
	}
	return locs, nil
}
