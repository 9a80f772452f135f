package location

import (
	"strings"

	"github.com/i474232898/weathergrid/internal/common"
	"github.com/i474232898/weathergrid/internal/weather"
)

// DefaultLocation is shown when saved locations exist but no home city is set.
var DefaultLocation = weather.Location{
	Lat:        28.6139,
	Lng:        77.2090,
	Formatted:  "New Delhi, India",
	Components: weather.Components{City: "New Delhi", Country: "India"},
}

var popularCities = []weather.Location{
	{Lat: 40.7128, Lng: -74.0060, Formatted: "New York, NY, USA", Components: weather.Components{City: "New York", State: "NY", Country: "USA"}},
	{Lat: 51.5074, Lng: -0.1278, Formatted: "London, UK", Components: weather.Components{City: "London", Country: "UK"}},
	{Lat: 48.8566, Lng: 2.3522, Formatted: "Paris, France", Components: weather.Components{City: "Paris", Country: "France"}},
	{Lat: 35.6762, Lng: 139.6503, Formatted: "Tokyo, Japan", Components: weather.Components{City: "Tokyo", Country: "Japan"}},
	{Lat: 25.2048, Lng: 55.2708, Formatted: "Dubai, UAE", Components: weather.Components{City: "Dubai", Country: "UAE"}},
	{Lat: 28.6139, Lng: 77.2090, Formatted: "New Delhi, India", Components: weather.Components{City: "New Delhi", Country: "India"}},
	{Lat: 39.9042, Lng: 116.4074, Formatted: "Beijing, China", Components: weather.Components{City: "Beijing", Country: "China"}},
}

// PopularCities returns a copy of the suggested starting locations.
func PopularCities() []weather.Location {
	out := make([]weather.Location, len(popularCities))
	copy(out, popularCities)
	return out
}

// DisplayName splits a location into a short name and a details line of the
// form "State, Country 75001". The name falls back to the formatted string when
// no city is known.
func DisplayName(loc weather.Location) (name, details string) {
	c := loc.Components
	name = common.FirstNonEmpty(c.City, loc.Formatted)

	var parts []string
	if c.State != "" && c.State != c.City {
		parts = append(parts, c.State)
	}
	if c.Country != "" && c.Country != c.State {
		parts = append(parts, c.Country)
	}
	details = strings.Join(parts, ", ")
	if c.Postcode != "" {
		details = strings.TrimSpace(details + " " + c.Postcode)
	}
	return name, details
}
