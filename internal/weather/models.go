package weather

import (
	"time"
)

// Components holds the optional address parts of a Location.
type Components struct {
	City     string `json:"city,omitempty"`
	Country  string `json:"country,omitempty"`
	State    string `json:"state,omitempty"`
	Postcode string `json:"postcode,omitempty"`
}

// Location represents a place picked by the user, a geocoder, or geolocation.
// Two locations are the same place iff their coordinates are exactly equal.
type Location struct {
	Lat        float64    `json:"lat" validate:"gte=-90,lte=90"`
	Lng        float64    `json:"lng" validate:"gte=-180,lte=180"`
	Formatted  string     `json:"formatted"`
	Components Components `json:"components"`
}

// Equal reports whether l and o refer to the same coordinates.
// Formatted name and components are ignored.
func (l Location) Equal(o Location) bool {
	return l.Lat == o.Lat && l.Lng == o.Lng
}

// Key returns a canonical string key for logging and indexing.
func (l Location) Key() string {
	return formatCoord(l.Lat) + "," + formatCoord(l.Lng)
}

// AirQuality mirrors the pollutant readings returned with current conditions.
type AirQuality struct {
	CO           float64 `json:"co"`
	NO2          float64 `json:"no2"`
	O3           float64 `json:"o3"`
	SO2          float64 `json:"so2"`
	PM25         float64 `json:"pm2_5"`
	PM10         float64 `json:"pm10"`
	USEPAIndex   int     `json:"us-epa-index"`
	GBDefraIndex int     `json:"gb-defra-index"`
}

// Conditions is the current-weather record for a location.
type Conditions struct {
	CityName      string      `json:"cityName"`
	Country       string      `json:"country"`
	TemperatureC  float64     `json:"temperatureC"`
	FeelsLikeC    float64     `json:"feelsLikeC"`
	Description   string      `json:"description"`
	Code          int         `json:"code"`
	Icon          string      `json:"icon"`
	HumidityPct   float64     `json:"humidityPercent"`
	UV            float64     `json:"uv"`
	VisibilityKm  float64     `json:"visibilityKm"`
	WindSpeedMS   float64     `json:"windSpeed"`
	WindDirection float64     `json:"windDirection"`
	PrecipMm      float64     `json:"precipMm"`
	SnowMm        float64     `json:"snowMm"`
	ChanceOfRain  float64     `json:"chanceOfRain"`
	AirQuality    *AirQuality `json:"airQuality,omitempty"`
}

// HourlyPoint is a single hour of the short-range series.
type HourlyPoint struct {
	Time         time.Time `json:"time"`
	TemperatureC float64   `json:"temperatureC"`
	Condition    string    `json:"condition"`
	Icon         string    `json:"icon"`
	WindKph      float64   `json:"windKph"`
	HumidityPct  float64   `json:"humidityPercent"`
	ChanceOfRain float64   `json:"chanceOfRain"`
}

// ForecastDay is one day of the multi-day forecast.
type ForecastDay struct {
	Date         time.Time `json:"date"`
	AvgTempC     float64   `json:"temperatureC"`
	MinTempC     float64   `json:"minTemperatureC"`
	MaxTempC     float64   `json:"maxTemperatureC"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	ChanceOfRain float64   `json:"chanceOfRain"`
}

// Forecast is ordered by Date ascending.
type Forecast []ForecastDay

// CurrentReport is what a provider returns for the current-weather call.
type CurrentReport struct {
	Conditions Conditions
	Hourly     []HourlyPoint
}

// Report is the merged result of a successful fetch.
type Report struct {
	Location   Location      `json:"location"`
	FetchedAt  time.Time     `json:"fetchedAt"` // always UTC
	Conditions Conditions    `json:"current"`
	Hourly     []HourlyPoint `json:"hourly"`
	Forecast   Forecast      `json:"forecast"`
}
