package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weathergrid/internal/weather"
)

// OpenMeteoProvider implements weather.Provider for Open-Meteo.
// It needs no API key but has no place names or air quality.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		client:  client,
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) url(lat, lng float64, extra url.Values) string {
	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", lat))
	values.Set("longitude", fmt.Sprintf("%f", lng))
	values.Set("timeformat", "unixtime")
	values.Set("timezone", "UTC")
	values.Set("wind_speed_unit", "ms")
	for k, v := range extra {
		values[k] = v
	}
	return fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
}

func (p *OpenMeteoProvider) Current(ctx context.Context, lat, lng float64) (weather.CurrentReport, error) {
	u := p.url(lat, lng, url.Values{
		"current":       {"temperature_2m,relative_humidity_2m,apparent_temperature,precipitation,snowfall,weather_code,wind_speed_10m,wind_direction_10m,uv_index,visibility"},
		"hourly":        {"temperature_2m,relative_humidity_2m,precipitation_probability,weather_code,wind_speed_10m"},
		"daily":         {"precipitation_probability_max"},
		"forecast_days": {"2"},
	})

	var payload struct {
		Current struct {
			Temperature   float64 `json:"temperature_2m"`
			Humidity      float64 `json:"relative_humidity_2m"`
			ApparentTemp  float64 `json:"apparent_temperature"`
			Precipitation float64 `json:"precipitation"`
			SnowfallCm    float64 `json:"snowfall"`
			WeatherCode   int     `json:"weather_code"`
			WindSpeed     float64 `json:"wind_speed_10m"`
			WindDirection float64 `json:"wind_direction_10m"`
			UV            float64 `json:"uv_index"`
			VisibilityM   float64 `json:"visibility"`
		} `json:"current"`
		Hourly struct {
			Time          []int64   `json:"time"`
			Temperature   []float64 `json:"temperature_2m"`
			Humidity      []float64 `json:"relative_humidity_2m"`
			Precipitation []float64 `json:"precipitation_probability"`
			WeatherCode   []int     `json:"weather_code"`
			WindSpeed     []float64 `json:"wind_speed_10m"`
		} `json:"hourly"`
		Daily struct {
			PrecipitationMax []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}

	if err := getJSON(ctx, p.client, p.circuit, u, &payload); err != nil {
		return weather.CurrentReport{}, err
	}

	cur := payload.Current
	cond := weather.Conditions{
		TemperatureC:  cur.Temperature,
		FeelsLikeC:    cur.ApparentTemp,
		Description:   describeWeatherCode(cur.WeatherCode),
		Code:          cur.WeatherCode,
		Icon:          fmt.Sprintf("wmo-%d", cur.WeatherCode),
		HumidityPct:   cur.Humidity,
		UV:            cur.UV,
		VisibilityKm:  cur.VisibilityM / 1000,
		WindSpeedMS:   cur.WindSpeed,
		WindDirection: cur.WindDirection,
		PrecipMm:      cur.Precipitation,
		SnowMm:        cur.SnowfallCm * 10,
	}
	if len(payload.Daily.PrecipitationMax) > 0 {
		cond.ChanceOfRain = payload.Daily.PrecipitationMax[0]
	}

	h := payload.Hourly
	hourly := make([]weather.HourlyPoint, 0, len(h.Time))
	for i, ts := range h.Time {
		pt := weather.HourlyPoint{Time: time.Unix(ts, 0).UTC()}
		pt.TemperatureC = at(h.Temperature, i)
		pt.HumidityPct = at(h.Humidity, i)
		pt.ChanceOfRain = at(h.Precipitation, i)
		pt.WindKph = weather.MSToKph(at(h.WindSpeed, i))
		if i < len(h.WeatherCode) {
			pt.Condition = describeWeatherCode(h.WeatherCode[i])
			pt.Icon = fmt.Sprintf("wmo-%d", h.WeatherCode[i])
		}
		hourly = append(hourly, pt)
	}

	return weather.CurrentReport{Conditions: cond, Hourly: hourly}, nil
}

func (p *OpenMeteoProvider) Forecast(ctx context.Context, lat, lng float64) (weather.Forecast, error) {
	u := p.url(lat, lng, url.Values{
		"daily":         {"weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max"},
		"forecast_days": {"7"},
	})

	var payload struct {
		Daily struct {
			Time        []int64   `json:"time"`
			WeatherCode []int     `json:"weather_code"`
			Max         []float64 `json:"temperature_2m_max"`
			Min         []float64 `json:"temperature_2m_min"`
			Precip      []float64 `json:"precipitation_probability_max"`
		} `json:"daily"`
	}

	if err := getJSON(ctx, p.client, p.circuit, u, &payload); err != nil {
		return nil, err
	}

	d := payload.Daily
	forecast := make(weather.Forecast, 0, len(d.Time))
	for i, ts := range d.Time {
		day := weather.ForecastDay{
			Date:         time.Unix(ts, 0).UTC(),
			MinTempC:     at(d.Min, i),
			MaxTempC:     at(d.Max, i),
			ChanceOfRain: at(d.Precip, i),
		}
		day.AvgTempC = (day.MinTempC + day.MaxTempC) / 2
		if i < len(d.WeatherCode) {
			day.Description = describeWeatherCode(d.WeatherCode[i])
			day.Icon = fmt.Sprintf("wmo-%d", d.WeatherCode[i])
		}
		forecast = append(forecast, day)
	}
	return forecast, nil
}

func at(vals []float64, i int) float64 {
	if i < len(vals) {
		return vals[i]
	}
	return 0
}

func describeWeatherCode(code int) string {
	// Mapping based on Open-Meteo weather codes (simplified).
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return "Rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "Snow"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}
