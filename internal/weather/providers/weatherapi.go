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

const weatherAPIBaseURL = "https://api.weatherapi.com/v1"

// WeatherAPIProvider implements weather.Provider for WeatherAPI.com.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: weatherAPIBaseURL,
		client:  client,
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

type weatherAPICondition struct {
	Text string `json:"text"`
	Icon string `json:"icon"`
	Code int    `json:"code"`
}

type weatherAPIPayload struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC      float64             `json:"temp_c"`
		FeelsLikeC float64             `json:"feelslike_c"`
		Condition  weatherAPICondition `json:"condition"`
		Humidity   float64             `json:"humidity"`
		UV         float64             `json:"uv"`
		VisKm      float64             `json:"vis_km"`
		WindKph    float64             `json:"wind_kph"`
		WindDegree float64             `json:"wind_degree"`
		PrecipMm   float64             `json:"precip_mm"`
		AirQuality *weather.AirQuality `json:"air_quality"`
	} `json:"current"`
	Forecast struct {
		ForecastDay []struct {
			Date string `json:"date"`
			Day  struct {
				AvgTempC          float64             `json:"avgtemp_c"`
				MinTempC          float64             `json:"mintemp_c"`
				MaxTempC          float64             `json:"maxtemp_c"`
				TotalSnowCm       float64             `json:"totalsnow_cm"`
				DailyChanceOfRain float64             `json:"daily_chance_of_rain"`
				Condition         weatherAPICondition `json:"condition"`
			} `json:"day"`
			Hour []struct {
				TimeEpoch    int64               `json:"time_epoch"`
				TempC        float64             `json:"temp_c"`
				Condition    weatherAPICondition `json:"condition"`
				WindKph      float64             `json:"wind_kph"`
				Humidity     float64             `json:"humidity"`
				ChanceOfRain float64             `json:"chance_of_rain"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (p *WeatherAPIProvider) fetch(ctx context.Context, lat, lng float64, days int) (weatherAPIPayload, error) {
	var payload weatherAPIPayload
	if p.apiKey == "" {
		return payload, &weather.FetchError{Class: weather.FailureGeneric, Err: fmt.Errorf("weatherapi: %w", errNoAPIKey)}
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", fmt.Sprintf("%f,%f", lat, lng))
	values.Set("days", fmt.Sprintf("%d", days))
	values.Set("aqi", "yes")
	values.Set("alerts", "no")

	u := fmt.Sprintf("%s/forecast.json?%s", p.baseURL, values.Encode())
	err := getJSON(ctx, p.client, p.circuit, u, &payload)
	return payload, err
}

// Current returns current conditions and the hourly points of today and tomorrow,
// so that a 24-hour window starting now is always covered.
func (p *WeatherAPIProvider) Current(ctx context.Context, lat, lng float64) (weather.CurrentReport, error) {
	payload, err := p.fetch(ctx, lat, lng, 2)
	if err != nil {
		return weather.CurrentReport{}, err
	}

	cur := payload.Current
	cond := weather.Conditions{
		CityName:      payload.Location.Name,
		Country:       payload.Location.Country,
		TemperatureC:  cur.TempC,
		FeelsLikeC:    cur.FeelsLikeC,
		Description:   cur.Condition.Text,
		Code:          cur.Condition.Code,
		Icon:          iconID(cur.Condition.Icon),
		HumidityPct:   cur.Humidity,
		UV:            cur.UV,
		VisibilityKm:  cur.VisKm,
		WindSpeedMS:   weather.KphToMS(cur.WindKph),
		WindDirection: cur.WindDegree,
		PrecipMm:      cur.PrecipMm,
		AirQuality:    cur.AirQuality,
	}

	var hourly []weather.HourlyPoint
	for i, fd := range payload.Forecast.ForecastDay {
		if i == 0 {
			cond.ChanceOfRain = fd.Day.DailyChanceOfRain
			cond.SnowMm = fd.Day.TotalSnowCm * 10
		}
		for _, h := range fd.Hour {
			hourly = append(hourly, weather.HourlyPoint{
				Time:         time.Unix(h.TimeEpoch, 0).UTC(),
				TemperatureC: h.TempC,
				Condition:    h.Condition.Text,
				Icon:         iconID(h.Condition.Icon),
				WindKph:      h.WindKph,
				HumidityPct:  h.Humidity,
				ChanceOfRain: h.ChanceOfRain,
			})
		}
	}

	return weather.CurrentReport{Conditions: cond, Hourly: hourly}, nil
}

// Forecast returns the 7-day daily series.
func (p *WeatherAPIProvider) Forecast(ctx context.Context, lat, lng float64) (weather.Forecast, error) {
	payload, err := p.fetch(ctx, lat, lng, 7)
	if err != nil {
		return nil, err
	}

	forecast := make(weather.Forecast, 0, len(payload.Forecast.ForecastDay))
	for _, fd := range payload.Forecast.ForecastDay {
		date, err := time.Parse("2006-01-02", fd.Date)
		if err != nil {
			return nil, &weather.FetchError{Class: weather.FailureGeneric, Err: fmt.Errorf("invalid forecast date %q: %w", fd.Date, err)}
		}
		forecast = append(forecast, weather.ForecastDay{
			Date:         date,
			AvgTempC:     fd.Day.AvgTempC,
			MinTempC:     fd.Day.MinTempC,
			MaxTempC:     fd.Day.MaxTempC,
			Description:  fd.Day.Condition.Text,
			Icon:         iconID(fd.Day.Condition.Icon),
			ChanceOfRain: fd.Day.DailyChanceOfRain,
		})
	}
	return forecast, nil
}
