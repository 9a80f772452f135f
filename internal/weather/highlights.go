package weather

import "math"

// Level is a banded reading with its label.
type Level struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

// Highlights are the derived values shown next to current conditions.
type Highlights struct {
	FeelsLikeC    float64 `json:"feelsLikeC"`
	HumidityPct   float64 `json:"humidityPercent"`
	WindKph       float64 `json:"windKph"`
	WindDirection string  `json:"windDirection"`
	UV            Level   `json:"uv"`
	AirQuality    *Level  `json:"airQuality,omitempty"`
	PM25          float64 `json:"pm2_5,omitempty"`
}

// ForecastRange is the temperature span across a forecast.
type ForecastRange struct {
	MinTempC float64 `json:"minTemperatureC"`
	MaxTempC float64 `json:"maxTemperatureC"`
}

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// BuildHighlights derives the highlight values from current conditions.
func BuildHighlights(c Conditions) Highlights {
	h := Highlights{
		FeelsLikeC:    c.FeelsLikeC,
		HumidityPct:   c.HumidityPct,
		WindKph:       MSToKph(c.WindSpeedMS),
		WindDirection: WindDirection(c.WindDirection),
		UV:            Level{Value: c.UV, Label: UVLevel(c.UV)},
	}
	if c.AirQuality != nil {
		idx := float64(c.AirQuality.USEPAIndex)
		h.AirQuality = &Level{Value: idx, Label: AirQualityLevel(idx)}
		h.PM25 = c.AirQuality.PM25
	}
	return h
}

// AirQualityLevel bands an AQI value.
func AirQualityLevel(aqi float64) string {
	switch {
	case aqi <= 50:
		return "Very Good"
	case aqi <= 100:
		return "Good"
	case aqi <= 150:
		return "Moderate"
	case aqi <= 200:
		return "Bad"
	default:
		return "Very Bad"
	}
}

// UVLevel bands a UV index.
func UVLevel(uv float64) string {
	switch {
	case uv <= 2:
		return "Low"
	case uv <= 5:
		return "Moderate"
	case uv <= 7:
		return "High"
	case uv <= 10:
		return "Very High"
	default:
		return "Extreme"
	}
}

// WindDirection buckets degrees into a 16-point compass direction.
func WindDirection(degrees float64) string {
	i := int(math.Round(degrees/22.5)) % 16
	if i < 0 {
		i += 16
	}
	return compassPoints[i]
}

// MSToKph converts metres per second to kilometres per hour.
func MSToKph(ms float64) float64 {
	return ms * 3.6
}

// KphToMS converts kilometres per hour to metres per second.
func KphToMS(kph float64) float64 {
	return kph / 3.6
}

// Range returns the lowest daily minimum and highest daily maximum.
// The zero value is returned for an empty forecast.
func (f Forecast) Range() ForecastRange {
	if len(f) == 0 {
		return ForecastRange{}
	}
	r := ForecastRange{MinTempC: f[0].MinTempC, MaxTempC: f[0].MaxTempC}
	for _, d := range f[1:] {
		r.MinTempC = math.Min(r.MinTempC, d.MinTempC)
		r.MaxTempC = math.Max(r.MaxTempC, d.MaxTempC)
	}
	return r
}
