package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weathergrid/internal/location"
	"github.com/i474232898/weathergrid/internal/weather"
)

// IPLocator implements location.Locator by looking up the public IP address of
// the host with ip-api.com. Accuracy is city-level at best, so
// EnableHighAccuracy cannot be honoured; every call is a fresh lookup, which
// satisfies a zero MaximumAge.
type IPLocator struct {
	baseURL string
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

func NewIPLocator(client *http.Client) *IPLocator {
	return &IPLocator{
		baseURL: "http://ip-api.com/json/",
		client:  client,
		circuit: newCircuitBreaker("ip-api"),
	}
}

func (l *IPLocator) CurrentPosition(ctx context.Context, opts location.PositionOptions) (location.Position, error) {
	u := l.baseURL + "?fields=status,message,lat,lon"

	var payload struct {
		Status  string  `json:"status"`
		Message string  `json:"message"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	}

	if err := getJSON(ctx, l.client, l.circuit, u, &payload); err != nil {
		return location.Position{}, &location.PositionError{Code: positionCode(ctx, err), Err: err}
	}

	if !strings.EqualFold(payload.Status, "success") {
		return location.Position{}, &location.PositionError{
			Code: location.PositionUnavailable,
			Err:  fmt.Errorf("ip lookup failed: %s", payload.Message),
		}
	}

	return location.Position{Lat: payload.Lat, Lng: payload.Lon}, nil
}

func positionCode(ctx context.Context, err error) location.PositionErrorCode {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return location.Timeout
	}
	var fe *weather.FetchError
	if errors.As(err, &fe) {
		switch {
		case fe.Status == http.StatusForbidden:
			return location.PermissionDenied
		case fe.Class == weather.FailureNetwork, fe.Class == weather.FailureServiceUnavailable, fe.Class == weather.FailureRateLimited:
			return location.PositionUnavailable
		}
	}
	return location.Unknown
}
