package location

import (
	"context"
	"fmt"
	"time"
)

// PositionErrorCode classifies a failed geolocation request.
type PositionErrorCode int

const (
	PermissionDenied PositionErrorCode = iota + 1
	PositionUnavailable
	Timeout
	Unsupported
	Unknown
)

var positionErrorNames = map[PositionErrorCode]string{
	PermissionDenied:    "permission_denied",
	PositionUnavailable: "position_unavailable",
	Timeout:             "timeout",
	Unsupported:         "unsupported",
	Unknown:             "unknown",
}

func (c PositionErrorCode) String() string {
	if name, ok := positionErrorNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParsePositionErrorCode maps a wire name back to its code. Unrecognised names map to Unknown.
func ParsePositionErrorCode(s string) PositionErrorCode {
	for code, name := range positionErrorNames {
		if name == s {
			return code
		}
	}
	return Unknown
}

// Message is the fixed sentence shown in the location error slot.
func (c PositionErrorCode) Message() string {
	switch c {
	case PermissionDenied:
		return "Location permission denied."
	case PositionUnavailable:
		return "Location information is unavailable."
	case Timeout:
		return "The request to get user location timed out."
	case Unsupported:
		return "Geolocation is not supported by your browser."
	default:
		return "An unknown error occurred."
	}
}

// PositionError is returned by a Locator that could not produce a position.
type PositionError struct {
	Code PositionErrorCode
	Err  error
}

func (e *PositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation failed (%s): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("geolocation failed (%s)", e.Code)
}

func (e *PositionError) Unwrap() error { return e.Err }

// Position is a raw coordinate pair reported by a Locator.
type Position struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// PositionOptions mirror the knobs of a browser geolocation request.
type PositionOptions struct {
	EnableHighAccuracy bool
	Timeout            time.Duration
	MaximumAge         time.Duration // zero forbids cached positions
}

// DefaultPositionOptions asks for a fresh, high-accuracy fix within 10s.
func DefaultPositionOptions() PositionOptions {
	return PositionOptions{
		EnableHighAccuracy: true,
		Timeout:            10 * time.Second,
		MaximumAge:         0,
	}
}

// Locator finds the device's current position.
type Locator interface {
	CurrentPosition(ctx context.Context, opts PositionOptions) (Position, error)
}
