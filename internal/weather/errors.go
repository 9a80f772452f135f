package weather

import (
	"errors"
	"fmt"
	"net/http"
)

// FailureClass groups upstream failures by how the Service reacts to them.
type FailureClass string

const (
	FailureGeneric            FailureClass = "generic"
	FailureRateLimited        FailureClass = "rate_limited"
	FailureServiceUnavailable FailureClass = "service_unavailable"
	FailureNetwork            FailureClass = "network_unreachable"
)

var (
	// ErrSearchFailed is returned when the geocoder cannot complete a search.
	ErrSearchFailed = errors.New("search failed")

	// ErrNoProvider is returned when the Service has no weather provider.
	ErrNoProvider = errors.New("no weather provider configured")
)

// FetchError is a classified failure of a weather request.
type FetchError struct {
	Class    FailureClass
	Status   int // upstream HTTP status, 0 for transport failures
	Attempts int // set by the Service once it gives up
	Err      error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("weather request failed (%s, status %d): %v", e.Class, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("weather request failed (%s): %v", e.Class, e.Err)
	default:
		return fmt.Sprintf("weather request failed (%s)", e.Class)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *FetchError) Transient() bool {
	switch e.Class {
	case FailureRateLimited, FailureServiceUnavailable, FailureNetwork:
		return true
	}
	return false
}

// UserMessage is the fixed sentence shown once retries are exhausted.
func (e *FetchError) UserMessage() string {
	return MessageFor(e.Class)
}

// MessageFor maps a failure class to its user-facing sentence.
func MessageFor(class FailureClass) string {
	switch class {
	case FailureRateLimited:
		return "Weather service is temporarily busy. Please try again in a few minutes."
	case FailureServiceUnavailable:
		return "Weather service is temporarily unavailable. Please try again later."
	case FailureNetwork:
		return "Unable to connect to weather service. Please check your internet connection."
	default:
		return "Failed to load weather data. Please try again."
	}
}

// StatusError classifies a non-2xx upstream status code.
func StatusError(status int) *FetchError {
	class := FailureGeneric
	switch status {
	case http.StatusTooManyRequests:
		class = FailureRateLimited
	case http.StatusServiceUnavailable:
		class = FailureServiceUnavailable
	}
	return &FetchError{
		Class:  class,
		Status: status,
		Err:    fmt.Errorf("API request failed with status: %d", status),
	}
}

// NetworkError wraps a transport-level failure (DNS, connect, reset).
func NetworkError(err error) *FetchError {
	return &FetchError{Class: FailureNetwork, Err: err}
}

// Classify returns the FetchError inside err, treating anything unclassified as generic.
func Classify(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{Class: FailureGeneric, Err: err}
}
