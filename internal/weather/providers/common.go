package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weathergrid/internal/weather"
)

var (
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
	errNoAPIKey     = errors.New("api key is not configured")
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		// Cancelled requests and client-side 4xx say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			var fe *weather.FetchError
			if errors.As(err, &fe) {
				return fe.Status >= 400 && fe.Status < 500 && fe.Class == weather.FailureGeneric
			}
			return false
		},
	})
}

// doRequest executes a single request through the circuit breaker and classifies
// the outcome. Retrying is left to weather.Service, which owns the attempt budget.
func doRequest(
	ctx context.Context,
	client *http.Client,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if client == nil {
		return nil, errNoHTTPClient
	}

	req, err := buildRequest()
	if err != nil {
		return nil, err
	}

	// Ensure the request obeys context cancellation.
	req = req.WithContext(ctx)

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.Do(req)
		if execErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, weather.NetworkError(execErr)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil, weather.StatusError(resp.StatusCode)
		}

		return resp, nil
	})
	if err != nil {
		// An open circuit means the upstream is considered down for now.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &weather.FetchError{
				Class: weather.FailureServiceUnavailable,
				Err:   fmt.Errorf("%w: %v", errCircuitOpen, err),
			}
		}
		return nil, err
	}

	resp, ok := result.(*http.Response)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return resp, nil
}

// getJSON performs a GET through doRequest and decodes the body into v.
func getJSON(ctx context.Context, client *http.Client, cb *gobreaker.CircuitBreaker, u string, v any) error {
	resp, err := doRequest(ctx, client, cb, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, u, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &weather.FetchError{Class: weather.FailureGeneric, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// iconID turns an icon URL like "//cdn.weatherapi.com/weather/64x64/day/113.png"
// into "113".
func iconID(u string) string {
	if u == "" {
		return "unknown"
	}
	return strings.TrimSuffix(path.Base(u), ".png")
}
