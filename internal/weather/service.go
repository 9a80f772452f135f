package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// HourlyWindow is the number of hourly points kept in a Report.
const HourlyWindow = 24

// RetryPolicy controls how transient failures are retried.
// The n-th retry waits BaseDelay*n.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy retries twice, after 2s and then 4s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: 2 * time.Second}
}

// Option configures a Service.
type Option func(*Service)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retry = p }
}

// WithWaiter replaces the retry delay implementation; mainly for tests.
func WithWaiter(wait func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) { s.wait = wait }
}

// WithClock replaces time.Now for the hourly window.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service orchestrates the weather provider and the geocoder.
type Service struct {
	provider Provider
	geocoder Geocoder
	retry    RetryPolicy
	wait     func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(provider Provider, geocoder Geocoder, opts ...Option) *Service {
	s := &Service{
		provider: provider,
		geocoder: geocoder,
		retry:    DefaultRetryPolicy(),
		wait:     sleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch requests current conditions and the forecast concurrently and merges them.
// Transient failures rerun the whole pair until the retry policy is exhausted;
// the returned error is then a *FetchError with Attempts set, or the context error
// if ctx was cancelled first.
func (s *Service) Fetch(ctx context.Context, loc Location) (Report, error) {
	if s.provider == nil {
		return Report{}, &FetchError{Class: FailureGeneric, Attempts: 0, Err: ErrNoProvider}
	}

	for attempt := 0; ; attempt++ {
		report, err := s.fetchOnce(ctx, loc)
		if err == nil {
			if attempt > 0 {
				log.WithFields(log.Fields{"location": loc.Key(), "attempts": attempt + 1}).Info("weather fetch recovered")
			}
			return report, nil
		}
		if ctx.Err() != nil {
			return Report{}, ctx.Err()
		}

		classified := *Classify(err)
		fields := log.Fields{
			"location": loc.Key(),
			"provider": s.provider.Name(),
			"attempt":  attempt + 1,
			"class":    classified.Class,
		}

		if !classified.Transient() || attempt >= s.retry.MaxRetries {
			classified.Attempts = attempt + 1
			log.WithFields(fields).WithError(err).Error("weather fetch failed")
			return Report{}, &classified
		}

		delay := s.retry.BaseDelay * time.Duration(attempt+1)
		log.WithFields(fields).WithError(err).Warnf("weather fetch failed; retrying in %s", delay)
		if err := s.wait(ctx, delay); err != nil {
			return Report{}, err
		}
	}
}

func (s *Service) fetchOnce(ctx context.Context, loc Location) (Report, error) {
	var (
		current  CurrentReport
		forecast Forecast
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		current, err = s.provider.Current(gctx, loc.Lat, loc.Lng)
		return err
	})
	g.Go(func() error {
		var err error
		forecast, err = s.provider.Forecast(gctx, loc.Lat, loc.Lng)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	now := s.now()
	return Report{
		Location:   loc,
		FetchedAt:  now.UTC(),
		Conditions: current.Conditions,
		Hourly:     NextHours(current.Hourly, now, HourlyWindow),
		Forecast:   forecast,
	}, nil
}

// Search looks up locations matching query.
func (s *Service) Search(ctx context.Context, query string) ([]Location, error) {
	if s.geocoder == nil {
		return nil, fmt.Errorf("%w: no geocoder configured", ErrSearchFailed)
	}

	locs, err := s.geocoder.Search(ctx, query)
	if err != nil {
		log.WithField("query", query).WithError(err).Error("location search failed")
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	if locs == nil {
		locs = []Location{}
	}
	return locs, nil
}

// CityName returns the provider's name for the place at lat/lng.
// It is a single best-effort request without retries.
func (s *Service) CityName(ctx context.Context, lat, lng float64) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	current, err := s.provider.Current(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if current.Conditions.CityName == "" {
		return "", errors.New("provider returned no city name")
	}
	return current.Conditions.CityName, nil
}

// NextHours returns up to n points starting at the hour containing now, which
// is the latest point not after now. Points must be ordered by Time. Hour
// boundaries come from the points themselves, so half-hour offsets such as
// UTC+5:30 keep their current hour.
func NextHours(points []HourlyPoint, now time.Time, n int) []HourlyPoint {
	start := 0
	for i, p := range points {
		if p.Time.After(now) {
			break
		}
		start = i
	}

	out := make([]HourlyPoint, 0, n)
	for _, p := range points[start:] {
		if len(out) == n {
			break
		}
		out = append(out, p)
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
