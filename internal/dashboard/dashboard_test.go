package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weathergrid/internal/weather"
)

// gatedFetcher blocks each fetch until its location's gate is released.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	errs  map[string]error
	calls int
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{gates: map[string]chan struct{}{}, errs: map[string]error{}}
}

func (f *gatedFetcher) gate(loc weather.Location) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.gates[loc.Key()]
	if !ok {
		g = make(chan struct{})
		f.gates[loc.Key()] = g
	}
	return g
}

func (f *gatedFetcher) failWith(loc weather.Location, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[loc.Key()] = err
}

func (f *gatedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Fetch ignores cancellation on purpose so that superseded sessions still
// deliver a result the Dashboard must drop.
func (f *gatedFetcher) Fetch(_ context.Context, loc weather.Location) (weather.Report, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	<-f.gate(loc)

	f.mu.Lock()
	err := f.errs[loc.Key()]
	f.mu.Unlock()
	if err != nil {
		return weather.Report{}, err
	}
	return weather.Report{
		Location:   loc,
		Conditions: weather.Conditions{CityName: loc.Formatted, UV: 4},
		Forecast:   weather.Forecast{{MinTempC: 5, MaxTempC: 15}},
	}, nil
}

var (
	paris = weather.Location{Lat: 48.8566, Lng: 2.3522, Formatted: "Paris"}
	tokyo = weather.Location{Lat: 35.6762, Lng: 139.6503, Formatted: "Tokyo"}
)

func waitForStatus(t *testing.T, d *Dashboard, want Status) View {
	t.Helper()
	require.Eventually(t, func() bool { return d.View().Status == want }, time.Second, 5*time.Millisecond)
	return d.View()
}

func TestDashboard_ShowFetchesAndBuildsHighlights(t *testing.T) {
	f := newGatedFetcher()
	d := New(f)
	defer d.Close()

	d.Show(&paris)
	v := d.View()
	assert.Equal(t, StatusLoading, v.Status)
	assert.NotEmpty(t, v.SessionID)

	close(f.gate(paris))
	v = waitForStatus(t, d, StatusReady)

	require.NotNil(t, v.Report)
	assert.Equal(t, "Paris", v.Report.Conditions.CityName)
	require.NotNil(t, v.Highlights)
	assert.Equal(t, "Moderate", v.Highlights.UV.Label)
	require.NotNil(t, v.Range)
	assert.Equal(t, weather.ForecastRange{MinTempC: 5, MaxTempC: 15}, *v.Range)
}

func TestDashboard_StaleResultIsDiscarded(t *testing.T) {
	f := newGatedFetcher()
	d := New(f)
	defer d.Close()

	d.Show(&paris)
	d.Show(&tokyo)

	// Tokyo finishes first, then the superseded Paris session completes late.
	close(f.gate(tokyo))
	waitForStatus(t, d, StatusReady)
	close(f.gate(paris))

	assert.Never(t, func() bool {
		v := d.View()
		return v.Report == nil || v.Report.Location.Key() != tokyo.Key()
	}, 100*time.Millisecond, 5*time.Millisecond)
	assert.Equal(t, tokyo.Key(), d.View().Location.Key())
}

func TestDashboard_ErrorView(t *testing.T) {
	f := newGatedFetcher()
	fe := weather.StatusError(503)
	fe.Attempts = 3
	f.failWith(paris, fe)

	d := New(f)
	defer d.Close()

	d.Show(&paris)
	close(f.gate(paris))
	v := waitForStatus(t, d, StatusError)

	assert.Equal(t, "Weather service is temporarily unavailable. Please try again later.", v.Error)
	assert.Equal(t, weather.FailureServiceUnavailable, v.ErrorClass)
	assert.Equal(t, 3, v.Attempts)
	assert.Nil(t, v.Report)
}

func TestDashboard_ShowNilClears(t *testing.T) {
	f := newGatedFetcher()
	d := New(f)
	defer d.Close()

	d.Show(&paris)
	d.Show(nil)
	close(f.gate(paris))

	assert.Never(t, func() bool { return d.View().Status != StatusIdle }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Nil(t, d.View().Location)
}

func TestDashboard_RefreshKeepsReport(t *testing.T) {
	f := newGatedFetcher()
	d := New(f)
	defer d.Close()

	d.Show(&paris)
	close(f.gate(paris))
	first := waitForStatus(t, d, StatusReady)

	// The gate is already open, so the refresh completes; while it runs the
	// previous report stays in place.
	d.Refresh()
	v := d.View()
	assert.Equal(t, StatusReady, v.Status)
	assert.NotNil(t, v.Report)
	assert.NotEqual(t, first.SessionID, v.SessionID)

	require.Eventually(t, func() bool { return f.callCount() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDashboard_ReloadResetsView(t *testing.T) {
	f := newGatedFetcher()
	d := New(f)
	defer d.Close()

	d.Reload()
	assert.Equal(t, StatusIdle, d.View().Status)
	assert.Equal(t, 0, f.callCount())

	f.failWith(paris, weather.StatusError(429))
	d.Show(&paris)
	close(f.gate(paris))
	waitForStatus(t, d, StatusError)

	f.failWith(paris, nil)
	d.Reload()
	waitForStatus(t, d, StatusReady)
	assert.Equal(t, 2, f.callCount())
}

func TestDashboard_RefreshLeavesLoadingSessionAlone(t *testing.T) {
	f := newGatedFetcher()
	d := New(f)
	defer d.Close()

	d.Show(&paris)
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, 5*time.Millisecond)
	session := d.View().SessionID

	d.Refresh()
	d.Refresh()

	assert.Equal(t, session, d.View().SessionID)
	assert.Never(t, func() bool { return f.callCount() > 1 }, 100*time.Millisecond, 5*time.Millisecond)

	close(f.gate(paris))
	v := waitForStatus(t, d, StatusReady)
	assert.Equal(t, session, v.SessionID)
}
