package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weathergrid/internal/store"
	"github.com/i474232898/weathergrid/internal/weather"
)

type fakeEnricher struct {
	name string
	err  error
}

func (e fakeEnricher) CityName(context.Context, float64, float64) (string, error) {
	return e.name, e.err
}

// blockingEnricher holds every lookup until release is closed.
type blockingEnricher struct {
	release chan struct{}
	name    string
}

func (e *blockingEnricher) CityName(ctx context.Context, _, _ float64) (string, error) {
	select {
	case <-e.release:
		return e.name, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// latchEnricher blocks lookups for latitudes that have a latch until it is released.
type latchEnricher struct {
	mu      sync.Mutex
	latches map[float64]chan struct{}
}

func newLatchEnricher(lats ...float64) *latchEnricher {
	e := &latchEnricher{latches: map[float64]chan struct{}{}}
	for _, lat := range lats {
		e.latches[lat] = make(chan struct{})
	}
	return e
}

func (e *latchEnricher) release(lat float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	close(e.latches[lat])
}

func (e *latchEnricher) CityName(ctx context.Context, lat, _ float64) (string, error) {
	e.mu.Lock()
	latch, ok := e.latches[lat]
	e.mu.Unlock()
	if ok {
		select {
		case <-latch:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("City %v", lat), nil
}

type fakeLocator struct {
	pos Position
	err error
}

func (l fakeLocator) CurrentPosition(context.Context, PositionOptions) (Position, error) {
	return l.pos, l.err
}

var (
	parisLoc = weather.Location{Lat: 48.8566, Lng: 2.3522, Formatted: "Paris, France", Components: weather.Components{City: "Paris", Country: "France"}}
	tokyoLoc = weather.Location{Lat: 35.6762, Lng: 139.6503, Formatted: "Tokyo, Japan"}
	romeLoc  = weather.Location{Lat: 41.9028, Lng: 12.4964, Formatted: "Rome, Italy"}
)

func numbered(i int) weather.Location {
	return weather.Location{Lat: float64(i), Lng: float64(i), Formatted: fmt.Sprintf("L%d", i)}
}

func newTestResolver(t *testing.T, st Store, opts Options) *Resolver {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	r := NewResolver(context.Background(), st, opts)
	t.Cleanup(r.Close)
	return r
}

func addAndWait(r *Resolver, loc weather.Location) {
	<-r.Add(loc)
}

func coords(locs []weather.Location) [][2]float64 {
	out := make([][2]float64, 0, len(locs))
	for _, l := range locs {
		out = append(out, [2]float64{l.Lat, l.Lng})
	}
	return out
}

func TestLocationEquality(t *testing.T) {
	a := weather.Location{Lat: 1.5, Lng: 2.5, Formatted: "A"}
	b := weather.Location{Lat: 1.5, Lng: 2.5, Formatted: "B", Components: weather.Components{City: "Bee"}}
	c := weather.Location{Lat: 1.5, Lng: 2.50001, Formatted: "A"}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestNewResolver_FirstRun(t *testing.T) {
	r := newTestResolver(t, nil, Options{})

	st := r.Snapshot()
	assert.Nil(t, st.Current)
	assert.Empty(t, st.Saved)
	assert.True(t, st.FirstTimeUser)
	assert.Equal(t, ScreenOnboarding, st.Screen)
}

func TestAdd_FirstLocationScenario(t *testing.T) {
	enricher := &blockingEnricher{release: make(chan struct{}), name: "Paris"}
	r := newTestResolver(t, nil, Options{Enricher: enricher})

	done := r.Add(parisLoc)

	// Phase one is visible before enrichment finishes.
	st := r.Snapshot()
	require.NotNil(t, st.Current)
	assert.True(t, st.Current.Equal(parisLoc))
	assert.Empty(t, st.Saved)
	assert.Equal(t, ScreenDashboard, st.Screen)

	close(enricher.release)
	<-done

	st = r.Snapshot()
	require.Len(t, st.Saved, 1)
	assert.True(t, st.Saved[0].Equal(parisLoc))
	assert.Equal(t, "Paris", st.Saved[0].Components.City)
	assert.False(t, st.FirstTimeUser)
}

func TestAdd_EnrichmentOverridesCity(t *testing.T) {
	r := newTestResolver(t, nil, Options{Enricher: fakeEnricher{name: "Lutetia"}})

	addAndWait(r, parisLoc)

	saved := r.Snapshot().Saved
	require.Len(t, saved, 1)
	assert.Equal(t, "Lutetia", saved[0].Components.City)
	assert.Equal(t, "Paris, France", saved[0].Formatted)
}

func TestAdd_EnrichmentFailureStillSaves(t *testing.T) {
	r := newTestResolver(t, nil, Options{Enricher: fakeEnricher{err: errors.New("upstream down")}})

	addAndWait(r, parisLoc)

	saved := r.Snapshot().Saved
	require.Len(t, saved, 1)
	assert.Equal(t, parisLoc, saved[0])
}

func TestAdd_EvictsOldest(t *testing.T) {
	r := newTestResolver(t, nil, Options{})
	for i := 1; i <= 5; i++ {
		addAndWait(r, numbered(i))
	}
	require.Len(t, r.Snapshot().Saved, 5)

	addAndWait(r, numbered(6))

	want := coords([]weather.Location{numbered(2), numbered(3), numbered(4), numbered(5), numbered(6)})
	assert.Equal(t, want, coords(r.Snapshot().Saved))
}

func TestAdd_SavedListNeverExceedsBound(t *testing.T) {
	r := newTestResolver(t, nil, Options{})
	for i := 1; i <= 12; i++ {
		addAndWait(r, numbered(i))
		assert.LessOrEqual(t, len(r.Snapshot().Saved), MaxSaved)
	}

	want := coords([]weather.Location{numbered(8), numbered(9), numbered(10), numbered(11), numbered(12)})
	assert.Equal(t, want, coords(r.Snapshot().Saved))
}

func TestAdd_DuplicateIsNotSavedTwice(t *testing.T) {
	r := newTestResolver(t, nil, Options{})
	addAndWait(r, parisLoc)

	renamed := parisLoc
	renamed.Formatted = "Paris (again)"
	addAndWait(r, renamed)

	st := r.Snapshot()
	assert.Len(t, st.Saved, 1)
	assert.Equal(t, "Paris (again)", st.Current.Formatted)
}

func TestAdd_SlowLookupKeepsAddOrder(t *testing.T) {
	enricher := newLatchEnricher(6)
	r := newTestResolver(t, nil, Options{Enricher: enricher})
	for i := 1; i <= 5; i++ {
		addAndWait(r, numbered(i))
	}

	done6 := r.Add(numbered(6))
	done7 := r.Add(numbered(7))

	// L7's lookup is instant, but its save waits for L6.
	select {
	case <-done7:
		t.Fatal("L7 committed before L6")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, r.Current().Equal(numbered(7)))

	enricher.release(6)
	<-done6
	<-done7

	want := coords([]weather.Location{numbered(3), numbered(4), numbered(5), numbered(6), numbered(7)})
	assert.Equal(t, want, coords(r.Snapshot().Saved))

	addAndWait(r, numbered(8))
	want = coords([]weather.Location{numbered(4), numbered(5), numbered(6), numbered(7), numbered(8)})
	assert.Equal(t, want, coords(r.Snapshot().Saved))
}

func TestRemove_CancelsPendingSave(t *testing.T) {
	enricher := newLatchEnricher(1)
	st := store.NewMemoryStore()
	r := newTestResolver(t, st, Options{Enricher: enricher})

	done := r.Add(numbered(1))
	r.Remove(numbered(1))
	enricher.release(1)
	<-done

	snap := r.Snapshot()
	assert.Empty(t, snap.Saved)
	assert.Nil(t, snap.Current)

	raw, err := st.Get(context.Background(), keySaved)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(raw))

	// A later add of the same place is saved normally.
	addAndWait(r, numbered(1))
	assert.Equal(t, coords([]weather.Location{numbered(1)}), coords(r.Snapshot().Saved))
}

func TestAdd_ConcurrentAddsRespectBound(t *testing.T) {
	r := newTestResolver(t, nil, Options{})

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-r.Add(numbered(i))
		}(i)
	}
	wg.Wait()

	st := r.Snapshot()
	assert.Len(t, st.Saved, MaxSaved)
	seen := map[[2]float64]bool{}
	for _, c := range coords(st.Saved) {
		assert.False(t, seen[c], "duplicate %v", c)
		seen[c] = true
	}
}

func TestAdd_ClosesSidebar(t *testing.T) {
	r := newTestResolver(t, nil, Options{})
	require.True(t, r.ToggleSidebar())

	addAndWait(r, parisLoc)

	assert.False(t, r.Snapshot().SidebarOpen)
}

func TestResolve_Policy(t *testing.T) {
	t.Run("home wins", func(t *testing.T) {
		st := store.NewMemoryStore()
		putJSON(t, st, keyHome, tokyoLoc)
		putJSON(t, st, keySaved, []weather.Location{parisLoc})

		r := newTestResolver(t, st, Options{})
		require.NotNil(t, r.Current())
		assert.True(t, r.Current().Equal(tokyoLoc))
	})

	t.Run("saved without home uses the default city", func(t *testing.T) {
		st := store.NewMemoryStore()
		putJSON(t, st, keySaved, []weather.Location{parisLoc})

		r := newTestResolver(t, st, Options{})
		assert.Equal(t, DefaultLocation, *r.Current())
	})

	t.Run("configured default city", func(t *testing.T) {
		st := store.NewMemoryStore()
		putJSON(t, st, keySaved, []weather.Location{parisLoc})

		r := newTestResolver(t, st, Options{DefaultLocation: &romeLoc})
		assert.Equal(t, romeLoc, *r.Current())
	})

	t.Run("resolve is idempotent", func(t *testing.T) {
		st := store.NewMemoryStore()
		putJSON(t, st, keyHome, tokyoLoc)

		r := newTestResolver(t, st, Options{})
		r.Select(parisLoc)
		r.Resolve()
		r.Resolve()
		assert.True(t, r.Current().Equal(parisLoc))
	})
}

func TestRemove_Cascade(t *testing.T) {
	t.Run("removing home clears it", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{})
		addAndWait(r, parisLoc)
		addAndWait(r, tokyoLoc)
		r.SetHome(parisLoc)

		r.Remove(parisLoc)

		st := r.Snapshot()
		assert.Nil(t, st.Home)
		assert.Equal(t, coords([]weather.Location{tokyoLoc}), coords(st.Saved))
	})

	t.Run("current falls back to home", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{})
		addAndWait(r, parisLoc)
		addAndWait(r, tokyoLoc)
		r.SetHome(parisLoc)
		r.Select(tokyoLoc)

		r.Remove(tokyoLoc)

		assert.True(t, r.Current().Equal(parisLoc))
	})

	t.Run("current falls back to first remaining", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{})
		addAndWait(r, parisLoc)
		addAndWait(r, tokyoLoc)
		addAndWait(r, romeLoc)

		r.Remove(romeLoc)

		assert.True(t, r.Current().Equal(parisLoc))
	})

	t.Run("current becomes empty", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{})
		addAndWait(r, parisLoc)

		r.Remove(parisLoc)

		st := r.Snapshot()
		assert.Nil(t, st.Current)
		assert.True(t, st.FirstTimeUser)
		assert.Equal(t, ScreenOnboarding, st.Screen)
	})

	t.Run("removing a non-current entry keeps current", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{})
		addAndWait(r, parisLoc)
		addAndWait(r, tokyoLoc)

		r.Remove(parisLoc)

		assert.True(t, r.Current().Equal(tokyoLoc))
	})
}

func TestFirstTimeUser_DerivedFromState(t *testing.T) {
	r := newTestResolver(t, nil, Options{})
	check := func() {
		st := r.Snapshot()
		assert.Equal(t, len(st.Saved) == 0 && st.Home == nil, st.FirstTimeUser)
	}

	check()
	r.SetHome(tokyoLoc)
	check()
	addAndWait(r, parisLoc)
	check()
	r.Remove(tokyoLoc)
	check()
	r.Remove(parisLoc)
	check()
	r.Select(romeLoc)
	check()
}

func TestRecordSearch(t *testing.T) {
	r := newTestResolver(t, nil, Options{})

	assert.True(t, r.RecordSearch("  Paris "))
	assert.False(t, r.RecordSearch("Paris"))
	assert.False(t, r.RecordSearch("   "))
	assert.Equal(t, []string{"Paris"}, r.Snapshot().Recent)

	for _, q := range []string{"Tokyo", "Rome", "Lima", "Oslo", "Cairo"} {
		r.RecordSearch(q)
	}
	assert.Equal(t, []string{"Cairo", "Oslo", "Lima", "Rome", "Tokyo"}, r.Snapshot().Recent)

	// Re-recording an existing entry does not move it to the front.
	assert.False(t, r.RecordSearch("Rome"))
	assert.Equal(t, []string{"Cairo", "Oslo", "Lima", "Rome", "Tokyo"}, r.Snapshot().Recent)
}

func TestPersistence_RoundTrip(t *testing.T) {
	st := store.NewMemoryStore()

	r := NewResolver(context.Background(), st, Options{})
	addAndWait(r, parisLoc)
	addAndWait(r, tokyoLoc)
	r.SetHome(tokyoLoc)
	r.RecordSearch("Tokyo")
	r.SetDarkMode(true)
	r.Close()

	reloaded := newTestResolver(t, st, Options{})
	snap := reloaded.Snapshot()
	assert.Equal(t, coords([]weather.Location{parisLoc, tokyoLoc}), coords(snap.Saved))
	require.NotNil(t, snap.Home)
	assert.True(t, snap.Home.Equal(tokyoLoc))
	assert.True(t, snap.Current.Equal(tokyoLoc))
	assert.Equal(t, []string{"Tokyo"}, snap.Recent)
	assert.True(t, snap.DarkMode)
	assert.False(t, snap.SidebarOpen)
}

func TestPersistence_CorruptValueFallsBackToDefault(t *testing.T) {
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(context.Background(), keySaved, []byte("{not json")))
	putJSON(t, st, keyRecent, []string{"Lima"})

	r := newTestResolver(t, st, Options{})
	snap := r.Snapshot()
	assert.Empty(t, snap.Saved)
	assert.Equal(t, []string{"Lima"}, snap.Recent)
	assert.True(t, snap.FirstTimeUser)
}

func TestDarkModeAndSidebar(t *testing.T) {
	st := store.NewMemoryStore()
	r := newTestResolver(t, st, Options{})

	assert.True(t, r.ToggleDarkMode())
	assert.False(t, r.ToggleDarkMode())
	r.SetDarkMode(true)

	raw, err := st.Get(context.Background(), keyDarkMode)
	require.NoError(t, err)
	assert.JSONEq(t, "true", string(raw))

	assert.True(t, r.ToggleSidebar())
	assert.False(t, r.ToggleSidebar())
}

func TestUseCurrentLocation(t *testing.T) {
	t.Run("unsupported without a locator", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{})

		err := r.UseCurrentLocation(context.Background())

		var pe *PositionError
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, Unsupported, pe.Code)
		st := r.Snapshot()
		assert.Equal(t, "Geolocation is not supported by your browser.", st.LocationError)
		assert.Equal(t, ScreenError, st.Screen)
	})

	t.Run("permission denied", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{
			Locator: fakeLocator{err: &PositionError{Code: PermissionDenied}},
		})

		require.Error(t, r.UseCurrentLocation(context.Background()))
		assert.Equal(t, "Location permission denied.", r.Snapshot().LocationError)
	})

	t.Run("timeout", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{
			Locator: fakeLocator{err: context.DeadlineExceeded},
		})

		require.Error(t, r.UseCurrentLocation(context.Background()))
		assert.Equal(t, "The request to get user location timed out.", r.Snapshot().LocationError)
	})

	t.Run("success names the position after its city", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{
			Enricher: fakeEnricher{name: "Paris"},
			Locator:  fakeLocator{pos: Position{Lat: 48.8566, Lng: 2.3522}},
		})
		r.ApplyPositionError(Timeout)

		require.NoError(t, r.UseCurrentLocation(context.Background()))

		st := r.Snapshot()
		require.NotNil(t, st.Current)
		assert.Equal(t, "Paris, Lat: 48.86, Lon: 2.35", st.Current.Formatted)
		assert.Equal(t, "Paris", st.Current.Components.City)
		assert.Empty(t, st.LocationError)
		assert.Empty(t, st.Saved)
	})

	t.Run("lookup failure uses a generic name", func(t *testing.T) {
		r := newTestResolver(t, nil, Options{Enricher: fakeEnricher{err: errors.New("nope")}})

		r.ApplyPosition(context.Background(), Position{Lat: -33.8688, Lng: 151.2093})

		assert.Equal(t, "Current Location, Lat: -33.87, Lon: 151.21", r.Current().Formatted)
	})
}

func TestApplyPositionError_ClearsCurrent(t *testing.T) {
	r := newTestResolver(t, nil, Options{})
	r.Select(parisLoc)

	r.ApplyPositionError(PositionUnavailable)

	st := r.Snapshot()
	assert.Nil(t, st.Current)
	assert.Equal(t, "Location information is unavailable.", st.LocationError)
	assert.Equal(t, ScreenError, st.Screen)

	r.ClearLocationError()
	assert.Equal(t, ScreenOnboarding, r.Snapshot().Screen)
}

func TestOnCurrentChange(t *testing.T) {
	r := newTestResolver(t, nil, Options{})

	var got []*weather.Location
	r.OnCurrentChange(func(l *weather.Location) { got = append(got, l) })

	r.Select(parisLoc)
	r.Select(parisLoc)
	r.ToggleSidebar()
	r.Select(tokyoLoc)
	r.Remove(tokyoLoc)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(parisLoc))
	assert.True(t, got[1].Equal(tokyoLoc))
	assert.Nil(t, got[2])
}

func TestOnCurrentChange_CalledWithResolverLocked(t *testing.T) {
	r := newTestResolver(t, nil, Options{})

	var locked []bool
	r.OnCurrentChange(func(*weather.Location) {
		free := r.mu.TryLock()
		if free {
			r.mu.Unlock()
		}
		locked = append(locked, !free)
	})

	r.Select(parisLoc)
	r.Select(tokyoLoc)

	assert.Equal(t, []bool{true, true}, locked)
}

func TestPositionErrorCodeNames(t *testing.T) {
	for _, code := range []PositionErrorCode{PermissionDenied, PositionUnavailable, Timeout, Unsupported, Unknown} {
		assert.Equal(t, code, ParsePositionErrorCode(code.String()))
	}
	assert.Equal(t, Unknown, ParsePositionErrorCode("bogus"))
	assert.Equal(t, "An unknown error occurred.", Unknown.Message())
}

func putJSON(t *testing.T, st Store, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), key, raw))
}
