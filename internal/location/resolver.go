package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weathergrid/internal/store"
	"github.com/i474232898/weathergrid/internal/weather"
)

const (
	// MaxSaved bounds SavedLocations; the oldest entry is evicted first.
	MaxSaved = 5
	// MaxRecentSearches bounds RecentSearches.
	MaxRecentSearches = 5

	keyDarkMode = "weather-theme"
	keySaved    = "savedLocations"
	keyHome     = "homeCity"
	keyRecent   = "recentSearches"

	currentLocationName = "Current Location"
)

// Store is the durable key-value storage the Resolver persists to.
// Get must return store.ErrNotFound for missing keys.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Enricher looks up the display city for a coordinate pair.
type Enricher interface {
	CityName(ctx context.Context, lat, lng float64) (string, error)
}

// Screen names which top-level view a client should render.
type Screen string

const (
	ScreenOnboarding Screen = "onboarding"
	ScreenError      Screen = "error"
	ScreenDashboard  Screen = "dashboard"
	ScreenLoading    Screen = "loading"
)

// Options configures a Resolver. Zero values fall back to defaults.
type Options struct {
	Enricher        Enricher
	Locator         Locator // nil means geolocation is unsupported
	DefaultLocation *weather.Location
	EnrichTimeout   time.Duration
	PositionOptions *PositionOptions
}

// State is a read-only snapshot of the Resolver.
type State struct {
	Current       *weather.Location  `json:"currentLocation"`
	Saved         []weather.Location `json:"savedLocations"`
	Home          *weather.Location  `json:"homeCity"`
	Recent        []string           `json:"recentSearches"`
	DarkMode      bool               `json:"darkMode"`
	SidebarOpen   bool               `json:"sidebarOpen"`
	FirstTimeUser bool               `json:"isFirstTimeUser"`
	LocationError string             `json:"locationError,omitempty"`
	Screen        Screen             `json:"screen"`
}

// Resolver owns the user's location state: which location is current, the saved
// list, the home city, recent searches and the theme flag. All mutation goes
// through its methods; every mutation is persisted before the method returns.
type Resolver struct {
	mu    sync.Mutex
	store Store

	enricher      Enricher
	locator       Locator
	fallback      weather.Location
	enrichTimeout time.Duration
	positionOpts  PositionOptions

	saved       []weather.Location
	home        *weather.Location
	current     *weather.Location
	recent      []string
	darkMode    bool
	sidebarOpen bool
	locationErr string

	listeners []func(*weather.Location)

	// lastAdd is closed once the most recent Add has committed; each Add
	// commits only after its predecessor so the saved list keeps add order.
	lastAdd  <-chan struct{}
	inflight map[*pendingAdd]struct{}

	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup
}

// NewResolver loads persisted state from st and applies the initial resolution policy.
// Unreadable or corrupt values are logged and replaced by their defaults.
func NewResolver(ctx context.Context, st Store, opts Options) *Resolver {
	r := &Resolver{
		store:         st,
		enricher:      opts.Enricher,
		locator:       opts.Locator,
		fallback:      DefaultLocation,
		enrichTimeout: opts.EnrichTimeout,
		positionOpts:  DefaultPositionOptions(),
		saved:         []weather.Location{},
		recent:        []string{},
		inflight:      make(map[*pendingAdd]struct{}),
	}
	if opts.DefaultLocation != nil {
		r.fallback = *opts.DefaultLocation
	}
	if r.enrichTimeout <= 0 {
		r.enrichTimeout = 10 * time.Second
	}
	if opts.PositionOptions != nil {
		r.positionOpts = *opts.PositionOptions
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.load(ctx, keySaved, &r.saved)
	r.load(ctx, keyHome, &r.home)
	r.load(ctx, keyRecent, &r.recent)
	r.load(ctx, keyDarkMode, &r.darkMode)
	if r.saved == nil {
		r.saved = []weather.Location{}
	}
	if r.recent == nil {
		r.recent = []string{}
	}

	r.resolveLocked()
	return r
}

func (r *Resolver) load(ctx context.Context, key string, dst any) {
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		log.WithField("key", key).WithError(err).Warn("failed to read persisted state; using default")
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.WithField("key", key).WithError(err).Warn("corrupt persisted state; using default")
	}
}

func (r *Resolver) persistLocked(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.WithField("key", key).WithError(err).Error("failed to encode state")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.Put(ctx, key, raw); err != nil {
		log.WithField("key", key).WithError(err).Error("failed to persist state")
	}
}

// OnCurrentChange registers fn to be called whenever the current location changes.
// fn runs with the Resolver locked, so it must not call back into the Resolver.
func (r *Resolver) OnCurrentChange(fn func(*weather.Location)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// update runs fn under the lock, re-applies the resolution policy and notifies
// listeners if the current location changed.
func (r *Resolver) update(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := cloneLocation(r.current)
	fn()
	r.resolveLocked()

	if !sameLocation(before, r.current) {
		for _, l := range r.listeners {
			l(cloneLocation(r.current))
		}
	}
}

// Resolve applies the initial resolution policy. It only fills an empty current
// slot, so calling it repeatedly with unchanged inputs changes nothing.
func (r *Resolver) Resolve() {
	r.update(func() {})
}

func (r *Resolver) resolveLocked() {
	switch {
	case r.current != nil:
	case r.home != nil:
		r.current = cloneLocation(r.home)
	case len(r.saved) > 0:
		r.current = cloneLocation(&r.fallback)
	}
}

// pendingAdd is an Add whose save has not been committed yet.
type pendingAdd struct {
	loc       weather.Location
	cancelled bool
}

// Add makes loc current right away and saves it in the background after trying
// to enrich its city name. Saves commit in the order Add was called. The
// returned channel is closed once the saved list has been updated.
func (r *Resolver) Add(loc weather.Location) <-chan struct{} {
	done := make(chan struct{})
	op := &pendingAdd{loc: loc}

	var prev <-chan struct{}
	r.update(func() {
		r.current = cloneLocation(&loc)
		r.sidebarOpen = false
		prev = r.lastAdd
		r.lastAdd = done
		r.inflight[op] = struct{}{}
	})

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		defer close(done)
		defer r.forget(op)
		defer func() {
			if p := recover(); p != nil {
				log.WithField("location", loc.Key()).Errorf("panic while saving location: %v", p)
			}
		}()

		enriched := r.enrich(loc)
		if prev != nil {
			<-prev
		}
		r.commitSaved(enriched, op)
	}()
	return done
}

func (r *Resolver) forget(op *pendingAdd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, op)
}

func (r *Resolver) enrich(loc weather.Location) weather.Location {
	if r.enricher == nil {
		return loc
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.enrichTimeout)
	defer cancel()

	name, err := r.enricher.CityName(ctx, loc.Lat, loc.Lng)
	if err != nil {
		log.WithField("location", loc.Key()).WithError(err).Warn("city name lookup failed; saving location as given")
		return loc
	}
	loc.Components.City = name
	return loc
}

func (r *Resolver) commitSaved(loc weather.Location, op *pendingAdd) {
	r.update(func() {
		delete(r.inflight, op)
		if op.cancelled {
			log.WithField("location", loc.Key()).Debug("location removed before its save committed")
			return
		}
		if indexOf(r.saved, loc) >= 0 {
			return
		}
		saved := append(append([]weather.Location{}, r.saved...), loc)
		if len(saved) > MaxSaved {
			saved = saved[len(saved)-MaxSaved:]
		}
		r.saved = saved
		r.persistLocked(keySaved, r.saved)
	})
}

// Select makes loc current without saving it.
func (r *Resolver) Select(loc weather.Location) {
	r.update(func() {
		r.current = cloneLocation(&loc)
		r.sidebarOpen = false
	})
}

// Remove deletes loc from the saved list and cancels any save of loc still in
// flight. Removing the home city clears it; removing the current location moves
// to the home city, then to the first remaining saved entry, then to nothing.
func (r *Resolver) Remove(loc weather.Location) {
	r.update(func() {
		for op := range r.inflight {
			if op.loc.Equal(loc) {
				op.cancelled = true
			}
		}

		remaining := make([]weather.Location, 0, len(r.saved))
		for _, s := range r.saved {
			if !s.Equal(loc) {
				remaining = append(remaining, s)
			}
		}
		r.saved = remaining
		r.persistLocked(keySaved, r.saved)

		if r.home != nil && r.home.Equal(loc) {
			r.home = nil
			r.persistLocked(keyHome, r.home)
		}

		if r.current != nil && r.current.Equal(loc) {
			switch {
			case r.home != nil:
				r.current = cloneLocation(r.home)
			case len(remaining) > 0:
				r.current = cloneLocation(&remaining[0])
			default:
				r.current = nil
			}
		}
	})
}

// SetHome replaces the home city. loc need not be saved.
func (r *Resolver) SetHome(loc weather.Location) {
	r.update(func() {
		r.home = cloneLocation(&loc)
		r.persistLocked(keyHome, r.home)
	})
}

// RecordSearch prepends the trimmed query to the recent searches unless it is
// blank or already present. It reports whether the list changed.
func (r *Resolver) RecordSearch(query string) bool {
	q := strings.TrimSpace(query)
	if q == "" {
		return false
	}

	recorded := false
	r.update(func() {
		for _, s := range r.recent {
			if s == q {
				return
			}
		}
		recent := append([]string{q}, r.recent...)
		if len(recent) > MaxRecentSearches {
			recent = recent[:MaxRecentSearches]
		}
		r.recent = recent
		r.persistLocked(keyRecent, r.recent)
		recorded = true
	})
	return recorded
}

// SetDarkMode sets and persists the theme flag.
func (r *Resolver) SetDarkMode(on bool) {
	r.update(func() {
		r.darkMode = on
		r.persistLocked(keyDarkMode, r.darkMode)
	})
}

// ToggleDarkMode flips the theme flag and returns the new value.
func (r *Resolver) ToggleDarkMode() bool {
	var on bool
	r.update(func() {
		r.darkMode = !r.darkMode
		on = r.darkMode
		r.persistLocked(keyDarkMode, r.darkMode)
	})
	return on
}

// ToggleSidebar flips the navigation overlay flag and returns the new value.
func (r *Resolver) ToggleSidebar() bool {
	var open bool
	r.update(func() {
		r.sidebarOpen = !r.sidebarOpen
		open = r.sidebarOpen
	})
	return open
}

// UseCurrentLocation asks the Locator for a position and applies the outcome.
// Failures land in the location error slot and are also returned.
func (r *Resolver) UseCurrentLocation(ctx context.Context) error {
	if r.locator == nil {
		r.ApplyPositionError(Unsupported)
		return &PositionError{Code: Unsupported}
	}

	opts := r.positionOpts
	lctx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	pos, err := r.locator.CurrentPosition(lctx, opts)
	if err != nil {
		code := Unknown
		var pe *PositionError
		switch {
		case errors.As(err, &pe):
			code = pe.Code
		case errors.Is(err, context.DeadlineExceeded):
			code = Timeout
		}
		log.WithError(err).WithField("code", code).Warn("geolocation failed")
		r.ApplyPositionError(code)
		return &PositionError{Code: code, Err: err}
	}

	r.ApplyPosition(ctx, pos)
	return nil
}

// ApplyPosition makes a geolocated position current, named after its city when
// the lookup succeeds, and clears any location error.
func (r *Resolver) ApplyPosition(ctx context.Context, pos Position) {
	city := currentLocationName
	if r.enricher != nil {
		ectx, cancel := context.WithTimeout(ctx, r.enrichTimeout)
		name, err := r.enricher.CityName(ectx, pos.Lat, pos.Lng)
		cancel()
		if err != nil {
			log.WithError(err).Warn("city name lookup for current position failed")
		} else {
			city = name
		}
	}

	loc := weather.Location{
		Lat:        pos.Lat,
		Lng:        pos.Lng,
		Formatted:  fmt.Sprintf("%s, Lat: %.2f, Lon: %.2f", city, pos.Lat, pos.Lng),
		Components: weather.Components{City: city},
	}

	r.update(func() {
		r.current = &loc
		r.locationErr = ""
	})
}

// ApplyPositionError records a failed geolocation request and clears the current location.
func (r *Resolver) ApplyPositionError(code PositionErrorCode) {
	r.update(func() {
		r.locationErr = code.Message()
		r.current = nil
	})
}

// ClearLocationError empties the location error slot.
func (r *Resolver) ClearLocationError() {
	r.update(func() {
		r.locationErr = ""
	})
}

// Current returns a copy of the current location, or nil while resolving.
func (r *Resolver) Current() *weather.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneLocation(r.current)
}

// IsFirstTimeUser reports whether there are no saved locations and no home city.
func (r *Resolver) IsFirstTimeUser() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstTimeLocked()
}

func (r *Resolver) firstTimeLocked() bool {
	return len(r.saved) == 0 && r.home == nil
}

// Snapshot returns a copy of the full state.
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := State{
		Current:       cloneLocation(r.current),
		Saved:         append([]weather.Location{}, r.saved...),
		Home:          cloneLocation(r.home),
		Recent:        append([]string{}, r.recent...),
		DarkMode:      r.darkMode,
		SidebarOpen:   r.sidebarOpen,
		FirstTimeUser: r.firstTimeLocked(),
		LocationError: r.locationErr,
	}

	switch {
	case st.LocationError != "":
		st.Screen = ScreenError
	case st.FirstTimeUser && st.Current == nil:
		st.Screen = ScreenOnboarding
	case st.Current != nil:
		st.Screen = ScreenDashboard
	default:
		st.Screen = ScreenLoading
	}
	return st
}

// Wait blocks until background saves started by Add have finished.
func (r *Resolver) Wait() {
	r.pending.Wait()
}

// Close cancels outstanding city lookups and waits for background saves.
func (r *Resolver) Close() {
	r.cancel()
	r.pending.Wait()
}

func indexOf(locs []weather.Location, loc weather.Location) int {
	for i, l := range locs {
		if l.Equal(loc) {
			return i
		}
	}
	return -1
}

func cloneLocation(l *weather.Location) *weather.Location {
	if l == nil {
		return nil
	}
	c := *l
	return &c
}

func sameLocation(a, b *weather.Location) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
