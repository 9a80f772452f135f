package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/i474232898/weathergrid/internal/weather"
)

// Status is the lifecycle state of the displayed weather.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Fetcher is satisfied by *weather.Service.
type Fetcher interface {
	Fetch(ctx context.Context, loc weather.Location) (weather.Report, error)
}

// View is a snapshot of what the dashboard currently shows.
type View struct {
	SessionID  string                 `json:"sessionId,omitempty"`
	Location   *weather.Location      `json:"location"`
	Status     Status                 `json:"status"`
	Report     *weather.Report        `json:"report,omitempty"`
	Highlights *weather.Highlights    `json:"highlights,omitempty"`
	Range      *weather.ForecastRange `json:"forecastRange,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorClass weather.FailureClass   `json:"errorClass,omitempty"`
	Attempts   int                    `json:"attempts,omitempty"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// Dashboard runs one fetch session per displayed location. Starting a new
// session cancels the previous one, and results from superseded sessions are
// dropped by comparing generations.
type Dashboard struct {
	fetcher Fetcher

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	view       View

	wg sync.WaitGroup
}

// New creates an idle Dashboard.
func New(fetcher Fetcher) *Dashboard {
	return &Dashboard{
		fetcher: fetcher,
		view:    View{Status: StatusIdle, UpdatedAt: time.Now().UTC()},
	}
}

// Show switches the dashboard to loc and starts fetching it. A nil loc clears
// the dashboard. Show never blocks on the network.
func (d *Dashboard) Show(loc *weather.Location) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startLocked(loc, false)
}

// Reload refetches the location currently shown, dropping what is displayed.
// It does nothing when idle.
func (d *Dashboard) Reload() {
	d.restart(false)
}

// Refresh refetches the location currently shown but keeps the previous report
// visible until the new one arrives. A session that is still loading, retries
// included, is left to finish.
func (d *Dashboard) Refresh() {
	d.restart(true)
}

func (d *Dashboard) restart(keep bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.view.Location == nil {
		return
	}
	if keep && d.view.Status == StatusLoading {
		log.WithField("session", d.view.SessionID).Debug("refresh skipped; session still loading")
		return
	}
	loc := *d.view.Location
	d.startLocked(&loc, keep)
}

// View returns the current snapshot.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.view
}

// Close cancels any running session and waits for it to exit.
func (d *Dashboard) Close() {
	d.mu.Lock()
	d.generation++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dashboard) startLocked(loc *weather.Location, keep bool) {
	d.generation++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	if loc == nil {
		d.view = View{Status: StatusIdle, UpdatedAt: time.Now().UTC()}
		return
	}

	l := *loc
	session := uuid.NewString()
	if keep && d.view.Status == StatusReady {
		d.view.SessionID = session
	} else {
		d.view = View{
			SessionID: session,
			Location:  &l,
			Status:    StatusLoading,
			UpdatedAt: time.Now().UTC(),
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.wg.Add(1)
	go d.run(ctx, d.generation, session, l)
}

func (d *Dashboard) run(ctx context.Context, gen uint64, session string, loc weather.Location) {
	defer d.wg.Done()

	fields := log.Fields{"session": session, "location": loc.Key()}
	log.WithFields(fields).Debug("weather session started")

	report, err := d.fetcher.Fetch(ctx, loc)

	d.mu.Lock()
	defer d.mu.Unlock()

	if gen != d.generation {
		log.WithFields(fields).Debug("discarding result of superseded weather session")
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}

	view := d.view
	view.UpdatedAt = time.Now().UTC()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		fe := weather.Classify(err)
		view.Status = StatusError
		view.Error = fe.UserMessage()
		view.ErrorClass = fe.Class
		view.Attempts = fe.Attempts
		view.Report = nil
		view.Highlights = nil
		view.Range = nil
		d.view = view
		return
	}

	h := weather.BuildHighlights(report.Conditions)
	rng := report.Forecast.Range()
	view.Status = StatusReady
	view.Report = &report
	view.Highlights = &h
	view.Range = &rng
	view.Error = ""
	view.ErrorClass = ""
	view.Attempts = 0
	d.view = view
	log.WithFields(fields).Info("weather session completed")
}
