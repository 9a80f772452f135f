package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	log "github.com/sirupsen/logrus"
)

// Refresher is satisfied by *dashboard.Dashboard.
type Refresher interface {
	Refresh()
}

// Scheduler periodically refreshes the weather shown on the dashboard.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Refresher
	interval  time.Duration
}

// New creates a new Scheduler. A non-positive interval disables it.
func New(interval time.Duration, target Refresher) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		target:    target,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens one interval from now; the dashboard already fetches
// when a location is first shown.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Info("scheduler: refresh disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().Do(func() {
		log.Debug("scheduler: refreshing dashboard weather")
		s.target.Refresh()
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	log.WithField("interval", s.interval).Info("scheduler: started")
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// IsRunning reports whether the underlying scheduler is active.
func (s *Scheduler) IsRunning() bool {
	return s.scheduler.IsRunning()
}
