// Package retention periodically deletes contact requests older than the
// configured retention window.
package retention

import (
	"context"
	"fmt"
	"log"
	"mpgrupo/internal/logger"
	sentryutil "mpgrupo/internal/sentry"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes leads created before a cutoff.
type Purger interface {
	PurgeLeadsBefore(ctx context.Context, t time.Time) (int64, error)
}

// Job runs the purge on a cron schedule (six fields, seconds first).
type Job struct {
	Cron    *cron.Cron
	Store   Purger
	MaxAge  time.Duration
	Timeout time.Duration

	now func() time.Time
}

// NewJob builds a job keeping leads for days days.
func NewJob(store Purger, days int) *Job {
	return &Job{
		Cron:    cron.New(cron.WithSeconds()),
		Store:   store,
		MaxAge:  time.Duration(days) * 24 * time.Hour,
		Timeout: time.Minute,
		now:     time.Now,
	}
}

// Register schedules the purge. A non-positive retention disables it.
func (j *Job) Register(spec string) error {
	if j.MaxAge <= 0 {
		log.Println("[retention] Lead retention disabled")
		return nil
	}
	if _, err := j.Cron.AddFunc(spec, j.run); err != nil {
		return fmt.Errorf("register lead purge %q: %w", spec, err)
	}
	log.Printf("[retention] Lead purge scheduled (%s), keeping %v", spec, j.MaxAge)
	return nil
}

// Start starts the scheduler.
func (j *Job) Start() {
	j.Cron.Start()
}

// Stop stops the scheduler and waits for a running purge to finish.
func (j *Job) Stop() {
	<-j.Cron.Stop().Done()
}

// RunNow purges immediately and returns the number of deleted leads.
func (j *Job) RunNow(ctx context.Context) (int64, error) {
	if j.MaxAge <= 0 {
		return 0, nil
	}
	cutoff := j.now().Add(-j.MaxAge)
	n, err := j.Store.PurgeLeadsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("leads purged", map[string]interface{}{
			"deleted": n,
			"before":  cutoff.UTC().Format(time.RFC3339),
		})
	}
	return n, nil
}

func (j *Job) run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.Timeout)
	defer cancel()
	if _, err := j.RunNow(ctx); err != nil {
		logger.Error("lead purge failed", map[string]interface{}{"error": err.Error()})
		sentryutil.CaptureError(err, map[string]string{"component": "retention"})
	}
}
