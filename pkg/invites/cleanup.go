package invites

import (
	"context"
	"time"

	"github.com/courseforge/courseforge/pkg/observability"
	"github.com/robfig/cron/v3"
)

// CleanupJob periodically deletes expired, never-accepted invitations
type CleanupJob struct {
	store  *Store
	logger *observability.Logger
	cron   *cron.Cron
}

// NewCleanupJob creates the sweep job. schedule is a cron expression
// ("@hourly" by default).
func NewCleanupJob(store *Store, logger *observability.Logger) *CleanupJob {
	return &CleanupJob{
		store:  store,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start registers the sweep on the given schedule and starts the scheduler
func (j *CleanupJob) Start(schedule string) error {
	_, err := j.cron.AddFunc(schedule, j.run)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish
func (j *CleanupJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *CleanupJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := j.store.CleanupExpired(ctx)
	if err != nil {
		j.logger.WithError(err).Error("expired invitation sweep failed")
		return
	}
	if n > 0 {
		j.logger.WithField("removed", n).Info("swept expired invitations")
	}
}
