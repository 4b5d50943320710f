package audit

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// RetentionPolicy defines how long audit records are kept
type RetentionPolicy struct {
	// RetentionDays is the number of days to keep audit records
	RetentionDays int
	// Schedule is a cron expression for the cleanup run
	Schedule string
}

// DefaultRetentionPolicy keeps 90 days and prunes nightly
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		RetentionDays: 90,
		Schedule:      "0 3 * * *",
	}
}

// RetentionJob prunes old audit records on a cron schedule
type RetentionJob struct {
	store  *Store
	policy RetentionPolicy
	log    *observability.Logger
	cron   *cron.Cron
}

// NewRetentionJob creates a retention job; call Start to schedule it
func NewRetentionJob(store *Store, policy RetentionPolicy, log *observability.Logger) *RetentionJob {
	return &RetentionJob{
		store:  store,
		policy: policy,
		log:    log,
		cron:   cron.New(),
	}
}

// Start schedules the cleanup and begins the cron loop
func (j *RetentionJob) Start() error {
	_, err := j.cron.AddFunc(j.policy.Schedule, j.runOnce)
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the cron loop, waiting for a running cleanup to finish
func (j *RetentionJob) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}

func (j *RetentionJob) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().AddDate(0, 0, -j.policy.RetentionDays)
	deleted, err := j.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.log.WithError(err).Error("audit retention cleanup failed")
		return
	}
	if deleted > 0 {
		j.log.WithField("deleted", deleted).Info("pruned audit log")
	}
}
