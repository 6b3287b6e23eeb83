package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/tradepost-backend/pkg/logger"
	"gorm.io/gorm"
)

const (
	defaultRetentionDays = 30
	outboxMinAttempts    = 5
)

// PruneFunc deletes rows older than cutoff inside tx and reports how many went.
type PruneFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionJobParams configure a transactional age-based prune.
type RetentionJobParams struct {
	Name      string
	Logger    *logger.Logger
	DB        txRunner
	Prune     PruneFunc
	Retention int
}

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type notificationPruner interface {
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes published outbox rows plus rows that exhausted
// minAttempts deliveries.
func NewOutboxRetentionJob(logg *logger.Logger, db txRunner, repo outboxPruner, retention, minAttempts int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}
	return NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Logger: logg,
		DB:     db,
		Prune: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
		},
		Retention: retention,
	})
}

// NewNotificationCleanupJob prunes read notifications; unread ones are kept.
func NewNotificationCleanupJob(logg *logger.Logger, db txRunner, repo notificationPruner, retention int) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return NewRetentionJob(RetentionJobParams{
		Name:      "notification-cleanup",
		Logger:    logg,
		DB:        db,
		Prune:     repo.DeleteReadBefore,
		Retention: retention,
	})
}

// NewRetentionJob builds a job that runs Prune with a cutoff Retention days back.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	switch {
	case params.Name == "":
		return nil, fmt.Errorf("job name required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Prune == nil:
		return nil, fmt.Errorf("prune func required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	return &retentionJob{
		name:      params.Name,
		logg:      params.Logger,
		db:        params.DB,
		prune:     params.Prune,
		retention: retention,
		now:       time.Now,
	}, nil
}

type retentionJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	prune     PruneFunc
	retention int
	now       func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.prune(ctx, tx, cutoff)
		deleted = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "retention prune complete")
	return nil
}
