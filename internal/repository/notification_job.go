package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecommerce-order-service/internal/model"

	"gorm.io/gorm"
)

type NotificationJobRepository interface {
	Create(ctx context.Context, job *model.NotificationJob) error
	FindByID(ctx context.Context, jobID string) (*model.NotificationJob, error)
	// ClaimNext leases the oldest due job until now+lease and increments its
	// attempt counter. It returns nil when nothing is due.
	ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*model.NotificationJob, error)
	MarkSucceeded(ctx context.Context, jobID string) error
	Reschedule(ctx context.Context, jobID string, availableAt time.Time, lastError string) error
	MarkDead(ctx context.Context, jobID string, lastError string) error
}

type notificationJobRepoImpl struct {
	db *gorm.DB
}

func NewNotificationJobRepository(db *gorm.DB) NotificationJobRepository {
	return &notificationJobRepoImpl{
		db: db,
	}
}

func (r *notificationJobRepoImpl) Create(ctx context.Context, job *model.NotificationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *notificationJobRepoImpl) FindByID(ctx context.Context, jobID string) (*model.NotificationJob, error) {
	var job model.NotificationJob
	err := r.db.WithContext(ctx).
		Where("id = ?", jobID).
		First(&job).Error

	if err != nil {
		return nil, notFoundOr(err, "notification job", jobID)
	}

	return &job, nil
}

// ClaimNext treats processing jobs whose lease expired like queued ones, so
// a worker that died mid-send does not lose the job.
func (r *notificationJobRepoImpl) ClaimNext(ctx context.Context, now time.Time, lease time.Duration) (*model.NotificationJob, error) {
	var claimed *model.NotificationJob

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job model.NotificationJob
		err := forUpdate(tx).
			Where("state IN ? AND available_at <= ?",
				[]model.JobState{model.JobStateQueued, model.JobStateProcessing},
				now,
			).
			Order("available_at, created_at").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("select due job: %w", err)
		}

		result := tx.Model(&model.NotificationJob{}).
			Where("id = ? AND state = ? AND attempt = ?", job.ID, job.State, job.Attempt).
			Updates(map[string]interface{}{
				"state":        model.JobStateProcessing,
				"attempt":      job.Attempt + 1,
				"available_at": now.Add(lease),
				"updated_at":   now,
			})
		if result.Error != nil {
			return fmt.Errorf("lease job %s: %w", job.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			// another worker won the race
			return nil
		}

		job.State = model.JobStateProcessing
		job.Attempt++
		job.AvailableAt = now.Add(lease)
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

func (r *notificationJobRepoImpl) MarkSucceeded(ctx context.Context, jobID string) error {
	return r.updateState(ctx, jobID, map[string]interface{}{
		"state":      model.JobStateSucceeded,
		"last_error": "",
		"updated_at": time.Now(),
	})
}

func (r *notificationJobRepoImpl) Reschedule(ctx context.Context, jobID string, availableAt time.Time, lastError string) error {
	return r.updateState(ctx, jobID, map[string]interface{}{
		"state":        model.JobStateQueued,
		"available_at": availableAt,
		"last_error":   lastError,
		"updated_at":   time.Now(),
	})
}

func (r *notificationJobRepoImpl) MarkDead(ctx context.Context, jobID string, lastError string) error {
	return r.updateState(ctx, jobID, map[string]interface{}{
		"state":      model.JobStateDead,
		"last_error": lastError,
		"updated_at": time.Now(),
	})
}

func (r *notificationJobRepoImpl) updateState(ctx context.Context, jobID string, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&model.NotificationJob{}).
		Where("id = ?", jobID).
		Updates(fields)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}

	return nil
}
