package queue

import (
	"context"
	"fmt"
	"time"

	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/repository"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DBQueue stores jobs in the notification_jobs table next to the orders.
type DBQueue struct {
	jobs   repository.NotificationJobRepository
	policy Policy
	now    func() time.Time
}

func NewDBQueue(jobs repository.NotificationJobRepository, policy Policy) *DBQueue {
	return &DBQueue{
		jobs:   jobs,
		policy: policy,
		now:    time.Now,
	}
}

func (q *DBQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := q.now()

	err := q.jobs.Create(ctx, &model.NotificationJob{
		ID:             job.ID,
		OrderID:        job.OrderID,
		RecipientEmail: job.RecipientEmail,
		Template:       job.Template,
		State:          model.JobStateQueued,
		AvailableAt:    now,
	})
	if err != nil {
		return fmt.Errorf("insert notification job: %w", err)
	}

	return nil
}

func (q *DBQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		row, err := q.jobs.ClaimNext(ctx, q.now(), q.policy.VisibilityTimeout)
		if err != nil {
			return nil, fmt.Errorf("claim notification job: %w", err)
		}
		if row == nil {
			return nil, nil
		}

		// a job whose leases kept expiring without an ack
		if row.Attempt > q.policy.MaxAttempts {
			if err := q.jobs.MarkDead(ctx, row.ID, "lease expired after final attempt"); err != nil {
				return nil, fmt.Errorf("dead-letter job %s: %w", row.ID, err)
			}
			log.WithFields(log.Fields{"job_id": row.ID, "attempt": row.Attempt}).Warn("notification job dead-lettered after lease expiry")
			continue
		}

		return &Job{
			ID:             row.ID,
			OrderID:        row.OrderID,
			RecipientEmail: row.RecipientEmail,
			Template:       row.Template,
			Attempt:        row.Attempt,
			EnqueuedAt:     row.CreatedAt,
		}, nil
	}
}

func (q *DBQueue) Ack(ctx context.Context, job *Job) error {
	return q.jobs.MarkSucceeded(ctx, job.ID)
}

func (q *DBQueue) Nack(ctx context.Context, job *Job, cause error) (bool, error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	if q.policy.exhausted(job.Attempt) {
		return true, q.jobs.MarkDead(ctx, job.ID, reason)
	}

	return false, q.jobs.Reschedule(ctx, job.ID, q.now().Add(q.policy.backoff(job.Attempt)), reason)
}
