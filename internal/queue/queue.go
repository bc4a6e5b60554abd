// Package queue carries order notifications out of the request path. Jobs
// are delivered at least once: a job claimed by a worker that never
// acknowledges it is handed out again when its lease expires.
package queue

import (
	"context"
	"time"

	"ecommerce-order-service/internal/config"
)

const TemplateOrderConfirmation = "order-confirmation"

type Job struct {
	ID             string    `json:"id"`
	OrderID        string    `json:"orderId"`
	RecipientEmail string    `json:"recipientEmail"`
	Template       string    `json:"template"`
	Attempt        int       `json:"attempt"`
	EnqueuedAt     time.Time `json:"enqueuedAt"`
}

// Producer is the enqueue side handed to the order workflow.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
}

type Queue interface {
	Producer
	// Dequeue claims the next due job and returns nil when none is due.
	// Job.Attempt is the 1-based delivery number of this claim.
	Dequeue(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	// Nack records a failed delivery. The job is retried after a linear
	// backoff, or dead-lettered once MaxAttempts deliveries failed.
	Nack(ctx context.Context, job *Job, cause error) (dead bool, err error)
}

type Policy struct {
	MaxAttempts       int
	RetryBackoff      time.Duration
	VisibilityTimeout time.Duration
}

func PolicyFromConfig(cfg config.Queue) Policy {
	return Policy{
		MaxAttempts:       cfg.MaxAttempts,
		RetryBackoff:      cfg.RetryBackoff,
		VisibilityTimeout: cfg.VisibilityTimeout,
	}
}

func (p Policy) backoff(attempt int) time.Duration {
	return time.Duration(attempt) * p.RetryBackoff
}

func (p Policy) exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
