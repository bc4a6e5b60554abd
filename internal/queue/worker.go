package queue

import (
	"context"
	"sync"
	"time"

	"ecommerce-order-service/internal/metrics"

	log "github.com/sirupsen/logrus"
)

// Sender delivers one notification. Returning an error schedules a retry.
type Sender interface {
	Send(ctx context.Context, job Job) error
}

// LogSender stands in for the mail provider and only logs the message.
type LogSender struct{}

func (LogSender) Send(_ context.Context, job Job) error {
	log.WithFields(log.Fields{
		"job_id":    job.ID,
		"order_id":  job.OrderID,
		"recipient": job.RecipientEmail,
		"template":  job.Template,
		"attempt":   job.Attempt,
	}).Info("notification sent")
	return nil
}

// Worker polls the queue and fans claimed jobs out to a fixed pool.
type Worker struct {
	queue    Queue
	sender   Sender
	workers  int
	interval time.Duration
}

func NewWorker(queue Queue, sender Sender, workers int, interval time.Duration) *Worker {
	if workers < 1 {
		workers = 1
	}
	return &Worker{
		queue:    queue,
		sender:   sender,
		workers:  workers,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled and all workers have returned.
// A job claimed but not yet handed out at shutdown is redelivered once its
// lease expires.
func (w *Worker) Run(ctx context.Context) {
	jobs := make(chan *Job)

	var wg sync.WaitGroup
	for i := 1; i <= w.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.workerLoop(ctx, id, jobs)
		}(i)
	}

	w.dispatchLoop(ctx, jobs)
	close(jobs)
	wg.Wait()
}

func (w *Worker) dispatchLoop(ctx context.Context, jobs chan<- *Job) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.WithField("workers", w.workers).Info("notification dispatcher started")
	for {
		select {
		case <-ctx.Done():
			log.Info("notification dispatcher stopping")
			return
		case <-ticker.C:
			for {
				job, err := w.queue.Dequeue(ctx)
				if err != nil {
					if ctx.Err() == nil {
						log.WithError(err).Error("dequeue notification job")
					}
					break
				}
				if job == nil {
					break
				}

				select {
				case jobs <- job:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (w *Worker) workerLoop(ctx context.Context, id int, jobs <-chan *Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.Process(ctx, job)
			log.WithFields(log.Fields{"worker": id, "job_id": job.ID}).Debug("notification job handled")
		}
	}
}

// Process sends one claimed job and settles it with Ack or Nack.
func (w *Worker) Process(ctx context.Context, job *Job) {
	logger := log.WithFields(log.Fields{
		"job_id":   job.ID,
		"order_id": job.OrderID,
		"attempt":  job.Attempt,
	})

	sendErr := w.sender.Send(ctx, *job)
	if sendErr == nil {
		if err := w.queue.Ack(ctx, job); err != nil {
			logger.WithError(err).Error("ack notification job")
			return
		}
		metrics.NotificationJobsTotal.WithLabelValues("succeeded").Inc()
		return
	}

	dead, err := w.queue.Nack(ctx, job, sendErr)
	if err != nil {
		logger.WithError(err).Error("nack notification job")
		return
	}

	if dead {
		metrics.NotificationJobsTotal.WithLabelValues("dead").Inc()
		logger.WithError(sendErr).Error("notification job dead-lettered")
		return
	}

	metrics.NotificationJobsTotal.WithLabelValues("retried").Inc()
	logger.WithError(sendErr).Warn("notification send failed, retry scheduled")
}
