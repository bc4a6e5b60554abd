package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"ecommerce-order-service/internal/client"
	"ecommerce-order-service/internal/config"
	"ecommerce-order-service/internal/model"
	"ecommerce-order-service/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := client.InitDatabase(config.Database{
		Driver: "sqlite",
		URL:    filepath.Join(t.TempDir(), "queue.db") + "?_busy_timeout=5000&_txlock=immediate",
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

var testPolicy = Policy{
	MaxAttempts:       3,
	RetryBackoff:      10 * time.Second,
	VisibilityTimeout: time.Minute,
}

func newTestDBQueue(t *testing.T) (*DBQueue, repository.NotificationJobRepository, *fakeClock) {
	repo := repository.NewNotificationJobRepository(newTestDB(t))
	q := NewDBQueue(repo, testPolicy)
	clock := newFakeClock()
	q.now = clock.now
	return q, repo, clock
}

func TestDBQueueDeliversAndAcks(t *testing.T) {
	q, repo, _ := newTestDBQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{
		ID:             "job-1",
		OrderID:        "order-1",
		RecipientEmail: "buyer@example.com",
		Template:       TemplateOrderConfirmation,
	}))

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "order-1", job.OrderID)
	assert.Equal(t, "buyer@example.com", job.RecipientEmail)
	assert.Equal(t, 1, job.Attempt)

	again, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "a leased job must not be handed out twice")

	require.NoError(t, q.Ack(ctx, job))

	row, err := repo.FindByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateSucceeded, row.State)
}

func TestDBQueueRetriesWithBackoffThenDeadLetters(t *testing.T) {
	q, repo, clock := newTestDBQueue(t)
	ctx := context.Background()
	sendErr := errors.New("smtp unavailable")

	require.NoError(t, q.Enqueue(ctx, Job{ID: "job-2", OrderID: "order-2", RecipientEmail: "a@b.c", Template: TemplateOrderConfirmation}))

	for attempt := 1; attempt <= testPolicy.MaxAttempts; attempt++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d", attempt)
		assert.Equal(t, attempt, job.Attempt)

		dead, err := q.Nack(ctx, job, sendErr)
		require.NoError(t, err)
		assert.Equal(t, attempt == testPolicy.MaxAttempts, dead)

		if !dead {
			early, err := q.Dequeue(ctx)
			require.NoError(t, err)
			assert.Nil(t, early, "job must wait for its backoff")
			clock.advance(time.Duration(attempt) * testPolicy.RetryBackoff)
		}
	}

	row, err := repo.FindByID(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, model.JobStateDead, row.State)
	assert.Equal(t, "smtp unavailable", row.LastError)
	assert.Equal(t, testPolicy.MaxAttempts, row.Attempt)

	clock.advance(time.Hour)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDBQueueRedeliversExpiredLease(t *testing.T) {
	q, _, clock := newTestDBQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, Job{ID: "job-3", OrderID: "order-3", RecipientEmail: "a@b.c", Template: TemplateOrderConfirmation}))

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	clock.advance(testPolicy.VisibilityTimeout + time.Second)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempt)
}
