package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// claimScript returns expired leases to the ready set, then moves the
// oldest due job into the processing set and bumps its attempt counter.
//
// KEYS: ready, processing, attempts. ARGV: now (ms), lease deadline (ms).
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('ZADD', KEYS[1], ARGV[1], id)
end
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #due == 0 then
	return false
end
local id = due[1]
redis.call('ZREM', KEYS[1], id)
redis.call('ZADD', KEYS[2], ARGV[2], id)
local attempt = redis.call('HINCRBY', KEYS[3], id, 1)
return {id, attempt}
`)

// errUnreadableJob marks a claimed id whose payload is gone or undecodable.
// Redelivering it can never succeed.
var errUnreadableJob = errors.New("unreadable job payload")

// RedisQueue keeps job payloads in a hash and schedules ids in two sorted
// sets scored by due time (ready) and lease deadline (processing).
// Exhausted jobs are pushed onto a dead list.
type RedisQueue struct {
	client      *redis.Client
	serviceName string
	policy      Policy
	now         func() time.Time
}

func NewRedisQueue(client *redis.Client, serviceName string, policy Policy) *RedisQueue {
	return &RedisQueue{
		client:      client,
		serviceName: serviceName,
		policy:      policy,
		now:         time.Now,
	}
}

func (q *RedisQueue) key(name string) string {
	return fmt.Sprintf("%s:notifications:%s", q.serviceName, name)
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := q.now()
	job.EnqueuedAt = now
	job.Attempt = 0

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.key("jobs"), job.ID, payload)
		pipe.ZAdd(ctx, q.key("ready"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}

	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		now := q.now()
		res, err := claimScript.Run(ctx, q.client,
			[]string{q.key("ready"), q.key("processing"), q.key("attempts")},
			now.UnixMilli(), now.Add(q.policy.VisibilityTimeout).UnixMilli(),
		).Slice()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("claim job: unexpected script reply %v", res)
		}

		id, _ := res[0].(string)
		attempt, _ := res[1].(int64)

		job, err := q.load(ctx, id)
		if errors.Is(err, errUnreadableJob) {
			if err := q.deadLetter(ctx, &Job{ID: id}, err.Error()); err != nil {
				return nil, err
			}
			log.WithError(err).WithField("job_id", id).Error("notification job dead-lettered, payload unreadable")
			continue
		}
		if err != nil {
			return nil, err
		}
		job.Attempt = int(attempt)

		if job.Attempt > q.policy.MaxAttempts {
			if err := q.deadLetter(ctx, job, "lease expired after final attempt"); err != nil {
				return nil, err
			}
			log.WithFields(log.Fields{"job_id": job.ID, "attempt": job.Attempt}).Warn("notification job dead-lettered after lease expiry")
			continue
		}

		return job, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("processing"), job.ID)
		pipe.HDel(ctx, q.key("jobs"), job.ID)
		pipe.HDel(ctx, q.key("attempts"), job.ID)
		pipe.HDel(ctx, q.key("errors"), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ack job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, job *Job, cause error) (bool, error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}

	if q.policy.exhausted(job.Attempt) {
		return true, q.deadLetter(ctx, job, reason)
	}

	due := q.now().Add(q.policy.backoff(job.Attempt))
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("processing"), job.ID)
		pipe.ZAdd(ctx, q.key("ready"), redis.Z{Score: float64(due.UnixMilli()), Member: job.ID})
		pipe.HSet(ctx, q.key("errors"), job.ID, reason)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("reschedule job %s: %w", job.ID, err)
	}

	return false, nil
}

// DeadLetters lists dead-lettered job ids, most recent first.
func (q *RedisQueue) DeadLetters(ctx context.Context) ([]string, error) {
	return q.client.LRange(ctx, q.key("dead"), 0, -1).Result()
}

func (q *RedisQueue) deadLetter(ctx context.Context, job *Job, reason string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("processing"), job.ID)
		pipe.LPush(ctx, q.key("dead"), job.ID)
		pipe.HSet(ctx, q.key("errors"), job.ID, reason)
		return nil
	})
	if err != nil {
		return fmt.Errorf("dead-letter job %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (*Job, error) {
	payload, err := q.client.HGet(ctx, q.key("jobs"), id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load job %s: %w: missing", id, errUnreadableJob)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w: %v", id, errUnreadableJob, err)
	}
	return &job, nil
}
