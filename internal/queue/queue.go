// Package queue implements the Redis-backed job queue (§4.13): a
// priority-ordered, retryable work queue used to hand crawl/classify/score
// jobs from the HTTP API to the worker pool, grounded on
// original_source/ai-worker/src/queue/job_queue.py's JobQueue.
package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue names, matching job_queue.py's QUEUE_* constants.
const (
	QueueCrawl    = "queue:crawl"
	QueueClassify = "queue:classify"
	QueueScore    = "queue:score"
	QueueGeocode  = "queue:geocode"
)

const (
	jobStatusPrefix    = "job:"
	jobResultPrefix    = "result:"
	dlqKey             = "queue:dlq"
	statsKey           = "pipeline:stats:daily"
	statsTTL           = 48 * time.Hour
	jobTTL             = 24 * time.Hour
	resultTTL          = time.Hour
	defaultMaxAttempts = 3
)

// Status is a Job's lifecycle state, matching JobStatus.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Job is a unit of work in the queue, matching the Job pydantic model.
type Job struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Payload     map[string]any `json:"payload"`
	Status      Status         `json:"status"`
	CreatedAt   string         `json:"created_at"`
	StartedAt   string         `json:"started_at,omitempty"`
	FinishedAt  string         `json:"finished_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
}

// Queue is a Redis-backed job queue. Callers share one Queue (and so one
// *redis.Client) across every producer and consumer goroutine.
type Queue struct {
	rdb *redis.Client
}

// New wraps an already-connected *redis.Client.
func New(rdb *redis.Client) *Queue {
	return &Queue{rdb: rdb}
}

// Enqueue adds a job to queueName, returning the created Job. priority
// ranks higher values first; delay defers visibility, matching enqueue's
// `score = -priority + (now + delay)` sorted-set ranking.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload map[string]any, queueName string, priority int, delay time.Duration) (*Job, error) {
	jobID, err := newJobID(jobType)
	if err != nil {
		return nil, fmt.Errorf("generate job id: %w", err)
	}

	job := &Job{
		ID:          jobID,
		Type:        jobType,
		Payload:     payload,
		Status:      StatusQueued,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
		MaxAttempts: defaultMaxAttempts,
	}

	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}

	score := float64(-priority) + float64(time.Now().UTC().Add(delay).Unix())
	if err := q.rdb.ZAdd(ctx, queueName, redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
		return nil, fmt.Errorf("zadd %s: %w", queueName, err)
	}

	slog.Info("enqueued job", slog.String("job_id", job.ID), slog.String("queue", queueName))
	return job, nil
}

// Dequeue blocks up to timeout for the next job on queueName (lowest
// score = highest priority, oldest), marking it running and incrementing
// its attempt count. Returns nil, nil when nothing is available within
// timeout, matching dequeue's BZPOPMIN-based pop.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.rdb.BZPopMin(ctx, timeout, queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bzpopmin %s: %w", queueName, err)
	}

	jobID, ok := result.Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected queue member type %T", result.Member)
	}

	job, err := q.getJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		slog.Warn("job not found in storage", slog.String("job_id", jobID))
		return nil, nil
	}

	job.Status = StatusRunning
	job.StartedAt = time.Now().UTC().Format(time.RFC3339Nano)
	job.Attempts++

	if err := q.storeJob(ctx, job); err != nil {
		return nil, err
	}

	slog.Info("dequeued job", slog.String("job_id", job.ID), slog.String("queue", queueName))
	return job, nil
}

// Complete marks job as successful and stores its result with a 1h TTL for
// quick access, matching complete().
func (q *Queue) Complete(ctx context.Context, job *Job, result map[string]any) error {
	job.Status = StatusSuccess
	job.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)
	job.Result = result

	if err := q.storeJob(ctx, job); err != nil {
		return err
	}

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if err := q.rdb.Set(ctx, jobResultPrefix+job.ID, data, resultTTL).Err(); err != nil {
			return fmt.Errorf("store result: %w", err)
		}
	}

	slog.Info("job completed", slog.String("job_id", job.ID))
	return nil
}

// Fail marks job as failed. When retry is true and attempts remain, it is
// re-queued with exponential backoff (60s, 120s, 240s, ...); otherwise it
// is marked permanently failed, matching fail().
func (q *Queue) Fail(ctx context.Context, job *Job, errMsg string, retry bool) error {
	job.Error = errMsg
	job.FinishedAt = time.Now().UTC().Format(time.RFC3339Nano)

	if retry && job.Attempts < job.MaxAttempts {
		delay := time.Duration(60*(1<<uint(job.Attempts-1))) * time.Second
		job.Status = StatusQueued

		if err := q.storeJob(ctx, job); err != nil {
			return err
		}

		queueName := queueForType(job.Type)
		score := float64(time.Now().UTC().Add(delay).Unix())
		if err := q.rdb.ZAdd(ctx, queueName, redis.Z{Score: score, Member: job.ID}).Err(); err != nil {
			return fmt.Errorf("requeue %s: %w", job.ID, err)
		}

		slog.Warn("job failed, retrying",
			slog.String("job_id", job.ID), slog.Int("attempt", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts), slog.Duration("delay", delay))
		return nil
	}

	job.Status = StatusFailed
	if err := q.storeJob(ctx, job); err != nil {
		return err
	}
	if err := q.rdb.SAdd(ctx, dlqKey, job.ID).Err(); err != nil {
		return fmt.Errorf("add %s to dlq: %w", job.ID, err)
	}
	slog.Error("job failed permanently", slog.String("job_id", job.ID), slog.String("error", errMsg))
	return nil
}

// GetStatus returns the current Job record, or nil if job_id is unknown or
// has expired.
func (q *Queue) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	return q.getJob(ctx, jobID)
}

// GetResult returns a completed job's stored result, or nil if absent.
func (q *Queue) GetResult(ctx context.Context, jobID string) (map[string]any, error) {
	data, err := q.rdb.Get(ctx, jobResultPrefix+jobID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", jobID, err)
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result %s: %w", jobID, err)
	}
	return result, nil
}

// GetQueueLength reports how many jobs are currently pending in queueName.
func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.rdb.ZCard(ctx, queueName).Result()
}

// GetDLQCount reports how many jobs have terminally failed and landed in
// the dead-letter set.
func (q *Queue) GetDLQCount(ctx context.Context) (int64, error) {
	return q.rdb.SCard(ctx, dlqKey).Result()
}

// IncrStat increments field in the daily pipeline-stats hash by delta,
// refreshing its 48h TTL, matching the `pipeline:stats:daily` convention.
func (q *Queue) IncrStat(ctx context.Context, field string, delta int64) error {
	if err := q.rdb.HIncrBy(ctx, statsKey, field, delta).Err(); err != nil {
		return fmt.Errorf("incr stat %s: %w", field, err)
	}
	return q.rdb.Expire(ctx, statsKey, statsTTL).Err()
}

func (q *Queue) storeJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	if err := q.rdb.Set(ctx, jobStatusPrefix+job.ID, data, jobTTL).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Queue) getJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.rdb.Get(ctx, jobStatusPrefix+jobID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

func newJobID(jobType string) (string, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%s", jobType, time.Now().UTC().Format("20060102150405"), hex.EncodeToString(buf)), nil
}

// queueForType maps a job's type to its home queue on retry, matching
// _get_queue_for_type's map.
func queueForType(jobType string) string {
	switch jobType {
	case "crawl":
		return QueueCrawl
	case "classify":
		return QueueClassify
	case "score":
		return QueueScore
	case "geocode":
		return QueueGeocode
	default:
		return QueueCrawl
	}
}
