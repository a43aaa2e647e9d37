// Package worker implements the job-queue consumer (§4.14): one consumer
// goroutine per registered queue dequeuing jobs, which then fan out into a
// shared errgroup.Group bounded to MaxConcurrentJobs so the whole process
// never runs more than that many handlers at once regardless of how many
// queues are busy, grounded on
// original_source/ai-worker/src/queue/worker.py's CrawlWorker and its
// `for job in dequeue(): handle(job)` loop, and on
// jmylchreest-refyne-api/api/internal/worker/worker.go's channel-based
// consumer-goroutine-per-queue shape.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"eventcrawl/internal/extract"
	"eventcrawl/internal/fetch"
	"eventcrawl/internal/ingest"
	"eventcrawl/internal/metrics"
	"eventcrawl/internal/queue"
)

// Handler processes one dequeued job's payload and returns the result map
// to store with the job on success. An error fails the job (retried per
// §4.13's Fail semantics unless the handler asks otherwise via PermanentError).
type Handler func(ctx context.Context, job *queue.Job) (map[string]any, error)

// PermanentError marks an error as not worth retrying (validation errors,
// unknown job types, SSRF rejections), matching §7's "surfaced as a typed
// failure ... never retried" validation-error class.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Worker consumes jobs from one or more queues and dispatches them to
// registered handlers.
type Worker struct {
	q                 *queue.Queue
	handlers          map[string]Handler
	pollInterval      time.Duration
	maxConcurrentJobs int

	mu   sync.Mutex
	stop chan struct{}
}

// New builds a Worker bound to q. Call Register for each job type before
// Run. maxConcurrentJobs<=0 defaults to 4, matching
// config.Config.WorkerMaxConcurrentJob's default.
func New(q *queue.Queue, pollInterval time.Duration, maxConcurrentJobs int) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if maxConcurrentJobs <= 0 {
		maxConcurrentJobs = 4
	}
	return &Worker{
		q:                 q,
		handlers:          map[string]Handler{},
		pollInterval:      pollInterval,
		maxConcurrentJobs: maxConcurrentJobs,
		stop:              make(chan struct{}),
	}
}

// Register binds jobType to handler.
func (w *Worker) Register(jobType string, handler Handler) {
	w.handlers[jobType] = handler
}

// Run starts one consumer goroutine per queue name, each submitting
// dequeued jobs into a shared errgroup.Group capped at maxConcurrentJobs,
// and blocks until every consumer has exited (ctx canceled or Stop called)
// and every submitted job has finished, matching §5's cancellation
// contract. A plain errgroup (no WithContext) is used deliberately: one
// queue's dequeue error, or one job's handler error, must not cancel the
// others.
func (w *Worker) Run(ctx context.Context, queueNames ...string) {
	var jobs errgroup.Group
	jobs.SetLimit(w.maxConcurrentJobs)

	var consumers errgroup.Group
	for _, name := range queueNames {
		name := name
		consumers.Go(func() error {
			w.consume(ctx, name, &jobs)
			return nil
		})
	}
	_ = consumers.Wait()
	_ = jobs.Wait()
}

// Stop signals every consumer to exit after its current dequeue returns.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
}

// consume dequeues from queueName until ctx is canceled or Stop is called,
// submitting each job to jobs.Go; Go blocks once maxConcurrentJobs handlers
// are already in flight, which is what bounds the whole process's
// concurrent job handling instead of just this one queue's.
func (w *Worker) consume(ctx context.Context, queueName string, jobs *errgroup.Group) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		default:
		}

		job, err := w.q.Dequeue(ctx, queueName, w.pollInterval)
		if err != nil {
			slog.Error("dequeue failed", slog.String("queue", queueName), slog.String("error", err.Error()))
			continue
		}
		if job == nil {
			continue
		}

		job := job
		jobs.Go(func() error {
			w.handle(ctx, job)
			return nil
		})
	}
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) {
	start := time.Now()
	queueName := queueFor(job.Type)

	handler, ok := w.handlers[job.Type]
	if !ok {
		slog.Error("unknown job type, failing without retry", slog.String("job_id", job.ID), slog.String("type", job.Type))
		_ = w.q.Fail(ctx, job, fmt.Sprintf("unknown job type %q", job.Type), false)
		metrics.JobsCompletedTotal.WithLabelValues(queueName, "failed").Inc()
		return
	}

	result, err := handler(ctx, job)
	metrics.JobDuration.WithLabelValues(queueName).Observe(time.Since(start).Seconds())

	if err != nil {
		var permErr *PermanentError
		permanent := errors.As(err, &permErr)
		if permanent {
			err = permErr.Err
		}
		if cerr := w.q.Fail(ctx, job, err.Error(), !permanent); cerr != nil {
			slog.Error("fail job failed", slog.String("job_id", job.ID), slog.String("error", cerr.Error()))
		}
		metrics.JobsCompletedTotal.WithLabelValues(queueName, "failed").Inc()
		return
	}

	if cerr := w.q.Complete(ctx, job, result); cerr != nil {
		slog.Error("complete job failed", slog.String("job_id", job.ID), slog.String("error", cerr.Error()))
	}
	metrics.JobsCompletedTotal.WithLabelValues(queueName, "success").Inc()
}

func queueFor(jobType string) string {
	switch jobType {
	case "crawl":
		return queue.QueueCrawl
	case "classify":
		return queue.QueueClassify
	case "score":
		return queue.QueueScore
	case "geocode":
		return queue.QueueGeocode
	default:
		return "queue:unknown"
	}
}

// Deps bundles the shared, process-lifetime collaborators a crawl handler
// needs: one PoliteClient (and so one per-domain rate limiter and robots
// cache) and one extraction Pipeline reused across every job, matching
// §5's "no ambient singletons beyond the job queue and cost counter" rule
// by having the caller construct and inject these explicitly.
type Deps struct {
	Client        *fetch.PoliteClient
	Pipeline      *extract.Pipeline
	Ingest        *ingest.Client
	MaxDeepFetches int
}

// Counters tallies a crawl job's per-event outcomes, matching §4.14's
// `{created, updated, duplicate, error}` accumulator.
type Counters struct {
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Duplicate int `json:"duplicate"`
	Error     int `json:"error"`
}

// Outcome classifies a crawl job's overall result for the ingest-run
// status callback, matching §7's status=partial/failed rules.
func (c Counters) Outcome() ingest.RunStatus {
	switch {
	case c.Created+c.Updated+c.Duplicate == 0 && c.Error > 0:
		return ingest.RunFailed
	case c.Error > 0:
		return ingest.RunPartial
	default:
		return ingest.RunSuccess
	}
}

// EventsFound is the total number of candidates processed, matching the
// ingest-run update's events_found field.
func (c Counters) EventsFound() int {
	return c.Created + c.Updated + c.Duplicate + c.Error
}
