// Package httpapi implements the inbound HTTP surface (§6): crawl
// triggering, status, detection, single-event extraction, and metrics,
// grounded on raito's internal/http router/handler/middleware shape
// (fiber route groups, a shared-dependency-via-struct-field Server, and
// machine-code JSON error bodies) re-typed around this spec's endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"eventcrawl/internal/aicost"
	"eventcrawl/internal/extract"
	"eventcrawl/internal/fetch"
	"eventcrawl/internal/metrics"
	"eventcrawl/internal/queue"
	"eventcrawl/internal/sourceconfig"
	"eventcrawl/internal/worker"
)

// Server wires the fiber app to the pipeline's shared collaborators.
type Server struct {
	app      *fiber.App
	queue    *queue.Queue
	crawl    *worker.CrawlHandler
	sources  *sourceconfig.Registry
	client   *fetch.PoliteClient
	pipeline *extract.Pipeline
	budget   *aicost.Tracker
	logger   *slog.Logger
}

// Deps bundles the collaborators NewServer needs.
type Deps struct {
	Queue    *queue.Queue
	Crawl    *worker.CrawlHandler
	Sources  *sourceconfig.Registry
	Client   *fetch.PoliteClient
	Pipeline *extract.Pipeline
	Budget   *aicost.Tracker
	Logger   *slog.Logger
}

// NewServer builds the fiber app and registers every route from §6.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	s := &Server{
		app:      fiber.New(fiber.Config{AppName: "eventcrawl"}),
		queue:    deps.Queue,
		crawl:    deps.Crawl,
		sources:  deps.Sources,
		client:   deps.Client,
		pipeline: deps.Pipeline,
		budget:   deps.Budget,
		logger:   deps.Logger,
	}

	s.app.Use(s.requestLogMiddleware)

	s.app.Get("/healthz", s.getHealthz)
	s.app.Get("/metrics", s.getMetrics)
	s.app.Get("/metrics/prometheus", s.getMetricsPrometheus)

	crawlGroup := s.app.Group("/crawl")
	crawlGroup.Post("/trigger", s.postCrawlTrigger)
	crawlGroup.Get("/status/:job_id", s.getCrawlStatus)
	crawlGroup.Post("/detect", s.postCrawlDetect)
	crawlGroup.Post("/single-event", s.postSingleEvent)

	return s
}

// Listen starts the fiber app on addr (":8080"-style).
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the fiber app, waiting for in-flight requests
// up to ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// bgContext builds a context for the synchronous-fallback background
// crawl, detached from the triggering request's lifetime but still
// timeout-bounded so a stuck fetch cannot run forever.
func (s *Server) bgContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}

func (s *Server) requestLogMiddleware(c *fiber.Ctx) error {
	start := time.Now()

	reqID := c.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.New().String()
	}
	c.Locals("request_id", reqID)

	err := c.Next()

	latency := time.Since(start)
	status := c.Response().StatusCode()
	metrics.RecordRequest(c.Method(), c.Path(), status, latency)

	s.logger.Info("request",
		"request_id", reqID,
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"latency_ms", latency.Milliseconds())

	return err
}

// getHealthz implements a raito-style shallow/deep health check: bare
// "?deep=true" also probes the queue backend.
func (s *Server) getHealthz(c *fiber.Ctx) error {
	if c.Query("deep") != "true" {
		return c.JSON(fiber.Map{"status": "ok"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	queueStatus := "ok"
	if _, err := s.queue.GetQueueLength(ctx, queue.QueueCrawl); err != nil {
		queueStatus = "error"
	}

	status := "ok"
	if queueStatus != "ok" {
		status = "error"
	}

	return c.JSON(fiber.Map{"status": status, "queue": queueStatus})
}

// getMetrics implements GET /metrics (§6): a JSON snapshot of queue
// depths, DLQ size, and AI budget status. The usage_7d field is not
// filled in and is served as null.
func (s *Server) getMetrics(c *fiber.Ctx) error {
	ctx := c.Context()

	var snap metrics.Snapshot
	snap.Queues.Depths.Crawl, _ = s.queue.GetQueueLength(ctx, queue.QueueCrawl)
	snap.Queues.Depths.Classify, _ = s.queue.GetQueueLength(ctx, queue.QueueClassify)
	snap.Queues.Depths.Score, _ = s.queue.GetQueueLength(ctx, queue.QueueScore)
	snap.Queues.Depths.Geocode, _ = s.queue.GetQueueLength(ctx, queue.QueueGeocode)
	snap.Queues.TotalPending = snap.Queues.Depths.Crawl + snap.Queues.Depths.Classify + snap.Queues.Depths.Score + snap.Queues.Depths.Geocode

	dlq, _ := s.queue.GetDLQCount(ctx)
	snap.DLQ.Count = dlq

	if s.budget != nil {
		check := s.budget.Check()
		snap.Budget.Status = string(check.Status)
		snap.Budget.Daily = check.DailyUsedUSD
		snap.Budget.Monthly = check.MonthlyUsedUSD
	}

	return c.JSON(snap)
}

// getMetricsPrometheus implements GET /metrics/prometheus: the standard
// Prometheus exposition format, served by adapting promhttp's
// net/http.Handler onto fiber's fasthttp request via fasthttpadaptor,
// matching raito's `c.Type("text/plain"); c.SendString(metrics.Export())`
// intent but through the real client_golang exposition handler rather
// than a hand-rolled text formatter.
func (s *Server) getMetricsPrometheus(c *fiber.Ctx) error {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	handler(c.Context())
	return nil
}
