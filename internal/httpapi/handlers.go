package httpapi

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"eventcrawl/internal/event"
	"eventcrawl/internal/extract"
	"eventcrawl/internal/fetch"
	"eventcrawl/internal/queue"
	"eventcrawl/internal/sniff"
	"eventcrawl/internal/worker"
)

// postCrawlTrigger implements POST /crawl/trigger (§6). dry_run=true runs
// the pipeline synchronously and returns candidates in the response
// without posting to the ingest endpoint or touching the queue. Otherwise
// it enqueues a `crawl` job and returns immediately; if the queue backend
// is unreachable, it falls back to invoking the same handler inline in a
// background goroutine so the caller never blocks on queue availability,
// matching §4.14's synchronous fallback.
func (s *Server) postCrawlTrigger(c *fiber.Ctx) error {
	var req CrawlTriggerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "BAD_REQUEST_INVALID_JSON", Error: "malformed JSON body"})
	}
	if req.SourceURL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "BAD_REQUEST", Error: "missing required field 'source_url'"})
	}
	if req.SourceType != "rss" && req.SourceType != "ics" && req.SourceType != "scraper" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "BAD_REQUEST", Error: "source_type must be one of rss, ics, scraper"})
	}

	workerReq := worker.CrawlRequest{
		SourceID:        req.SourceID,
		SourceURL:       req.SourceURL,
		SourceType:      req.SourceType,
		ScraperConfig:   req.ScraperConfig,
		Force:           req.Force,
		DryRun:          req.DryRun,
		EnableAI:        req.EnableAI,
		FetchEventPages: req.FetchEventPages,
		IngestRunID:     req.IngestRunID,
	}

	if req.DryRun {
		outcome, err := s.crawl.Process(c.Context(), workerReq)
		if err != nil {
			return c.Status(fiber.StatusOK).JSON(CrawlTriggerResponse{Status: "failed", Message: err.Error()})
		}
		return c.JSON(CrawlTriggerResponse{
			Status:     "success",
			Candidates: outcome.Candidates,
			Counters: map[string]int{
				"created":   outcome.Counters.Created,
				"updated":   outcome.Counters.Updated,
				"duplicate": outcome.Counters.Duplicate,
				"error":     outcome.Counters.Error,
			},
		})
	}

	payload := map[string]any{
		"source_id":         req.SourceID,
		"source_url":        req.SourceURL,
		"source_type":       req.SourceType,
		"force":             req.Force,
		"enable_ai":         req.EnableAI,
		"ingest_run_id":     req.IngestRunID,
		"fetch_event_pages": req.FetchEventPages,
	}
	if req.ScraperConfig != nil {
		payload["scraper_config"] = req.ScraperConfig
	}

	job, err := s.queue.Enqueue(c.Context(), "crawl", payload, queue.QueueCrawl, 0, 0)
	if err != nil {
		s.logger.Warn("enqueue failed, running crawl inline", "error", err.Error(), "source_id", req.SourceID)
		go func() {
			bg, cancel := s.bgContext()
			defer cancel()
			if _, procErr := s.crawl.Process(bg, workerReq); procErr != nil {
				s.logger.Error("fallback crawl failed", "source_id", req.SourceID, "error", procErr.Error())
			}
		}()
		return c.JSON(CrawlTriggerResponse{
			SourceID: req.SourceID,
			Status:   "queued",
			Message:  "queue backend unreachable, running in background",
		})
	}

	return c.JSON(CrawlTriggerResponse{
		JobID:    job.ID,
		SourceID: req.SourceID,
		Status:   string(job.Status),
		Message:  "job accepted",
	})
}

// getCrawlStatus implements GET /crawl/status/{job_id}.
func (s *Server) getCrawlStatus(c *fiber.Ctx) error {
	jobID := c.Params("job_id")
	job, err := s.queue.GetStatus(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Code: "STATUS_LOOKUP_FAILED", Error: err.Error()})
	}
	if job == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Code: "NOT_FOUND", Error: "job not found or expired"})
	}

	resp := CrawlStatusResponse{
		JobID:      job.ID,
		Status:     string(job.Status),
		StartedAt:  job.StartedAt,
		FinishedAt: job.FinishedAt,
		Error:      job.Error,
	}
	if job.Result != nil {
		if v, ok := job.Result["events_found"].(float64); ok {
			resp.EventsFound = int(v)
		}
		if v, ok := job.Result["events_new"].(float64); ok {
			resp.EventsNew = int(v)
		}
		if v, ok := job.Result["source_id"].(string); ok {
			resp.SourceID = v
		}
	}
	return c.JSON(resp)
}

// postCrawlDetect implements POST /crawl/detect (§6): fetches url, sniffs
// its content type, and recommends which source_type a caller should
// configure.
func (s *Server) postCrawlDetect(c *fiber.Ctx) error {
	var req DetectRequest
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Code: "BAD_REQUEST", Error: "missing required field 'url'"})
	}

	page, err := s.client.Get(c.Context(), req.URL, fetch.Options{RespectRobots: true})
	if err != nil {
		return c.Status(fiber.StatusOK).JSON(DetectResponse{DetectedType: "unknown", Recommendation: "unknown"})
	}
	if page == nil {
		return c.JSON(DetectResponse{DetectedType: "unknown", Recommendation: "unknown"})
	}

	snippet := page.HTML
	if len(snippet) > sniff.SnippetSize {
		snippet = snippet[:sniff.SnippetSize]
	}
	detected := sniff.Detect("", snippet)

	resp := DetectResponse{DetectedType: string(detected)}

	switch detected {
	case sniff.ContentRSS:
		resp.RSSURL = req.URL
		resp.Recommendation = "rss"
	case sniff.ContentICS:
		resp.ICSURL = req.URL
		resp.Recommendation = "ics"
	case sniff.ContentHTML:
		if page.Doc != nil {
			structured := extract.NewStructuredStage()
			jsonld := structured.ExtractJSONLD(page.Doc)
			micro := structured.ExtractMicrodata(page.Doc)
			resp.HasJSONLDEvents = len(jsonld) > 0
			resp.HasMicrodataEvents = len(micro) > 0

			if len(jsonld) > 0 {
				resp.SampleEvents = append(resp.SampleEvents, extract.ToExtractedEvent(jsonld, req.URL))
			} else if len(micro) > 0 {
				resp.SampleEvents = append(resp.SampleEvents, extract.ToExtractedEvent(micro, req.URL))
			}
		}
		if sitemapPage, err := s.client.Get(c.Context(), strings.TrimSuffix(req.URL, "/")+"/sitemap.xml", fetch.Options{RespectRobots: true}); err == nil && sitemapPage != nil {
			resp.SitemapURL = strings.TrimSuffix(req.URL, "/") + "/sitemap.xml"
		}
		resp.Recommendation = "scraper"
	default:
		resp.Recommendation = "unknown"
	}

	return c.JSON(resp)
}

// postSingleEvent implements POST /crawl/single-event (§6): fetches one
// page, runs the full extraction pipeline, and returns per-field
// provenance plus suggested selectors for the fields it found.
func (s *Server) postSingleEvent(c *fiber.Ctx) error {
	var req SingleEventRequest
	if err := c.BodyParser(&req); err != nil || req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(SingleEventResponse{Success: false, Error: "missing required field 'url'"})
	}

	page, err := s.client.Get(c.Context(), req.URL, fetch.Options{RespectRobots: true, Timeout: 15 * time.Second})
	if err != nil {
		return c.JSON(SingleEventResponse{Success: false, Error: err.Error()})
	}
	if page == nil || page.Doc == nil {
		return c.JSON(SingleEventResponse{Success: false, Error: "page unavailable (robots disallow or non-2xx)"})
	}

	selectors := req.DetailPageConfig
	if selectors == nil && req.SourceID != "" {
		if entry, ok := s.sources.Get(req.SourceID); ok {
			selectors = entry.Detail
		}
	}

	fieldsNeeded := req.FieldsNeeded
	if len(fieldsNeeded) == 0 {
		fieldsNeeded = extract.DefaultFields
	}

	results, method, err := s.pipeline.Run(c.Context(), page.Doc, selectors, nil, req.URL, fieldsNeeded, req.UseAI)
	if err != nil {
		return c.JSON(SingleEventResponse{Success: false, Error: err.Error()})
	}

	fieldsFound := map[string]string{}
	provenance := map[string]event.ExtractionResult{}
	var missing []string
	knownValues := map[string]string{}

	for _, field := range fieldsNeeded {
		r, ok := results[field]
		if !ok || r.Value == "" {
			missing = append(missing, field)
			continue
		}
		fieldsFound[field] = r.Value
		provenance[field] = r
		knownValues[field] = r.Value
	}

	resp := SingleEventResponse{
		Success:          len(fieldsFound) > 0,
		FieldsFound:      fieldsFound,
		FieldsMissing:    missing,
		ExtractionMethod: method,
		FieldProvenance:  provenance,
	}

	if len(knownValues) > 0 {
		resp.SuggestedSelectors = extract.NewSuggester().Suggest(page.Doc, knownValues)
	}

	return c.JSON(resp)
}
