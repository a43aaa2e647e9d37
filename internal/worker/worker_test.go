package worker

import (
	"errors"
	"testing"

	"eventcrawl/internal/ingest"
	"eventcrawl/internal/queue"
)

func TestQueueFor(t *testing.T) {
	cases := map[string]string{
		"crawl":     queue.QueueCrawl,
		"classify":  queue.QueueClassify,
		"score":     queue.QueueScore,
		"geocode":   queue.QueueGeocode,
		"something": "queue:unknown",
	}
	for jobType, want := range cases {
		if got := queueFor(jobType); got != want {
			t.Errorf("queueFor(%q) = %q, want %q", jobType, got, want)
		}
	}
}

func TestPermanentErrorUnwraps(t *testing.T) {
	cause := errors.New("bad request")
	perr := &PermanentError{Err: cause}

	if perr.Error() != "bad request" {
		t.Errorf("Error() = %q, want %q", perr.Error(), "bad request")
	}
	if !errors.Is(perr, cause) {
		t.Error("expected errors.Is to unwrap to cause")
	}
}

func TestCountersOutcome(t *testing.T) {
	cases := []struct {
		name string
		c    Counters
		want ingest.RunStatus
	}{
		{"all success", Counters{Created: 2, Updated: 1}, ingest.RunSuccess},
		{"some errors", Counters{Created: 1, Error: 1}, ingest.RunPartial},
		{"all errors", Counters{Error: 3}, ingest.RunFailed},
		{"nothing happened", Counters{}, ingest.RunSuccess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.c.Outcome(); got != tc.want {
				t.Errorf("Outcome() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCountersEventsFound(t *testing.T) {
	c := Counters{Created: 2, Updated: 1, Duplicate: 3, Error: 1}
	if got := c.EventsFound(); got != 7 {
		t.Errorf("EventsFound() = %d, want 7", got)
	}
}
