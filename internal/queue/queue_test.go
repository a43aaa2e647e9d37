package queue

import (
	"regexp"
	"testing"
)

func TestQueueForType(t *testing.T) {
	cases := map[string]string{
		"crawl":    QueueCrawl,
		"classify": QueueClassify,
		"score":    QueueScore,
		"unknown":  QueueCrawl,
	}
	for jobType, want := range cases {
		if got := queueForType(jobType); got != want {
			t.Errorf("queueForType(%q) = %q, want %q", jobType, got, want)
		}
	}
}

var jobIDPattern = regexp.MustCompile(`^crawl_\d{14}_[0-9a-f]{8}$`)

func TestNewJobIDFormat(t *testing.T) {
	id, err := newJobID("crawl")
	if err != nil {
		t.Fatalf("newJobID error: %v", err)
	}
	if !jobIDPattern.MatchString(id) {
		t.Fatalf("job id %q does not match expected format", id)
	}
}

func TestNewJobIDIsUnique(t *testing.T) {
	a, err := newJobID("crawl")
	if err != nil {
		t.Fatal(err)
	}
	b, err := newJobID("crawl")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
