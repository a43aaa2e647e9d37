package metrics

import (
	"encoding/json"
	"testing"
	"time"
)

func TestStatusClass(t *testing.T) {
	cases := map[int]string{
		200: "2xx",
		201: "2xx",
		301: "3xx",
		404: "4xx",
		500: "5xx",
		503: "5xx",
	}
	for status, want := range cases {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestRecordRequestDoesNotPanic(t *testing.T) {
	RecordRequest("GET", "/healthz", 200, 5*time.Millisecond)
	RecordRequest("POST", "/crawl/trigger", 500, 2*time.Second)
}

func TestSnapshotJSONShape(t *testing.T) {
	var snap Snapshot
	snap.Queues.Depths = QueueDepths{Crawl: 3, Classify: 1, Score: 0, Geocode: 2}
	snap.Queues.TotalPending = 6
	snap.DLQ.Count = 1
	snap.Budget.Status = "ok"
	snap.Budget.Daily = 0.42
	snap.Budget.Monthly = 10.5

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	queues, ok := decoded["queues"].(map[string]any)
	if !ok {
		t.Fatal("expected top-level 'queues' object")
	}
	if queues["total_pending"].(float64) != 6 {
		t.Errorf("queues.total_pending = %v, want 6", queues["total_pending"])
	}

	depths, ok := queues["depths"].(map[string]any)
	if !ok {
		t.Fatal("expected 'queues.depths' object")
	}
	if depths["crawl"].(float64) != 3 {
		t.Errorf("queues.depths.crawl = %v, want 3", depths["crawl"])
	}

	dlq, ok := decoded["dlq"].(map[string]any)
	if !ok {
		t.Fatal("expected top-level 'dlq' object")
	}
	if dlq["count"].(float64) != 1 {
		t.Errorf("dlq.count = %v, want 1", dlq["count"])
	}

	budget, ok := decoded["budget"].(map[string]any)
	if !ok {
		t.Fatal("expected top-level 'budget' object")
	}
	if budget["status"] != "ok" {
		t.Errorf("budget.status = %v, want ok", budget["status"])
	}
}
