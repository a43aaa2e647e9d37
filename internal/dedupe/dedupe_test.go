package dedupe

import "testing"

func TestDeduperKeepsFirstOccurrence(t *testing.T) {
	d := New(func(s string) string { return s })

	out := d.Dedupe([]string{"a", "b", "a", "c", "b", "b"})

	if got := len(out); got != 3 {
		t.Fatalf("expected 3 unique items, got %d (%v)", got, out)
	}
	if out[0] != "a" || out[1] != "b" || out[2] != "c" {
		t.Fatalf("expected first-occurrence order [a b c], got %v", out)
	}

	stats := d.Stats()
	if stats.TotalInput != 6 {
		t.Errorf("TotalInput = %d, want 6", stats.TotalInput)
	}
	if stats.UniqueOutput != 3 {
		t.Errorf("UniqueOutput = %d, want 3", stats.UniqueOutput)
	}
	if stats.DuplicatesRemoved != 3 {
		t.Errorf("DuplicatesRemoved = %d, want 3", stats.DuplicatesRemoved)
	}
}

func TestDeduperAccumulatesAcrossBatches(t *testing.T) {
	d := New(func(s string) string { return s })

	d.Dedupe([]string{"a", "b"})
	d.Dedupe([]string{"b", "c"})

	stats := d.Stats()
	if stats.TotalInput != 4 {
		t.Errorf("TotalInput = %d, want 4", stats.TotalInput)
	}
	if stats.UniqueOutput != 3 {
		t.Errorf("UniqueOutput = %d, want 3", stats.UniqueOutput)
	}
	if stats.DuplicatesRemoved != 1 {
		t.Errorf("DuplicatesRemoved = %d, want 1", stats.DuplicatesRemoved)
	}
}

func TestDeduperSeenAndMark(t *testing.T) {
	d := New(func(s string) string { return s })

	if d.Seen("x") {
		t.Fatal("expected x not seen initially")
	}
	d.Mark("x")
	if !d.Seen("x") {
		t.Fatal("expected x seen after Mark")
	}
}

type item struct {
	title string
	place string
}

func TestDeduperWithStructFingerprint(t *testing.T) {
	d := New(func(it item) string { return it.title + "|" + it.place })

	items := []item{
		{title: "Konzert", place: "Jena"},
		{title: "Konzert", place: "Jena"},
		{title: "Konzert", place: "Weimar"},
	}

	out := d.Dedupe(items)
	if len(out) != 2 {
		t.Fatalf("expected 2 unique items, got %d", len(out))
	}
}
