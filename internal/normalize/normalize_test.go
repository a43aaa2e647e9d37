package normalize

import (
	"testing"
	"time"

	"eventcrawl/internal/event"
)

func TestNormalizeTitleStripsHTMLAndTruncates(t *testing.T) {
	got := normalizeTitle("<b>Konzert</b>   im   Park")
	if got != "Konzert im Park" {
		t.Fatalf("got %q", got)
	}

	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789"
	}
	got = normalizeTitle(long)
	if len(got) != 200 || got[197:] != "..." {
		t.Fatalf("expected 200-char truncated title, got len=%d tail=%q", len(got), got[len(got)-3:])
	}
}

func TestSplitDescriptionShortLeavesUntouchedUnder500(t *testing.T) {
	short, long := splitDescription("Ein kurzer Text.")
	if short != "Ein kurzer Text." || long != "" {
		t.Fatalf("got short=%q long=%q", short, long)
	}
}

func TestSplitDescriptionBreaksOnPeriod(t *testing.T) {
	sentence := "Das ist ein Satz, der ziemlich lang wird und am Ende mit einem Punkt schließt. "
	text := ""
	for len(text) < 600 {
		text += sentence
	}
	short, long := splitDescription(text)
	if len(short) == 0 || long == "" {
		t.Fatal("expected both short and long set")
	}
	if short[len(short)-1] != '.' {
		t.Fatalf("expected short to end on a period, got %q", short)
	}
}

func TestExtractPriceFreeKeyword(t *testing.T) {
	ev := event.ParsedEvent{Title: "Kostenloser Workshop", Description: "Der Eintritt ist kostenlos."}
	priceType, min, _ := extractPrice(ev, nil)
	if priceType != event.PriceFree {
		t.Fatalf("expected free, got %s", priceType)
	}
	if min == nil || *min != 0 {
		t.Fatalf("expected price_min=0, got %v", min)
	}
}

func TestExtractPriceDetectsEuroInText(t *testing.T) {
	ev := event.ParsedEvent{Title: "Konzert", Description: "Tickets kosten 12,50 Euro pro Person."}
	priceType, min, _ := extractPrice(ev, nil)
	if priceType != event.PricePaid {
		t.Fatalf("expected paid, got %s", priceType)
	}
	if min == nil || *min != 12.5 {
		t.Fatalf("expected 12.5, got %v", min)
	}
}

func TestExtractPriceWholeEuroAmountIsPaid(t *testing.T) {
	ev := event.ParsedEvent{Title: "Konzert", Description: "Tickets ab 15 Euro."}
	priceType, _, _ := extractPrice(ev, nil)
	if priceType != event.PricePaid {
		t.Fatalf("expected paid for a priced event, got %s", priceType)
	}
}

func TestIsStreetAddress(t *testing.T) {
	cases := map[string]bool{
		"Karlstr. 10, 76133 Karlsruhe": true,
		"Prinz-Max-Palais":             false,
		"Schlossplatz":                 false,
		"76133 Karlsruhe":              true,
	}
	for text, want := range cases {
		if got := isStreetAddress(text); got != want {
			t.Errorf("isStreetAddress(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestExtractAgeRangeAbPattern(t *testing.T) {
	min, max := extractAgeRange(nil, "Workshop", "Geeignet ab 6 Jahren")
	if min == nil || *min != 6 {
		t.Fatalf("expected min=6, got %v", min)
	}
	if max == nil || *max != 99 {
		t.Fatalf("expected max=99, got %v", max)
	}
}

func TestExtractAgeRangeFullRange(t *testing.T) {
	min, max := extractAgeRange(nil, "Workshop", "Für Kinder von 3-6 Jahren geeignet")
	if min == nil || *min != 3 {
		t.Fatalf("expected min=3, got %v", min)
	}
	if max == nil || *max != 6 {
		t.Fatalf("expected max=6, got %v", max)
	}
}

func TestExtractTimeFromTextRange(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, berlin)
	start, end := extractTimeFromText("Das Event findet von 14 bis 16 Uhr statt.", &base)
	if start == nil || start.Hour() != 14 {
		t.Fatalf("expected start hour 14, got %v", start)
	}
	if end == nil || end.Hour() != 16 {
		t.Fatalf("expected end hour 16, got %v", end)
	}
}

func TestExtractTimeFromTextRangeRollsOverMidnight(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, berlin)
	start, end := extractTimeFromText("Party von 22 bis 1 Uhr.", &base)
	if start == nil || end == nil {
		t.Fatal("expected both start and end set")
	}
	if !end.After(*start) {
		t.Fatalf("expected end after start, got start=%v end=%v", start, end)
	}
	if end.Day() != start.Day()+1 {
		t.Fatalf("expected end to roll to the next day, got %v", end)
	}
}

func TestExtractTimeFromTextTageszeitDefaultsAndIgnoresMorgen(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, berlin)

	start, end := extractTimeFromText("Wir treffen uns morgens am Brunnen.", &base)
	if start == nil || start.Hour() != 9 {
		t.Fatalf("expected morgens -> 9:00, got %v", start)
	}
	if end != nil {
		t.Fatalf("expected no end time, got %v", end)
	}

	start, _ = extractTimeFromText("Das Event ist morgen geplant.", &base)
	if start != nil {
		t.Fatalf("expected 'morgen' (tomorrow) not to match, got %v", start)
	}
}

func TestExtractEmailFromDescription(t *testing.T) {
	got := extractEmail(nil, "Kontakt: info@example.de für Rückfragen.")
	if got != "info@example.de" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractPhoneFromDescription(t *testing.T) {
	got := extractPhone(nil, "Anmeldung unter 0721 133 4401.")
	if got == "" {
		t.Fatal("expected a phone match")
	}
}

func TestExtractRecurrenceWeekday(t *testing.T) {
	got := extractRecurrence(nil, "Der Kurs findet jeden Samstag statt.")
	if got != "jeden Samstag" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractAvailabilityStatusOrder(t *testing.T) {
	got := extractAvailabilityStatus(nil, "Die Veranstaltung ist leider abgesagt, Tickets waren ausverkauft.")
	if got != event.AvailabilityCancelled {
		t.Fatalf("expected cancelled to take priority, got %s", got)
	}
}

func TestNormalizeFullEventVenueAddressSplit(t *testing.T) {
	n := New()
	ev := event.ParsedEvent{
		Title:           "Stadtfest",
		Description:     "Ein tolles Fest für die ganze Familie, kostenlos.",
		LocationAddress: "Prinz-Max-Palais, Karlstr. 10, 76133 Karlsruhe",
		SourceURL:       "https://example.org/event",
	}

	out := n.Normalize(ev)

	if out.VenueName != "Prinz-Max-Palais" {
		t.Errorf("VenueName = %q, want Prinz-Max-Palais", out.VenueName)
	}
	if out.LocationAddress != "Karlstr. 10, 76133 Karlsruhe" {
		t.Errorf("LocationAddress = %q", out.LocationAddress)
	}
	if out.City != "Karlsruhe" {
		t.Errorf("City = %q, want Karlsruhe", out.City)
	}
	if out.PostalCode != "76133" {
		t.Errorf("PostalCode = %q, want 76133", out.PostalCode)
	}
	if out.PriceType != event.PriceFree {
		t.Errorf("PriceType = %s, want free", out.PriceType)
	}
	if out.Language != "de" {
		t.Errorf("Language = %q, want de default", out.Language)
	}
}

func TestNormalizeVenueOnlyAddressBecomesVenueName(t *testing.T) {
	n := New()
	ev := event.ParsedEvent{
		Title:           "Lesung",
		LocationAddress: "Stadtbibliothek",
	}

	out := n.Normalize(ev)

	if out.VenueName != "Stadtbibliothek" {
		t.Errorf("VenueName = %q, want Stadtbibliothek", out.VenueName)
	}
	if out.LocationAddress != "" {
		t.Errorf("LocationAddress = %q, want empty", out.LocationAddress)
	}
}

func TestExtractImagesCapsAtTenAndFiltersNonHTTP(t *testing.T) {
	raw := map[string]any{
		"image_urls": []string{
			"ftp://bad.example/1.jpg",
			"https://a.example/1.jpg", "https://a.example/2.jpg", "https://a.example/3.jpg",
			"https://a.example/4.jpg", "https://a.example/5.jpg", "https://a.example/6.jpg",
			"https://a.example/7.jpg", "https://a.example/8.jpg", "https://a.example/9.jpg",
			"https://a.example/10.jpg", "https://a.example/11.jpg",
		},
	}
	ev := event.ParsedEvent{RawData: raw}
	out := extractImages(ev, raw)
	if len(out) != 10 {
		t.Fatalf("expected 10 images, got %d", len(out))
	}
}
