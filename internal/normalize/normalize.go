// Package normalize implements the Normalizer (§4.11): it takes a
// ParsedEvent plus its RawData map and produces a flat, fully
// canonicalized NormalizedEvent, grounded on
// original_source/ai-worker/src/ingestion/normalizer.py's EventNormalizer.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventcrawl/internal/event"
)

// berlin is the fixed zone every naive datetime is localized to, matching
// EventNormalizer.TIMEZONE.
var berlin = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Normalizer turns ParsedEvents into NormalizedEvents.
type Normalizer struct{}

// New builds a Normalizer. It holds no state; one instance can be shared
// across goroutines.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize maps ev (plus its RawData, which carries fields ParsedEvent
// does not model directly, such as city/postal_code/age range) into a
// NormalizedEvent, matching EventNormalizer.normalize's field-by-field
// pipeline.
func (n *Normalizer) Normalize(ev event.ParsedEvent) event.NormalizedEvent {
	raw := ev.RawData
	if raw == nil {
		raw = map[string]any{}
	}

	title := normalizeTitle(ev.Title)

	descShort, descLong := splitDescription(ev.Description)

	startDt := ev.StartDatetime
	endDt := ev.EndDatetime

	if ev.Description != "" {
		extractedStart, extractedEnd := extractTimeFromText(ev.Description, startDt)

		if extractedStart != nil {
			if startDt == nil {
				startDt = extractedStart
			} else if startDt.Hour() == 0 && startDt.Minute() == 0 {
				combined := time.Date(startDt.Year(), startDt.Month(), startDt.Day(),
					extractedStart.Hour(), extractedStart.Minute(), 0, 0, startDt.Location())
				startDt = &combined
			}
		}

		if extractedEnd != nil {
			if endDt == nil {
				endDt = extractedEnd
			} else if endDt.Hour() == 0 && endDt.Minute() == 0 {
				combined := time.Date(endDt.Year(), endDt.Month(), endDt.Day(),
					extractedEnd.Hour(), extractedEnd.Minute(), 0, 0, endDt.Location())
				endDt = &combined
			}
		}
	}

	locationAddress := normalizeAddress(ev.LocationAddress)
	venueName := ev.LocationName
	city, postalCode := extractCityPostal(raw, locationAddress)

	if locationAddress != "" && !isStreetAddress(locationAddress) {
		if venueName == "" {
			venueName = locationAddress
			locationAddress = ""
		}
	} else if locationAddress != "" && venueName == "" {
		parts := strings.SplitN(locationAddress, ",", 2)
		if len(parts) == 2 && !isStreetAddress(strings.TrimSpace(parts[0])) {
			venueName = strings.TrimSpace(parts[0])
			locationAddress = strings.TrimSpace(parts[1])
		}
	}

	priceType, priceMin, priceMax := extractPrice(ev, raw)
	priceDetails := extractPriceDetails(raw, ev.Description)

	availabilityStatus := extractAvailabilityStatus(raw, ev.Description)
	registrationDeadline := normalizeDatetimeAny(raw["registration_deadline"])

	ageMin, ageMax := extractAgeRange(raw, title, ev.Description)

	isIndoor, isOutdoor := detectIndoorOutdoor(raw, title, ev.Description)

	language := extractLanguage(raw, ev.Description)

	capacity := safeInt(raw["capacity"])
	spotsLimited := detectSpotsLimited(raw, ev.Description)

	recurrenceRule := extractRecurrence(raw, ev.Description)

	transitStop, _ := raw["transit_stop"].(string)
	hasParking := detectParking(raw, ev.Description)

	bookingURL := normalizeURL(firstNonEmptyStr(stringField(raw, "booking_url"), stringField(raw, "url"), ev.SourceURL))
	contactEmail := extractEmail(raw, ev.Description)
	contactPhone := extractPhone(raw, ev.Description)

	imageURLs := extractImages(ev, raw)

	return event.NormalizedEvent{
		Title:                title,
		DescriptionShort:     descShort,
		DescriptionLong:      descLong,
		StartDatetime:        startDt,
		EndDatetime:          endDt,
		LocationAddress:      locationAddress,
		LocationLat:          ev.Lat,
		LocationLng:          ev.Lng,
		VenueName:            venueName,
		City:                 city,
		PostalCode:           postalCode,
		PriceType:            priceType,
		PriceMin:             priceMin,
		PriceMax:             priceMax,
		PriceDetails:         priceDetails,
		AvailabilityStatus:   availabilityStatus,
		RegistrationDeadline: registrationDeadline,
		AgeMin:               ageMin,
		AgeMax:               ageMax,
		IsIndoor:             isIndoor,
		IsOutdoor:            isOutdoor,
		Language:             language,
		Capacity:             capacity,
		SpotsLimited:         spotsLimited,
		RecurrenceRule:       recurrenceRule,
		TransitStop:          transitStop,
		HasParking:           hasParking,
		BookingURL:           bookingURL,
		ContactEmail:         contactEmail,
		ContactPhone:         contactPhone,
		ImageURLs:            imageURLs,
		SourceURL:            ev.SourceURL,
		RawData:              raw,
	}
}

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

func normalizeTitle(title string) string {
	if title == "" {
		return ""
	}
	title = htmlTagPattern.ReplaceAllString(title, "")
	title = strings.Join(strings.Fields(title), " ")
	if len(title) > 200 {
		title = title[:197] + "..."
	}
	return strings.TrimSpace(title)
}

// splitDescription cleans HTML from description and, if it is over 500
// chars, splits it into a short teaser ending on a period or word boundary
// and the full long version, matching _split_description.
func splitDescription(description string) (short, long string) {
	if description == "" {
		return "", ""
	}

	description = htmlTagPattern.ReplaceAllString(description, " ")
	description = strings.Join(strings.Fields(description), " ")

	if len(description) <= 500 {
		return description, ""
	}

	runes := []rune(description)
	shortRunes := runes[:500]
	shortStr := string(shortRunes)

	lastPeriod := strings.LastIndex(shortStr, ".")
	lastSpace := strings.LastIndex(shortStr, " ")

	switch {
	case lastPeriod > 300:
		shortStr = shortStr[:lastPeriod+1]
	case lastSpace > 300:
		shortStr = shortStr[:lastSpace] + "..."
	default:
		shortStr = string(runes[:497]) + "..."
	}

	return shortStr, description
}

func normalizeAddress(address string) string {
	if address == "" {
		return ""
	}
	address = strings.Join(strings.Fields(address), " ")
	if len(address) > 300 {
		address = address[:300]
	}
	return strings.TrimSpace(address)
}

// normalizeDatetimeAny localizes a naive time.Time pointer stored as `any`
// in RawData (used for fields like registration_deadline that ParsedEvent
// does not model directly) to Europe/Berlin.
func normalizeDatetimeAny(v any) *time.Time {
	t, ok := v.(*time.Time)
	if !ok || t == nil {
		if tv, ok2 := v.(time.Time); ok2 {
			t = &tv
		} else {
			return nil
		}
	}
	return localizeIfNaive(t)
}

func localizeIfNaive(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	if t.Location() == time.UTC || t.Location() == time.Local {
		localized := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), berlin)
		return &localized
	}
	return t
}

var freeKeywords = []string{
	"kostenlos", "kostenfrei", "gratis", "umsonst",
	"eintritt frei", "freier eintritt", "ohne eintritt",
	"kein eintritt", "ohne kosten", "for free",
}

// zeroPricePattern matches the zero-amount free markers "0 euro", "0€" and
// "0,00" only where the 0 does not end a larger amount such as "12,50 euro".
var zeroPricePattern = regexp.MustCompile(`(?:^|[^\d.,])(?:0 euro|0€|0,00)`)

var donationKeywords = []string{
	"auf spendenbasis", "spende erbeten", "pay what you want",
	"gegen spende", "hutsammlung", "freiwilliger beitrag",
}

var priceTextPattern = regexp.MustCompile(`(\d+(?:[,.]\d{2})?)\s*(?:€|euro|eur)`)

// extractPrice classifies an event's pricing model and min/max, matching
// _extract_price: explicit price_type/price_min/price_max from RawData,
// falling back to keyword and regex detection over title+description.
func extractPrice(ev event.ParsedEvent, raw map[string]any) (event.PriceType, *float64, *float64) {
	priceType := event.PriceType(stringField(raw, "price_type"))
	priceMin := ev.Price
	if priceMin == nil {
		priceMin = safeFloat(raw["price_min"])
	}
	priceMax := safeFloat(raw["price_max"])

	switch priceType {
	case event.PriceFree, event.PricePaid, event.PriceRange, event.PriceDonation, event.PriceUnknown:
	default:
		priceType = event.PriceUnknown
	}

	text := strings.ToLower(ev.Title + " " + ev.Description)

	if priceType == event.PriceUnknown {
		switch {
		case containsAny(text, freeKeywords) || zeroPricePattern.MatchString(text):
			priceType = event.PriceFree
		case containsAny(text, donationKeywords):
			priceType = event.PriceFree
		case priceMin != nil:
			priceType = event.PricePaid
		}
	}

	if priceMin == nil && priceType != event.PriceFree {
		if m := priceTextPattern.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
				priceMin = &v
				priceType = event.PricePaid
			}
		}
	}

	if priceType == event.PriceFree && priceMin == nil {
		zero := 0.0
		priceMin = &zero
	}

	return priceType, priceMin, priceMax
}

var (
	ageRangeFull  = regexp.MustCompile(`(\d+)\s*(?:-|–|bis)\s*(\d+)\s*(?:jahren?|j\.?)`)
	ageAbPattern  = regexp.MustCompile(`ab\s*(\d+)\s*(?:jahren?|j\.?)`)
	ageBisPattern = regexp.MustCompile(`bis\s*(\d+)\s*(?:jahren?|j\.?)`)
)

// extractAgeRange matches _extract_age_range's three ordered patterns:
// "X-Y Jahre"/"X bis Y Jahre", "ab X Jahren" (open-ended, max defaults to
// 99), "bis X Jahre" (min defaults to 0).
func extractAgeRange(raw map[string]any, title, description string) (*int, *int) {
	ageMin := safeInt(raw["age_min"])
	ageMax := safeInt(raw["age_max"])
	if ageMin != nil && ageMax != nil {
		return ageMin, ageMax
	}

	text := strings.ToLower(title + " " + description)

	if m := ageRangeFull.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		hi, _ := strconv.Atoi(m[2])
		return intPtr(lo), intPtr(hi)
	}
	if m := ageAbPattern.FindStringSubmatch(text); m != nil {
		lo, _ := strconv.Atoi(m[1])
		return intPtr(lo), intPtr(99)
	}
	if m := ageBisPattern.FindStringSubmatch(text); m != nil {
		hi, _ := strconv.Atoi(m[1])
		return intPtr(0), intPtr(hi)
	}

	return ageMin, ageMax
}

var (
	indoorKeywords  = []string{"indoor", "drinnen", "halle", "museum", "theater", "kino"}
	outdoorKeywords = []string{"outdoor", "draußen", "garten", "park", "wald", "spielplatz"}
)

func detectIndoorOutdoor(raw map[string]any, title, description string) (*bool, *bool) {
	isIndoor := boolField(raw, "is_indoor")
	isOutdoor := boolField(raw, "is_outdoor")
	if isIndoor != nil || isOutdoor != nil {
		return isIndoor, isOutdoor
	}

	text := strings.ToLower(title + " " + description)
	indoor := containsAny(text, indoorKeywords)
	outdoor := containsAny(text, outdoorKeywords)

	var indoorPtr, outdoorPtr *bool
	if indoor {
		indoorPtr = boolPtr(true)
	}
	if outdoor {
		outdoorPtr = boolPtr(true)
	}
	return indoorPtr, outdoorPtr
}

func normalizeURL(url string) string {
	if url == "" {
		return ""
	}
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	if len(url) > 500 {
		return ""
	}
	return url
}

var emailPattern = regexp.MustCompile(`[\w.\-+]+@[\w.-]+\.[a-zA-Z]{2,}`)

func extractEmail(raw map[string]any, description string) string {
	email := stringField(raw, "contact_email")
	if email == "" {
		email = stringField(raw, "email")
	}
	if email != "" {
		email = strings.TrimSpace(email)
		if len(email) > 200 {
			email = email[:200]
		}
		return email
	}

	if m := emailPattern.FindString(description); m != "" {
		return m
	}
	return ""
}

var phoneCleanPattern = regexp.MustCompile(`[^\d+\-\s()]`)
var phoneCleanPatternKeepSlash = regexp.MustCompile(`[^\d+\-\s()/]`)

var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+49[\s\-/]?\d{2,4}[\s\-/]?\d{2,4}[\s\-/]?\d{2,6}`),
	regexp.MustCompile(`0\d{2,4}[\s\-/]?\d{2,4}[\s\-/]?\d{2,6}`),
	regexp.MustCompile(`\(0\d{2,4}\)[\s\-/]?\d{2,4}[\s\-/]?\d{2,6}`),
}

func extractPhone(raw map[string]any, description string) string {
	phone := stringField(raw, "contact_phone")
	if phone == "" {
		phone = stringField(raw, "phone")
	}
	if phone != "" {
		phone = phoneCleanPattern.ReplaceAllString(phone, "")
		phone = strings.TrimSpace(phone)
		if len(phone) > 50 {
			phone = phone[:50]
		}
		return phone
	}

	for _, pattern := range phonePatterns {
		if m := pattern.FindString(description); m != "" {
			m = phoneCleanPatternKeepSlash.ReplaceAllString(m, "")
			m = strings.TrimSpace(m)
			if len(m) > 50 {
				m = m[:50]
			}
			return m
		}
	}
	return ""
}

// extractTimeFromText finds a time (or time range) mentioned in text and
// combines it with baseDate's calendar date, matching
// _extract_time_from_text's six ordered patterns. baseDate defaults to now
// in Europe/Berlin when nil.
func extractTimeFromText(text string, baseDate *time.Time) (start, end *time.Time) {
	if text == "" {
		return nil, nil
	}
	textLower := strings.ToLower(text)

	base := time.Now().In(berlin)
	if baseDate != nil {
		base = *baseDate
	}
	if base.Location() != berlin {
		base = time.Date(base.Year(), base.Month(), base.Day(), base.Hour(), base.Minute(), base.Second(), 0, berlin)
	}

	atTime := func(hour, minute int) *time.Time {
		t := time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, base.Location())
		return &t
	}

	// Pattern 1: time range, e.g. "11 bis 12 Uhr", "von 14:00 bis 15:30".
	if m := timeRangePattern.FindStringSubmatch(textLower); m != nil {
		startHour, _ := strconv.Atoi(m[1])
		startMinute := 0
		if m[2] != "" {
			startMinute, _ = strconv.Atoi(m[2])
		}
		endHour, _ := strconv.Atoi(m[3])
		endMinute := 0
		if m[4] != "" {
			endMinute, _ = strconv.Atoi(m[4])
		}

		if startHour >= 6 && startHour <= 23 && endHour >= 0 && endHour <= 23 &&
			startMinute >= 0 && startMinute <= 59 && endMinute >= 0 && endMinute <= 59 {
			s := atTime(startHour, startMinute)
			e := atTime(endHour, endMinute)
			if !e.After(*s) {
				rolled := e.Add(24 * time.Hour)
				e = &rolled
			}
			return s, e
		}
	}

	// Pattern 2: single time with um/gegen prefix.
	if m := singleTimePattern.FindStringSubmatch(textLower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 6 && hour <= 23 && minute >= 0 && minute <= 59 {
			return atTime(hour, minute), nil
		}
	}

	// Pattern 3: "ab HH Uhr" — start only.
	if m := abPattern.FindStringSubmatch(textLower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 6 && hour <= 23 && minute >= 0 && minute <= 59 {
			return atTime(hour, minute), nil
		}
	}

	// Pattern 4: "bis HH Uhr" — end only.
	if m := bisPattern.FindStringSubmatch(textLower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 6 && hour <= 23 && minute >= 0 && minute <= 59 {
			return nil, atTime(hour, minute)
		}
	}

	// Pattern 5: plain "HH Uhr" without a prefix.
	if m := simpleTimePattern.FindStringSubmatch(textLower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour >= 6 && hour <= 23 && minute >= 0 && minute <= 59 {
			return atTime(hour, minute), nil
		}
	}

	// Pattern 6: vague tageszeit words, each with a hardcoded default hour.
	// "morgen" (tomorrow) must not match: only "morgens" does.
	if m := tageszeitPattern.FindStringSubmatch(textLower); m != nil {
		if hm, ok := tageszeitHours[m[1]]; ok {
			return atTime(hm[0], hm[1]), nil
		}
	}

	return nil, nil
}

var (
	timeRangePattern  = regexp.MustCompile(`(?:von\s+)?(\d{1,2})(?:[:.]\s*(\d{2}))?\s*(?:uhr|h)?\s*(?:bis|[-–])\s*(\d{1,2})(?:[:.]\s*(\d{2}))?\s*(?:uhr|h)?`)
	singleTimePattern = regexp.MustCompile(`(?:um|gegen)\s*(\d{1,2})(?:[:.]\s*(\d{2}))?\s*(?:uhr|h)`)
	abPattern         = regexp.MustCompile(`\bab\s+(\d{1,2})(?:[:.]\s*(\d{2}))?\s*(?:uhr|h)\b`)
	bisPattern        = regexp.MustCompile(`\bbis\s+(\d{1,2})(?:[:.]\s*(\d{2}))?\s*(?:uhr|h)\b`)
	simpleTimePattern = regexp.MustCompile(`\b(\d{1,2})(?:[:.]\s*(\d{2}))?\s*uhr\b`)
	tageszeitPattern  = regexp.MustCompile(`\b(vormittags?|nachmittags?|abends?|morgens)\b`)
)

var tageszeitHours = map[string][2]int{
	"vormittag":  {10, 0},
	"vormittags": {10, 0},
	"morgens":    {9, 0},
	"nachmittag": {14, 0},
	"nachmittags": {14, 0},
	"abend":      {19, 0},
	"abends":     {19, 0},
}

func extractImages(ev event.ParsedEvent, raw map[string]any) []string {
	var images []string
	if ev.ImageURL != "" {
		images = append(images, ev.ImageURL)
	}
	if raw != nil {
		switch v := raw["image_urls"].(type) {
		case []string:
			images = append(images, v...)
		case string:
			images = append(images, v)
		}
	}

	var valid []string
	seen := map[string]bool{}
	for _, img := range images {
		if !strings.HasPrefix(img, "http://") && !strings.HasPrefix(img, "https://") {
			continue
		}
		if len(img) > 500 {
			img = img[:500]
		}
		if seen[img] {
			continue
		}
		seen[img] = true
		valid = append(valid, img)
		if len(valid) == 10 {
			break
		}
	}
	return valid
}

var streetWithNrPattern = regexp.MustCompile(`(?:str\.|straße|strasse|weg|platz|allee|gasse|ring|damm|ufer)\s*\d+`)
var streetNoNrPattern = regexp.MustCompile(`(?:str\.|straße|strasse|weg|allee|gasse|ring|damm|ufer)\b`)
var postalInTextPattern = regexp.MustCompile(`\b\d{5}\b`)

// isStreetAddress reports whether text reads like a street address rather
// than a venue name, matching _is_street_address's three signals: a street
// suffix with a house number, a bare street suffix plus a 5-digit postal
// code, or a 5-digit postal code alone.
func isStreetAddress(text string) bool {
	if text == "" {
		return false
	}
	textLower := strings.ToLower(text)
	hasPostal := postalInTextPattern.MatchString(text)
	streetWithNr := streetWithNrPattern.MatchString(textLower)
	streetNoNr := streetNoNrPattern.MatchString(textLower)
	return streetWithNr || (streetNoNr && hasPostal) || hasPostal
}

var cityPostalPattern = regexp.MustCompile(`(\d{5})\s+([A-ZÄÖÜa-zäöüß][A-ZÄÖÜa-zäöüß\-\s]+)`)

func extractCityPostal(raw map[string]any, locationAddress string) (city, postalCode string) {
	city = stringField(raw, "city")
	postalCode = stringField(raw, "postal_code")
	if city != "" && postalCode != "" {
		return city, postalCode
	}

	if locationAddress != "" {
		if m := cityPostalPattern.FindStringSubmatch(locationAddress); m != nil {
			if postalCode == "" {
				postalCode = m[1]
			}
			if city == "" {
				city = strings.TrimSpace(m[2])
			}
		}
	}

	return city, postalCode
}

var (
	adultPricePattern  = regexp.MustCompile(`erwachsene[:\s]*(\d+(?:[,.]\d{2})?)\s*(?:€|euro)`)
	childPricePattern  = regexp.MustCompile(`kind(?:er)?[:\s]*(\d+(?:[,.]\d{2})?)\s*(?:€|euro)`)
	familyPricePattern = regexp.MustCompile(`familien?(?:karte|ticket)?[:\s]*(\d+(?:[,.]\d{2})?)\s*(?:€|euro)`)
)

// extractPriceDetails pulls a structured adult/child/family breakdown from
// free text, matching _extract_price_details.
func extractPriceDetails(raw map[string]any, description string) *event.PriceDetails {
	if existing, ok := raw["price_details"].(*event.PriceDetails); ok && existing != nil {
		return existing
	}

	text := strings.ToLower(description)
	details := &event.PriceDetails{}
	found := false

	if m := adultPricePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			details.Adult = &event.PriceBreakdown{Min: v, Max: v}
			found = true
		}
	}
	if m := childPricePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			details.Child = &event.PriceBreakdown{Min: v, Max: v}
			found = true
		}
	}
	if m := familyPricePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64); err == nil {
			details.Family = &event.PriceBreakdown{Min: v, Max: v}
			found = true
		}
	}

	if containsAny(text, donationKeywords) {
		details.Mode = "donation"
		details.Hint = "Spendenbasis"
		found = true
	}

	if !found {
		return nil
	}
	details.Currency = "EUR"
	return details
}

var (
	cancelledKeywords = []string{"abgesagt", "entfällt", "cancelled", "fällt aus", "findet nicht statt"}
	postponedKeywords = []string{"verschoben", "postponed", "neuer termin"}
	soldOutKeywords   = []string{"ausverkauft", "sold out", "keine tickets", "restlos vergriffen"}
	waitlistKeywords  = []string{"warteliste", "waitlist", "warte-liste"}
	registrationKeywords = []string{
		"anmeldung erforderlich", "anmeldung nötig", "voranmeldung",
		"registrierung erforderlich", "nur mit anmeldung",
	}
	availableKeywords = []string{
		"tickets verfügbar", "tickets erhältlich", "jetzt buchen",
		"noch plätze frei", "restplätze",
	}
)

// extractAvailabilityStatus maps German text markers to an
// AvailabilityStatus, matching _extract_availability_status's check order:
// cancelled, postponed, sold out, waitlist, registration required,
// available.
func extractAvailabilityStatus(raw map[string]any, description string) event.AvailabilityStatus {
	if status := stringField(raw, "availability_status"); status != "" {
		return event.AvailabilityStatus(status)
	}

	text := strings.ToLower(description)

	switch {
	case containsAny(text, cancelledKeywords):
		return event.AvailabilityCancelled
	case containsAny(text, postponedKeywords):
		return event.AvailabilityPostponed
	case containsAny(text, soldOutKeywords):
		return event.AvailabilitySoldOut
	case containsAny(text, waitlistKeywords):
		return event.AvailabilityWaitlist
	case containsAny(text, registrationKeywords):
		return event.AvailabilityRegistrationRequired
	case containsAny(text, availableKeywords):
		return event.AvailabilityAvailable
	}

	return ""
}

var languageNameMap = map[string]string{
	"deutsch": "de", "german": "de", "de": "de",
	"englisch": "en", "english": "en", "en": "en",
	"französisch": "fr", "french": "fr", "fr": "fr",
	"türkisch": "tr", "turkish": "tr", "tr": "tr",
}

func extractLanguage(raw map[string]any, description string) string {
	if language := stringField(raw, "language"); language != "" {
		if iso, ok := languageNameMap[strings.ToLower(language)]; ok {
			return iso
		}
		return language
	}

	text := strings.ToLower(description)

	if containsAny(text, []string{"auf englisch", "in englisch", "english", "in english"}) {
		return "en"
	}
	if containsAny(text, []string{"auf deutsch", "in deutsch", "auf deutscher sprache"}) {
		return "de"
	}

	return "de"
}

var spotsLimitedKeywords = []string{
	"begrenzte plätze", "begrenzte teilnehmerzahl",
	"limited spots", "nur noch wenige plätze",
	"max. teilnehmer", "maximale teilnehmerzahl",
}

func detectSpotsLimited(raw map[string]any, description string) *bool {
	if v := boolField(raw, "spots_limited"); v != nil {
		return v
	}
	text := strings.ToLower(description)
	if containsAny(text, spotsLimitedKeywords) {
		return boolPtr(true)
	}
	return nil
}

var weekdayPhrases = []struct {
	phrase string
	rule   string
}{
	{"jeden montag", "jeden Montag"},
	{"jeden dienstag", "jeden Dienstag"},
	{"jeden mittwoch", "jeden Mittwoch"},
	{"jeden donnerstag", "jeden Donnerstag"},
	{"jeden freitag", "jeden Freitag"},
	{"jeden samstag", "jeden Samstag"},
	{"jeden sonntag", "jeden Sonntag"},
}

func extractRecurrence(raw map[string]any, description string) string {
	if rrule := stringField(raw, "recurrence_rule"); rrule != "" {
		return rrule
	}
	if rrule := stringField(raw, "rrule"); rrule != "" {
		return rrule
	}

	text := strings.ToLower(description)

	for _, wd := range weekdayPhrases {
		if strings.Contains(text, wd.phrase) {
			return wd.rule
		}
	}
	if strings.Contains(text, "täglich") || strings.Contains(text, "jeden tag") {
		return "täglich"
	}
	if strings.Contains(text, "wöchentlich") {
		return "wöchentlich"
	}
	if strings.Contains(text, "monatlich") {
		return "monatlich"
	}

	return ""
}

var parkingAvailableKeywords = []string{
	"parkplätze vorhanden", "parkplätze verfügbar",
	"kostenlose parkplätze", "parkhaus", "tiefgarage",
	"parkmöglichkeiten",
}
var parkingUnavailableKeywords = []string{"keine parkplätze", "kein parkplatz"}

func detectParking(raw map[string]any, description string) *bool {
	if v := boolField(raw, "has_parking"); v != nil {
		return v
	}
	text := strings.ToLower(description)
	if containsAny(text, parkingAvailableKeywords) {
		return boolPtr(true)
	}
	if containsAny(text, parkingUnavailableKeywords) {
		return boolPtr(false)
	}
	return nil
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func stringField(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	if v, ok := raw[key].(string); ok {
		return v
	}
	return ""
}

func boolField(raw map[string]any, key string) *bool {
	if raw == nil {
		return nil
	}
	if v, ok := raw[key].(bool); ok {
		return &v
	}
	return nil
}

func safeFloat(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return &f
		}
	}
	return nil
}

func safeInt(v any) *int {
	switch n := v.(type) {
	case int:
		return &n
	case float64:
		i := int(n)
		return &i
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			i := int(f)
			return &i
		}
	}
	return nil
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func firstNonEmptyStr(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
