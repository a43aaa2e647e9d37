// Package event defines the data model shared across the extraction,
// normalization, and ingest stages of the crawl pipeline.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// ParsedEvent is the intermediate representation produced by the feed
// parser or the polite scraper, before normalization.
type ParsedEvent struct {
	ExternalID  string // source-assigned or synthesized, <=255 chars
	Fingerprint string // 32-char stable hash, set by the caller once known

	Title       string // non-empty, <=200 chars
	Description string // HTML-stripped, <=5000 chars

	StartDatetime *time.Time
	EndDatetime   *time.Time

	LocationName    string
	LocationAddress string
	Lat             *float64
	Lng             *float64

	Price         *float64
	Currency      string
	OrganizerName string

	ImageURL  string
	SourceURL string

	RawData    map[string]any
	DeepFetched bool
}

// ExtractedEvent is the output of a single extractor stage: the same
// fields as ParsedEvent minus Fingerprint and DeepFetched.
type ExtractedEvent struct {
	ExternalID      string
	Title           string
	Description     string
	StartDatetime   *time.Time
	EndDatetime     *time.Time
	LocationName    string
	LocationAddress string
	Lat             *float64
	Lng             *float64
	Price           *float64
	Currency        string
	OrganizerName   string
	ImageURL        string
	SourceURL       string
	RawData         map[string]any
}

// ToParsedEvent converts an ExtractedEvent into a ParsedEvent, computing
// neither Fingerprint nor DeepFetched (callers set those explicitly).
func (e ExtractedEvent) ToParsedEvent() ParsedEvent {
	return ParsedEvent{
		ExternalID:      e.ExternalID,
		Title:           e.Title,
		Description:     e.Description,
		StartDatetime:   e.StartDatetime,
		EndDatetime:     e.EndDatetime,
		LocationName:    e.LocationName,
		LocationAddress: e.LocationAddress,
		Lat:             e.Lat,
		Lng:             e.Lng,
		Price:           e.Price,
		Currency:        e.Currency,
		OrganizerName:   e.OrganizerName,
		ImageURL:        e.ImageURL,
		SourceURL:       e.SourceURL,
		RawData:         e.RawData,
	}
}

// Source identifies which extraction stage produced a field's value.
// Values follow a strict precedence order used when merging results from
// multiple stages: CustomSelector > JSONLD > Microdata > Heuristic > AI.
type Source string

const (
	SourceCustomSelector Source = "custom_selector"
	SourceJSONLD         Source = "jsonld"
	SourceMicrodata      Source = "microdata"
	SourceHeuristic      Source = "heuristic"
	SourceAI             Source = "ai"
)

// sourceRank gives the merge priority for a Source: lower wins when
// combining two non-empty extraction results for the same field.
var sourceRank = map[Source]int{
	SourceCustomSelector: 0,
	SourceJSONLD:         1,
	SourceMicrodata:      2,
	SourceHeuristic:      3,
	SourceAI:             4,
}

// Outranks reports whether s has strictly higher merge priority than other.
func (s Source) Outranks(other Source) bool {
	return sourceRank[s] < sourceRank[other]
}

// Fingerprint computes the stable 32-char in-run deduplication key:
// sha256(normalized_title | YYYY-MM-DD | address_or_geohash[:50])[:32].
// start may be nil (the date segment is then empty); place is trimmed and
// lowercased first, then cut to its first 50 bytes.
func Fingerprint(title string, start *time.Time, place string) string {
	titleNorm := strings.ToLower(strings.TrimSpace(title))

	dateStr := ""
	if start != nil {
		dateStr = start.Format("2006-01-02")
	}

	placeNorm := strings.ToLower(strings.TrimSpace(place))
	if len(placeNorm) > 50 {
		placeNorm = placeNorm[:50]
	}

	key := titleNorm + "|" + dateStr + "|" + placeNorm
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:32]
}

// ExtractionResult is a single field's provenance record: the value itself,
// a confidence score, which stage produced it, and human-readable evidence
// (a selector, a schema.org key, a regex name).
type ExtractionResult struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
	Evidence   string  `json:"evidence"`
}

// AttrType identifies which HTML attribute (or text content) a
// custom-selector field is extracted from.
type AttrType string

const (
	AttrText     AttrType = "text"
	AttrDatetime AttrType = "datetime"
	AttrSrc      AttrType = "src"
	AttrHref     AttrType = "href"
	AttrContent  AttrType = "content"
)

// FieldSelector is one field's selector configuration: an ordered list of
// CSS selectors to try, and which attribute to read from the first match.
type FieldSelector struct {
	CSS  []string `yaml:"css" json:"css"`
	Attr AttrType `yaml:"attr" json:"attr"`
}

// PageType describes the shape of a configured source's landing page.
type PageType string

const (
	PageTypeList     PageType = "list"
	PageTypeCalendar PageType = "calendar"
	PageTypeSingle   PageType = "single"
)

// Strategy names one extraction approach tried by the polite scraper, in
// the order configured for a source.
type Strategy string

const (
	StrategyJSONLD    Strategy = "jsonld"
	StrategyMicrodata Strategy = "microdata"
	StrategyCSS       Strategy = "css"
)

// ScraperConfig is the declarative, per-source configuration describing how
// to discover and extract events from a single HTML source.
type ScraperConfig struct {
	URL            string   `yaml:"url" json:"url"`
	PageType       PageType `yaml:"page_type" json:"page_type"`
	UseSitemap     bool     `yaml:"use_sitemap" json:"use_sitemap"`
	MaxSitemapURLs int      `yaml:"max_sitemap_urls" json:"max_sitemap_urls"`

	Strategies []Strategy `yaml:"strategies" json:"strategies"`

	Selectors map[string]FieldSelector `yaml:"selectors" json:"selectors"`

	DateFormats []string `yaml:"date_formats" json:"date_formats"`
	Timezone    string   `yaml:"timezone" json:"timezone"`

	RateLimitMs     int    `yaml:"rate_limit_ms" json:"rate_limit_ms"`
	RespectRobots   bool   `yaml:"respect_robots" json:"respect_robots"`
	UserAgent       string `yaml:"user_agent" json:"user_agent"`
	MaxRetries      int    `yaml:"max_retries" json:"max_retries"`
	TimeoutSeconds  int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// WithDefaults returns a copy of cfg with documented defaults applied for
// any unset politeness fields.
func (c ScraperConfig) WithDefaults() ScraperConfig {
	if c.RateLimitMs <= 0 {
		c.RateLimitMs = 2000
	}
	if c.UserAgent == "" {
		c.UserAgent = "family-event-crawler/1.0 (+https://example.invalid/bot)"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
	}
	if c.MaxSitemapURLs <= 0 {
		c.MaxSitemapURLs = 200
	}
	return c
}

// PriceType classifies an event's pricing model.
type PriceType string

const (
	PriceFree    PriceType = "free"
	PricePaid    PriceType = "paid"
	PriceRange   PriceType = "range"
	PriceDonation PriceType = "donation"
	PriceUnknown PriceType = "unknown"
)

// AvailabilityStatus reflects ticket/booking state inferred from text.
type AvailabilityStatus string

const (
	AvailabilityAvailable            AvailabilityStatus = "available"
	AvailabilitySoldOut              AvailabilityStatus = "sold_out"
	AvailabilityWaitlist             AvailabilityStatus = "waitlist"
	AvailabilityRegistrationRequired AvailabilityStatus = "registration_required"
	AvailabilityCancelled            AvailabilityStatus = "cancelled"
	AvailabilityPostponed            AvailabilityStatus = "postponed"
	AvailabilityUnknown              AvailabilityStatus = "unknown"
)

// PriceBreakdown is a per-audience price range, e.g. {min: 8, max: 8} for
// children's tickets.
type PriceBreakdown struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// PriceDetails captures a structured price breakdown extracted from free
// text, keyed by audience ("adult", "child", "family") plus metadata.
type PriceDetails struct {
	Adult    *PriceBreakdown `json:"adult,omitempty"`
	Child    *PriceBreakdown `json:"child,omitempty"`
	Family   *PriceBreakdown `json:"family,omitempty"`
	Mode     string          `json:"mode,omitempty"` // "donation"
	Hint     string          `json:"hint,omitempty"`
	Currency string          `json:"currency,omitempty"`
}

// NormalizedEvent is the fully canonicalized, flat event record produced by
// the normalizer — the last stop before fingerprinting and ingest.
type NormalizedEvent struct {
	Title            string     `json:"title"`
	DescriptionShort string     `json:"description_short"`
	DescriptionLong  string     `json:"description_long"`
	StartDatetime    *time.Time `json:"start_datetime,omitempty"`
	EndDatetime      *time.Time `json:"end_datetime,omitempty"`

	LocationAddress string   `json:"location_address,omitempty"`
	LocationLat     *float64 `json:"location_lat,omitempty"`
	LocationLng     *float64 `json:"location_lng,omitempty"`
	VenueName       string   `json:"venue_name,omitempty"`
	City            string   `json:"city,omitempty"`
	PostalCode      string   `json:"postal_code,omitempty"`

	PriceType    PriceType     `json:"price_type,omitempty"`
	PriceMin     *float64      `json:"price_min,omitempty"`
	PriceMax     *float64      `json:"price_max,omitempty"`
	PriceDetails *PriceDetails `json:"price_details,omitempty"`

	AvailabilityStatus   AvailabilityStatus `json:"availability_status,omitempty"`
	RegistrationDeadline *time.Time         `json:"registration_deadline,omitempty"`

	AgeMin *int `json:"age_min,omitempty"`
	AgeMax *int `json:"age_max,omitempty"`

	IsIndoor  *bool `json:"is_indoor,omitempty"`
	IsOutdoor *bool `json:"is_outdoor,omitempty"`

	Language string `json:"language,omitempty"`

	Capacity     *int  `json:"capacity,omitempty"`
	SpotsLimited *bool `json:"spots_limited,omitempty"`

	RecurrenceRule string `json:"recurrence_rule,omitempty"`

	TransitStop string `json:"transit_stop,omitempty"`
	HasParking  *bool  `json:"has_parking,omitempty"`

	BookingURL   string         `json:"booking_url,omitempty"`
	ContactEmail string         `json:"contact_email,omitempty"`
	ContactPhone string         `json:"contact_phone,omitempty"`
	ImageURLs    []string       `json:"image_urls,omitempty"`
	SourceURL    string         `json:"source_url,omitempty"`
	RawData      map[string]any `json:"raw_data,omitempty"`
}

// CanonicalCandidate is the contract emitted to the downstream ingest
// endpoint.
type CanonicalCandidate struct {
	SourceType  string         `json:"source_type"`
	SourceURL   string         `json:"source_url"`
	ExternalID  string         `json:"external_id,omitempty"`
	Fingerprint string         `json:"fingerprint"`
	RawHash     string         `json:"raw_hash"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Data        map[string]any `json:"data"`
	AI          map[string]any `json:"ai,omitempty"`
	Versions    map[string]any `json:"versions,omitempty"`
}
