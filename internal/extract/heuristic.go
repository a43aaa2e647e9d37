package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"eventcrawl/internal/event"

	"github.com/PuerkitoBio/goquery"
)

// germanMonths maps full and abbreviated German month names (with or
// without a trailing period) to their calendar month number.
var germanMonths = map[string]int{
	"januar": 1, "februar": 2, "märz": 3, "april": 4,
	"mai": 5, "juni": 6, "juli": 7, "august": 8,
	"september": 9, "oktober": 10, "november": 11, "dezember": 12,
	"jan": 1, "feb": 2, "mär": 3, "apr": 4,
	"jun": 6, "jul": 7, "aug": 8, "sep": 9,
	"okt": 10, "nov": 11, "dez": 12,
}

var englishMonths = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
	"jan": 1, "feb": 2, "mar": 3, "apr": 4,
	"jun": 6, "jul": 7, "aug": 8, "sep": 9,
	"oct": 10, "nov": 11, "dec": 12,
}

const streetSuffixes = `(?:[Ss]tra[ßs]e|[Ss]tr\.|[Pp]latz|[Ww]eg|[Aa]llee|[Rr]ing|` +
	`[Gg]asse|[Dd]amm|[Uu]fer|[Ss]teig|[Pp]fad|[Pp]romenade|` +
	`[Bb]rücke|[Cc]haussee|[Mm]arkt|[Hh]of)`

var (
	allMonthNames = []string{
		"Januar", "Februar", "März", "April", "Mai", "Juni",
		"Juli", "August", "September", "Oktober", "November", "Dezember",
		"Jan", "Feb", "Mär", "Apr", "Jun", "Jul", "Aug", "Sep", "Okt", "Nov", "Dez",
	}

	reDateLong = regexp.MustCompile(`(?i)(\d{1,2})\.\s*(` + strings.Join(allMonthNames, "|") + `)\.?\s+(\d{4}|\d{2})`)

	reWeekdayPrefix = regexp.MustCompile(`(?i)(?:Montag|Dienstag|Mittwoch|Donnerstag|Freitag|Samstag|Sonntag|Mo|Di|Mi|Do|Fr|Sa|So)[.,]?\s*`)

	reDateShort = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})`)
	reDateISO   = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

	reTime      = regexp.MustCompile(`(?i)(\d{1,2})[:.](\d{2})\s*(?:Uhr)?|(\d{1,2})\s*Uhr`)
	reTimeRange = regexp.MustCompile(`(?i)(\d{1,2})[:.]?(\d{2})?\s*(?:bis|–|—|-)\s*(\d{1,2})[:.]?(\d{2})?\s*(?:Uhr)?`)

	reAddress = regexp.MustCompile(`([\wÄÖÜäöüß\-.]+(?:\s[\wÄÖÜäöüß\-.]+)*` + streetSuffixes +
		`\s+\d+\s*\w?)[\s,]+(\d{5})\s+([A-ZÄÖÜ][\wÄÖÜäöüß\-]+(?:\s(?:am|an der|im|bei|ob der)\s[\wÄÖÜäöüß\-]+)?)`)

	rePlzCity = regexp.MustCompile(`(\d{5})\s+([A-ZÄÖÜ][\wÄÖÜäöüß\-]+)`)

	reOrtLabel = regexp.MustCompile(`(?i)(?:Ort|Veranstaltungsort|Location|Spielort|Spielstätte|Wo|Adresse|Anfahrt|Treffpunkt|Venue|Wo\?)\s*:\s*(.+)`)

	rePriceAmount       = regexp.MustCompile(`(?i)(?:Eintritt|Preis|Kosten|Tickets?|Karten?)\s*[:.]?\s*(?:ab\s+)?(\d+(?:[.,]\d{1,2})?)\s*(?:EUR|Euro|€)`)
	rePriceAmountSimple = regexp.MustCompile(`(?i)(\d+(?:[.,]\d{1,2})?)\s*(?:EUR|Euro|€)`)
	rePriceFree         = regexp.MustCompile(`(?i)(?:Eintritt\s+frei|kostenlos|kostenfrei|freier\s+Eintritt|kein\s+Eintritt)`)
	rePriceDonation     = regexp.MustCompile(`(?i)(?:Spende|auf\s+Spendenbasis|pay\s+what\s+you\s+(?:can|want))`)

	reNoiseClassID = regexp.MustCompile(`(?i)cookie|consent|banner|popup|modal|gdpr`)
)

var locationLabels = map[string]bool{
	"ort": true, "ort:": true, "veranstaltungsort": true, "veranstaltungsort:": true,
	"spielort": true, "spielort:": true, "location": true, "location:": true,
	"wo": true, "wo:": true, "wo?": true, "adresse": true, "adresse:": true,
	"anfahrt": true, "anfahrt:": true, "treffpunkt": true, "treffpunkt:": true,
	"venue": true, "venue:": true,
}

// Heuristic extracts event fields from visible page text using regex and
// label-matching heuristics, for pages with no structured data. It returns
// one ExtractionResult per field found in fieldsNeeded.
func Heuristic(doc *goquery.Document, fieldsNeeded []string) map[string]event.ExtractionResult {
	results := make(map[string]event.ExtractionResult)

	want := make(map[string]bool, len(fieldsNeeded))
	for _, f := range fieldsNeeded {
		want[f] = true
	}

	visibleText := visibleText(doc)
	if len(visibleText) < 30 {
		return results
	}

	if want["title"] {
		if title := extractTitle(doc); title != "" {
			results["title"] = event.ExtractionResult{Value: title, Confidence: 0.70, Source: event.SourceHeuristic, Evidence: "h1/og:title/title"}
		}
	}

	if want["start_datetime"] || want["end_datetime"] {
		start, end := extractGermanDatetime(visibleText)
		if start != nil && want["start_datetime"] {
			results["start_datetime"] = event.ExtractionResult{Value: start.Format(time.RFC3339), Confidence: 0.70, Source: event.SourceHeuristic, Evidence: "date_regex"}
		}
		if end != nil && want["end_datetime"] {
			results["end_datetime"] = event.ExtractionResult{Value: end.Format(time.RFC3339), Confidence: 0.65, Source: event.SourceHeuristic, Evidence: "time_range_regex"}
		}
	}

	if want["location_address"] {
		if addr := extractGermanAddress(visibleText); addr != "" {
			results["location_address"] = event.ExtractionResult{Value: addr, Confidence: 0.75, Source: event.SourceHeuristic, Evidence: "address_regex"}
		}
	}

	if want["location_name"] {
		if loc := extractLocationName(doc, visibleText); loc != "" {
			results["location_name"] = event.ExtractionResult{Value: loc, Confidence: 0.65, Source: event.SourceHeuristic, Evidence: "ort_label"}
		}
	}

	if want["image"] {
		if img := extractOGImage(doc); img != "" {
			results["image"] = event.ExtractionResult{Value: img, Confidence: 0.70, Source: event.SourceHeuristic, Evidence: "og:image"}
		}
	}

	if want["description"] {
		if desc := extractDescription(doc); desc != "" {
			results["description"] = event.ExtractionResult{Value: desc, Confidence: 0.60, Source: event.SourceHeuristic, Evidence: "og:description/longest_p"}
		}
	}

	if want["price"] || want["price_type"] {
		for k, v := range extractPrice(visibleText) {
			if want[k] {
				results[k] = v
			}
		}
	}

	return results
}

func visibleText(doc *goquery.Document) string {
	clone := goquery.CloneDocument(doc)

	clone.Find("script, style, nav, footer, aside, noscript, iframe, svg, form").Remove()
	clone.Find("*").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		id, _ := sel.Attr("id")
		if reNoiseClassID.MatchString(class) || reNoiseClassID.MatchString(id) {
			sel.Remove()
		}
	})

	var b strings.Builder
	clone.Find("body").Each(func(_ int, sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			text := strings.TrimSpace(node.Text())
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		})
	})

	text := b.String()
	if text == "" {
		text = clone.Text()
	}
	text = regexp.MustCompile(`\n{3,}`).ReplaceAllString(text, "\n\n")
	return text
}

func extractTitle(doc *goquery.Document) string {
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); len(h1) > 3 {
		return h1
	}
	if content, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		if content = strings.TrimSpace(content); content != "" {
			return content
		}
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts := regexp.MustCompile(`\s*[|–—-]\s*`).Split(title, 2)
		if trimmed := strings.TrimSpace(parts[0]); len(trimmed) > 3 {
			return trimmed
		}
	}
	return ""
}

func extractGermanDatetime(text string) (*time.Time, *time.Time) {
	cleanText := reWeekdayPrefix.ReplaceAllString(text, "")

	var year, month, day, dateEndPos int

	if m := reDateLong.FindStringSubmatchIndex(cleanText); m != nil {
		day, _ = strconv.Atoi(cleanText[m[2]:m[3]])
		monthName := strings.ToLower(strings.TrimSuffix(cleanText[m[4]:m[5]], "."))
		if mo, ok := germanMonths[monthName]; ok {
			month = mo
		} else if mo, ok := englishMonths[monthName]; ok {
			month = mo
		}
		year, _ = strconv.Atoi(cleanText[m[6]:m[7]])
		if year < 100 {
			year += 2000
		}
		dateEndPos = m[1]
	} else if m := reDateISO.FindStringSubmatchIndex(cleanText); m != nil {
		year, _ = strconv.Atoi(cleanText[m[2]:m[3]])
		month, _ = strconv.Atoi(cleanText[m[4]:m[5]])
		day, _ = strconv.Atoi(cleanText[m[6]:m[7]])
		dateEndPos = m[1]
	} else if m := reDateShort.FindStringSubmatchIndex(cleanText); m != nil {
		day, _ = strconv.Atoi(cleanText[m[2]:m[3]])
		month, _ = strconv.Atoi(cleanText[m[4]:m[5]])
		year, _ = strconv.Atoi(cleanText[m[6]:m[7]])
		if year < 100 {
			year += 2000
		}
		dateEndPos = m[1]
	}

	if year == 0 || month == 0 || day == 0 {
		return nil, nil
	}
	if year < 2020 || year > 2030 || month < 1 || month > 12 || day < 1 || day > 31 {
		return nil, nil
	}
	if time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC).Day() != day {
		return nil, nil
	}

	windowEnd := dateEndPos + 120
	if windowEnd > len(cleanText) {
		windowEnd = len(cleanText)
	}
	timeWindow := cleanText[dateEndPos:windowEnd]

	var start, end *time.Time

	if m := reTimeRange.FindStringSubmatch(timeWindow); m != nil {
		startHour, _ := strconv.Atoi(m[1])
		startMin := 0
		if m[2] != "" {
			startMin, _ = strconv.Atoi(m[2])
		}
		endHour, _ := strconv.Atoi(m[3])
		endMin := 0
		if m[4] != "" {
			endMin, _ = strconv.Atoi(m[4])
		}
		if validTime(startHour, startMin) && validTime(endHour, endMin) {
			s := time.Date(year, time.Month(month), day, startHour, startMin, 0, 0, time.UTC)
			e := time.Date(year, time.Month(month), day, endHour, endMin, 0, 0, time.UTC)
			if !e.After(s) {
				e = e.AddDate(0, 0, 1)
			}
			start, end = &s, &e
		}
	} else if m := reTime.FindStringSubmatch(timeWindow); m != nil {
		var hour, minute int
		if m[3] != "" {
			hour, _ = strconv.Atoi(m[3])
		} else {
			hour, _ = strconv.Atoi(m[1])
			minute, _ = strconv.Atoi(m[2])
		}
		if validTime(hour, minute) {
			s := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
			start = &s
		}
	}

	if start == nil {
		s := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		start = &s
	}

	return start, end
}

func validTime(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

func extractGermanAddress(text string) string {
	if m := reAddress.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]) + ", " + m[2] + " " + strings.TrimSpace(m[3])
	}

	if loc := rePlzCity.FindStringSubmatchIndex(text); loc != nil {
		plz := text[loc[2]:loc[3]]
		city := text[loc[4]:loc[5]]
		lineStart := strings.LastIndex(text[:loc[0]], "\n")
		lineText := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text[lineStart+1:loc[0]]), ","))
		if len(lineText) > 5 {
			return lineText + ", " + plz + " " + city
		}
		return plz + " " + city
	}

	return ""
}

func extractLocationName(doc *goquery.Document, visibleText string) string {
	if m := reOrtLabel.FindStringSubmatch(visibleText); m != nil {
		loc := strings.TrimSpace(strings.SplitN(m[1], "\n", 2)[0])
		if loc != "" && len(loc) <= 200 {
			return loc
		}
	}

	labelResult := ""
	doc.Find("dt, th, label, strong, b, span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		labelText := strings.ToLower(strings.TrimSpace(sel.Text()))
		if !locationLabels[labelText] {
			return true
		}
		if next := sel.Next(); next.Length() > 0 {
			if val := strings.TrimSpace(next.Text()); len(val) > 2 {
				labelResult = truncate(val, 200)
				return false
			}
		}
		if parent := sel.Parent(); parent.Length() > 0 {
			if next := parent.Next(); next.Length() > 0 {
				if val := strings.TrimSpace(next.Text()); len(val) > 2 {
					labelResult = truncate(val, 200)
					return false
				}
			}
		}
		return true
	})
	if labelResult != "" {
		return labelResult
	}

	dlResult := ""
	doc.Find("dl").EachWithBreak(func(_ int, dl *goquery.Selection) bool {
		dl.Find("dt").EachWithBreak(func(_ int, dt *goquery.Selection) bool {
			if !locationLabels[strings.ToLower(strings.TrimSpace(dt.Text()))] {
				return true
			}
			dd := dt.Next()
			if dd.Length() > 0 && goquery.NodeName(dd) == "dd" {
				if val := strings.TrimSpace(dd.Text()); len(val) > 2 {
					dlResult = truncate(val, 200)
					return false
				}
			}
			return true
		})
		return dlResult == ""
	})
	if dlResult != "" {
		return dlResult
	}

	tableResult := ""
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return true
		}
		header := strings.ToLower(strings.TrimSpace(cells.First().Text()))
		if !locationLabels[header] {
			return true
		}
		if val := strings.TrimSpace(cells.Eq(1).Text()); len(val) > 2 {
			tableResult = truncate(val, 200)
			return false
		}
		return true
	})
	if tableResult != "" {
		return tableResult
	}

	ariaResult := ""
	doc.Find("[aria-label]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		aria := strings.ToLower(sel.AttrOr("aria-label", ""))
		for lbl := range locationLabels {
			if strings.Contains(aria, strings.TrimSuffix(lbl, ":")) {
				if val := strings.TrimSpace(sel.Text()); len(val) > 2 {
					ariaResult = truncate(val, 200)
					return false
				}
			}
		}
		return true
	})

	return ariaResult
}

func extractOGImage(doc *goquery.Document) string {
	content, ok := doc.Find(`meta[property="og:image"]`).Attr("content")
	if !ok {
		return ""
	}
	url := strings.TrimSpace(content)
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return ""
}

func extractDescription(doc *goquery.Document) string {
	if content, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		if desc := strings.TrimSpace(content); len(desc) > 20 {
			return truncate(desc, 5000)
		}
	}
	if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc := strings.TrimSpace(content); len(desc) > 20 {
			return truncate(desc, 5000)
		}
	}

	main := doc.Find("main").First()
	if main.Length() == 0 {
		main = doc.Find("article").First()
	}
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}
	if main.Length() == 0 {
		return ""
	}

	longest := ""
	main.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if len(text) > len(longest) {
			longest = text
		}
	})
	if len(longest) > 30 {
		return truncate(longest, 5000)
	}
	return ""
}

func extractPrice(text string) map[string]event.ExtractionResult {
	results := make(map[string]event.ExtractionResult)

	if rePriceFree.MatchString(text) {
		results["price_type"] = event.ExtractionResult{Value: "free", Confidence: 0.75, Source: event.SourceHeuristic, Evidence: "price_free_regex"}
		results["price"] = event.ExtractionResult{Value: "0", Confidence: 0.75, Source: event.SourceHeuristic, Evidence: "price_free_regex"}
		return results
	}

	if rePriceDonation.MatchString(text) {
		results["price_type"] = event.ExtractionResult{Value: "donation", Confidence: 0.70, Source: event.SourceHeuristic, Evidence: "price_donation_regex"}
		return results
	}

	if m := rePriceAmount.FindStringSubmatch(text); m != nil {
		priceStr := strings.ReplaceAll(m[1], ",", ".")
		results["price"] = event.ExtractionResult{Value: priceStr, Confidence: 0.70, Source: event.SourceHeuristic, Evidence: "price_labeled_regex"}
		results["price_type"] = event.ExtractionResult{Value: "paid", Confidence: 0.65, Source: event.SourceHeuristic, Evidence: "price_labeled_regex"}
		return results
	}

	if m := rePriceAmountSimple.FindStringSubmatch(text); m != nil {
		priceStr := strings.ReplaceAll(m[1], ",", ".")
		results["price"] = event.ExtractionResult{Value: priceStr, Confidence: 0.60, Source: event.SourceHeuristic, Evidence: "price_simple_regex"}
		return results
	}

	return results
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
