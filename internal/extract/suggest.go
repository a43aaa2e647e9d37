package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"eventcrawl/internal/event"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Suggester generates CSS-selector suggestions from a page and a set of
// already-known field values, so an operator can promote a heuristic or
// structured-data hit into a reusable ScraperConfig selector. It is a pure
// function over the DOM and the known values — no global state — matching
// custom_selector_extractor.py's SelectorSuggester.
type Suggester struct{}

// NewSuggester returns a ready-to-use Suggester.
func NewSuggester() *Suggester { return &Suggester{} }

// Suggest returns, for each field in knownValues with a reliable match, the
// FieldSelector an operator could save into a ScraperConfig.
func (s *Suggester) Suggest(doc *goquery.Document, knownValues map[string]string) map[string]event.FieldSelector {
	suggestions := map[string]event.FieldSelector{}

	for field, value := range knownValues {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		var fs *event.FieldSelector
		switch field {
		case "start_datetime", "end_datetime":
			fs = s.suggestDatetime(doc, value)
		case "image", "image_url":
			fs = s.suggestByAttr(doc, value, "src")
		case "booking_url", "url":
			fs = s.suggestByAttr(doc, value, "href")
		default:
			fs = s.suggestByText(doc, value, event.AttrText)
		}

		if fs != nil {
			suggestions[field] = *fs
		}
	}

	return suggestions
}

func (s *Suggester) suggestDatetime(doc *goquery.Document, value string) *event.FieldSelector {
	datePart := value
	if len(datePart) >= 10 {
		datePart = datePart[:10]
	}

	var found *event.FieldSelector
	doc.Find("time[datetime]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		dtVal, _ := sel.Attr("datetime")
		if strings.Contains(dtVal, datePart) {
			if css := s.generateSelector(doc, sel); css != "" {
				found = &event.FieldSelector{CSS: []string{css}, Attr: event.AttrDatetime}
				return false
			}
		}
		return true
	})
	if found != nil {
		return found
	}

	doc.Find("meta[content]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		content, _ := sel.Attr("content")
		if strings.Contains(content, datePart) {
			if prop, ok := sel.Attr("property"); ok && prop != "" {
				css := fmt.Sprintf(`meta[property="%s"]`, prop)
				found = &event.FieldSelector{CSS: []string{css}, Attr: event.AttrContent}
				return false
			}
			if name, ok := sel.Attr("name"); ok && name != "" {
				css := fmt.Sprintf(`meta[name="%s"]`, name)
				found = &event.FieldSelector{CSS: []string{css}, Attr: event.AttrContent}
				return false
			}
		}
		return true
	})
	if found != nil {
		return found
	}

	return s.suggestByText(doc, value, event.AttrDatetime)
}

func (s *Suggester) suggestByAttr(doc *goquery.Document, value, attr string) *event.FieldSelector {
	var found *event.FieldSelector
	doc.Find("[" + attr + "]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		attrVal, _ := sel.Attr(attr)
		if attrVal == "" {
			return true
		}
		if strings.Contains(value, attrVal) || strings.Contains(attrVal, value) {
			if css := s.generateSelector(doc, sel); css != "" {
				at := event.AttrSrc
				if attr == "href" {
					at = event.AttrHref
				}
				found = &event.FieldSelector{CSS: []string{css}, Attr: at}
				return false
			}
		}
		return true
	})
	return found
}

func (s *Suggester) suggestByText(doc *goquery.Document, value string, attrOverride event.AttrType) *event.FieldSelector {
	norm := strings.ToLower(whitespaceRe.ReplaceAllString(value, " "))
	norm = strings.TrimSpace(norm)
	if len(norm) < 3 {
		return nil
	}

	var bestEl *goquery.Selection
	bestLen := -1

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		tag := goquery.NodeName(sel)
		switch tag {
		case "script", "style", "nav", "footer", "noscript":
			return
		}
		elText := strings.ToLower(whitespaceRe.ReplaceAllString(sel.Text(), " "))
		if strings.Contains(elText, norm) {
			if bestLen == -1 || len(elText) < bestLen {
				bestLen = len(elText)
				bestEl = sel
			}
		}
	})

	if bestEl == nil {
		return nil
	}

	css := s.generateSelector(doc, bestEl)
	if css == "" {
		return nil
	}

	if doc.Find(css).Length() == 1 {
		return &event.FieldSelector{CSS: []string{css}, Attr: attrOverride}
	}

	if refined := s.refineSelector(doc, bestEl, css); refined != "" {
		return &event.FieldSelector{CSS: []string{refined}, Attr: attrOverride}
	}

	return nil
}

// generateSelector picks a selector for el in priority order: #id > [data-*]
// > .class > tag[itemprop] > tag > parent-prefixed, verifying uniqueness at
// each step, matching custom_selector_extractor.py's _generate_selector.
func (s *Suggester) generateSelector(doc *goquery.Document, el *goquery.Selection) string {
	if el == nil || el.Length() == 0 {
		return ""
	}

	tag := goquery.NodeName(el)

	if id, ok := el.Attr("id"); ok && id != "" {
		css := "#" + id
		if doc.Find(css).Length() == 1 {
			return css
		}
	}

	if node := el.Get(0); node != nil {
		for _, a := range node.Attr {
			if strings.HasPrefix(a.Key, "data-") && a.Val != "" {
				css := fmt.Sprintf(`%s[%s="%s"]`, tag, a.Key, a.Val)
				if doc.Find(css).Length() == 1 {
					return css
				}
			}
		}
	}

	if classAttr, ok := el.Attr("class"); ok && classAttr != "" {
		classes := strings.Fields(classAttr)
		var specific []string
		for _, c := range classes {
			if len(c) > 2 && !strings.HasPrefix(c, "js-") {
				specific = append(specific, c)
			}
		}
		if len(specific) > 0 {
			css := tag + "." + strings.Join(specific, ".")
			if doc.Find(css).Length() == 1 {
				return css
			}
			css = "." + specific[0]
			if doc.Find(css).Length() == 1 {
				return css
			}
		}
	}

	if itemprop, ok := el.Attr("itemprop"); ok && itemprop != "" {
		css := fmt.Sprintf(`%s[itemprop="%s"]`, tag, itemprop)
		if doc.Find(css).Length() == 1 {
			return css
		}
	}

	if doc.Find(tag).Length() == 1 {
		return tag
	}

	parent := el.Parent()
	if parent.Length() > 0 {
		parentSel := s.generateSelector(doc, parent)
		if parentSel != "" {
			childSel := tag
			if classAttr, ok := el.Attr("class"); ok && classAttr != "" {
				if fields := strings.Fields(classAttr); len(fields) > 0 {
					childSel = tag + "." + fields[0]
				}
			}
			combined := parentSel + " " + childSel
			if safe := safeSelect(doc, combined); safe != nil && doc.Find(combined).Length() == 1 {
				return combined
			}
		}
	}

	return ""
}

// refineSelector walks up to 3 ancestors adding class/id context to make a
// non-unique base selector unique, matching _refine_selector.
func (s *Suggester) refineSelector(doc *goquery.Document, el *goquery.Selection, base string) string {
	parent := el.Parent()

	for i := 0; i < 3 && parent.Length() > 0; i++ {
		if classAttr, ok := parent.Attr("class"); ok && classAttr != "" {
			if fields := strings.Fields(classAttr); len(fields) > 0 {
				refined := "." + fields[0] + " " + base
				if safeSelect(doc, refined) != nil && doc.Find(refined).Length() == 1 {
					return refined
				}
			}
		}
		if id, ok := parent.Attr("id"); ok && id != "" {
			refined := "#" + id + " " + base
			if safeSelect(doc, refined) != nil && doc.Find(refined).Length() == 1 {
				return refined
			}
		}
		parent = parent.Parent()
	}

	return ""
}
