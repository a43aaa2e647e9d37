// Package redact strips personally identifiable information from scraped
// free text before it leaves the process — either outbound to a
// third-party AI provider or into a log line — grounded on
// original_source/ai-worker/src/lib/pii_redactor.py's PIIRedactor.
package redact

import "regexp"

// patterns mirrors PIIRedactor.PATTERNS, minus postal_code_de (skipped
// there too, "too many false positives"). Order matches the Python dict's
// iteration order used by redact_for_ai's sensitive_patterns list.
var patterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"email", regexp.MustCompile(`(?i)\b[\w.-]+@[\w.-]+\.\w{2,}\b`)},
	{"phone_de", regexp.MustCompile(`(?i)(?:\+49|\b0049|\b0)[\s/()-]?[\d\s/()-]{6,}\b`)},
	{"phone_intl", regexp.MustCompile(`(?i)\+\d{1,3}[\s/()-]?[\d\s/()-]{6,}\b`)},
	{"iban", regexp.MustCompile(`(?i)\b[A-Z]{2}\d{2}\s?(?:[\dA-Z]{4}\s?){3,5}[\dA-Z]{0,4}\b`)},
	{"credit_card", regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)},
}

// streetDE mirrors AGGRESSIVE_PATTERNS['street_de'], only applied by ForLogging.
var streetDE = regexp.MustCompile(`(?i)\b\p{Lu}\p{Ll}+(?:straße|str\.|weg|platz|gasse|allee)\s+\d+[a-z]?\b`)

// sensitiveForAI is redact_for_ai's sensitive_patterns subset: email,
// phone, IBAN, credit card. Addresses and names are deliberately left
// alone, since the AI stage needs them to actually extract location and
// organizer fields.
var sensitiveForAI = []string{"email", "phone_de", "phone_intl", "iban", "credit_card"}

func apply(text string, names []string) string {
	if text == "" {
		return ""
	}
	result := text
	for _, p := range patterns {
		if !containsName(names, p.name) {
			continue
		}
		result = p.re.ReplaceAllString(result, "["+upper(p.name)+"_REDACTED]")
	}
	return result
}

// ForAI redacts only the patterns safe to strip without losing context an
// AI extraction call still needs (location/organizer names stay intact),
// matching PIIRedactor.redact_for_ai.
func ForAI(text string) string {
	return apply(text, sensitiveForAI)
}

// ForLogging redacts every standard pattern plus German street addresses,
// matching PIIRedactor.redact_for_logging's more aggressive sweep — log
// lines have no legitimate need for the address once a problem is being
// diagnosed.
func ForLogging(text string) string {
	if text == "" {
		return ""
	}
	names := make([]string, len(patterns))
	for i, p := range patterns {
		names[i] = p.name
	}
	result := apply(text, names)
	return streetDE.ReplaceAllString(result, "[STREET_DE_REDACTED]")
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func upper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
