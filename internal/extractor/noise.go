package extractor

import (
	"regexp"
	"strings"
)

// Noise filters for lines which never describe a product: store branding,
// validity dates, contact details and page furniture.
var (
	urlPattern   = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+|\S+\.(?:com|net|org|eg)\b`)
	phonePattern = regexp.MustCompile(`(?:\+?20|0)\d{9,10}|\b1\d{4}\b`)
	pagePattern  = regexp.MustCompile(`(?i)^\s*(?:page|صفحة)\s*\d+`)

	// validity dates, e.g. "من 1 ديسمبر الى 8 ديسمبر" or "valid until 8 Dec".
	// Latin month tokens are whole words only, so names like "Almarai" don't
	// trip the "mar" alternative. Arabic month names are distinct words
	// already and \b doesn't work next to Arabic letters.
	datePattern = regexp.MustCompile(`(?i)\d{1,2}\s*[-/.]\s*\d{1,2}|حتى|` +
		`يناير|فبراير|مارس|ابريل|أبريل|مايو|يونيو|يوليو|اغسطس|أغسطس|سبتمبر|اكتوبر|أكتوبر|نوفمبر|ديسمبر|` +
		`\b(?:valid|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)\b`)

	storeNames = []string{
		"kazyon", "carrefour", "metro", "lulu", "spinneys", "kheir zaman", "kheirzaman",
		"كازيون", "كارفور", "مترو", "لولو", "سبينس", "خير زمان",
	}
)

// isNoise reports whether line matches a known non-product pattern.
func isNoise(line string) bool {
	if urlPattern.MatchString(line) || pagePattern.MatchString(line) {
		return true
	}

	lower := strings.ToLower(line)
	for _, store := range storeNames {
		if strings.Contains(lower, store) {
			return true
		}
	}

	// dates and hotline numbers are noise only on lines without a currency
	// marker; "10000" alone would otherwise shadow a maximum-range price
	if (datePattern.MatchString(lower) || phonePattern.MatchString(line)) && len(extractPrices(line)) == 0 {
		return true
	}

	return false
}

// isNameCandidate reports whether line could serve as a product name.
func isNameCandidate(line string) bool {
	if len([]rune(line)) <= 3 {
		return false
	}
	if isNoise(line) {
		return false
	}
	stripped := strings.Map(func(r rune) rune {
		if r == '.' || r == ',' || r == ' ' {
			return -1
		}
		return r
	}, normalizeDigits(line))
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if r < '0' || r > '9' {
			return true
		}
	}
	// digits only
	return false
}
