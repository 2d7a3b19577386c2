// Package extractor parses structured product candidates out of raw OCR text.
// Extraction is best effort: a page producing zero candidates is a valid
// outcome, not an error.
package extractor

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/samber/lo"

	"github.com/offerscan/catalogue-parser/internal/platform/models"
)

// DefaultCurrency is assumed for all extracted prices.
const DefaultCurrency = "EGP"

// Word boundaries apply to the Latin units only; \b never matches after
// Arabic letters.
var sizePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(kg\b|g\b|l\b|ml\b|كجم|جرام|لتر)`)

// Clock provides times.
type Clock interface {
	// Now returns current UTC time.
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Extractor converts OCR text into product candidates.
type Extractor struct {
	clock Clock
}

// Option is custom configuration of Extractor.
type Option func(e *Extractor)

// NewExtractor returns new Extractor.
func NewExtractor(ops ...Option) *Extractor {
	ext := &Extractor{clock: systemClock{}}
	for _, op := range ops {
		op(ext)
	}
	return ext
}

// WithClock sets Extractor's custom Clock.
func WithClock(clock Clock) Option {
	return func(e *Extractor) {
		e.clock = clock
	}
}

// Extract parses product candidates from the OCR text of one page.
// catalogueID and pageIndex become the back-reference of every candidate.
func (e *Extractor) Extract(text, catalogueID string, pageIndex int) []models.Product {
	lines := segmentLines(text)

	var products []models.Product

	for ix, line := range lines {
		if isNoise(line) {
			continue
		}

		prices := extractPrices(line)
		if len(prices) == 0 {
			continue
		}

		name := nearestName(lines, ix)
		if name == "" {
			continue
		}

		product := models.Product{
			CatalogueID: catalogueID,
			PageIndex:   pageIndex,
			Currency:    DefaultCurrency,
			InStock:     true,
			ScrapedAt:   e.clock.Now(),
		}

		product.NameAr, product.NameEn = splitBilingual(name)

		if size := sizePattern.FindString(normalizeDigits(name + " " + line)); size != "" {
			product.Size = lo.ToPtr(size)
		}

		switch {
		case len(prices) >= 2:
			// original + discounted pair; the lower value is the sale price
			sale, original := prices[0], prices[1]
			if sale > original {
				sale, original = original, sale
			}
			product.Price = sale
			product.OriginalPrice = lo.ToPtr(original)
			product.DiscountPercentage = discountPercentage(original, sale)
		default:
			product.Price = prices[0]
			if discount := extractDiscount(line); discount != nil {
				product.DiscountPercentage = discount
				product.OriginalPrice = lo.ToPtr(originalFromDiscount(prices[0], *discount))
			}
		}

		products = append(products, product)
	}

	return products
}

// segmentLines splits OCR output into trimmed lines, keeping empty strings
// out but preserving order.
func segmentLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, strings.TrimSpace(line))
	}
	return lines
}

// nearestName returns the closest preceding name candidate, looking back up
// to three lines, falling back to the price line itself stripped of the
// price tokens.
func nearestName(lines []string, priceLineIx int) string {
	for offset := 1; offset <= 3; offset++ {
		ix := priceLineIx - offset
		if ix < 0 {
			break
		}
		if isNameCandidate(lines[ix]) && len(extractPrices(lines[ix])) == 0 {
			return lines[ix]
		}
	}

	remainder := stripPriceTokens(lines[priceLineIx])
	if isNameCandidate(remainder) {
		return remainder
	}
	return ""
}

func stripPriceTokens(line string) string {
	line = normalizeDigits(line)
	for _, pattern := range pricePatterns {
		line = pattern.ReplaceAllString(line, " ")
	}
	line = discountPattern.ReplaceAllString(line, " ")
	return strings.Join(strings.Fields(line), " ")
}

// splitBilingual separates a mixed-script name into Arabic and Latin fields.
// A single-script name fills only its matching field.
func splitBilingual(name string) (nameAr, nameEn *string) {
	var arabic, latin []rune

	for _, r := range name {
		switch {
		case unicode.Is(unicode.Arabic, r):
			arabic = append(arabic, r)
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			latin = append(latin, r)
		default:
			// digits, punctuation and spaces belong to both scripts
			arabic = append(arabic, r)
			latin = append(latin, r)
		}
	}

	arabicName := strings.Join(strings.Fields(string(arabic)), " ")
	latinName := strings.Join(strings.Fields(string(latin)), " ")

	if containsScript(name, unicode.Arabic) {
		nameAr = lo.ToPtr(arabicName)
	}
	if containsLatinLetter(name) {
		nameEn = lo.ToPtr(latinName)
	}
	return nameAr, nameEn
}

func containsScript(s string, table *unicode.RangeTable) bool {
	for _, r := range s {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

func containsLatinLetter(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			return true
		}
	}
	return false
}
