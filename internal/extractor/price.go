package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

// Price plausibility range for Egyptian grocery items, bounds inclusive.
const (
	MinPrice = 1.0
	MaxPrice = 10000.0
)

// Currency markers for Egyptian pounds, in Arabic and English.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)\s*(?:جنيه|ج\.م|جم)`),
	regexp.MustCompile(`(?i)(\d+(?:[.,]\d{1,2})?)\s*(?:EGP|LE)\b`),
	regexp.MustCompile(`(?i)(\d+(?:[.,]\d{1,2})?)\s*pound`),
}

var discountPattern = regexp.MustCompile(`(\d{1,2})\s*%`)

var arabicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"٫", ".",
)

// normalizeDigits converts Arabic-Indic numerals and the Arabic decimal
// separator to their ASCII forms.
func normalizeDigits(text string) string {
	return arabicDigits.Replace(text)
}

// extractPrices returns all plausible currency-marked prices in line, in
// order of appearance. Out-of-range matches are discarded, not corrected.
func extractPrices(line string) []float64 {
	line = normalizeDigits(line)

	var prices []float64
	for _, pattern := range pricePatterns {
		for _, match := range pattern.FindAllStringSubmatch(line, -1) {
			raw := strings.ReplaceAll(match[1], ",", ".")
			price, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				continue
			}
			if price < MinPrice || price > MaxPrice {
				continue
			}
			prices = append(prices, price)
		}
		if len(prices) > 0 {
			// one marker family per line is enough; mixing families
			// double-counts the same token
			break
		}
	}

	return prices
}

// extractDiscount returns the explicit percentage marker in line, if any.
func extractDiscount(line string) *float64 {
	match := discountPattern.FindStringSubmatch(normalizeDigits(line))
	if match == nil {
		return nil
	}
	discount, err := strconv.ParseFloat(match[1], 64)
	if err != nil || discount <= 0 || discount >= 100 {
		return nil
	}
	return &discount
}

// discountPercentage derives the discount from an original/sale price pair.
func discountPercentage(originalPrice, salePrice float64) *float64 {
	if originalPrice <= salePrice || originalPrice == 0 {
		return nil
	}
	discount := (originalPrice - salePrice) / originalPrice * 100
	rounded := float64(int(discount*100+0.5)) / 100
	return &rounded
}

// originalFromDiscount back-computes the pre-discount price.
func originalFromDiscount(salePrice, discount float64) float64 {
	original := salePrice / (1 - discount/100)
	return float64(int(original*100+0.5)) / 100
}
