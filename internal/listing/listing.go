// Package listing resolves catalogue source pages: a store-listing page into
// individual catalogue URLs, and a catalogue page into its downloadable page
// assets (a PDF link or the set of page images).
package listing

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/offerscan/catalogue-parser/internal/fetcher"
)

// DefaultFanOutCap bounds how many catalogue URLs one listing page may
// resolve to. The cap keeps a single listing from monopolizing the worker
// pool.
const DefaultFanOutCap = 10

// CatalogueLink is one catalogue discovered on a store-listing page.
type CatalogueLink struct {
	URL   string
	Title string
	Store string
}

// Assets are the downloadable inputs of one catalogue page. PDFURL is
// preferred when present; ImageURLs keep document order of the page markup.
type Assets struct {
	PDFURL    string
	ImageURLs []string
}

var (
	catalogueHrefPattern = regexp.MustCompile(`(?i)/pdf\b|offer|catalogue|flyer`)
	pdfHrefPattern       = regexp.MustCompile(`(?i)\.pdf(?:$|\?)|/pdf(?:$|/)`)
	imageSrcPattern      = regexp.MustCompile(`(?i)\.(?:jpe?g|png|webp)(?:$|\?)`)
	skipImagePattern     = regexp.MustCompile(`(?i)logo|icon|avatar|sprite|banner`)
	storeSlugPattern     = regexp.MustCompile(`/markets/([^/]+)`)
)

// storeSlugs maps listing-site store slugs to canonical store identifiers.
var storeSlugs = map[string]string{
	"kazyon-market":    "kazyon",
	"carrefour":        "carrefour",
	"metro-market":     "metro",
	"lulu-hypermarket": "lulu",
	"kheir-zaman":      "kheirzaman",
	"spinneys":         "spinneys",
}

// Resolver fetches and parses listing and catalogue pages.
type Resolver struct {
	client    *http.Client
	policy    fetcher.URLPolicy
	userAgent string
	fanOutCap int
}

// Option is custom configuration of Resolver.
type Option func(r *Resolver)

// NewResolver returns new Resolver.
func NewResolver(client *http.Client, policy fetcher.URLPolicy, userAgent string, ops ...Option) *Resolver {
	res := &Resolver{
		client:    client,
		policy:    policy,
		userAgent: userAgent,
		fanOutCap: DefaultFanOutCap,
	}

	for _, op := range ops {
		op(res)
	}

	return res
}

// WithFanOutCap overrides the listing fan-out cap.
func WithFanOutCap(cap int) Option {
	return func(r *Resolver) {
		r.fanOutCap = cap
	}
}

// ResolveListing returns the catalogues linked from a store-listing page,
// capped at the fan-out limit.
func (r *Resolver) ResolveListing(ctx context.Context, listingURL string) ([]CatalogueLink, error) {
	doc, _, err := r.fetchDocument(ctx, listingURL)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var links []CatalogueLink

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !catalogueHrefPattern.MatchString(href) {
			return true
		}

		absolute, err := absolutize(listingURL, href)
		if err != nil || absolute == listingURL {
			return true
		}
		if _, ok := seen[absolute]; ok {
			return true
		}

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title, _ = sel.Attr("title")
		}
		if len(title) < 5 {
			return true
		}

		seen[absolute] = struct{}{}
		links = append(links, CatalogueLink{
			URL:   absolute,
			Title: title,
			Store: StoreFromURL(href),
		})

		return len(links) < r.fanOutCap
	})

	return links, nil
}

// ResolveAssets returns the downloadable assets of one catalogue page. When
// the URL itself serves a PDF it is returned directly.
func (r *Resolver) ResolveAssets(ctx context.Context, catalogueURL string) (*Assets, error) {
	doc, contentType, err := r.fetchDocument(ctx, catalogueURL)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(contentType, "application/pdf") {
		return &Assets{PDFURL: catalogueURL}, nil
	}

	assets := Assets{}

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if !pdfHrefPattern.MatchString(href) {
			return true
		}
		if absolute, err := absolutize(catalogueURL, href); err == nil && absolute != catalogueURL {
			assets.PDFURL = absolute
			return false
		}
		return true
	})

	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if !imageSrcPattern.MatchString(src) || skipImagePattern.MatchString(src) {
			return
		}
		if absolute, err := absolutize(catalogueURL, src); err == nil {
			assets.ImageURLs = append(assets.ImageURLs, absolute)
		}
	})

	return &assets, nil
}

// StoreFromURL extracts the canonical store identifier from a listing URL,
// or empty string when the URL carries no recognizable store slug.
func StoreFromURL(rawURL string) string {
	match := storeSlugPattern.FindStringSubmatch(rawURL)
	if match == nil {
		return ""
	}
	slug := strings.ToLower(match[1])
	if store, ok := storeSlugs[slug]; ok {
		return store
	}
	return slug
}

func (r *Resolver) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	if err := r.policy.Validate(pageURL); err != nil {
		return nil, "", fmt.Errorf("url rejected by policy: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("can't build http request: %w", err)
	}
	req.Header.Add("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Add("Accept-Language", "en-US,en;q=0.9,ar;q=0.8")
	req.Header.Add("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("can't get http response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: %s", fetcher.ErrStatusNotOK, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/pdf") {
		return nil, contentType, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("can't parse page: %w", err)
	}

	return doc, contentType, nil
}

func absolutize(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
