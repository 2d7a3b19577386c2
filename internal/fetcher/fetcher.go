package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

// Asset is one successfully downloaded page asset.
type Asset struct {
	URL         string
	Body        []byte
	ContentType string
}

// FailedAsset records one asset which could not be downloaded after retries.
type FailedAsset struct {
	URL string
	Err error
}

// Result holds the successful subset of a multi-asset download plus the
// manifest of failures. Assets keep the order of the requested URLs.
type Result struct {
	Assets []Asset
	Failed []FailedAsset
}

// retryableError marks an http failure worth retrying (network or 5xx).
type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Fetcher downloads remote page assets with retries and bounded parallelism.
type Fetcher struct {
	client     *http.Client
	policy     URLPolicy
	userAgent  string
	maxRetries uint64
	workers    int
}

// Option is custom configuration of Fetcher.
type Option func(f *Fetcher)

// NewFetcher returns new Fetcher.
func NewFetcher(client *http.Client, policy URLPolicy, userAgent string, ops ...Option) *Fetcher {
	fetch := &Fetcher{
		client:     client,
		policy:     policy,
		userAgent:  userAgent,
		maxRetries: 2, // 3 attempts total
		workers:    4,
	}

	for _, op := range ops {
		op(fetch)
	}

	return fetch
}

// WithRetries sets the number of retries after the first attempt.
func WithRetries(retries uint64) Option {
	return func(f *Fetcher) {
		f.maxRetries = retries
	}
}

// WithWorkers sets the size of the per-catalogue download pool.
func WithWorkers(workers int) Option {
	return func(f *Fetcher) {
		f.workers = workers
	}
}

// FetchAll downloads all urls with bounded parallelism and per-asset retries.
// It returns the successful subset in request order plus a manifest of
// failures. It returns an error only when the whole operation is canceled.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) (*Result, error) {
	assets := make([]*Asset, len(urls))
	failures := make([]*FailedAsset, len(urls))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.workers)

	for ix, assetURL := range urls {
		ix, assetURL := ix, assetURL
		group.Go(func() error {
			asset, err := f.FetchAsset(groupCtx, assetURL)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				failures[ix] = &FailedAsset{URL: assetURL, Err: err}
				return nil
			}
			assets[ix] = asset
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("can't fetch assets: %w", err)
	}

	result := Result{}
	for ix := range assets {
		if assets[ix] != nil {
			result.Assets = append(result.Assets, *assets[ix])
			continue
		}
		result.Failed = append(result.Failed, *failures[ix])
	}

	return &result, nil
}

// FetchAsset downloads one asset with retries. The URL is validated against
// the anti-SSRF policy before any request is issued. A 4xx response fails
// immediately; network errors and 5xx responses are retried with exponential
// backoff and jitter.
func (f *Fetcher) FetchAsset(ctx context.Context, assetURL string) (*Asset, error) {
	if err := f.policy.Validate(assetURL); err != nil {
		return nil, fmt.Errorf("url rejected by policy: %w", err)
	}

	var asset *Asset

	operation := func() error {
		fetched, err := f.fetchOnce(ctx, assetURL)
		if err != nil {
			var retryable retryableError
			if errors.As(err, &retryable) {
				return retryable
			}
			return backoff.Permanent(err)
		}
		asset = fetched
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries),
		ctx,
	)

	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("can't fetch %q: %w", assetURL, err)
	}

	return asset, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, assetURL string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("can't build http request: %w", err)
	}

	req.Header.Add("Accept", "image/webp,image/*,application/pdf;q=0.9,*/*;q=0.8")
	req.Header.Add("Accept-Language", "en-US,en;q=0.9,ar;q=0.8")
	req.Header.Add("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, retryableError{err: fmt.Errorf("can't get http response: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s", ErrStatusNotOK, resp.Status)
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, retryableError{err: err}
		}
		return nil, err
	}

	contentType := resp.Header.Get("Content-Type")
	if !supportedContentType(contentType) {
		return nil, fmt.Errorf("%w: %q", ErrContentTypeNotSupported, contentType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retryableError{err: fmt.Errorf("can't read response body: %w", err)}
	}

	return &Asset{
		URL:         assetURL,
		Body:        body,
		ContentType: contentType,
	}, nil
}

func supportedContentType(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return true
	case strings.HasPrefix(contentType, "application/pdf"):
		return true
	case strings.HasPrefix(contentType, "application/octet-stream"):
		// some CDNs serve flyer images without a proper content type
		return true
	default:
		return false
	}
}
