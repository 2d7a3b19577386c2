package fetcher

import "errors"

var (
	// ErrStatusNotOK is returned when http response had status different than 200 OK.
	ErrStatusNotOK = errors.New("response status is not 200 OK")
	// ErrContentTypeNotSupported is returned when response content type is not supported.
	ErrContentTypeNotSupported = errors.New("response content type not supported")
	// ErrSchemeNotAllowed is returned for URLs with scheme other than http or https.
	ErrSchemeNotAllowed = errors.New("url scheme not allowed")
	// ErrHostNotAllowed is returned for URLs resolving to loopback, private or link-local addresses.
	ErrHostNotAllowed = errors.New("url host not allowed")
	// ErrAllAssetsFailed is returned when no asset of a catalogue could be fetched.
	ErrAllAssetsFailed = errors.New("all assets failed to download")
)
