package listing_test

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerscan/catalogue-parser/internal/fetcher"
	"github.com/offerscan/catalogue-parser/internal/listing"
)

const (
	userAgent = "test/0.0.0"
	siteHost  = "http://offers.example.com"
)

func openPolicy() fetcher.URLPolicy {
	return fetcher.NewURLPolicyWithResolver(func(host string) ([]net.IP, error) {
		return []net.IP{net.ParseIP("93.184.216.34")}, nil
	})
}

func testClient(srv *httptest.Server) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.Dial("tcp", srv.Listener.Addr().String())
			},
		},
	}
}

func serveHTML(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(wrt http.ResponseWriter, req *http.Request) {
		body, ok := pages[req.URL.Path]
		if !ok {
			wrt.WriteHeader(http.StatusNotFound)
			return
		}
		wrt.Header().Add("Content-Type", "text/html; charset=utf-8")
		wrt.Write([]byte(body))
	}))
	t.Cleanup(func() {
		srv.Close()
	})

	return srv
}

func TestResolveListing(t *testing.T) {
	srv := serveHTML(t, map[string]string{
		"/markets/kazyon-market": `<html><body>
			<a href="/catalogues/week-48">Kazyon weekly offers</a>
			<a href="/catalogues/week-48">Kazyon weekly offers duplicate</a>
			<a href="/catalogues/week-47" title="Last week offers">عروض الاسبوع الماضي</a>
			<a href="/about">About us</a>
			<a href="/offers/ramadan">R</a>
			<a href="/contact">Contact</a>
		</body></html>`,
	})

	res := listing.NewResolver(testClient(srv), openPolicy(), userAgent)
	links, err := res.ResolveListing(context.TODO(), siteHost+"/markets/kazyon-market")

	require.NoError(t, err, "shouldn't return error")
	require.Len(t, links, 2, "should keep deduplicated catalogue links with usable titles")

	assert.Equal(t, siteHost+"/catalogues/week-48", links[0].URL)
	assert.Equal(t, "Kazyon weekly offers", links[0].Title)
	assert.Equal(t, siteHost+"/catalogues/week-47", links[1].URL)
	assert.Equal(t, "عروض الاسبوع الماضي", links[1].Title)
}

func TestResolveListingFanOutCap(t *testing.T) {
	var anchors strings.Builder
	for ix := 1; ix <= 30; ix++ {
		fmt.Fprintf(&anchors, `<a href="/catalogues/offer-%d">Catalogue number %d</a>`, ix, ix)
	}

	srv := serveHTML(t, map[string]string{
		"/markets/metro-market": "<html><body>" + anchors.String() + "</body></html>",
	})

	res := listing.NewResolver(testClient(srv), openPolicy(), userAgent, listing.WithFanOutCap(3))
	links, err := res.ResolveListing(context.TODO(), siteHost+"/markets/metro-market")

	require.NoError(t, err, "shouldn't return error")
	assert.Len(t, links, 3, "should stop at the fan-out cap")
}

func TestResolveListingNotFound(t *testing.T) {
	srv := serveHTML(t, map[string]string{})

	res := listing.NewResolver(testClient(srv), openPolicy(), userAgent)
	_, err := res.ResolveListing(context.TODO(), siteHost+"/markets/gone")

	assert.ErrorIs(t, err, fetcher.ErrStatusNotOK, "should return status error")
}

func TestResolveListingRejectedByPolicy(t *testing.T) {
	res := listing.NewResolver(http.DefaultClient, fetcher.NewURLPolicy(), userAgent)

	_, err := res.ResolveListing(context.TODO(), "http://127.0.0.1/markets/kazyon-market")

	assert.ErrorIs(t, err, fetcher.ErrHostNotAllowed, "should reject loopback before any request")
}

func TestResolveAssets(t *testing.T) {
	tests := map[string]struct {
		html          string
		wantPDFURL    string
		wantImageURLs []string
	}{
		"pdf link preferred": {
			html: `<html><body>
				<a href="/files/catalogue-48.pdf">Download PDF</a>
				<img src="/pages/1.jpg">
			</body></html>`,
			wantPDFURL:    siteHost + "/files/catalogue-48.pdf",
			wantImageURLs: []string{siteHost + "/pages/1.jpg"},
		},
		"page images in document order": {
			html: `<html><body>
				<img src="/pages/3.webp">
				<img src="/pages/1.png">
				<img src="/static/logo.png">
				<img src="/pages/2.jpeg?v=2">
				<img src="/pages/cover.gif">
			</body></html>`,
			wantImageURLs: []string{
				siteHost + "/pages/3.webp",
				siteHost + "/pages/1.png",
				siteHost + "/pages/2.jpeg?v=2",
			},
		},
		"no assets": {
			html:          `<html><body><p>nothing here</p></body></html>`,
			wantImageURLs: nil,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			srv := serveHTML(t, map[string]string{"/catalogues/week-48": tt.html})

			res := listing.NewResolver(testClient(srv), openPolicy(), userAgent)
			assets, err := res.ResolveAssets(context.TODO(), siteHost+"/catalogues/week-48")

			require.NoError(t, err, "shouldn't return error")
			assert.Equal(t, tt.wantPDFURL, assets.PDFURL, "should resolve pdf link")
			assert.Equal(t, tt.wantImageURLs, assets.ImageURLs, "should resolve page images in order")
		})
	}
}

func TestResolveAssetsDirectPDF(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(wrt http.ResponseWriter, req *http.Request) {
		wrt.Header().Add("Content-Type", "application/pdf")
		wrt.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(func() {
		srv.Close()
	})

	pdfURL := siteHost + "/catalogues/week-48.pdf"

	res := listing.NewResolver(testClient(srv), openPolicy(), userAgent)
	assets, err := res.ResolveAssets(context.TODO(), pdfURL)

	require.NoError(t, err, "shouldn't return error")
	assert.Equal(t, pdfURL, assets.PDFURL, "pdf response resolves to the url itself")
	assert.Empty(t, assets.ImageURLs, "shouldn't list images")
}

func TestStoreFromURL(t *testing.T) {
	tests := map[string]struct {
		url  string
		want string
	}{
		"known slug":        {url: "https://x.com/markets/kazyon-market", want: "kazyon"},
		"known slug mapped": {url: "https://x.com/markets/kheir-zaman", want: "kheirzaman"},
		"unknown slug":      {url: "https://x.com/markets/new-store", want: "new-store"},
		"no slug":           {url: "https://x.com/catalogues/week-48", want: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, listing.StoreFromURL(tt.url), "should map store slug")
		})
	}
}
