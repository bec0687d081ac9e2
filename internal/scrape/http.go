package scrape

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/tinytelemetry/valuewatch/internal/fetch"
)

// HTTPFetcher downloads the page and evaluates the selector against the
// static HTML. It does not run scripts.
type HTTPFetcher struct {
	client *resty.Client
}

// NewHTTPFetcher creates a fetcher with its own client.
func NewHTTPFetcher(cfg Config) *HTTPFetcher {
	cfg.defaults()
	client := resty.New()
	client.SetHeader("user-agent", cfg.UserAgent)
	client.SetTimeout(cfg.Timeout)
	return &HTTPFetcher{client: client}
}

// Fetch returns the normalized text of the first element matching selector.
func (h *HTTPFetcher) Fetch(ctx context.Context, url, selector string) (string, error) {
	res, err := h.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return "", fmt.Errorf("http: get: %w", err)
	}
	if res.IsError() {
		return "", fmt.Errorf("http: unexpected status %d", res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return "", fmt.Errorf("http: parse: %w", err)
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return "", fetch.ErrNoValue
	}
	return Normalize(sel.Text()), nil
}

// Close releases idle connections.
func (h *HTTPFetcher) Close() error {
	h.client.GetClient().CloseIdleConnections()
	return nil
}
