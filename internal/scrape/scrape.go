// Package scrape provides the page-value extractors used by the tracker:
// a headless Chrome fetcher for script-rendered pages and a plain HTTP
// fetcher for static ones.
package scrape

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinytelemetry/valuewatch/internal/fetch"
	"github.com/tinytelemetry/valuewatch/internal/model"
)

// Fetcher kinds accepted by New.
const (
	KindBrowser = "browser"
	KindHTTP    = "http"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

// Config selects and tunes a fetcher.
type Config struct {
	Kind      string        // "browser" (default) or "http"
	Timeout   time.Duration // per fetch, including navigation
	RemoteURL string        // browser: DevTools websocket of an already running Chrome
	Headful   bool          // browser: show the window; ignored when RemoteURL is set
	UserAgent string        // http
}

func (c *Config) defaults() {
	if c.Kind == "" {
		c.Kind = KindBrowser
	}
	if c.Timeout <= 0 {
		c.Timeout = model.DefaultFetchTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
}

// Closer is a fetcher that holds resources.
type Closer interface {
	fetch.Fetcher
	Close() error
}

// New builds the fetcher named by cfg.Kind.
func New(cfg Config) (Closer, error) {
	cfg.defaults()
	switch strings.ToLower(cfg.Kind) {
	case KindBrowser:
		return NewBrowserFetcher(cfg), nil
	case KindHTTP:
		return NewHTTPFetcher(cfg), nil
	default:
		return nil, fmt.Errorf("scrape: unknown fetcher %q (want %s or %s)", cfg.Kind, KindBrowser, KindHTTP)
	}
}

// Normalize cleans extracted text: surrounding whitespace is trimmed, inner
// runs of whitespace collapse to one space, and thousands separators are
// removed so "1,299.00" compares equal across fetches.
func Normalize(raw string) string {
	s := strings.Join(strings.Fields(raw), " ")
	return strings.ReplaceAll(s, ",", "")
}
