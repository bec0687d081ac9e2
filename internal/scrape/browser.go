package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"github.com/tinytelemetry/valuewatch/internal/fetch"
)

// BrowserFetcher reads values from pages rendered by headless Chrome.
// Chrome is launched on the first fetch and shared by all later ones; each
// fetch uses its own tab, so concurrent fetches are safe.
type BrowserFetcher struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowserFetcher creates a fetcher. No browser is started until needed.
func NewBrowserFetcher(cfg Config) *BrowserFetcher {
	cfg.defaults()
	return &BrowserFetcher{cfg: cfg}
}

// Fetch opens url in a stealth tab, waits for selector and returns the
// element's normalized text.
func (b *BrowserFetcher) Fetch(ctx context.Context, url, selector string) (string, error) {
	br, err := b.ensureBrowser()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	page, err := stealth.Page(br)
	if err != nil {
		return "", fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	p := page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("browser: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		log.Printf("browser: wait load %s: %v", url, err)
	}

	el, err := p.Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("browser: selector not found before timeout: %w", fetch.ErrNoValue)
		}
		return "", fmt.Errorf("browser: find element: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("browser: read text: %w", err)
	}
	return Normalize(text), nil
}

// Close shuts Chrome down. Later fetches fail.
func (b *BrowserFetcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.cleanupLocked()
}

func (b *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("browser: fetcher is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	wsURL := b.cfg.RemoteURL
	if wsURL == "" {
		l := launcher.New().Headless(!b.cfg.Headful)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		log.Printf("browser: launched local chrome at %s", wsURL)
	} else {
		log.Printf("browser: connecting to remote chrome at %s", wsURL)
	}

	br := rod.New().ControlURL(wsURL)
	if err := br.Connect(); err != nil {
		if b.lnch != nil {
			b.lnch.Cleanup()
			b.lnch = nil
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	b.browser = br
	return br, nil
}

func (b *BrowserFetcher) cleanupLocked() error {
	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
	return err
}
