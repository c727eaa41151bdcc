// Package render wraps the headless rendering backend used by the web tier.
// The rest of the spider only sees the Renderer interface and PageSnapshot;
// the Chrome session behind it is a black box.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"gitspider/internal/config"
	"gitspider/internal/logging"
)

// PageSnapshot is the raw output of one rendered page: the markup after
// scripts have run, plus a markdown-style text projection of it.
type PageSnapshot struct {
	URL  string
	HTML string
	Text string
}

// Renderer renders a URL in the headless backend and returns its snapshot.
type Renderer interface {
	Render(ctx context.Context, url string) (*PageSnapshot, error)
	Close() error
}

// RodRenderer drives a headless Chrome via rod. The browser is launched
// lazily on first Render so crawls that never leave the structured tier pay
// nothing for it.
type RodRenderer struct {
	cfg config.RenderConfig

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodRenderer creates a renderer; no browser is launched yet.
func NewRodRenderer(cfg config.RenderConfig) *RodRenderer {
	return &RodRenderer{cfg: cfg}
}

// ensureStarted launches and connects to Chrome. Caller must hold r.mu.
func (r *RodRenderer) ensureStarted() error {
	if r.browser != nil {
		return nil
	}

	l := launcher.New().Headless(r.cfg.Headless)
	if r.cfg.BrowserBin != "" {
		l = l.Bin(r.cfg.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	r.launcher = l
	r.browser = browser
	logging.Render("Headless browser started (headless=%v)", r.cfg.Headless)
	return nil
}

// Render navigates a fresh page to url, waits for it to settle, and captures
// markup plus text projection. The page is closed before returning.
func (r *RodRenderer) Render(ctx context.Context, url string) (*PageSnapshot, error) {
	r.mu.Lock()
	err := r.ensureStarted()
	browser := r.browser
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	defer func() { _ = page.Close() }()

	page = page.Context(ctx).Timeout(r.cfg.PageTimeoutDuration())

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportOrDefault(r.cfg.ViewportWidth, 1280),
		Height:            viewportOrDefault(r.cfg.ViewportHeight, 900),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.RenderWarn("failed to set viewport: %v", err)
	}

	if err := page.Navigate(url); err != nil {
		return nil, fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load %s: %w", url, err)
	}
	// Give client-side listing code a chance to settle; errors here just
	// mean the DOM kept mutating, which the extraction cascade tolerates.
	_ = page.WaitDOMStable(r.cfg.PageTimeoutDuration()/10, 0.1)

	markup, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("capture markup %s: %w", url, err)
	}

	logging.Render("Rendered %s (%d bytes)", url, len(markup))
	return &PageSnapshot{
		URL:  url,
		HTML: markup,
		Text: TextProjection(markup),
	}, nil
}

// Close shuts down the browser if one was launched.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	if r.launcher != nil {
		r.launcher.Cleanup()
	}
	r.browser = nil
	r.launcher = nil
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func viewportOrDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
