// Package browser owns the headless Chrome process used by a scrape job.
// A Session is created at job start, hands out one tab per store navigation,
// and is closed in the job's cleanup path so browser processes never outlive
// the job that spawned them.
package browser

import (
	"context"
	"fmt"
	"os"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds browser process settings
type Config struct {
	Headless  bool
	UserAgent string
	// ProxyURL, when set, routes all tabs through the given proxy
	// (scheme://host:port).
	ProxyURL string
	Logger   *logrus.Logger
}

// NewConfig builds a browser Config from environment variables.
func NewConfig(logger *logrus.Logger) Config {
	headless := os.Getenv("BROWSER_HEADFUL") == ""
	ua := os.Getenv("BROWSER_USER_AGENT")
	if ua == "" {
		ua = defaultUserAgent
	}
	return Config{
		Headless:  headless,
		UserAgent: ua,
		Logger:    logger,
	}
}

// Session wraps one Chrome process. One Session is shared across all
// identifiers in a job; each store navigation gets its own tab.
type Session struct {
	allocCtx     context.Context
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserClose context.CancelFunc
	logger       *logrus.Logger
}

// NewSession launches a Chrome process with anti-automation-evasion flags.
// The caller must Close the session when the job ends.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("window-size", "1366,900"),
		chromedp.Flag("lang", "en-US"),
		chromedp.UserAgent(cfg.UserAgent),
	)
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)

	browserCtx, browserClose := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so launch failures surface here,
	// not on the first store navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		browserClose()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"headless": cfg.Headless,
		"proxied":  cfg.ProxyURL != "",
	}).Debug("Browser session started")

	return &Session{
		allocCtx:     allocCtx,
		allocCancel:  allocCancel,
		browserCtx:   browserCtx,
		browserClose: browserClose,
		logger:       cfg.Logger,
	}, nil
}

// NewTab opens an isolated tab in the shared browser process. The returned
// cancel func closes only the tab; sibling tabs are unaffected.
func (s *Session) NewTab() (context.Context, context.CancelFunc) {
	return chromedp.NewContext(s.browserCtx)
}

// Close tears down every tab and the browser process itself.
func (s *Session) Close() {
	s.browserClose()
	s.allocCancel()
	s.logger.Debug("Browser session closed")
}
