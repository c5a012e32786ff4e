package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Renderer loads a page in a browser and returns the rendered HTML.
// Implementations must be safe for concurrent use.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// RodConfig configures a RodRenderer.
type RodConfig struct {
	// ControlURL is the DevTools WebSocket URL of a running Chrome.
	// Empty launches a local headless Chrome on first use.
	ControlURL string

	// IdleTime is how long the network must be quiet before the page
	// counts as loaded. Default: 500ms.
	IdleTime time.Duration

	Logger *slog.Logger
}

func (c *RodConfig) defaults() {
	if c.IdleTime <= 0 {
		c.IdleTime = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RodRenderer renders pages with a shared headless Chrome driven by go-rod.
// The browser is started lazily and each render uses its own stealth page.
// Callers waiting for the browser give up when their context ends; a launch
// or handshake that never completes is abandoned by Close.
type RodRenderer struct {
	cfg    RodConfig
	logger *slog.Logger
	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	conn   *rodConn
	closed bool
}

// rodConn is one attempt to reach a browser. Its fields are written
// before done is closed, under the renderer's mutex.
type rodConn struct {
	done    chan struct{}
	browser *rod.Browser
	lnch    *launcher.Launcher
	err     error
}

func (c *rodConn) finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

var _ Renderer = (*RodRenderer)(nil)

// NewRodRenderer creates a renderer. Chrome is not started until the first Render.
func NewRodRenderer(cfg RodConfig) *RodRenderer {
	cfg.defaults()
	base, cancel := context.WithCancel(context.Background())
	return &RodRenderer{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "rod-renderer"),
		base:   base,
		cancel: cancel,
	}
}

// Render navigates to url, waits for the network to go idle, and returns the page HTML.
func (r *RodRenderer) Render(ctx context.Context, url string) (string, error) {
	b, err := r.connect(ctx)
	if err != nil {
		return "", err
	}

	page, err := stealth.Page(b.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(r.base, 5*time.Second)
		defer cancel()
		_ = page.Context(closeCtx).Close()
	}()

	wait := page.WaitRequestIdle(r.cfg.IdleTime, nil, nil, nil)
	if err := page.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return html, nil
}

// connect returns the shared browser, starting a dial on first use or after
// a failed one. It waits for the dial only as long as ctx allows.
func (r *RodRenderer) connect(ctx context.Context) (*rod.Browser, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	c := r.conn
	if c == nil || (c.finished() && c.err != nil) {
		c = &rodConn{done: make(chan struct{})}
		r.conn = c
		go r.dial(c)
	}
	r.mu.Unlock()

	select {
	case <-c.done:
		if c.err != nil {
			return nil, c.err
		}
		return c.browser, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for browser: %w", ctx.Err())
	}
}

// dial launches or connects to Chrome and publishes the outcome on c.
func (r *RodRenderer) dial(c *rodConn) {
	browser, lnch, err := r.open()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed && err == nil {
		_ = r.shutdown(browser, lnch)
		browser, lnch, err = nil, nil, ErrBrowserClosed
	}
	c.browser, c.lnch, c.err = browser, lnch, err
	close(c.done)
}

// open runs on the renderer's base context so only Close interrupts it.
func (r *RodRenderer) open() (browser *rod.Browser, lnch *launcher.Launcher, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("connect browser: %v", p)
		}
		if err != nil {
			if lnch != nil {
				lnch.Kill()
			}
			browser, lnch = nil, nil
		}
	}()

	wsURL := r.cfg.ControlURL
	if wsURL == "" {
		lnch = launcher.New().
			Context(r.base).
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		wsURL, err = lnch.Launch()
		if err != nil {
			return nil, lnch, fmt.Errorf("launch browser: %w", err)
		}
		r.logger.Info("launched local chrome", "url", wsURL)
	} else {
		r.logger.Info("connecting to remote chrome", "url", wsURL)
	}

	browser = rod.New().Context(r.base).ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, lnch, fmt.Errorf("connect browser: %w", err)
	}
	return browser, lnch, nil
}

// shutdown closes a launched browser. A remote browser is left running.
func (r *RodRenderer) shutdown(browser *rod.Browser, lnch *launcher.Launcher) error {
	if lnch == nil {
		return nil
	}
	var err error
	if browser != nil {
		err = browser.Close()
	}
	lnch.Kill()
	return err
}

// Close shuts down a launched Chrome and abandons any dial in flight.
// A remote browser is left running.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	defer r.cancel()

	if r.conn == nil || !r.conn.finished() {
		// an unfinished dial cleans up after itself
		return nil
	}
	c := r.conn
	r.conn = nil
	return r.shutdown(c.browser, c.lnch)
}
