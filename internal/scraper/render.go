package scraper

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// RenderTimeout bounds one browser render when none is configured.
const RenderTimeout = 30 * time.Second

// ChromeRenderer renders pages in a headless Chromium. Each Render call
// starts its own browser and tears it down before returning.
type ChromeRenderer struct {
	UserAgent string
	Timeout   time.Duration
	// ExecPath overrides the Chromium binary; empty searches the usual
	// install locations.
	ExecPath string
}

// NewChromeRenderer returns a renderer identified by userAgent.
func NewChromeRenderer(userAgent string, timeout time.Duration, execPath string) *ChromeRenderer {
	return &ChromeRenderer{UserAgent: userAgent, Timeout: timeout, ExecPath: execPath}
}

// Render navigates to url, waits until the network is idle and returns the
// document's outer HTML.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	userAgent := r.UserAgent
	if userAgent == "" {
		userAgent = UserAgent
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = RenderTimeout
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.UserAgent(userAgent))
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	idle := newIdleWatcher()
	chromedp.ListenTarget(tabCtx, idle.observe)

	var html string
	err := chromedp.Run(tabCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(context.Context) error {
			idle.arm()
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.ActionFunc(idle.wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("chromedp run failed: %w", err)
	}
	return html, nil
}

// idleWatcher signals the first networkIdle lifecycle event of the
// navigation started after arm. Events replayed for the initial blank page
// arrive before arming and are ignored.
type idleWatcher struct {
	armed  atomic.Bool
	mu     sync.Mutex
	loader cdp.LoaderID
	done   chan struct{}
	once   sync.Once
}

func newIdleWatcher() *idleWatcher {
	return &idleWatcher{done: make(chan struct{})}
}

func (w *idleWatcher) arm() {
	w.armed.Store(true)
}

func (w *idleWatcher) observe(ev interface{}) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok || !w.armed.Load() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch e.Name {
	case "init":
		w.loader = e.LoaderID
	case "networkIdle":
		if w.loader != "" && e.LoaderID == w.loader {
			w.once.Do(func() { close(w.done) })
		}
	}
}

func (w *idleWatcher) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for network idle: %w", ctx.Err())
	}
}
