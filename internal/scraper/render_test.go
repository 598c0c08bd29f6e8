package scraper

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
)

func lifecycle(name, loader string) *page.EventLifecycleEvent {
	return &page.EventLifecycleEvent{Name: name, LoaderID: cdp.LoaderID(loader)}
}

func TestIdleWatcher_IgnoresEventsBeforeArm(t *testing.T) {
	w := newIdleWatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	w.observe(lifecycle("init", "blank"))
	w.observe(lifecycle("networkIdle", "blank"))
	if err := w.wait(ctx); err == nil {
		t.Fatal("wait() returned before arming")
	}
}

func TestIdleWatcher_SignalsMatchingLoader(t *testing.T) {
	w := newIdleWatcher()
	w.arm()
	w.observe(lifecycle("networkIdle", "stale"))
	w.observe(lifecycle("init", "page"))
	w.observe(lifecycle("networkIdle", "page"))
	w.observe(lifecycle("networkIdle", "page"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.wait(ctx); err != nil {
		t.Fatalf("wait() error: %v", err)
	}
}
