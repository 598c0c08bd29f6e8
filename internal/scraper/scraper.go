package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/coherentcalendar/coherent-events/internal/logger"
)

const (
	UserAgent = "CoherentCalendar/1.0 (Boulder Community Calendar; hello@coherentcalendar.com)"
	Timeout   = 10 * time.Second

	// MaxBodyBytes is the default cap on a response body.
	MaxBodyBytes = 10 << 20
)

// RenderMode selects how a page is loaded.
type RenderMode string

const (
	RenderNever    RenderMode = "never"
	RenderFallback RenderMode = "fallback"
	RenderAlways   RenderMode = "always"
)

// ParseRenderMode parses a render mode name. The empty string means fallback.
func ParseRenderMode(s string) (RenderMode, error) {
	switch RenderMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RenderFallback:
		return RenderFallback, nil
	case RenderNever:
		return RenderNever, nil
	case RenderAlways:
		return RenderAlways, nil
	default:
		return "", fmt.Errorf("invalid render mode %q (must be never, fallback or always)", s)
	}
}

// ErrNoRenderer is returned when a page must be rendered but no Renderer is
// configured.
var ErrNoRenderer = errors.New("browser rendering not configured")

// ErrBodyTooLarge is returned when a response exceeds the body cap. The
// page is rejected rather than parsed partially.
var ErrBodyTooLarge = errors.New("response body too large")

// FetchError reports a page that could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: unexpected status code: %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// retryable reports whether another attempt might succeed.
func (e *FetchError) retryable() bool {
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, ErrBodyTooLarge)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Document is a fetched page.
type Document struct {
	URL      string
	Raw      []byte
	Doc      *goquery.Document
	Rendered bool
}

// NewDocument parses raw HTML fetched from url.
func NewDocument(url string, raw []byte, rendered bool) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	return &Document{URL: url, Raw: raw, Doc: doc, Rendered: rendered}, nil
}

// Renderer loads a URL in a scripted browser and returns the final HTML.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Options configures a Fetcher. Zero values select the defaults.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Retries is the number of extra plain-fetch attempts after a transient
	// failure. Zero disables retrying.
	Retries int
	// RetryInterval is the first backoff delay; it doubles per attempt.
	RetryInterval time.Duration
	// MaxBodyBytes caps a response body; larger pages fail with
	// ErrBodyTooLarge.
	MaxBodyBytes int64
	Renderer     Renderer
	Client       *http.Client
}

// Fetcher retrieves pages over HTTP, with optional browser rendering.
type Fetcher struct {
	client        *http.Client
	userAgent     string
	retries       int
	retryInterval time.Duration
	maxBodyBytes  int64
	renderer      Renderer
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = UserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = Timeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = MaxBodyBytes
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		client:        client,
		userAgent:     opts.UserAgent,
		retries:       opts.Retries,
		retryInterval: opts.RetryInterval,
		maxBodyBytes:  opts.MaxBodyBytes,
		renderer:      opts.Renderer,
	}
}

// CanRender reports whether a Renderer is configured.
func (f *Fetcher) CanRender() bool {
	return f.renderer != nil
}

// Fetch retrieves url according to mode.
func (f *Fetcher) Fetch(ctx context.Context, url string, mode RenderMode) (*Document, error) {
	switch mode {
	case RenderAlways:
		return f.render(ctx, url)
	case RenderNever:
		return f.get(ctx, url)
	}

	doc, err := f.get(ctx, url)
	if err == nil {
		return doc, nil
	}
	if f.renderer == nil || ctx.Err() != nil {
		return nil, err
	}

	logger.Warn("Plain fetch failed, rendering instead", logger.Fields{
		"url":   url,
		"error": err.Error(),
	})
	logger.IncrCounter("fetch.render_fallback")

	doc, renderErr := f.render(ctx, url)
	if renderErr != nil {
		return nil, &FetchError{URL: url, Err: errors.Join(err, renderErr)}
	}
	return doc, nil
}

// get performs the plain fetch, retrying transient failures when enabled.
func (f *Fetcher) get(ctx context.Context, url string) (*Document, error) {
	var doc *Document
	attempt := 0
	op := func() error {
		attempt++
		d, err := f.getOnce(ctx, url)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && !fe.retryable() {
				return backoff.Permanent(err)
			}
			return err
		}
		doc = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retries)), ctx)

	notify := func(err error, wait time.Duration) {
		logger.Debug("Retrying fetch", logger.Fields{
			"url":     url,
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return doc, nil
}

func (f *Fetcher) getOnce(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(raw)) > f.maxBodyBytes {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.maxBodyBytes)}
	}

	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	doc, err := NewDocument(final, raw, false)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return doc, nil
}

func (f *Fetcher) render(ctx context.Context, url string) (*Document, error) {
	if f.renderer == nil {
		return nil, &FetchError{URL: url, Err: ErrNoRenderer}
	}

	start := time.Now()
	html, err := f.renderer.Render(ctx, url)
	logger.RecordTiming("fetch.render", time.Since(start))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("rendering: %w", err)}
	}

	doc, err := NewDocument(url, []byte(html), true)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	return doc, nil
}
