package interpret

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coherentcalendar/coherent-events/internal/logger"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	DefaultTimeout = 60 * time.Second

	// DefaultMaxResponseBytes caps a reply body.
	DefaultMaxResponseBytes = 4 << 20

	maxErrorBody = 512
)

// ErrMalformedResponse is returned when a reply holds nothing usable.
var ErrMalformedResponse = errors.New("malformed interpretation response")

// ErrResponseTooLarge is returned when a reply exceeds the size cap.
var ErrResponseTooLarge = errors.New("interpretation response too large")

// ServiceError is a non-2xx reply from the interpretation service.
type ServiceError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("interpretation service returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ServiceError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// Retries is the number of extra attempts after a 429 or 5xx reply.
	Retries       int
	RetryInterval time.Duration
	// MaxResponseBytes caps a reply body. Zero means DefaultMaxResponseBytes.
	MaxResponseBytes int64
	HTTPClient       *http.Client
}

// Client calls a chat completions endpoint.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	retries       int
	retryInterval time.Duration
	maxResponse   int64
	httpClient    *http.Client
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		model:         opts.Model,
		retries:       opts.Retries,
		retryInterval: opts.RetryInterval,
		maxResponse:   opts.MaxResponseBytes,
		httpClient:    hc,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Interpret sends text with the instruction prompt and returns the model's
// reply verbatim.
func (c *Client) Interpret(ctx context.Context, prompt, text string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompt},
			{Role: "user", Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0
	wait := &retryAfter{BackOff: b}
	policy := backoff.WithContext(backoff.WithMaxRetries(wait, uint64(c.retries)), ctx)

	var reply string
	op := func() error {
		r, err := c.complete(ctx, payload)
		if err == nil {
			reply = r
			return nil
		}
		var se *ServiceError
		if errors.As(err, &se) {
			if !se.retryable() {
				return backoff.Permanent(err)
			}
			wait.next = retryAfterDelay(se.retryAfter)
		}
		if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrResponseTooLarge) {
			return backoff.Permanent(err)
		}
		return err
	}

	start := time.Now()
	err = backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		logger.Warn("Interpretation request failed, retrying", logger.Fields{
			"wait":  wait.String(),
			"error": err.Error(),
		})
	})
	logger.RecordTiming("interpret.request", time.Since(start))
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return "", perm.Err
		}
		return "", err
	}
	return reply, nil
}

func (c *Client) complete(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling interpretation service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponse+1))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	if ok && int64(len(body)) > c.maxResponse {
		return "", fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, c.maxResponse)
	}

	if !ok {
		bodyStr := string(body)
		if len(bodyStr) > maxErrorBody {
			bodyStr = bodyStr[:maxErrorBody]
		}
		return "", &ServiceError{
			StatusCode: resp.StatusCode,
			Body:       bodyStr,
			retryAfter: resp.Header.Get("Retry-After"),
		}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return cr.Choices[0].Message.Content, nil
}

// retryAfter substitutes the server's Retry-After delay, when one was sent,
// for the next exponential step.
type retryAfter struct {
	backoff.BackOff
	next time.Duration
}

func (r *retryAfter) NextBackOff() time.Duration {
	d := r.BackOff.NextBackOff()
	if d != backoff.Stop && r.next > 0 {
		d, r.next = r.next, 0
	}
	return d
}

// maxRetryAfter caps how long a Retry-After header can stall a run.
const maxRetryAfter = time.Minute

// retryAfterDelay parses a Retry-After header given in seconds.
func retryAfterDelay(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}
