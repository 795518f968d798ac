package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/KevinLaRosa/yorimichi-workers/internal/globaltime"
)

const (
	DefaultEndpoint      = "https://app.scrapingbee.com/api/v1/"
	DefaultInterval      = 1500 * time.Millisecond
	DefaultTimeout       = 60 * time.Second
	DefaultMaxRetries    = 3
	DefaultBackoffBase   = 2 * time.Second
	DefaultBodyByteLimit = 8 * 1024 * 1024
)

// Transient failures are retried with backoff; permanent ones are terminal
// for the URL.
var (
	ErrTransient = errors.New("transient fetch failure")
	ErrPermanent = errors.New("permanent fetch failure")
)

// Error carries the upstream status code alongside the transient/permanent
// classification sentinel.
type Error struct {
	URL        string
	StatusCode int
	Attempts   int
	kind       error
	cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s)", e.URL, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("fetch %s after %d attempt(s): %v", e.URL, e.Attempts, e.cause)
}

func (e *Error) Unwrap() error {
	return e.kind
}

// Result is one successfully fetched document. It lives only for the
// duration of a single pipeline pass.
type Result struct {
	URL        string
	StatusCode int
	Body       []byte
	FetchedAt  time.Time
}

// Options configures the rendering-proxy client.
type Options struct {
	APIKey        string
	Endpoint      string
	RenderJS      bool
	PremiumProxy  bool
	Interval      time.Duration
	Timeout       time.Duration
	MaxRetries    int
	BackoffBase   time.Duration
	BodyByteLimit int64
	HTTPClient    *http.Client
}

// Client fetches rendered documents through a ScrapingBee-compatible proxy.
// One Client holds one global throttle: the inter-request interval is
// enforced across every call, retries included.
type Client struct {
	opts    Options
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewClient(logger zerolog.Logger, opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BodyByteLimit <= 0 {
		opts.BodyByteLimit = DefaultBodyByteLimit
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}

	return &Client{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.Interval), 1),
		logger:  logger,
	}
}

// Fetch retrieves the rendered document for target. Timeouts, 429 and 5xx
// responses are retried up to MaxRetries times with exponential backoff;
// any other 4xx fails immediately and wraps ErrPermanent.
func (c *Client) Fetch(ctx context.Context, target string) (*Result, error) {
	if c == nil {
		return nil, fmt.Errorf("fetch client is not initialized")
	}

	var lastErr *Error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.opts.BackoffBase * time.Duration(1<<(attempt-1))
			c.logger.Debug().
				Str("url", target).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying fetch")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		result, fetchErr := c.fetchOnce(ctx, target, attempt+1)
		if fetchErr == nil {
			return result, nil
		}
		if errors.Is(fetchErr, ErrPermanent) {
			return nil, fetchErr
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = asFetchError(fetchErr, target, attempt+1)
	}

	return nil, lastErr
}

func (c *Client) fetchOnce(ctx context.Context, target string, attempt int) (*Result, error) {
	requestCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	proxied, err := c.buildRequestURL(target)
	if err != nil {
		return nil, &Error{URL: target, Attempts: attempt, kind: ErrPermanent, cause: err}
	}

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, proxied, nil)
	if err != nil {
		return nil, &Error{URL: target, Attempts: attempt, kind: ErrPermanent, cause: err}
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, &Error{URL: target, Attempts: attempt, kind: ErrTransient, cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.BodyByteLimit))
	if err != nil {
		return nil, &Error{URL: target, Attempts: attempt, kind: ErrTransient, cause: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return &Result{
			URL:        target,
			StatusCode: resp.StatusCode,
			Body:       body,
			FetchedAt:  globaltime.UTC(),
		}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &Error{URL: target, StatusCode: resp.StatusCode, Attempts: attempt, kind: ErrTransient}
	default:
		return nil, &Error{URL: target, StatusCode: resp.StatusCode, Attempts: attempt, kind: ErrPermanent}
	}
}

func (c *Client) buildRequestURL(target string) (string, error) {
	endpoint, err := url.Parse(c.opts.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse proxy endpoint: %w", err)
	}

	query := endpoint.Query()
	query.Set("api_key", c.opts.APIKey)
	query.Set("url", target)
	query.Set("render_js", strconv.FormatBool(c.opts.RenderJS))
	query.Set("premium_proxy", strconv.FormatBool(c.opts.PremiumProxy))
	query.Set("block_resources", "true")
	endpoint.RawQuery = query.Encode()

	return endpoint.String(), nil
}

func asFetchError(err error, target string, attempts int) *Error {
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		fetchErr.Attempts = attempts
		return fetchErr
	}
	return &Error{URL: target, Attempts: attempts, kind: ErrTransient, cause: err}
}
