package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.APIKey = "test-key"
	opts.Endpoint = server.URL
	if opts.Interval == 0 {
		opts.Interval = time.Millisecond
	}
	if opts.BackoffBase == 0 {
		opts.BackoffBase = time.Millisecond
	}
	opts.HTTPClient = server.Client()
	return NewClient(zerolog.Nop(), opts)
}

func TestFetch_Success(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("missing api_key parameter")
		}
		if r.URL.Query().Get("url") != "https://example.com/place/x/" {
			t.Errorf("unexpected url parameter: %q", r.URL.Query().Get("url"))
		}
		if r.URL.Query().Get("render_js") != "false" {
			t.Errorf("unexpected render_js parameter")
		}
		_, _ = w.Write([]byte("<html>ok</html>"))
	}, Options{})

	result, err := client.Fetch(context.Background(), "https://example.com/place/x/")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", result.StatusCode)
	}
	if string(result.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected body: %q", result.Body)
	}
	if result.FetchedAt.IsZero() {
		t.Fatalf("expected fetched-at timestamp")
	}
}

func TestFetch_RetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("late"))
	}, Options{MaxRetries: 3})

	result, err := client.Fetch(context.Background(), "https://example.com/place/y/")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if string(result.Body) != "late" {
		t.Fatalf("unexpected body: %q", result.Body)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestFetch_RetryBoundIsExact(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, Options{MaxRetries: 2})

	_, err := client.Fetch(context.Background(), "https://example.com/place/z/")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	// initial attempt + MaxRetries retries
	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}

	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *fetch.Error, got %T", err)
	}
	if fetchErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected status on error: %d", fetchErr.StatusCode)
	}
}

func TestFetch_PermanentFailureDoesNotRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}, Options{MaxRetries: 3})

	_, err := client.Fetch(context.Background(), "https://example.com/gone/")
	if !errors.Is(err, ErrPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected a single attempt for permanent failure, got %d", got)
	}
}

func TestFetch_ThrottleSpacesRequests(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}, Options{Interval: 40 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := client.Fetch(context.Background(), "https://example.com/place/t/"); err != nil {
			t.Fatalf("fetch %d failed: %v", i, err)
		}
	}
	// first call is immediate, the next two wait one interval each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Fatalf("throttle not enforced: 3 fetches took %v", elapsed)
	}
}

func TestFetch_ContextCancellation(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, Options{MaxRetries: 5, BackoffBase: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, "https://example.com/place/c/")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline error, got %v", err)
	}
}
