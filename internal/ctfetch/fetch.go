// Package ctfetch issues GET requests against a CT log's endpoints with
// capped exponential backoff and 429/Retry-After handling.
package ctfetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Fetcher issues retried GETs against one CT log's base URL.
type Fetcher struct {
	client     *http.Client
	maxRetries int
	newBackOff func() backoff.BackOff
}

// New returns a Fetcher whose transport is wrapped for tracing and bounded
// by requestTimeout per attempt.
func New(requestTimeout time.Duration, maxRetries int) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout:   requestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: maxRetries,
		newBackOff: capBackOff,
	}
}

// capBackOff caps the exponential backoff's individual interval at 60s, per
// spec.md §4.A's min(2^attempt, 60) rule; it never gives up on its own —
// the attempt budget is owned by Get, not by the interval generator.
func capBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return b
}

// Get fetches url, retrying transient failures up to maxRetries times with
// capped exponential backoff. HTTP 429 responses are retried indefinitely
// without consuming the retry budget, honoring Retry-After when present.
// Returns nil, nil on exhaustion: the caller decides how to proceed.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	bo := f.newBackOff()
	attempt := 0

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := f.client.Do(req)

		if err == nil && resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfterOrBackoff(resp, bo)
			resp.Body.Close()
			log.Printf("ctfetch: 429 from %s, sleeping %s", url, wait)
			if !sleep(ctx, wait) {
				return nil, ctx.Err()
			}
			continue
		}

		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			defer resp.Body.Close()
			return io.ReadAll(resp.Body)
		}

		if err == nil {
			resp.Body.Close()
			log.Printf("ctfetch: non-2xx status %s from %s", resp.Status, url)
		} else {
			log.Printf("ctfetch: request to %s failed: %v", url, err)
		}

		if attempt >= f.maxRetries {
			return nil, nil
		}
		attempt++
		if !sleep(ctx, bo.NextBackOff()) {
			return nil, ctx.Err()
		}
	}
}

func retryAfterOrBackoff(resp *http.Response, bo backoff.BackOff) time.Duration {
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return bo.NextBackOff()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
