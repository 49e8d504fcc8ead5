package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// ErrNotFound marks positions the remote database does not know. Callers
// treat it as a valid empty result, not a failure.
var ErrNotFound = errors.New("lichess: position not found")

// rest is the shared GET+JSON transport for the Lichess endpoints.
type rest struct {
	http      *fasthttp.Client
	timeout   time.Duration
	retryMax  int
	userAgent string
}

// Option configures a Lichess client.
type Option func(*rest)

func WithTimeout(d time.Duration) Option {
	return func(r *rest) { r.timeout = d }
}

func WithRetry(max int) Option {
	return func(r *rest) { r.retryMax = max }
}

func WithUserAgent(ua string) Option {
	return func(r *rest) { r.userAgent = ua }
}

func WithMaxConnsPerHost(n int) Option {
	return func(r *rest) { r.http.MaxConnsPerHost = n }
}

func newRest(opts ...Option) rest {
	r := rest{
		http:      &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 32},
		timeout:   8 * time.Second,
		retryMax:  3,
		userAgent: "chesscoach/1.0",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func (r *rest) getJSON(ctx context.Context, url string, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(url)
	req.Header.Set("Accept", "application/json")
	if r.userAgent != "" {
		req.Header.SetUserAgent(r.userAgent)
	}

	attempts := r.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := r.http.DoDeadline(req, resp, r.computeDeadline(ctx))
		if err != nil {
			if attempt == attempts {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusNotFound {
			return ErrNotFound
		}
		if status < 200 || status >= 300 {
			err := fmt.Errorf("lichess api error: status=%d body=%s", status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (r *rest) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
