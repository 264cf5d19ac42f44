// Package httpx provides the shared outbound HTTP client used by polling
// collectors: pooled transport, per-host token-bucket rate limiting and a
// per-host circuit breaker.
package httpx

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Client wraps http.Client with venue-friendly failure handling.
type Client struct {
	http *http.Client

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
	rps      float64
	burst    int
}

// NewClient builds a client with a pooled transport. rps/burst bound the
// request rate per host.
func NewClient(timeout time.Duration, rps float64, burst int) *Client {
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:     &http.Client{Timeout: timeout, Transport: transport},
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		rps:      rps,
		burst:    burst,
	}
}

func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.RLock()
	l, ok := c.limiters[host]
	c.mu.RUnlock()
	if ok {
		return l
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[host]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(c.rps), c.burst)
	c.limiters[host] = l
	return l
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.RLock()
	b, ok := c.breakers[host]
	c.mu.RUnlock()
	if ok {
		return b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[host]; ok {
		return b
	}

	st := gobreaker.Settings{Name: host}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	b = gobreaker.NewCircuitBreaker(st)
	c.breakers[host] = b
	return b
}

// GetJSON performs a rate-limited, breaker-guarded GET and returns the body.
func (c *Client) GetJSON(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, http.MethodGet, url, nil)
}

// PostJSON performs a rate-limited, breaker-guarded POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, url string, body io.Reader) ([]byte, error) {
	return c.Do(ctx, http.MethodPost, url, body)
}

// Do executes one request against the venue, honoring the per-host limiter
// and breaker. Non-2xx responses are errors.
func (c *Client) Do(ctx context.Context, method, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	host := req.URL.Host
	if err := c.limiter(host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", host, err)
	}

	result, err := c.breaker(host).Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, host)
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", host, err)
	}
	return result.([]byte), nil
}
