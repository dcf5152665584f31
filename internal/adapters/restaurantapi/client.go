// internal/adapters/restaurantapi/client.go
package restaurantapi

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"restaurant_offline/internal/adapters/observability"
	"restaurant_offline/internal/domain"
)

const service = "restaurants_api"

type Client struct {
	base     string
	hc       *http.Client
	rl       *rate.Limiter
	attempts int
}

// New builds a client for the remote restaurants API. rt is the transport
// every request goes through (normally the resource cache policy); nil uses
// http.DefaultTransport. attempts <= 1 disables retries.
func New(base string, rps, attempts int, rt http.RoundTripper) (*Client, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	if attempts <= 0 {
		attempts = 1
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &Client{
		base:     base,
		hc:       &http.Client{Timeout: 20 * time.Second, Transport: rt},
		rl:       rate.NewLimiter(rate.Limit(rps), rps),
		attempts: attempts,
	}, nil
}

func (c *Client) Base() string { return c.base }

// ---- Public API (tries current endpoints first, falls back to legacy variants) ----

func (c *Client) ListRestaurants(ctx context.Context) ([]map[string]any, error) {
	candidates := []string{
		c.base + "/restaurants",
		c.base + "/restaurants/", // legacy trailing-slash router
	}
	var out []map[string]any
	return out, c.getFirst(ctx, "list_restaurants", candidates, &out)
}

func (c *Client) GetRestaurant(ctx context.Context, id int64) (map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/restaurants/%d", c.base, id),
		fmt.Sprintf("%s/restaurants/%d/", c.base, id),
	}
	var out map[string]any
	return out, c.getFirst(ctx, "get_restaurant", candidates, &out)
}

func (c *Client) ListReviews(ctx context.Context, restaurantID int64) ([]map[string]any, error) {
	candidates := []string{
		fmt.Sprintf("%s/reviews/?restaurant_id=%d", c.base, restaurantID), // preferred
		fmt.Sprintf("%s/restaurants/%d/reviews", c.base, restaurantID),   // legacy
	}
	var out []map[string]any
	return out, c.getFirst(ctx, "list_reviews", candidates, &out)
}

// CreateReview posts a review. key is sent as Idempotency-Key so a replay of
// an already accepted review can be recognized by the remote.
func (c *Client) CreateReview(ctx context.Context, restaurantID int64, d domain.ReviewDraft, key string) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"restaurant_id": restaurantID,
		"name":          d.Name,
		"rating":        d.Rating,
		"comments":      d.Comments,
	})
	if err != nil {
		return nil, err
	}
	hdr := http.Header{}
	if key != "" {
		hdr.Set("Idempotency-Key", key)
	}
	var out map[string]any
	return out, c.do(ctx, http.MethodPost, "create_review", c.base+"/reviews/", body, hdr, &out)
}

func (c *Client) SetFavorite(ctx context.Context, id int64, favorite bool) (map[string]any, error) {
	url := fmt.Sprintf("%s/restaurants/%d/?is_favorite=%t", c.base, id, favorite)
	var out map[string]any
	return out, c.do(ctx, http.MethodPut, "set_favorite", url, nil, nil, &out)
}

// Ping reports whether the remote answers at all; any non-5xx status counts.
func (c *Client) Ping(ctx context.Context) error {
	err := c.do(ctx, http.MethodHead, "ping", c.base+"/restaurants", nil, nil, nil)
	if err == nil || errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrRejected) {
		return nil
	}
	return err
}

// ---- Internals ----

var (
	ErrNotFound     = fmt.Errorf("restaurants api: %w", domain.ErrNotFound)
	ErrUnauthorized = fmt.Errorf("restaurants api: unauthorized: %w", domain.ErrRejected)
	ErrForbidden    = fmt.Errorf("restaurants api: forbidden: %w", domain.ErrRejected)
)

func (c *Client) getFirst(ctx context.Context, endpoint string, urls []string, out any) error {
	var last error
	for _, u := range urls {
		if err := c.do(ctx, http.MethodGet, endpoint, u, nil, nil, out); err != nil {
			if errors.Is(err, ErrNotFound) {
				last = err
				continue // try next pattern
			}
			return err // non-404: stop early
		}
		return nil
	}
	if last != nil {
		return last
	}
	return errors.New("no candidate URL succeeded")
}

// do performs one logical call with client-side rate limiting and JSON decode
// into out (nil discards the body). Transport failures, 429 and 5xx map to
// domain.ErrUnavailable and are retried while attempts remain, honoring
// Retry-After when provided.
func (c *Client) do(ctx context.Context, method, endpoint, url string, body []byte, hdr http.Header, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}

	var lastErr error
	for i := 0; i < c.attempts; i++ {
		last := i == c.attempts-1

		// build a fresh request each attempt
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return err
		}
		for k, vs := range hdr {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "restaurant-offline/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal(service, endpoint, 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
			if !last && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr
		}
		observability.ObserveExternal(service, endpoint, resp.StatusCode, time.Since(start))

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated, http.StatusAccepted:
			defer resp.Body.Close()
			if out == nil || method == http.MethodHead {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode %s: %w", endpoint, err)
			}
			return nil

		case http.StatusNoContent:
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound

		case http.StatusUnauthorized:
			resp.Body.Close()
			return ErrUnauthorized

		case http.StatusForbidden:
			resp.Body.Close()
			return ErrForbidden

		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("%w: remote %d", domain.ErrUnavailable, resp.StatusCode)
			if !last && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return lastErr

		default:
			// read a small error body for diagnostics
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return fmt.Errorf("%w: status %d: %s", domain.ErrRejected, resp.StatusCode, strings.TrimSpace(string(b)))
		}
	}

	return lastErr
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to
// +50% jitter from crypto/rand.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
