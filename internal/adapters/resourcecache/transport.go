package resourcecache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/adapters/observability"
	"restaurant_offline/internal/domain"
)

// HeaderCache is set on responses served from a bucket.
const HeaderCache = "X-Offline-Cache"

// Transport is an http.RoundTripper that applies the cache-first policy to
// every GET it sees and passes everything else to Next. A miss that fails on
// the network surfaces the network error unchanged; there is no retry here.
type Transport struct {
	Next   http.RoundTripper
	Cache  domain.BlobCache
	Policy *Policy
	Now    func() time.Time
}

func NewTransport(next http.RoundTripper, cache domain.BlobCache, p *Policy) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Transport{Next: next, Cache: cache, Policy: p, Now: time.Now}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.Next.RoundTrip(req)
	}
	route := t.Policy.Classify(req.URL)
	if route.Strategy == StrategyData {
		observability.ObserveCache("data", "bypass")
		return t.Next.RoundTrip(req)
	}

	ctx := req.Context()
	bucket, err := t.Cache.OpenBucket(ctx, route.Bucket)
	if err != nil {
		log.Warn().Err(err).Str("bucket", route.Bucket).Msg("blob cache unavailable, going to network")
		return t.Next.RoundTrip(req)
	}

	entry, ok, err := bucket.Match(ctx, route.Key)
	if err != nil {
		log.Warn().Err(err).Str("bucket", route.Bucket).Str("key", route.Key).Msg("cache match failed")
	}
	if ok {
		return response(entry, req, route), nil
	}

	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL.Redacted(), err)
	}
	snap := &domain.CacheEntry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: t.Now().UTC(),
	}
	if err := bucket.Put(ctx, route.Key, snap); err != nil {
		log.Warn().Err(err).Str("bucket", route.Bucket).Str("key", route.Key).Msg("cache put failed")
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

func response(e *domain.CacheEntry, req *http.Request, route Route) *http.Response {
	h := e.Header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set(HeaderCache, "hit; bucket="+route.Bucket+"; strategy="+route.Strategy.String())
	h.Set("Content-Length", strconv.Itoa(len(e.Body)))
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}
