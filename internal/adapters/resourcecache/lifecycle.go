package resourcecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"restaurant_offline/internal/domain"
)

// Lifecycle installs the app-shell manifest into the static bucket and
// evicts buckets left behind by previous versions.
type Lifecycle struct {
	Cache   domain.BlobCache
	Policy  *Policy
	Client  *http.Client
	Workers int
	Now     func() time.Time
}

func NewLifecycle(cache domain.BlobCache, p *Policy, client *http.Client) *Lifecycle {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Lifecycle{Cache: cache, Policy: p, Client: client, Workers: 8, Now: time.Now}
}

// ResolveManifest turns relative manifest entries into absolute URLs against
// origin. Absolute entries are kept as they are.
func ResolveManifest(origin string, entries []string) ([]string, error) {
	base, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin %q: %w", origin, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		ref, err := url.Parse(e)
		if err != nil {
			return nil, fmt.Errorf("parse manifest entry %q: %w", e, err)
		}
		out = append(out, base.ResolveReference(ref).String())
	}
	return out, nil
}

// Install fetches every manifest URL and writes them to the static bucket.
// Nothing is written unless every fetch returned 2xx.
func (l *Lifecycle) Install(ctx context.Context, manifest []string) error {
	entries := make([]*domain.CacheEntry, len(manifest))

	g, gctx := errgroup.WithContext(ctx)
	if l.Workers > 0 {
		g.SetLimit(l.Workers)
	}
	for i, u := range manifest {
		g.Go(func() error {
			e, err := l.fetch(gctx, u)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("install aborted: %w", err)
	}

	bucket, err := l.Cache.OpenBucket(ctx, l.Policy.StaticBucket)
	if err != nil {
		return err
	}
	for i, u := range manifest {
		if err := bucket.Put(ctx, u, entries[i]); err != nil {
			return fmt.Errorf("store %s: %w", u, err)
		}
	}
	log.Info().Str("bucket", l.Policy.StaticBucket).Int("entries", len(manifest)).Msg("app shell installed")
	return nil
}

// Activate deletes every bucket that is not one of the current static,
// image or tile buckets and returns the names it removed.
func (l *Lifecycle) Activate(ctx context.Context) ([]string, error) {
	names, err := l.Cache.ListBucketNames(ctx)
	if err != nil {
		return nil, err
	}
	keep := l.Policy.Retained()
	var removed []string
	for _, n := range names {
		if _, ok := keep[n]; ok {
			continue
		}
		if err := l.Cache.DeleteBucket(ctx, n); err != nil {
			return removed, fmt.Errorf("delete bucket %s: %w", n, err)
		}
		removed = append(removed, n)
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		log.Info().Strs("removed", removed).Msg("stale buckets evicted")
	}
	return removed, nil
}

func (l *Lifecycle) fetch(ctx context.Context, u string) (*domain.CacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u, err)
	}
	return &domain.CacheEntry{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: l.Now().UTC(),
	}, nil
}
