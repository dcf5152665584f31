package app_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"restaurant_offline/internal/domain"
)

// ---- fakes ----

// memStore is an in-memory EntityStore with the same version rules as MySQL.
type memStore struct {
	mu   sync.Mutex
	rows map[int64]domain.Restaurant
	puts int
	fail error
}

func newMemStore(rs ...domain.Restaurant) *memStore {
	s := &memStore{rows: map[int64]domain.Restaurant{}}
	for _, r := range rs {
		r.Version = 1
		s.rows[r.ID] = r.Clone()
	}
	return s
}

func (s *memStore) Get(ctx context.Context, id int64) (domain.Restaurant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return domain.Restaurant{}, false, s.fail
	}
	r, ok := s.rows[id]
	if !ok {
		return domain.Restaurant{}, false, nil
	}
	return r.Clone(), true, nil
}

func (s *memStore) GetAll(ctx context.Context) ([]domain.Restaurant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := make([]domain.Restaurant, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Put(ctx context.Context, r *domain.Restaurant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	cur, exists := s.rows[r.ID]
	switch {
	case r.Version == 0 && exists:
		return fmt.Errorf("%w: %d exists", domain.ErrConflict, r.ID)
	case r.Version != 0 && (!exists || cur.Version != r.Version):
		return fmt.Errorf("%w: %d stale", domain.ErrConflict, r.ID)
	}
	r.Version++
	s.rows[r.ID] = r.Clone()
	s.puts++
	return nil
}

func (s *memStore) snapshot(id int64) domain.Restaurant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[id].Clone()
}

// fakeRemote is a scripted RemoteAPI.
type fakeRemote struct {
	mu sync.Mutex

	restaurants []map[string]any
	reviews     map[int64][]map[string]any
	err         error          // returned by every call when set
	reviewErr   error          // returned by CreateReview only
	block       chan struct{}  // when non-nil, calls wait for close or ctx
	favReply    map[string]any // returned by SetFavorite when set

	calls     map[string]int
	posted    []string // idempotency keys of CreateReview calls
	favorites map[int64]bool
	nextID    int64
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		reviews:   map[int64][]map[string]any{},
		calls:     map[string]int{},
		favorites: map[int64]bool{},
		nextID:    100,
	}
}

var errOffline = fmt.Errorf("dial: %w", domain.ErrUnavailable)

func (f *fakeRemote) enter(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls[name]++
	block, err := f.block, f.err
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
		}
	}
	return err
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeRemote) ListRestaurants(ctx context.Context) ([]map[string]any, error) {
	if err := f.enter(ctx, "list"); err != nil {
		return nil, err
	}
	return f.restaurants, nil
}

func (f *fakeRemote) GetRestaurant(ctx context.Context, id int64) (map[string]any, error) {
	if err := f.enter(ctx, "get"); err != nil {
		return nil, err
	}
	for _, r := range f.restaurants {
		if int64(r["id"].(float64)) == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("restaurant %d: %w", id, domain.ErrNotFound)
}

func (f *fakeRemote) ListReviews(ctx context.Context, id int64) ([]map[string]any, error) {
	if err := f.enter(ctx, "reviews"); err != nil {
		return nil, err
	}
	return f.reviews[id], nil
}

func (f *fakeRemote) CreateReview(ctx context.Context, id int64, d domain.ReviewDraft, key string) (map[string]any, error) {
	if err := f.enter(ctx, "post"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.posted = append(f.posted, key)
	f.nextID++
	return map[string]any{"id": float64(f.nextID), "restaurant_id": float64(id), "name": d.Name}, nil
}

func (f *fakeRemote) SetFavorite(ctx context.Context, id int64, fav bool) (map[string]any, error) {
	if err := f.enter(ctx, "favorite"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.favorites[id] = fav
	if f.favReply != nil {
		return f.favReply, nil
	}
	for _, r := range f.restaurants {
		if int64(r["id"].(float64)) == id {
			out := map[string]any{}
			for k, v := range r {
				out[k] = v
			}
			out["is_favorite"] = fmt.Sprintf("%t", fav)
			return out, nil
		}
	}
	return map[string]any{"id": float64(id), "is_favorite": fav}, nil
}

func (f *fakeRemote) Ping(ctx context.Context) error { return f.enter(ctx, "ping") }

func (f *fakeRemote) postedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.posted...)
}

var errBoom = errors.New("disk full")

func remoteRestaurant(id int, name, cuisine, hood string) map[string]any {
	return map[string]any{
		"id":           float64(id),
		"name":         name,
		"cuisine_type": cuisine,
		"neighborhood": hood,
		"photograph":   fmt.Sprintf("%d", id),
		"latlng":       map[string]any{"lat": 40.7, "lng": -73.9},
		"is_favorite":  "false",
	}
}

func sampleRemote() *fakeRemote {
	f := newFakeRemote()
	f.restaurants = []map[string]any{
		remoteRestaurant(1, "Mission Chinese Food", "Asian", "Manhattan"),
		remoteRestaurant(2, "Emily", "Pizza", "Brooklyn"),
		remoteRestaurant(3, "Kang Ho Dong Baekjeong", "Asian", "Manhattan"),
		remoteRestaurant(4, "Katz's Delicatessen", "American", "Manhattan"),
	}
	f.reviews[1] = []map[string]any{
		{"id": float64(1), "restaurant_id": float64(1), "name": "Steve", "rating": float64(4), "comments": "Great", "createdAt": float64(1504095567183)},
		{"id": float64(2), "restaurant_id": float64(1), "name": "Morgan", "rating": "5", "comments": "Loved it", "createdAt": float64(1504095567183)},
	}
	return f
}
