package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"restaurant_offline/internal/domain"
)

// AllFilter is the filter value that matches everything.
const AllFilter = "all"

// CatalogService reads restaurants store-first and falls back to the remote
// API only for what is not stored yet.
type CatalogService struct {
	store  domain.EntityStore
	remote domain.RemoteAPI
	group  singleflight.Group
}

func NewCatalogService(s domain.EntityStore, r domain.RemoteAPI) *CatalogService {
	return &CatalogService{store: s, remote: r}
}

func (s *CatalogService) FetchAll(ctx context.Context) ([]domain.Restaurant, error) {
	v, err := s.shared(ctx, "all", func(ctx context.Context) (any, error) {
		stored, err := s.store.GetAll(ctx)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			return stored, nil
		}

		raw, err := s.remote.ListRestaurants(ctx)
		if err != nil {
			return nil, remoteErr("list restaurants", err)
		}
		out := make([]domain.Restaurant, 0, len(raw))
		for _, m := range raw {
			r := mapRestaurant(m)
			if r.ID == 0 {
				continue
			}
			got, err := s.insert(ctx, r)
			if err != nil {
				return nil, err
			}
			out = append(out, got)
		}
		log.Info().Int("count", len(out)).Msg("restaurants seeded from remote")
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneAll(v.([]domain.Restaurant)), nil
}

func (s *CatalogService) FetchByID(ctx context.Context, id int64) (domain.Restaurant, error) {
	v, err := s.shared(ctx, "id:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		r, found, err := s.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if found {
			return r, nil
		}
		m, err := s.remote.GetRestaurant(ctx, id)
		if err != nil {
			return nil, remoteErr(fmt.Sprintf("get restaurant %d", id), err)
		}
		fresh := mapRestaurant(m)
		if fresh.ID == 0 {
			fresh.ID = id
		}
		return s.insert(ctx, fresh)
	})
	if err != nil {
		return domain.Restaurant{}, err
	}
	return v.(domain.Restaurant).Clone(), nil
}

// FetchReviews returns the stored reviews of a restaurant. Reviews are
// fetched from the remote once, the first time they are absent; a present
// list (even an empty one) is never fetched again.
func (s *CatalogService) FetchReviews(ctx context.Context, id int64) ([]domain.Review, error) {
	v, err := s.shared(ctx, "reviews:"+strconv.FormatInt(id, 10), func(ctx context.Context) (any, error) {
		r, err := s.FetchByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Reviews != nil {
			return r.Reviews, nil
		}

		raw, err := s.remote.ListReviews(ctx, id)
		if err != nil {
			return nil, remoteErr(fmt.Sprintf("list reviews %d", id), err)
		}
		fetched := mapReviews(id, raw)
		stored, err := update(ctx, s.store, id, func(cur *domain.Restaurant) error {
			if cur.Reviews != nil {
				return errUnchanged
			}
			cur.Reviews = fetched
			return nil
		})
		if err != nil {
			return nil, err
		}
		return stored.Reviews, nil
	})
	if err != nil {
		return nil, err
	}
	src := v.([]domain.Review)
	out := make([]domain.Review, len(src))
	copy(out, src)
	return out, nil
}

func (s *CatalogService) ByCuisine(ctx context.Context, cuisine string) ([]domain.Restaurant, error) {
	return s.ByCuisineAndNeighborhood(ctx, cuisine, AllFilter)
}

func (s *CatalogService) ByNeighborhood(ctx context.Context, neighborhood string) ([]domain.Restaurant, error) {
	return s.ByCuisineAndNeighborhood(ctx, AllFilter, neighborhood)
}

func (s *CatalogService) ByCuisineAndNeighborhood(ctx context.Context, cuisine, neighborhood string) ([]domain.Restaurant, error) {
	all, err := s.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(all, cuisine, neighborhood), nil
}

func (s *CatalogService) DistinctNeighborhoods(ctx context.Context) ([]string, error) {
	all, err := s.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(all, func(r domain.Restaurant) string { return r.Neighborhood }), nil
}

func (s *CatalogService) DistinctCuisines(ctx context.Context) ([]string, error) {
	all, err := s.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return distinct(all, func(r domain.Restaurant) string { return r.CuisineType }), nil
}

// shared runs load once per key for all concurrent callers. The load is
// detached from the first caller's cancellation; each caller stops waiting
// when its own ctx ends.
func (s *CatalogService) shared(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		return load(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Filter keeps restaurants matching both filters; "all" or "" matches anything.
func Filter(in []domain.Restaurant, cuisine, neighborhood string) []domain.Restaurant {
	out := make([]domain.Restaurant, 0, len(in))
	for _, r := range in {
		if !matches(cuisine, r.CuisineType) || !matches(neighborhood, r.Neighborhood) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matches(filter, value string) bool {
	return filter == "" || filter == AllFilter || filter == value
}

// distinct keeps first-seen order.
func distinct(in []domain.Restaurant, field func(domain.Restaurant) string) []string {
	seen := make(map[string]struct{}, len(in))
	out := []string{}
	for _, r := range in {
		v := field(r)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// insert stores a remote record that was not stored before. If someone
// stored it first, the stored copy wins since it may hold local edits.
func (s *CatalogService) insert(ctx context.Context, r domain.Restaurant) (domain.Restaurant, error) {
	r.Version = 0
	err := s.store.Put(ctx, &r)
	if errors.Is(err, domain.ErrConflict) {
		cur, found, gerr := s.store.Get(ctx, r.ID)
		if gerr != nil {
			return domain.Restaurant{}, gerr
		}
		if found {
			return cur, nil
		}
	}
	if err != nil {
		return domain.Restaurant{}, err
	}
	return r, nil
}

// remoteErr folds remote failures into the two kinds callers branch on.
func remoteErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case errors.Is(err, domain.ErrRejected), errors.Is(err, domain.ErrUnavailable):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, domain.ErrUnavailable, err)
	}
}

func cloneAll(in []domain.Restaurant) []domain.Restaurant {
	out := make([]domain.Restaurant, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}
