package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"restaurant_offline/internal/adapters/observability"
	"restaurant_offline/internal/domain"
)

const maxConflictRetries = 5

// errUnchanged lets a mutation skip the write.
var errUnchanged = errors.New("unchanged")

// update runs a read-modify-write on one restaurant and retries when another
// writer bumped the version in between.
func update(ctx context.Context, store domain.EntityStore, id int64, mutate func(*domain.Restaurant) error) (domain.Restaurant, error) {
	for attempt := 0; ; attempt++ {
		cur, found, err := store.Get(ctx, id)
		if err != nil {
			return domain.Restaurant{}, err
		}
		if !found {
			return domain.Restaurant{}, fmt.Errorf("restaurant %d: %w", id, domain.ErrNotFound)
		}
		if err := mutate(&cur); err != nil {
			if errors.Is(err, errUnchanged) {
				return cur, nil
			}
			return domain.Restaurant{}, err
		}
		err = store.Put(ctx, &cur)
		if err == nil {
			return cur, nil
		}
		if !errors.Is(err, domain.ErrConflict) || attempt >= maxConflictRetries {
			return domain.Restaurant{}, err
		}
		log.Debug().Int64("id", id).Int("attempt", attempt+1).Msg("version conflict, retrying")
	}
}

// SyncReport summarizes one replay scan.
type SyncReport struct {
	ReviewsSynced   int `json:"reviews_synced"`
	ReviewsFailed   int `json:"reviews_failed"`
	FavoritesSynced int `json:"favorites_synced"`
	FavoritesFailed int `json:"favorites_failed"`
}

// Pending reports whether anything was left for a later scan.
func (r SyncReport) Pending() bool { return r.ReviewsFailed+r.FavoritesFailed > 0 }

// SyncService owns every local mutation. Mutations are durable in the entity
// store before any network call; the replay scan pushes them to the remote.
type SyncService struct {
	store    domain.EntityStore
	remote   domain.RemoteAPI
	catalog  *CatalogService
	failures domain.FailureLog

	notify func()
	now    func() time.Time
	newID  func() string
}

func NewSyncService(s domain.EntityStore, r domain.RemoteAPI, c *CatalogService) *SyncService {
	return &SyncService{
		store:   s,
		remote:  r,
		catalog: c,
		notify:  func() {},
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
	}
}

// OnMutation registers the callback fired after each stored mutation. It
// must not block.
func (s *SyncService) OnMutation(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	s.notify = fn
}

// WithFailureLog records rejected replay items.
func (s *SyncService) WithFailureLog(f domain.FailureLog) *SyncService {
	s.failures = f
	return s
}

// CreateReview appends an unsynced review and stores it. The remote is not
// contacted here.
func (s *SyncService) CreateReview(ctx context.Context, id int64, d domain.ReviewDraft) (domain.Review, error) {
	if _, err := s.catalog.FetchByID(ctx, id); err != nil {
		return domain.Review{}, err
	}
	rv := domain.Review{
		LocalID:      s.newID(),
		RestaurantID: id,
		Name:         d.Name,
		Rating:       d.Rating,
		Comments:     d.Comments,
		Date:         domain.FormatReviewDate(s.now()),
	}
	if _, err := update(ctx, s.store, id, func(cur *domain.Restaurant) error {
		cur.Reviews = append(cur.Reviews, rv)
		return nil
	}); err != nil {
		return domain.Review{}, err
	}
	log.Info().Int64("restaurant_id", id).Str("local_id", rv.LocalID).Msg("review stored, awaiting sync")
	s.notify()
	return rv, nil
}

// ToggleFavorite flips is_favorite locally, then tells the remote. A failed
// remote call leaves the toggle pending for the replay scan; the local state
// is returned either way.
func (s *SyncService) ToggleFavorite(ctx context.Context, id int64) (domain.Restaurant, error) {
	if _, err := s.catalog.FetchByID(ctx, id); err != nil {
		return domain.Restaurant{}, err
	}
	local, err := update(ctx, s.store, id, func(cur *domain.Restaurant) error {
		cur.IsFavorite = !cur.IsFavorite
		cur.FavoritePending = true
		return nil
	})
	if err != nil {
		return domain.Restaurant{}, err
	}

	confirmed, err := s.pushFavorite(ctx, id, local.IsFavorite)
	if err != nil {
		log.Warn().Err(err).Int64("id", id).Bool("favorite", local.IsFavorite).Msg("favorite toggle queued")
		return local, nil
	}
	return confirmed, nil
}

// pushFavorite sends one favorite value and stores the server's record,
// carrying local reviews over. If the user toggled again meanwhile nothing is
// written and the pending flag stays set.
func (s *SyncService) pushFavorite(ctx context.Context, id int64, want bool) (domain.Restaurant, error) {
	m, err := s.remote.SetFavorite(ctx, id, want)
	if err != nil {
		observability.ObserveReplay("favorite", outcome(err))
		return domain.Restaurant{}, err
	}
	server := mapRestaurant(m)
	out, err := update(ctx, s.store, id, func(cur *domain.Restaurant) error {
		if cur.IsFavorite != want {
			return errUnchanged
		}
		// the server's record, is_favorite included, replaces the optimistic one
		if server.ID == id {
			server.Reviews = cur.Reviews
			server.Version = cur.Version
			*cur = server
		}
		cur.FavoritePending = false
		return nil
	})
	if err != nil {
		observability.ObserveReplay("favorite", "failed")
		return domain.Restaurant{}, err
	}
	observability.ObserveReplay("favorite", "ok")
	return out, nil
}

// SyncReviews is the replay scan. Every unsynced review is posted; each
// confirmation is stored before the next post. Pending favorites go out in
// the same pass. Failures stay queued for the next scan.
func (s *SyncService) SyncReviews(ctx context.Context) (SyncReport, error) {
	var rep SyncReport
	all, err := s.store.GetAll(ctx)
	if err != nil {
		return rep, err
	}
	for _, r := range all {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if missingLocalIDs(r) {
			if r, err = s.assignLocalIDs(ctx, r.ID); err != nil {
				return rep, err
			}
		}
		for _, rv := range r.Reviews {
			if rv.Synced {
				continue
			}
			if err := s.pushReview(ctx, r.ID, rv); err != nil {
				rep.ReviewsFailed++
				s.recordFailure(ctx, r.ID, rv.LocalID, "review", err)
				continue
			}
			rep.ReviewsSynced++
		}
		if r.FavoritePending {
			if _, err := s.pushFavorite(ctx, r.ID, r.IsFavorite); err != nil {
				rep.FavoritesFailed++
				s.recordFailure(ctx, r.ID, fmt.Sprintf("favorite:%t", r.IsFavorite), "favorite", err)
				continue
			}
			rep.FavoritesSynced++
		}
	}
	return rep, nil
}

func (s *SyncService) pushReview(ctx context.Context, id int64, rv domain.Review) error {
	key := rv.LocalID
	m, err := s.remote.CreateReview(ctx, id, domain.ReviewDraft{Name: rv.Name, Rating: rv.Rating, Comments: rv.Comments}, key)
	if err != nil {
		observability.ObserveReplay("review", outcome(err))
		return err
	}
	remoteID := int64Flexible(m, "id")
	_, err = update(ctx, s.store, id, func(cur *domain.Restaurant) error {
		for i := range cur.Reviews {
			c := &cur.Reviews[i]
			if c.Synced || c.LocalID != key {
				continue
			}
			c.Synced = true
			if remoteID != 0 {
				c.ID = remoteID
			}
			return nil
		}
		return errUnchanged
	})
	if err != nil {
		observability.ObserveReplay("review", "failed")
		return err
	}
	observability.ObserveReplay("review", "ok")
	log.Info().Int64("restaurant_id", id).Str("local_id", key).Int64("remote_id", remoteID).Msg("review synced")
	return nil
}

func missingLocalIDs(r domain.Restaurant) bool {
	for _, rv := range r.Reviews {
		if !rv.Synced && rv.LocalID == "" {
			return true
		}
	}
	return false
}

// assignLocalIDs gives unsynced reviews written without a local id one, so
// every retry of the same review carries the same idempotency key.
func (s *SyncService) assignLocalIDs(ctx context.Context, id int64) (domain.Restaurant, error) {
	return update(ctx, s.store, id, func(cur *domain.Restaurant) error {
		changed := false
		for i := range cur.Reviews {
			if !cur.Reviews[i].Synced && cur.Reviews[i].LocalID == "" {
				cur.Reviews[i].LocalID = s.newID()
				changed = true
			}
		}
		if !changed {
			return errUnchanged
		}
		return nil
	})
}

func (s *SyncService) recordFailure(ctx context.Context, id int64, localID, kind string, err error) {
	if !errors.Is(err, domain.ErrRejected) {
		log.Debug().Err(err).Int64("restaurant_id", id).Str("kind", kind).Msg("replay deferred")
		return
	}
	log.Warn().Err(err).Int64("restaurant_id", id).Str("kind", kind).Str("local_id", localID).Msg("remote rejected replay item, keeping it queued")
	if s.failures == nil {
		return
	}
	if lerr := s.failures.LogFailure(ctx, id, localID, kind, err.Error()); lerr != nil {
		log.Error().Err(lerr).Msg("could not record replay failure")
	}
}

func outcome(err error) string {
	if errors.Is(err, domain.ErrRejected) {
		return "rejected"
	}
	return "failed"
}
