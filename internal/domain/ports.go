package domain

import (
	"context"
	"net/http"
	"time"
)

type EntityStore interface {
	// Get reports found=false without error when the id is not stored.
	Get(ctx context.Context, id int64) (r Restaurant, found bool, err error)
	GetAll(ctx context.Context) ([]Restaurant, error)
	// Put upserts the whole record. Version 0 inserts; version N updates
	// only a stored version N. Mismatches return ErrConflict.
	Put(ctx context.Context, r *Restaurant) error
}

type RemoteAPI interface {
	ListRestaurants(ctx context.Context) ([]map[string]any, error)
	GetRestaurant(ctx context.Context, id int64) (map[string]any, error)
	ListReviews(ctx context.Context, restaurantID int64) ([]map[string]any, error)
	CreateReview(ctx context.Context, restaurantID int64, d ReviewDraft, idempotencyKey string) (map[string]any, error)
	SetFavorite(ctx context.Context, id int64, favorite bool) (map[string]any, error)
	Ping(ctx context.Context) error
}

// CacheEntry is a stored response snapshot.
type CacheEntry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

type Bucket interface {
	Name() string
	Match(ctx context.Context, key string) (*CacheEntry, bool, error)
	Put(ctx context.Context, key string, e *CacheEntry) error
	Keys(ctx context.Context) ([]string, error)
}

type BlobCache interface {
	OpenBucket(ctx context.Context, name string) (Bucket, error)
	DeleteBucket(ctx context.Context, name string) error
	ListBucketNames(ctx context.Context) ([]string, error)
}

// Connectivity reports online/offline transitions.
type Connectivity interface {
	Online() bool
	Subscribe() <-chan bool
}

// FailureLog records replay items the remote refused. Optional.
type FailureLog interface {
	LogFailure(ctx context.Context, restaurantID int64, localID, kind, reason string) error
}
