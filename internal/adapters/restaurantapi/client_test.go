package restaurantapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"restaurant_offline/internal/adapters/restaurantapi"
	"restaurant_offline/internal/domain"
)

func TestClient_GetRestaurant_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(500)
		default:
			w.WriteHeader(200)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 123.0})
		}
	}))
	defer ts.Close()

	cl, err := restaurantapi.New(ts.URL, 100, 4, nil) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got, err := cl.GetRestaurant(ctx, 123)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	id, ok := got["id"].(float64)
	if !ok || int(id) != 123 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_SingleAttemptDoesNotRetry(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(503)
	}))
	defer ts.Close()

	cl, _ := restaurantapi.New(ts.URL, 100, 1, nil)
	_, err := cl.ListRestaurants(context.Background())
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one call, got %d", n)
	}
}

func TestClient_GetRestaurant_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, err := restaurantapi.New(ts.URL, 100, 1, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = cl.GetRestaurant(ctx, 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for 404, got %v", err)
	}
}

func TestClient_ListReviews_FallsBackToLegacyPath(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/restaurants/7/reviews" {
			_ = json.NewEncoder(w).Encode([]map[string]any{{"name": "A", "rating": 4}})
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	cl, _ := restaurantapi.New(ts.URL, 100, 1, nil)
	got, err := cl.ListReviews(context.Background(), 7)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(got) != 1 || got[0]["name"] != "A" {
		t.Fatalf("unexpected reviews: %+v", got)
	}
}

func TestClient_CreateReview_SendsBodyAndIdempotencyKey(t *testing.T) {
	var gotKey string
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/reviews/" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 99, "restaurant_id": 1})
	}))
	defer ts.Close()

	cl, _ := restaurantapi.New(ts.URL, 100, 1, nil)
	out, err := cl.CreateReview(context.Background(), 1, domain.ReviewDraft{Name: "A", Rating: 5, Comments: "Great"}, "k-1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotKey != "k-1" {
		t.Fatalf("idempotency key not sent: %q", gotKey)
	}
	if gotBody["name"] != "A" || gotBody["comments"] != "Great" || gotBody["rating"].(float64) != 5 || gotBody["restaurant_id"].(float64) != 1 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	if out["id"].(float64) != 99 {
		t.Fatalf("unexpected response: %+v", out)
	}
}

func TestClient_ValidationErrorIsRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rating required", http.StatusUnprocessableEntity)
	}))
	defer ts.Close()

	cl, _ := restaurantapi.New(ts.URL, 100, 3, nil)
	_, err := cl.CreateReview(context.Background(), 1, domain.ReviewDraft{}, "")
	if !errors.Is(err, domain.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestClient_SetFavorite_UsesQueryFlag(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 3, "is_favorite": "true"})
	}))
	defer ts.Close()

	cl, _ := restaurantapi.New(ts.URL, 100, 1, nil)
	if _, err := cl.SetFavorite(context.Background(), 3, true); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotQuery != "is_favorite=true" {
		t.Fatalf("unexpected query: %q", gotQuery)
	}
}

func TestClient_Ping_UnreachableIsUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	cl, _ := restaurantapi.New(url, 100, 1, nil)
	if err := cl.Ping(context.Background()); !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
